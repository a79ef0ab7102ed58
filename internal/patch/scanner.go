// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/dotandev/watpatch/internal/errors"
	"github.com/dotandev/watpatch/internal/logger"
)

// Facts are the values the scanner extracts for template substitution.
type Facts struct {
	// TypeID is the declared id of the first type matching the profile signature:
	// a $identifier when the declaration has one, else the (;N;) index.
	TypeID   string
	TypeLine int

	// TableIndex is the 0-based position of the sentinel in the first element
	// segment, or -1 when unset.
	TableIndex  int
	TableLen    int
	SegmentLine int

	// segmentProblem is set when segment zero was found but unusable.
	segmentProblem string
}

func (f Facts) HasTypeID() bool     { return f.TypeID != "" }
func (f Facts) HasTableIndex() bool { return f.TableIndex >= 0 }

// Value renders the fact bound to kind in its textual form.
func (f Facts) Value(kind FactKind) string {
	switch kind {
	case FactTypeID:
		return f.TypeID
	case FactTableIndex:
		return strconv.Itoa(f.TableIndex)
	}
	return ""
}

// Validate fails when a fact the profile's targets consume is absent.
func (f Facts) Validate(p *Profile) error {
	if f.segmentProblem != "" && p.Needs(FactTableIndex) {
		return errors.WrapMalformedSegment(f.segmentProblem)
	}
	var missing []string
	if p.Needs(FactTypeID) && !f.HasTypeID() {
		missing = append(missing, fmt.Sprintf("type id for signature %q", p.Signature))
	}
	if p.Needs(FactTableIndex) && !f.HasTableIndex() {
		missing = append(missing, fmt.Sprintf("table index of %s (no %q segment)", p.Sentinel, p.SegmentMarker))
	}
	if len(missing) > 0 {
		return errors.WrapMissingFact(missing...)
	}
	return nil
}

// Scanner is the first pass: it reads the whole module text once and records
// the first match of each fact.
type Scanner struct {
	profile *Profile
}

func NewScanner(p *Profile) *Scanner {
	return &Scanner{profile: p}
}

// Scan consumes r to the end. It returns an error only for read failures or
// cancellation; absent facts are reported by Facts.Validate.
func (s *Scanner) Scan(ctx context.Context, r io.Reader) (Facts, error) {
	facts := Facts{TableIndex: -1}
	segmentSeen := false

	lr := newLineReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return facts, err
		}
		raw, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return facts, fmt.Errorf("reading module text: %w", err)
		}
		line := trimEOL(raw)
		n := lr.lineNo

		if !facts.HasTypeID() && s.isTypeDecl(line) {
			if id, ok := declaredTypeID(line, s.profile.TypeMarker); ok {
				facts.TypeID = id
				facts.TypeLine = n
				logger.Logger.Info("found callback type id", "type_id", id, "line", n)
			}
		}

		if !segmentSeen && strings.Contains(line, s.profile.SegmentMarker) {
			segmentSeen = true
			facts.SegmentLine = n
			idx, size, problem := segmentIndex(line, s.profile.SegmentListToken, s.profile.Sentinel)
			if problem != "" {
				facts.segmentProblem = fmt.Sprintf("line %d: %s", n, problem)
				logger.Logger.Warn("element segment unusable", "line", n, "reason", problem)
				continue
			}
			facts.TableIndex = idx
			facts.TableLen = size
			logger.Logger.Info("found callback table index", "index", idx, "line", n)
		}
	}
	return facts, nil
}

func (s *Scanner) isTypeDecl(line string) bool {
	return strings.Contains(line, s.profile.TypeMarker) && strings.Contains(line, s.profile.Signature)
}

// declaredTypeID reads the id field that follows the type marker. Text such as
// "(type 3)" inside a function header is a type use, not a declaration.
func declaredTypeID(line, marker string) (string, bool) {
	i := strings.Index(line, marker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimLeft(line[i+len(marker):], " \t")
	comment := ""
	for {
		switch {
		case strings.HasPrefix(rest, "$"):
			end := strings.IndexAny(rest, " \t()")
			if end < 0 {
				end = len(rest)
			}
			if end == 1 {
				return "", false
			}
			return rest[:end], true
		case strings.HasPrefix(rest, "(;"):
			end := strings.Index(rest, ";)")
			if end < 0 {
				return "", false
			}
			fields := strings.Split(rest[:end+2], ";")
			if n := strings.TrimSpace(fields[1]); comment == "" && isDecimal(n) {
				comment = n
			}
			rest = strings.TrimLeft(rest[end+2:], " \t")
		default:
			return comment, comment != ""
		}
	}
}

// segmentIndex finds the sentinel among the references that follow listToken.
// It returns a non-empty problem when the segment cannot yield an index.
func segmentIndex(line, listToken, sentinel string) (idx, size int, problem string) {
	fields := strings.Fields(line)
	start := -1
	for i, f := range fields {
		if f == listToken {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return -1, 0, fmt.Sprintf("no %q token in segment", listToken)
	}

	refs := make([]string, 0, len(fields)-start)
	for _, f := range fields[start:] {
		if f = strings.TrimRight(f, ")"); f != "" {
			refs = append(refs, f)
		}
	}

	idx = -1
	for i, ref := range refs {
		if ref == sentinel {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, len(refs), fmt.Sprintf("sentinel %s absent from %d references", sentinel, len(refs))
	}
	if idx >= len(refs) {
		return -1, len(refs), fmt.Sprintf("index %d out of bounds for %d references", idx, len(refs))
	}
	if _, err := safecast.Conv[uint32](idx); err != nil {
		return -1, len(refs), fmt.Sprintf("index %d is not a valid table index: %v", idx, err)
	}
	return idx, len(refs), ""
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
