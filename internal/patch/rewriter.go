// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dotandev/watpatch/internal/errors"
	"github.com/dotandev/watpatch/internal/logger"
)

type regionState int

const (
	statePassthrough regionState = iota
	stateInRegion
)

func (s regionState) String() string {
	if s == stateInRegion {
		return "IN_REGION"
	}
	return "PASSTHROUGH"
}

// cursor is the rewriter's per-line state. It is advanced by value.
type cursor struct {
	state  regionState
	depth  int
	target int
}

// enter starts a region at a header line. The depth starts at the header's own
// balance, so the region ends when nesting falls back to where it was before
// the header. A header that already balances is a region of one line.
func (c cursor) enter(target int, header string) cursor {
	depth := parenBalance(header)
	if depth <= 0 {
		return cursor{state: statePassthrough}
	}
	return cursor{state: stateInRegion, depth: depth, target: target}
}

// consume folds one body line into the region and reports whether it closed.
func (c cursor) consume(line string) (cursor, bool) {
	c.depth += parenBalance(line)
	if c.depth <= 0 {
		return cursor{state: statePassthrough}, true
	}
	return c, false
}

// RewriteStats counts what the rewriter did with each input line.
type RewriteStats struct {
	LinesRead      int
	LinesWritten   int
	LinesDiscarded int
	// Replacements counts regions replaced per target name.
	Replacements map[string]int
}

// Missing lists targets whose header never appeared.
func (s RewriteStats) Missing(p *Profile) []string {
	var out []string
	for _, t := range p.Targets {
		if s.Replacements[t.Name] == 0 {
			out = append(out, t.Name)
		}
	}
	return out
}

// Rewriter is the second pass: it copies lines through and swaps target
// bodies for their rendered templates.
type Rewriter struct {
	targets  []Target
	rendered [][]string
}

// NewRewriter renders every template against facts. The facts must already
// have passed Facts.Validate for p.
func NewRewriter(p *Profile, facts Facts) *Rewriter {
	rw := &Rewriter{targets: p.Targets, rendered: make([][]string, len(p.Targets))}
	for i, t := range p.Targets {
		body := t.Template
		if t.Fact != FactNone {
			body = strings.ReplaceAll(body, t.Placeholder, facts.Value(t.Fact))
		}
		lines := strings.Split(body, "\n")
		for j := range lines {
			lines[j] = strings.TrimSuffix(lines[j], "\r")
		}
		rw.rendered[i] = lines
	}
	return rw
}

func (rw *Rewriter) matchHeader(line string) int {
	for i, t := range rw.targets {
		if strings.Contains(line, t.Header) {
			return i
		}
	}
	return -1
}

// Rewrite streams r to w. Output is flushed once, after the last input line.
func (rw *Rewriter) Rewrite(ctx context.Context, r io.Reader, w io.Writer) (RewriteStats, error) {
	stats := RewriteStats{Replacements: make(map[string]int, len(rw.targets))}
	bw := bufio.NewWriterSize(w, 64*1024)
	lr := newLineReader(r)
	cur := cursor{}

	write := func(s string) error {
		if _, err := bw.WriteString(s); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading module text: %w", err)
		}
		line := trimEOL(raw)
		stats.LinesRead++

		if cur.state == stateInRegion {
			stats.LinesDiscarded++
			logger.Logger.Debug("discard", "target", rw.targets[cur.target].Name, "line", lr.lineNo, "depth", cur.depth, "text", line)
			var closed bool
			if cur, closed = cur.consume(line); closed {
				logger.Logger.Debug("region closed", "line", lr.lineNo)
			}
			continue
		}

		ti := rw.matchHeader(line)
		if ti < 0 {
			if err := write(raw); err != nil {
				return stats, err
			}
			stats.LinesWritten++
			continue
		}

		t := rw.targets[ti]
		logger.Logger.Info("found target header", "target", t.Name, "line", lr.lineNo, "text", line)
		if t.KeepHeader {
			if err := write(raw); err != nil {
				return stats, err
			}
			stats.LinesWritten++
		} else {
			stats.LinesDiscarded++
		}
		eol := eolOf(raw)
		for _, tl := range rw.rendered[ti] {
			if err := write(tl + eol); err != nil {
				return stats, err
			}
			stats.LinesWritten++
		}
		stats.Replacements[t.Name]++

		cur = cur.enter(ti, line)
		if cur.state != stateInRegion {
			logger.Logger.Warn("target header is self-contained; no body consumed", "target", t.Name, "line", lr.lineNo)
		}
	}

	if cur.state == stateInRegion {
		return stats, errors.WrapUnterminatedRegion(rw.targets[cur.target].Name, cur.depth)
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("flushing output: %w", err)
	}
	return stats, nil
}
