// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/dotandev/watpatch/internal/errors"
)

// FactKind names the scanned fact a template placeholder is bound to.
type FactKind string

const (
	FactNone       FactKind = "none"
	FactTypeID     FactKind = "type_id"
	FactTableIndex FactKind = "table_index"
)

// supportedFormats is the range of profile format versions this build reads.
var supportedFormats = version.MustConstraints(version.NewConstraint(">= 1.0, < 2.0"))

//go:embed profiles/emscripten.toml
var emscriptenProfile []byte

// Target describes one function whose body is replaced.
type Target struct {
	Name        string   `toml:"name" yaml:"name"`
	Header      string   `toml:"header" yaml:"header"`
	Fact        FactKind `toml:"fact" yaml:"fact"`
	Placeholder string   `toml:"placeholder" yaml:"placeholder"`
	// KeepHeader emits the matched header line ahead of the template. Templates
	// written as bare bodies need it; templates that restate the signature do not.
	KeepHeader bool   `toml:"keep_header" yaml:"keep_header"`
	Template   string `toml:"template" yaml:"template"`
}

// Profile is the table of markers, sentinel and templates for one module flavor.
type Profile struct {
	Name          string `toml:"name" yaml:"name"`
	FormatVersion string `toml:"format_version" yaml:"format_version"`

	TypeMarker string `toml:"type_marker" yaml:"type_marker"`
	Signature  string `toml:"signature" yaml:"signature"`

	SegmentMarker    string `toml:"segment_marker" yaml:"segment_marker"`
	SegmentListToken string `toml:"segment_list_token" yaml:"segment_list_token"`
	Sentinel         string `toml:"sentinel" yaml:"sentinel"`

	Targets []Target `toml:"target" yaml:"targets"`
}

// DefaultProfile returns the built-in emscripten profile.
func DefaultProfile() *Profile {
	p, err := decodeProfile(emscriptenProfile, ".toml")
	if err != nil {
		// embedded data is fixed at build time
		panic(err)
	}
	return p
}

// LoadProfile reads a profile from a TOML or YAML file, chosen by extension.
// An empty path yields the built-in profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalidProfile("reading "+path, err)
	}
	p, err := decodeProfile(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

func decodeProfile(data []byte, ext string) (*Profile, error) {
	p := &Profile{}
	switch ext {
	case ".toml", "":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(p); err != nil {
			return nil, errors.WrapInvalidProfile("parsing TOML", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, errors.WrapInvalidProfile("parsing YAML", err)
		}
	default:
		return nil, errors.WrapInvalidProfile(fmt.Sprintf("unsupported profile format %q", ext), nil)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) applyDefaults() {
	if p.FormatVersion == "" {
		p.FormatVersion = "1.0"
	}
	if p.SegmentListToken == "" {
		p.SegmentListToken = "func"
	}
	for i := range p.Targets {
		t := &p.Targets[i]
		if t.Fact == "" {
			t.Fact = FactNone
		}
		t.Template = strings.TrimRight(t.Template, "\r\n")
	}
}

// Validate checks the profile is usable by the scanner and rewriter.
func (p *Profile) Validate() error {
	v, err := version.NewVersion(p.FormatVersion)
	if err != nil {
		return errors.WrapInvalidProfile("format_version", err)
	}
	if !supportedFormats.Check(v) {
		return errors.WrapInvalidProfile(fmt.Sprintf("format_version %s not in %s", v.Original(), supportedFormats), nil)
	}

	for _, f := range []struct{ key, val string }{
		{"type_marker", p.TypeMarker},
		{"signature", p.Signature},
		{"segment_marker", p.SegmentMarker},
		{"sentinel", p.Sentinel},
	} {
		if strings.TrimSpace(f.val) == "" {
			return errors.WrapInvalidProfile(f.key+" is empty", nil)
		}
	}
	if strings.ContainsAny(p.SegmentListToken, " \t") {
		return errors.WrapInvalidProfile("segment_list_token must be a single token", nil)
	}

	if len(p.Targets) == 0 {
		return errors.WrapInvalidProfile("no targets", nil)
	}
	names := make(map[string]bool, len(p.Targets))
	headers := make(map[string]bool, len(p.Targets))
	for i, t := range p.Targets {
		if t.Name == "" {
			return errors.WrapInvalidProfile(fmt.Sprintf("target %d has no name", i), nil)
		}
		if names[t.Name] {
			return errors.WrapInvalidProfile("duplicate target "+t.Name, nil)
		}
		names[t.Name] = true
		if strings.TrimSpace(t.Header) == "" {
			return errors.WrapInvalidProfile("target "+t.Name+" has no header", nil)
		}
		if headers[t.Header] {
			return errors.WrapInvalidProfile("duplicate header "+t.Header, nil)
		}
		headers[t.Header] = true

		switch t.Fact {
		case FactNone:
		case FactTypeID, FactTableIndex:
			if t.Placeholder == "" {
				return errors.WrapInvalidProfile("target "+t.Name+" binds a fact but has no placeholder", nil)
			}
			if !strings.Contains(t.Template, t.Placeholder) {
				return errors.WrapInvalidProfile(fmt.Sprintf("target %s template lacks placeholder %q", t.Name, t.Placeholder), nil)
			}
		default:
			return errors.WrapInvalidProfile(fmt.Sprintf("target %s has unknown fact %q", t.Name, t.Fact), nil)
		}
		// A body template closes the header's open paren; a full template
		// restates the function and must balance on its own.
		balance := parenBalance(t.Template)
		if t.KeepHeader && balance != -1 {
			return errors.WrapInvalidProfile(fmt.Sprintf("target %s body template has paren balance %d, want -1", t.Name, balance), nil)
		}
		if !t.KeepHeader && balance != 0 {
			return errors.WrapInvalidProfile(fmt.Sprintf("target %s template has paren balance %d, want 0", t.Name, balance), nil)
		}
	}
	return nil
}

// Needs reports whether any target consumes the given fact.
func (p *Profile) Needs(kind FactKind) bool {
	for _, t := range p.Targets {
		if t.Fact == kind {
			return true
		}
	}
	return false
}

// Encode writes the profile as TOML.
func (p *Profile) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
