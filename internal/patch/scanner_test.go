// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/watpatch/internal/errors"
)

func scan(t *testing.T, text string) Facts {
	t.Helper()
	facts, err := NewScanner(DefaultProfile()).Scan(context.Background(), strings.NewReader(text))
	require.NoError(t, err)
	return facts
}

func TestScanFirstMatchingTypeWins(t *testing.T) {
	facts := scan(t, `(module
  (type (;0;) (func (param i32)))
  (type (;1;) (func (param i32 i32 i32) (result i64)))
  (type (;2;) (func (param i32 i32 i32 i32) (result i32)))
  (type (;3;) (func (param i32 i32 i32) (result i32)))
  (type (;4;) (func (param i32 i32 i32) (result i32)))
`)
	assert.Equal(t, "3", facts.TypeID)
	assert.Equal(t, 5, facts.TypeLine)
}

func TestScanScenarioA(t *testing.T) {
	facts := scan(t, `(module
  (type (;7;) (func (param i32 i32 i32) (result i32)))
  (elem (;0;) (i32.const 1) func $x $y $do_callback $z)
)`)
	assert.Equal(t, "7", facts.TypeID)
	assert.Equal(t, 2, facts.TableIndex)
	assert.Equal(t, 4, facts.TableLen)
	assert.Equal(t, 3, facts.SegmentLine)
	require.NoError(t, facts.Validate(DefaultProfile()))
}

func TestScanPrefersDeclaredIdentifier(t *testing.T) {
	facts := scan(t, `  (type $callback_t (;7;) (func (param i32 i32 i32) (result i32)))`)
	assert.Equal(t, "$callback_t", facts.TypeID)
	assert.Equal(t, "$callback_t", facts.Value(FactTypeID))
}

func TestScanIgnoresTypeUseInFunctionHeader(t *testing.T) {
	facts := scan(t, `  (func $f (type 3) (param i32 i32 i32) (result i32)
  (type (;9;) (func (param i32 i32 i32) (result i32)))
`)
	assert.Equal(t, "9", facts.TypeID)
	assert.Equal(t, 2, facts.TypeLine)
}

func TestScanTableIndexIsZeroBased(t *testing.T) {
	facts := scan(t, `(elem (;0;) (i32.const 1) func $a $b $do_callback $c)`)
	assert.Equal(t, 2, facts.TableIndex)
	assert.Equal(t, "2", facts.Value(FactTableIndex))

	facts = scan(t, `(elem (;0;) (i32.const 1) func $do_callback)`)
	assert.Equal(t, 0, facts.TableIndex)
	assert.Equal(t, 1, facts.TableLen)
}

func TestScanOnlyFirstSegmentIsInspected(t *testing.T) {
	facts := scan(t, `(type (;1;) (func (param i32 i32 i32) (result i32)))
(elem (;0;) (i32.const 1) func $a $b)
(elem (;0;) (i32.const 9) func $do_callback)
`)
	assert.False(t, facts.HasTableIndex())

	err := facts.Validate(DefaultProfile())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedSegment)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "$do_callback absent")
}

func TestScanSegmentWithoutFuncToken(t *testing.T) {
	facts := scan(t, `(type (;1;) (func (param i32 i32 i32) (result i32)))
(elem (;0;) (i32.const 1) $a $do_callback)
`)
	err := facts.Validate(DefaultProfile())
	assert.ErrorIs(t, err, errors.ErrMalformedSegment)
	assert.Contains(t, err.Error(), `no "func" token`)
}

func TestScanFuncTokenIsWholeWord(t *testing.T) {
	facts := scan(t, `(elem (;0;) (i32.const 1) func $funcptr $do_callback)`)
	assert.Equal(t, 1, facts.TableIndex)
}

func TestScanScenarioBMissingSegment(t *testing.T) {
	facts := scan(t, `(module
  (type (;1;) (func (param i32 i32 i32) (result i32)))
)`)
	assert.Equal(t, "1", facts.TypeID)
	assert.Equal(t, -1, facts.TableIndex)

	err := facts.Validate(DefaultProfile())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingFact)
	assert.Contains(t, err.Error(), "table index of $do_callback")
	assert.NotContains(t, err.Error(), "type id")
}

func TestScanBothFactsMissing(t *testing.T) {
	facts := scan(t, "(module)\n")
	err := facts.Validate(DefaultProfile())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingFact)
	assert.Contains(t, err.Error(), "type id")
	assert.Contains(t, err.Error(), "table index")
}

func TestScanHandlesVeryLongLines(t *testing.T) {
	refs := make([]string, 0, 200000)
	for i := 0; i < 200000; i++ {
		refs = append(refs, "$f")
	}
	refs = append(refs, "$do_callback")
	facts := scan(t, "(elem (;0;) (i32.const 1) func "+strings.Join(refs, " ")+")\n")
	assert.Equal(t, 200000, facts.TableIndex)
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner(DefaultProfile()).Scan(ctx, strings.NewReader("(module)\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeclaredTypeID(t *testing.T) {
	tests := []struct {
		line string
		id   string
		ok   bool
	}{
		{"(type (;7;) (func (param i32 i32 i32) (result i32)))", "7", true},
		{"(type $t (func (param i32 i32 i32) (result i32)))", "$t", true},
		{"(type (;2;) $t (func))", "$t", true},
		{"(type 3) (param i32 i32 i32) (result i32)", "", false},
		{"(type (;x;) (func))", "", false},
		{"(type (;4 (func))", "", false},
		{"(func)", "", false},
	}
	for _, tt := range tests {
		id, ok := declaredTypeID(tt.line, "(type")
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.id, id, tt.line)
	}
}
