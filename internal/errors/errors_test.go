// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	assert.NotNil(t, ErrMissingFact)
	assert.NotNil(t, ErrMalformedSegment)
	assert.NotNil(t, ErrInvalidProfile)
	assert.NotNil(t, ErrConfig)
	assert.NotNil(t, ErrIO)
	assert.NotNil(t, ErrHistory)
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("base error")

	wrappedErr := WrapMissingFact("type id", "table index")
	assert.True(t, errors.Is(wrappedErr, ErrMissingFact))
	assert.Contains(t, wrappedErr.Error(), "type id and table index")

	wrappedErr = WrapMalformedSegment("sentinel $do_callback absent")
	assert.True(t, errors.Is(wrappedErr, ErrMalformedSegment))
	assert.Contains(t, wrappedErr.Error(), "$do_callback")

	wrappedErr = WrapInvalidProfile("parse", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrInvalidProfile))
	assert.True(t, errors.Is(wrappedErr, baseErr))

	wrappedErr = WrapInvalidProfile("no targets", nil)
	assert.True(t, errors.Is(wrappedErr, ErrInvalidProfile))
	assert.Equal(t, "invalid profile: no targets", wrappedErr.Error())

	wrappedErr = WrapConfigError("failed to read config file", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrConfig))
	assert.True(t, errors.Is(wrappedErr, baseErr))

	wrappedErr = WrapIO("open", "/tmp/in.wat", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrIO))
	assert.True(t, errors.Is(wrappedErr, baseErr))
	assert.Contains(t, wrappedErr.Error(), "/tmp/in.wat")

	wrappedErr = WrapHistory("insert", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrHistory))

	wrappedErr = WrapUnterminatedRegion("do_callback", 2)
	assert.True(t, errors.Is(wrappedErr, ErrUnterminatedRegion))
	assert.Contains(t, wrappedErr.Error(), "do_callback still open at end of input (depth 2)")
	assert.False(t, IsFatalScan(wrappedErr))
}

func TestIsFatalScan(t *testing.T) {
	assert.True(t, IsFatalScan(WrapMissingFact("type id")))
	assert.True(t, IsFatalScan(fmt.Errorf("scan: %w", WrapMalformedSegment("x"))))
	assert.False(t, IsFatalScan(WrapIO("read", "x", fmt.Errorf("eof"))))
	assert.False(t, IsFatalScan(nil))
}
