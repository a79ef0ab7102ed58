// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrMissingFact        = errors.New("missing fact")
	ErrMalformedSegment   = errors.New("malformed element segment")
	ErrInvalidProfile     = errors.New("invalid profile")
	ErrConfig             = errors.New("configuration error")
	ErrIO                 = errors.New("i/o failure")
	ErrHistory            = errors.New("history store error")
	ErrUnterminatedRegion = errors.New("unterminated target region")
)

// Wrap functions for consistent error wrapping
func WrapMissingFact(facts ...string) error {
	return fmt.Errorf("%w: %s not found in module text", ErrMissingFact, strings.Join(facts, " and "))
}

func WrapMalformedSegment(msg string) error {
	return fmt.Errorf("%w: %s", ErrMalformedSegment, msg)
}

func WrapInvalidProfile(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidProfile, msg, err)
}

func WrapConfigError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConfig, msg, err)
}

func WrapIO(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

func WrapHistory(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrHistory, msg, err)
}

func WrapUnterminatedRegion(target string, depth int) error {
	return fmt.Errorf("%w: %s still open at end of input (depth %d)", ErrUnterminatedRegion, target, depth)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsFatalScan reports whether err means the input does not have the shape the
// profile expects. Retrying with the same input cannot succeed.
func IsFatalScan(err error) bool {
	return errors.Is(err, ErrMissingFact) || errors.Is(err, ErrMalformedSegment)
}
