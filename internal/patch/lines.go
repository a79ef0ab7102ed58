// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bufio"
	"io"
	"strings"
)

// lineReader yields lines with their terminators intact so passthrough output
// is byte-identical. Lines have no length limit.
type lineReader struct {
	r      *bufio.Reader
	lineNo int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns io.EOF only when no bytes remain. A final line without a
// newline is returned as is.
func (lr *lineReader) next() (string, error) {
	line, err := lr.r.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return "", io.EOF
		}
		err = nil
	}
	if err != nil {
		return "", err
	}
	lr.lineNo++
	return line, nil
}

func trimEOL(raw string) string {
	raw = strings.TrimSuffix(raw, "\n")
	return strings.TrimSuffix(raw, "\r")
}

// eolOf returns the terminator of raw, defaulting to "\n" for a final line.
func eolOf(raw string) string {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return "\r\n"
	default:
		return "\n"
	}
}

// parenBalance is the count of '(' minus the count of ')'.
func parenBalance(s string) int {
	return strings.Count(s, "(") - strings.Count(s, ")")
}
