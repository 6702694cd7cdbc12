package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a failure to parse a DUBP document, naming the document
// kind ("Block", "Identity", ...) that was being parsed.
type ParseError struct {
	Kind string
	Msg  string
}

func (e *ParseError) Error() string {
	return e.Kind + ": " + e.Msg
}

func newParseError(kind, format string, args ...any) error {
	return &ParseError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// splitLines splits a canonical DUBP document's text into its lines. Every
// canonical/full text produced by this package ends each line, including
// the last, with "\n", so the trailing empty element produced by
// strings.Split is dropped.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// expectLine checks that lines[i] is exactly the expected literal line.
func expectLine(kind string, lines []string, i int, expected string) error {
	if i < 0 || i >= len(lines) {
		return newParseError(kind, "expected line %q at index %d, but document has only %d lines", expected, i, len(lines))
	}
	if lines[i] != expected {
		return newParseError(kind, "expected line %q, got %q", expected, lines[i])
	}
	return nil
}

// expectField checks that lines[i] is "<fieldName>: <value>" and returns
// the value.
func expectField(kind string, lines []string, i int, fieldName string) (string, error) {
	if i < 0 || i >= len(lines) {
		return "", newParseError(kind, "expected field %q at index %d, but document has only %d lines", fieldName, i, len(lines))
	}
	prefix := fieldName + ": "
	line := lines[i]
	if !strings.HasPrefix(line, prefix) {
		return "", newParseError(kind, "expected field %q, got %q", fieldName, line)
	}
	return line[len(prefix):], nil
}

// parseUint parses a base-10 unsigned integer field.
func parseUint(kind, fieldName, s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, newParseError(kind, "%s: invalid integer %q: %v", fieldName, s, err)
	}
	return n, nil
}

// parseInt parses a base-10 signed integer field.
func parseInt(kind, fieldName, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, newParseError(kind, "%s: invalid integer %q: %v", fieldName, s, err)
	}
	return n, nil
}

// formatUint renders an unsigned integer field the way every DUBP codec in
// this package expects: base 10, no grouping.
func formatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}
