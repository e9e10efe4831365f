// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors following the wrap-and-compare pattern: callers wrap with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// Per-record errors, never fatal to the ingest loop
	ErrPacketTooShort = errors.New("ferry: packet too short")
	ErrMalformedInput = errors.New("ferry: malformed input")

	// Source errors
	ErrEndOfInput = errors.New("ferry: end of input")
	ErrSourceIO   = errors.New("ferry: source i/o error")

	// Sink errors
	ErrSinkWrite  = errors.New("ferry: sink write failed")
	ErrSinkClosed = errors.New("ferry: sink closed")

	// Pattern matcher errors
	ErrPatternCompile = errors.New("ferry: pattern compile failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("ferry: invalid configuration")
)
