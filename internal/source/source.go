// Package source reads frames from capture streams, line-oriented logs or
// a live interface.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"firestige.xyz/ferry/internal/core"
)

// Kind tells which converter a source feeds.
type Kind int

const (
	KindPacket Kind = iota // frames carry a 16-byte capture-record header
	KindLine
)

func (k Kind) String() string {
	if k == KindPacket {
		return "packet"
	}
	return "line"
}

// Source yields frames until core.ErrEndOfInput. Any other error wraps
// core.ErrSourceIO. A returned frame is valid until the next call.
type Source interface {
	Next(ctx context.Context) (core.Frame, error)
	// Skip discards the next n frames.
	Skip(ctx context.Context, n int) error
	LinkType() uint32
	Kind() Kind
	Close() error
}

// Options tune file and stream sources.
type Options struct {
	MaxLineBytes int
}

const (
	DefaultMaxLineBytes = 1 << 20
	peekBufferSize      = 64 << 10
)

// Capture-stream magic numbers as they appear on disk: microsecond and
// nanosecond variants in both byte orders.
var captureMagics = [][]byte{
	{0xa1, 0xb2, 0xc3, 0xd4},
	{0xd4, 0xc3, 0xb2, 0xa1},
	{0xa1, 0xb2, 0x3c, 0x4d},
	{0x4d, 0x3c, 0xb2, 0xa1},
}

// IsCaptureMagic reports whether b starts with a capture-stream magic.
func IsCaptureMagic(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	for _, m := range captureMagics {
		if bytes.Equal(b[:4], m) {
			return true
		}
	}
	return false
}

// Open opens path ("-" for stdin) and picks the source type from the
// first four bytes.
func Open(path string, opts Options) (Source, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		rc, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSourceIO, err)
		}
	}

	s, err := NewReader(rc, opts)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return s, nil
}

// NewReader detects the stream type of r. The returned source closes r
// when closed if r is an io.Closer.
func NewReader(r io.Reader, opts Options) (Source, error) {
	br := bufio.NewReaderSize(r, peekBufferSize)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", core.ErrSourceIO, err)
	}
	closer, _ := r.(io.Closer)

	if IsCaptureMagic(head) {
		return newPcapSource(br, closer)
	}
	return newLineSource(br, closer, opts.MaxLineBytes), nil
}

// skip advances s by n frames.
func skip(ctx context.Context, s Source, n int) error {
	for i := 0; i < n; i++ {
		if _, err := s.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}

func closeIf(c io.Closer) error {
	if c == nil {
		return nil
	}
	return c.Close()
}
