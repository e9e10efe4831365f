package source

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"firestige.xyz/ferry/internal/core"
)

// lineSource yields one frame per line, without the line terminator.
// Lines longer than the configured maximum fail with core.ErrSourceIO.
type lineSource struct {
	sc     *bufio.Scanner
	closer io.Closer
}

func newLineSource(r io.Reader, closer io.Closer, maxLine int) *lineSource {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(maxLine, 64<<10)), maxLine)
	return &lineSource{sc: sc, closer: closer}
}

func (s *lineSource) Next(ctx context.Context) (core.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return nil, fmt.Errorf("%w: read line: %v", core.ErrSourceIO, err)
		}
		return nil, core.ErrEndOfInput
	}
	// ScanLines already drops a trailing \r.
	return s.sc.Bytes(), nil
}

func (s *lineSource) Skip(ctx context.Context, n int) error { return skip(ctx, s, n) }

// LinkType is meaningless for text input.
func (s *lineSource) LinkType() uint32 { return core.LinkTypeNull }

func (s *lineSource) Kind() Kind { return KindLine }

func (s *lineSource) Close() error { return closeIf(s.closer) }
