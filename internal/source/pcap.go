package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/ferry/internal/core"
)

// pcapSource reads a capture stream and re-emits each packet as a
// capture-record header followed by the packet bytes.
type pcapSource struct {
	r      *pcapgo.Reader
	closer io.Closer
	buf    []byte
}

func newPcapSource(r io.Reader, closer io.Closer) (*pcapSource, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read capture preamble: %v", core.ErrSourceIO, err)
	}
	return &pcapSource{r: pr, closer: closer}, nil
}

func (s *pcapSource) Next(ctx context.Context) (core.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ci, err := s.r.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, core.ErrEndOfInput
		}
		return nil, fmt.Errorf("%w: read capture record: %v", core.ErrSourceIO, err)
	}

	s.buf = core.AppendCaptureHeader(s.buf[:0], core.CaptureHeader{
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
	})
	s.buf = append(s.buf, data...)
	return s.buf, nil
}

func (s *pcapSource) Skip(ctx context.Context, n int) error { return skip(ctx, s, n) }

func (s *pcapSource) LinkType() uint32 { return uint32(s.r.LinkType()) }

func (s *pcapSource) Kind() Kind { return KindPacket }

func (s *pcapSource) Close() error { return closeIf(s.closer) }
