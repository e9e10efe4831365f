//go:build linux

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/ferry/internal/core"
)

// liveSource captures from a TPACKET_V3 ring. Frames carry a synthesized
// capture-record header like capture-stream frames.
type liveSource struct {
	handle *afpacket.TPacket
	buf    []byte
}

// OpenLive opens an AF_PACKET socket on cfg.Interface.
func OpenLive(cfg LiveConfig) (Source, error) {
	cfg = cfg.withDefaults()

	frameSize, blockSize, numBlocks, err := ringSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	prog, err := ParseBPF(cfg.BPF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(cfg.PollTimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrSourceIO, cfg.Interface, err)
	}

	if len(prog) > 0 {
		if err := tp.SetBPF(prog); err != nil {
			tp.Close()
			return nil, fmt.Errorf("%w: attach bpf: %v", core.ErrSourceIO, err)
		}
	}
	return &liveSource{handle: tp}, nil
}

// Next blocks until a packet arrives or ctx is done.
func (s *liveSource) Next(ctx context.Context) (core.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, ci, err := s.handle.ZeroCopyReadPacketData()
		if errors.Is(err, afpacket.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSourceIO, err)
		}
		s.buf = core.AppendCaptureHeader(s.buf[:0], core.CaptureHeader{
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		})
		s.buf = append(s.buf, data...)
		return s.buf, nil
	}
}

func (s *liveSource) Skip(ctx context.Context, n int) error { return skip(ctx, s, n) }

func (s *liveSource) LinkType() uint32 { return core.LinkTypeEthernet }

func (s *liveSource) Kind() Kind { return KindPacket }

func (s *liveSource) Close() error {
	s.handle.Close()
	return nil
}
