// Package core defines core data structures with zero external dependencies.
package core

import (
	"encoding/binary"
	"time"
)

// CaptureHeaderLen is the size of the per-frame capture-record header:
// ts_sec, ts_frac, caplen, origlen, each 32 bits.
const CaptureHeaderLen = 16

// Frame is one raw captured packet (capture-record header followed by the
// link-layer frame) or one log line. It is only valid for the duration of a
// single Convert call; consumers copy what they keep.
type Frame []byte

// CaptureHeader is the decoded form of the capture-record header.
type CaptureHeader struct {
	Timestamp  time.Time
	CaptureLen uint32
	OrigLen    uint32
}

// AppendCaptureHeader appends the 16-byte record header in little-endian
// order with a microsecond fraction.
func AppendCaptureHeader(dst []byte, h CaptureHeader) []byte {
	var b [CaptureHeaderLen]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.Timestamp.Unix()))
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.Timestamp.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(b[8:12], h.CaptureLen)
	binary.LittleEndian.PutUint32(b[12:16], h.OrigLen)
	return append(dst, b[:]...)
}

// ParseCaptureHeader reads a header written by AppendCaptureHeader.
func ParseCaptureHeader(b []byte) (CaptureHeader, error) {
	if len(b) < CaptureHeaderLen {
		return CaptureHeader{}, ErrPacketTooShort
	}
	sec := binary.LittleEndian.Uint32(b[0:4])
	usec := binary.LittleEndian.Uint32(b[4:8])
	return CaptureHeader{
		Timestamp:  time.Unix(int64(sec), int64(usec)*1000),
		CaptureLen: binary.LittleEndian.Uint32(b[8:12]),
		OrigLen:    binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}
