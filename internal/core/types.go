// Package core defines core types with zero external dependencies.
package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Link-layer types as carried in the capture-stream preamble.
const (
	LinkTypeNull     uint32 = 0
	LinkTypeEthernet uint32 = 1
	LinkTypeRaw      uint32 = 101
)

// IP protocol numbers recognized by the dissector.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// FiveTuple identifies one direction of an IPv4 flow. Addresses are host order.
type FiveTuple struct {
	SrcIP   uint32
	DstIP   uint32
	Proto   uint8
	SrcPort uint16
	DstPort uint16
}

// Reverse returns the tuple of the opposite direction.
func (t FiveTuple) Reverse() FiveTuple {
	return FiveTuple{
		SrcIP:   t.DstIP,
		DstIP:   t.SrcIP,
		Proto:   t.Proto,
		SrcPort: t.DstPort,
		DstPort: t.SrcPort,
	}
}

// SrcAddr returns the source address as netip.Addr.
func (t FiveTuple) SrcAddr() netip.Addr { return addrFromUint32(t.SrcIP) }

// DstAddr returns the destination address as netip.Addr.
func (t FiveTuple) DstAddr() netip.Addr { return addrFromUint32(t.DstIP) }

func (t FiveTuple) String() string {
	return fmt.Sprintf("%s:%d-%s:%d/%d", t.SrcAddr(), t.SrcPort, t.DstAddr(), t.DstPort, t.Proto)
}

func addrFromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// Status is the outcome of converting one frame.
type Status int

const (
	// StatusSuccess means the frame was accepted and recorded (or sampled).
	StatusSuccess Status = iota
	// StatusPass means the frame matched the suppression filter and was dropped.
	StatusPass
	// StatusFail means the frame was malformed or too short.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
