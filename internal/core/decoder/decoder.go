// Package decoder implements the L2-L4 protocol dissector.
//
// Dissection is a three-stage walk (link, network, transport). At every stage
// the numeric type code left by the previous stage selects a handler from a
// registry. An unknown code ends the walk without error; a bounds failure
// aborts it with core.ErrPacketTooShort.
package decoder

import (
	"fmt"

	"firestige.xyz/ferry/internal/core"
)

// Decoder dissects raw link-layer frames.
type Decoder interface {
	Dissect(frame []byte, linkType uint32) (Result, error)
}

// LayerKind names the protocol recognized at one stage.
type LayerKind uint8

const (
	LayerNone LayerKind = iota // stage not reached
	LayerNull                  // unrecognized type code, walk ended here
	LayerEthernet
	LayerIPv4
	LayerARP
	LayerTCP
	LayerUDP
	LayerICMP
)

var layerNames = [...]string{"none", "null", "ethernet", "ipv4", "arp", "tcp", "udp", "icmp"}

func (k LayerKind) String() string {
	if int(k) < len(layerNames) {
		return layerNames[k]
	}
	return fmt.Sprintf("layer(%d)", uint8(k))
}

// Result is the outcome of one dissection.
type Result struct {
	Link      LayerKind
	Network   LayerKind
	Transport LayerKind

	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16

	// Tuple is valid when HasTuple is set (an IPv4 header was decoded).
	// Ports are zero unless a TCP or UDP header was decoded.
	Tuple    core.FiveTuple
	HasTuple bool
	Fragment bool // non-first IPv4 fragment, transport not walked

	// PayloadOffset is the cursor position where the walk ended.
	PayloadOffset int
}

// Payload returns the bytes of frame after the last decoded header.
func (r Result) Payload(frame []byte) []byte {
	if r.PayloadOffset >= len(frame) {
		return nil
	}
	return frame[r.PayloadOffset:]
}

// Cursor is the transient layer context of one dissection: the frame, the
// current offset, and the type code selecting the next handler.
type Cursor struct {
	data   []byte
	offset int
	next   uint32
	stop   bool
	res    *Result
}

// Remaining returns the number of bytes after the cursor.
func (c *Cursor) Remaining() int { return len(c.data) - c.offset }

// Peek returns the next n bytes without advancing. It fails with
// core.ErrPacketTooShort when fewer than n bytes remain.
func (c *Cursor) Peek(n int, layer string) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", core.ErrPacketTooShort, layer, n, c.Remaining())
	}
	return c.data[c.offset : c.offset+n], nil
}

// Advance moves the cursor n bytes forward. Callers bounds-check with Peek first.
func (c *Cursor) Advance(n int) { c.offset += n }

// SetNext records the type code for the next stage.
func (c *Cursor) SetNext(code uint32) { c.next = code }

// Stop ends the walk after the current handler.
func (c *Cursor) Stop() { c.stop = true }

// Result exposes the result under construction.
func (c *Cursor) Result() *Result { return c.res }

// Handler decodes one layer at the cursor.
type Handler func(c *Cursor) error

// Dissector walks link → network → transport using per-stage registries.
// Registries are populated at construction; a Dissector is safe for
// concurrent use once built.
type Dissector struct {
	link      map[uint32]Handler
	network   map[uint16]Handler
	transport map[uint8]Handler
}

// NewDissector returns a dissector with Ethernet, IPv4, ARP, TCP, UDP and
// ICMP registered.
func NewDissector() *Dissector {
	d := &Dissector{
		link:      make(map[uint32]Handler),
		network:   make(map[uint16]Handler),
		transport: make(map[uint8]Handler),
	}
	d.RegisterLink(core.LinkTypeEthernet, handleEthernet)
	d.RegisterNetwork(etherTypeIPv4, handleIPv4)
	d.RegisterNetwork(etherTypeARP, handleARP)
	d.RegisterTransport(core.ProtoTCP, handleTCP)
	d.RegisterTransport(core.ProtoUDP, handleUDP)
	d.RegisterTransport(core.ProtoICMP, handleICMP)
	return d
}

// RegisterLink installs h for a capture link type.
func (d *Dissector) RegisterLink(linkType uint32, h Handler) { d.link[linkType] = h }

// RegisterNetwork installs h for an ethertype.
func (d *Dissector) RegisterNetwork(etherType uint16, h Handler) { d.network[etherType] = h }

// RegisterTransport installs h for an IP protocol number.
func (d *Dissector) RegisterTransport(proto uint8, h Handler) { d.transport[proto] = h }

// Dissect decodes frame. On error the partially filled result is returned
// alongside it; callers must treat the frame as malformed.
func (d *Dissector) Dissect(frame []byte, linkType uint32) (Result, error) {
	var res Result
	c := &Cursor{data: frame, res: &res}

	h, ok := d.link[linkType]
	if !ok {
		res.Link = LayerNull
		return res, nil
	}
	if err := d.step(c, h); err != nil || c.stop {
		return res, err
	}

	h, ok = d.network[uint16(c.next)]
	if !ok {
		res.Network = LayerNull
		return res, nil
	}
	if err := d.step(c, h); err != nil || c.stop {
		return res, err
	}

	h, ok = d.transport[uint8(c.next)]
	if !ok {
		res.Transport = LayerNull
		return res, nil
	}
	return res, d.step(c, h)
}

func (d *Dissector) step(c *Cursor, h Handler) error {
	err := h(c)
	c.res.PayloadOffset = c.offset
	return err
}
