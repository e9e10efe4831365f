// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
	icmpHeaderLen   = 8
)

// handleTCP decodes TCP ports. Options are not walked: the cursor advances
// by the fixed 20-byte header regardless of the data offset field.
func handleTCP(c *Cursor) error {
	data, err := c.Peek(tcpHeaderMinLen, "tcp")
	if err != nil {
		return err
	}
	res := c.Result()
	res.Transport = LayerTCP
	res.Tuple.SrcPort = binary.BigEndian.Uint16(data[0:2])
	res.Tuple.DstPort = binary.BigEndian.Uint16(data[2:4])
	c.Advance(tcpHeaderMinLen)
	return nil
}

// handleUDP decodes UDP ports.
func handleUDP(c *Cursor) error {
	data, err := c.Peek(udpHeaderLen, "udp")
	if err != nil {
		return err
	}
	res := c.Result()
	res.Transport = LayerUDP
	res.Tuple.SrcPort = binary.BigEndian.Uint16(data[0:2])
	res.Tuple.DstPort = binary.BigEndian.Uint16(data[2:4])
	c.Advance(udpHeaderLen)
	return nil
}

// handleICMP bounds-checks the fixed ICMP header; type and code are not extracted.
func handleICMP(c *Cursor) error {
	if _, err := c.Peek(icmpHeaderLen, "icmp"); err != nil {
		return err
	}
	c.Result().Transport = LayerICMP
	c.Advance(icmpHeaderLen)
	return nil
}
