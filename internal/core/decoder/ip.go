// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/ferry/internal/core"
)

const (
	ipv4HeaderMinLen = 20
)

// handleIPv4 decodes the IPv4 header and skips its options.
func handleIPv4(c *Cursor) error {
	data, err := c.Peek(ipv4HeaderMinLen, "ipv4")
	if err != nil {
		return err
	}

	// IHL (Internet Header Length) - lower 4 bits of first byte, in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen {
		return fmt.Errorf("%w: ipv4 header length %d", core.ErrMalformedInput, headerLen)
	}

	// Options region must be present as well
	if headerLen > ipv4HeaderMinLen {
		if _, err := c.Peek(headerLen, "ipv4 options"); err != nil {
			return err
		}
	}

	res := c.Result()
	res.Network = LayerIPv4
	res.HasTuple = true
	res.Tuple = core.FiveTuple{
		SrcIP: binary.BigEndian.Uint32(data[12:16]),
		DstIP: binary.BigEndian.Uint32(data[16:20]),
		Proto: data[9],
	}

	c.Advance(headerLen)
	c.SetNext(uint32(data[9]))

	// Flags and Fragment Offset (2 bytes at offset 6). Non-first fragments
	// carry no transport header.
	if binary.BigEndian.Uint16(data[6:8])&0x1FFF != 0 {
		res.Fragment = true
		c.Stop()
	}
	return nil
}

// handleARP recognizes ARP without extracting fields.
func handleARP(c *Cursor) error {
	c.Result().Network = LayerARP
	c.Stop()
	return nil
}
