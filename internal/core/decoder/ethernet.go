// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/ferry/internal/core"
)

const (
	ethernetHeaderLen = 14

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806
)

// MinHeaderLen returns the minimum link header size for a capture link type.
func MinHeaderLen(linkType uint32) int {
	if linkType == core.LinkTypeEthernet {
		return ethernetHeaderLen
	}
	return 0
}

// handleEthernet decodes the 14-byte Ethernet II header. VLAN tags are not
// walked; a tagged frame ends at the network stage as null.
func handleEthernet(c *Cursor) error {
	data, err := c.Peek(ethernetHeaderLen, "ethernet")
	if err != nil {
		return err
	}
	res := c.Result()
	res.Link = LayerEthernet

	// Destination MAC (6 bytes)
	copy(res.DstMAC[:], data[0:6])

	// Source MAC (6 bytes)
	copy(res.SrcMAC[:], data[6:12])

	// EtherType (2 bytes)
	res.EtherType = binary.BigEndian.Uint16(data[12:14])

	c.SetNext(uint32(res.EtherType))
	c.Advance(ethernetHeaderLen)
	return nil
}
