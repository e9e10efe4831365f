package decoder

import (
	"errors"
	"testing"

	"firestige.xyz/ferry/internal/core"
)

func TestHandleUDP(t *testing.T) {
	// Minimal UDP header (8 bytes)
	data := []byte{
		0x13, 0x88, // Src Port: 5000
		0x13, 0x89, // Dst Port: 5001
		0x00, 0x0C, // Length: 12 bytes (8 header + 4 payload)
		0x00, 0x00, // Checksum
		0x01, 0x02, 0x03, 0x04, // Payload
	}

	c, res := newCursor(data)
	if err := handleUDP(c); err != nil {
		t.Fatalf("handleUDP failed: %v", err)
	}

	if res.Transport != LayerUDP {
		t.Errorf("Expected UDP, got %v", res.Transport)
	}
	if res.Tuple.SrcPort != 5000 || res.Tuple.DstPort != 5001 {
		t.Errorf("Expected ports 5000/5001, got %d/%d", res.Tuple.SrcPort, res.Tuple.DstPort)
	}
	if c.Remaining() != 4 {
		t.Errorf("Expected payload length 4, got %d", c.Remaining())
	}
}

func TestHandleTCP(t *testing.T) {
	// TCP header with 4 bytes of options (data offset 6)
	data := []byte{
		0x13, 0x88, // Src Port: 5000
		0x13, 0x89, // Dst Port: 5001
		0x00, 0x00, 0x00, 0x01, // Seq Num: 1
		0x00, 0x00, 0x00, 0x02, // Ack Num: 2
		0x60,                   // Data Offset: 6 (24 bytes)
		0x18,                   // Flags: PSH, ACK
		0xFF, 0xFF,             // Window
		0x00, 0x00,             // Checksum
		0x00, 0x00,             // Urgent pointer
		0x02, 0x04, 0x05, 0xB4, // MSS option
	}

	c, res := newCursor(data)
	if err := handleTCP(c); err != nil {
		t.Fatalf("handleTCP failed: %v", err)
	}
	if res.Tuple.SrcPort != 5000 || res.Tuple.DstPort != 5001 {
		t.Errorf("Expected ports 5000/5001, got %d/%d", res.Tuple.SrcPort, res.Tuple.DstPort)
	}
	// Options are not walked
	if c.offset != 20 {
		t.Errorf("Expected offset 20, got %d", c.offset)
	}
}

func TestHandleTransportTooShort(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		size    int
	}{
		{"tcp", handleTCP, 19},
		{"udp", handleUDP, 7},
		{"icmp", handleICMP, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCursor(make([]byte, tt.size))
			if err := tt.handler(c); !errors.Is(err, core.ErrPacketTooShort) {
				t.Errorf("Expected ErrPacketTooShort, got %v", err)
			}
		})
	}
}
