// Package testutil builds synthetic frames for tests.
package testutil

import (
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/ferry/internal/core"
)

var (
	SrcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	DstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

// FrameSpec describes an Ethernet/IPv4 frame to serialize.
type FrameSpec struct {
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	Proto            layers.IPProtocol
	IPOptions        []layers.IPv4Option
	TCPOptions       []layers.TCPOption
	Payload          []byte
}

// Frame serializes spec into Ethernet+IPv4+{TCP,UDP,ICMP} bytes.
func Frame(spec FrameSpec) []byte {
	if spec.SrcIP == nil {
		spec.SrcIP = net.IP{10, 0, 0, 1}
	}
	if spec.DstIP == nil {
		spec.DstIP = net.IP{10, 0, 0, 2}
	}
	if spec.Proto == 0 {
		spec.Proto = layers.IPProtocolTCP
	}

	eth := &layers.Ethernet{
		SrcMAC:       SrcMAC,
		DstMAC:       DstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: spec.Proto,
		SrcIP:    spec.SrcIP.To4(),
		DstIP:    spec.DstIP.To4(),
		Options:  spec.IPOptions,
	}

	serializable := []gopacket.SerializableLayer{eth, ip}
	switch spec.Proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(spec.SrcPort),
			DstPort: layers.TCPPort(spec.DstPort),
			Seq:     1,
			Window:  1024,
			ACK:     true,
			PSH:     true,
			Options: spec.TCPOptions,
		}
		_ = tcp.SetNetworkLayerForChecksum(ip)
		serializable = append(serializable, tcp)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(spec.SrcPort),
			DstPort: layers.UDPPort(spec.DstPort),
		}
		_ = udp.SetNetworkLayerForChecksum(ip)
		serializable = append(serializable, udp)
	case layers.IPProtocolICMPv4:
		serializable = append(serializable, &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       1,
			Seq:      1,
		})
	}
	serializable = append(serializable, gopacket.Payload(spec.Payload))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, serializable...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ARPFrame serializes an Ethernet+ARP request.
func ARPFrame() []byte {
	eth := &layers.Ethernet{
		SrcMAC:       SrcMAC,
		DstMAC:       net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   SrcMAC,
		SourceProtAddress: net.IP{10, 0, 0, 1}.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    net.IP{10, 0, 0, 2}.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WithCaptureHeader prefixes frame with a capture-record header.
func WithCaptureHeader(frame []byte) []byte {
	out := core.AppendCaptureHeader(make([]byte, 0, core.CaptureHeaderLen+len(frame)), core.CaptureHeader{
		Timestamp:  time.Unix(1700000000, 0),
		CaptureLen: uint32(len(frame)),
		OrigLen:    uint32(len(frame)),
	})
	return append(out, frame...)
}
