package core

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"
)

// Test zero values of core structs
func TestStructZeroValues(t *testing.T) {
	t.Run("FiveTuple", func(t *testing.T) {
		var ft FiveTuple
		if ft.SrcPort != 0 || ft.DstPort != 0 {
			t.Errorf("expected zero ports, got src=%d dst=%d", ft.SrcPort, ft.DstPort)
		}
		if ft.SrcAddr() != netip.MustParseAddr("0.0.0.0") {
			t.Errorf("expected 0.0.0.0, got %v", ft.SrcAddr())
		}
	})

	t.Run("Status", func(t *testing.T) {
		var s Status
		if s != StatusSuccess {
			t.Errorf("expected zero Status to be success, got %v", s)
		}
	})
}

func TestFiveTuple(t *testing.T) {
	ft := FiveTuple{
		SrcIP:   0xC0A80101, // 192.168.1.1
		DstIP:   0x0A000002, // 10.0.0.2
		Proto:   ProtoTCP,
		SrcPort: 5060,
		DstPort: 80,
	}

	t.Run("Addresses", func(t *testing.T) {
		if ft.SrcAddr() != netip.MustParseAddr("192.168.1.1") {
			t.Errorf("SrcAddr mismatch: %v", ft.SrcAddr())
		}
		if ft.DstAddr() != netip.MustParseAddr("10.0.0.2") {
			t.Errorf("DstAddr mismatch: %v", ft.DstAddr())
		}
	})

	t.Run("Reverse", func(t *testing.T) {
		r := ft.Reverse()
		if r.SrcIP != ft.DstIP || r.DstIP != ft.SrcIP || r.SrcPort != ft.DstPort || r.DstPort != ft.SrcPort {
			t.Errorf("Reverse mismatch: %+v", r)
		}
		if r.Reverse() != ft {
			t.Errorf("double Reverse should be identity")
		}
	})

	t.Run("String", func(t *testing.T) {
		want := "192.168.1.1:5060-10.0.0.2:80/6"
		if ft.String() != want {
			t.Errorf("expected %q, got %q", want, ft.String())
		}
	})
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusSuccess: "success",
		StatusPass:    "pass",
		StatusFail:    "fail",
		Status(9):     "status(9)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}

func TestCaptureHeader(t *testing.T) {
	ts := time.Unix(1700000000, 123456000)
	h := CaptureHeader{Timestamp: ts, CaptureLen: 60, OrigLen: 1514}

	buf := AppendCaptureHeader(nil, h)
	if len(buf) != CaptureHeaderLen {
		t.Fatalf("expected %d bytes, got %d", CaptureHeaderLen, len(buf))
	}

	got, err := ParseCaptureHeader(buf)
	if err != nil {
		t.Fatalf("ParseCaptureHeader failed: %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp mismatch: %v != %v", got.Timestamp, ts)
	}
	if got.CaptureLen != 60 || got.OrigLen != 1514 {
		t.Errorf("length mismatch: %+v", got)
	}

	if _, err := ParseCaptureHeader(buf[:10]); !errors.Is(err, ErrPacketTooShort) {
		t.Errorf("expected ErrPacketTooShort, got %v", err)
	}
}

func TestReservedFields(t *testing.T) {
	for _, name := range []string{FieldSrc, FieldDst, FieldSport, FieldDport, FieldProto} {
		if !IsReservedField(name) {
			t.Errorf("%q should be reserved", name)
		}
	}
	if IsReservedField(FieldMessage) {
		t.Errorf("%q should not be reserved", FieldMessage)
	}
}

// Test sentinel errors
func TestSentinelErrors(t *testing.T) {
	t.Run("ErrorMessages", func(t *testing.T) {
		tests := []struct {
			err     error
			message string
		}{
			{ErrPacketTooShort, "ferry: packet too short"},
			{ErrEndOfInput, "ferry: end of input"},
			{ErrSinkWrite, "ferry: sink write failed"},
			{ErrPatternCompile, "ferry: pattern compile failed"},
			{ErrConfigInvalid, "ferry: invalid configuration"},
		}

		for _, tt := range tests {
			if tt.err.Error() != tt.message {
				t.Errorf("expected error message %q, got %q", tt.message, tt.err.Error())
			}
		}
	})

	t.Run("ErrorWrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("read frame: %w", ErrSourceIO)
		if !errors.Is(wrapped, ErrSourceIO) {
			t.Error("errors.Is failed for wrapped error")
		}
	})
}
