package tcppkt

import (
	"net"
	"testing"

	"github.com/kentik/synthetics-agent/internal/ipversion"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	src := net.ParseIP("127.0.0.1")
	dst := net.ParseIP("127.0.0.2")
	h := &Header{SrcPort: 33434, DstPort: 8080, Seq: 12345, Window: 65535, Flags: FlagSYN}
	buf := Marshal(h, ipversion.V4, src, dst)

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.SrcPort != h.SrcPort || got.DstPort != h.DstPort || got.Seq != h.Seq {
		t.Errorf("Parse(Marshal(h)) = %+v, want fields matching %+v", got, h)
	}
	if got.Flags != FlagSYN {
		t.Errorf("Flags = %#x, want SYN only", got.Flags)
	}
}

func TestIsSynAck(t *testing.T) {
	h := &Header{Flags: FlagSYN | FlagACK}
	if !h.IsSynAck() {
		t.Error("IsSynAck() = false, want true for SYN|ACK")
	}
	h2 := &Header{Flags: FlagSYN}
	if h2.IsSynAck() {
		t.Error("IsSynAck() = true, want false for SYN only")
	}
}
