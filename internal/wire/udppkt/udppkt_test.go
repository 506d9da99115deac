package udppkt

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func TestHeaderMarshalParseRoundTripV4(t *testing.T) {
	h := &Header{SrcPort: 33434, DstPort: 53, TotalLen: HeaderLen}
	psh := ipv4.Header{Src: net.ParseIP("192.0.2.1"), Dst: net.ParseIP("192.0.2.2"), Protocol: 17, Len: HeaderLen}

	buf, err := h.Marshal(psh)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := &Header{SrcPort: 33434, DstPort: 53, TotalLen: HeaderLen, Checksum: h.Checksum}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderMarshalParseRoundTripV6(t *testing.T) {
	h := &Header{SrcPort: 33435, DstPort: 80, TotalLen: HeaderLen}
	psh := &ipv6.Header{
		Src:        net.ParseIP("2001:db8::1"),
		Dst:        net.ParseIP("2001:db8::2"),
		PayloadLen: HeaderLen,
	}

	buf, err := h.Marshal(psh)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.SrcPort != 33435 || got.DstPort != 80 || got.TotalLen != HeaderLen {
		t.Errorf("got %+v, want SrcPort=33435 DstPort=80 TotalLen=%d", got, HeaderLen)
	}
}

func TestMarshalRejectsUnsupportedPseudoHeader(t *testing.T) {
	h := &Header{SrcPort: 1, DstPort: 2}
	if _, err := h.Marshal("not a header"); err == nil {
		t.Fatal("expected an error for an unsupported pseudo-header type")
	}
}
