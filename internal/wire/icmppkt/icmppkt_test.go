package icmppkt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChecksumSumsToZero(t *testing.T) {
	e := &Echo{Type: TypeEchoRequestV4, ID: 0x1234, Seq: 1}
	buf := e.Marshal()
	if got := Checksum(buf); got != 0 {
		t.Errorf("Checksum(marshaled packet) = %#04x, want 0", got)
	}
}

func TestChecksumOddLength(t *testing.T) {
	e := &Echo{Type: TypeEchoRequestV4, ID: 7, Seq: 3, Payload: []byte("odd")}
	buf := e.Marshal()
	if len(buf)%2 == 0 {
		t.Fatalf("test payload should make an odd-length packet, got %d bytes", len(buf))
	}
	if got := Checksum(buf); got != 0 {
		t.Errorf("Checksum(marshaled odd-length packet) = %#04x, want 0", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Echo{
		{Type: TypeEchoRequestV4, ID: 1, Seq: 1},
		{Type: TypeEchoRequestV4, ID: 0xffff, Seq: 0xffff, Payload: []byte("hello, vasily")},
		{Type: TypeEchoRequestV6, ID: 42, Seq: 9, Payload: []byte{0, 1, 2}},
	}
	for _, want := range cases {
		buf := want.Marshal()
		got, err := ParseEcho(buf)
		if err != nil {
			t.Fatalf("ParseEcho: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestParseEchoShortPacket(t *testing.T) {
	if _, err := ParseEcho([]byte{1, 2, 3}); err == nil {
		t.Error("ParseEcho on short buffer: got nil error, want error")
	}
}
