// Package shake implements a single-shot TLS handshake probe.
//
// Grounded in original_source/src/net/tls/shake.rs: dial, handshake, report
// the negotiated parameters and peer leaf certificate fingerprint. Uses
// stdlib crypto/tls — no pack repo ships an alternate TLS stack, and the
// certificate-pinning verifier this module's original counterpart also
// implements is out of scope here, so a generic handshake is all that's
// needed.
package shake

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"time"
)

// Result is what one TLS handshake observed.
type Result struct {
	Version         uint16
	CipherSuite     uint16
	PeerFingerprint [32]byte
	Elapsed         time.Duration
}

// Shake dials addr, performs a TLS handshake using sni as the server name,
// and reports what was negotiated, bounded by expiry.
func Shake(ctx context.Context, addr, sni string, expiry time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, expiry)
	defer cancel()

	start := time.Now()
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: sni}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("shake: dialing %s: %w", addr, err)
	}
	defer conn.Close()
	elapsed := time.Since(start)

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, fmt.Errorf("shake: unexpected connection type %T", conn)
	}
	state := tlsConn.ConnectionState()

	var fp [32]byte
	if len(state.PeerCertificates) > 0 {
		fp = sha256.Sum256(state.PeerCertificates[0].Raw)
	}

	return &Result{
		Version:         state.Version,
		CipherSuite:     state.CipherSuite,
		PeerFingerprint: fp,
		Elapsed:         elapsed,
	}, nil
}
