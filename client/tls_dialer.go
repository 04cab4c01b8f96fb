package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// DialTLSFunc matches http2.Transport.DialTLSContext.
type DialTLSFunc func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error)

// UTLSDialer returns a dialer that performs the TLS handshake with utls,
// impersonating the browser described by helloID.  The parrot spec is used as
// is, so ALPN offers both h2 and http/1.1.
//
// tlsCfg, when given at dial time, supplies the SNI name and
// InsecureSkipVerify; otherwise SNI comes from addr.
func UTLSDialer(helloID utls.ClientHelloID) DialTLSFunc {
	return utlsDialer(helloID, nil)
}

// UTLSDialerHTTP1 returns a dialer for http.Transport.DialTLSContext.  ALPN is
// restricted to http/1.1.  base may be nil.
func UTLSDialerHTTP1(helloID utls.ClientHelloID, base *tls.Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	inner := utlsDialer(helloID, []string{"http/1.1"})
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return inner(ctx, network, addr, base)
	}
}

func utlsDialer(helloID utls.ClientHelloID, alpn []string) DialTLSFunc {
	return func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: parse addr %q: %w", addr, err)
		}
		sni := host
		if tlsCfg != nil && tlsCfg.ServerName != "" {
			sni = tlsCfg.ServerName
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: dial %s: %w", addr, err)
		}

		uCfg := &utls.Config{
			ServerName:         sni,
			InsecureSkipVerify: tlsCfg != nil && tlsCfg.InsecureSkipVerify, // #nosec G402 – caller-controlled
		}

		var uConn *utls.UConn
		if spec, ok := clientHelloSpec(helloID, alpn); ok {
			uConn = utls.UClient(rawConn, uCfg, utls.HelloCustom)
			if err := uConn.ApplyPreset(&spec); err != nil {
				_ = rawConn.Close()
				return nil, fmt.Errorf("utls dialer: apply preset for %s: %w", helloID.Str(), err)
			}
		} else {
			// No spec to edit: utls builds the hello itself during the
			// handshake.
			uConn = utls.UClient(rawConn, uCfg, helloID)
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls dialer: TLS handshake with %s: %w", addr, err)
		}
		return uConn, nil
	}
}

// clientHelloSpec returns the parrot spec for helloID with its ALPN list
// replaced by alpn when alpn is non-empty.  ok is false for ids utls has no
// spec for.
func clientHelloSpec(helloID utls.ClientHelloID, alpn []string) (utls.ClientHelloSpec, bool) {
	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return utls.ClientHelloSpec{}, false
	}
	if len(alpn) > 0 {
		for _, ext := range spec.Extensions {
			if a, ok := ext.(*utls.ALPNExtension); ok {
				a.AlpnProtocols = alpn
			}
		}
	}
	return spec, true
}
