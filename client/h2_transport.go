package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	utls "github.com/refraction-networking/utls"
)

// HTTP/2 SETTINGS values sent by desktop Chrome.
const (
	chromeH2HeaderTableSize   uint32 = 65536
	chromeH2MaxHeaderListSize uint32 = 262144
)

// ChromePseudoHeaderOrder is the pseudo-header order Chrome writes.
// golang.org/x/net/http2 always writes :method, :path, :scheme, :authority
// and has no knob to change it.
var ChromePseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// H2TransportConfig configures NewH2Transport.
type H2TransportConfig struct {
	// HelloID is the ClientHello to impersonate.  Defaults to
	// utls.HelloChrome_Auto.
	HelloID utls.ClientHelloID

	// TLSConfig supplies ServerName and InsecureSkipVerify.  May be nil.
	TLSConfig *tls.Config

	// Headers are written onto every request before the caller's headers.
	// Nil means ChromeOrderedHeaders.
	Headers *OrderedHeader

	// IdleConnTimeout defaults to 90 s.
	IdleConnTimeout time.Duration

	PingTimeout     time.Duration
	ReadIdleTimeout time.Duration
}

// NewH2Transport returns an HTTP/2 round tripper whose TLS handshake uses
// utls and whose requests carry an ordered browser header set.
func NewH2Transport(cfg H2TransportConfig) http.RoundTripper {
	if cfg.HelloID == (utls.ClientHelloID{}) {
		cfg.HelloID = utls.HelloChrome_Auto
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = ChromeOrderedHeaders()
	}

	dialFn := UTLSDialer(cfg.HelloID)
	base := cfg.TLSConfig

	h2t := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
			if base != nil {
				tlsCfg = base
			}
			return dialFn(ctx, network, addr, tlsCfg)
		},
		MaxDecoderHeaderTableSize: chromeH2HeaderTableSize,
		MaxEncoderHeaderTableSize: chromeH2HeaderTableSize,
		MaxHeaderListSize:         chromeH2MaxHeaderListSize,
		IdleConnTimeout:           cfg.IdleConnTimeout,
		PingTimeout:               cfg.PingTimeout,
		ReadIdleTimeout:           cfg.ReadIdleTimeout,
	}
	return &orderedRoundTripper{next: h2t, headers: cfg.Headers}
}

// orderedRoundTripper writes a fixed header set onto each request and hands
// it to next.
type orderedRoundTripper struct {
	next    http.RoundTripper
	headers *OrderedHeader
}

// RoundTrip clones req, applies the ordered defaults and then the caller's
// own headers.  A header the caller sets replaces the default of the same
// name.
func (t *orderedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	caller := r.Header

	defaults := t.headers.Clone()
	for key := range caller {
		defaults.Del(key)
	}
	defaults.ApplyToRequest(r)
	for key, vals := range caller {
		r.Header[key] = append(r.Header[key], vals...)
	}
	return t.next.RoundTrip(r)
}
