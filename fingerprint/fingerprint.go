// Package fingerprint keeps the signals a vendor correlates to spot
// automation consistent with each other: the TLS ClientHello, the User-Agent
// and the order of the navigation headers.  A Chrome hello sent with a
// Firefox User-Agent is flagged faster than either alone.
//
// A Profile is applied to a client.Config once, when the session's clients
// are built, and to each request's headers before it is sent.
//
//	p, _ := fingerprint.ByName("chrome")
//	cfg := client.DefaultConfig()
//	p.ApplyToConfig(&cfg, true)
//	p.ApplyHeaders(req.Header)
package fingerprint

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"sort"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/GoChallengeEngine/client"
)

// Profile bundles the correlated fingerprint signals of one browser.
type Profile struct {
	Name string

	// HelloID is the utls ClientHello sent when TLS mimicry is on.
	HelloID utls.ClientHelloID

	// TLSConfig is the crypto/tls fallback used when mimicry is off.
	TLSConfig *tls.Config

	// Headers are the navigation headers in browser order.  User-Agent is
	// one of them.
	Headers *client.OrderedHeader
}

var profiles = map[string]func() *Profile{
	"chrome":  ChromeProfile,
	"firefox": FirefoxProfile,
}

// ByName returns a fresh copy of the named profile.
func ByName(name string) (*Profile, error) {
	mk, ok := profiles[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unknown profile %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

// Names returns the profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ChromeProfile mimics desktop Chrome on Windows.
func ChromeProfile() *Profile {
	return &Profile{
		Name:      "chrome",
		HelloID:   utls.HelloChrome_Auto,
		TLSConfig: chromeTLSConfig(),
		Headers:   client.ChromeOrderedHeaders(),
	}
}

// FirefoxProfile mimics desktop Firefox on Windows.
func FirefoxProfile() *Profile {
	h := &client.OrderedHeader{}
	h.Add("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0")
	h.Add("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Add("Accept-Language", "en-US,en;q=0.5")
	h.Add("Accept-Encoding", "gzip, deflate, br, zstd")
	h.Add("Upgrade-Insecure-Requests", "1")
	h.Add("Sec-Fetch-Dest", "document")
	h.Add("Sec-Fetch-Mode", "navigate")
	h.Add("Sec-Fetch-Site", "none")
	h.Add("Sec-Fetch-User", "?1")
	h.Add("Priority", "u=0, i")
	return &Profile{
		Name:      "firefox",
		HelloID:   utls.HelloFirefox_Auto,
		TLSConfig: firefoxTLSConfig(),
		Headers:   h,
	}
}

// UserAgent returns the profile's User-Agent header.
func (p *Profile) UserAgent() string { return p.Headers.Get("User-Agent") }

// ApplyToConfig sets the TLS side of cfg from the profile.  utls is used
// only when mimic is true.
func (p *Profile) ApplyToConfig(cfg *client.Config, mimic bool) {
	if mimic {
		cfg.HelloID = p.HelloID
	}
	if p.TLSConfig != nil {
		cfg.TLSConfig = p.TLSConfig.Clone()
	}
	cfg.Headers = p.Headers.Clone()
}

// ApplyHeaders adds the profile headers h does not carry yet, so headers the
// caller set win.
func (p *Profile) ApplyHeaders(h http.Header) {
	if h == nil {
		return
	}
	p.Headers.ApplyDefaults(h)
}

// chromeTLSConfig lists Chrome's TLS 1.2 suite order.  TLS 1.3 suites are
// fixed by crypto/tls.
func chromeTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}

func firefoxTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
	}
}
