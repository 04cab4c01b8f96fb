// Package proxy rotates the exit proxies sessions are built with.  The same
// proxy a session's transport uses is handed to captcha providers, so the
// solved token belongs to the address that submits it.
package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/firasghr/GoChallengeEngine/provider"
)

// Manager hands out proxies round-robin.  It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	proxies []string
	index   int
}

// NewManager returns a manager over proxies, normalised as by Load.
func NewManager(proxies ...string) (*Manager, error) {
	m := &Manager{}
	for i, p := range proxies {
		n, err := Normalize(p)
		if err != nil {
			return nil, fmt.Errorf("proxy: entry %d: %w", i, err)
		}
		m.proxies = append(m.proxies, n)
	}
	return m, nil
}

// LoadFile replaces the proxy list with the entries of filename.
func (m *Manager) LoadFile(filename string) error {
	f, err := os.Open(filename) // #nosec G304 – operator-supplied config path
	if err != nil {
		return fmt.Errorf("proxy: open %q: %w", filename, err)
	}
	defer f.Close()
	if err := m.Load(f); err != nil {
		return fmt.Errorf("proxy: %s: %w", filename, err)
	}
	return nil
}

// Load replaces the proxy list with one entry per line of r.  Blank lines
// and lines starting with '#' are skipped.  Bare host:port entries become
// http:// URLs.
func (m *Manager) Load(r io.Reader) error {
	var loaded []string
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		n, err := Normalize(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		loaded = append(loaded, n)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.proxies = loaded
	m.index = 0
	m.mu.Unlock()
	return nil
}

// Next returns the next proxy URL, or "" when none are loaded, meaning
// direct.
func (m *Manager) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.proxies) == 0 {
		return ""
	}
	p := m.proxies[m.index]
	m.index = (m.index + 1) % len(m.proxies)
	return p
}

// Count returns the number of loaded proxies.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.proxies)
}

// Normalize validates raw and returns it as a URL with a scheme.
func Normalize(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return "", fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return "", fmt.Errorf("proxy %q needs host and port", u.Redacted())
	}
	return u.String(), nil
}

// ForProvider converts a proxy URL from Next into the form captcha
// providers take.  An empty raw yields nil.
func ForProvider(raw string) (*provider.ProxyConfig, error) {
	if raw == "" {
		return nil, nil
	}
	pc, err := provider.ProxyFromURL(raw)
	if err != nil {
		return nil, err
	}
	if pc.Type == "socks5h" {
		pc.Type = "socks5"
	}
	return pc, nil
}
