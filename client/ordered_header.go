package client

import (
	"net/http"
)

type headerEntry struct {
	key   string
	value string
}

// OrderedHeader is a header list that keeps the casing and insertion order
// of its entries.  Vendors profile both.
//
// OrderedHeader is not safe for concurrent use.  A profile builds one and
// then only clones it.
type OrderedHeader struct {
	entries []headerEntry
}

// Add appends key/value, keeping the exact casing of key.
func (h *OrderedHeader) Add(key, value string) {
	h.entries = append(h.entries, headerEntry{key: key, value: value})
}

// Set replaces the first entry matching key (case-insensitively) and drops
// later duplicates, or appends when there is none.  The surviving entry takes
// the casing of key.
func (h *OrderedHeader) Set(key, value string) {
	canonKey := http.CanonicalHeaderKey(key)
	replaced := false
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canonKey {
			out = append(out, e)
			continue
		}
		if !replaced {
			out = append(out, headerEntry{key: key, value: value})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, headerEntry{key: key, value: value})
	}
	h.entries = out
}

// Del removes every entry matching key.
func (h *OrderedHeader) Del(key string) {
	canonKey := http.CanonicalHeaderKey(key)
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canonKey {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the value of the first entry matching key, or "".
func (h *OrderedHeader) Get(key string) string {
	canonKey := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canonKey {
			return e.value
		}
	}
	return ""
}

// Keys returns the entry keys in order, as written.
func (h *OrderedHeader) Keys() []string {
	keys := make([]string, len(h.entries))
	for i, e := range h.entries {
		keys[i] = e.key
	}
	return keys
}

func (h *OrderedHeader) Len() int { return len(h.entries) }

// Clone returns an independent copy.
func (h *OrderedHeader) Clone() *OrderedHeader {
	c := &OrderedHeader{entries: make([]headerEntry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// ApplyToRequest replaces req.Header with the entries of h.  Keys are written
// into the map as given, bypassing canonicalisation.
func (h *OrderedHeader) ApplyToRequest(req *http.Request) {
	req.Header = h.ToHTTPHeader()
}

// ApplyDefaults adds to dst every entry whose key dst does not carry yet.
// Keys go in canonical form so dst.Get finds them.
func (h *OrderedHeader) ApplyDefaults(dst http.Header) {
	for _, e := range h.entries {
		if dst.Get(e.key) == "" {
			dst.Add(e.key, e.value)
		}
	}
}

// ToHTTPHeader converts h to an http.Header, keeping key casing.  Order is
// lost.
func (h *OrderedHeader) ToHTTPHeader() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		out[e.key] = append(out[e.key], e.value)
	}
	return out
}

// ChromeOrderedHeaders returns the navigation headers desktop Chrome sends,
// in its order and casing.
func ChromeOrderedHeaders() *OrderedHeader {
	h := &OrderedHeader{}
	h.Add("sec-ch-ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
	h.Add("sec-ch-ua-mobile", "?0")
	h.Add("sec-ch-ua-platform", `"Windows"`)
	h.Add("Upgrade-Insecure-Requests", "1")
	h.Add("User-Agent", ChromeUserAgent)
	h.Add("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Add("sec-fetch-site", "none")
	h.Add("sec-fetch-mode", "navigate")
	h.Add("sec-fetch-user", "?1")
	h.Add("sec-fetch-dest", "document")
	h.Add("accept-encoding", "gzip, deflate, br, zstd")
	h.Add("accept-language", "en-US,en;q=0.9")
	return h
}

// ChromeUserAgent is the User-Agent of ChromeOrderedHeaders.
const ChromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
