package client

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// MaxBodyBytes bounds how much of a response body DecodeResponse reads.
// Challenge pages are a few kilobytes; anything past 32 MiB is truncated.
const MaxBodyBytes = 32 << 20

// ErrContentEncoding marks a body whose Content-Encoding cannot be undone,
// either because a coding is unknown or because the data is corrupt.
var ErrContentEncoding = errors.New("cannot decode content encoding")

// zstdDecoder is shared by every call.  DecodeAll is safe for concurrent use.
var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func sharedZstd() (*zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdDecoder, zstdErr
}

// DecodeBody reverses the Content-Encoding chain of a response body.
//
// Browsers advertise "gzip, deflate, br" (and Chrome also "zstd"), and the
// Chrome header set sends that Accept-Encoding explicitly, which stops
// net/http from decompressing transparently.  encoding is the raw header
// value; codings listed in it are removed in reverse order, as RFC 9110
// section 8.4 prescribes.  An empty encoding or "identity" returns body
// unchanged.
func DecodeBody(encoding string, body []byte) ([]byte, error) {
	codings := strings.Split(encoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		var err error
		switch coding {
		case "", "identity":
			continue
		case "br":
			body, err = io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		case "gzip", "x-gzip":
			body, err = gunzip(body)
		case "deflate":
			body, err = inflate(body)
		case "zstd":
			var d *zstd.Decoder
			if d, err = sharedZstd(); err == nil {
				body, err = d.DecodeAll(body, nil)
			}
		default:
			return nil, fmt.Errorf("client: unsupported content encoding %q: %w", coding, ErrContentEncoding)
		}
		if err != nil {
			return nil, fmt.Errorf("client: decode %s body: %w: %w", coding, ErrContentEncoding, err)
		}
	}
	return body, nil
}

func gunzip(body []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// inflate handles both framings servers send for "deflate": the zlib wrapper
// the RFC asks for and the raw stream some servers emit instead.
func inflate(body []byte) ([]byte, error) {
	if r, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		defer r.Close()
		if out, err := io.ReadAll(r); err == nil {
			return out, nil
		}
	}
	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	return io.ReadAll(r)
}

// DecodeResponse reads resp.Body, decodes it according to Content-Encoding
// and replaces the body with the decoded bytes, which it also returns.  The
// Content-Encoding header is removed so later readers see plain content.
// When decoding fails the raw bytes are put back and the error wraps
// ErrContentEncoding.  At most MaxBodyBytes are read, so this is meant for
// challenge pages, not for arbitrary downloads; see StreamResponse.
func DecodeResponse(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("client: read response body: %w", err)
	}

	body, err := DecodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return nil, err
	}
	if resp.Header.Get("Content-Encoding") != "" {
		resp.Header.Del("Content-Encoding")
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
		resp.Uncompressed = true
	}
	resp.ContentLength = int64(len(body))
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// StreamResponse replaces resp.Body with a reader that undoes the
// Content-Encoding chain while the caller reads, without buffering and
// without a size bound.  Corrupt data surfaces as a read error.  An unknown
// coding leaves resp untouched and returns an error wrapping
// ErrContentEncoding.
func StreamResponse(resp *http.Response) error {
	codings, err := parseCodings(resp.Header.Get("Content-Encoding"))
	if err != nil {
		return err
	}
	if len(codings) == 0 {
		return nil
	}
	resp.Body = &decodingBody{raw: resp.Body, codings: codings}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// parseCodings returns the non-identity codings of a Content-Encoding value
// in the order they were applied.
func parseCodings(encoding string) ([]string, error) {
	var out []string
	for _, c := range strings.Split(encoding, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		switch c {
		case "", "identity":
		case "br", "gzip", "x-gzip", "deflate", "zstd":
			out = append(out, c)
		default:
			return nil, fmt.Errorf("client: unsupported content encoding %q: %w", c, ErrContentEncoding)
		}
	}
	return out, nil
}

// decodingBody builds its decoders on the first Read, so nothing is read
// from the network before the caller asks for it.
type decodingBody struct {
	raw     io.ReadCloser
	codings []string
	r       io.Reader
	closers []io.Closer
	err     error
}

func (b *decodingBody) Read(p []byte) (int, error) {
	if b.r == nil && b.err == nil {
		b.r, b.err = b.build()
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.r.Read(p)
}

func (b *decodingBody) build() (io.Reader, error) {
	var r io.Reader = b.raw
	for i := len(b.codings) - 1; i >= 0; i-- {
		coding := b.codings[i]
		switch coding {
		case "br":
			r = brotli.NewReader(r)
		case "gzip", "x-gzip":
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, fmt.Errorf("client: decode %s body: %w: %w", coding, ErrContentEncoding, err)
			}
			b.closers = append(b.closers, zr)
			r = zr
		case "deflate":
			br := bufio.NewReader(r)
			if zlibHeader(br) {
				zr, err := zlib.NewReader(br)
				if err != nil {
					return nil, fmt.Errorf("client: decode %s body: %w: %w", coding, ErrContentEncoding, err)
				}
				b.closers = append(b.closers, zr)
				r = zr
			} else {
				fr := flate.NewReader(br)
				b.closers = append(b.closers, fr)
				r = fr
			}
		case "zstd":
			d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, fmt.Errorf("client: decode %s body: %w: %w", coding, ErrContentEncoding, err)
			}
			rc := d.IOReadCloser()
			b.closers = append(b.closers, rc)
			r = rc
		}
	}
	return r, nil
}

func (b *decodingBody) Close() error {
	for _, c := range b.closers {
		_ = c.Close()
	}
	return b.raw.Close()
}

// zlibHeader reports whether the stream starts with a zlib header (RFC 1950:
// deflate method and a CMF/FLG pair divisible by 31).
func zlibHeader(br *bufio.Reader) bool {
	h, err := br.Peek(2)
	if err != nil {
		return false
	}
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
