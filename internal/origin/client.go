package origin

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/52poke/voicenotes/internal/cache"
)

// Client performs network fetches on behalf of the worker and snapshots
// the whole response.
type Client struct {
	http *http.Client
}

// NewClient returns a client with the given timeout; zero means requests
// may hang for as long as the network does.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc}
}

func (c *Client) Fetch(ctx context.Context, method, rawURL string, headers http.Header) (cache.Entry, error) {
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return cache.Entry{}, err
	}
	copyHeaders(req.Header, headers)

	resp, err := c.http.Do(req)
	if err != nil {
		return cache.Entry{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

// hop-by-hop and conditional headers are not forwarded; a 304 cannot be
// stored as a full snapshot. Accept-Encoding is left to the transport so
// every snapshot is stored decoded.
var skipHeaders = map[string]struct{}{
	"Accept-Encoding":     {},
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"If-None-Match":       {},
	"If-Modified-Since":   {},
	"If-Match":            {},
	"If-Unmodified-Since": {},
	"If-Range":            {},
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if len(vv) == 0 {
			continue
		}
		if _, skip := skipHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
