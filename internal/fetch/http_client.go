package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httputil"
	"time"

	"github.com/die-net/lrucache"
	"github.com/gregjones/httpcache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultUserAgent = "hlsread/1.0"
	defaultCacheSize = 64 * 1024 * 1024
	defaultCacheTTL  = time.Hour
)

type HTTPConfig struct {
	UserAgent string
	Referer   string
	CacheSize int64
	CacheTTL  time.Duration
	Timeout   time.Duration
	// DumpHTTP logs request and response headers at debug level.
	DumpHTTP bool
	Log      *logrus.Entry
}

// NewHTTPClient returns a client with a cookie jar and an in-memory
// RFC 7234 cache in front of the default transport.
func NewHTTPClient(cfg HTTPConfig) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "cookiejar.New")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := lrucache.New(cfg.CacheSize, int64(cfg.CacheTTL.Seconds()))
	cache := httpcache.NewTransport(c)

	return &http.Client{
		Jar:     jar,
		Timeout: cfg.Timeout,
		Transport: &headerTransport{
			next: cache,
			cfg:  cfg,
		},
	}, nil
}

type headerTransport struct {
	next http.RoundTripper
	cfg  HTTPConfig
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", t.cfg.UserAgent)
	if t.cfg.Referer != "" {
		req.Header.Set("Referer", t.cfg.Referer)
	}

	if t.cfg.DumpHTTP && t.cfg.Log != nil {
		if s, err := httputil.DumpRequest(req, false); err == nil {
			t.cfg.Log.Debug(string(s))
		}
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.cfg.DumpHTTP && t.cfg.Log != nil {
		if s, err := httputil.DumpResponse(resp, false); err == nil {
			t.cfg.Log.Debug(string(s))
		}
	}
	return resp, nil
}

func fetchHTTP(ctx context.Context, client *http.Client, location string, opts Options) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	if opts.NoCache {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &StatusError{Location: location, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	c := &Content{MimeType: resp.Header.Get("Content-Type")}
	if opts.RawResponse {
		c.Stream = resp.Body
		return c, nil
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	c.Data = b
	return c, nil
}
