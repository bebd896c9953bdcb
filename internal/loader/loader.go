// Package loader puts a content cache, request deduplication and a
// concurrency cap in front of a fetch.Fetcher.
package loader

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/fetch"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/logger"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/metrics"
	"github.com/die-net/lrucache"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultConcurrency = 6
	defaultCacheBytes  = 64 * 1024 * 1024
	defaultCacheTTL    = time.Hour
)

// Cache stores encoded content by location. *lrucache.LruCache satisfies it.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

type Options struct {
	// BypassCache skips the cache lookup and does not store the result.
	BypassCache  bool
	ReadAsBinary bool
	RawResponse  bool
}

type Loader struct {
	fetcher fetch.Fetcher
	cache   Cache
	sem     *semaphore.Weighted
	group   singleflight.Group
	metrics *metrics.Metrics

	concurrency int64
}

type Option func(l *Loader)

func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = int64(n)
		}
	}
}

func WithCache(c Cache) Option {
	return func(l *Loader) {
		l.cache = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

func New(f fetch.Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher:     f,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cache == nil {
		l.cache = lrucache.New(defaultCacheBytes, int64(defaultCacheTTL.Seconds()))
	}
	l.sem = semaphore.NewWeighted(l.concurrency)
	return l
}

// Load returns the content at location. Concurrent loads of the same
// location share a single fetch; raw stream loads are never shared or cached.
// An in-flight fetch is not cancelled when ctx is; ctx only stops the wait.
func (l *Loader) Load(ctx context.Context, location string, opts Options) (*fetch.Content, error) {
	log := logger.Entry(ctx)

	if opts.RawResponse {
		return l.dispatch(context.WithoutCancel(ctx), location, opts)
	}

	if !opts.BypassCache {
		if c, ok := l.cached(location); ok {
			log.WithField("location", location).Trace("cache hit")
			l.metrics.IncCacheHits()
			return c, nil
		}
	}

	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(location, func() (interface{}, error) {
		c, err := l.dispatch(detached, location, opts)
		if err != nil {
			return nil, err
		}
		if !opts.BypassCache {
			l.store(location, c)
		}
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			l.metrics.IncDedupShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		c := *res.Val.(*fetch.Content)
		return &c, nil
	}
}

func (l *Loader) dispatch(ctx context.Context, location string, opts Options) (*fetch.Content, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "semaphore.Acquire")
	}
	defer l.sem.Release(1)

	logger.Entry(ctx).WithField("location", location).Debug("[GET]")
	scheme, _, _ := strings.Cut(location, ":")
	l.metrics.IncFetches(strings.ToLower(scheme))

	return l.fetcher.Fetch(ctx, location, fetch.Options{
		ReadAsBinary: opts.ReadAsBinary,
		RawResponse:  opts.RawResponse,
		NoCache:      opts.BypassCache,
	})
}

// Entries are the mime type, a newline, then the body.
func (l *Loader) store(location string, c *fetch.Content) {
	var buf bytes.Buffer
	buf.Grow(len(c.MimeType) + 1 + len(c.Data))
	buf.WriteString(c.MimeType)
	buf.WriteByte('\n')
	buf.Write(c.Data)
	l.cache.Set(location, buf.Bytes())
}

func (l *Loader) cached(location string) (*fetch.Content, bool) {
	b, ok := l.cache.Get(location)
	if !ok {
		return nil, false
	}
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		l.cache.Delete(location)
		return nil, false
	}
	return &fetch.Content{
		MimeType: string(b[:i]),
		Data:     b[i+1:],
	}, true
}
