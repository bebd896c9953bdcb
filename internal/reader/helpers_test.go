package reader

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/config"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/fetch"
	"github.com/stretchr/testify/require"
)

type serveFunc func(location string, n int) (*fetch.Content, error)

// fakeFetcher serves canned bodies and counts requests per location. Raw
// bodies count their Close calls.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	serve  serveFunc
	raw    int
	closed int
}

func newFakeFetcher(serve serveFunc) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), serve: serve}
}

func (f *fakeFetcher) Fetch(ctx context.Context, location string, opts fetch.Options) (*fetch.Content, error) {
	f.mu.Lock()
	f.calls[location]++
	n := f.calls[location]
	f.mu.Unlock()
	c, err := f.serve(location, n)
	if err != nil {
		return nil, err
	}
	if opts.RawResponse {
		f.mu.Lock()
		f.raw++
		f.mu.Unlock()
		body := &trackedBody{Reader: bytes.NewReader(c.Data), f: f}
		return &fetch.Content{Stream: body, MimeType: c.MimeType}, nil
	}
	return c, nil
}

type trackedBody struct {
	io.Reader
	f    *fakeFetcher
	once sync.Once
}

func (b *trackedBody) Close() error {
	b.once.Do(func() {
		b.f.mu.Lock()
		b.f.closed++
		b.f.mu.Unlock()
	})
	return nil
}

// bodies returns how many raw bodies were handed out and how many of them
// were closed.
func (f *fakeFetcher) bodies() (raw, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw, f.closed
}

func (f *fakeFetcher) count(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[location]
}

func text(s string) *fetch.Content {
	return &fetch.Content{Data: []byte(s), MimeType: "application/vnd.apple.mpegurl"}
}

// fakeClock records timers instead of running them.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d  time.Duration
	f  func()
	mu sync.Mutex
	// done is set once the timer is stopped or fired.
	done bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) get(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

func (c *fakeClock) fire(i int) {
	t := c.get(i)
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	go t.f()
}

// await waits for a live timer of duration d and returns its index.
func (c *fakeClock) await(t *testing.T, d time.Duration) int {
	t.Helper()
	i := -1
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for j, ft := range c.timers {
			ft.mu.Lock()
			live := !ft.done
			ft.mu.Unlock()
			if live && ft.d == d {
				i = j
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond, "no %v timer", d)
	return i
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RootPath = "/"
	return cfg
}

func newTestReader(t *testing.T, location string, f *fakeFetcher, opts ...Option) *Reader {
	t.Helper()
	opts = append([]Option{WithConfig(testConfig()), WithFetcher(f)}, opts...)
	r, err := New(location, opts...)
	require.NoError(t, err)
	return r
}

type runResult struct {
	items []Item
	err   error
}

// drain runs r to completion and returns everything it published.
func drain(t *testing.T, r *Reader) runResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	var res runResult
	for item := range r.Items() {
		res.items = append(res.items, item)
	}
	res.err = <-errc
	return res
}

func countKinds(items []Item) map[Kind]int {
	out := make(map[Kind]int)
	for _, item := range items {
		out[item.Kind]++
	}
	return out
}

// next waits for one item.
func next(t *testing.T, items <-chan Item) Item {
	t.Helper()
	select {
	case item, ok := <-items:
		require.True(t, ok, "items closed")
		return item
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an item")
	}
	return Item{}
}
