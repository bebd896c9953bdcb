// Package reader polls an HLS master or media playlist tree and publishes
// playlists and segments as they become ready.
//
// All bookkeeping happens on the goroutine running Run. Loads run on their
// own goroutines and hand their results back to it as closures.
package reader

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/config"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/fetch"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/loader"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/logger"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/metrics"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/playlist"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/uri"
	"github.com/die-net/lrucache"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const minPollDuration = time.Second

// VariantSelector picks which variants of a master playlist to follow. It
// returns indices into variants.
type VariantSelector func(variants []*playlist.Variant) []int

// RenditionSelector picks which renditions of one group to follow.
type RenditionSelector func(t playlist.RenditionType, renditions []*playlist.Rendition) []int

type Option func(r *Reader) error

func WithConfig(c config.Config) Option {
	return func(r *Reader) error {
		r.cfg = c
		return nil
	}
}

// WithLoader shares a loader, and with it its cache, between readers.
func WithLoader(l *loader.Loader) Option {
	return func(r *Reader) error {
		r.loader = l
		return nil
	}
}

func WithFetcher(f fetch.Fetcher) Option {
	return func(r *Reader) error {
		r.fetcher = f
		return nil
	}
}

func WithVariantSelector(fn VariantSelector) Option {
	return func(r *Reader) error {
		r.selectVariants = fn
		return nil
	}
}

func WithRenditionSelector(fn RenditionSelector) Option {
	return func(r *Reader) error {
		r.selectRenditions = fn
		return nil
	}
}

func WithLogger(e *logrus.Entry) Option {
	return func(r *Reader) error {
		if e == nil {
			return errors.New("nil logger")
		}
		r.log = e
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reader) error {
		r.metrics = m
		return nil
	}
}

type timer interface {
	Stop() bool
}

func afterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

type pending struct {
	id uint64
	t  timer
}

type Reader struct {
	location         string
	cfg              config.Config
	loader           *loader.Loader
	fetcher          fetch.Fetcher
	selectVariants   VariantSelector
	selectRenditions RenditionSelector
	log              *logrus.Entry
	metrics          *metrics.Metrics
	afterFunc        func(d time.Duration, f func()) timer

	fsm    *fsm.FSM
	events chan func()
	out    chan Item
	done   chan struct{}

	// Owned by the Run goroutine.
	ctx         context.Context
	fatal       error
	masters     map[string]*playlist.Master
	variants    map[string]map[string]*follow // master URI -> variant URI
	loading     map[string]struct{}
	timers      map[string]pending
	timerSeq    uint64
	outstanding int

	// medias is written only by the Run goroutine; mu lets Tracked read it.
	// A nil value is a playlist that has been dispatched but not loaded yet.
	mu     sync.Mutex
	medias map[string]*playlist.Media
}

// New prepares a reader for the playlist at location. Nothing is fetched
// until Run.
func New(location string, opts ...Option) (*Reader, error) {
	r := &Reader{
		cfg:       config.Default(),
		log:       logger.Entry(context.Background()),
		afterFunc: afterFunc,
		events:    make(chan func()),
		done:      make(chan struct{}),
		masters:   make(map[string]*playlist.Master),
		variants:  make(map[string]map[string]*follow),
		loading:   make(map[string]struct{}),
		timers:    make(map[string]pending),
		medias:    make(map[string]*playlist.Media),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.cfg.RootPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		r.cfg.RootPath = wd
	}
	loc, err := uri.Resolve("", location, r.cfg.RootPath)
	if err != nil {
		return nil, errors.Wrap(err, "uri.Resolve")
	}
	r.location = loc
	r.log = r.log.WithField("root", loc)

	if r.loader == nil {
		if r.fetcher == nil {
			client, err := fetch.NewHTTPClient(fetch.HTTPConfig{
				UserAgent: r.cfg.UserAgent,
				Referer:   r.cfg.Referer,
				CacheSize: r.cfg.CacheBytes,
				CacheTTL:  r.cfg.CacheTTL,
				Timeout:   r.cfg.HTTPTimeout,
				DumpHTTP:  r.cfg.DumpHTTP,
				Log:       r.log,
			})
			if err != nil {
				return nil, err
			}
			r.fetcher = fetch.New(client)
		}
		lopts := []loader.Option{
			loader.WithConcurrency(r.cfg.Concurrency),
			loader.WithMetrics(r.metrics),
		}
		if r.cfg.CacheBytes > 0 {
			lopts = append(lopts, loader.WithCache(lrucache.New(r.cfg.CacheBytes, int64(r.cfg.CacheTTL.Seconds()))))
		}
		r.loader = loader.New(r.fetcher, lopts...)
	}

	buf := r.cfg.OutputBuffer
	if buf < 0 {
		buf = 0
	}
	r.out = make(chan Item, buf)
	r.fsm = r.newFSM()
	return r, nil
}

// Location is the resolved root playlist location.
func (r *Reader) Location() string { return r.location }

// Items is closed when Run returns.
func (r *Reader) Items() <-chan Item { return r.out }

func (r *Reader) State() string { return r.fsm.Current() }

// Tracked lists the media playlists currently followed.
func (r *Reader) Tracked() []string {
	r.mu.Lock()
	keys := maps.Keys(r.medias)
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Run loads the root playlist and keeps the tree up to date until every
// followed playlist has ended and its segments are delivered, or ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	if !r.fsm.Is(stateInitialized) {
		return errors.Wrapf(ErrInvalidState, "run in state %q", r.fsm.Current())
	}
	r.ctx = logger.WithLogEntry(ctx, r.log)
	defer close(r.out)
	defer close(r.done)

	if err := r.pushEvent(eventRead); err != nil {
		return err
	}
	r.log.Info("reading")
	r.loadPlaylist(r.location, "")

	for {
		if r.fatal != nil {
			r.cancelAll()
			r.releaseStreams()
			return r.fatal
		}
		if r.fsm.Is(stateClosed) {
			r.log.Info("closed")
			return nil
		}
		select {
		case <-ctx.Done():
			r.cancelAll()
			r.releaseStreams()
			return ctx.Err()
		case f := <-r.events:
			f()
		}
	}
}

// post hands f to the Run goroutine. It reports false once Run has returned.
func (r *Reader) post(f func()) bool {
	select {
	case r.events <- f:
		return true
	case <-r.done:
		return false
	}
}

func (r *Reader) fail(err error) {
	if r.fatal == nil {
		r.log.WithError(err).Error("fatal")
		r.fatal = err
	}
}

// publish blocks until the consumer takes item or the context ends.
func (r *Reader) publish(item Item) {
	select {
	case r.out <- item:
		r.metrics.IncPublished(item.Kind.String())
	case <-r.ctx.Done():
	}
}

func (r *Reader) publishError(location string, err error) {
	r.log.WithError(err).WithField("location", location).Warn("load failed")
	r.metrics.IncErrors()
	r.publish(Item{Kind: KindError, Err: &LoadError{Location: location, Err: err}})
}

// load fetches location off the loop and runs done on the loop with the
// result. The load counts as outstanding until done returns.
func (r *Reader) load(location string, opts loader.Options, done func(*fetch.Content, error)) {
	r.outstanding++
	r.metrics.SetOutstanding(r.outstanding)
	ctx := r.ctx
	go func() {
		c, err := r.loader.Load(ctx, location, opts)
		ok := r.post(func() {
			done(c, err)
			r.outstanding--
			r.metrics.SetOutstanding(r.outstanding)
			r.checkClosed()
		})
		if !ok && c != nil && c.Stream != nil {
			c.Stream.Close()
		}
	}()
}

// schedule runs f on the loop after d unless a wait for key is already
// pending or the reader has ended.
func (r *Reader) schedule(key string, d time.Duration, f func()) bool {
	if !r.fsm.Is(stateReading) {
		return false
	}
	if _, ok := r.timers[key]; ok {
		return false
	}
	if d <= 0 {
		d = minPollDuration
	}
	r.timerSeq++
	id := r.timerSeq
	r.log.WithField("location", key).Debugf("waiting %v", d)
	r.timers[key] = pending{
		id: id,
		t: r.afterFunc(d, func() {
			r.post(func() {
				p, ok := r.timers[key]
				if !ok || p.id != id {
					return
				}
				delete(r.timers, key)
				f()
				r.checkClosed()
			})
		}),
	}
	return true
}

func (r *Reader) cancel(key string) {
	if p, ok := r.timers[key]; ok {
		p.t.Stop()
		delete(r.timers, key)
	}
}

func (r *Reader) cancelAll() {
	for key := range r.timers {
		r.cancel(key)
	}
}

func (r *Reader) track(location string, p *playlist.Media) {
	r.mu.Lock()
	r.medias[location] = p
	r.mu.Unlock()
}

func (r *Reader) untrack(location string) {
	r.mu.Lock()
	delete(r.medias, location)
	r.mu.Unlock()
	r.cancel(location)
}

func (r *Reader) untrackAll() {
	r.mu.Lock()
	r.medias = make(map[string]*playlist.Media)
	r.mu.Unlock()
	r.masters = make(map[string]*playlist.Master)
	r.variants = make(map[string]map[string]*follow)
}

// releaseStreams closes raw bodies of segments still waiting on their key or
// map.
func (r *Reader) releaseStreams() {
	for _, p := range r.medias {
		if p == nil {
			continue
		}
		for _, s := range p.Segments {
			if s.Stream != nil {
				s.Stream.Close()
				s.Stream = nil
			}
		}
	}
}

// needsReload reports whether some followed media playlist can still change.
func (r *Reader) needsReload() bool {
	for _, p := range r.medias {
		if p == nil || !p.Terminal() {
			return true
		}
	}
	return false
}

// checkEnded moves to Ended once no playlist is loading and every followed
// media playlist is terminal.
func (r *Reader) checkEnded() {
	if !r.fsm.Is(stateReading) || len(r.loading) > 0 || r.needsReload() {
		return
	}
	if err := r.pushEvent(eventEnd); err != nil {
		r.fail(err)
		return
	}
	r.checkClosed()
}

// checkClosed moves to Closed once Ended and nothing is in flight.
func (r *Reader) checkClosed() {
	if !r.fsm.Is(stateEnded) || r.outstanding > 0 || len(r.timers) > 0 {
		return
	}
	if err := r.pushEvent(eventClose); err != nil {
		r.fail(err)
	}
}
