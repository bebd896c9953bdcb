package reader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/fetch"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/playlist"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const masterPoll = 10 * time.Second

func livePlaylist(target int, ended bool) string {
	s := fmt.Sprintf("#EXTM3U\n#EXT-X-TARGETDURATION:%d\n#EXTINF:1,\nseg.ts\n", target)
	if ended {
		s += "#EXT-X-ENDLIST\n"
	}
	return s
}

func startReader(t *testing.T, r *Reader) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	return cancel, errc
}

func terminal(r *Reader, location string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.medias[location]
	return p != nil && p.Terminal()
}

func TestNewVariantBlocksEnded(t *testing.T) {
	revisions := []string{
		"#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\na.m3u8\n",
		"#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\na.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2\nb.m3u8\n",
	}
	f := newFakeFetcher(func(location string, n int) (*fetch.Content, error) {
		switch {
		case strings.HasSuffix(location, "master.m3u8"):
			return text(revisions[min(n, 2)-1]), nil
		case strings.HasSuffix(location, "a.m3u8"):
			return text(livePlaylist(2, n > 1)), nil
		case strings.HasSuffix(location, "b.m3u8"):
			return text(livePlaylist(3, n > 1)), nil
		}
		return &fetch.Content{Data: []byte(location)}, nil
	})
	clock := &fakeClock{}
	r := newTestReader(t, "http://example.com/master.m3u8", f)
	r.afterFunc = clock.AfterFunc
	cancel, errc := startReader(t, r)
	defer cancel()

	clock.fire(clock.await(t, masterPoll))
	require.Eventually(t, func() bool { return f.count("http://example.com/b.m3u8") == 1 }, time.Second, time.Millisecond)

	clock.fire(clock.await(t, 2*time.Second))
	require.Eventually(t, func() bool { return terminal(r, "http://example.com/a.m3u8") }, time.Second, time.Millisecond)
	require.Never(t, func() bool { return r.State() != stateReading }, 50*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, []string{"http://example.com/a.m3u8", "http://example.com/b.m3u8"}, r.Tracked())

	clock.fire(clock.await(t, 3*time.Second))
	var items []Item
	for item := range r.Items() {
		items = append(items, item)
	}
	require.NoError(t, <-errc)
	require.Equal(t, stateClosed, r.State())
	require.Equal(t, 2, countKinds(items)[KindMaster])
	require.Equal(t, 4, countKinds(items)[KindMedia])
}

const audioMaster = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",DEFAULT=YES,URI="en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=1,AUDIO="aud"
v1.m3u8
`

func TestVariantRemovedOnMasterRevision(t *testing.T) {
	revisions := []string{
		audioMaster + "#EXT-X-STREAM-INF:BANDWIDTH=2\nv2.m3u8\n",
		audioMaster,
	}
	f := newFakeFetcher(func(location string, n int) (*fetch.Content, error) {
		switch {
		case strings.HasSuffix(location, "master.m3u8"):
			return text(revisions[min(n, 2)-1]), nil
		case strings.HasSuffix(location, ".m3u8"):
			return text(livePlaylist(2, false)), nil
		}
		return &fetch.Content{Data: []byte(location)}, nil
	})

	var mu sync.Mutex
	var selected []playlist.RenditionType
	clock := &fakeClock{}
	r := newTestReader(t, "http://example.com/master.m3u8", f,
		WithRenditionSelector(func(rt playlist.RenditionType, group []*playlist.Rendition) []int {
			mu.Lock()
			selected = append(selected, rt)
			mu.Unlock()
			return allIndices(len(group))
		}),
	)
	r.afterFunc = clock.AfterFunc
	cancel, errc := startReader(t, r)
	go func() {
		for range r.Items() {
		}
	}()

	all := []string{
		"http://example.com/en.m3u8",
		"http://example.com/v1.m3u8",
		"http://example.com/v2.m3u8",
	}
	require.Eventually(t, func() bool {
		return f.count(all[0]) == 1 && f.count(all[1]) == 1 && f.count(all[2]) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, all, r.Tracked())

	clock.fire(clock.await(t, masterPoll))
	require.Eventually(t, func() bool { return len(r.Tracked()) == 2 }, time.Second, time.Millisecond)
	require.Equal(t, all[:2], r.Tracked())
	require.Equal(t, 2, f.count("http://example.com/master.m3u8"))
	clock.await(t, masterPoll)

	mu.Lock()
	require.Equal(t, []playlist.RenditionType{playlist.RenditionAudio}, selected)
	mu.Unlock()

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestUnchangedMasterRetry(t *testing.T) {
	const master = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nv.m3u8\n"
	f := newFakeFetcher(func(location string, n int) (*fetch.Content, error) {
		switch {
		case strings.HasSuffix(location, "master.m3u8"):
			return text(master), nil
		case strings.HasSuffix(location, ".m3u8"):
			return text(livePlaylist(2, false)), nil
		}
		return &fetch.Content{Data: []byte(location)}, nil
	})
	cfg := testConfig()
	cfg.MasterPollInterval = 7 * time.Second
	clock := &fakeClock{}
	r := newTestReader(t, "http://example.com/master.m3u8", f, WithConfig(cfg))
	r.afterFunc = clock.AfterFunc
	cancel, errc := startReader(t, r)

	require.Equal(t, KindMaster, next(t, r.Items()).Kind)
	require.Equal(t, KindMedia, next(t, r.Items()).Kind)
	require.Equal(t, KindSegment, next(t, r.Items()).Kind)

	first := clock.await(t, 7*time.Second)
	clock.fire(first)
	require.Eventually(t, func() bool { return f.count("http://example.com/master.m3u8") == 2 }, time.Second, time.Millisecond)
	require.NotEqual(t, first, clock.await(t, 7*time.Second))

	select {
	case item := <-r.Items():
		t.Fatalf("unexpected %s item for unchanged master", item.Kind)
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 1, f.count("http://example.com/v.m3u8"))

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestFailedVariantRetriedOnMasterPoll(t *testing.T) {
	const master = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\ngood.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2\nflaky.m3u8\n"
	f := newFakeFetcher(func(location string, n int) (*fetch.Content, error) {
		switch {
		case strings.HasSuffix(location, "master.m3u8"):
			return text(master), nil
		case strings.HasSuffix(location, "flaky.m3u8") && n == 1:
			return nil, errors.Wrap(fetch.ErrNotFound, location)
		case strings.HasSuffix(location, ".m3u8"):
			return text(livePlaylist(2, false)), nil
		}
		return &fetch.Content{Data: []byte(location)}, nil
	})
	clock := &fakeClock{}
	r := newTestReader(t, "http://example.com/master.m3u8", f)
	r.afterFunc = clock.AfterFunc
	cancel, errc := startReader(t, r)
	go func() {
		for range r.Items() {
		}
	}()

	require.Eventually(t, func() bool {
		return f.count("http://example.com/flaky.m3u8") == 1 && len(r.Tracked()) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, []string{"http://example.com/good.m3u8"}, r.Tracked())

	clock.fire(clock.await(t, masterPoll))
	require.Eventually(t, func() bool {
		return f.count("http://example.com/flaky.m3u8") == 2 && len(r.Tracked()) == 2
	}, time.Second, time.Millisecond)
	require.Equal(t, 2, f.count("http://example.com/master.m3u8"))

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}
