package hlsread_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/config"
	"github.com/WIZARDISHUNGRY/hls-reader/pkg/hlsread"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func TestCreateReadStreamFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "master.m3u8", "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1000\nlow/index.m3u8\n")
	writeFile(t, dir, "low/index.m3u8", "#EXTM3U\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXT-X-TARGETDURATION:2\n#EXTINF:2,\nseg0.ts\n#EXTINF:2,\nseg1.ts\n#EXT-X-ENDLIST\n")
	writeFile(t, dir, "low/seg0.ts", "zero")
	writeFile(t, dir, "low/seg1.ts", "one")

	cfg := config.Default()
	cfg.RootPath = dir
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := hlsread.CreateReadStream(ctx, "master.m3u8", hlsread.WithConfig(cfg))
	require.NoError(t, err)

	kinds := map[hlsread.Kind]int{}
	data := map[string]string{}
	for item := range s.Items() {
		kinds[item.Kind]++
		if item.Kind == hlsread.KindSegment {
			data[filepath.Base(item.Segment.URI)] = string(item.Segment.Data)
		}
	}
	require.NoError(t, s.Wait())
	require.Equal(t, "closed", s.State())
	require.Equal(t, 1, kinds[hlsread.KindMaster])
	require.Equal(t, 1, kinds[hlsread.KindMedia])
	require.Equal(t, map[string]string{"seg0.ts": "zero", "seg1.ts": "one"}, data)
}

func TestCloseLiveStream(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "live.m3u8", "#EXTM3U\n#EXT-X-TARGETDURATION:30\n#EXTINF:30,\nseg0.ts\n")
	writeFile(t, dir, "seg0.ts", "zero")

	cfg := config.Default()
	cfg.RootPath = dir
	s, err := hlsread.CreateReadStream(context.Background(), "live.m3u8", hlsread.WithConfig(cfg))
	require.NoError(t, err)

	item := <-s.Items()
	require.Equal(t, hlsread.KindMedia, item.Kind)
	require.False(t, item.Media.Terminal())
	require.Eventually(t, func() bool { return len(s.Tracked()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	for range s.Items() {
	}
	require.Equal(t, "reading", s.State())
}
