package reader

import (
	"fmt"
	"io"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/fetch"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/loader"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/playlist"
)

func (r *Reader) updateMedia(p *playlist.Media) {
	prev, tracked := r.medias[p.URI]
	if !tracked && p.URI != r.location {
		r.log.WithField("location", p.URI).Debug("dropping update of unfollowed playlist")
		return
	}

	r.publish(Item{Kind: KindMedia, Media: p.Clone()})
	r.reconcileSegments(prev, p)
	r.track(p.URI, p)

	if p.Terminal() {
		r.cancel(p.URI)
		return
	}
	r.schedule(p.URI, seconds(p.TargetDuration), func() {
		r.loadPlaylist(p.URI, p.ParentURI)
	})
}

func segmentKey(s *playlist.Segment) string {
	if s.ByteRange == nil {
		return s.URI
	}
	return fmt.Sprintf("%s@%d:%d", s.URI, s.ByteRange.Offset, s.ByteRange.Length)
}

// reconcileSegments carries over segments p shares with prev, including any
// load still in flight for them, and loads the rest.
func (r *Reader) reconcileSegments(prev, p *playlist.Media) {
	known := make(map[string]*playlist.Segment)
	if prev != nil {
		for _, s := range prev.Segments {
			known[segmentKey(s)] = s
		}
	}
	for i, s := range p.Segments {
		if old, ok := known[segmentKey(s)]; ok {
			old.SequenceNumber = s.SequenceNumber
			p.Segments[i] = old
			continue
		}
		r.loadSegment(s)
	}
}

func (r *Reader) loadSegment(s *playlist.Segment) {
	if r.cfg.PlaylistOnly {
		return
	}

	// A segment whose key or map failed is never published, so a raw body
	// has to be closed here.
	var failed bool
	abandon := func() {
		failed = true
		if s.Stream != nil {
			s.Stream.Close()
			s.Stream = nil
		}
	}

	r.load(s.URI, loader.Options{ReadAsBinary: true, RawResponse: r.cfg.RawResponse}, func(c *fetch.Content, err error) {
		if err != nil {
			r.publishError(s.URI, err)
			return
		}
		if c.Stream != nil {
			if failed {
				c.Stream.Close()
				return
			}
			s.Stream = rangeStream(c.Stream, s.ByteRange)
		} else {
			s.Data = s.ByteRange.Trim(c.Data)
			if s.Data == nil {
				s.Data = []byte{}
			}
		}
		s.MimeType = c.MimeType
		r.publishSegment(s)
	})

	if s.Key.NeedsData() {
		k := s.Key
		r.load(k.URI, loader.Options{ReadAsBinary: true}, func(c *fetch.Content, err error) {
			if err != nil {
				r.publishError(k.URI, err)
				abandon()
				return
			}
			k.Data = c.Data
			r.publishSegment(s)
		})
	}

	if m := s.Map; m != nil {
		r.load(m.URI, loader.Options{ReadAsBinary: true}, func(c *fetch.Content, err error) {
			if err != nil {
				r.publishError(m.URI, err)
				abandon()
				return
			}
			m.Data = m.ByteRange.Trim(c.Data)
			if m.Data == nil {
				m.Data = []byte{}
			}
			m.MimeType = c.MimeType
			r.publishSegment(s)
		})
	}
}

// publishSegment emits s once it and its key and map have data. Only the
// last of its loads to finish sees it ready.
func (r *Reader) publishSegment(s *playlist.Segment) {
	if !s.Ready() {
		return
	}
	r.publish(Item{Kind: KindSegment, Segment: s.Clone()})
	s.Stream = nil
}

type rangeReader struct {
	io.Reader
	io.Closer
}

// rangeStream limits a raw body to br. The skip happens on the consumer's
// first read.
func rangeStream(rc io.ReadCloser, br *playlist.ByteRange) io.ReadCloser {
	if br == nil {
		return rc
	}
	return &rangeReader{
		Reader: &lazyRange{src: rc, br: br},
		Closer: rc,
	}
}

type lazyRange struct {
	src     io.Reader
	br      *playlist.ByteRange
	limited io.Reader
}

func (l *lazyRange) Read(p []byte) (int, error) {
	if l.limited == nil {
		if _, err := io.CopyN(io.Discard, l.src, l.br.Offset); err != nil {
			if err == io.EOF {
				l.limited = eofReader{}
				return 0, io.EOF
			}
			return 0, err
		}
		l.limited = l.src
		if l.br.Length >= 0 {
			l.limited = io.LimitReader(l.src, l.br.Length)
		}
	}
	return l.limited.Read(p)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
