// Package hlsread reads an HLS playlist tree as a stream of playlists and
// segments.
//
//	s, err := hlsread.CreateReadStream(ctx, "https://example.com/master.m3u8")
//	if err != nil {
//		return err
//	}
//	for item := range s.Items() {
//		...
//	}
//	return s.Wait()
package hlsread

import (
	"context"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/reader"
	"github.com/pkg/errors"
)

type (
	Item      = reader.Item
	Kind      = reader.Kind
	LoadError = reader.LoadError
	Option    = reader.Option

	VariantSelector   = reader.VariantSelector
	RenditionSelector = reader.RenditionSelector
)

const (
	KindMaster  = reader.KindMaster
	KindMedia   = reader.KindMedia
	KindSegment = reader.KindSegment
	KindError   = reader.KindError
)

var (
	WithConfig            = reader.WithConfig
	WithLoader            = reader.WithLoader
	WithFetcher           = reader.WithFetcher
	WithVariantSelector   = reader.WithVariantSelector
	WithRenditionSelector = reader.WithRenditionSelector
	WithLogger            = reader.WithLogger
	WithMetrics           = reader.WithMetrics

	ErrInvalidState = reader.ErrInvalidState
)

// Stream is a running reader.
type Stream struct {
	r      *reader.Reader
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// CreateReadStream starts reading location. Bare paths are resolved against
// the configured root path.
func CreateReadStream(ctx context.Context, location string, opts ...Option) (*Stream, error) {
	r, err := reader.New(location, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "reader.New")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		r:      r,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		s.err = r.Run(ctx)
	}()
	return s, nil
}

// Items is closed once the whole tree has been delivered, or the stream
// stopped.
func (s *Stream) Items() <-chan Item { return s.r.Items() }

func (s *Stream) State() string { return s.r.State() }

// Tracked lists the media playlists currently followed.
func (s *Stream) Tracked() []string { return s.r.Tracked() }

// Wait blocks until the stream stops. Items must be drained meanwhile.
func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

// Close stops the stream and discards anything not yet read.
func (s *Stream) Close() error {
	s.cancel()
	go func() {
		for range s.r.Items() {
		}
	}()
	err := s.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
