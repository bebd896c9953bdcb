package reader

import (
	"fmt"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/playlist"
	"github.com/pkg/errors"
)

// ErrInvalidState means the state machine was driven out of order. It is
// fatal to Run.
var ErrInvalidState = errors.New("invalid state")

type Kind int

const (
	KindMaster Kind = iota + 1
	KindMedia
	KindSegment
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindMaster:
		return "master"
	case KindMedia:
		return "media"
	case KindSegment:
		return "segment"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Item is one unit of output. Exactly one of Master, Media, Segment or Err
// is set, matching Kind. Items are copies; consumers may keep them.
type Item struct {
	Kind    Kind
	Master  *playlist.Master
	Media   *playlist.Media
	Segment *playlist.Segment
	Err     *LoadError
}

// URI is the location the item came from.
func (i Item) URI() string {
	switch {
	case i.Master != nil:
		return i.Master.URI
	case i.Media != nil:
		return i.Media.URI
	case i.Segment != nil:
		return i.Segment.URI
	case i.Err != nil:
		return i.Err.Location
	}
	return ""
}

// LoadError is a failed fetch or parse of a single resource. The reader keeps
// going after one.
type LoadError struct {
	Location string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
