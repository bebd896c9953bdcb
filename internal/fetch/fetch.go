// Package fetch retrieves raw resources from file, http(s) and data locations.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned, possibly wrapped, when a resource does not exist.
var ErrNotFound = errors.New("not found")

type Options struct {
	ReadAsBinary bool
	// RawResponse returns the body as an open stream in Content.Stream
	// instead of buffering it into Content.Data.
	RawResponse bool
	// NoCache asks intermediate HTTP caches to revalidate.
	NoCache bool
}

type Content struct {
	Data     []byte
	Stream   io.ReadCloser
	MimeType string
}

type Fetcher interface {
	Fetch(ctx context.Context, location string, opts Options) (*Content, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, location string, opts Options) (*Content, error)

func (f FetcherFunc) Fetch(ctx context.Context, location string, opts Options) (*Content, error) {
	return f(ctx, location, opts)
}

// TransportError is an I/O failure other than a missing resource.
type TransportError struct {
	Location string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Location, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Location   string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: bad http code %d", e.Location, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err means the resource is missing, as opposed to
// a transport failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Universal dispatches on the location scheme.
type Universal struct {
	client *http.Client
}

var _ Fetcher = (*Universal)(nil)

func New(client *http.Client) *Universal {
	if client == nil {
		client = http.DefaultClient
	}
	return &Universal{client: client}
}

func (u *Universal) Fetch(ctx context.Context, location string, opts Options) (*Content, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	switch strings.ToLower(parsed.Scheme) {
	case "file":
		return fetchFile(ctx, parsed, opts)
	case "http", "https":
		return fetchHTTP(ctx, u.client, location, opts)
	case "data":
		return fetchData(location, opts)
	}
	return nil, &TransportError{Location: location, Err: errors.Errorf("unsupported scheme %q", parsed.Scheme)}
}
