package fetch

import (
	"context"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func fetchFile(ctx context.Context, u *url.URL, opts Options) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := filepath.FromSlash(u.Path)
	c := &Content{MimeType: mime.TypeByExtension(filepath.Ext(name))}

	if opts.RawResponse {
		f, err := os.Open(name)
		if err != nil {
			return nil, fileError(u, err)
		}
		c.Stream = f
		return c, nil
	}

	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fileError(u, err)
	}
	c.Data = b
	return c, nil
}

func fileError(u *url.URL, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrNotFound, "file %s", u.Path)
	}
	return &TransportError{Location: u.String(), Err: err}
}
