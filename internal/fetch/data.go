package fetch

import (
	"bytes"
	"io"

	"github.com/vincent-petithory/dataurl"
)

func fetchData(location string, opts Options) (*Content, error) {
	du, err := dataurl.DecodeString(location)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	c := &Content{MimeType: du.ContentType()}
	if opts.RawResponse {
		c.Stream = io.NopCloser(bytes.NewReader(du.Data))
		return c, nil
	}
	c.Data = du.Data
	return c, nil
}
