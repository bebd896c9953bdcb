// Package uri classifies playlist references and resolves them against the
// location of the document that contains them.
package uri

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type Kind int

const (
	Absolute Kind = iota
	SchemeRelative
	PathAbsolute
	PathRelative
)

func (k Kind) String() string {
	switch k {
	case Absolute:
		return "absolute"
	case SchemeRelative:
		return "scheme-relative"
	case PathAbsolute:
		return "path-absolute"
	case PathRelative:
		return "path-relative"
	}
	return "unknown"
}

const defaultScheme = "http"

// Classify reports how ref relates to the document it appears in.
func Classify(ref string) Kind {
	if _, ok := parseAbsolute(ref); ok {
		return Absolute
	}
	if strings.HasPrefix(ref, "//") {
		return SchemeRelative
	}
	if strings.HasPrefix(ref, "/") {
		return PathAbsolute
	}
	return PathRelative
}

// Resolve returns the absolute location of ref as seen from base. An empty or
// non-absolute base counts as no base, in which case ref is joined onto
// rootPath and returned as a file URL.
func Resolve(base, ref, rootPath string) (string, error) {
	baseURL, hasBase := parseAbsolute(base)

	switch Classify(ref) {
	case Absolute:
		u, _ := parseAbsolute(ref)
		return normalize(u), nil
	case SchemeRelative:
		scheme := defaultScheme
		if hasBase {
			scheme = baseURL.Scheme
		}
		u, err := url.Parse(scheme + ":" + ref)
		if err != nil {
			return "", errors.Wrapf(err, "parse %q", ref)
		}
		return normalize(u), nil
	case PathAbsolute:
		if hasBase && !isFile(baseURL) {
			return reference(baseURL, ref)
		}
	case PathRelative:
		if hasBase {
			return reference(baseURL, ref)
		}
	}
	return fileLocation(rootPath, ref)
}

// ResolveChain resolves refs left to right, each against the result of the
// previous one.
func ResolveChain(rootPath string, refs ...string) (string, error) {
	var acc string
	for _, ref := range refs {
		next, err := Resolve(acc, ref, rootPath)
		if err != nil {
			return "", err
		}
		acc = next
	}
	return acc, nil
}

// IsFile reports whether location names something on the local filesystem.
func IsFile(location string) bool {
	u, ok := parseAbsolute(location)
	return ok && isFile(u)
}

// ToFilePath converts a file URL into a filesystem path.
func ToFilePath(location string) (string, bool) {
	u, ok := parseAbsolute(location)
	if !ok || !isFile(u) {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

// FromFilePath converts a filesystem path into a file URL, making it absolute
// against the working directory first.
func FromFilePath(path string) (string, error) {
	return fileLocation("", path)
}

func parseAbsolute(s string) (*url.URL, bool) {
	if s == "" {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return nil, false
	}
	return u, true
}

func isFile(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, "file")
}

func reference(base *url.URL, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", errors.Wrapf(err, "parse %q", ref)
	}
	return normalize(base.ResolveReference(r)), nil
}

func fileLocation(rootPath, ref string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(rootPath, ref))
	if err != nil {
		return "", errors.Wrapf(err, "abs %q", ref)
	}
	u, err := url.Parse("file://" + filepath.ToSlash(abs))
	if err != nil {
		return "", errors.Wrapf(err, "file url %q", abs)
	}
	return u.String(), nil
}

// normalize gives hierarchical URLs with an authority a non-empty path so
// that "http://host" and "http://host/" compare equal as cache keys.
func normalize(u *url.URL) string {
	if u.Host != "" && u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u.String()
}
