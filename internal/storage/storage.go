// Package storage commits run output to an object store with a single put.
//
// Supported destinations are addressed by URI prefix:
//
//	s3://bucket/path     AWS S3 or an S3-compatible endpoint
//	gs://bucket/path     Google Cloud Storage
//	file:///abs/dir      local filesystem (temp file plus rename)
//
// Only put is part of the contract. There is no list or delete.
package storage

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// Schemes understood by Open.
const (
	SchemeS3     = "s3"
	SchemeGCS    = "gs"
	SchemeFile   = "file"
	SchemeMemory = "mem"
)

// Object is one complete payload to commit.
type Object struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// ObjectStore performs a single atomic put. Readers never observe a partially
// written object.
type ObjectStore interface {
	Scheme() string
	Put(ctx context.Context, obj *Object) error
	Close() error
}

// Location is a parsed destination prefix.
type Location struct {
	Scheme string
	Bucket string
	Path   string
}

// ParseURI splits a destination prefix into scheme, bucket and path. A bare
// path without a scheme is treated as a file destination.
func ParseURI(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New(errors.ErrorTypeConfig, "destination prefix is empty")
	}

	if !strings.Contains(raw, "://") {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return Location{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid destination path")
		}
		return Location{Scheme: SchemeFile, Path: filepath.ToSlash(abs)}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid destination prefix")
	}

	loc := Location{Scheme: strings.ToLower(u.Scheme)}
	switch loc.Scheme {
	case SchemeS3, SchemeGCS, SchemeMemory:
		if u.Host == "" {
			return Location{}, errors.Newf(errors.ErrorTypeConfig, "destination %q has no bucket", raw)
		}
		loc.Bucket = u.Host
		loc.Path = strings.Trim(path.Clean("/"+u.Path), "/")
	case SchemeFile:
		if u.Host != "" && u.Host != "localhost" {
			return Location{}, errors.Newf(errors.ErrorTypeConfig, "file destination %q must be local", raw)
		}
		if u.Path == "" {
			return Location{}, errors.Newf(errors.ErrorTypeConfig, "file destination %q has no path", raw)
		}
		loc.Path = path.Clean(u.Path)
	default:
		return Location{}, errors.Newf(errors.ErrorTypeConfig, "unsupported destination scheme %q", u.Scheme)
	}

	return loc, nil
}

// Key joins elems under the location path. For bucket stores the result has
// no leading slash.
func (l Location) Key(elems ...string) string {
	parts := append([]string{l.Path}, elems...)
	key := path.Join(parts...)
	if l.Bucket != "" {
		key = strings.TrimPrefix(key, "/")
	}
	return key
}

// URI renders a full object URI for key.
func (l Location) URI(key string) string {
	if l.Scheme == SchemeFile {
		return "file://" + key
	}
	return l.Scheme + "://" + l.Bucket + "/" + key
}

// String renders the location prefix.
func (l Location) String() string {
	return l.URI(l.Path)
}
