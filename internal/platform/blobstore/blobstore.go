// Package blobstore stores chart packets and serves instruction documents.
// Callers address objects by flat names; backends decide where bytes live.
package blobstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidName = errors.New("invalid blob name")
	ErrTooLarge    = errors.New("file exceeds maximum allowed size")
)

// MaxFileSize caps a single packet (256 MB).
const MaxFileSize = 256 << 20

// Store is the contract shared by the directory and S3 backends.
type Store interface {
	Save(ctx context.Context, name string, content io.Reader) error
	Exists(ctx context.Context, name string) (bool, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// CleanName validates a caller-supplied object name. Names may contain
// forward-slash separated segments but never escape the store root.
func CleanName(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") || strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}
	cleaned := path.Clean("/" + name)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(name, "/") {
		return "", ErrInvalidName
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".." || seg == "." || strings.HasPrefix(seg, ".") {
			return "", ErrInvalidName
		}
	}
	return cleaned, nil
}

// suffixes maps accepted packet content types to file suffixes.
var suffixes = map[string]string{
	"application/pdf":              ".pdf",
	"application/zip":              ".zip",
	"application/x-zip-compressed": ".zip",
	"application/gzip":             ".gz",
	"application/x-gzip":           ".gz",
}

// SuffixFor returns the file suffix for a packet content type, or false
// when the type is not an accepted packet format.
func SuffixFor(contentType string) (string, bool) {
	ct, _, _ := strings.Cut(contentType, ";")
	s, ok := suffixes[strings.ToLower(strings.TrimSpace(ct))]
	return s, ok
}
