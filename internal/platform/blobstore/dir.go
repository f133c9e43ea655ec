package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DirStore keeps blobs as files under a root directory.
type DirStore struct {
	fs   afero.Fs
	root string
}

// NewDirStore roots a store at dir on fsys. The directory is created when
// missing.
func NewDirStore(fsys afero.Fs, dir string) (*DirStore, error) {
	if info, err := fsys.Stat(dir); err == nil && info.IsDir() {
		return &DirStore{fs: fsys, root: dir}, nil
	}
	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory %s: %w", dir, err)
	}
	return &DirStore{fs: fsys, root: dir}, nil
}

func (s *DirStore) path(name string) (string, error) {
	cleaned, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Save writes to a temporary sibling and renames it into place so readers
// never observe a partial file.
func (s *DirStore) Save(_ context.Context, name string, content io.Reader) error {
	dst, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}

	tmp, err := afero.TempFile(s.fs, filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer s.fs.Remove(tmpName)

	n, err := io.Copy(tmp, io.LimitReader(content, MaxFileSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if n > MaxFileSize {
		return ErrTooLarge
	}
	if err := s.fs.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename into %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) Exists(_ context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *DirStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// CheckWritable writes a temp file in the root so startup fails fast on a read-only mount.
func (s *DirStore) CheckWritable() error {
	f, err := afero.TempFile(s.fs, s.root, ".writecheck-*")
	if err != nil {
		return fmt.Errorf("blob directory %s is not writable: %w", s.root, err)
	}
	name := f.Name()
	f.Close()
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
