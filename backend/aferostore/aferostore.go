// Package aferostore provides a keyfs.ObjectStore over any afero
// filesystem. Directories map to real directories and files to real
// files, which makes an existing tree browsable through keyfs directly.
//
// Content types are derived from file extensions; the underlying
// filesystem has nowhere to keep them. An OsFs should be wrapped in a
// BasePathFs to avoid exposing the host root.
package aferostore

import (
	"fmt"
	"io"
	"mime"
	"os"
	gopath "path"
	"sort"
	"strings"

	"github.com/keyfs-io/keyfs"
	"github.com/spf13/afero"
)

const DefaultPageSize = 256

type Option func(s *Store)

func WithPageSize(n int) Option {
	return func(s *Store) { s.pageSize = n }
}

type Store struct {
	fs       afero.Fs
	pageSize int
}

var _ keyfs.ObjectStore = &Store{}

func New(fs afero.Fs, opts ...Option) (*Store, error) {
	if fs == nil {
		return nil, fmt.Errorf("aferostore: fs is required")
	}
	s := &Store{fs: fs, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// normalize maps a store key onto a rooted path inside the filesystem.
func normalize(key keyfs.Key) string {
	k := strings.Trim(string(key), "/")
	if k == "" || k == "." {
		return "/"
	}
	return "/" + k
}

func mapErr(err error, key keyfs.Key) error {
	if os.IsNotExist(err) {
		return keyfs.KeyNotFound(key)
	}
	return err
}

func (s *Store) stat(key keyfs.Key) (os.FileInfo, string, error) {
	p := normalize(key)
	fi, err := s.fs.Stat(p)
	if err != nil {
		return nil, p, mapErr(err, key)
	}
	return fi, p, nil
}

func (s *Store) Head(key keyfs.Key) (*keyfs.ObjectInfo, error) {
	fi, p, err := s.stat(key)
	if err != nil {
		return nil, err
	}
	return infoFor(key, p, fi), nil
}

func infoFor(key keyfs.Key, p string, fi os.FileInfo) *keyfs.ObjectInfo {
	info := &keyfs.ObjectInfo{
		Key:          key,
		Dir:          fi.IsDir(),
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
	}
	if !fi.IsDir() {
		info.ContentType = mime.TypeByExtension(gopath.Ext(p))
	}
	return info
}

func (s *Store) Exists(key keyfs.Key) (bool, error) {
	_, _, err := s.stat(key)
	if err != nil {
		if keyfs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Reader(key keyfs.Key) (keyfs.ReadAtSeekCloser, error) {
	fi, p, err := s.stat(key)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
	}
	f, err := s.fs.Open(p)
	if err != nil {
		return nil, mapErr(err, key)
	}
	return f, nil
}

func (s *Store) Writer(key keyfs.Key, headers keyfs.PutHeaders) (io.WriteCloser, error) {
	p := normalize(key)
	if err := s.fs.MkdirAll(gopath.Dir(p), 0755); err != nil {
		return nil, err
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) Put(key keyfs.Key, data []byte, headers keyfs.PutHeaders) error {
	p := normalize(key)
	if err := s.fs.MkdirAll(gopath.Dir(p), 0755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0644)
}

func (s *Store) Delete(key keyfs.Key) error {
	fi, p, err := s.stat(key)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		entries, err := afero.ReadDir(s.fs, p)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return fmt.Errorf("aferostore: directory not empty: %s", p)
		}
	}
	return s.fs.Remove(p)
}

func (s *Store) DeleteRecursive(key keyfs.Key) error {
	_, p, err := s.stat(key)
	if err != nil {
		return err
	}
	return s.fs.RemoveAll(p)
}

func (s *Store) Move(sourceKey, destKey keyfs.Key) error {
	_, src, err := s.stat(sourceKey)
	if err != nil {
		return err
	}
	dst := normalize(destKey)
	if err := s.fs.MkdirAll(gopath.Dir(dst), 0755); err != nil {
		return err
	}
	return s.fs.Rename(src, dst)
}

func (s *Store) PutDirectory(key keyfs.Key) (bool, error) {
	p := normalize(key)
	fi, err := s.fs.Stat(p)
	if err == nil {
		if !fi.IsDir() {
			return false, keyfs.NotADirectory(key)
		}
		return true, nil
	}
	if !os.IsNotExist(err) {
		return false, err
	}
	if err := s.fs.MkdirAll(p, 0755); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListPage(key keyfs.Key, token string) (*keyfs.ListPage, error) {
	fi, p, err := s.stat(key)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, keyfs.NotADirectory(key)
	}

	entries, err := afero.ReadDir(s.fs, p)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	dir := strings.TrimPrefix(p, "/")
	page := &keyfs.ListPage{}
	for _, entry := range entries {
		childKey := entry.Name()
		if dir != "" {
			childKey = dir + "/" + entry.Name()
		}
		if token != "" && childKey <= token {
			continue
		}
		if len(page.Entries) == s.pageSize {
			page.NextToken = string(page.Entries[len(page.Entries)-1].Key)
			break
		}
		child := normalize(keyfs.Key(childKey))
		page.Entries = append(page.Entries, *infoFor(keyfs.Key(childKey), child, entry))
	}
	return page, nil
}
