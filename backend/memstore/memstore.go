// Package memstore provides an in-memory keyfs.ObjectStore. It is the
// reference store used throughout the test suite; data does not survive
// the process.
package memstore

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	gopath "path"
	"strings"
	"sync"
	"time"

	"github.com/keyfs-io/keyfs"
	"github.com/ryszard/goskiplist/skiplist"
)

const DefaultPageSize = 256

type Option func(s *Store)

func WithTimeSource(timeSource keyfs.TimeSource) Option {
	return func(s *Store) { s.timeSource = timeSource }
}

// WithPageSize caps the number of entries returned per listing page.
// Small values are useful for exercising pagination in tests.
func WithPageSize(n int) Option {
	return func(s *Store) { s.pageSize = n }
}

type Store struct {
	// The keys in this skiplist are normalized object keys, the values
	// are *object. The skiplist keeps listing order stable and lets
	// pagination resume after an arbitrary key.
	objects *skiplist.SkipList

	timeSource keyfs.TimeSource
	pageSize   int
	mu         sync.Mutex
}

var _ keyfs.ObjectStore = &Store{}

func New(opts ...Option) *Store {
	s := &Store{
		objects:  skiplist.NewStringMap(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeSource == nil {
		s.timeSource = keyfs.DefaultTimeSource()
	}
	return s
}

type object struct {
	key          string
	dir          bool
	data         []byte
	contentType  string
	durability   int
	lastModified time.Time
	etag         string
}

func (o *object) info() *keyfs.ObjectInfo {
	return &keyfs.ObjectInfo{
		Key:          keyfs.Key(o.key),
		Dir:          o.dir,
		Size:         int64(len(o.data)),
		LastModified: o.lastModified,
		ContentType:  o.contentType,
		ETag:         o.etag,
		Durability:   o.durability,
	}
}

// normalize maps the root spellings ("", ".", "/") to the empty string
// and strips redundant slashes so that keys with and without a leading
// slash address the same object.
func normalize(key keyfs.Key) string {
	s := strings.Trim(string(key), "/")
	if s == "." {
		s = ""
	}
	return s
}

func parentOf(key string) string {
	d := gopath.Dir(key)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

func (s *Store) get(key string) (*object, bool) {
	v, ok := s.objects.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*object), true
}

// ensureParents creates any missing ancestor directories of key. A file
// object sitting where a directory is needed fails the whole write.
func (s *Store) ensureParents(key string) error {
	segments := strings.Split(key, "/")
	prefix := ""
	for _, seg := range segments[:len(segments)-1] {
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "/" + seg
		}
		if obj, ok := s.get(prefix); ok {
			if !obj.dir {
				return keyfs.NotADirectory(keyfs.Key(prefix))
			}
			continue
		}
		s.objects.Set(prefix, &object{
			key:          prefix,
			dir:          true,
			lastModified: s.timeSource.Now(),
		})
	}
	return nil
}

func (s *Store) hasChildren(key string) bool {
	iter := s.objects.Iterator()
	for iter.Next() {
		if strings.HasPrefix(iter.Key().(string), key+"/") {
			return true
		}
	}
	return false
}

func (s *Store) Head(key keyfs.Key) (*keyfs.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := normalize(key)
	if k == "" {
		return &keyfs.ObjectInfo{Key: key, Dir: true}, nil
	}
	obj, ok := s.get(k)
	if !ok {
		return nil, keyfs.KeyNotFound(key)
	}
	return obj.info(), nil
}

func (s *Store) Exists(key keyfs.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := normalize(key)
	if k == "" {
		return true, nil
	}
	_, ok := s.get(k)
	return ok, nil
}

func (s *Store) Reader(key keyfs.Key) (keyfs.ReadAtSeekCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.get(normalize(key))
	if !ok {
		return nil, keyfs.KeyNotFound(key)
	}
	if obj.dir {
		return nil, keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
	}

	// The data slice is replaced wholesale on every write, so handing the
	// current slice to a reader is safe.
	return readCloser{bytes.NewReader(obj.data)}, nil
}

type readCloser struct{ *bytes.Reader }

func (readCloser) Close() error { return nil }

func (s *Store) Writer(key keyfs.Key, headers keyfs.PutHeaders) (io.WriteCloser, error) {
	return &writer{store: s, key: key, headers: headers}, nil
}

type writer struct {
	store   *Store
	key     keyfs.Key
	headers keyfs.PutHeaders
	buf     bytes.Buffer
	closed  bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("memstore: write on closed writer for %s", w.key)
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.store.Put(w.key, w.buf.Bytes(), w.headers)
}

func (s *Store) Put(key keyfs.Key, data []byte, headers keyfs.PutHeaders) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := normalize(key)
	if k == "" {
		return keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
	}
	if obj, ok := s.get(k); ok && obj.dir {
		return keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
	}
	if err := s.ensureParents(k); err != nil {
		return err
	}

	hash := md5.Sum(data)
	s.objects.Set(k, &object{
		key:          k,
		data:         append([]byte(nil), data...),
		contentType:  headers.ContentType,
		durability:   headers.Durability,
		lastModified: s.timeSource.Now(),
		etag:         `"` + hex.EncodeToString(hash[:]) + `"`,
	})
	return nil
}

func (s *Store) Delete(key keyfs.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := normalize(key)
	obj, ok := s.get(k)
	if !ok {
		return keyfs.KeyNotFound(key)
	}
	if obj.dir && s.hasChildren(k) {
		return fmt.Errorf("memstore: directory not empty: %s", k)
	}
	s.objects.Delete(k)
	return nil
}

func (s *Store) DeleteRecursive(key keyfs.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := normalize(key)
	if _, ok := s.get(k); !ok {
		return keyfs.KeyNotFound(key)
	}
	for _, victim := range s.subtree(k) {
		s.objects.Delete(victim)
	}
	return nil
}

// subtree returns key and every key below it, in order.
func (s *Store) subtree(key string) []string {
	keys := []string{key}
	iter := s.objects.Iterator()
	for iter.Next() {
		if k := iter.Key().(string); strings.HasPrefix(k, key+"/") {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s *Store) Move(sourceKey, destKey keyfs.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := normalize(sourceKey)
	dst := normalize(destKey)
	if _, ok := s.get(src); !ok {
		return keyfs.KeyNotFound(sourceKey)
	}
	if err := s.ensureParents(dst); err != nil {
		return err
	}

	for _, k := range s.subtree(src) {
		v, _ := s.objects.Get(k)
		obj := *v.(*object)
		obj.key = dst + strings.TrimPrefix(k, src)
		s.objects.Delete(k)
		s.objects.Set(obj.key, &obj)
	}
	return nil
}

func (s *Store) PutDirectory(key keyfs.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := normalize(key)
	if k == "" {
		return true, nil
	}
	if obj, ok := s.get(k); ok {
		if !obj.dir {
			return false, keyfs.NotADirectory(key)
		}
		return true, nil
	}
	if err := s.ensureParents(k); err != nil {
		return false, err
	}
	s.objects.Set(k, &object{
		key:          k,
		dir:          true,
		lastModified: s.timeSource.Now(),
	})
	return true, nil
}

func (s *Store) ListPage(key keyfs.Key, token string) (*keyfs.ListPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := normalize(key)
	if dir != "" {
		obj, ok := s.get(dir)
		if !ok {
			return nil, keyfs.KeyNotFound(key)
		}
		if !obj.dir {
			return nil, keyfs.NotADirectory(key)
		}
	}

	page := &keyfs.ListPage{}
	iter := s.objects.Iterator()
	for iter.Next() {
		k := iter.Key().(string)
		if token != "" && k <= token {
			continue
		}
		if parentOf(k) != dir || k == dir {
			continue
		}
		if len(page.Entries) == s.pageSize {
			page.NextToken = string(page.Entries[len(page.Entries)-1].Key)
			break
		}
		page.Entries = append(page.Entries, *iter.Value().(*object).info())
	}
	return page, nil
}
