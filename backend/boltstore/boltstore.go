// Package boltstore provides a persistent keyfs.ObjectStore on a single
// bolt database file.
package boltstore

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	gopath "path"
	"strings"

	"github.com/keyfs-io/keyfs"
	bolt "go.etcd.io/bbolt"
)

const DefaultPageSize = 256

type Option func(s *Store)

func WithTimeSource(timeSource keyfs.TimeSource) Option {
	return func(s *Store) { s.timeSource = timeSource }
}

func WithPageSize(n int) Option {
	return func(s *Store) { s.pageSize = n }
}

type Store struct {
	bolt       *bolt.DB
	timeSource keyfs.TimeSource
	pageSize   int
}

var _ keyfs.ObjectStore = &Store{}
var _ io.Closer = &Store{}

// NewFile opens (creating if needed) a bolt database at file.
func NewFile(file string, opts ...Option) (*Store, error) {
	if file == "" {
		return nil, fmt.Errorf("boltstore: invalid bolt file name")
	}
	db, err := bolt.Open(file, 0600, nil)
	if err != nil {
		return nil, err
	}
	return New(db, opts...)
}

func New(db *bolt.DB, opts ...Option) (*Store, error) {
	s := &Store{
		bolt:     db,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeSource == nil {
		s.timeSource = keyfs.DefaultTimeSource()
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.bolt.Close() }

func normalize(key keyfs.Key) string {
	k := strings.Trim(string(key), "/")
	if k == "." {
		k = ""
	}
	return k
}

func parentOf(key string) string {
	d := gopath.Dir(key)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

func getObject(b *bolt.Bucket, key string) (*boltObject, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	return decodeObject(data)
}

func putObject(b *bolt.Bucket, key string, obj *boltObject) error {
	data, err := obj.encode()
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func ensureParents(b *bolt.Bucket, key string, obj *boltObject) error {
	segments := strings.Split(key, "/")
	prefix := ""
	for _, seg := range segments[:len(segments)-1] {
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "/" + seg
		}
		existing, err := getObject(b, prefix)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.Dir {
				return keyfs.NotADirectory(keyfs.Key(prefix))
			}
			continue
		}
		if err := putObject(b, prefix, &boltObject{Dir: true, LastModified: obj.LastModified}); err != nil {
			return err
		}
	}
	return nil
}

func hasChildren(b *bolt.Bucket, key string) bool {
	prefix := []byte(key + "/")
	k, _ := b.Cursor().Seek(prefix)
	return k != nil && bytes.HasPrefix(k, prefix)
}

func (s *Store) Head(key keyfs.Key) (*keyfs.ObjectInfo, error) {
	k := normalize(key)
	if k == "" {
		return &keyfs.ObjectInfo{Key: key, Dir: true}, nil
	}

	var info *keyfs.ObjectInfo
	err := s.bolt.View(func(tx *bolt.Tx) error {
		obj, err := getObject(tx.Bucket(objectsBucket), k)
		if err != nil {
			return err
		}
		if obj == nil {
			return keyfs.KeyNotFound(key)
		}
		info = obj.info(k)
		return nil
	})
	return info, err
}

func (s *Store) Exists(key keyfs.Key) (bool, error) {
	k := normalize(key)
	if k == "" {
		return true, nil
	}
	var found bool
	err := s.bolt.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(objectsBucket).Get([]byte(k)) != nil
		return nil
	})
	return found, err
}

func (s *Store) Reader(key keyfs.Key) (keyfs.ReadAtSeekCloser, error) {
	k := normalize(key)

	var data []byte
	err := s.bolt.View(func(tx *bolt.Tx) error {
		obj, err := getObject(tx.Bucket(objectsBucket), k)
		if err != nil {
			return err
		}
		if obj == nil {
			return keyfs.KeyNotFound(key)
		}
		if obj.Dir {
			return keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
		}
		// Copy out so the reader outlives the transaction.
		data = append([]byte(nil), obj.Data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return readCloser{bytes.NewReader(data)}, nil
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
		return 0, fmt.Errorf("boltstore: write on closed writer for %s", w.key)
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
	k := normalize(key)
	if k == "" {
		return keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
	}

	hash := md5.Sum(data)
	obj := &boltObject{
		Data:         append([]byte(nil), data...),
		ContentType:  headers.ContentType,
		Durability:   headers.Durability,
		LastModified: s.timeSource.Now(),
		ETag:         `"` + hex.EncodeToString(hash[:]) + `"`,
	}

	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		existing, err := getObject(b, k)
		if err != nil {
			return err
		}
		if existing != nil && existing.Dir {
			return keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
		}
		if err := ensureParents(b, k, obj); err != nil {
			return err
		}
		return putObject(b, k, obj)
	})
}

func (s *Store) Delete(key keyfs.Key) error {
	k := normalize(key)
	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		obj, err := getObject(b, k)
		if err != nil {
			return err
		}
		if obj == nil {
			return keyfs.KeyNotFound(key)
		}
		if obj.Dir && hasChildren(b, k) {
			return fmt.Errorf("boltstore: directory not empty: %s", k)
		}
		return b.Delete([]byte(k))
	})
}

func (s *Store) DeleteRecursive(key keyfs.Key) error {
	k := normalize(key)
	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		if b.Get([]byte(k)) == nil {
			return keyfs.KeyNotFound(key)
		}
		for _, victim := range subtree(b, k) {
			if err := b.Delete([]byte(victim)); err != nil {
				return err
			}
		}
		return nil
	})
}

// subtree returns key and every key below it, in order.
func subtree(b *bolt.Bucket, key string) []string {
	keys := []string{key}
	prefix := []byte(key + "/")
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, string(k))
	}
	return keys
}

func (s *Store) Move(sourceKey, destKey keyfs.Key) error {
	src := normalize(sourceKey)
	dst := normalize(destKey)

	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		obj, err := getObject(b, src)
		if err != nil {
			return err
		}
		if obj == nil {
			return keyfs.KeyNotFound(sourceKey)
		}
		if err := ensureParents(b, dst, obj); err != nil {
			return err
		}
		for _, k := range subtree(b, src) {
			data := append([]byte(nil), b.Get([]byte(k))...)
			newKey := dst + strings.TrimPrefix(k, src)
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
			if err := b.Put([]byte(newKey), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PutDirectory(key keyfs.Key) (bool, error) {
	k := normalize(key)
	if k == "" {
		return true, nil
	}

	dir := &boltObject{Dir: true, LastModified: s.timeSource.Now()}

	err := s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		existing, err := getObject(b, k)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.Dir {
				return keyfs.NotADirectory(key)
			}
			return nil
		}
		if err := ensureParents(b, k, dir); err != nil {
			return err
		}
		return putObject(b, k, dir)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListPage(key keyfs.Key, token string) (*keyfs.ListPage, error) {
	dir := normalize(key)

	page := &keyfs.ListPage{}
	err := s.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)

		if dir != "" {
			obj, err := getObject(b, dir)
			if err != nil {
				return err
			}
			if obj == nil {
				return keyfs.KeyNotFound(key)
			}
			if !obj.Dir {
				return keyfs.NotADirectory(key)
			}
		}

		c := b.Cursor()
		var start []byte
		if dir != "" {
			start = []byte(dir + "/")
		}
		prefix := start

		k, v := c.Seek(start)
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			ks := string(k)
			if token != "" && ks <= token {
				continue
			}
			// Only direct children; anything deeper belongs to a
			// child directory's own listing.
			if parentOf(ks) != dir {
				continue
			}
			if len(page.Entries) == s.pageSize {
				page.NextToken = string(page.Entries[len(page.Entries)-1].Key)
				return nil
			}
			obj, err := decodeObject(v)
			if err != nil {
				return err
			}
			page.Entries = append(page.Entries, *obj.info(ks))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
