package keyfs

import (
	"io"
	"time"
)

// ObjectInfo is the metadata record an ObjectStore reports for a single
// object. It is the source of truth for one call; the filesystem never
// caches it beyond the call that produced it.
type ObjectInfo struct {
	Key          Key
	Dir          bool
	Size         int64
	LastModified time.Time
	ContentType  string

	// ETag is the store's opaque version tag for the object, if the store
	// reports one.
	ETag string

	// Durability is the number of copies the store keeps of this object.
	// Zero means the store did not report one.
	Durability int
}

// ListPage is one page of a directory listing. An empty NextToken signals
// the end of the listing.
type ListPage struct {
	Entries   []ObjectInfo
	NextToken string
}

// PutHeaders carries optional write metadata for Put, Writer and Create.
// The zero value asks the store for its defaults.
type PutHeaders struct {
	ContentType string
	Durability  int
}

// ReadAtSeekCloser is the random-access stream returned for object reads.
//
// You MUST call Close() on the returned stream or you may leak resources.
type ReadAtSeekCloser interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// ObjectStore is the object-store client the filesystem drives. It is
// deliberately narrow: retries, auth and transport concerns all live behind
// this interface, and every call is a single attempt whose outcome is
// either a value or a definitive failure.
//
// "Not found" is signalled with an error carrying ErrNotFound (see
// KeyNotFound for a convenient way to create one), never with a sentinel
// value or a numeric status, so the filesystem can pattern-match on the
// error code. Any other error is passed through to callers unchanged.
type ObjectStore interface {
	// Head returns the metadata record for key. It must return an
	// ErrNotFound error if no object exists at key.
	Head(key Key) (*ObjectInfo, error)

	// Exists reports whether an object exists at key and is accessible.
	// A missing object is (false, nil), not an error.
	Exists(key Key) (bool, error)

	// Reader opens a random-access read stream over the object at key.
	// It must return an ErrNotFound error if no object exists at key.
	//
	// If the returned stream is not nil you MUST close it.
	Reader(key Key) (ReadAtSeekCloser, error)

	// Writer opens a write stream at key. The object becomes visible when
	// the stream is closed, replacing any previous content.
	Writer(key Key, headers PutHeaders) (io.WriteCloser, error)

	// Put writes data as the full content of the object at key.
	Put(key Key, data []byte, headers PutHeaders) error

	// Delete removes exactly one object. It must return an ErrNotFound
	// error if no object exists at key, and should refuse to remove a
	// non-empty directory.
	Delete(key Key) error

	// DeleteRecursive removes the object at key and, if it is a
	// directory, its whole subtree.
	DeleteRecursive(key Key) error

	// Move moves the object at sourceKey to destKey, overwriting any
	// object already at destKey. Directories move together with their
	// subtree.
	Move(sourceKey, destKey Key) error

	// PutDirectory idempotently ensures a directory object exists at key,
	// creating intermediate segments as needed. It reports whether the
	// directory is in place afterwards.
	PutDirectory(key Key) (bool, error)

	// ListPage returns one page of the direct children of the directory
	// at key. Pass an empty token for the first page and the returned
	// NextToken for each following page.
	ListPage(key Key, token string) (*ListPage, error)
}
