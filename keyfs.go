// Package keyfs adapts a hierarchical filesystem programming interface
// onto a flat, HTTP-addressed object store. Callers issue familiar
// filesystem operations (open, create, list, delete, rename, stat)
// against remote objects identified by string keys; the package supplies
// the path-resolution rules that turn context-dependent path expressions
// into canonical keys, and the listing machinery that turns a paginated
// remote listing into a lazy, filterable sequence of entries.
//
// The object store itself is an external collaborator consumed through
// the ObjectStore interface; implementations live under backend/.
package keyfs

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FileSystem is the operation surface over one object store. It owns the
// only mutable state in this package, the current working directory;
// callers sharing a FileSystem across goroutines must serialize working
// directory updates against other operations themselves.
type FileSystem struct {
	store ObjectStore
	home  Key
	wd    Key
	log   *zap.Logger
}

// New builds a FileSystem over store. home is the resolved home-directory
// key from configuration; the working directory starts there. The store's
// connection parameters, retries and timeouts are its own business.
func New(store ObjectStore, home Key, opts ...Option) (*FileSystem, error) {
	if store == nil {
		return nil, fmt.Errorf("keyfs: store is required")
	}
	if home == "" {
		return nil, fmt.Errorf("keyfs: home directory is required")
	}
	fs := &FileSystem{
		store: store,
		home:  home,
		wd:    home,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *FileSystem) resolve(p Path) (Key, error) {
	return ResolveKey(p, fs.wd, fs.home)
}

// Open returns a random-access read stream over the file at p. Opening a
// missing target fails with ErrNotFound, a directory with ErrIsADirectory.
// The caller must close the returned stream; no stream is opened when a
// precondition fails.
func (fs *FileSystem) Open(p Path) (ReadAtSeekCloser, error) {
	fs.log.Debug("opening for read", zap.String("path", string(p)))

	st, err := fs.Stat(p)
	if err != nil {
		return nil, err
	}
	if st.Dir {
		return nil, IsADirectory(p)
	}

	key, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	return fs.store.Reader(key)
}

// Create opens a write stream at p. With overwrite disabled the call
// fails with ErrAlreadyExists before any write if an accessible object is
// already at the resolved key. durability asks the store to keep that
// many copies of the written data; zero means store default. The caller
// must close the returned stream to publish the object.
func (fs *FileSystem) Create(p Path, overwrite bool, durability int) (io.WriteCloser, error) {
	key, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}

	if !overwrite {
		ok, err := fs.store.Exists(key)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, FileAlreadyExists(p)
		}
	}

	var headers PutHeaders
	if durability > 0 {
		headers.Durability = durability
	}

	fs.log.Debug("creating file",
		zap.String("path", string(p)),
		zap.Int("durability", durability))

	return fs.store.Writer(key, headers)
}

// Append always fails with ErrUnsupported; the store cannot extend an
// object in place.
func (fs *FileSystem) Append(p Path) (io.WriteCloser, error) {
	return nil, ResourceError(ErrUnsupported, "append: "+string(p))
}

// Delete removes the object at p. Deleting a missing target is a no-op
// reported as false, not a failure. With recursive set a directory is
// removed with its whole subtree; otherwise exactly one object goes. The
// return value reports whether the target is gone afterwards, verified
// by a follow-up existence check.
func (fs *FileSystem) Delete(p Path, recursive bool) (bool, error) {
	key, err := fs.resolve(p)
	if err != nil {
		return false, err
	}

	// Don't bother deleting something that doesn't exist.
	info, err := fs.store.Head(key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if recursive && info.Dir {
		fs.log.Debug("recursively deleting", zap.String("key", string(key)))
		if err := fs.store.DeleteRecursive(key); err != nil {
			return false, err
		}
	} else {
		fs.log.Debug("deleting", zap.String("key", string(key)))
		if err := fs.store.Delete(key); err != nil {
			return false, err
		}
	}

	ok, err := fs.store.Exists(key)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Rename moves the object at src to dst. The semantics are those of Move;
// rename is the filesystem-facing alias.
func (fs *FileSystem) Rename(src, dst Path) (bool, error) {
	return fs.Move(src, dst)
}

// Move moves an object from one path to another, failing with ErrNotFound
// if the source is missing or inaccessible. An existing destination is
// overwritten. The return value reports whether the destination is
// accessible afterwards.
func (fs *FileSystem) Move(src, dst Path) (bool, error) {
	source, err := fs.resolve(src)
	if err != nil {
		return false, err
	}
	dest, err := fs.resolve(dst)
	if err != nil {
		return false, err
	}

	ok, err := fs.store.Exists(source)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, KeyNotFound(source)
	}

	fs.log.Debug("moving",
		zap.String("source", string(source)),
		zap.String("dest", string(dest)))

	if err := fs.store.Move(source, dest); err != nil {
		return false, err
	}
	return fs.store.Exists(dest)
}

// ListStatus materializes the full listing of the directory at p. A
// missing or inaccessible target fails with ErrNotFound; an existing
// empty directory yields an empty slice without error.
func (fs *FileSystem) ListStatus(p Path) ([]FileStatus, error) {
	fs.log.Debug("list status", zap.String("path", string(p)))

	cursor, err := fs.ListLocatedStatus(p, nil)
	if err != nil {
		return nil, err
	}

	var statuses []FileStatus
	for cursor.HasNext() {
		st, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// ListLocatedStatus returns a Cursor over the directory at p, yielding
// only entries that pass filter. Construction fails with ErrNotFound if
// the target is missing, so callers can distinguish an empty directory
// from no directory at all.
func (fs *FileSystem) ListLocatedStatus(p Path, filter Filter) (*Cursor, error) {
	fs.log.Debug("list located status", zap.String("path", string(p)))

	key, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	return newCursor(fs.store, key, p, filter)
}

// Mkdirs idempotently ensures a directory object exists at p, delegating
// creation of intermediate segments to the store.
func (fs *FileSystem) Mkdirs(p Path) (bool, error) {
	key, err := fs.resolve(p)
	if err != nil {
		return false, err
	}
	return fs.store.PutDirectory(key)
}

// Stat maps a single metadata fetch for p through the entry mapper. A
// missing target fails with ErrNotFound.
func (fs *FileSystem) Stat(p Path) (FileStatus, error) {
	key, err := fs.resolve(p)
	if err != nil {
		return FileStatus{}, err
	}

	fs.log.Debug("getting status", zap.String("key", string(key)))

	info, err := fs.store.Head(key)
	if err != nil {
		return FileStatus{}, err
	}
	return NewFileStatus(info, p), nil
}

// Exists reports whether an accessible object exists at p.
func (fs *FileSystem) Exists(p Path) (bool, error) {
	key, err := fs.resolve(p)
	if err != nil {
		return false, err
	}
	return fs.store.Exists(key)
}

// IsDirectory reports whether p names a directory. A missing target
// reports false rather than failing.
func (fs *FileSystem) IsDirectory(p Path) (bool, error) {
	key, err := fs.resolve(p)
	if err != nil {
		return false, err
	}

	info, err := fs.store.Head(key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.Dir, nil
}

// IsFile is the logical negation of IsDirectory.
func (fs *FileSystem) IsFile(p Path) (bool, error) {
	dir, err := fs.IsDirectory(p)
	return !dir, err
}

// Truncate cuts the file at p to newLength. Only truncation to zero is
// supported: the object's content is replaced with an empty payload that
// preserves its content type. Any other length fails with ErrUnsupported,
// and a missing target with ErrNotFound.
func (fs *FileSystem) Truncate(p Path, newLength int64) error {
	key, err := fs.resolve(p)
	if err != nil {
		return err
	}

	info, err := fs.store.Head(key)
	if err != nil {
		return err
	}

	if newLength != 0 {
		return ResourceError(ErrUnsupported, "truncate beyond zero: "+string(p))
	}
	return fs.store.Put(key, nil, PutHeaders{ContentType: info.ContentType})
}

// SetWorkingDirectory resolves p against the current working state and
// makes it the working directory for subsequent relative resolution.
func (fs *FileSystem) SetWorkingDirectory(p Path) error {
	key, err := fs.resolve(p)
	if err != nil {
		return err
	}
	fs.wd = key
	return nil
}

func (fs *FileSystem) WorkingDirectory() Key { return fs.wd }

func (fs *FileSystem) HomeDirectory() Key { return fs.home }

// Close releases the underlying store when it holds resources.
func (fs *FileSystem) Close() error {
	if closer, ok := fs.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
