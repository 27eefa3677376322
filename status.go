package keyfs

import (
	gopath "path"
	"strings"
	"time"
)

// FileStatus is the caller-facing descriptor for one filesystem entry.
// It is derived 1:1 from the store's metadata record and never updated
// after construction.
type FileStatus struct {
	// Path is the path the caller asked about, not the canonical store
	// key, so downstream consumers see paths consistent with their own
	// requests.
	Path Path

	Dir     bool
	Size    int64
	ModTime time.Time

	// Durability is the store's replication hint for the entry, when the
	// store reports one.
	Durability int
}

// NewFileStatus maps a store metadata record onto a FileStatus for the
// requested path. Directory status comes from the record's declared type;
// a trailing slash on the key is not a reliable signal from every listing
// source. Directories always report size zero regardless of what the
// record says.
func NewFileStatus(info *ObjectInfo, requested Path) FileStatus {
	size := info.Size
	if info.Dir {
		size = 0
	}
	return FileStatus{
		Path:       requested,
		Dir:        info.Dir,
		Size:       size,
		ModTime:    info.LastModified,
		Durability: info.Durability,
	}
}

// childPath joins the final segment of a listed key under the directory
// path the caller requested.
func childPath(dir Path, key Key) Path {
	base := gopath.Base(strings.TrimSuffix(string(key), "/"))
	d := strings.TrimSuffix(trimScheme(string(dir)), "/")
	if d == "" {
		return Path(base)
	}
	return Path(d + "/" + base)
}
