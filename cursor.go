package keyfs

// Filter decides whether a listed entry is yielded by a Cursor. A nil
// Filter yields everything.
type Filter func(FileStatus) bool

// Cursor is a forward-only iterator over the entries of one directory.
// It holds at most one listing page in memory at a time, fetching the
// next page through the store as the caller advances. Entries come back
// in the order the store returns them; the cursor does not re-sort.
//
// A Cursor is owned by exactly one consumer and is not safe for
// concurrent use. It cannot be restarted; callers needing to re-list
// must construct a new cursor.
type Cursor struct {
	store  ObjectStore
	dir    Key
	path   Path
	filter Filter

	entries []ObjectInfo
	idx     int
	token   string
	last    bool

	pending *FileStatus
	err     error
}

// newCursor verifies the directory is accessible before the first page is
// fetched, so callers can tell an empty directory from a missing one.
func newCursor(store ObjectStore, dir Key, path Path, filter Filter) (*Cursor, error) {
	ok, err := store.Exists(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, KeyNotFound(dir)
	}
	return &Cursor{store: store, dir: dir, path: path, filter: filter}, nil
}

// HasNext reports whether another entry (or a deferred listing failure)
// remains. It may fetch the next page from the store.
func (c *Cursor) HasNext() bool {
	c.fill()
	return c.pending != nil || c.err != nil
}

// Next returns the next matching entry. Calling Next with no remaining
// entries fails with ErrNoSuchEntry; a listing failure encountered while
// advancing is returned unchanged.
func (c *Cursor) Next() (FileStatus, error) {
	c.fill()
	if c.err != nil {
		err := c.err
		c.err = nil
		return FileStatus{}, err
	}
	if c.pending == nil {
		return FileStatus{}, ResourceError(ErrNoSuchEntry, string(c.path))
	}
	st := *c.pending
	c.pending = nil
	return st, nil
}

// fill advances through the buffered page (fetching more pages as they
// run out) until an entry passes the filter or the listing ends.
func (c *Cursor) fill() {
	if c.pending != nil || c.err != nil {
		return
	}
	for {
		for c.idx < len(c.entries) {
			info := c.entries[c.idx]
			c.idx++
			st := NewFileStatus(&info, childPath(c.path, info.Key))
			if c.filter == nil || c.filter(st) {
				c.pending = &st
				return
			}
		}
		if c.last {
			return
		}
		page, err := c.store.ListPage(c.dir, c.token)
		if err != nil {
			c.err = err
			c.last = true
			return
		}
		c.entries = page.Entries
		c.idx = 0
		c.token = page.NextToken
		c.last = page.NextToken == ""
	}
}
