package keyfs_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfs-io/keyfs"
	"github.com/keyfs-io/keyfs/backend/memstore"
)

const home = keyfs.Key("home/bob")

func newFS(t *testing.T, opts ...memstore.Option) (*keyfs.FileSystem, *memstore.Store) {
	t.Helper()
	store := memstore.New(opts...)
	fs, err := keyfs.New(store, home)
	require.NoError(t, err)
	ok, err := fs.Mkdirs("~~")
	require.NoError(t, err)
	require.True(t, ok)
	return fs, store
}

func write(t *testing.T, fs *keyfs.FileSystem, p keyfs.Path, body string) {
	t.Helper()
	w, err := fs.Create(p, true, 0)
	require.NoError(t, err)
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestCreateStatRoundTrip(t *testing.T) {
	fs, _ := newFS(t)

	w, err := fs.Create("~~/report.csv", false, 2)
	require.NoError(t, err)
	_, err = io.WriteString(w, "a,b,c\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// The same object through a working-directory-relative expression:
	st, err := fs.Stat("report.csv")
	require.NoError(t, err)
	assert.Equal(t, keyfs.Path("report.csv"), st.Path)
	assert.False(t, st.Dir)
	assert.Equal(t, int64(6), st.Size)
	assert.Equal(t, 2, st.Durability)
}

func TestCreateNoOverwrite(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/taken.txt", "first")

	w, err := fs.Create("~~/taken.txt", false, 0)
	assert.Nil(t, w, "no stream may be opened when the precondition fails")
	assert.True(t, keyfs.IsAlreadyExists(err))

	// Content untouched:
	st, err := fs.Stat("~~/taken.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size)
}

func TestOpenReadsBack(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/blob.bin", "0123456789")

	r, err := fs.Open("~~/blob.bin")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	// The stream is random access:
	buf := make([]byte, 3)
	_, err = r.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))

	pos, err := r.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)
}

func TestOpenFailures(t *testing.T) {
	fs, _ := newFS(t)

	_, err := fs.Open("~~/missing.txt")
	assert.True(t, keyfs.IsNotFound(err))

	_, err = fs.Mkdirs("~~/adir")
	require.NoError(t, err)
	_, err = fs.Open("~~/adir")
	assert.True(t, keyfs.HasErrorCode(err, keyfs.ErrIsADirectory))
}

func TestAppendUnsupported(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/log.txt", "line\n")

	_, err := fs.Append("~~/log.txt")
	assert.True(t, keyfs.IsUnsupported(err))
}

func TestMkdirsIdempotent(t *testing.T) {
	fs, _ := newFS(t)

	for i := 0; i < 2; i++ {
		ok, err := fs.Mkdirs("~~/reports/2024")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	st, err := fs.Stat("~~/reports/2024")
	require.NoError(t, err)
	assert.True(t, st.Dir)
	assert.Equal(t, int64(0), st.Size)

	// Exactly one directory object: listing the parent shows one entry.
	statuses, err := fs.ListStatus("~~/reports")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Dir)
}

func TestDeleteSemantics(t *testing.T) {
	fs, _ := newFS(t)

	// Deleting something that doesn't exist is a no-op, not a failure.
	ok, err := fs.Delete("~~/nothing.txt", false)
	require.NoError(t, err)
	assert.False(t, ok)

	write(t, fs, "~~/doomed.txt", "bye")
	ok, err = fs.Delete("~~/doomed.txt", false)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := fs.Exists("~~/doomed.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteRecursive(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/tree/a.txt", "a")
	write(t, fs, "~~/tree/sub/b.txt", "b")

	// Non-recursive delete of a non-empty directory is refused by the
	// store, and the failure passes through unchanged.
	_, err := fs.Delete("~~/tree", false)
	require.Error(t, err)
	assert.False(t, keyfs.IsNotFound(err))

	ok, err := fs.Delete("~~/tree", true)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := fs.Exists("~~/tree/sub/b.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRename(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/old.txt", "content")

	ok, err := fs.Rename("~~/old.txt", "~~/new.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = fs.Stat("~~/old.txt")
	assert.True(t, keyfs.IsNotFound(err))

	st, err := fs.Stat("~~/new.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Size)
}

func TestRenameMissingSource(t *testing.T) {
	fs, _ := newFS(t)

	_, err := fs.Rename("~~/ghost.txt", "~~/anywhere.txt")
	assert.True(t, keyfs.IsNotFound(err))
}

func TestRenameOverwritesDestination(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/src.txt", "fresh")
	write(t, fs, "~~/dst.txt", "stale-o")

	ok, err := fs.Rename("~~/src.txt", "~~/dst.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := fs.Stat("~~/dst.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size)
}

func TestRenameDirectory(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/from/a.txt", "a")
	write(t, fs, "~~/from/sub/b.txt", "bb")

	ok, err := fs.Rename("~~/from", "~~/to")
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := fs.Stat("~~/to/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Size)
}

func TestListStatus(t *testing.T) {
	fs, _ := newFS(t, memstore.WithPageSize(2))
	write(t, fs, "~~/data/a.txt", "1")
	write(t, fs, "~~/data/b.txt", "2")
	write(t, fs, "~~/data/c.txt", "3")
	write(t, fs, "~~/data/d.txt", "4")
	write(t, fs, "~~/data/e.txt", "5")

	statuses, err := fs.ListStatus("~~/data")
	require.NoError(t, err)
	require.Len(t, statuses, 5)

	// Source order is preserved across page boundaries, and entry paths
	// follow the requested form.
	assert.Equal(t, keyfs.Path("~~/data/a.txt"), statuses[0].Path)
	assert.Equal(t, keyfs.Path("~~/data/e.txt"), statuses[4].Path)
}

func TestListStatusNotFoundVsEmpty(t *testing.T) {
	fs, _ := newFS(t)

	// A missing directory must never be reported as an empty one.
	_, err := fs.ListStatus("~~/nope")
	assert.True(t, keyfs.IsNotFound(err))

	_, err = fs.Mkdirs("~~/empty")
	require.NoError(t, err)
	statuses, err := fs.ListStatus("~~/empty")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestListLocatedStatusFiltered(t *testing.T) {
	fs, _ := newFS(t, memstore.WithPageSize(2))
	write(t, fs, "~~/data/a.csv", "1")
	write(t, fs, "~~/data/b.txt", "2")
	write(t, fs, "~~/data/c.csv", "3")
	write(t, fs, "~~/data/d.txt", "4")

	cursor, err := fs.ListLocatedStatus("~~/data", func(st keyfs.FileStatus) bool {
		return st.Path.Base() != "b.txt" && st.Path.Base() != "d.txt"
	})
	require.NoError(t, err)

	var got []string
	for cursor.HasNext() {
		st, err := cursor.Next()
		require.NoError(t, err)
		got = append(got, st.Path.Base())
	}
	assert.Equal(t, []string{"a.csv", "c.csv"}, got)
}

func TestExistsIsDirectoryIsFile(t *testing.T) {
	fs, _ := newFS(t)
	write(t, fs, "~~/file.txt", "x")
	_, err := fs.Mkdirs("~~/dir")
	require.NoError(t, err)

	for _, tc := range []struct {
		path   keyfs.Path
		exists bool
		isDir  bool
	}{
		{path: "~~/file.txt", exists: true, isDir: false},
		{path: "~~/dir", exists: true, isDir: true},
		{path: "~~/ghost", exists: false, isDir: false},
	} {
		exists, err := fs.Exists(tc.path)
		require.NoError(t, err)
		assert.Equal(t, tc.exists, exists, "exists %s", tc.path)

		// A missing target reports false, not an error.
		isDir, err := fs.IsDirectory(tc.path)
		require.NoError(t, err)
		assert.Equal(t, tc.isDir, isDir, "isDirectory %s", tc.path)

		// isFile is defined as the logical negation of isDirectory.
		isFile, err := fs.IsFile(tc.path)
		require.NoError(t, err)
		assert.Equal(t, !tc.isDir, isFile, "isFile %s", tc.path)
	}
}

func TestTruncateToZero(t *testing.T) {
	fs, store := newFS(t)

	err := store.Put("home/bob/data.csv", []byte("a,b\n1,2\n"), keyfs.PutHeaders{ContentType: "text/csv"})
	require.NoError(t, err)

	require.NoError(t, fs.Truncate("~~/data.csv", 0))

	info, err := store.Head("home/bob/data.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size)
	assert.Equal(t, "text/csv", info.ContentType, "content type survives truncation")
}

func TestTruncateFailures(t *testing.T) {
	fs, _ := newFS(t)

	err := fs.Truncate("~~/missing.csv", 0)
	assert.True(t, keyfs.IsNotFound(err))

	write(t, fs, "~~/some.csv", "1,2,3\n")
	err = fs.Truncate("~~/some.csv", 3)
	assert.True(t, keyfs.IsUnsupported(err))

	// The refused truncation changed nothing.
	st, err := fs.Stat("~~/some.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(6), st.Size)
}

func TestWorkingDirectory(t *testing.T) {
	fs, _ := newFS(t)

	assert.Equal(t, home, fs.HomeDirectory())
	assert.Equal(t, home, fs.WorkingDirectory(), "working directory starts at home")

	_, err := fs.Mkdirs("~~/projects")
	require.NoError(t, err)
	require.NoError(t, fs.SetWorkingDirectory("~~/projects"))
	assert.Equal(t, keyfs.Key("home/bob/projects"), fs.WorkingDirectory())

	// Relative expressions now resolve under the new working directory.
	write(t, fs, "notes.txt", "n")
	st, err := fs.Stat("/home/bob/projects/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Size)
}

func TestStatModTimeFromStore(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fs, _ := newFS(t, memstore.WithTimeSource(keyfs.FixedTimeSource(at)))

	write(t, fs, "~~/stamped.txt", "x")
	st, err := fs.Stat("~~/stamped.txt")
	require.NoError(t, err)
	assert.True(t, st.ModTime.Equal(at))
}
