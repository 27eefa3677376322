package aferostore

import (
	"io"
	"testing"

	"github.com/keyfs-io/keyfs"
	"github.com/spf13/afero"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(afero.NewMemMapFs(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mk(t *testing.T, s *Store, key keyfs.Key, body string) {
	t.Helper()
	if err := s.Put(key, []byte(body), keyfs.PutHeaders{}); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTrip(t *testing.T) {
	s := newStore(t)
	mk(t, s, "stor/notes.txt", "hello")

	info, err := s.Head("stor/notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if info.Dir || info.Size != 5 {
		t.Fatalf("bad info: %+v", info)
	}
	if info.ContentType != "text/plain; charset=utf-8" {
		t.Fatal("content type should come from the extension, got", info.ContentType)
	}

	rdr, err := s.Reader("stor/notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer rdr.Close()
	body, _ := io.ReadAll(rdr)
	if string(body) != "hello" {
		t.Fatalf("bad body: %q", body)
	}

	if _, err := s.Head("stor/ghost"); !keyfs.IsNotFound(err) {
		t.Fatal("expected ErrNotFound, got", err)
	}
}

func TestReaderSupportsRandomAccess(t *testing.T) {
	s := newStore(t)
	mk(t, s, "stor/ra.txt", "0123456789")

	rdr, err := s.Reader("stor/ra.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer rdr.Close()

	buf := make([]byte, 3)
	if _, err := rdr.ReadAt(buf, 4); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "456" {
		t.Fatalf("bad ReadAt: %q", buf)
	}

	if _, err := rdr.Seek(8, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(rdr)
	if string(rest) != "89" {
		t.Fatalf("bad read after seek: %q", rest)
	}
}

func TestWriterCreatesParents(t *testing.T) {
	s := newStore(t)

	w, err := s.Writer("stor/deep/w.txt", keyfs.PutHeaders{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, "body"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := s.Head("stor/deep")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Dir {
		t.Fatal("parent should be a directory")
	}
}

func TestDeleteAndMove(t *testing.T) {
	s := newStore(t)
	mk(t, s, "stor/d/a.txt", "x")

	if err := s.Delete("stor/d"); err == nil {
		t.Fatal("expected non-empty directory delete to fail")
	}
	if err := s.Delete("stor/ghost"); !keyfs.IsNotFound(err) {
		t.Fatal("expected ErrNotFound, got", err)
	}

	if err := s.Move("stor/d/a.txt", "stor/e/b.txt"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("stor/d/a.txt"); ok {
		t.Fatal("source should be gone after move")
	}
	if ok, _ := s.Exists("stor/e/b.txt"); !ok {
		t.Fatal("destination missing after move")
	}

	if err := s.DeleteRecursive("stor/e"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("stor/e/b.txt"); ok {
		t.Fatal("subtree should be gone")
	}
}

func TestPutDirectory(t *testing.T) {
	s := newStore(t)

	for i := 0; i < 2; i++ {
		if _, err := s.PutDirectory("stor/dir"); err != nil {
			t.Fatal(err)
		}
	}

	mk(t, s, "stor/file", "x")
	if _, err := s.PutDirectory("stor/file"); !keyfs.HasErrorCode(err, keyfs.ErrNotADirectory) {
		t.Fatal("expected ErrNotADirectory, got", err)
	}
}

func TestListPage(t *testing.T) {
	s := newStore(t, WithPageSize(2))
	for _, n := range []string{"c", "a", "b"} {
		mk(t, s, keyfs.Key("stor/list/"+n), "x")
	}

	var got []string
	token := ""
	for {
		page, err := s.ListPage("stor/list", token)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range page.Entries {
			got = append(got, string(e.Key))
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	want := []string{"stor/list/a", "stor/list/b", "stor/list/c"}
	if len(got) != len(want) {
		t.Fatalf("wrong entries: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wrong order at %d: %v", i, got)
		}
	}

	if _, err := s.ListPage("stor/ghost", ""); !keyfs.IsNotFound(err) {
		t.Fatal("expected ErrNotFound, got", err)
	}
	if _, err := s.ListPage("stor/list/a", ""); !keyfs.HasErrorCode(err, keyfs.ErrNotADirectory) {
		t.Fatal("expected ErrNotADirectory, got", err)
	}
}
