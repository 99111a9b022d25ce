// Package testutil provides helpers for building git directories and loose
// objects in tests without running git.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/objfile"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// EncodedObject is a loose object ready to be written or served.
type EncodedObject struct {
	ID         string
	Type       plumbing.ObjectType
	Content    []byte
	Compressed []byte
}

// NewGitDir returns a memory filesystem laid out like an empty .git directory.
func NewGitDir(t testing.TB) billy.Filesystem {
	t.Helper()

	fs := memfs.New()
	initGitDir(t, fs)
	return fs
}

// NewDiskGitDir creates an empty .git layout in a temporary directory and
// returns its path and an OS filesystem rooted there.
func NewDiskGitDir(t testing.TB) (string, billy.Filesystem) {
	t.Helper()

	dir := t.TempDir()
	fs := osfs.New(dir)
	initGitDir(t, fs)
	return dir, fs
}

func initGitDir(t testing.TB, fs billy.Filesystem) {
	t.Helper()

	for _, dir := range []string{"objects/pack", "objects/info", "refs/heads", "refs/tags"} {
		require.NoError(t, fs.MkdirAll(dir, 0o755))
	}
	require.NoError(t, util.WriteFile(fs, "HEAD", []byte("ref: refs/heads/main\n"), 0o644))
}

// Encode compresses content as a loose object of type typ.
func Encode(t testing.TB, typ plumbing.ObjectType, content []byte) EncodedObject {
	t.Helper()

	var buf bytes.Buffer
	w := objfile.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(typ, int64(len(content))))
	_, err := w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return EncodedObject{
		ID:         w.Hash().String(),
		Type:       typ,
		Content:    content,
		Compressed: buf.Bytes(),
	}
}

// Blob encodes a blob with the given content.
func Blob(t testing.TB, content string) EncodedObject {
	t.Helper()
	return Encode(t, plumbing.BlobObject, []byte(content))
}

// TreeEntry names a file or directory in a test tree.
type TreeEntry struct {
	Name string
	ID   string
	Dir  bool
}

// Tree encodes a tree with the given entries. Entries must be sorted by name.
func Tree(t testing.TB, entries ...TreeEntry) EncodedObject {
	t.Helper()

	tree := &object.Tree{}
	for _, e := range entries {
		mode := filemode.Regular
		if e.Dir {
			mode = filemode.Dir
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: mode,
			Hash: plumbing.NewHash(e.ID),
		})
	}

	obj := &plumbing.MemoryObject{}
	require.NoError(t, tree.Encode(obj))
	return fromMemoryObject(t, obj)
}

// Commit encodes a commit of tree with the given parents.
func Commit(t testing.TB, tree string, message string, parents ...string) EncodedObject {
	t.Helper()

	sig := object.Signature{Name: TestAuthor, Email: TestEmail, When: TestTime}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  plumbing.NewHash(tree),
	}
	for _, p := range parents {
		commit.ParentHashes = append(commit.ParentHashes, plumbing.NewHash(p))
	}

	obj := &plumbing.MemoryObject{}
	require.NoError(t, commit.Encode(obj))
	return fromMemoryObject(t, obj)
}

func fromMemoryObject(t testing.TB, obj *plumbing.MemoryObject) EncodedObject {
	t.Helper()

	r, err := obj.Reader()
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)

	encoded := Encode(t, obj.Type(), content)
	require.Equal(t, obj.Hash().String(), encoded.ID)
	return encoded
}

// Store writes obj as a loose object into the .git filesystem.
func Store(t testing.TB, fs billy.Filesystem, obj EncodedObject) {
	t.Helper()

	p := path.Join("objects", obj.ID[:2], obj.ID[2:])
	require.NoError(t, fs.MkdirAll(path.Dir(p), 0o755))
	require.NoError(t, util.WriteFile(fs, p, obj.Compressed, 0o444))
}

// SetBranch points refs/heads/name at id.
func SetBranch(t testing.TB, fs billy.Filesystem, name, id string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path.Join("refs/heads", name), []byte(id+"\n"), 0o644))
}

// History is a linear chain of commits, each with a one-file root tree.
type History struct {
	Commits []EncodedObject
	Trees   []EncodedObject
	Blobs   []EncodedObject
}

// LinearHistory encodes n commits where commit i has commit i-1 as parent.
// Commits[len-1] is the tip.
func LinearHistory(t testing.TB, n int) History {
	t.Helper()

	var h History
	var parents []string
	for i := 0; i < n; i++ {
		blob := Blob(t, fmt.Sprintf("content %d\n", i))
		tree := Tree(t, TreeEntry{Name: "file.txt", ID: blob.ID})
		commit := Commit(t, tree.ID, fmt.Sprintf("commit %d\n", i), parents...)

		h.Blobs = append(h.Blobs, blob)
		h.Trees = append(h.Trees, tree)
		h.Commits = append(h.Commits, commit)
		parents = []string{commit.ID}
	}
	return h
}

// StoreAll writes every object of h into fs.
func (h History) StoreAll(t testing.TB, fs billy.Filesystem) {
	t.Helper()
	for _, set := range [][]EncodedObject{h.Blobs, h.Trees, h.Commits} {
		for _, obj := range set {
			Store(t, fs, obj)
		}
	}
}

// Tip returns the id of the newest commit.
func (h History) Tip() string {
	return h.Commits[len(h.Commits)-1].ID
}
