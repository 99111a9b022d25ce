package git

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// maxUnwrapDepth bounds the walk through nested wrappers.
const maxUnwrapDepth = 8

// underlying is implemented by wrapping filesystems such as the chroot
// helper that memfs.New returns.
type underlying interface {
	Underlying() billy.Basic
}

// isMemoryFilesystem reports whether fs is memory-based. The git CLI works
// on the real filesystem, so CLI-backed maintenance is refused for these.
func isMemoryFilesystem(fs billy.Filesystem) bool {
	var b billy.Basic = fs
	for depth := 0; b != nil && depth < maxUnwrapDepth; depth++ {
		if _, ok := b.(*memfs.Memory); ok {
			return true
		}
		u, ok := b.(underlying)
		if !ok {
			return false
		}
		b = u.Underlying()
	}
	return false
}

// syncer is implemented by files that can be flushed to stable storage.
type syncer interface {
	Sync() error
}

// syncFile flushes f if the underlying file supports it.
func syncFile(f billy.File) error {
	if s, ok := f.(syncer); ok {
		return s.Sync()
	}
	return nil
}
