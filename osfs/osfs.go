// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package osfs implements the backend that reads through the host operating
// system.
package osfs

import (
	"iter"
	"os"
	"path"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// FS is a backend for one mountpoint of the live system. Symbolic links are
// followed transparently and listings are not cached.
type FS struct {
	fs       afero.Fs
	mount    string
	foldCase bool
	patterns vfs.PatternSet
}

var _ vfs.Backend = &FS{}

// New creates a backend for mount. All access goes through base which is
// rooted at mount.
func New(base afero.Fs, mount string) *FS {
	fs := base
	if mount != "/" && mount != "" {
		fs = afero.NewBasePathFs(base, mount)
	}
	return &FS{fs: fs, mount: mount, foldCase: runtime.GOOS == "windows"}
}

// NewOS creates a backend for mount on the host filesystem.
func NewOS(mount string) *FS {
	return New(afero.NewOsFs(), mount)
}

// Mount returns the mountpoint of the backend.
func (fs *FS) Mount() string { return fs.mount }

// Variant returns vfs.OSDirect.
func (fs *FS) Variant() vfs.Variant { return vfs.OSDirect }

func (fs *FS) node(p string, info os.FileInfo) *vfs.Node {
	var kind vfs.Kind
	switch {
	case info.IsDir():
		kind = vfs.KindDirectory
	case info.Mode().IsRegular():
		kind = vfs.KindFile
	}
	name := path.Base(p)
	if p == "/" {
		name = ""
	}
	return vfs.NewNode(fs, name, p, kind, info)
}

// Root returns the mountpoint itself.
func (fs *FS) Root() (*vfs.Node, error) {
	info, err := fs.fs.Stat("/")
	if err != nil {
		return nil, err
	}
	return fs.node("/", info), nil
}

// ListDirectory returns the children of node in the order the OS lists them.
// Entries that vanish or cannot be followed are skipped.
func (fs *FS) ListDirectory(node *vfs.Node) ([]*vfs.Node, error) {
	dir, err := fs.fs.Open(node.Path())
	if err != nil {
		return nil, err
	}
	defer dir.Close() // nolint:errcheck

	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	nodes := make([]*vfs.Node, 0, len(names))
	for _, name := range names {
		p := vfs.JoinPath(node.Path(), name)
		info, err := fs.fs.Stat(p)
		if err != nil {
			logging.Debugf("skipping %s: %s", p, err)
			continue
		}
		nodes = append(nodes, fs.node(p, info))
	}
	return nodes, nil
}

// Child resolves name in node.
func (fs *FS) Child(node *vfs.Node, name string) (*vfs.Node, error) {
	p := vfs.JoinPath(node.Path(), name)
	info, err := fs.fs.Stat(p)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return fs.node(p, info), nil
}

// IsDirectory reports whether node is a directory.
func (fs *FS) IsDirectory(node *vfs.Node) bool { return node.Kind().Has(vfs.KindDirectory) }

// IsFile reports whether node is a regular file.
func (fs *FS) IsFile(node *vfs.Node) bool { return node.Kind().Has(vfs.KindFile) }

// IsSymlink is always false, links are followed by the OS.
func (fs *FS) IsSymlink(*vfs.Node) bool { return false }

// ReadChunks streams the content of node.
func (fs *FS) ReadChunks(node *vfs.Node) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		f, err := fs.fs.Open(node.Path())
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close() // nolint:errcheck

		for chunk, err := range vfs.StreamChunks(f) {
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// Size returns the size reported by the OS.
func (fs *FS) Size(node *vfs.Node) (int64, error) {
	if info, ok := node.Handle().(os.FileInfo); ok {
		return info.Size(), nil
	}
	info, err := fs.fs.Stat(node.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RelativePath strips the mountpoint from absolute.
func (fs *FS) RelativePath(absolute string) string {
	return vfs.TrimMount(fs.mount, absolute)
}

// FoldCase is true on Windows.
func (fs *FS) FoldCase() bool { return fs.foldCase }

// AddPattern registers an absolute pattern.
func (fs *FS) AddPattern(artifact, pattern string) {
	fs.patterns.Add(artifact, pattern)
}

// Collect resolves all registered patterns.
func (fs *FS) Collect(sink vfs.Sink) {
	fs.patterns.Collect(fs, sink)
}

// Lookup resolves an absolute path. Every segment must exist.
func (fs *FS) Lookup(absolute string) (*vfs.Node, error) {
	return vfs.Lookup(fs, fs.RelativePath(absolute))
}

// Close releases nothing, the OS owns all handles.
func (fs *FS) Close() error { return nil }
