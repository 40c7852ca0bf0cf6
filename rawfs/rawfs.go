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

// Package rawfs implements the backend that parses a volume from its block
// device. It sees files the live system hides or locks and only surfaces
// allocated entries.
package rawfs

import (
	"io"
	"iter"
	"strings"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// EntryType is the on-disk type of a directory entry.
type EntryType int

const (
	// TypeOther covers devices, sockets and unknown types.
	TypeOther EntryType = iota
	// TypeRegular is a regular file.
	TypeRegular
	// TypeDirectory is a directory.
	TypeDirectory
	// TypeSymlink is a symbolic link.
	TypeSymlink
)

// Entry is a directory entry of a raw volume.
type Entry interface {
	io.ReaderAt
	Name() string
	Type() EntryType
	Size() int64
	// NameAllocated reports whether the directory entry is in use.
	NameAllocated() bool
	// MetaAllocated reports whether the referenced metadata is in use.
	MetaAllocated() bool
}

// Volume is a filesystem parsed from a device.
type Volume interface {
	io.Closer
	Root() (Entry, error)
	// List returns every entry of dir including deleted ones.
	List(dir Entry) ([]Entry, error)
	// FoldCase reports whether names are case insensitive.
	FoldCase() bool
}

// Opener opens the volume on device.
type Opener func(device string) (Volume, error)

// LiveLookup resolves an absolute path on the live system.
type LiveLookup interface {
	Lookup(absolute string) (*vfs.Node, error)
}

// FS is a raw volume backend for one mountpoint.
type FS struct {
	mount  string
	device string
	open   Opener
	live   LiveLookup

	volume   Volume
	cache    *listingCache
	patterns vfs.PatternSet
}

var _ vfs.Backend = &FS{}

// New creates a backend for the volume on device mounted at mount. The
// volume is opened on first use. Symbolic links are resolved through live.
func New(mount, device string, open Opener, live LiveLookup) *FS {
	return &FS{
		mount:  mount,
		device: device,
		open:   open,
		live:   live,
		cache:  newListingCache(MaxCachedListings),
	}
}

// Variant returns vfs.RawVolume.
func (fs *FS) Variant() vfs.Variant { return vfs.RawVolume }

// Mount returns the mountpoint of the volume.
func (fs *FS) Mount() string { return fs.mount }

// CacheStats returns the statistics of the listing cache.
func (fs *FS) CacheStats() CacheStats {
	return CacheStats{Entries: fs.cache.len(), Hits: fs.cache.hits, Misses: fs.cache.misses}
}

func (fs *FS) ensureVolume() (Volume, error) {
	if fs.volume != nil {
		return fs.volume, nil
	}
	volume, err := fs.open(fs.device)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", fs.device)
	}
	fs.volume = volume
	return volume, nil
}

// Root returns the root directory of the volume.
func (fs *FS) Root() (*vfs.Node, error) {
	volume, err := fs.ensureVolume()
	if err != nil {
		return nil, err
	}
	root, err := volume.Root()
	if err != nil {
		return nil, err
	}
	return vfs.NewNode(fs, "", "/", vfs.KindDirectory, root), nil
}

func kindOf(t EntryType) vfs.Kind {
	switch t {
	case TypeDirectory:
		return vfs.KindDirectory
	case TypeRegular:
		return vfs.KindFile
	case TypeSymlink:
		return vfs.KindSymlink
	}
	return 0
}

// ListDirectory returns the allocated children of node. Listings are cached
// by path.
func (fs *FS) ListDirectory(node *vfs.Node) ([]*vfs.Node, error) {
	if node.Filesystem() != vfs.Filesystem(fs) {
		return node.Filesystem().ListDirectory(node)
	}

	if nodes, ok := fs.cache.get(node.Path()); ok {
		return nodes, nil
	}

	entry, ok := node.Handle().(Entry)
	if !ok {
		return nil, errors.Errorf("%s is not a raw entry", node.Path())
	}
	entries, err := fs.volume.List(entry)
	if err != nil {
		return nil, err
	}

	var nodes []*vfs.Node
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." || name == "" {
			continue
		}
		if !e.NameAllocated() || !e.MetaAllocated() {
			continue
		}

		p := vfs.JoinPath(node.Path(), name)
		if e.Type() == TypeSymlink {
			if live := fs.followLink(p); live != nil {
				nodes = append(nodes, live)
			}
			continue
		}
		nodes = append(nodes, vfs.NewNode(fs, name, p, kindOf(e.Type()), e))
	}

	fs.cache.put(node.Path(), nodes)
	return nodes, nil
}

// followLink replaces a symbolic link by the node of the same path on the
// live system. Links that do not resolve are dropped.
func (fs *FS) followLink(p string) *vfs.Node {
	if fs.live == nil {
		return nil
	}
	absolute := strings.TrimRight(strings.ReplaceAll(fs.mount, "\\", "/"), "/") + p
	node, err := fs.live.Lookup(absolute)
	if err != nil || node == nil {
		logging.Debugf("dropping link %s: %v", absolute, err)
		return nil
	}
	return node
}

// Child finds name among the children of node.
func (fs *FS) Child(node *vfs.Node, name string) (*vfs.Node, error) {
	if node.Filesystem() != vfs.Filesystem(fs) {
		return node.Filesystem().Child(node, name)
	}

	children, err := fs.ListDirectory(node)
	if err != nil {
		return nil, err
	}
	fold := fs.FoldCase()
	for _, child := range children {
		if child.Name() == name || (fold && strings.EqualFold(child.Name(), name)) {
			return child, nil
		}
	}
	return nil, nil
}

// IsDirectory reports whether node is a directory.
func (fs *FS) IsDirectory(node *vfs.Node) bool { return node.Kind().Has(vfs.KindDirectory) }

// IsFile reports whether node is a regular file.
func (fs *FS) IsFile(node *vfs.Node) bool { return node.Kind().Has(vfs.KindFile) }

// IsSymlink reports whether node is a symbolic link.
func (fs *FS) IsSymlink(node *vfs.Node) bool { return node.Kind().Has(vfs.KindSymlink) }

// ReadChunks reads the allocated content of node from the volume.
func (fs *FS) ReadChunks(node *vfs.Node) iter.Seq2[[]byte, error] {
	if node.Filesystem() != vfs.Filesystem(fs) {
		return node.Filesystem().ReadChunks(node)
	}
	entry, ok := node.Handle().(Entry)
	if !ok {
		return func(yield func([]byte, error) bool) {
			yield(nil, errors.Errorf("%s is not a raw entry", node.Path()))
		}
	}
	return vfs.SectionChunks(entry, entry.Size())
}

// Size returns the size recorded in the metadata of node.
func (fs *FS) Size(node *vfs.Node) (int64, error) {
	if node.Filesystem() != vfs.Filesystem(fs) {
		return node.Filesystem().Size(node)
	}
	entry, ok := node.Handle().(Entry)
	if !ok {
		return 0, errors.Errorf("%s is not a raw entry", node.Path())
	}
	return entry.Size(), nil
}

// RelativePath strips the mountpoint from absolute.
func (fs *FS) RelativePath(absolute string) string {
	return vfs.TrimMount(fs.mount, absolute)
}

// FoldCase follows the volume, falling back to case sensitive names.
func (fs *FS) FoldCase() bool {
	volume, err := fs.ensureVolume()
	if err != nil {
		return false
	}
	return volume.FoldCase()
}

// AddPattern registers an absolute pattern.
func (fs *FS) AddPattern(artifact, pattern string) {
	fs.patterns.Add(artifact, pattern)
}

// Collect resolves all registered patterns.
func (fs *FS) Collect(sink vfs.Sink) {
	fs.patterns.Collect(fs, sink)
}

// Lookup resolves an absolute path without wildcards.
func (fs *FS) Lookup(absolute string) (*vfs.Node, error) {
	return vfs.Lookup(fs, fs.RelativePath(absolute))
}

// Close closes the volume if it was opened.
func (fs *FS) Close() error {
	if fs.volume == nil {
		return nil
	}
	err := fs.volume.Close()
	fs.volume = nil
	return err
}
