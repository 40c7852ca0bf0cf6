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

// Package vfs defines the virtual filesystem contract shared by all collector
// backends and the path pattern engine that resolves patterns against it.
//
// A backend exposes one tree of nodes: a mounted volume read through the
// operating system, the same volume parsed from its raw device, or a registry
// hive. Patterns are parsed into components which are chained into a lazy
// pipeline over that tree. The pipeline is identical for every backend.
package vfs

import (
	"io"
	"iter"
	"path"
	"strings"
)

// ChunkSize is the size of the chunks returned by ReadChunks.
const ChunkSize = 5 * 1024 * 1024

// Kind is a set of capability flags of a node. A registry key can be a
// directory and a file at the same time.
type Kind uint8

const (
	// KindDirectory marks nodes that have children.
	KindDirectory Kind = 1 << iota
	// KindFile marks nodes that are terminal match targets.
	KindFile
	// KindSymlink marks symbolic links.
	KindSymlink
)

// Has reports whether all flags of f are set in k.
func (k Kind) Has(f Kind) bool {
	return k&f == f
}

func (k Kind) String() string {
	var parts []string
	if k.Has(KindDirectory) {
		parts = append(parts, "directory")
	}
	if k.Has(KindFile) {
		parts = append(parts, "file")
	}
	if k.Has(KindSymlink) {
		parts = append(parts, "symlink")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Node is a handle to one entity inside one backend. Nodes are created by
// backends only and never outlive them.
type Node struct {
	name   string
	path   string
	kind   Kind
	fs     Filesystem
	handle interface{}
}

// NewNode is used by backends to create nodes.
func NewNode(fs Filesystem, name, fullPath string, kind Kind, handle interface{}) *Node {
	return &Node{name: name, path: fullPath, kind: kind, fs: fs, handle: handle}
}

// Name returns the last path segment.
func (n *Node) Name() string { return n.name }

// Path returns the normalized path of the node relative to its backend root.
func (n *Node) Path() string { return n.path }

// Kind returns the classification flags the backend assigned.
func (n *Node) Kind() Kind { return n.kind }

// Filesystem returns the backend that created the node.
func (n *Node) Filesystem() Filesystem { return n.fs }

// Handle returns the backend specific handle.
func (n *Node) Handle() interface{} { return n.handle }

func (n *Node) String() string { return n.path }

// Filesystem is the capability set every backend provides.
type Filesystem interface {
	// Root returns the root node of the backend.
	Root() (*Node, error)
	// ListDirectory returns the children of node in backend order.
	ListDirectory(node *Node) ([]*Node, error)
	// Child resolves a single child. A missing child is (nil, nil).
	Child(node *Node, name string) (*Node, error)
	IsDirectory(node *Node) bool
	IsFile(node *Node) bool
	IsSymlink(node *Node) bool
	// ReadChunks streams the content of node in chunks of at most ChunkSize.
	ReadChunks(node *Node) iter.Seq2[[]byte, error]
	Size(node *Node) (int64, error)
	// RelativePath converts an absolute path into a path rooted at this backend.
	RelativePath(absolute string) string
	// FoldCase reports whether glob matching ignores case.
	FoldCase() bool
}

// Variant tags the closed set of backend implementations.
type Variant int

const (
	// OSDirect reads through the host operating system.
	OSDirect Variant = iota
	// RawVolume parses the block device directly.
	RawVolume
	// Registry exposes a Windows registry hive.
	Registry
)

func (v Variant) String() string {
	switch v {
	case OSDirect:
		return "os"
	case RawVolume:
		return "raw"
	case Registry:
		return "registry"
	}
	return "unknown"
}

// Sink receives matched nodes. Implementations must accept any order and any
// number of calls per artifact.
type Sink interface {
	AddCollectedFile(artifact string, node *Node) error
}

// Backend is a filesystem that collects registered patterns.
type Backend interface {
	Filesystem
	io.Closer
	Variant() Variant
	// Mount returns the absolute path the backend is rooted at.
	Mount() string
	// AddPattern registers an absolute pattern for artifact.
	AddPattern(artifact, pattern string)
	// Collect resolves every registered pattern and hands the matches to sink.
	Collect(sink Sink)
	// Lookup resolves an absolute path without wildcards.
	Lookup(absolute string) (*Node, error)
}

// AbsolutePath returns the path of node including the mountpoint of its
// backend. Nodes of unmounted filesystems keep their relative path.
func AbsolutePath(node *Node) string {
	m, ok := node.Filesystem().(interface{ Mount() string })
	if !ok {
		return node.Path()
	}
	mount := strings.TrimRight(strings.ReplaceAll(m.Mount(), "\\", "/"), "/")
	if node.Path() == "/" && mount != "" {
		return mount
	}
	return mount + node.Path()
}

// JoinPath appends name to a backend relative directory path.
func JoinPath(dir, name string) string {
	return path.Join("/", dir, name)
}

// TrimMount removes the mountpoint prefix from an absolute path. The result
// always starts with a slash.
func TrimMount(mount, absolute string) string {
	absolute = strings.ReplaceAll(absolute, "\\", "/")
	mount = strings.TrimRight(strings.ReplaceAll(mount, "\\", "/"), "/")
	if mount != "" && len(absolute) >= len(mount) && strings.EqualFold(absolute[:len(mount)], mount) {
		absolute = absolute[len(mount):]
	}
	if !strings.HasPrefix(absolute, "/") {
		absolute = "/" + absolute
	}
	return absolute
}

// SplitPath splits a backend relative path into its segments.
func SplitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}

// Lookup walks a path without wildcards from the root of fs.
func Lookup(fs Filesystem, relative string) (*Node, error) {
	node, err := fs.Root()
	if err != nil {
		return nil, err
	}
	for _, part := range SplitPath(relative) {
		node, err = fs.Child(node, part)
		if err != nil || node == nil {
			return nil, err
		}
	}
	return node, nil
}
