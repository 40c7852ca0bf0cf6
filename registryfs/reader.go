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

package registryfs

import (
	"iter"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactcollector/vfs"
)

// Value is a normalized registry value.
type Value struct {
	Name string
	Data interface{}
	Type string
}

// Reader is the filesystem view of one hive. Key handles are cached per
// path and released by Close.
type Reader struct {
	hive    string
	root    Key
	handles map[string]Key
}

var _ vfs.Filesystem = &Reader{}

// NewReader opens hive with open.
func NewReader(hive string, open HiveOpener) (*Reader, error) {
	hive = CanonicalHive(hive)
	root, err := open(hive)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", hive)
	}
	return &Reader{hive: hive, root: root, handles: map[string]Key{"/": root}}, nil
}

// Hive returns the canonical hive name.
func (r *Reader) Hive() string { return r.hive }

// Variant returns vfs.Registry.
func (r *Reader) Variant() vfs.Variant { return vfs.Registry }

// Close releases every key handle opened by the reader.
func (r *Reader) Close() error {
	var firstErr error
	for p, key := range r.handles {
		if err := key.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.handles, p)
	}
	return firstErr
}

func cacheKey(p string) string {
	return strings.ToLower(p)
}

func (r *Reader) open(p string) (Key, error) {
	if key, ok := r.handles[cacheKey(p)]; ok {
		return key, nil
	}
	if p == "/" {
		return nil, errors.New("reader is closed")
	}
	parent, err := r.open(path.Dir(p))
	if err != nil {
		return nil, err
	}
	key, err := parent.OpenSubKey(path.Base(p))
	if err != nil {
		return nil, err
	}
	r.handles[cacheKey(p)] = key
	return key, nil
}

func (r *Reader) node(p string) (*vfs.Node, error) {
	key, err := r.open(p)
	if err != nil {
		return nil, err
	}
	subKeys, err := key.SubKeyNames()
	if err != nil {
		return nil, err
	}
	kind := vfs.KindFile
	if len(subKeys) > 0 {
		kind |= vfs.KindDirectory
	}
	name := path.Base(p)
	if p == "/" {
		name = ""
	}
	return vfs.NewNode(r, name, p, kind, key), nil
}

// Root returns the hive root.
func (r *Reader) Root() (*vfs.Node, error) {
	return r.node("/")
}

// ListDirectory returns the subkeys of node.
func (r *Reader) ListDirectory(node *vfs.Node) ([]*vfs.Node, error) {
	key, err := r.open(node.Path())
	if err != nil {
		return nil, err
	}
	names, err := key.SubKeyNames()
	if err != nil {
		return nil, err
	}
	nodes := make([]*vfs.Node, 0, len(names))
	for _, name := range names {
		child, err := r.node(vfs.JoinPath(node.Path(), name))
		if err != nil {
			continue
		}
		nodes = append(nodes, child)
	}
	return nodes, nil
}

// Child opens a direct subkey of node.
func (r *Reader) Child(node *vfs.Node, name string) (*vfs.Node, error) {
	child, err := r.node(vfs.JoinPath(node.Path(), name))
	if errors.Is(err, ErrNotExist) {
		return nil, nil
	}
	return child, err
}

// IsDirectory reports whether the key has subkeys.
func (r *Reader) IsDirectory(node *vfs.Node) bool { return node.Kind().Has(vfs.KindDirectory) }

// IsFile is true for every key.
func (r *Reader) IsFile(node *vfs.Node) bool { return node.Kind().Has(vfs.KindFile) }

// IsSymlink is always false.
func (r *Reader) IsSymlink(*vfs.Node) bool { return false }

// ReadChunks fails, keys have values instead of content.
func (r *Reader) ReadChunks(node *vfs.Node) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		yield(nil, errors.Errorf("registry key %s has no content", node.Path()))
	}
}

// Size returns the number of values of node.
func (r *Reader) Size(node *vfs.Node) (int64, error) {
	key, err := r.open(node.Path())
	if err != nil {
		return 0, err
	}
	names, err := key.ValueNames()
	return int64(len(names)), err
}

// RelativePath strips the hive from a full key path. Paths starting with a
// slash are already relative.
func (r *Reader) RelativePath(absolute string) string {
	if strings.HasPrefix(absolute, "/") {
		return absolute
	}
	_, keyPath := SplitKey(absolute)
	return keyPath
}

// FoldCase is true, registry names are case insensitive.
func (r *Reader) FoldCase() bool { return true }

// KeyPath returns the full Windows path of node.
func (r *Reader) KeyPath(node *vfs.Node) string {
	if node.Path() == "/" {
		return r.hive
	}
	return r.hive + strings.ReplaceAll(node.Path(), "/", "\\")
}

// Values enumerates all values of node sorted by name.
func (r *Reader) Values(node *vfs.Node) ([]Value, error) {
	key, err := r.open(node.Path())
	if err != nil {
		return nil, err
	}
	names, err := key.ValueNames()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	values := make([]Value, 0, len(names))
	for _, name := range names {
		v, err := r.value(key, name)
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Value looks up a single named value of node.
func (r *Reader) Value(node *vfs.Node, name string) (Value, error) {
	key, err := r.open(node.Path())
	if err != nil {
		return Value{}, err
	}
	return r.value(key, name)
}

func (r *Reader) value(key Key, name string) (Value, error) {
	data, t, err := key.Value(name)
	if err != nil {
		return Value{}, err
	}
	return Value{Name: name, Data: Normalize(data), Type: TypeName(t)}, nil
}
