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

package vfs

import (
	"iter"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
)

// Nodes chains the components of p into a lazy sequence of matching nodes.
// The sequence is consumed once; iterating it again yields nothing.
func (p *Pattern) Nodes(fs Filesystem) iter.Seq[*Node] {
	seq := rootSeq(fs)
	for _, c := range p.Components {
		seq = c.Generate(fs, seq, p.SeeksDirectory)
	}

	consumed := false
	return func(yield func(*Node) bool) {
		if consumed {
			return
		}
		consumed = true
		seq(yield)
	}
}

func rootSeq(fs Filesystem) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		root, err := fs.Root()
		if err != nil {
			logging.Warnf("could not open root: %s", err)
			return
		}
		yield(root)
	}
}

// Generate returns the nodes below parents that match c.
func (c Component) Generate(fs Filesystem, parents iter.Seq[*Node], seeksDirectory bool) iter.Seq[*Node] {
	wantDir := c.Intermediate || seeksDirectory
	switch c.Kind {
	case Recursive:
		return c.recursive(fs, parents, wantDir)
	case Glob:
		return c.glob(fs, parents, wantDir)
	default:
		return c.literal(fs, parents, wantDir)
	}
}

func accepts(fs Filesystem, node *Node, wantDir bool) bool {
	if wantDir {
		return fs.IsDirectory(node)
	}
	return fs.IsFile(node)
}

func (c Component) literal(fs Filesystem, parents iter.Seq[*Node], wantDir bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for parent := range parents {
			child, err := fs.Child(parent, c.Text)
			if err != nil {
				logging.Warnf("could not resolve %s in %s: %s", c.Text, parent.Path(), err)
				continue
			}
			if child == nil || !accepts(fs, child, wantDir) {
				continue
			}
			if !yield(child) {
				return
			}
		}
	}
}

func (c Component) glob(fs Filesystem, parents iter.Seq[*Node], wantDir bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for parent := range parents {
			children, err := fs.ListDirectory(parent)
			if err != nil {
				logging.Warnf("could not list %s: %s", parent.Path(), err)
				continue
			}
			for _, child := range children {
				if !c.Match(child.Name(), fs.FoldCase()) || !accepts(fs, child, wantDir) {
					continue
				}
				if !yield(child) {
					return
				}
			}
		}
	}
}

func (c Component) recursive(fs Filesystem, parents iter.Seq[*Node], wantDir bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for parent := range parents {
			if !c.walk(fs, parent, 0, wantDir, yield) {
				return
			}
		}
	}
}

// walk visits the children of node at depth and recurses into directories
// while the next level stays below MaxDepth. Directories are yielded after
// their subtree.
func (c Component) walk(fs Filesystem, node *Node, depth int, wantDir bool, yield func(*Node) bool) bool {
	children, err := fs.ListDirectory(node)
	if err != nil {
		logging.Warnf("could not list %s: %s", node.Path(), err)
		return true
	}
	for _, child := range children {
		if fs.IsDirectory(child) {
			if depth+1 < c.MaxDepth {
				if !c.walk(fs, child, depth+1, wantDir, yield) {
					return false
				}
			}
			if wantDir || fs.IsFile(child) {
				if !yield(child) {
					return false
				}
			}
			continue
		}
		if !wantDir && fs.IsFile(child) {
			if !yield(child) {
				return false
			}
		}
	}
	return true
}
