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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// DefaultDepth is the depth of a recursive component without explicit depth.
const DefaultDepth = 3

var (
	recursionRegex = regexp.MustCompile(`\*\*(\d*)`)
	globRegex      = regexp.MustCompile(`\*|\?|\[.+\]`)
)

// ErrEmptyPattern is returned for patterns without segments.
var ErrEmptyPattern = errors.New("empty pattern")

// ComponentKind is the type of a parsed path segment.
type ComponentKind int

const (
	// Literal segments are resolved by name.
	Literal ComponentKind = iota
	// Glob segments are matched against every child.
	Glob
	// Recursive segments walk a subtree up to a maximum depth.
	Recursive
)

func (k ComponentKind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Glob:
		return "glob"
	case Recursive:
		return "recursive"
	}
	return "unknown"
}

// Component is one parsed pattern segment.
type Component struct {
	Kind         ComponentKind
	Text         string
	MaxDepth     int
	Intermediate bool

	matcher     glob.Glob
	foldMatcher glob.Glob
}

func (c Component) String() string {
	switch c.Kind {
	case Recursive:
		return fmt.Sprintf("**%d", c.MaxDepth)
	default:
		return c.Text
	}
}

// Match reports whether name matches a glob component.
func (c Component) Match(name string, foldCase bool) bool {
	switch c.Kind {
	case Literal:
		if foldCase {
			return strings.EqualFold(c.Text, name)
		}
		return c.Text == name
	case Glob:
		if foldCase {
			return c.foldMatcher.Match(strings.ToLower(name))
		}
		return c.matcher.Match(name)
	}
	return true
}

// Pattern is a parsed path pattern.
type Pattern struct {
	Raw        string
	Components []Component
	// SeeksDirectory is set for patterns ending in a slash. Their last
	// component matches directories instead of files.
	SeeksDirectory bool
}

// Parse splits a slash separated pattern into components.
func Parse(pattern string) (*Pattern, error) {
	p := &Pattern{Raw: pattern}
	normalized := strings.ReplaceAll(pattern, "\\", "/")
	if len(normalized) > 1 && strings.HasSuffix(normalized, "/") {
		p.SeeksDirectory = true
	}

	segments := SplitPath(normalized)
	if len(segments) == 0 && !strings.HasPrefix(normalized, "/") {
		return nil, ErrEmptyPattern
	}

	for i, segment := range segments {
		c, err := parseSegment(segment)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid segment %q in %s", segment, pattern)
		}
		c.Intermediate = i < len(segments)-1
		p.Components = append(p.Components, c)
	}
	return p, nil
}

// shellPattern escapes the alternation syntax of gobwas/glob. Braces are
// literal in shell patterns and common in GUID names like {0AFACED1-...}.
var shellPattern = strings.NewReplacer("{", `\{`, "}", `\}`, ",", `\,`).Replace

func parseSegment(segment string) (Component, error) {
	if m := recursionRegex.FindStringSubmatch(segment); m != nil {
		depth := DefaultDepth
		if m[1] != "" {
			d, err := strconv.Atoi(m[1])
			if err != nil {
				return Component{}, err
			}
			depth = d
		}
		return Component{Kind: Recursive, Text: segment, MaxDepth: depth}, nil
	}

	if globRegex.MatchString(segment) {
		matcher, err := glob.Compile(shellPattern(segment))
		if err != nil {
			return Component{}, err
		}
		foldMatcher, err := glob.Compile(shellPattern(strings.ToLower(segment)))
		if err != nil {
			return Component{}, err
		}
		return Component{Kind: Glob, Text: segment, matcher: matcher, foldMatcher: foldMatcher}, nil
	}

	return Component{Kind: Literal, Text: segment}, nil
}
