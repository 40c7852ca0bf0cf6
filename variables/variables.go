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

// Package variables expands host specific placeholders like
// %%users.homedir%% in artifact paths.
package variables

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
)

// DefaultMaxDepth bounds nested substitutions.
const DefaultMaxDepth = 16

// ErrSubstitutionDepth is returned when substitutions nest deeper than the
// engine allows, usually because variables reference each other.
var ErrSubstitutionDepth = errors.New("maximum substitution depth exceeded")

// Variable is a named placeholder with its values.
type Variable struct {
	Name    string
	Values  []string
	matcher *regexp.Regexp
}

// Engine holds an ordered list of variables.
type Engine struct {
	MaxDepth  int
	variables []*Variable
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{MaxDepth: DefaultMaxDepth}
}

// Add appends a variable. The name includes its markers, e.g. %%users.sid%%.
func (e *Engine) Add(name string, values ...string) {
	e.variables = append(e.variables, &Variable{
		Name:    name,
		Values:  values,
		matcher: regexp.MustCompile("(?i)" + regexp.QuoteMeta(name)),
	})
}

// Variables returns all variables in insertion order.
func (e *Engine) Variables() []*Variable {
	return e.variables
}

// Resolve substitutes the values of every variable once so that values
// referencing other variables become concrete. Values that cannot be
// resolved, e.g. because of a reference cycle, are kept unchanged so that
// Substitute keeps reporting ErrSubstitutionDepth for them.
func (e *Engine) Resolve() error {
	var firstErr error
	for _, v := range e.variables {
		resolved := map[string]bool{}
		for _, value := range v.Values {
			values, err := e.substitute(value, 0)
			if err != nil {
				logging.Errorf("could not resolve %s: %s", v.Name, err)
				if firstErr == nil {
					firstErr = errors.Wrap(err, v.Name)
				}
				resolved[value] = true
				continue
			}
			for _, s := range values {
				resolved[s] = true
			}
		}
		v.Values = sortedKeys(resolved)
	}
	return firstErr
}

// Substitute expands all placeholders in s. Every value of a variable creates
// one result. An empty result means s contains an unknown placeholder.
func (e *Engine) Substitute(s string) ([]string, error) {
	values, err := e.substitute(s, 0)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		logging.Warnf("Value '%s' contains unsupported variables", s)
	}
	return values, nil
}

func (e *Engine) substitute(s string, depth int) ([]string, error) {
	if strings.Count(s, "%") < 2 {
		return []string{s}, nil
	}
	if depth > e.MaxDepth {
		return nil, errors.Wrapf(ErrSubstitutionDepth, "in %q", s)
	}

	results := map[string]bool{}
	for _, v := range e.variables {
		if !v.matcher.MatchString(s) {
			continue
		}
		for _, value := range v.Values {
			replaced := v.matcher.ReplaceAllLiteralString(s, value)
			values, err := e.substitute(replaced, depth+1)
			if err != nil {
				return nil, err
			}
			for _, r := range values {
				results[r] = true
			}
		}
	}
	return sortedKeys(results), nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
