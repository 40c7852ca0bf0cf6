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

package artifacts

import (
	"runtime"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
)

// Blacklist holds artifacts that are only collected when requested by name.
// They can have a big impact on the performance of the host.
var Blacklist = []string{
	"WMILoginUsers",
	"WMIUsers",
	"WMIVolumeShadowCopies",
}

// Platform returns the operating system name used in supported_os.
func Platform() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	}
	return "Linux"
}

// Registry stores definitions by name.
type Registry struct {
	definitions []Definition
	index       map[string]int
}

// NewRegistry creates a registry with definitions. Later definitions with
// an existing name are ignored.
func NewRegistry(definitions ...Definition) *Registry {
	r := &Registry{index: map[string]int{}}
	r.Add(definitions...)
	return r
}

// Add appends definitions.
func (r *Registry) Add(definitions ...Definition) {
	for _, d := range definitions {
		if _, ok := r.index[d.Name]; ok {
			logging.Warnf("Duplicate artifact definition '%s'", d.Name)
			continue
		}
		r.index[d.Name] = len(r.definitions)
		r.definitions = append(r.definitions, d)
	}
}

// Get returns the definition called name.
func (r *Registry) Get(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}
	return r.definitions[i], true
}

// Definitions returns all definitions in insertion order.
func (r *Registry) Definitions() []Definition {
	return r.definitions
}

// ResolveGroups returns the known names in names together with all members
// of the artifact groups among them.
func (r *Registry) ResolveGroups(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	resolved := map[string]bool{}
	queue := append([]string{}, names...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if resolved[name] {
			continue
		}
		d, ok := r.Get(name)
		if !ok {
			logging.Warnf("Unknown artifact '%s'", name)
			continue
		}
		resolved[name] = true
		for _, s := range d.Sources {
			if s.Type == TypeArtifactGroup {
				queue = append(queue, s.Attributes.Names...)
			}
		}
	}
	return resolved
}

// Options select the sources to collect.
type Options struct {
	Include         map[string]bool
	Exclude         map[string]bool
	Platform        string
	CollectRegistry bool
}

// Selection is one source of a definition.
type Selection struct {
	Definition Definition
	Source     Source
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func supported(supportedOS []string, platform string) bool {
	return len(supportedOS) == 0 || contains(supportedOS, platform)
}

// Select returns the sources of all definitions that match options.
func (r *Registry) Select(options Options) []Selection {
	var selections []Selection
	for _, d := range r.definitions {
		if contains(Blacklist, d.Name) && !options.Include[d.Name] {
			continue
		}
		if options.Include != nil && !options.Include[d.Name] {
			continue
		}
		if options.Exclude[d.Name] {
			continue
		}
		if !supported(d.SupportedOS, options.Platform) {
			continue
		}
		for _, s := range d.Sources {
			if !supported(s.SupportedOS, options.Platform) {
				continue
			}
			// full hives are collected as files by default
			if !options.CollectRegistry && (s.Type == TypeRegistryKey || s.Type == TypeRegistryValue) {
				continue
			}
			selections = append(selections, Selection{Definition: d, Source: s})
		}
	}
	return selections
}
