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
	"github.com/forensicanalysis/artifactcollector/internal/logging"
)

// Registration is a pattern registered for an artifact.
type Registration struct {
	Artifact string
	Pattern  string
}

// PatternSet holds the patterns registered on one backend in registration order.
type PatternSet struct {
	registrations []Registration
}

// Add registers pattern for artifact.
func (s *PatternSet) Add(artifact, pattern string) {
	s.registrations = append(s.registrations, Registration{Artifact: artifact, Pattern: pattern})
}

// Registrations returns all registrations in order.
func (s *PatternSet) Registrations() []Registration {
	return s.registrations
}

// Collect resolves every registration against fs and passes the matches to
// sink. Failures of single nodes are logged and do not stop the traversal.
func (s *PatternSet) Collect(fs Filesystem, sink Sink) {
	for _, r := range s.registrations {
		relative := fs.RelativePath(r.Pattern)
		pattern, err := Parse(relative)
		if err != nil {
			logging.Errorf("could not parse pattern %s for %s: %s", r.Pattern, r.Artifact, err)
			continue
		}

		logging.Debugf("collecting %s for %s", relative, r.Artifact)
		for node := range pattern.Nodes(fs) {
			if err := sink.AddCollectedFile(r.Artifact, node); err != nil {
				logging.Warnf("could not collect %s for %s: %s", node.Path(), r.Artifact, err)
			}
		}
	}
}
