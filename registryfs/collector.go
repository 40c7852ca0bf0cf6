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
	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// Sink receives collected registry values.
type Sink interface {
	AddCollectedRegistryValue(artifact, key, name string, value interface{}, valueType string) error
}

type registration struct {
	artifact string
	hive     string
	pattern  string
	value    string
	allKey   bool
}

// Collector gathers registry keys and single values of artifacts.
type Collector struct {
	open          HiveOpener
	registrations []registration
}

// NewCollector creates a collector that opens hives with open.
func NewCollector(open HiveOpener) *Collector {
	return &Collector{open: open}
}

// AddKey registers all values of the keys matching key.
func (c *Collector) AddKey(artifact, key string) {
	hive, pattern := SplitKey(key)
	c.registrations = append(c.registrations, registration{artifact: artifact, hive: hive, pattern: pattern, allKey: true})
}

// AddValue registers the value named value of the keys matching key.
func (c *Collector) AddValue(artifact, key, value string) {
	hive, pattern := SplitKey(key)
	c.registrations = append(c.registrations, registration{artifact: artifact, hive: hive, pattern: pattern, value: value})
}

// Collect resolves all registrations and hands the values to sink. Every
// reader is closed after its registration, errors are logged.
func (c *Collector) Collect(sink Sink) {
	for _, r := range c.registrations {
		c.collect(r, sink)
	}
}

func (c *Collector) collect(r registration, sink Sink) {
	reader, err := NewReader(r.hive, c.open)
	if err != nil {
		logging.Warnf("could not open %s for %s: %s", r.hive, r.artifact, err)
		return
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logging.Warnf("could not close %s: %s", r.hive, err)
		}
	}()

	pattern, err := vfs.Parse(r.pattern)
	if err != nil {
		logging.Errorf("could not parse key %s for %s: %s", r.pattern, r.artifact, err)
		return
	}

	for node := range pattern.Nodes(reader) {
		keyPath := reader.KeyPath(node)

		var values []Value
		if r.allKey {
			values, err = reader.Values(node)
			if err != nil {
				logging.Warnf("could not read values of %s: %s", keyPath, err)
			}
		} else {
			v, err := reader.Value(node, r.value)
			if err != nil {
				logging.Debugf("could not read %s of %s: %s", r.value, keyPath, err)
				continue
			}
			values = []Value{v}
		}

		for _, v := range values {
			if err := sink.AddCollectedRegistryValue(r.artifact, keyPath, v.Name, v.Data, v.Type); err != nil {
				logging.Warnf("could not collect %s of %s: %s", v.Name, keyPath, err)
			}
		}
	}
}
