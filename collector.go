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

package artifactcollector

import (
	"context"
	"strings"

	"github.com/forensicanalysis/artifactcollector/artifacts"
	"github.com/forensicanalysis/artifactcollector/commands"
	"github.com/forensicanalysis/artifactcollector/fsmanager"
	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/registryfs"
	"github.com/forensicanalysis/artifactcollector/variables"
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// Sink receives everything a Collector finds.
type Sink interface {
	vfs.Sink
	registryfs.Sink
	commands.Sink
	AddCollectedFileInfo(artifact string, node *vfs.Node) error
	Close() error
}

// Collector dispatches the sources of artifact definitions to the file,
// registry and command collectors.
type Collector struct {
	platform  string
	variables *variables.Engine
	manager   *fsmanager.Manager
	registry  *registryfs.Collector
	commands  *commands.Executor

	// infoOnly maps the registration names of FILE_INFO patterns to
	// their artifact.
	infoOnly map[string]string
	sources  int
}

// NewCollector creates a collector for platform. Registry sources are only
// handled on Windows.
func NewCollector(platform string, engine *variables.Engine, manager *fsmanager.Manager, open registryfs.HiveOpener) *Collector {
	return &Collector{
		platform:  platform,
		variables: engine,
		manager:   manager,
		registry:  registryfs.NewCollector(open),
		commands:  commands.NewExecutor(),
		infoOnly:  map[string]string{},
	}
}

// Commands returns the executor used for COMMAND sources.
func (c *Collector) Commands() *commands.Executor {
	return c.commands
}

// Sources returns the number of registered sources.
func (c *Collector) Sources() int {
	return c.sources
}

// RegisterSource registers source of definition with every sub collector
// that supports it.
func (c *Collector) RegisterSource(definition artifacts.Definition, source artifacts.Source) {
	var supported bool
	switch source.Type {
	case artifacts.TypeFile, artifacts.TypePath:
		supported = c.registerPaths(definition.Name, source.Attributes, "")
	case artifacts.TypeDirectory:
		supported = c.registerPaths(definition.Name, source.Attributes, "/")
	case artifacts.TypeFileInfo:
		name := definition.Name + infoSuffix
		c.infoOnly[name] = definition.Name
		supported = c.registerPaths(name, source.Attributes, "")
	case artifacts.TypeRegistryKey:
		supported = c.registerKeys(definition.Name, source.Attributes)
	case artifacts.TypeRegistryValue:
		supported = c.registerValues(definition.Name, source.Attributes)
	case artifacts.TypeCommand:
		c.commands.AddCommand(definition.Name, source.Attributes.Cmd, source.Attributes.Args)
		supported = true
	}

	if supported {
		c.sources++
	} else if source.Type != artifacts.TypeArtifactGroup {
		logging.Warnf("Cannot process source for '%s' because type '%s' is not supported", definition.Name, source.Type)
	}
}

func (c *Collector) substitute(artifact, s string) []string {
	values, err := c.variables.Substitute(s)
	if err != nil {
		logging.Warnf("Could not substitute '%s' for artifact '%s': %s", s, artifact, err)
		return nil
	}
	return values
}

func (c *Collector) registerPaths(name string, attributes artifacts.Attributes, suffix string) bool {
	artifact := strings.TrimSuffix(name, infoSuffix)
	for _, p := range attributes.Paths {
		for _, pattern := range c.substitute(artifact, p) {
			if err := c.manager.AddPattern(name, pattern+suffix); err != nil {
				logging.Warnf("Could not add '%s' for artifact '%s': %s", pattern, artifact, err)
			}
		}
	}
	return true
}

func (c *Collector) registerKeys(artifact string, attributes artifacts.Attributes) bool {
	if c.platform != "Windows" {
		return false
	}
	for _, k := range attributes.Keys {
		for _, key := range c.substitute(artifact, k) {
			c.registry.AddKey(artifact, key)
		}
	}
	return true
}

func (c *Collector) registerValues(artifact string, attributes artifacts.Attributes) bool {
	if c.platform != "Windows" {
		return false
	}
	for _, pair := range attributes.KeyValuePairs {
		for _, key := range c.substitute(artifact, pair.Key) {
			c.registry.AddValue(artifact, key, pair.Value)
		}
	}
	return true
}

// Collect runs all sub collectors and closes out.
func (c *Collector) Collect(ctx context.Context, out Sink) error {
	logging.Progressf("Collecting artifacts from %d sources ...", c.sources)

	c.manager.Collect(&fileSink{infoOnly: c.infoOnly, out: out})
	c.registry.Collect(out)
	c.commands.Collect(ctx, out)

	logging.Progressf("Finished collecting artifacts")

	if err := c.manager.Close(); err != nil {
		logging.Warnf("Could not close filesystems: %s", err)
	}
	return out.Close()
}

// infoSuffix marks the registrations of FILE_INFO sources, so one artifact
// can have both FILE and FILE_INFO sources.
const infoSuffix = "#info"

// fileSink sends the files of FILE_INFO sources to AddCollectedFileInfo.
type fileSink struct {
	infoOnly map[string]string
	out      Sink
}

func (s *fileSink) AddCollectedFile(name string, node *vfs.Node) error {
	if artifact, ok := s.infoOnly[name]; ok {
		return s.out.AddCollectedFileInfo(artifact, node)
	}
	return s.out.AddCollectedFile(name, node)
}
