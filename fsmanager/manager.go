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

// Package fsmanager maps absolute paths to the backend of the mountpoint
// that covers them.
package fsmanager

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/osfs"
	"github.com/forensicanalysis/artifactcollector/rawfs"
	"github.com/forensicanalysis/artifactcollector/rawfs/ext"
	"github.com/forensicanalysis/artifactcollector/rawfs/ntfs"
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// ErrNoMountpoint is returned if no mountpoint covers a path.
var ErrNoMountpoint = errors.New("could not find a mountpoint")

// Option configures a Manager.
type Option func(*Manager)

// WithFs sets the filesystem used by the OS backends.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithMountpoints replaces the host mountpoint snapshot.
func WithMountpoints(mountpoints []Mountpoint) Option {
	return func(m *Manager) { m.mountpoints = mountpoints }
}

// WithOpener sets the raw volume opener for a filesystem type.
func WithOpener(fstype string, open rawfs.Opener) Option {
	return func(m *Manager) { m.openers[strings.ToLower(fstype)] = open }
}

// WithRaw enables or disables the raw volume backend.
func WithRaw(enabled bool) Option {
	return func(m *Manager) { m.raw = enabled }
}

// WithFoldCase sets if mountpoints are compared ignoring case.
func WithFoldCase(foldCase bool) Option {
	return func(m *Manager) { m.foldCase = foldCase }
}

// Manager creates one backend per used mountpoint and dispatches patterns to
// them.
type Manager struct {
	fs          afero.Fs
	mountpoints []Mountpoint
	openers     map[string]rawfs.Opener
	raw         bool
	foldCase    bool

	backends map[string]vfs.Backend
	order    []string
}

// New creates a manager. Without WithMountpoints the partitions of the
// host are read once.
func New(options ...Option) (*Manager, error) {
	m := &Manager{
		fs: afero.NewOsFs(),
		openers: map[string]rawfs.Opener{
			"ntfs": ntfs.Open,
			"ext2": ext.Open,
			"ext3": ext.Open,
			"ext4": ext.Open,
		},
		raw:      true,
		foldCase: runtime.GOOS == "windows",
		backends: map[string]vfs.Backend{},
	}
	for _, option := range options {
		option(m)
	}
	if m.mountpoints == nil {
		mountpoints, err := HostMountpoints()
		if err != nil {
			return nil, err
		}
		m.mountpoints = mountpoints
	}
	return m, nil
}

// Mountpoints returns the snapshot the manager works on.
func (m *Manager) Mountpoints() []Mountpoint {
	return m.mountpoints
}

func (m *Manager) isRaw(mp Mountpoint) bool {
	if !m.raw || !mp.IsForensic() {
		return false
	}
	_, ok := m.openers[strings.ToLower(mp.FSType)]
	return ok
}

// Mountpoint returns the mountpoint with the longest path covering absolute.
func (m *Manager) Mountpoint(absolute string) (Mountpoint, error) {
	return longestMount(m.mountpoints, absolute, m.foldCase)
}

// Backend returns the backend responsible for absolute, creating it on
// first use.
func (m *Manager) Backend(absolute string) (vfs.Backend, error) {
	mp, err := m.Mountpoint(absolute)
	if err != nil {
		return nil, err
	}
	if backend, ok := m.backends[mp.Path]; ok {
		return backend, nil
	}

	var backend vfs.Backend
	if m.isRaw(mp) {
		live := osfs.New(m.fs, mp.Path)
		backend = rawfs.New(mp.Path, RawDevice(mp), m.openers[strings.ToLower(mp.FSType)], live)
	} else {
		backend = osfs.New(m.fs, mp.Path)
	}
	logging.Debugf("using %s backend for %s", backend.Variant(), mp.Path)

	m.backends[mp.Path] = backend
	m.order = append(m.order, mp.Path)
	return backend, nil
}

// Backends returns all created backends in creation order.
func (m *Manager) Backends() []vfs.Backend {
	backends := make([]vfs.Backend, 0, len(m.order))
	for _, p := range m.order {
		backends = append(backends, m.backends[p])
	}
	return backends
}

// AddPattern registers pattern for artifact. A pattern starting with a
// backslash is registered on every mountpoint read by the raw backend.
func (m *Manager) AddPattern(artifact, pattern string) error {
	if strings.HasPrefix(pattern, "\\") {
		rest := strings.TrimLeft(slashed(pattern), "/")
		for _, mp := range m.mountpoints {
			if !m.isRaw(mp) {
				continue
			}
			if err := m.addPattern(artifact, strings.TrimRight(slashed(mp.Path), "/")+"/"+rest); err != nil {
				return err
			}
		}
		return nil
	}
	return m.addPattern(artifact, slashed(pattern))
}

func (m *Manager) addPattern(artifact, pattern string) error {
	backend, err := m.Backend(pattern)
	if err != nil {
		return errors.Wrapf(err, "could not add pattern for %s", artifact)
	}
	backend.AddPattern(artifact, pattern)
	return nil
}

// Collect runs the patterns of every created backend.
func (m *Manager) Collect(sink vfs.Sink) {
	for _, p := range m.order {
		logging.Debugf("Start collection for '%s'", p)
		m.backends[p].Collect(sink)
	}
}

// Lookup resolves an absolute path without wildcards.
func (m *Manager) Lookup(absolute string) (*vfs.Node, error) {
	backend, err := m.Backend(slashed(absolute))
	if err != nil {
		return nil, err
	}
	return backend.Lookup(slashed(absolute))
}

// Close closes all backends.
func (m *Manager) Close() error {
	var firstErr error
	for _, p := range m.order {
		if err := m.backends[p].Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "could not close %s", p)
		}
	}
	m.backends = map[string]vfs.Backend{}
	m.order = nil
	return firstErr
}
