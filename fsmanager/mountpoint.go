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

package fsmanager

import (
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"
)

// Mountpoint is a mounted partition of the host.
type Mountpoint struct {
	Path   string
	Device string
	FSType string
}

// ForensicTypes lists the filesystem types that are read with the raw volume
// backend. Types are compared ignoring case.
var ForensicTypes = []string{"NTFS", "ext2", "ext3", "ext4"}

// IsForensic reports whether the raw volume backend can read the partition.
func (m Mountpoint) IsForensic() bool {
	for _, t := range ForensicTypes {
		if strings.EqualFold(t, m.FSType) {
			return true
		}
	}
	return false
}

// HostMountpoints takes a snapshot of all mounted partitions.
func HostMountpoints() ([]Mountpoint, error) {
	partitions, err := disk.Partitions(true)
	if err != nil {
		return nil, errors.Wrap(err, "could not list partitions")
	}
	mountpoints := make([]Mountpoint, 0, len(partitions))
	for _, p := range partitions {
		mountpoints = append(mountpoints, Mountpoint{Path: p.Mountpoint, Device: p.Device, FSType: p.Fstype})
	}
	return mountpoints, nil
}

var driveLetter = regexp.MustCompile(`^[a-zA-Z]:\\?$`)

// RawDevice returns the path to open for reading the device of m.
func RawDevice(m Mountpoint) string {
	if runtime.GOOS == "windows" && driveLetter.MatchString(m.Device) {
		return `\\.\` + m.Device[:2]
	}
	return m.Device
}

func slashed(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// hasMountPrefix checks if mount is a prefix of p on a path boundary.
func hasMountPrefix(p, mount string, foldCase bool) bool {
	p, mount = slashed(p), strings.TrimRight(slashed(mount), "/")
	if mount == "" {
		return strings.HasPrefix(p, "/")
	}
	if len(p) < len(mount) {
		return false
	}
	prefix := p[:len(mount)]
	if foldCase && !strings.EqualFold(prefix, mount) || !foldCase && prefix != mount {
		return false
	}
	return len(p) == len(mount) || p[len(mount)] == '/'
}

// longestMount returns the mountpoint covering p with the longest path.
func longestMount(mountpoints []Mountpoint, p string, foldCase bool) (Mountpoint, error) {
	candidates := make([]Mountpoint, 0, 1)
	for _, m := range mountpoints {
		if hasMountPrefix(p, m.Path, foldCase) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return Mountpoint{}, errors.Wrap(ErrNoMountpoint, p)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(strings.TrimRight(slashed(candidates[i].Path), "/")) > len(strings.TrimRight(slashed(candidates[j].Path), "/"))
	})
	return candidates[0], nil
}
