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

package variables

import (
	"bufio"
	"path"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/registryfs"
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// ForHost returns the resolved variables of the running system.
func ForHost() (*Engine, error) {
	if runtime.GOOS == "windows" {
		return Windows(registryfs.OpenHive)
	}
	return Unix(afero.NewOsFs())
}

// Unix reads user home directories and names from /etc/passwd.
func Unix(fs afero.Fs) (*Engine, error) {
	f, err := fs.Open("/etc/passwd")
	if err != nil {
		return nil, errors.Wrap(err, "could not read users")
	}
	defer f.Close() // nolint:errcheck

	homes := map[string]bool{}
	names := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 6 {
			continue
		}
		names[fields[0]] = true
		if fields[5] != "" {
			homes[fields[5]] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	e := New()
	e.Add("%%users.homedir%%", sortedKeys(homes)...)
	e.Add("%%users.username%%", sortedKeys(names)...)
	return e, e.Resolve()
}

const (
	currentVersion = "/Software/Microsoft/Windows NT/CurrentVersion"
	profileList    = currentVersion + "/ProfileList"
	windowsVersion = "/Software/Microsoft/Windows/CurrentVersion"
	shellFolders   = "/.DEFAULT/Software/Microsoft/Windows/CurrentVersion/Explorer/User Shell Folders"
	localLowFolder = windowsVersion + "/Explorer/FolderDescriptions/{A520A1A4-1780-4FF6-BD18-167343C5AF16}"
)

type registryValue struct {
	variable string
	hive     string
	key      string
	names    []string
	format   func(string) string
}

// Windows reads system paths, user profiles and SIDs from the registry.
func Windows(open registryfs.HiveOpener) (*Engine, error) {
	e := New()

	systemRoot, err := readValue(open, "HKEY_LOCAL_MACHINE", currentVersion, "SystemRoot")
	if err != nil {
		return nil, errors.Wrap(err, "could not read SystemRoot")
	}
	e.Add("%systemroot%", systemRoot)
	e.Add("%%environ_systemroot%%", systemRoot)
	if len(systemRoot) >= 2 {
		e.Add("%systemdrive%", systemRoot[:2])
		e.Add("%%environ_systemdrive%%", systemRoot[:2])
	}

	for _, v := range []registryValue{
		{"%%environ_windir%%", "HKEY_LOCAL_MACHINE", "/System/CurrentControlSet/Control/Session Manager/Environment", []string{"windir"}, nil},
		{"%%environ_allusersappdata%%", "HKEY_LOCAL_MACHINE", profileList, []string{"ProgramData"}, nil},
		{"%%environ_programfiles%%", "HKEY_LOCAL_MACHINE", windowsVersion, []string{"ProgramFilesDir"}, nil},
		{"%%environ_programfilesx86%%", "HKEY_LOCAL_MACHINE", windowsVersion, []string{"ProgramFilesDir (x86)", "ProgramFilesDir"}, nil},
		{"%%environ_allusersprofile%%", "HKEY_LOCAL_MACHINE", profileList, []string{"AllUsersProfile", "ProgramData"}, nil},
		{"%%users.localappdata%%", "HKEY_USERS", shellFolders, []string{"Local AppData"}, nil},
		{"%%users.appdata%%", "HKEY_USERS", shellFolders, []string{"AppData"}, nil},
		{"%%users.temp%%", "HKEY_USERS", "/.DEFAULT/Environment", []string{"TEMP"}, nil},
		{"%%users.localappdata_low%%", "HKEY_LOCAL_MACHINE", localLowFolder, []string{"RelativePath"}, func(s string) string {
			return "%USERPROFILE%\\" + s
		}},
	} {
		value, err := readValue(open, v.hive, v.key, v.names...)
		if err != nil {
			logging.Warnf("could not read %s: %s", v.variable, err)
			continue
		}
		if v.format != nil {
			value = v.format(value)
		}
		e.Add(v.variable, value)
	}

	profiles, sids, err := userProfiles(open)
	if err != nil {
		logging.Warnf("could not read user profiles: %s", err)
	}
	e.Add("%USERPROFILE%", profiles...)
	e.Add("%%users.homedir%%", profiles...)
	e.Add("%%users.userprofile%%", profiles...)

	usernames := map[string]bool{}
	for _, p := range profiles {
		usernames[path.Base(strings.ReplaceAll(p, "\\", "/"))] = true
	}
	e.Add("%%users.username%%", sortedKeys(usernames)...)

	for _, sid := range loadedSIDs(open) {
		sids[sid] = true
	}
	e.Add("%%users.sid%%", sortedKeys(sids)...)

	return e, e.Resolve()
}

func readValue(open registryfs.HiveOpener, hive, key string, names ...string) (string, error) {
	reader, err := registryfs.NewReader(hive, open)
	if err != nil {
		return "", err
	}
	defer reader.Close() // nolint:errcheck

	node, err := vfs.Lookup(reader, key)
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", errors.Wrap(registryfs.ErrNotExist, key)
	}

	for _, name := range names {
		v, err := reader.Value(node, name)
		if err != nil {
			continue
		}
		if s, ok := v.Data.(string); ok {
			return s, nil
		}
	}
	return "", errors.Wrapf(registryfs.ErrNotExist, "%s in %s", strings.Join(names, ", "), key)
}

func userProfiles(open registryfs.HiveOpener) ([]string, map[string]bool, error) {
	sids := map[string]bool{}
	reader, err := registryfs.NewReader("HKEY_LOCAL_MACHINE", open)
	if err != nil {
		return nil, sids, err
	}
	defer reader.Close() // nolint:errcheck

	list, err := vfs.Lookup(reader, profileList)
	if err != nil || list == nil {
		return nil, sids, errors.Wrap(registryfs.ErrNotExist, profileList)
	}
	children, err := reader.ListDirectory(list)
	if err != nil {
		return nil, sids, err
	}

	profiles := map[string]bool{}
	for _, child := range children {
		v, err := reader.Value(child, "ProfileImagePath")
		if err != nil {
			continue
		}
		if s, ok := v.Data.(string); ok {
			profiles[s] = true
			sids[child.Name()] = true
		}
	}
	return sortedKeys(profiles), sids, nil
}

func loadedSIDs(open registryfs.HiveOpener) []string {
	reader, err := registryfs.NewReader("HKEY_USERS", open)
	if err != nil {
		return nil
	}
	defer reader.Close() // nolint:errcheck

	root, err := reader.Root()
	if err != nil {
		return nil
	}
	children, err := reader.ListDirectory(root)
	if err != nil {
		return nil
	}
	var sids []string
	for _, child := range children {
		if strings.Contains(child.Name(), "_Classes") || child.Name() == ".DEFAULT" {
			continue
		}
		sids = append(sids, child.Name())
	}
	return sids
}
