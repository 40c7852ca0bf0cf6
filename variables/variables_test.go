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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/artifactcollector/registryfs"
)

func testEngine(t *testing.T) *Engine {
	e := New()
	e.Add("%%users.homedir%%", "%%USERDIR%%", "/tmp/root")
	e.Add("%%USERDIR%%", "/home/user")
	require.NoError(t, e.Resolve())
	return e
}

func TestEngine_Substitute(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"multiple values", "%%users.homedir%%/test", []string{"/home/user/test", "/tmp/root/test"}},
		{"embedded", "test%%USERDIR%%test", []string{"test/home/usertest"}},
		{"case insensitive", "%%userdir%%/x", []string{"/home/user/x"}},
		{"no variables", "i_dont_have_variables", []string{"i_dont_have_variables"}},
		{"single marker", "100%", []string{"100%"}},
		{"unsupported", "i_contain_%%unsupported%%_variables", []string{}},
		{"two variables", "%%USERDIR%%/%%USERDIR%%", []string{"/home/user//home/user"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testEngine(t).Substitute(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_Substitute_fixpoint(t *testing.T) {
	e := testEngine(t)
	for _, input := range []string{"%%users.homedir%%/.ssh/*", "/etc/passwd", "%%USERDIR%%"} {
		first, err := e.Substitute(input)
		require.NoError(t, err)
		for _, value := range first {
			again, err := e.Substitute(value)
			require.NoError(t, err)
			assert.Equal(t, []string{value}, again)
		}
	}
}

func TestEngine_Substitute_homedirs(t *testing.T) {
	e := New()
	e.Add("%%users.homedir%%", "/home/alice", "/home/bob")
	require.NoError(t, e.Resolve())

	got, err := e.Substitute("%%users.homedir%%/passwords.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/alice/passwords.txt", "/home/bob/passwords.txt"}, got)
}

func TestEngine_Resolve_cycle(t *testing.T) {
	e := New()
	e.Add("%%a%%", "x%%b%%")
	e.Add("%%b%%", "y%%a%%")
	e.Add("%%c%%", "fine")

	err := e.Resolve()
	assert.ErrorIs(t, err, ErrSubstitutionDepth)
	assert.Equal(t, []string{"fine"}, e.Variables()[2].Values)
	assert.Equal(t, []string{"x%%b%%"}, e.Variables()[0].Values)

	_, err = e.Substitute("%%a%%")
	assert.ErrorIs(t, err, ErrSubstitutionDepth)
}

func TestEngine_literalReplacement(t *testing.T) {
	e := New()
	e.Add("%systemroot%", "C:\\Windows")
	e.Add("%dollar%", "$1")
	require.NoError(t, e.Resolve())

	got, err := e.Substitute("%SystemRoot%\\System32")
	require.NoError(t, err)
	assert.Equal(t, []string{"C:\\Windows\\System32"}, got)

	got, err = e.Substitute("/a/%dollar%")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/$1"}, got)
}

func TestUnix(t *testing.T) {
	fs := afero.NewMemMapFs()
	passwd := "# users\n" +
		"root:x:0:0:root:/root:/bin/bash\n" +
		"alice:x:1000:1000:Alice:/home/alice:/bin/zsh\n" +
		"nobody:x:65534:65534::/nonexistent:/usr/sbin/nologin\n" +
		"broken line\n"
	require.NoError(t, afero.WriteFile(fs, "/etc/passwd", []byte(passwd), 0644))

	e, err := Unix(fs)
	require.NoError(t, err)

	got, err := e.Substitute("%%users.homedir%%/.bash_history")
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/alice/.bash_history", "/nonexistent/.bash_history", "/root/.bash_history"}, got)

	got, err = e.Substitute("/var/mail/%%users.username%%")
	require.NoError(t, err)
	assert.Equal(t, []string{"/var/mail/alice", "/var/mail/nobody", "/var/mail/root"}, got)

	_, err = Unix(afero.NewMemMapFs())
	assert.Error(t, err)
}

func windowsHives() registryfs.MemHives {
	return registryfs.MemHives{
		"HKEY_LOCAL_MACHINE": {Name: "HKEY_LOCAL_MACHINE", SubKeys: []*registryfs.MemKey{
			{Name: "SOFTWARE", SubKeys: []*registryfs.MemKey{
				{Name: "Microsoft", SubKeys: []*registryfs.MemKey{
					{Name: "Windows NT", SubKeys: []*registryfs.MemKey{
						{Name: "CurrentVersion", Values: []registryfs.MemValue{
							{Name: "SystemRoot", Type: registryfs.RegSz, Data: "C:\\Windows"},
						}, SubKeys: []*registryfs.MemKey{
							{Name: "ProfileList", Values: []registryfs.MemValue{
								{Name: "ProgramData", Type: registryfs.RegExpandSz, Data: "%SystemDrive%\\ProgramData"},
							}, SubKeys: []*registryfs.MemKey{
								{Name: "S-1-5-18", Values: []registryfs.MemValue{
									{Name: "ProfileImagePath", Type: registryfs.RegExpandSz, Data: "%systemroot%\\system32\\config\\systemprofile"},
								}},
								{Name: "S-1-5-21-1001", Values: []registryfs.MemValue{
									{Name: "ProfileImagePath", Type: registryfs.RegExpandSz, Data: "%SystemDrive%\\Users\\alice"},
								}},
							}},
						}},
					}},
					{Name: "Windows", SubKeys: []*registryfs.MemKey{
						{Name: "CurrentVersion", Values: []registryfs.MemValue{
							{Name: "ProgramFilesDir", Type: registryfs.RegSz, Data: "C:\\Program Files"},
						}},
					}},
				}},
			}},
		}},
		"HKEY_USERS": {Name: "HKEY_USERS", SubKeys: []*registryfs.MemKey{
			{Name: ".DEFAULT"},
			{Name: "S-1-5-21-1001"},
			{Name: "S-1-5-21-1001_Classes"},
			{Name: "S-1-5-21-1002"},
		}},
	}
}

func TestWindows(t *testing.T) {
	e, err := Windows(windowsHives().Open)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"systemroot", "%%environ_systemroot%%\\System32\\config\\SAM", []string{"C:\\Windows\\System32\\config\\SAM"}},
		{"systemdrive", "%systemdrive%\\$MFT", []string{"C:\\$MFT"}},
		{"programdata", "%%environ_allusersappdata%%\\x", []string{"C:\\ProgramData\\x"}},
		{"programfiles x86 fallback", "%%environ_programfilesx86%%", []string{"C:\\Program Files"}},
		{"homedir", "%%users.homedir%%\\NTUSER.DAT", []string{
			"C:\\Users\\alice\\NTUSER.DAT",
			"C:\\Windows\\system32\\config\\systemprofile\\NTUSER.DAT",
		}},
		{"username", "%%users.username%%", []string{"alice", "systemprofile"}},
		{"sid", "HKEY_USERS\\%%users.sid%%\\Software", []string{
			"HKEY_USERS\\S-1-5-18\\Software",
			"HKEY_USERS\\S-1-5-21-1001\\Software",
			"HKEY_USERS\\S-1-5-21-1002\\Software",
		}},
		{"missing value", "%%users.temp%%", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Substitute(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindows_noRegistry(t *testing.T) {
	_, err := Windows(registryfs.MemHives{}.Open)
	assert.Error(t, err)
}
