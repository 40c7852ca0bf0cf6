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

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/artifactcollector/forensicstore"
)

func TestNormalizeFilePath(t *testing.T) {
	x32 := strings.Repeat("x", 32)
	longFileName := strings.Repeat("long_file_name_", 8)

	pathTests := []struct {
		name              string
		srcPath           string
		normalizedSrcPath string
	}{
		{"Windows path", `/C/Users/user/NTUSER.DAT`, `C_Users_user_NTUSER.DAT`},
		{"Linux path", `/home/username/.bash_history`, `home_username_.bash_history`},
		{
			"Long path",
			`/C/Users/user/AppData/Local/Google/Chrome/User Data/Default/Extensions/` + x32 + `/1.11_1/_metadata/folder_` + x32 + `/` + longFileName + `.json`,
			`AppD_Loca_Goog_Chro_User_Defa_Exte_xxxx_1.11__met_fold_long.json`,
		},
		{
			"Long name without extension",
			`/var/` + strings.Repeat("y", 70),
			`var_yyyy`,
		},
	}

	for _, pt := range pathTests {
		t.Run(pt.name, func(t *testing.T) {
			assert.Equal(t, pt.normalizedSrcPath, normalizeFilePath(pt.srcPath))
		})
	}
}

func Test_last(t *testing.T) {
	type args struct {
		s string
		n int
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"long", args{"abcdef", 2}, "ef"},
		{"short", args{"abc", 4}, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := last(tt.args.s, tt.args.n); got != tt.want {
				t.Errorf("last() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnpack(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		hosts  string
		stdout string
	}{
		{"compact", nil, "WindowsHostsFile/C_Windows_System32_drivers_etc_hosts", "IPTablesRules/IPTablesRules_stdout"},
		{"folder", []string{"--mode", "folder"}, "WindowsHostsFile/C/Windows/System32/drivers/etc/hosts", "IPTablesRules/IPTablesRules/stdout"},
		{"basename", []string{"--mode", "basename", "--prefix-artifact=false"}, "hosts", "stdout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storePath, _ := setup(t)
			dest := t.TempDir()

			args := append(append([]string{"--directory", dest}, tt.args...), storePath)
			_, err := execute(t, Unpack(), args...)
			require.NoError(t, err)

			content, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(tt.hosts)))
			require.NoError(t, err)
			assert.Equal(t, hostsContent, string(content))
			assert.FileExists(t, filepath.Join(dest, filepath.FromSlash(tt.stdout)))
		})
	}
}

func TestLs(t *testing.T) {
	storePath, _ := setup(t)

	out, err := execute(t, Ls(), storePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"/C/Windows/System32/drivers/etc/hosts", "/IPTablesRules/stdout"}, strings.Fields(out))
}

func TestPack(t *testing.T) {
	storePath, _ := setup(t)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "evidence", "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "evidence", "sub", "notes.txt"), []byte("notes"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd) // nolint:errcheck

	_, err = execute(t, Pack(), "--artifact", "Notes", storePath, "evidence")
	require.NoError(t, err)

	out, err := execute(t, Ls(), storePath)
	require.NoError(t, err)
	assert.Contains(t, strings.Fields(out), "/evidence/sub/notes.txt")

	store, err := forensicstore.Open(storePath)
	require.NoError(t, err)
	defer store.Close()

	elements, err := store.Select([]map[string]string{{"type": "file", "artifact": "Notes"}})
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "evidence/sub/notes.txt", gjson.GetBytes(elements[0], "export_path").String())
	assert.Equal(t, "notes.txt", gjson.GetBytes(elements[0], "name").String())
	assert.Equal(t, int64(5), gjson.GetBytes(elements[0], "size").Int())

	flaws, err := store.Validate()
	require.NoError(t, err)
	assert.Empty(t, flaws)
}

func TestPack_newStore(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("notes"), 0644))
	storePath := filepath.Join(dir, "new.forensicstore")

	_, err := execute(t, Pack(), storePath, notes)
	require.NoError(t, err)

	store, err := forensicstore.Open(storePath)
	require.NoError(t, err)
	defer store.Close()

	elements, err := store.Select([]map[string]string{{"type": "file", "artifact": "Packed"}})
	require.NoError(t, err)
	assert.Len(t, elements, 1)
}
