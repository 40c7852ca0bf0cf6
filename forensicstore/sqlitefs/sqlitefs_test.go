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

package sqlitefs

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dummyFS(t *testing.T) *FS {
	fs, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	require.NoError(t, afero.WriteFile(fs, "/myfile1.txt", []byte(strings.Repeat("test", 1000)), 0666))
	require.NoError(t, fs.MkdirAll("/dir/subdir", 0755))
	require.NoError(t, afero.WriteFile(fs, "/dir/subdir/myfile2.txt", []byte("test2"), 0666))
	return fs
}

func TestFS_ReadWrite(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		content     string
		memoryLimit int64
	}{
		{"small", "/a.txt", "hello", DefaultMemoryLimit},
		{"empty", "/empty", "", DefaultMemoryLimit},
		{"spooled", "/deep/b.bin", strings.Repeat("0123456789", 1000), 16},
		{"backslashes", `\win\c.txt`, "windows", DefaultMemoryLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := dummyFS(t)
			fs.SetSpool(afero.NewOsFs(), t.TempDir(), tt.memoryLimit)

			require.NoError(t, afero.WriteFile(fs, tt.file, []byte(tt.content), 0644))

			got, err := afero.ReadFile(fs, tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(got))

			info, err := fs.Stat(tt.file)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.content)), info.Size())
			assert.False(t, info.IsDir())
		})
	}
}

func TestFS_Create_truncates(t *testing.T) {
	fs := dummyFS(t)
	require.NoError(t, afero.WriteFile(fs, "/myfile1.txt", []byte("new"), 0666))
	got, err := afero.ReadFile(fs, "/myfile1.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestFS_Chmod(t *testing.T) {
	fs := dummyFS(t)
	require.NoError(t, fs.Chmod("/myfile1.txt", 0600))
	info, err := fs.Stat("/myfile1.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode())
}

func TestFS_Chtimes(t *testing.T) {
	fs := dummyFS(t)
	myTime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fs.Chtimes("/myfile1.txt", myTime, myTime))
	info, err := fs.Stat("/myfile1.txt")
	require.NoError(t, err)
	assert.Equal(t, myTime.Unix(), info.ModTime().Unix())
}

func TestFS_Stat(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		isDir   bool
		wantErr bool
	}{
		{"file", "/myfile1.txt", false, false},
		{"dir", "/dir", true, false},
		{"root", "/", true, false},
		{"missing", "/foo.txt", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := dummyFS(t)
			info, err := fs.Stat(tt.file)
			if tt.wantErr {
				assert.True(t, os.IsNotExist(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.isDir, info.IsDir())
			assert.Nil(t, info.Sys())
		})
	}
}

func TestFS_Open_directory(t *testing.T) {
	fs := dummyFS(t)
	f, err := fs.Open("/")
	require.NoError(t, err)
	defer f.Close()

	names, err := f.Readdirnames(-1)
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"dir", "myfile1.txt"}, names)

	f, err = fs.Open("/dir")
	require.NoError(t, err)
	infos, err := f.Readdir(1)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "subdir", infos[0].Name())
	_, err = f.Readdir(1)
	assert.Equal(t, io.EOF, err)
}

func TestFS_Walk(t *testing.T) {
	fs := dummyFS(t)
	var files []string
	err := afero.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		if !info.IsDir() {
			files = append(files, filepath.ToSlash(p))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{"/dir/subdir/myfile2.txt", "/myfile1.txt"}, files)
}

func TestFS_Remove(t *testing.T) {
	fs := dummyFS(t)
	require.NoError(t, fs.Remove("/myfile1.txt"))
	exists, err := afero.Exists(fs, "/myfile1.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.RemoveAll("/dir"))
	for _, name := range []string{"/dir", "/dir/subdir", "/dir/subdir/myfile2.txt"} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
}

func TestFS_Rename(t *testing.T) {
	fs := dummyFS(t)
	require.NoError(t, fs.Rename("/myfile1.txt", "/renamed.txt"))
	got, err := afero.ReadFile(fs, "/renamed.txt")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("test", 1000), string(got))
}

func TestFS_MkdirAll_file(t *testing.T) {
	fs := dummyFS(t)
	assert.Error(t, fs.MkdirAll("/myfile1.txt/sub", 0755))
}

func TestFS_notImplemented(t *testing.T) {
	fs := dummyFS(t)
	f, err := fs.Open("/myfile1.txt")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(0, io.SeekStart)
	assert.Equal(t, ErrNotImplemented, err)
	_, err = f.Write([]byte("x"))
	assert.Equal(t, ErrNotImplemented, err)
	assert.Equal(t, ErrNotImplemented, fs.Chown("/myfile1.txt", 0, 0))
	assert.Equal(t, "SQLiteFS", fs.Name())
}
