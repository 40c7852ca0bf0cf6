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
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/artifactcollector/forensicstore"
)

const hostsContent = "127.0.0.1 localhost"

// setup creates a store with a collected file, a directory and a process.
func setup(t *testing.T) (storePath string, fileID string) {
	storePath = filepath.Join(t.TempDir(), "example.forensicstore")
	store, err := forensicstore.New(storePath)
	require.NoError(t, err)

	storeFile, w, err := store.StoreFile("C/Windows/System32/drivers/etc/hosts")
	require.NoError(t, err)
	_, err = w.Write([]byte(hostsContent))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	file := forensicstore.NewFile()
	file.Artifact = "WindowsHostsFile"
	file.Name = "hosts"
	file.ExportPath = storeFile
	file.Size = float64(len(hostsContent))
	file.Origin = map[string]interface{}{"path": `C:\Windows\System32\drivers\etc\hosts`}
	fileID, err = store.InsertStruct(file)
	require.NoError(t, err)

	directory := forensicstore.NewDirectory()
	directory.Artifact = "WindowsSystemDirectory"
	directory.Path = `C:\Windows\System32`
	_, err = store.InsertStruct(directory)
	require.NoError(t, err)

	stdoutPath, w, err := store.StoreFile("IPTablesRules/stdout")
	require.NoError(t, err)
	_, err = w.Write([]byte("Chain INPUT (policy ACCEPT)"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	process := forensicstore.NewProcess()
	process.Artifact = "IPTablesRules"
	process.Name = "iptables"
	process.CommandLine = "/sbin/iptables -L -n -v"
	process.CreatedTime = "2016-01-20T14:11:25.550Z"
	process.StdoutPath = stdoutPath
	_, err = store.InsertStruct(process)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	return storePath, fileID
}

func execute(t *testing.T, command *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	command.SetOut(out)
	command.SetErr(&bytes.Buffer{})
	command.SetArgs(args)
	err := command.Execute()
	return out.String(), err
}

func Test_allCommand(t *testing.T) {
	storePath, _ := setup(t)

	out, err := execute(t, Element(), "all", storePath)
	require.NoError(t, err)

	var elements []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &elements))
	assert.Len(t, elements, 3)
}

func Test_getCommand(t *testing.T) {
	storePath, fileID := setup(t)

	out, err := execute(t, Element(), "get", fileID, storePath)
	require.NoError(t, err)
	assert.Equal(t, "hosts", gjson.Get(out, "name").String())
	assert.Equal(t, "C/Windows/System32/drivers/etc/hosts", gjson.Get(out, "export_path").String())

	_, err = execute(t, Element(), "get", "file--00000000-0000-0000-0000-000000000000", storePath)
	assert.ErrorIs(t, err, forensicstore.ErrElementNotExists)
}

func Test_selectCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"type", []string{"directory"}, 1},
		{"field", []string{"process", "name=iptables"}, 1},
		{"no match", []string{"process", "name=bash"}, 0},
		{"unknown type", []string{"foo"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storePath, _ := setup(t)
			args := append(append([]string{"select"}, tt.args...), storePath)
			out, err := execute(t, Element(), args...)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.want), gjson.Get(out, "#").Int())
		})
	}
}

func Test_insertCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		checks  map[string]string
		wantErr bool
	}{
		{"json", []string{`{"type": "foo", "name": "bar"}`}, map[string]string{"type": "foo", "name": "bar"}, false},
		{"fields", []string{"type=directory", "path=/tmp", "errors.0=denied"}, map[string]string{"type": "directory", "path": "/tmp", "errors.0": "denied"}, false},
		{"invalid field", []string{"type"}, nil, true},
		{"no type", []string{"name=bar"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storePath, _ := setup(t)
			args := append(append([]string{"insert"}, tt.args...), storePath)
			out, err := execute(t, Element(), args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			store, err := forensicstore.Open(storePath)
			require.NoError(t, err)
			defer store.Close()
			element, err := store.Get(string(bytes.TrimSpace([]byte(out))))
			require.NoError(t, err)
			for field, want := range tt.checks {
				assert.Equal(t, want, gjson.GetBytes(element, field).String(), field)
			}
		})
	}
}

func Test_searchCommand(t *testing.T) {
	storePath, _ := setup(t)

	out, err := execute(t, Element(), "search", "iptables", storePath)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.Get(out, "#").Int())
}

func TestValidate(t *testing.T) {
	storePath, _ := setup(t)

	_, err := execute(t, Validate(), storePath)
	require.NoError(t, err)

	store, err := forensicstore.Open(storePath)
	require.NoError(t, err)
	_, w, err := store.StoreFile("extra.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, store.Close())

	out, err := execute(t, Validate(), storePath)
	assert.Error(t, err)
	assert.Contains(t, out, "additional files: ('/extra.txt')")

	_, err = execute(t, Validate(), "--no-fail", storePath)
	assert.NoError(t, err)
}
