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

package forensicstore

import (
	"crypto/md5" // #nosec
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testSHA256 = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func setup(t *testing.T) *Store {
	store, err := New(filepath.Join(t.TempDir(), "test.forensicstore"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func jsons(e Element) JSONElement {
	b, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	return b
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	url := filepath.Join(dir, "sub", "new.forensicstore")

	store, err := New(url)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = New(url)
	assert.ErrorIs(t, err, ErrStoreExists)

	store, err = Open(url)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(filepath.Join(dir, "missing.forensicstore"))
	assert.ErrorIs(t, err, ErrStoreNotExists)
}

func TestStore_Insert(t *testing.T) {
	foo := Element{"name": "foo", "type": "fo", "int": 0}
	bar := Element{"name": "bar", "type": "ba", "int": 2}
	baz := Element{"name": "baz", "type": "ba", "float": 0.1}
	bat := Element{"name": "bat", "type": "ba", "list": []string{}}
	bau := Element{"name": "bau", "type": "ba", "list": nil}
	withID := Element{"id": "ba--1", "type": "ba"}
	noType := Element{"name": "bar"}
	typeField := Element{"type": "ba", "ba": "x"}
	stixFile := Element{"type": "file", "name": "a.txt"}

	tests := []struct {
		name    string
		element Element
		want    string
		wantErr bool
	}{
		{"Insert First", foo, "fo--", false},
		{"Insert Second", bar, "ba--", false},
		{"Insert Different Columns", baz, "ba--", false},
		{"Insert Empty List", bat, "ba--", false},
		{"Insert Element with nil", bau, "ba--", false},
		{"Insert with id", withID, "ba--", false},
		{"Insert without type", noType, "", true},
		{"Insert type field", typeField, "", true},
		{"Insert schema type without id", stixFile, "file", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setup(t)
			got, err := store.Insert(jsons(tt.element))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got[:4])

			element, err := store.Get(got)
			require.NoError(t, err)
			assert.Equal(t, got, gjson.GetBytes(element, "id").String())
		})
	}
}

func TestStore_InsertStruct(t *testing.T) {
	file := NewFile()
	file.Name = "test.txt"
	file.Artifact = "TestArtifact"
	file.ExportPath = "TestArtifact/test.txt"
	file.Hashes = map[string]interface{}{"MD5": "0356a89e11fcbed1288a0553377541af", "SHA-256": testSHA256}
	file.Origin = map[string]interface{}{"path": "/test.txt"}

	key := NewRegistryKey()
	key.Key = `HKEY_LOCAL_MACHINE\Software`
	key.Values = []RegistryValue{{Name: "a", Data: "1", DataType: "REG_SZ"}}

	tests := []struct {
		name    string
		element interface{}
		checks  map[string]string
		wantErr bool
	}{
		{"file", file, map[string]string{
			"name":           "test.txt",
			"export_path":    "TestArtifact/test.txt",
			"hashes.MD5":     "0356a89e11fcbed1288a0553377541af",
			"hashes.SHA-256": testSHA256,
			"origin.path":    "/test.txt",
		}, false},
		{"registry key", key, map[string]string{
			"key":                `HKEY_LOCAL_MACHINE\Software`,
			"values.0.name":      "a",
			"values.0.data_type": "REG_SZ",
			"type":               "windows-registry-key",
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setup(t)

			id, err := store.InsertStruct(tt.element)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			element, err := store.Get(id)
			require.NoError(t, err)
			for path, want := range tt.checks {
				assert.Equal(t, want, gjson.GetBytes(element, path).String(), path)
			}
			assert.False(t, gjson.GetBytes(element, "errors").Exists())
		})
	}
}

func TestStore_Get_missing(t *testing.T) {
	_, err := setup(t).Get("file--missing")
	assert.ErrorIs(t, err, ErrElementNotExists)
}

func TestStore_Select(t *testing.T) {
	store := setup(t)
	for _, e := range []Element{
		{"type": "file", "name": "a.txt", "artifact": "A", "origin": map[string]interface{}{"path": "/a.txt"}},
		{"type": "file", "name": "b.txt", "artifact": "B"},
		{"type": "process", "name": "echo", "artifact": "A"},
		{"type": "note", "name": "it's", "artifact": "C"},
	} {
		_, err := store.Insert(jsons(e))
		require.NoError(t, err)
	}

	tests := []struct {
		name       string
		conditions []map[string]string
		want       int
	}{
		{"all", nil, 4},
		{"type", []map[string]string{{"type": "file"}}, 2},
		{"and", []map[string]string{{"type": "file", "artifact": "A"}}, 1},
		{"or", []map[string]string{{"type": "process"}, {"artifact": "B"}}, 2},
		{"nested", []map[string]string{{"origin.path": "/a%"}}, 1},
		{"quote", []map[string]string{{"name": "it's"}}, 1},
		{"none", []map[string]string{{"type": "directory"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elements, err := store.Select(tt.conditions)
			require.NoError(t, err)
			assert.Len(t, elements, tt.want)
		})
	}

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_Search(t *testing.T) {
	store := setup(t)
	_, err := store.Insert(jsons(Element{"type": "file", "name": "passwords.txt"}))
	require.NoError(t, err)
	_, err = store.Insert(jsons(Element{"type": "file", "name": "hosts"}))
	require.NoError(t, err)

	elements, err := store.Search(`"passwords.txt"`)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "passwords.txt", gjson.GetBytes(elements[0], "name").String())
}

func TestStore_StoreFile(t *testing.T) {
	store := setup(t)

	tests := []struct {
		name     string
		filePath string
		want     string
	}{
		{"first", "Artifact/hosts.txt", "Artifact/hosts.txt"},
		{"second", "Artifact/hosts.txt", "Artifact/hosts_0.txt"},
		{"third", "Artifact/hosts.txt", "Artifact/hosts_1.txt"},
		{"no extension", `Artifact\hosts`, "Artifact/hosts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storePath, f, err := store.StoreFile(tt.filePath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, storePath)
			_, err = io.WriteString(f, tt.name)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			r, err := store.LoadFile(storePath)
			require.NoError(t, err)
			defer r.Close()
			b, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, tt.name, string(b))
		})
	}
}

func TestStore_Validate(t *testing.T) {
	content := "hello"
	md5sum := fmt.Sprintf("%x", md5.Sum([]byte(content))) // #nosec

	tests := []struct {
		name      string
		size      int
		md5       string
		storeFile bool
		extraFile bool
		wantFlaws int
	}{
		{"valid", len(content), md5sum, true, false, 0},
		{"wrong size", 3, md5sum, true, false, 1},
		{"wrong hash", len(content), "00000000000000000000000000000000", true, false, 1},
		{"missing file", len(content), md5sum, false, false, 1},
		{"additional file", len(content), md5sum, true, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setup(t)
			if tt.storeFile {
				_, f, err := store.StoreFile("A/a.txt")
				require.NoError(t, err)
				_, err = io.WriteString(f, content)
				require.NoError(t, err)
				require.NoError(t, f.Close())
			}
			if tt.extraFile {
				_, f, err := store.StoreFile("B/b.txt")
				require.NoError(t, err)
				require.NoError(t, f.Close())
			}
			_, err := store.Insert(jsons(Element{
				"type":        "file",
				"name":        "a.txt",
				"size":        tt.size,
				"export_path": "A/a.txt",
				"hashes":      map[string]interface{}{"MD5": tt.md5},
			}))
			require.NoError(t, err)

			flaws, err := store.Validate()
			require.NoError(t, err)
			assert.Len(t, flaws, tt.wantFlaws, "%v", flaws)
		})
	}
}

func TestStore_views(t *testing.T) {
	url := filepath.Join(t.TempDir(), "views.forensicstore")
	store, err := New(url)
	require.NoError(t, err)
	_, err = store.Insert(jsons(Element{"type": "file", "name": "a", "hashes": map[string]interface{}{"SHA-256": testSHA256}}))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(url)
	require.NoError(t, err)
	defer store.Close()
	assert.False(t, store.types.changed)
	assert.Equal(t, map[string]bool{"type": true, "name": true, "id": true, "hashes.SHA-256": true}, store.types.all()["file"])

	elements, err := store.rowsFromView("file")
	require.NoError(t, err)
	assert.Equal(t, []string{testSHA256}, elements)
}

func (store *Store) rowsFromView(name string) ([]string, error) {
	stmt, err := store.cursor.Prepare(fmt.Sprintf("SELECT \"hashes.SHA-256\" AS hash FROM \"%s\"", name))
	if err != nil {
		return nil, err
	}
	var hashes []string
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		hashes = append(hashes, stmt.GetText("hash"))
	}
	return hashes, stmt.Finalize()
}

func Test_jsonPath(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"name", `$."name"`},
		{"origin.path", `$."origin"."path"`},
		{"hashes.SHA-256", `$."hashes"."SHA-256"`},
		{"values.0.name", `$."values"[0]."name"`},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonPath(tt.field))
		})
	}
}

func Test_lower(t *testing.T) {
	tests := []struct {
		name string
		f    interface{}
		want interface{}
	}{
		{"Map", map[string]interface{}{"A": "B"}, map[string]interface{}{"a": "B"}},
		{"Camel", map[string]interface{}{"ExportPath": "x", "ID": "y"}, map[string]interface{}{"export_path": "x", "id": "y"}},
		{"List", []interface{}{"A", "B"}, []interface{}{"A", "B"}},
		{"Hash", map[string]interface{}{"MD5": "B", "SHA-256": "C"}, map[string]interface{}{"MD5": "B", "SHA-256": "C"}},
		{"Empty", map[string]interface{}{"A": "", "B": []interface{}{}, "C": nil, "D": 0}, map[string]interface{}{"d": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lower(tt.f); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lower() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_validateSchema(t *testing.T) {
	tests := []struct {
		name      string
		element   Element
		wantFlaws int
	}{
		{"valid", Element{
			"id":     "file--920d7c41-0fef-4cf8-bce2-ead120f6b506",
			"type":   "file",
			"name":   "foo.txt",
			"hashes": map[string]interface{}{"MD5": "0356a89e11fcbed1288a0553377541af"},
		}, 0},
		{"invalid", Element{
			"id":   "file--920d7c41-0fef-4cf8-bce2-ead120f6b506",
			"type": "file",
			"foo":  "foo.txt",
		}, 1},
		{"no type", Element{"name": "foo"}, 1},
		{"unknown type", Element{"type": "foo"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaws, err := validateSchema(jsons(tt.element))
			require.NoError(t, err)
			assert.Len(t, flaws, tt.wantFlaws, "%v", flaws)
		})
	}
}
