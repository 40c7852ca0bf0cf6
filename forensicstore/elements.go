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
	"github.com/google/uuid"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
)

// JSONElement is a single entry in the store.
type JSONElement []byte

// Element is a decoded entry.
type Element map[string]interface{}

// File implements a STIX 2.1 File Object.
type File struct {
	ID         string
	Artifact   string
	Type       string
	Hashes     map[string]interface{}
	Size       float64
	Name       string
	Origin     map[string]interface{}
	ExportPath string
	Errors     []interface{}
}

// NewFile creates a new STIX 2.1 File Object.
func NewFile() *File {
	return &File{ID: "file--" + uuid.New().String(), Type: "file"}
}

// AddError records err on the file.
func (i *File) AddError(err string) *File {
	logging.Warnf("%s", err)
	i.Errors = append(i.Errors, err)
	return i
}

// Directory implements a STIX 2.1 Directory Object.
type Directory struct {
	ID       string
	Artifact string
	Type     string
	Path     string
	Errors   []interface{}
}

// NewDirectory creates a new STIX 2.1 Directory Object.
func NewDirectory() *Directory {
	return &Directory{ID: "directory--" + uuid.New().String(), Type: "directory"}
}

// AddError records err on the directory.
func (i *Directory) AddError(err string) *Directory {
	logging.Warnf("%s", err)
	i.Errors = append(i.Errors, err)
	return i
}

// RegistryValue implements a STIX 2.1 Windows Registry Value Type.
type RegistryValue struct {
	Name     string
	Data     string
	DataType string
}

// RegistryKey implements a STIX 2.1 Windows Registry Key Object.
type RegistryKey struct {
	ID       string
	Artifact string
	Type     string
	Key      string
	Values   []RegistryValue
	Errors   []interface{}
}

// NewRegistryKey creates a new STIX 2.1 Windows Registry Key Object.
func NewRegistryKey() *RegistryKey {
	return &RegistryKey{ID: "windows-registry-key--" + uuid.New().String(), Type: "windows-registry-key"}
}

// AddError records err on the key.
func (i *RegistryKey) AddError(err string) *RegistryKey {
	logging.Warnf("%s", err)
	i.Errors = append(i.Errors, err)
	return i
}

// Process implements a STIX 2.1 Process Object extended by the captured
// output of the process.
type Process struct {
	ID          string
	Artifact    string
	Type        string
	Name        string
	CreatedTime string
	Cwd         string
	Arguments   []interface{}
	CommandLine string
	StdoutPath  string
	Errors      []interface{}
}

// NewProcess creates a new STIX 2.1 Process Object.
func NewProcess() *Process {
	return &Process{ID: "process--" + uuid.New().String(), Type: "process"}
}

// AddError records err on the process.
func (i *Process) AddError(err string) *Process {
	logging.Warnf("%s", err)
	i.Errors = append(i.Errors, err)
	return i
}
