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

// Package artifacts decodes ForensicArtifacts definition files and selects
// the sources to collect on a host.
package artifacts

import (
	"io"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Source types.
const (
	TypeArtifactGroup = "ARTIFACT_GROUP"
	TypeCommand       = "COMMAND"
	TypeDirectory     = "DIRECTORY"
	TypeFile          = "FILE"
	TypeFileInfo      = "FILE_INFO"
	TypePath          = "PATH"
	TypeRegistryKey   = "REGISTRY_KEY"
	TypeRegistryValue = "REGISTRY_VALUE"
	TypeWMI           = "WMI"
)

// KeyValuePair names a registry value.
type KeyValuePair struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Attributes holds the type specific fields of a source.
type Attributes struct {
	Paths         []string       `yaml:"paths,omitempty"`
	Separator     string         `yaml:"separator,omitempty"`
	Keys          []string       `yaml:"keys,omitempty"`
	KeyValuePairs []KeyValuePair `yaml:"key_value_pairs,omitempty"`
	Cmd           string         `yaml:"cmd,omitempty"`
	Args          []string       `yaml:"args,omitempty"`
	Names         []string       `yaml:"names,omitempty"`
	Query         string         `yaml:"query,omitempty"`
	BaseObject    string         `yaml:"base_object,omitempty"`
}

// Source describes where the data of an artifact can be found.
type Source struct {
	Type        string     `yaml:"type"`
	Attributes  Attributes `yaml:"attributes,omitempty"`
	SupportedOS []string   `yaml:"supported_os,omitempty"`
}

// Definition is a single forensic artifact.
type Definition struct {
	Name        string   `yaml:"name"`
	Doc         string   `yaml:"doc,omitempty"`
	Sources     []Source `yaml:"sources"`
	SupportedOS []string `yaml:"supported_os,omitempty"`
	Labels      []string `yaml:"labels,omitempty"`
	URLs        []string `yaml:"urls,omitempty"`
}

// Decode reads all YAML documents from r.
func Decode(r io.Reader) ([]Definition, error) {
	var definitions []Definition
	decoder := yaml.NewDecoder(r)
	for {
		var d Definition
		err := decoder.Decode(&d)
		if err == io.EOF {
			return definitions, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "could not decode artifact definition")
		}
		if d.Name == "" {
			continue
		}
		definitions = append(definitions, d)
	}
}

// DecodeFile reads the definitions in the file name.
func DecodeFile(fs afero.Fs, name string) ([]Definition, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	definitions, err := Decode(f)
	return definitions, errors.Wrap(err, name)
}

// LoadDirectory reads all .yaml and .yml files in dir.
func LoadDirectory(fs afero.Fs, dir string) ([]Definition, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", dir)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var definitions []Definition
	for _, info := range infos {
		ext := strings.ToLower(path.Ext(info.Name()))
		if info.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		d, err := DecodeFile(fs, path.Join(dir, info.Name()))
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, d...)
	}
	return definitions, nil
}
