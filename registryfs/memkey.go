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

package registryfs

import (
	"strings"
)

// MemKey is an in memory registry key used for offline hives and tests.
type MemKey struct {
	Name    string
	SubKeys []*MemKey
	Values  []MemValue

	// Closed counts how often the key was closed.
	Closed int
}

// MemValue is a value of a MemKey.
type MemValue struct {
	Name string
	Type uint32
	Data interface{}
}

var _ Key = &MemKey{}

// Close marks the key as closed.
func (k *MemKey) Close() error {
	k.Closed++
	return nil
}

// SubKeyNames returns the names of all subkeys.
func (k *MemKey) SubKeyNames() ([]string, error) {
	names := make([]string, 0, len(k.SubKeys))
	for _, sub := range k.SubKeys {
		names = append(names, sub.Name)
	}
	return names, nil
}

// OpenSubKey finds a subkey ignoring case.
func (k *MemKey) OpenSubKey(name string) (Key, error) {
	for _, sub := range k.SubKeys {
		if strings.EqualFold(sub.Name, name) {
			return sub, nil
		}
	}
	return nil, ErrNotExist
}

// ValueNames returns the names of all values.
func (k *MemKey) ValueNames() ([]string, error) {
	names := make([]string, 0, len(k.Values))
	for _, v := range k.Values {
		names = append(names, v.Name)
	}
	return names, nil
}

// Value finds a value ignoring case.
func (k *MemKey) Value(name string) (interface{}, uint32, error) {
	for _, v := range k.Values {
		if strings.EqualFold(v.Name, name) {
			return v.Data, v.Type, nil
		}
	}
	return nil, 0, ErrNotExist
}

// MemHives serves a set of in memory hives by canonical name.
type MemHives map[string]*MemKey

// Open implements HiveOpener.
func (h MemHives) Open(hive string) (Key, error) {
	if key, ok := h[CanonicalHive(hive)]; ok {
		return key, nil
	}
	return nil, ErrUnknownHive
}
