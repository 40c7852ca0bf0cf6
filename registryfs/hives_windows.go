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

//go:build windows

package registryfs

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows/registry"
)

// access always reads the 64-bit view, also from 32-bit builds.
const access = registry.QUERY_VALUE | registry.ENUMERATE_SUB_KEYS | registry.WOW64_64KEY

var predefined = map[string]registry.Key{
	"HKEY_CLASSES_ROOT":   registry.CLASSES_ROOT,
	"HKEY_CURRENT_USER":   registry.CURRENT_USER,
	"HKEY_LOCAL_MACHINE":  registry.LOCAL_MACHINE,
	"HKEY_USERS":          registry.USERS,
	"HKEY_CURRENT_CONFIG": registry.CURRENT_CONFIG,
}

// OpenHive opens a hive of the live registry.
func OpenHive(hive string) (Key, error) {
	root, ok := predefined[CanonicalHive(hive)]
	if !ok {
		return nil, ErrUnknownHive
	}
	k, err := registry.OpenKey(root, "", access)
	if err != nil {
		return nil, err
	}
	return &liveKey{k: k}, nil
}

type liveKey struct {
	k registry.Key
}

func (l *liveKey) Close() error {
	return l.k.Close()
}

func (l *liveKey) SubKeyNames() ([]string, error) {
	return l.k.ReadSubKeyNames(-1)
}

func (l *liveKey) OpenSubKey(name string) (Key, error) {
	k, err := registry.OpenKey(l.k, name, access)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return &liveKey{k: k}, nil
}

func (l *liveKey) ValueNames() ([]string, error) {
	return l.k.ReadValueNames(-1)
}

func (l *liveKey) Value(name string) (interface{}, uint32, error) {
	size, valueType, err := l.k.GetValue(name, nil)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, 0, ErrNotExist
		}
		return nil, 0, err
	}

	switch valueType {
	case registry.SZ, registry.EXPAND_SZ:
		s, _, err := l.k.GetStringValue(name)
		return s, valueType, err
	case registry.DWORD, registry.QWORD:
		i, _, err := l.k.GetIntegerValue(name)
		return i, valueType, err
	case registry.MULTI_SZ:
		s, _, err := l.k.GetStringsValue(name)
		return s, valueType, err
	default:
		buf := make([]byte, size)
		n, _, err := l.k.GetValue(name, buf)
		if err != nil {
			return nil, valueType, err
		}
		return buf[:n], valueType, nil
	}
}
