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

// Package registryfs exposes Windows registry hives as a virtual filesystem
// and collects registry keys and values.
//
// Every key is a node. Keys with subkeys are directories and every key is a
// file, so a pattern can end on a key that has subkeys.
package registryfs

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownHive is returned for hive names that are not predefined keys.
	ErrUnknownHive = errors.New("unknown hive")
	// ErrNotExist is returned for missing keys and values.
	ErrNotExist = errors.New("does not exist")
	// ErrUnsupported is returned where no registry is available.
	ErrUnsupported = errors.New("registry not supported on this platform")
)

// Registry value types.
const (
	RegNone                     = 0
	RegSz                       = 1
	RegExpandSz                 = 2
	RegBinary                   = 3
	RegDword                    = 4
	RegDwordBigEndian           = 5
	RegLink                     = 6
	RegMultiSz                  = 7
	RegResourceList             = 8
	RegFullResourceDescriptor   = 9
	RegResourceRequirementsList = 10
	RegQword                    = 11
)

var typeNames = map[uint32]string{
	RegNone:                     "REG_NONE",
	RegSz:                       "REG_SZ",
	RegExpandSz:                 "REG_EXPAND_SZ",
	RegBinary:                   "REG_BINARY",
	RegDword:                    "REG_DWORD",
	RegDwordBigEndian:           "REG_DWORD_BIG_ENDIAN",
	RegLink:                     "REG_LINK",
	RegMultiSz:                  "REG_MULTI_SZ",
	RegResourceList:             "REG_RESOURCE_LIST",
	RegFullResourceDescriptor:   "REG_FULL_RESOURCE_DESCRIPTOR",
	RegResourceRequirementsList: "REG_RESOURCE_REQUIREMENTS_LIST",
	RegQword:                    "REG_QWORD",
}

// TypeName returns the name of a registry value type.
func TypeName(t uint32) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("REG_UNKNOWN_%d", t)
}

// Key is an open registry key.
type Key interface {
	io.Closer
	SubKeyNames() ([]string, error)
	// OpenSubKey opens a direct subkey. Missing keys return ErrNotExist.
	OpenSubKey(name string) (Key, error)
	ValueNames() ([]string, error)
	// Value returns the raw value and its type. Missing values return ErrNotExist.
	Value(name string) (interface{}, uint32, error)
}

// HiveOpener opens the root key of a hive like HKEY_LOCAL_MACHINE.
type HiveOpener func(hive string) (Key, error)

var hiveAliases = map[string]string{
	"HKLM": "HKEY_LOCAL_MACHINE",
	"HKCU": "HKEY_CURRENT_USER",
	"HKU":  "HKEY_USERS",
	"HKCR": "HKEY_CLASSES_ROOT",
	"HKCC": "HKEY_CURRENT_CONFIG",
}

// CanonicalHive returns the full upper case name of a hive.
func CanonicalHive(hive string) string {
	hive = strings.ToUpper(hive)
	if full, ok := hiveAliases[hive]; ok {
		return full
	}
	return hive
}

// SplitKey splits HKEY_LOCAL_MACHINE\Software\Vendor into the hive and a
// slash separated key path.
func SplitKey(key string) (hive, keyPath string) {
	key = strings.Trim(strings.ReplaceAll(key, "/", "\\"), "\\")
	parts := strings.SplitN(key, "\\", 2)
	hive = CanonicalHive(parts[0])
	keyPath = "/"
	if len(parts) > 1 {
		keyPath = "/" + strings.Trim(strings.ReplaceAll(parts[1], "\\", "/"), "/")
	}
	return hive, keyPath
}

// Normalize converts a raw value into JSON representable data. Binary and
// unknown data become display strings.
func Normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool, []string:
		return v
	case uint32:
		return uint64(v)
	case uint64, int64, int, float64:
		return v
	case []byte:
		return fmt.Sprintf("% x", v)
	default:
		return fmt.Sprint(v)
	}
}
