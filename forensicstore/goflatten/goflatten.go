// Copyright (c) 2019 Nguyễn Quốc Đính
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
// Author(s): Nguyễn Quốc Đính, Jonas Plum
//
// This code was adapted from
// https://github.com/nqd/flat/blob/master/flat.go

// Package goflatten converts nested elements into maps with dotted keys
// like origin.path and back.
package goflatten

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/imdario/mergo"
)

// Delimiter separates the segments of a flattened key.
const Delimiter = "."

// Flatten returns a map one level deep. List items get their index as
// key segment, nil values and empty containers are dropped.
func Flatten(nested map[string]interface{}) (map[string]interface{}, error) {
	flat := map[string]interface{}{}
	return flat, flatten(flat, "", nested)
}

func flatten(flat map[string]interface{}, prefix string, nested interface{}) error {
	if nested == nil {
		return nil
	}

	join := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + Delimiter + key
	}

	value := reflect.ValueOf(nested)
	switch value.Kind() {
	case reflect.Map:
		for _, k := range value.MapKeys() {
			key := fmt.Sprint(k.Interface())
			if err := flatten(flat, join(key), value.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if value.Kind() == reflect.Slice && value.Type().Elem().Kind() == reflect.Uint8 {
			flat[prefix] = nested
			return nil
		}
		for i := 0; i < value.Len(); i++ {
			if err := flatten(flat, join(strconv.Itoa(i)), value.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Errorf("cannot flatten %s at %q", value.Kind(), prefix)
	default:
		flat[prefix] = nested
	}
	return nil
}

// Unflatten nests a flat map again. Nested maps whose keys are exactly
// 0..n-1 become lists.
func Unflatten(flat map[string]interface{}) (map[string]interface{}, error) {
	nested := map[string]interface{}{}
	for key, value := range flat {
		if err := mergo.Merge(&nested, nest(key, value)); err != nil {
			return nil, err
		}
	}
	for k, child := range nested {
		nested[k] = toLists(child)
	}
	return nested, nil
}

func nest(key string, value interface{}) map[string]interface{} {
	keys := strings.Split(key, Delimiter)
	n := value
	for i := len(keys) - 1; i > 0; i-- {
		n = map[string]interface{}{keys[i]: n}
	}
	return map[string]interface{}{keys[0]: n}
}

func toLists(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = toLists(child)
	}
	if len(m) == 0 {
		return m
	}

	list := make([]interface{}, len(m))
	for k, child := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return m
		}
		list[i] = child
	}
	return list
}
