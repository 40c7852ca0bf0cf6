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
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_typeMap(t *testing.T) {
	rm := newTypeMap()
	assert.False(t, rm.changed)

	rm.add("file", "name")
	assert.True(t, rm.changed)

	rm.changed = false
	rm.addAll("file", map[string]interface{}{"name": "a"})
	assert.False(t, rm.changed)

	rm.addAll("file", map[string]interface{}{"name": "a", "size": 1})
	assert.True(t, rm.changed)

	all := rm.all()
	assert.Equal(t, map[string]map[string]bool{"file": {"name": true, "size": true}}, all)

	// all returns a copy
	all["file"]["other"] = true
	assert.Len(t, rm.all()["file"], 2)
}
