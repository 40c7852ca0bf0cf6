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

package vfs

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type shortReaderAt struct {
	data  []byte
	limit int
}

func (r *shortReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(r.limit) {
		return 0, nil
	}
	n := copy(p, r.data[off:r.limit])
	return n, nil
}

type failingReaderAt struct{}

func (failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("device error")
}

func TestSectionChunks(t *testing.T) {
	data := bytes.Repeat([]byte("x"), ChunkSize+10)

	tests := []struct {
		name       string
		reader     *shortReaderAt
		size       int64
		wantChunks []int
	}{
		{"two chunks", &shortReaderAt{data, len(data)}, int64(len(data)), []int{ChunkSize, 10}},
		{"bounded by size", &shortReaderAt{data, len(data)}, 5, []int{5}},
		{"short read stops", &shortReaderAt{data, 7}, int64(len(data)), []int{7}},
		{"empty", &shortReaderAt{data, len(data)}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for chunk, err := range SectionChunks(tt.reader, tt.size) {
				assert.NoError(t, err)
				got = append(got, len(chunk))
			}
			assert.Equal(t, tt.wantChunks, got)
		})
	}
}

func TestSectionChunks_error(t *testing.T) {
	var gotErr error
	for _, err := range SectionChunks(failingReaderAt{}, 10) {
		gotErr = err
	}
	assert.EqualError(t, gotErr, "device error")
}

func TestStreamChunks(t *testing.T) {
	data := bytes.Repeat([]byte("y"), ChunkSize*2+1)
	var got []int
	for chunk, err := range StreamChunks(bytes.NewReader(data)) {
		assert.NoError(t, err)
		got = append(got, len(chunk))
	}
	assert.Equal(t, []int{ChunkSize, ChunkSize, 1}, got)
}
