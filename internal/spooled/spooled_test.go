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

package spooled

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemporaryFile(t *testing.T) {
	tests := []struct {
		name           string
		writes         [][]byte
		wantRolledOver bool
	}{
		{"empty", nil, false},
		{"small write", [][]byte{[]byte("abc")}, false},
		{"exact limit", [][]byte{bytes.Repeat([]byte("a"), 10)}, false},
		{"large write", [][]byte{bytes.Repeat([]byte("abc"), 10)}, true},
		{"double write", [][]byte{[]byte("abcdef"), []byte("ghijkl")}, true},
		{"write after rollover", [][]byte{bytes.Repeat([]byte("x"), 11), []byte("y")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			f, teardown := New(fs, "/tmp", 10)

			var want []byte
			for _, p := range tt.writes {
				n, err := f.Write(p)
				require.NoError(t, err)
				assert.Equal(t, len(p), n)
				want = append(want, p...)
			}
			assert.Equal(t, tt.wantRolledOver, f.RolledOver())
			assert.EqualValues(t, len(want), f.Size())

			// small reads must continue where the last one stopped
			var got []byte
			buf := make([]byte, 4)
			for {
				n, err := f.Read(buf)
				got = append(got, buf[:n]...)
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
			}
			assert.Equal(t, string(want), string(got))

			_, err := f.Write([]byte("late"))
			assert.ErrorIs(t, err, ErrWriteAfterRead)

			require.NoError(t, teardown())
			infos, _ := afero.ReadDir(fs, "/tmp")
			assert.Empty(t, infos)
		})
	}
}
