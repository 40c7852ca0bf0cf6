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

// Package spooled provides a buffer that moves to a temporary file once it
// grows beyond a size limit.
package spooled

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrWriteAfterRead is returned when writing to a file that is being read.
var ErrWriteAfterRead = errors.New("write after read")

// TemporaryFile keeps up to maxSize bytes in memory.
type TemporaryFile struct {
	fs      afero.Fs
	dir     string
	size    int64
	maxSize int64

	buffer     *bytes.Buffer
	tempFile   afero.File
	rolledOver bool
	reading    bool
}

// New creates a temporary file that rolls over into dir on fs. The returned
// function removes the file.
func New(fs afero.Fs, dir string, maxSize int64) (*TemporaryFile, func() error) {
	t := &TemporaryFile{fs: fs, dir: dir, maxSize: maxSize, buffer: &bytes.Buffer{}}
	return t, t.Close
}

// Read reads from the start of the written data.
func (t *TemporaryFile) Read(p []byte) (n int, err error) {
	if !t.rolledOver {
		t.reading = true
		return t.buffer.Read(p)
	}
	if !t.reading {
		if _, err := t.tempFile.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		t.reading = true
	}
	return t.tempFile.Read(p)
}

func (t *TemporaryFile) Write(p []byte) (n int, err error) {
	if t.reading {
		return 0, ErrWriteAfterRead
	}
	if t.rolledOver {
		n, err = t.tempFile.Write(p)
		t.size += int64(n)
		return n, err
	}

	if t.size+int64(len(p)) > t.maxSize {
		if err := t.Rollover(); err != nil {
			return 0, err
		}
		n, err = t.tempFile.Write(p)
		t.size += int64(n)
		return n, err
	}

	n, err = t.buffer.Write(p)
	t.size += int64(n)
	return n, err
}

// Rollover moves the buffered data into a temporary file.
func (t *TemporaryFile) Rollover() (err error) {
	t.tempFile, err = afero.TempFile(t.fs, t.dir, "spool")
	if err != nil {
		return errors.Wrap(err, "could not create tmp file")
	}
	t.rolledOver = true
	if _, err = io.Copy(t.tempFile, t.buffer); err != nil {
		return errors.Wrap(err, "could not fill tmp file")
	}
	t.buffer.Reset()
	return nil
}

// RolledOver reports whether the data lives in a temporary file.
func (t *TemporaryFile) RolledOver() bool {
	return t.rolledOver
}

// Close removes the temporary file.
func (t *TemporaryFile) Close() error {
	t.buffer.Reset()
	if !t.rolledOver {
		return nil
	}
	t.rolledOver = false
	if err := t.tempFile.Close(); err != nil {
		return err
	}
	return t.fs.Remove(t.tempFile.Name())
}

// Size returns the number of written bytes.
func (t *TemporaryFile) Size() int64 {
	return t.size
}
