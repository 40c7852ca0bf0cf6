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

package sqlitefs

import (
	"compress/flate"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactcollector/internal/spooled"
)

// ErrNotImplemented is returned for operations the archive cannot provide,
// like random access into compressed content.
var ErrNotImplemented = errors.New("not implemented")

type item struct {
	fs   *FS
	path string

	// read
	info     os.FileInfo
	blob     io.ReadCloser
	reader   io.ReadCloser
	children []os.FileInfo
	offset   int

	// write
	id       int64
	spool    *spooled.TemporaryFile
	teardown func() error
	writer   *flate.Writer
	size     int64
	closed   bool
}

func newWriteItem(fs *FS, id int64, name string) (*item, error) {
	spool, teardown := spooled.New(fs.spoolFs, fs.spoolDir, fs.memoryLimit)
	writer, err := flate.NewWriter(spool, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	return &item{fs: fs, id: id, path: name, spool: spool, teardown: teardown, writer: writer}, nil
}

func newReadItem(fs *FS, id int64, name string, info os.FileInfo, children []os.FileInfo) (*item, error) {
	i := &item{fs: fs, path: name, info: info, children: children}
	if info.IsDir() {
		return i, nil
	}

	blob, err := fs.cursor.OpenBlob("", "sqlar", "data", id, false)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", name)
	}
	i.blob = blob
	i.reader = flate.NewReader(blob)
	return i, nil
}

func (i *item) Name() string {
	return path.Base(i.path)
}

func (i *item) Read(p []byte) (int, error) {
	if i.reader == nil {
		return 0, io.EOF
	}
	return i.reader.Read(p)
}

func (i *item) ReadAt([]byte, int64) (int, error) {
	return 0, ErrNotImplemented
}

func (i *item) Seek(int64, int) (int64, error) {
	return 0, ErrNotImplemented
}

func (i *item) Readdir(count int) ([]os.FileInfo, error) {
	rest := i.children[i.offset:]
	if count <= 0 {
		i.offset = len(i.children)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if count < len(rest) {
		rest = rest[:count]
	}
	i.offset += len(rest)
	return rest, nil
}

func (i *item) Readdirnames(n int) ([]string, error) {
	infos, err := i.Readdir(n)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, err
}

func (i *item) Stat() (os.FileInfo, error) {
	if i.info == nil {
		return i.fs.Stat(i.path)
	}
	return i.info, nil
}

func (i *item) Write(p []byte) (int, error) {
	if i.writer == nil {
		return 0, ErrNotImplemented
	}
	n, err := i.writer.Write(p)
	i.size += int64(n)
	return n, err
}

func (i *item) WriteAt([]byte, int64) (int, error) {
	return 0, ErrNotImplemented
}

func (i *item) WriteString(s string) (int, error) {
	return i.Write([]byte(s))
}

// Close flushes written content into the data column.
func (i *item) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true

	if i.writer == nil {
		if i.reader == nil {
			return nil
		}
		if err := i.reader.Close(); err != nil {
			return err
		}
		return i.blob.Close()
	}

	defer i.teardown() // nolint:errcheck
	if err := i.writer.Close(); err != nil {
		return err
	}

	stmt := i.fs.cursor.Prep(`UPDATE sqlar SET sz = $sz, data = zeroblob($len) WHERE rowid = $id`)
	stmt.SetInt64("$id", i.id)
	stmt.SetInt64("$len", i.spool.Size())
	stmt.SetInt64("$sz", i.size)
	if err := exec(stmt); err != nil {
		return errors.Wrapf(err, "could not allocate %s", i.path)
	}

	blob, err := i.fs.cursor.OpenBlob("", "sqlar", "data", i.id, true)
	if err != nil {
		return err
	}
	if _, err := io.Copy(blob, i.spool); err != nil {
		blob.Close() // nolint:errcheck
		return errors.Wrapf(err, "could not write %s", i.path)
	}
	return blob.Close()
}

func (i *item) Truncate(int64) error {
	return ErrNotImplemented
}

func (i *item) Sync() error {
	if i.writer != nil {
		return i.writer.Flush()
	}
	return nil
}
