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

// Package sqlitefs implements an afero.Fs on top of an SQLite archive table.
// File content is stored deflate compressed in the data column, directories
// are rows without data.
package sqlitefs

import (
	"os"
	"path"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// DefaultMemoryLimit is the size a written file may reach before its
// compressed content is spooled to disk.
const DefaultMemoryLimit = 10 * 1024 * 1024

const table = `CREATE TABLE IF NOT EXISTS sqlar(
  name TEXT PRIMARY KEY,  -- name of the file
  mode INT,               -- access permissions
  mtime INT,              -- last modification time
  sz INT,                 -- original file size
  data BLOB               -- compressed content
);`

// FS is an afero.Fs stored in the sqlar table of an SQLite database.
type FS struct {
	cursor *sqlite.Conn
	owned  bool

	spoolFs     afero.Fs
	spoolDir    string
	memoryLimit int64
}

var _ afero.Fs = &FS{}

// New opens the database at url and creates the sqlar table if needed.
func New(url string) (*FS, error) {
	conn, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}
	fs, err := NewCursor(conn)
	if err != nil {
		conn.Close() // nolint:errcheck
		return nil, err
	}
	fs.owned = true
	return fs, nil
}

// NewCursor uses an existing connection. Close does not close conn.
func NewCursor(conn *sqlite.Conn) (*FS, error) {
	fs := &FS{
		cursor:      conn,
		spoolFs:     afero.NewOsFs(),
		spoolDir:    os.TempDir(),
		memoryLimit: DefaultMemoryLimit,
	}
	if err := exec(conn.Prep(table)); err != nil {
		return nil, errors.Wrap(err, "could not create sqlar table")
	}
	return fs, nil
}

// SetSpool changes where large files are buffered while they are written.
func (fs *FS) SetSpool(spoolFs afero.Fs, dir string, memoryLimit int64) {
	fs.spoolFs = spoolFs
	fs.spoolDir = dir
	fs.memoryLimit = memoryLimit
}

// Chmod changes the stored mode.
func (fs *FS) Chmod(name string, mode os.FileMode) error {
	stmt := fs.cursor.Prep("UPDATE sqlar SET mode = $mode WHERE name = $name")
	stmt.SetText("$name", normalizeFilename(name))
	stmt.SetInt64("$mode", int64(mode))
	return exec(stmt)
}

// Chown is not supported by the archive format.
func (fs *FS) Chown(string, int, int) error {
	return ErrNotImplemented
}

// Chtimes changes the stored modification time.
func (fs *FS) Chtimes(name string, _ time.Time, mtime time.Time) error {
	stmt := fs.cursor.Prep("UPDATE sqlar SET mtime = $mtime WHERE name = $name")
	stmt.SetText("$name", normalizeFilename(name))
	stmt.SetInt64("$mtime", mtime.Unix())
	return exec(stmt)
}

// Create creates or truncates name.
func (fs *FS) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// Mkdir adds a directory row.
func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	stmt := fs.cursor.Prep(`INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, NULL)`)
	stmt.SetText("$name", normalizeFilename(name))
	stmt.SetInt64("$mode", int64(perm|os.ModeDir))
	stmt.SetInt64("$mtime", time.Now().Unix())
	return exec(stmt)
}

// MkdirAll adds a row for every missing parent of p.
func (fs *FS) MkdirAll(p string, perm os.FileMode) error {
	all := "/"
	for _, part := range strings.Split(normalizeFilename(p), "/") {
		if part == "" {
			continue
		}
		all = path.Join(all, part)
		info, err := fs.Stat(all)
		if err == nil {
			if !info.IsDir() {
				return errors.Wrapf(os.ErrExist, "%s is a file", all)
			}
			continue
		}
		if err := fs.Mkdir(all, perm); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the name of the filesystem.
func (fs *FS) Name() string {
	return "SQLiteFS"
}

// Open opens name for reading.
func (fs *FS) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens name for reading or, with os.O_CREATE, for writing.
func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	name = normalizeFilename(name)

	if flag&os.O_CREATE != 0 {
		id, err := fs.createFile(name, perm)
		if err != nil {
			return nil, err
		}
		return newWriteItem(fs, id, name)
	}
	if flag&(os.O_RDWR|os.O_WRONLY) != 0 {
		return nil, ErrNotImplemented
	}

	id, info, err := fs.stat(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}

	var children []os.FileInfo
	if info.IsDir() {
		children, err = fs.children(name)
		if err != nil {
			return nil, err
		}
	}
	return newReadItem(fs, id, name, info, children)
}

func (fs *FS) children(name string) ([]os.FileInfo, error) {
	prefix := strings.TrimRight(name, "/") + "/"
	stmt := fs.cursor.Prep(`SELECT name, mode, mtime, sz, data IS NULL AS dataNull FROM sqlar WHERE name LIKE $name ORDER BY name`)
	stmt.SetText("$name", prefix+"%")

	var children []os.FileInfo
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			stmt.Reset() // nolint:errcheck
			return nil, err
		} else if !hasRow {
			break
		}
		childName := stmt.GetText("name")
		// LIKE is case insensitive and treats _ as a wildcard
		if childName == prefix || !strings.HasPrefix(childName, prefix) || strings.Contains(childName[len(prefix):], "/") {
			continue
		}
		children = append(children, scanInfo(stmt, path.Base(childName)))
	}
	return children, stmt.Reset()
}

func scanInfo(stmt *sqlite.Stmt, name string) *Info {
	return &Info{
		name:  name,
		sz:    stmt.GetInt64("sz"),
		mode:  os.FileMode(stmt.GetInt64("mode")),
		mtime: time.Unix(stmt.GetInt64("mtime"), 0),
		dir:   stmt.GetInt64("dataNull") == 1,
	}
}

func (fs *FS) createFile(name string, perm os.FileMode) (int64, error) {
	if err := fs.MkdirAll(path.Dir(name), 0755); err != nil {
		return 0, err
	}

	stmt := fs.cursor.Prep(`INSERT OR REPLACE INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, zeroblob(0))`)
	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(perm))
	stmt.SetInt64("$mtime", time.Now().Unix())
	if err := exec(stmt); err != nil {
		return 0, errors.Wrapf(err, "failed to create %s", name)
	}
	return fs.cursor.LastInsertRowID(), nil
}

// Remove deletes a single row.
func (fs *FS) Remove(name string) error {
	stmt := fs.cursor.Prep(`DELETE FROM sqlar WHERE name = $name`)
	stmt.SetText("$name", normalizeFilename(name))
	return exec(stmt)
}

// RemoveAll deletes p and everything below it.
func (fs *FS) RemoveAll(p string) error {
	p = normalizeFilename(p)
	stmt := fs.cursor.Prep(`DELETE FROM sqlar WHERE name = $name OR name LIKE $prefix`)
	stmt.SetText("$name", p)
	stmt.SetText("$prefix", strings.TrimRight(p, "/")+"/%")
	return exec(stmt)
}

// Rename moves a single row.
func (fs *FS) Rename(oldname, newname string) error {
	stmt := fs.cursor.Prep("UPDATE sqlar SET name = $newname WHERE name = $oldname")
	stmt.SetText("$oldname", normalizeFilename(oldname))
	stmt.SetText("$newname", normalizeFilename(newname))
	return exec(stmt)
}

// Stat returns the stored metadata of name. The root always exists.
func (fs *FS) Stat(name string) (os.FileInfo, error) {
	_, info, err := fs.stat(normalizeFilename(name))
	if err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return info, nil
}

func (fs *FS) stat(name string) (int64, *Info, error) {
	stmt := fs.cursor.Prep("SELECT rowid, name, mode, mtime, sz, data IS NULL AS dataNull FROM sqlar WHERE name = $name")
	stmt.SetText("$name", name)

	hasRow, err := stmt.Step()
	if err != nil {
		stmt.Reset() // nolint:errcheck
		return 0, nil, err
	}
	if !hasRow {
		if err := stmt.Reset(); err != nil {
			return 0, nil, err
		}
		if name == "/" {
			return 0, &Info{name: "/", mode: os.ModeDir | 0755, dir: true}, nil
		}
		return 0, nil, os.ErrNotExist
	}

	id := stmt.GetInt64("rowid")
	info := scanInfo(stmt, path.Base(stmt.GetText("name")))
	return id, info, stmt.Reset()
}

// Close closes the connection if it was opened by New.
func (fs *FS) Close() error {
	if !fs.owned {
		return nil
	}
	return fs.cursor.Close()
}

// Info describes a row of the sqlar table.
type Info struct {
	sz    int64
	mtime time.Time
	mode  os.FileMode
	dir   bool
	name  string
}

// Name returns the base name.
func (i *Info) Name() string { return i.name }

// Size returns the uncompressed size.
func (i *Info) Size() int64 { return i.sz }

// Mode returns the stored mode.
func (i *Info) Mode() os.FileMode {
	if i.dir {
		return i.mode | os.ModeDir
	}
	return i.mode
}

// ModTime returns the stored modification time.
func (i *Info) ModTime() time.Time { return i.mtime }

// IsDir reports whether the row has no data.
func (i *Info) IsDir() bool { return i.dir }

// Sys returns nil.
func (i *Info) Sys() interface{} { return nil }

func exec(stmt *sqlite.Stmt) error {
	if _, err := stmt.Step(); err != nil {
		stmt.Reset() // nolint:errcheck
		return err
	}
	return stmt.Reset()
}

func normalizeFilename(name string) string {
	if name == "." || name == "" || name == "/" {
		return "/"
	}
	name = strings.ReplaceAll(name, "\\", "/")
	return "/" + strings.Trim(name, "/")
}
