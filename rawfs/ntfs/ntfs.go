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

// Package ntfs reads NTFS volumes from a raw device.
package ntfs

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-ntfs/parser"

	"github.com/forensicanalysis/artifactcollector/rawfs"
)

const (
	rootMFTEntry = 5
	dataAttr     = 128
	reparseAttr  = 192
	pageSize     = 1024
	cacheSize    = 10000
)

// Volume is an NTFS volume.
type Volume struct {
	ctx    *parser.NTFSContext
	closer io.Closer
}

var _ rawfs.Volume = &Volume{}

// Open opens the device and parses its boot sector.
func Open(device string) (rawfs.Volume, error) {
	f, err := os.Open(device) // #nosec
	if err != nil {
		return nil, err
	}
	v, err := NewVolume(f)
	if err != nil {
		f.Close() // nolint:errcheck
		return nil, err
	}
	v.closer = f
	return v, nil
}

// NewVolume parses the NTFS volume in r.
func NewVolume(r io.ReaderAt) (v *Volume, err error) {
	// the parser panics on some corrupt boot sectors
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, errors.Errorf("could not parse ntfs: %v", r)
		}
	}()

	reader, err := parser.NewPagedReader(r, pageSize, cacheSize)
	if err != nil {
		return nil, err
	}
	ctx, err := parser.GetNTFSContext(reader, 0)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse ntfs")
	}
	return &Volume{ctx: ctx}, nil
}

// FoldCase is true, NTFS names are case insensitive.
func (v *Volume) FoldCase() bool { return true }

// Close closes the device if the volume owns it.
func (v *Volume) Close() error {
	if v.closer != nil {
		return v.closer.Close()
	}
	return nil
}

// Root returns the root directory.
func (v *Volume) Root() (rawfs.Entry, error) {
	mft, err := v.ctx.GetMFT(rootMFTEntry)
	if err != nil {
		return nil, err
	}
	return &Entry{v: v, name: "", isDir: true, mft: mft}, nil
}

// List returns the entries of the directory index of dir.
func (v *Volume) List(dir rawfs.Entry) ([]rawfs.Entry, error) {
	d, ok := dir.(*Entry)
	if !ok {
		return nil, errors.New("not an ntfs entry")
	}
	mft, err := d.entry()
	if err != nil {
		return nil, err
	}

	var entries []rawfs.Entry
	for _, info := range parser.ListDir(v.ctx, mft) {
		entries = append(entries, &Entry{
			v:     v,
			name:  info.Name,
			isDir: info.IsDir,
			info:  info,
			size:  -1,
		})
	}
	return entries, nil
}

// Entry is a file or directory of an NTFS volume.
type Entry struct {
	v     *Volume
	name  string
	isDir bool
	info  *parser.FileInfo
	size  int64

	mft    *parser.MFT_ENTRY
	reader io.ReaderAt

	reparseKnown bool
	reparse      bool
}

var _ rawfs.Entry = &Entry{}

func (e *Entry) entry() (*parser.MFT_ENTRY, error) {
	if e.mft != nil {
		return e.mft, nil
	}
	idx, _, _, _, err := parser.ParseMFTId(e.info.MFTId)
	if err != nil {
		return nil, err
	}
	e.mft, err = e.v.ctx.GetMFT(idx)
	return e.mft, err
}

func (e *Entry) stream() (io.ReaderAt, error) {
	if e.reader != nil {
		return e.reader, nil
	}
	mft, err := e.entry()
	if err != nil {
		return nil, err
	}

	attrType, attrID := int64(dataAttr), int64(0)
	streamName := ""
	if e.info != nil {
		_, t, id, name, err := parser.ParseMFTId(e.info.MFTId)
		if err == nil && t != 0 {
			attrType, attrID, streamName = t, id, name
		}
	}

	reader, err := parser.OpenStream(e.v.ctx, mft, uint64(attrType), uint16(attrID), streamName)
	if err != nil {
		return nil, err
	}
	if e.size < 0 {
		e.size = 0
		if ranges := reader.Ranges(); len(ranges) > 0 {
			last := ranges[len(ranges)-1]
			e.size = last.Offset + last.Length
		}
	}
	e.reader = reader
	return reader, nil
}

// Name returns the long file name.
func (e *Entry) Name() string { return e.name }

// Type is a directory or a regular file. Reparse points, i.e. symbolic
// links and junctions, are reported as symlinks.
func (e *Entry) Type() rawfs.EntryType {
	switch {
	case e.reparsePoint():
		return rawfs.TypeSymlink
	case e.isDir:
		return rawfs.TypeDirectory
	}
	return rawfs.TypeRegular
}

// reparsePoint reports whether the MFT entry has a $REPARSE_POINT attribute.
func (e *Entry) reparsePoint() bool {
	if e.reparseKnown {
		return e.reparse
	}
	e.reparseKnown = true
	if e.mft == nil && e.info == nil {
		return false
	}
	mft, err := e.entry()
	if err != nil {
		return false
	}
	for _, attr := range mft.EnumerateAttributes(e.v.ctx) {
		if attr.Type().Value == reparseAttr {
			e.reparse = true
			break
		}
	}
	return e.reparse
}

// Size returns the length of the data stream.
func (e *Entry) Size() int64 {
	if e.isDir {
		return 0
	}
	if e.size >= 0 {
		return e.size
	}
	if _, err := e.stream(); err != nil {
		if e.info != nil {
			return e.info.Size
		}
		return 0
	}
	return e.size
}

// NameAllocated is true, index entries are live.
func (e *Entry) NameAllocated() bool { return true }

// MetaAllocated reports the in use flag of the MFT entry.
func (e *Entry) MetaAllocated() bool {
	mft, err := e.entry()
	if err != nil {
		return false
	}
	return mft.Flags().IsSet("ALLOCATED")
}

// ReadAt reads from the data stream.
func (e *Entry) ReadAt(p []byte, off int64) (int, error) {
	reader, err := e.stream()
	if err != nil {
		return 0, err
	}
	return reader.ReadAt(p, off)
}
