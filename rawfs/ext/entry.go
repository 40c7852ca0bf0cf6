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

package ext

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactcollector/rawfs"
)

const extentMagic = 0xF30A

// Entry is a directory entry together with its lazily loaded inode.
type Entry struct {
	v             *Volume
	name          string
	ino           uint32
	nameAllocated bool
	typ           rawfs.EntryType

	inode  *inode
	extent []run
}

var _ rawfs.Entry = &Entry{}

// run maps length blocks starting at logical to physical. A zero physical
// block is a hole.
type run struct {
	logical  int64
	physical int64
	length   int64
}

// Name returns the name from the directory entry.
func (e *Entry) Name() string { return e.name }

// Inode returns the inode number.
func (e *Entry) Inode() uint32 { return e.ino }

func (e *Entry) load() (*inode, error) {
	if e.inode != nil {
		return e.inode, nil
	}
	in, err := e.v.readInode(e.ino)
	if err != nil {
		return nil, err
	}
	e.inode = in
	return in, nil
}

// Type returns the type from the directory entry or the inode mode.
func (e *Entry) Type() rawfs.EntryType {
	if e.typ >= 0 {
		return e.typ
	}
	in, err := e.load()
	if err != nil {
		return rawfs.TypeOther
	}
	switch in.mode & modeTypeMask {
	case modeDirectory:
		e.typ = rawfs.TypeDirectory
	case modeRegular:
		e.typ = rawfs.TypeRegular
	case modeSymlink:
		e.typ = rawfs.TypeSymlink
	default:
		e.typ = rawfs.TypeOther
	}
	return e.typ
}

// Size returns the size recorded in the inode.
func (e *Entry) Size() int64 {
	in, err := e.load()
	if err != nil {
		return 0
	}
	return in.size
}

// NameAllocated is false for entries recovered from slack space.
func (e *Entry) NameAllocated() bool { return e.nameAllocated && e.ino != 0 }

// MetaAllocated reports the inode bitmap state.
func (e *Entry) MetaAllocated() bool {
	if e.ino == 0 {
		return false
	}
	in, err := e.load()
	if err != nil {
		return false
	}
	return in.allocated
}

// ReadAt reads file content. Holes read as zeros.
func (e *Entry) ReadAt(p []byte, off int64) (int, error) {
	in, err := e.load()
	if err != nil {
		return 0, err
	}
	if off >= in.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if off+want > in.size {
		want = in.size - off
	}

	if in.flags&flagInlineData != 0 {
		n := copy(p[:want], in.block[minInt64(off, iBlockSize):minInt64(in.size, iBlockSize)])
		if int64(n) < want {
			return n, io.ErrUnexpectedEOF
		}
		return n, eofIf(int64(n) < int64(len(p)))
	}

	runs, err := e.runs()
	if err != nil {
		return 0, err
	}

	bs := e.v.blockSize
	read := int64(0)
	for read < want {
		pos := off + read
		logical := pos / bs
		inBlock := pos % bs
		n := minInt64(bs-inBlock, want-read)

		physical := lookupRun(runs, logical)
		dst := p[read : read+n]
		if physical == 0 {
			for i := range dst {
				dst[i] = 0
			}
		} else if _, err := e.v.r.ReadAt(dst, physical*bs+inBlock); err != nil {
			return int(read), err
		}
		read += n
	}
	return int(read), eofIf(read < int64(len(p)))
}

func eofIf(b bool) error {
	if b {
		return io.EOF
	}
	return nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func lookupRun(runs []run, logical int64) int64 {
	i := sort.Search(len(runs), func(i int) bool { return runs[i].logical+runs[i].length > logical })
	if i < len(runs) && runs[i].logical <= logical {
		if runs[i].physical == 0 {
			return 0
		}
		return runs[i].physical + logical - runs[i].logical
	}
	return 0
}

func (e *Entry) runs() ([]run, error) {
	if e.extent != nil {
		return e.extent, nil
	}
	in, err := e.load()
	if err != nil {
		return nil, err
	}

	var runs []run
	if in.flags&flagExtents != 0 {
		runs, err = e.v.extentRuns(in.block, 0)
	} else {
		runs, err = e.v.blockMapRuns(in)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].logical < runs[j].logical })
	if runs == nil {
		runs = []run{}
	}
	e.extent = runs
	return runs, nil
}

func (v *Volume) extentRuns(node []byte, level int) ([]run, error) {
	if level > 5 {
		return nil, errors.New("extent tree too deep")
	}
	if len(node) < 12 || binary.LittleEndian.Uint16(node[0:]) != extentMagic {
		return nil, errors.New("invalid extent header")
	}
	entries := int(binary.LittleEndian.Uint16(node[2:]))
	depth := binary.LittleEndian.Uint16(node[6:])

	var runs []run
	for i := 0; i < entries; i++ {
		off := 12 + i*12
		if off+12 > len(node) {
			break
		}
		rec := node[off : off+12]
		if depth == 0 {
			length := int64(binary.LittleEndian.Uint16(rec[4:]))
			physical := int64(binary.LittleEndian.Uint16(rec[6:]))<<32 | int64(binary.LittleEndian.Uint32(rec[8:]))
			if length > 32768 {
				// uninitialized extents read as zeros
				length -= 32768
				physical = 0
			}
			runs = append(runs, run{
				logical:  int64(binary.LittleEndian.Uint32(rec[0:])),
				physical: physical,
				length:   length,
			})
			continue
		}

		leaf := int64(binary.LittleEndian.Uint16(rec[8:]))<<32 | int64(binary.LittleEndian.Uint32(rec[4:]))
		child := make([]byte, v.blockSize)
		if _, err := v.r.ReadAt(child, leaf*v.blockSize); err != nil {
			return nil, errors.Wrapf(err, "could not read extent block %d", leaf)
		}
		childRuns, err := v.extentRuns(child, level+1)
		if err != nil {
			return nil, err
		}
		runs = append(runs, childRuns...)
	}
	return runs, nil
}

func (v *Volume) blockMapRuns(in *inode) ([]run, error) {
	blocks := (in.size + v.blockSize - 1) / v.blockSize
	var runs []run
	add := func(logical, physical int64) {
		if physical == 0 {
			return
		}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.logical+last.length == logical && last.physical+last.length == physical {
				last.length++
				return
			}
		}
		runs = append(runs, run{logical: logical, physical: physical, length: 1})
	}

	logical := int64(0)
	for i := 0; i < 12 && logical < blocks; i++ {
		add(logical, int64(binary.LittleEndian.Uint32(in.block[i*4:])))
		logical++
	}

	perBlock := v.blockSize / 4
	for level := 1; level <= 3 && logical < blocks; level++ {
		ptr := int64(binary.LittleEndian.Uint32(in.block[(11+level)*4:]))
		span := int64(1)
		for i := 1; i < level; i++ {
			span *= perBlock
		}
		span *= perBlock
		if ptr == 0 {
			logical += span
			continue
		}
		var err error
		logical, err = v.walkIndirect(ptr, level, logical, blocks, add)
		if err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (v *Volume) walkIndirect(ptr int64, level int, logical, blocks int64, add func(int64, int64)) (int64, error) {
	perBlock := v.blockSize / 4
	buf := make([]byte, v.blockSize)
	if _, err := v.r.ReadAt(buf, ptr*v.blockSize); err != nil {
		return logical, fmt.Errorf("could not read indirect block %d: %w", ptr, err)
	}

	span := int64(1)
	for i := 1; i < level; i++ {
		span *= perBlock
	}

	for i := int64(0); i < perBlock && logical < blocks; i++ {
		child := int64(binary.LittleEndian.Uint32(buf[i*4:]))
		if level == 1 {
			add(logical, child)
			logical++
			continue
		}
		if child == 0 {
			logical += span
			continue
		}
		var err error
		logical, err = v.walkIndirect(child, level-1, logical, blocks, add)
		if err != nil {
			return logical, err
		}
	}
	return logical, nil
}
