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

// Package ext reads ext2, ext3 and ext4 volumes from a raw device.
//
// Only what directory traversal and reading need is parsed: the superblock,
// group descriptors, inodes, linear directory blocks, extent trees and the
// classic block map. Directory slack space is scanned for deleted entries
// which are reported with an unallocated name.
package ext

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactcollector/rawfs"
)

const (
	superblockOffset = 1024
	superMagic       = 0xEF53
	rootInode        = 2

	incompatFiletype = 0x2
	incompat64Bit    = 0x80

	flagExtents    = 0x80000
	flagInlineData = 0x10000000

	modeTypeMask  = 0xF000
	modeDirectory = 0x4000
	modeRegular   = 0x8000
	modeSymlink   = 0xA000

	iBlockOffset = 0x28
	iBlockSize   = 60
)

// ErrNotExt is returned for devices without an ext superblock.
var ErrNotExt = errors.New("not an ext filesystem")

// Volume is a parsed ext volume.
type Volume struct {
	r      io.ReaderAt
	closer io.Closer

	blockSize      int64
	inodesCount    uint32
	inodesPerGroup uint32
	inodeSize      int64
	descSize       int64
	gdtOffset      int64
	filetype       bool
	is64Bit        bool
}

var _ rawfs.Volume = &Volume{}

// Open opens the device and parses its superblock.
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

// NewVolume parses the superblock of the volume in r.
func NewVolume(r io.ReaderAt) (*Volume, error) {
	sb := make([]byte, 1024)
	if _, err := r.ReadAt(sb, superblockOffset); err != nil {
		return nil, errors.Wrap(err, "could not read superblock")
	}
	if binary.LittleEndian.Uint16(sb[0x38:]) != superMagic {
		return nil, ErrNotExt
	}

	v := &Volume{r: r}
	v.inodesCount = binary.LittleEndian.Uint32(sb[0x00:])
	firstDataBlock := int64(binary.LittleEndian.Uint32(sb[0x14:]))
	logBlockSize := binary.LittleEndian.Uint32(sb[0x18:])
	if logBlockSize > 6 {
		return nil, fmt.Errorf("invalid block size exponent %d", logBlockSize)
	}
	v.blockSize = 1024 << logBlockSize
	v.inodesPerGroup = binary.LittleEndian.Uint32(sb[0x28:])
	if v.inodesPerGroup == 0 {
		return nil, errors.New("no inodes per group")
	}

	v.inodeSize = 128
	if binary.LittleEndian.Uint32(sb[0x4C:]) > 0 {
		v.inodeSize = int64(binary.LittleEndian.Uint16(sb[0x58:]))
	}

	incompat := binary.LittleEndian.Uint32(sb[0x60:])
	v.filetype = incompat&incompatFiletype != 0
	v.is64Bit = incompat&incompat64Bit != 0
	v.descSize = 32
	if v.is64Bit {
		if ds := int64(binary.LittleEndian.Uint16(sb[0xFE:])); ds >= 64 {
			v.descSize = ds
		}
	}
	v.gdtOffset = (firstDataBlock + 1) * v.blockSize
	return v, nil
}

// FoldCase is false, ext names are case sensitive.
func (v *Volume) FoldCase() bool { return false }

// Close closes the device if the volume owns it.
func (v *Volume) Close() error {
	if v.closer != nil {
		return v.closer.Close()
	}
	return nil
}

// Root returns the root directory.
func (v *Volume) Root() (rawfs.Entry, error) {
	e := &Entry{v: v, name: "", ino: rootInode, nameAllocated: true, typ: rawfs.TypeDirectory}
	if _, err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

// List parses all directory entries of dir, including deleted entries found
// in slack space.
func (v *Volume) List(dir rawfs.Entry) ([]rawfs.Entry, error) {
	d, ok := dir.(*Entry)
	if !ok {
		return nil, errors.New("not an ext entry")
	}
	in, err := d.load()
	if err != nil {
		return nil, err
	}
	if in.mode&modeTypeMask != modeDirectory {
		return nil, fmt.Errorf("inode %d is not a directory", d.ino)
	}

	if in.flags&flagInlineData != 0 {
		end := in.size
		if end > iBlockSize {
			end = iBlockSize
		}
		if end <= 4 {
			return nil, nil
		}
		return v.parseDirBlock(in.block[4:end])
	}

	var entries []rawfs.Entry
	for off := int64(0); off < in.size; off += v.blockSize {
		buf := make([]byte, v.blockSize)
		n, err := d.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		blockEntries, err := v.parseDirBlock(buf[:n])
		if err != nil {
			return nil, err
		}
		entries = append(entries, blockEntries...)
	}
	return entries, nil
}

type dirent struct {
	ino      uint32
	recLen   int
	nameLen  int
	fileType uint8
	name     string
}

func (v *Volume) readDirent(b []byte) (dirent, bool) {
	if len(b) < 8 {
		return dirent{}, false
	}
	d := dirent{
		ino:    binary.LittleEndian.Uint32(b[0:]),
		recLen: int(binary.LittleEndian.Uint16(b[4:])),
	}
	if v.filetype {
		d.nameLen = int(b[6])
		d.fileType = b[7]
	} else {
		d.nameLen = int(binary.LittleEndian.Uint16(b[6:]))
	}
	if d.nameLen == 0 || 8+d.nameLen > len(b) {
		return d, false
	}
	d.name = string(b[8 : 8+d.nameLen])
	return d, true
}

func idealRecLen(nameLen int) int {
	return (8 + nameLen + 3) &^ 3
}

func (v *Volume) parseDirBlock(b []byte) ([]rawfs.Entry, error) {
	var entries []rawfs.Entry
	pos := 0
	for pos+8 <= len(b) {
		d, ok := v.readDirent(b[pos:])
		if d.recLen < 8 || pos+d.recLen > len(b) {
			break
		}
		if ok {
			entries = append(entries, v.newEntry(d, d.ino != 0))
		}

		// deleted entries hide in the unused tail of a record
		used := 8
		if ok {
			used = idealRecLen(d.nameLen)
		}
		entries = append(entries, v.scanSlack(b[pos+used:pos+d.recLen])...)
		pos += d.recLen
	}
	return entries, nil
}

func (v *Volume) scanSlack(b []byte) []rawfs.Entry {
	var entries []rawfs.Entry
	for pos := 0; pos+8 <= len(b); pos += 4 {
		d, ok := v.readDirent(b[pos:])
		if !ok || d.ino == 0 || d.ino > v.inodesCount || d.recLen < idealRecLen(d.nameLen) || !printable(d.name) {
			continue
		}
		entries = append(entries, v.newEntry(d, false))
		pos += idealRecLen(d.nameLen) - 4
	}
	return entries
}

func printable(name string) bool {
	for _, c := range []byte(name) {
		if c < 0x20 || c == '/' {
			return false
		}
	}
	return true
}

func (v *Volume) newEntry(d dirent, nameAllocated bool) *Entry {
	e := &Entry{v: v, name: d.name, ino: d.ino, nameAllocated: nameAllocated, typ: -1}
	if v.filetype {
		switch d.fileType {
		case 1:
			e.typ = rawfs.TypeRegular
		case 2:
			e.typ = rawfs.TypeDirectory
		case 7:
			e.typ = rawfs.TypeSymlink
		default:
			e.typ = rawfs.TypeOther
		}
	}
	return e
}

func (v *Volume) groupDescriptor(group uint32) (inodeBitmap, inodeTable int64, err error) {
	gd := make([]byte, v.descSize)
	if _, err := v.r.ReadAt(gd, v.gdtOffset+int64(group)*v.descSize); err != nil {
		return 0, 0, errors.Wrapf(err, "could not read group descriptor %d", group)
	}
	inodeBitmap = int64(binary.LittleEndian.Uint32(gd[0x04:]))
	inodeTable = int64(binary.LittleEndian.Uint32(gd[0x08:]))
	if v.is64Bit && v.descSize >= 64 {
		inodeBitmap |= int64(binary.LittleEndian.Uint32(gd[0x24:])) << 32
		inodeTable |= int64(binary.LittleEndian.Uint32(gd[0x28:])) << 32
	}
	return inodeBitmap, inodeTable, nil
}

type inode struct {
	mode      uint16
	size      int64
	flags     uint32
	block     []byte
	allocated bool
}

func (v *Volume) readInode(ino uint32) (*inode, error) {
	if ino == 0 || ino > v.inodesCount {
		return nil, fmt.Errorf("invalid inode %d", ino)
	}
	group := (ino - 1) / v.inodesPerGroup
	index := int64((ino - 1) % v.inodesPerGroup)

	bitmapBlock, tableBlock, err := v.groupDescriptor(group)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 128)
	if _, err := v.r.ReadAt(raw, tableBlock*v.blockSize+index*v.inodeSize); err != nil {
		return nil, errors.Wrapf(err, "could not read inode %d", ino)
	}

	bitmap := make([]byte, 1)
	if _, err := v.r.ReadAt(bitmap, bitmapBlock*v.blockSize+index/8); err != nil {
		return nil, errors.Wrapf(err, "could not read inode bitmap for %d", ino)
	}

	in := &inode{
		mode:      binary.LittleEndian.Uint16(raw[0x00:]),
		flags:     binary.LittleEndian.Uint32(raw[0x20:]),
		block:     raw[iBlockOffset : iBlockOffset+iBlockSize],
		allocated: bitmap[0]&(1<<uint(index%8)) != 0,
	}
	in.size = int64(binary.LittleEndian.Uint32(raw[0x04:])) | int64(binary.LittleEndian.Uint32(raw[0x6C:]))<<32
	return in, nil
}
