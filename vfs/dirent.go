// Copyright 2026 The CoreVFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"encoding/binary"
)

// direntFixedSize is the size of the dirent64 fixed prefix (ino, off,
// reclen, type) before the NUL-terminated name, .
const direntFixedSize = 8 + 8 + 2 + 1

// Dirent is one directory entry as produced by readdir, corresponding to
// the dirent64 binary record of .
type Dirent struct {
	Ino  uint64
	Off  int64
	Type uint8
	Name string
}

// reclen returns this entry's 8-byte-aligned on-wire record length.
func (d Dirent) reclen() uint16 {
	n := direntFixedSize + len(d.Name) + 1 // +1 for the NUL terminator
	if rem := n % 8; rem != 0 {
		n += 8 - rem
	}
	return uint16(n)
}

// MarshalDirents concatenates dirents into the little-endian dirent64 wire
// format described by . Records are back-to-back and each is
// individually 8-byte-aligned.
func MarshalDirents(dirents []Dirent) []byte {
	var size int
	for _, d := range dirents {
		size += int(d.reclen())
	}
	buf := make([]byte, size)
	var off int
	for _, d := range dirents {
		rl := d.reclen()
		binary.LittleEndian.PutUint64(buf[off:], d.Ino)
		binary.LittleEndian.PutUint64(buf[off+8:], uint64(d.Off))
		binary.LittleEndian.PutUint16(buf[off+16:], rl)
		buf[off+18] = d.Type
		copy(buf[off+direntFixedSize:], d.Name)
		// remaining bytes (NUL terminator + alignment pad) are already zero.
		off += int(rl)
	}
	return buf
}

// DirentsSize returns the exact byte total MarshalDirents would produce,
// without allocating the records. Used by vfs_readdir's empty-buffer,
// required-length convention.
func DirentsSize(dirents []Dirent) int {
	var size int
	for _, d := range dirents {
		size += int(d.reclen())
	}
	return size
}
