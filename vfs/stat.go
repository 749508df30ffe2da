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
	"time"
)

// StatSize is the fixed C-layout size of a Stat record.
const StatSize = 128

// Timespec is a (seconds, nanoseconds) pair, the half used by Stat's three
// embedded timestamps.
type Timespec struct {
	Sec  int64
	Nsec int64
}

func timespecFrom(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Stat is the 128-byte stat record of . Field order matches the
// wire layout exactly; MarshalBinary serializes it
// little-endian with no implicit padding beyond the fields declared below.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint64
	_       uint64 // pad
	Size    int64
	Blksize int32
	_       int32 // pad
	Blocks  int64
	Atime   Timespec
	Mtime   Timespec
	Ctime   Timespec
	_       uint64 // unused
}

// MarshalBinary encodes s into the 128-byte wire layout.
func (s Stat) MarshalBinary() []byte {
	buf := make([]byte, StatSize)
	le := binary.LittleEndian
	le.PutUint64(buf[0:], s.Dev)
	le.PutUint64(buf[8:], s.Ino)
	le.PutUint32(buf[16:], s.Mode)
	le.PutUint32(buf[20:], s.Nlink)
	le.PutUint32(buf[24:], s.Uid)
	le.PutUint32(buf[28:], s.Gid)
	le.PutUint64(buf[32:], s.Rdev)
	// bytes 40:48 pad, left zero
	le.PutUint64(buf[48:], uint64(s.Size))
	le.PutUint32(buf[56:], uint32(s.Blksize))
	// bytes 60:64 pad, left zero
	le.PutUint64(buf[64:], uint64(s.Blocks))
	le.PutUint64(buf[72:], uint64(s.Atime.Sec))
	le.PutUint64(buf[80:], uint64(s.Atime.Nsec))
	le.PutUint64(buf[88:], uint64(s.Mtime.Sec))
	le.PutUint64(buf[96:], uint64(s.Mtime.Nsec))
	le.PutUint64(buf[104:], uint64(s.Ctime.Sec))
	le.PutUint64(buf[112:], uint64(s.Ctime.Nsec))
	// bytes 120:128 unused, left zero
	return buf
}

// blocksFor computes st_blocks = file_size / blk_size when blk_size != 0,
// else 0, .
func blocksFor(size int64, blkSize uint32) int64 {
	if blkSize == 0 {
		return 0
	}
	return size / int64(blkSize)
}

// StatfsNameMax is the size of the statfs name buffer.
const StatfsNameMax = 32

// Statfs is the statfs record of .
type Statfs struct {
	Magic     uint64
	BlockSize uint32
	Blocks    uint64
	BlocksFree uint64
	Files     uint64
	FilesFree uint64
	NameLen   uint32
	Name      [StatfsNameMax]byte
}

// genericStatfs implements the fallback used for a
// superblock-ops stat_fs that reports NotSupported: it reports the magic,
// block size, and filesystem type name, and zeroes for anything it cannot
// know generically.
func genericStatfs(sb *Superblock) Statfs {
	var name [StatfsNameMax]byte
	typeName := ""
	if sb.fsType != nil {
		typeName = sb.fsType.Name
	}
	n := copy(name[:], typeName)
	return Statfs{
		Magic:     sb.Magic,
		BlockSize: sb.BlockSize,
		NameLen:   uint32(n),
		Name:      name,
	}
}
