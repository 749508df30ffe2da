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
	"context"
	"sync"
)

// InodeFlag is the inode ownership-flag state machine:
// CACHED -> DELETED (rmdir) or CACHED -> INVALID (unlink of last hard link,
// or overwrite by rename). No path leaves INVALID.
type InodeFlag int

const (
	FlagCached InodeFlag = iota
	FlagDeleted
	FlagInvalid
)

// DeviceID packs the major/minor device descriptor carried by device-node
// inodes.
type DeviceID struct {
	Major uint32
	Minor uint32
}

// Inode is a filesystem object's identity, independent of any name. See
// .
//
// Concurrency: every mutable field below is guarded by mu, // per-object locking discipline. The back-reference to the owning
// Superblock is weak in spirit (the inode never keeps its superblock alive)
// but is implemented as a bare pointer rather than a TryIncRef-style weak
// ref, since an inode cannot outlive the superblock's own lifetime
// invariant in practice: drivers only hand inodes to the core from
// callbacks invoked while the superblock is reachable.
type Inode struct {
	refCount

	// Ino is this inode's id, unique within its owning Superblock. Immutable.
	Ino uint64

	sb *Superblock

	InodeOps InodeOps
	FileOps  FileOps

	mu sync.Mutex

	mode    InodeMode
	dev     DeviceID
	nlink   uint32
	size    int64
	uid     uint32
	gid     uint32
	flag    InodeFlag
	private interface{} // driver-private slot
	special interface{} // pipe/char/block/socket classifier slot
}

// NewInode constructs an inode owned by sb with the given mode. Hard-link
// count is seeded at 2 for directories (self + "."), 1
// otherwise. The caller receives the inode with one reference, matching
// refCount's initial state.
func NewInode(sb *Superblock, ino uint64, mode InodeMode, ops InodeOps, fops FileOps) *Inode {
	i := &Inode{
		Ino:      ino,
		sb:       sb,
		InodeOps: ops,
		FileOps:  fops,
		mode:     mode,
	}
	if mode == ModeDirectory {
		i.nlink = 2
	} else {
		i.nlink = 1
	}
	i.refCount.init(func() {})
	return i
}

// Superblock returns the owning superblock. The reference is weak: callers
// must not assume it stays valid past the lifetime of whichever strong
// reference (a Dentry or an open File) keeps this Inode itself alive.
func (i *Inode) Superblock() *Superblock { return i.sb }

// Mode returns the inode's file type.
func (i *Inode) Mode() InodeMode {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mode
}

// Device returns the device descriptor, meaningful only for device-node
// inodes.
func (i *Inode) Device() DeviceID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.dev
}

// SetDevice sets the device descriptor. Used by mknod.
func (i *Inode) SetDevice(d DeviceID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.dev = d
}

// Nlink returns the current hard-link count.
func (i *Inode) Nlink() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.nlink
}

// AddLink increments the hard-link count, e.g. for link() or mkdir() of a
// child directory (which bumps the parent's count too).
func (i *Inode) AddLink() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nlink++
	return i.nlink
}

// DropLink decrements the hard-link count and returns the new value. If it
// reaches zero, the caller is responsible for transitioning Flag to
// FlagInvalid: deleting the last hard link transitions the
// inode to INVALID.
func (i *Inode) DropLink() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.nlink > 0 {
		i.nlink--
	}
	return i.nlink
}

// Size returns the inode's byte size (for directories, bytes are a
// synthetic accounting value; see vfs_getattr in ).
func (i *Inode) Size() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.size
}

// SetSize sets the inode's byte size directly, used by truncate and after a
// successful write that extends the file.
func (i *Inode) SetSize(n int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.size = n
}

// GrowSize raises size to max(size, n), the rule vfs_write_file applies
// after a successful write .
func (i *Inode) GrowSize(n int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if n > i.size {
		i.size = n
	}
}

// Owner returns the inode's uid/gid. Stored, never enforced (
// Non-goals: no permission/ACL checking).
func (i *Inode) Owner() (uid, gid uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.uid, i.gid
}

// SetOwner sets the inode's uid/gid.
func (i *Inode) SetOwner(uid, gid uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.uid, i.gid = uid, gid
}

// Flag returns the inode's ownership-flag state.
func (i *Inode) Flag() InodeFlag {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.flag
}

// markDeleted transitions CACHED -> DELETED. No-op if already past CACHED.
func (i *Inode) markDeleted() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.flag == FlagCached {
		i.flag = FlagDeleted
	}
}

// markInvalid transitions to INVALID. No path leaves INVALID ,
// so this is a one-way door.
func (i *Inode) markInvalid() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.flag = FlagInvalid
}

// Private returns the driver-private opaque slot.
func (i *Inode) Private() interface{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.private
}

// SetPrivate sets the driver-private opaque slot.
func (i *Inode) SetPrivate(v interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.private = v
}

// Special returns the pipe/char/block/socket classifier slot.
func (i *Inode) Special() interface{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.special
}

// SetSpecial sets the pipe/char/block/socket classifier slot.
func (i *Inode) SetSpecial(v interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.special = v
}

// Stat produces a  Stat record from this inode's fields.
// Directory size is reported as entry_count*256 by convention; callers
// pass entryCount for directories, ignored otherwise.
func (i *Inode) Stat(sbDev uint64, blkSize uint32, entryCount int, now Timespec) Stat {
	i.mu.Lock()
	defer i.mu.Unlock()
	size := i.size
	if i.mode == ModeDirectory {
		size = int64(entryCount) * 256
	}
	return Stat{
		Dev:     sbDev,
		Ino:     i.Ino,
		Mode:    uint32(i.mode),
		Nlink:   i.nlink,
		Uid:     i.uid,
		Gid:     i.gid,
		Rdev:    uint64(i.dev.Major)<<32 | uint64(i.dev.Minor),
		Size:    size,
		Blksize: int32(blkSize),
		Blocks:  blocksFor(size, blkSize),
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
	}
}

// InodeOps is the inode_ops vtable of , invoked by the core and
// implemented by drivers. Every slot defaults to "not supported" (the core
// returns ErrNotSupported for a nil slot) so a driver need only supply the
// operations it wants, "struct-of-function-pointers" guidance.
type InodeOps struct {
	// Lookup resolves name under dir, returning ErrNotFound (or any *Error)
	// if it doesn't exist. The core constructs and caches the child dentry
	// itself; Lookup need only produce the inode.
	Lookup func(ctx context.Context, dir *Inode, name string) (*Inode, error)

	Create func(ctx context.Context, dir *Inode, name string, mode InodeMode) (*Inode, error)
	Mkdir  func(ctx context.Context, dir *Inode, name string) (*Inode, error)
	Rmdir  func(ctx context.Context, dir *Inode, name string, child *Inode) error
	Mknod  func(ctx context.Context, dir *Inode, name string, mode InodeMode, dev DeviceID) (*Inode, error)

	Link    func(ctx context.Context, dir *Inode, name string, target *Inode) error
	Unlink  func(ctx context.Context, dir *Inode, name string, child *Inode) error
	Symlink func(ctx context.Context, dir *Inode, name, target string) (*Inode, error)

	Rename func(ctx context.Context, oldDir *Inode, oldDentry *Dentry, newDir *Inode, newDentry *Dentry) error

	Truncate func(ctx context.Context, inode *Inode, size int64) error

	// FollowLink must push the link target string onto state via
	// state.PushSymlinkTarget and must not perform I/O itself.
	FollowLink func(ctx context.Context, dentry *Dentry, state *LookupState) error
	// Readlink returns byte length; when buf is empty it returns the
	// required length without writing.
	Readlink func(ctx context.Context, dentry *Dentry, buf []byte) (int, error)

	GetAttr    func(ctx context.Context, dentry *Dentry, key string, buf []byte) (int, error)
	SetAttr    func(ctx context.Context, dentry *Dentry, key string, value []byte) error
	RemoveAttr func(ctx context.Context, dentry *Dentry, key string) error
	ListAttr   func(ctx context.Context, dentry *Dentry, buf []byte) (int, error)
}

// notSupported is returned by vtable slots a driver left nil, so callers
// can uniformly check errors.Is(err, vfs.ErrNotSupported).
func notSupported() error { return ErrNotSupported }
