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
	"sync/atomic"

	"github.com/google/btree"

	"github.com/coriolisfs/vfs/internal/vfslog"
)

// SuperblockOps is the superblock_ops vtable of . Every
// operation may report ErrNotSupported; the core treats that as a no-op or
// falls back to a generic implementation where one is defined.
type SuperblockOps struct {
	AllocInode  func(ctx context.Context, sb *Superblock) (*Inode, error)
	WriteInode  func(ctx context.Context, inode *Inode) error
	DirtyInode  func(ctx context.Context, inode *Inode) error
	DeleteInode func(ctx context.Context, inode *Inode) error
	WriteSuper  func(ctx context.Context, sb *Superblock) error
	SyncFS      func(ctx context.Context, sb *Superblock) error
	FreezeFS    func(ctx context.Context, sb *Superblock) error
	UnfreezeFS  func(ctx context.Context, sb *Superblock) error
	// StatFS has a generic fallback (genericStatfs) if nil or if it returns
	// ErrNotSupported, .
	StatFS func(ctx context.Context, sb *Superblock) (Statfs, error)
}

type dirtyEntry struct {
	ino   uint64
	inode *Inode
}

func dirtyEntryLess(a, b dirtyEntry) bool { return a.ino < b.ino }

type openFileEntry struct {
	id   uint64
	file *File
}

func openFileEntryLess(a, b openFileEntry) bool { return a.id < b.id }

// Superblock is a mounted instance of a filesystem, .
//
// Concurrency: mu guards the dirty-inode list, the clean-but-live inode
// list, the open-file set, and the root dentry pointer, .
// This is grounded on kernfs.go's Filesystem type, whose mu similarly
// synchronizes structural state and whose nextInoMinusOne allocator pattern
// is mirrored by nextIno below.
type Superblock struct {
	refCount

	BlockSize  uint32
	Magic      uint64
	MountFlags uint32
	Device     DeviceID
	DeviceName string // matched by the registry's find_super_blk predicate

	fsType *FilesystemType // weak: does not keep the type's registration alive
	Ops    SuperblockOps

	// Private is the driver-private data slot .
	Private interface{}

	mu sync.Mutex

	root *Dentry // strong; retained for the superblock's entire lifetime

	nextInoMinusOne uint64 // accessed via atomic.AddUint64

	dirty      *btree.BTreeG[dirtyEntry]
	live       *btree.BTreeG[dirtyEntry]
	openFiles  *btree.BTreeG[openFileEntry]
	openByDent map[*Dentry]*File // open-file de-duplication index
	nextFileID uint64
}

// NewSuperblock constructs a superblock; the caller must call SetRoot once
// the root inode/dentry exist (they're typically created using the
// superblock's own NextIno/AllocInode, which needs sb to already exist,
// hence the two-step construction).
func NewSuperblock(fsType *FilesystemType, blockSize uint32, magic uint64, ops SuperblockOps) *Superblock {
	sb := &Superblock{
		BlockSize: blockSize,
		Magic:     magic,
		fsType:    fsType,
		Ops:       ops,
		dirty:     btree.NewG(32, dirtyEntryLess),
		live:      btree.NewG(32, dirtyEntryLess),
		openFiles: btree.NewG(32, openFileEntryLess),
		openByDent: make(map[*Dentry]*File),
	}
	sb.refCount.init(func() { sb.destroy() })
	return sb
}

func (sb *Superblock) destroy() {
	vfslog.Debugf("vfs: superblock %s reached zero refs, invoking kill_super", sb.DeviceName)
	if sb.fsType != nil {
		sb.fsType.removeSuperblock(sb)
		if sb.fsType.KillSuper != nil {
			sb.fsType.KillSuper(context.Background(), sb)
		}
	}
}

// NextIno allocates a new inode number on this superblock.
func (sb *Superblock) NextIno() uint64 {
	return atomic.AddUint64(&sb.nextInoMinusOne, 1)
}

// SetRoot installs sb's root dentry. Must be called exactly once, before sb
// is reachable by any resolver.
func (sb *Superblock) SetRoot(root *Dentry) {
	sb.mu.Lock()
	sb.root = root
	sb.mu.Unlock()
}

// Root returns the superblock's root dentry without incrementing its
// reference count; callers that retain it across a call that could drop
// the superblock's own last reference must IncRef explicitly.
func (sb *Superblock) Root() *Dentry {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.root
}

// FilesystemType returns the owning registry entry.
func (sb *Superblock) FilesystemType() *FilesystemType { return sb.fsType }

func (sb *Superblock) markDirty(inode *Inode) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.live.Delete(dirtyEntry{ino: inode.Ino})
	sb.dirty.ReplaceOrInsert(dirtyEntry{ino: inode.Ino, inode: inode})
}

func (sb *Superblock) markLive(inode *Inode) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if _, ok := sb.dirty.Get(dirtyEntry{ino: inode.Ino}); ok {
		return
	}
	sb.live.ReplaceOrInsert(dirtyEntry{ino: inode.Ino, inode: inode})
}

// registerOpenFile records f as open on sb, keyed by the dentry it was
// opened through, implementing the open-file de-duplication of .
func (sb *Superblock) registerOpenFile(d *Dentry, f *File) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.nextFileID++
	f.id = sb.nextFileID
	sb.openFiles.ReplaceOrInsert(openFileEntry{id: f.id, file: f})
	sb.openByDent[d] = f
}

// findOpenFile returns the cached File for d, if any, so vfs_open_file can
// return a cached File if one already exists in the superblock for this
// dentry.
func (sb *Superblock) findOpenFile(d *Dentry) *File {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.openByDent[d]
}

// unregisterOpenFile removes f from the open-file set, e.g. on
// vfs_close_file, File lifecycle.
func (sb *Superblock) unregisterOpenFile(d *Dentry, f *File) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.openFiles.Delete(openFileEntry{id: f.id})
	if sb.openByDent[d] == f {
		delete(sb.openByDent, d)
	}
}

// OpenFileCount returns the number of currently open files on sb. Exposed
// for testing "open; close leaves the open-file set unchanged"
// round-trip law.
func (sb *Superblock) OpenFileCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.openFiles.Len()
}

// StatFS dispatches to Ops.StatFS, falling back to the generic
// magic/block-size/fs-type-name implementation when the driver has none.
func (sb *Superblock) StatFS(ctx context.Context) (Statfs, error) {
	if sb.Ops.StatFS != nil {
		st, err := sb.Ops.StatFS(ctx, sb)
		if err == nil {
			return st, nil
		}
		if !isKind(err, KindNotSupported) {
			return Statfs{}, err
		}
	}
	return genericStatfs(sb), nil
}

func isKind(err error, k Kind) bool {
	ve, ok := err.(*Error)
	return ok && ve.Kind == k
}
