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

// FileOps is the file_ops vtable of , invoked by the core and
// implemented by drivers against an open File.
type FileOps struct {
	Llseek func(ctx context.Context, f *File, offset int64, whence SeekWhence) (int64, error)
	Read   func(ctx context.Context, f *File, buf []byte, offset int64) (int, error)
	Write  func(ctx context.Context, f *File, buf []byte, offset int64) (int, error)
	// Readdir appends entries starting at f's current directory-scan
	// position into buf's worth of space; pass an empty buf to probe the
	// required length ("Buffer-length probe" convention).
	Readdir func(ctx context.Context, f *File, buf []byte) (int, error)
	Ioctl   func(ctx context.Context, f *File, cmd uint32, arg []byte) (int, error)
	Mmap    func(ctx context.Context, f *File, length int64, offset int64) error
	// Open is invoked when vfs_open_file constructs a new File, after the
	// target dentry is resolved (and, for O_CREAT, after the inode exists);
	// it may populate f.Private with driver-specific handle state. It is
	// not invoked when vfs_open_file returns an already-open cached File.
	Open    func(ctx context.Context, f *File) error
	Flush   func(ctx context.Context, f *File) error
	Fsync   func(ctx context.Context, f *File) error
	Release func(ctx context.Context, f *File) error
}

// File is an open handle: it holds strong references to the dentry
// and mount it was opened through, its vtable, open mode, and per-handle
// mutable state.
//
// Concurrency: mu guards pos and flags, per-file lock.
type File struct {
	refCount

	id uint64 // assigned by Superblock.registerOpenFile, unique within the superblock

	Dentry *Dentry // strong
	Mount  *Mount  // strong
	Ops    FileOps

	mu      sync.Mutex
	pos     int64
	flags   uint32
	private interface{}
}

// newFile constructs a File over dentry/mount, taking its own references on
// both.
func newFile(dentry *Dentry, mount *Mount, ops FileOps, flags uint32) *File {
	dentry.IncRef()
	mount.IncRef()
	f := &File{Dentry: dentry, Mount: mount, Ops: ops, flags: flags}
	f.refCount.init(func() { f.destroy() })
	return f
}

func (f *File) destroy() {
	f.Dentry.DecRef()
	f.Mount.DecRef()
}

// Pos returns the current file position.
func (f *File) Pos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// SetPos sets the file position directly, used by llseek and open-with-append.
func (f *File) SetPos(p int64) {
	f.mu.Lock()
	f.pos = p
	f.mu.Unlock()
}

// Flags returns the open flags this handle was opened with.
func (f *File) Flags() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

// Private returns the driver-private per-handle slot.
func (f *File) Private() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.private
}

// SetPrivate sets the driver-private per-handle slot.
func (f *File) SetPrivate(v interface{}) {
	f.mu.Lock()
	f.private = v
	f.mu.Unlock()
}
