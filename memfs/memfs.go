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

// Package memfs is an in-memory filesystem driver for the core vfs package.
// It implements one generic node representation shared by two independent
// registrations (rootfs and tmpfs), mirroring how the original ramfs module
// this is grounded on built rootfs.rs and tmpfs.rs as parallel instantiations
// of the same generic logic over two distinct backing maps.
package memfs

import (
	"context"
	"sort"
	"sync"

	"github.com/coriolisfs/vfs/internal/vfslog"
	"github.com/coriolisfs/vfs/vfs"
)

// BlockSize is the synthetic block size reported by a memfs superblock.
const BlockSize = 4096

// node is the private payload behind every inode a memfs instance creates.
// Exactly one of children, data, target is meaningful, selected by the
// owning inode's mode.
type node struct {
	mu sync.Mutex

	children map[string]*vfs.Inode // directory: name -> child inode, one structural reference held per entry
	data     []byte                // regular file payload
	target   string                // symlink payload
	xattrs   map[string][]byte
}

func newDirNode() *node              { return &node{children: make(map[string]*vfs.Inode)} }
func newFileNode() *node             { return &node{} }
func newSymlinkNode(t string) *node  { return &node{target: t} }

func nodeOf(i *vfs.Inode) *node { return i.Private().(*node) }

var dirInodeOps = vfs.InodeOps{
	Lookup:     dirLookup,
	Create:     dirCreate,
	Mkdir:      dirMkdir,
	Rmdir:      dirRmdir,
	Link:       dirLink,
	Unlink:     dirUnlink,
	Symlink:    dirSymlink,
	Rename:     dirRename,
	GetAttr:    getAttr,
	SetAttr:    setAttr,
	RemoveAttr: removeAttr,
	ListAttr:   listAttr,
}

var dirFileOps = vfs.FileOps{
	Open:    noopOpen,
	Readdir: readdir,
}

var fileInodeOps = vfs.InodeOps{
	Truncate:   truncate,
	GetAttr:    getAttr,
	SetAttr:    setAttr,
	RemoveAttr: removeAttr,
	ListAttr:   listAttr,
}

var fileFileOps = vfs.FileOps{
	Open:  noopOpen,
	Read:  readFile,
	Write: writeFile,
}

var symlinkInodeOps = vfs.InodeOps{
	Readlink:   readlink,
	FollowLink: followLink,
	GetAttr:    getAttr,
	SetAttr:    setAttr,
	RemoveAttr: removeAttr,
	ListAttr:   listAttr,
}

var symlinkFileOps = vfs.FileOps{
	Open: noopOpen,
}

func noopOpen(ctx context.Context, f *vfs.File) error { return nil }

// newRoot builds the root inode and dentry for a freshly created memfs
// superblock, wiring up the generic directory vtables.
func newRoot(sb *vfs.Superblock) *vfs.Dentry {
	root := newDirNode()
	inode := vfs.NewInode(sb, sb.NextIno(), vfs.ModeDirectory, dirInodeOps, dirFileOps)
	inode.SetPrivate(root)
	return vfs.NewRootDentry(inode, vfs.DentryOps{})
}

func dirLookup(ctx context.Context, dir *vfs.Inode, name string) (*vfs.Inode, error) {
	n := nodeOf(dir)
	n.mu.Lock()
	child, ok := n.children[name]
	n.mu.Unlock()
	if !ok {
		return nil, vfs.ErrNotFound
	}
	child.IncRef()
	return child, nil
}

func dirCreate(ctx context.Context, dir *vfs.Inode, name string, mode vfs.InodeMode) (*vfs.Inode, error) {
	n := nodeOf(dir)
	n.mu.Lock()
	if _, exists := n.children[name]; exists {
		n.mu.Unlock()
		return nil, vfs.ErrAlreadyExists
	}
	n.mu.Unlock()

	sb := dir.Superblock()
	child := newFileNode()
	childInode := vfs.NewInode(sb, sb.NextIno(), vfs.ModeRegular, fileInodeOps, fileFileOps)
	childInode.SetPrivate(child)
	childInode.IncRef() // this directory's structural reference

	n.mu.Lock()
	n.children[name] = childInode
	n.mu.Unlock()
	dir.SetSize(dir.Size() + 1)
	return childInode, nil
}

func dirMkdir(ctx context.Context, dir *vfs.Inode, name string) (*vfs.Inode, error) {
	n := nodeOf(dir)
	n.mu.Lock()
	if _, exists := n.children[name]; exists {
		n.mu.Unlock()
		return nil, vfs.ErrAlreadyExists
	}
	n.mu.Unlock()

	sb := dir.Superblock()
	child := newDirNode()
	childInode := vfs.NewInode(sb, sb.NextIno(), vfs.ModeDirectory, dirInodeOps, dirFileOps)
	childInode.SetPrivate(child)
	childInode.IncRef()

	n.mu.Lock()
	n.children[name] = childInode
	n.mu.Unlock()
	dir.SetSize(dir.Size() + 1)
	dir.AddLink() // the new subdirectory's ".." bumps the parent's hard-link count
	return childInode, nil
}

func dirSymlink(ctx context.Context, dir *vfs.Inode, name, target string) (*vfs.Inode, error) {
	n := nodeOf(dir)
	n.mu.Lock()
	if _, exists := n.children[name]; exists {
		n.mu.Unlock()
		return nil, vfs.ErrAlreadyExists
	}
	n.mu.Unlock()

	sb := dir.Superblock()
	child := newSymlinkNode(target)
	childInode := vfs.NewInode(sb, sb.NextIno(), vfs.ModeSymlink, symlinkInodeOps, symlinkFileOps)
	childInode.SetPrivate(child)
	childInode.SetSize(int64(len(target)))
	childInode.IncRef()

	n.mu.Lock()
	n.children[name] = childInode
	n.mu.Unlock()
	dir.SetSize(dir.Size() + 1)
	return childInode, nil
}

func dirLink(ctx context.Context, dir *vfs.Inode, name string, target *vfs.Inode) error {
	n := nodeOf(dir)
	n.mu.Lock()
	if _, exists := n.children[name]; exists {
		n.mu.Unlock()
		return vfs.ErrAlreadyExists
	}
	target.IncRef() // this directory's structural reference
	n.children[name] = target
	n.mu.Unlock()
	dir.SetSize(dir.Size() + 1)
	return nil
}

func dirUnlink(ctx context.Context, dir *vfs.Inode, name string, child *vfs.Inode) error {
	n := nodeOf(dir)
	n.mu.Lock()
	stored, ok := n.children[name]
	if ok {
		delete(n.children, name)
	}
	n.mu.Unlock()
	if !ok {
		return vfs.ErrNotFound
	}
	dir.SetSize(dir.Size() - 1)
	stored.DecRef()
	return nil
}

func dirRmdir(ctx context.Context, dir *vfs.Inode, name string, child *vfs.Inode) error {
	childNode := nodeOf(child)
	childNode.mu.Lock()
	empty := len(childNode.children) == 0
	childNode.mu.Unlock()
	if !empty {
		return vfs.ErrNotEmpty
	}

	n := nodeOf(dir)
	n.mu.Lock()
	stored, ok := n.children[name]
	if ok {
		delete(n.children, name)
	}
	n.mu.Unlock()
	if !ok {
		return vfs.ErrNotFound
	}
	dir.SetSize(dir.Size() - 1)
	dir.DropLink() // balances the AddLink done by this subdirectory's Mkdir
	stored.DecRef()
	return nil
}

func dirRename(ctx context.Context, oldDir *vfs.Inode, oldDentry *vfs.Dentry, newDir *vfs.Inode, newDentry *vfs.Dentry) error {
	oldName := oldDentry.Name()
	newName := newDentry.Name()
	moved := oldDentry.Inode()

	oldNode := nodeOf(oldDir)
	newNode := nodeOf(newDir)

	if newDir != oldDir {
		if moved.Mode() == vfs.ModeDirectory {
			newNode.mu.Lock()
			existing, hadExisting := newNode.children[newName]
			newNode.mu.Unlock()
			if hadExisting && existing.Mode() == vfs.ModeDirectory {
				existingNode := nodeOf(existing)
				existingNode.mu.Lock()
				empty := len(existingNode.children) == 0
				existingNode.mu.Unlock()
				if !empty {
					return vfs.ErrNotEmpty
				}
			}
		}
	}

	oldNode.mu.Lock()
	delete(oldNode.children, oldName)
	oldNode.mu.Unlock()
	oldDir.SetSize(oldDir.Size() - 1)

	newNode.mu.Lock()
	existing, hadExisting := newNode.children[newName]
	newNode.children[newName] = moved
	newNode.mu.Unlock()

	if hadExisting {
		if existing.Mode() == vfs.ModeDirectory {
			newDir.DropLink()
		}
		existing.DecRef()
	} else {
		newDir.SetSize(newDir.Size() + 1)
	}
	if newDir != oldDir && moved.Mode() == vfs.ModeDirectory {
		oldDir.DropLink()
		newDir.AddLink()
	}
	return nil
}

func truncate(ctx context.Context, inode *vfs.Inode, size int64) error {
	n := nodeOf(inode)
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case size < int64(len(n.data)):
		n.data = n.data[:size]
	case size > int64(len(n.data)):
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
	}
	return nil
}

func readFile(ctx context.Context, f *vfs.File, buf []byte, offset int64) (int, error) {
	n := nodeOf(f.Dentry.Inode())
	n.mu.Lock()
	defer n.mu.Unlock()
	if offset >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[offset:]), nil
}

func writeFile(ctx context.Context, f *vfs.File, buf []byte, offset int64) (int, error) {
	inode := f.Dentry.Inode()
	n := nodeOf(inode)
	n.mu.Lock()
	end := offset + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end) // zero-fills any hole between the old end and offset
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], buf)
	size := int64(len(n.data))
	n.mu.Unlock()
	inode.GrowSize(size)
	return len(buf), nil
}

func readlink(ctx context.Context, dentry *vfs.Dentry, buf []byte) (int, error) {
	n := nodeOf(dentry.Inode())
	n.mu.Lock()
	target := n.target
	n.mu.Unlock()
	if len(buf) == 0 {
		return len(target), nil
	}
	return copy(buf, target), nil
}

func followLink(ctx context.Context, dentry *vfs.Dentry, state *vfs.LookupState) error {
	n := nodeOf(dentry.Inode())
	n.mu.Lock()
	target := n.target
	n.mu.Unlock()
	state.PushSymlinkTarget(target)
	return nil
}

func getAttr(ctx context.Context, dentry *vfs.Dentry, key string, buf []byte) (int, error) {
	n := nodeOf(dentry.Inode())
	n.mu.Lock()
	value, ok := n.xattrs[key]
	n.mu.Unlock()
	if !ok {
		return 0, vfs.ErrNotFound
	}
	if len(buf) == 0 {
		return len(value), nil
	}
	return copy(buf, value), nil
}

func setAttr(ctx context.Context, dentry *vfs.Dentry, key string, value []byte) error {
	n := nodeOf(dentry.Inode())
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.xattrs == nil {
		n.xattrs = make(map[string][]byte)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	n.xattrs[key] = stored
	return nil
}

func removeAttr(ctx context.Context, dentry *vfs.Dentry, key string) error {
	n := nodeOf(dentry.Inode())
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.xattrs[key]; !ok {
		return vfs.ErrNotFound
	}
	delete(n.xattrs, key)
	return nil
}

func listAttr(ctx context.Context, dentry *vfs.Dentry, buf []byte) (int, error) {
	n := nodeOf(dentry.Inode())
	n.mu.Lock()
	names := make([]string, 0, len(n.xattrs))
	for k := range n.xattrs {
		names = append(names, k)
	}
	n.mu.Unlock()
	sort.Strings(names)

	var joined []byte
	for _, name := range names {
		joined = append(joined, name...)
		joined = append(joined, 0)
	}
	if len(buf) == 0 {
		return len(joined), nil
	}
	return copy(buf, joined), nil
}

// readdir implements vfs_readdir's buffer-probe convention: an
// empty buf reports the required length for every entry from the file's
// current position without advancing it; a non-empty buf marshals as many
// entries as fit and advances the position by exactly that many.
func readdir(ctx context.Context, f *vfs.File, buf []byte) (int, error) {
	n := nodeOf(f.Dentry.Inode())
	n.mu.Lock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	n.mu.Unlock()
	sort.Strings(names)

	pos := int(f.Pos())
	if pos > len(names) {
		pos = len(names)
	}
	remaining := names[pos:]

	entries := make([]vfs.Dirent, 0, len(remaining))
	for i, name := range remaining {
		n.mu.Lock()
		child := n.children[name]
		n.mu.Unlock()
		entries = append(entries, vfs.Dirent{
			Ino:  child.Ino,
			Off:  int64(pos + i + 1),
			Type: direntTypeFor(child.Mode()),
			Name: name,
		})
	}

	if len(buf) == 0 {
		return vfs.DirentsSize(entries), nil
	}

	fit := 0
	size := 0
	for _, e := range entries {
		s := vfs.DirentsSize([]vfs.Dirent{e})
		if size+s > len(buf) {
			break
		}
		size += s
		fit++
	}
	written := vfs.MarshalDirents(entries[:fit])
	copy(buf, written)
	f.SetPos(int64(pos + fit))
	return len(written), nil
}

func direntTypeFor(m vfs.InodeMode) uint8 {
	switch m {
	case vfs.ModeDirectory:
		return vfs.DTDir
	case vfs.ModeSymlink:
		return vfs.DTLnk
	case vfs.ModeCharDevice:
		return vfs.DTChr
	case vfs.ModeBlockDevice:
		return vfs.DTBlk
	case vfs.ModeFifo:
		return vfs.DTFifo
	case vfs.ModeSocket:
		return vfs.DTSock
	default:
		return vfs.DTReg
	}
}

// register installs a memfs instance under name with the given magic
// number, following get_super/kill_super contract. Shared by
// rootfs.go and tmpfs.go, which differ only in name and magic.
func register(reg *vfs.Registry, name string, magic uint64) (*vfs.FilesystemType, error) {
	get := func(ctx context.Context, fsType *vfs.FilesystemType, deviceName string, flags uint32, data string) (*vfs.Superblock, error) {
		sb := vfs.NewSuperblock(fsType, BlockSize, magic, vfs.SuperblockOps{})
		sb.DeviceName = deviceName
		sb.MountFlags = flags
		sb.SetRoot(newRoot(sb))
		vfslog.Debugf("memfs: mounted %q as %s (device %q)", name, name, deviceName)
		return sb, nil
	}
	kill := func(ctx context.Context, sb *vfs.Superblock) {
		vfslog.Debugf("memfs: superblock for %q killed", sb.DeviceName)
	}
	return reg.RegisterFilesystem(name, 0, get, kill)
}
