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

// Package devfs is the device filesystem driver for the core vfs package.
// It seeds a well-known null/zero/tty trio at mount time, persists its
// device table as TOML, and backs mknod-created char/block device nodes
// with simple in-memory semantics (devfs supplement).
package devfs

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/coriolisfs/vfs/internal/vfslog"
	"github.com/coriolisfs/vfs/vfs"
)

// BlockSize is the synthetic block size reported by a devfs superblock.
const BlockSize = 1024

// Magic is devfs's statfs magic number.
const Magic = 0x858458f6 + 3

type devKind int

const (
	devGeneric devKind = iota
	devNull
	devZero
	devTTY
)

// node is the private payload behind every devfs inode.
type node struct {
	mu sync.Mutex

	children map[string]*vfs.Inode // directory payload
	target   string                // symlink payload

	kind   devKind
	serial string
	ring   bytes.Buffer // tty loopback buffer
}

func newDirNode() *node             { return &node{children: make(map[string]*vfs.Inode)} }
func newSymlinkNode(t string) *node { return &node{target: t} }

func nodeOf(i *vfs.Inode) *node { return i.Private().(*node) }

func classify(name string) devKind {
	switch name {
	case "null":
		return devNull
	case "zero":
		return devZero
	case "tty", "console":
		return devTTY
	default:
		return devGeneric
	}
}

var dirInodeOps = vfs.InodeOps{
	Lookup:  dirLookup,
	Mkdir:   dirMkdir,
	Rmdir:   dirRmdir,
	Unlink:  dirUnlink,
	Symlink: dirSymlink,
	Mknod:   dirMknod,
}

var dirFileOps = vfs.FileOps{
	Open:    noopOpen,
	Readdir: readdir,
}

var symlinkInodeOps = vfs.InodeOps{
	Readlink:   readlink,
	FollowLink: followLink,
}

var symlinkFileOps = vfs.FileOps{Open: noopOpen}

var deviceFileOps = vfs.FileOps{
	Open:  noopOpen,
	Read:  deviceRead,
	Write: deviceWrite,
}

func noopOpen(ctx context.Context, f *vfs.File) error { return nil }

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
	dir.AddLink()
	return childInode, nil
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
	dir.DropLink()
	stored.DecRef()
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

func dirMknod(ctx context.Context, dir *vfs.Inode, name string, mode vfs.InodeMode, dev vfs.DeviceID) (*vfs.Inode, error) {
	n := nodeOf(dir)
	n.mu.Lock()
	if _, exists := n.children[name]; exists {
		n.mu.Unlock()
		return nil, vfs.ErrAlreadyExists
	}
	n.mu.Unlock()

	sb := dir.Superblock()
	child := &node{kind: classify(name)}
	childInode := vfs.NewInode(sb, sb.NextIno(), mode, vfs.InodeOps{}, deviceFileOps)
	childInode.SetPrivate(child)
	childInode.SetDevice(dev)
	childInode.IncRef()

	n.mu.Lock()
	n.children[name] = childInode
	n.mu.Unlock()
	dir.SetSize(dir.Size() + 1)
	return childInode, nil
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

// deviceRead implements the well-known devices' read semantics: null always
// signals EOF, zero fills buf with zero bytes, tty drains its loopback
// buffer, and a generic mknod'd device (no data source of its own) behaves
// like null.
func deviceRead(ctx context.Context, f *vfs.File, buf []byte, offset int64) (int, error) {
	n := nodeOf(f.Dentry.Inode())
	switch n.kind {
	case devZero:
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	case devTTY:
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.ring.Read(buf)
	default: // devNull, devGeneric
		return 0, nil
	}
}

// deviceWrite implements the well-known devices' write semantics: null and
// zero both silently absorb every byte, tty appends to its loopback buffer
// for a later read to drain.
func deviceWrite(ctx context.Context, f *vfs.File, buf []byte, offset int64) (int, error) {
	n := nodeOf(f.Dentry.Inode())
	switch n.kind {
	case devTTY:
		n.mu.Lock()
		n.ring.Write(buf)
		n.mu.Unlock()
	}
	return len(buf), nil
}

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
	case vfs.ModeBlockDevice:
		return vfs.DTBlk
	default:
		return vfs.DTChr
	}
}

// seed populates root with the device table's descriptors, called once per
// fresh superblock.
func seed(sb *vfs.Superblock, root *node, table *DeviceTable) {
	for _, d := range table.Device {
		var inode *vfs.Inode
		switch d.Mode {
		case "symlink":
			child := newSymlinkNode(d.Target)
			inode = vfs.NewInode(sb, sb.NextIno(), vfs.ModeSymlink, symlinkInodeOps, symlinkFileOps)
			inode.SetPrivate(child)
			inode.SetSize(int64(len(d.Target)))
		case "block":
			child := &node{kind: classify(d.Name), serial: d.Serial}
			inode = vfs.NewInode(sb, sb.NextIno(), vfs.ModeBlockDevice, vfs.InodeOps{}, deviceFileOps)
			inode.SetPrivate(child)
			inode.SetDevice(vfs.DeviceID{Major: d.Major, Minor: d.Minor})
			inode.SetSpecial(d.Serial)
		default: // "char"
			child := &node{kind: classify(d.Name), serial: d.Serial}
			inode = vfs.NewInode(sb, sb.NextIno(), vfs.ModeCharDevice, vfs.InodeOps{}, deviceFileOps)
			inode.SetPrivate(child)
			inode.SetDevice(vfs.DeviceID{Major: d.Major, Minor: d.Minor})
			inode.SetSpecial(d.Serial)
		}
		inode.IncRef()
		root.children[d.Name] = inode
	}
}

// Register installs the "devfs" filesystem type. tablePath names the TOML
// file the device table is loaded from at get_super and rewritten to at
// kill_super; a blank path keeps the table in memory only, for tests.
func Register(reg *vfs.Registry, tablePath string) (*vfs.FilesystemType, error) {
	get := func(ctx context.Context, fsType *vfs.FilesystemType, deviceName string, flags uint32, data string) (*vfs.Superblock, error) {
		table, err := LoadDeviceTable(tablePath)
		if err != nil {
			return nil, err
		}

		sb := vfs.NewSuperblock(fsType, BlockSize, Magic, vfs.SuperblockOps{})
		sb.DeviceName = deviceName
		sb.MountFlags = flags
		sb.Private = table

		root := newDirNode()
		seed(sb, root, table)
		rootInode := vfs.NewInode(sb, sb.NextIno(), vfs.ModeDirectory, dirInodeOps, dirFileOps)
		rootInode.SetPrivate(root)
		rootInode.SetSize(int64(len(root.children)))
		sb.SetRoot(vfs.NewRootDentry(rootInode, vfs.DentryOps{}))

		vfslog.Debugf("devfs: mounted device %q with %d seeded entries", deviceName, len(table.Device))
		return sb, nil
	}
	kill := func(ctx context.Context, sb *vfs.Superblock) {
		if table, ok := sb.Private.(*DeviceTable); ok {
			if err := table.Save(tablePath); err != nil {
				vfslog.Warningf("devfs: failed to persist device table: %v", err)
			}
		}
		vfslog.Debugf("devfs: superblock for %q killed", sb.DeviceName)
	}
	return reg.RegisterFilesystem("devfs", 0, get, kill)
}
