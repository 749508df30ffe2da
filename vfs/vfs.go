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
	"strings"

	"github.com/coriolisfs/vfs/internal/vfslog"
)

// Every operation in this file is a thin dispatch with policy:
// resolve a path -> obtain a (mount, dentry) -> consult the dentry's
// inode vtable -> invoke the driver callback -> update core graph state ->
// return. The resolver (resolve.go) is the load-bearing algorithm; nothing
// here re-implements path walking.

func readOnly(m *Mount) bool { return m.Flags&MntReadOnly != 0 }

// Open implements vfs_open_file.
func (vfs *VirtualFilesystem) Open(ctx context.Context, proc ProcessContext, path string, flags uint32, mode InodeMode) (*File, error) {
	parentMount, parentDentry, leaf, err := vfs.resolveParentAndLeaf(ctx, proc, path, ReadLink)
	if err != nil {
		return nil, err
	}
	defer parentMount.DecRef()
	defer parentDentry.DecRef()

	if leaf == "." || leaf == ".." {
		return nil, NewError(KindInvalidPath, path)
	}
	if parentDentry.Inode() == nil || parentDentry.Inode().Mode() != ModeDirectory {
		return nil, NewError(KindNotDirectory, path)
	}

	leafDentry, lookupErr := vfs.lookupChild(ctx, parentDentry, leaf)
	switch {
	case lookupErr == nil:
		if flags&OCreat != 0 && flags&OExcl != 0 {
			leafDentry.DecRef()
			return nil, NewError(KindAlreadyExists, path)
		}
	case isKind(lookupErr, KindNotFound):
		if flags&OCreat == 0 {
			return nil, lookupErr
		}
		if readOnly(parentMount) {
			return nil, NewError(KindReadOnly, path)
		}
		dirInode := parentDentry.Inode()
		if dirInode.InodeOps.Create == nil {
			return nil, ErrNotSupported
		}
		candidate := newChildDentry(parentDentry, leaf)
		inode, err := dirInode.InodeOps.Create(ctx, dirInode, leaf, mode)
		if err != nil {
			candidate.DecRef()
			return nil, WrapDriverError(path, err)
		}
		candidate.setInode(inode)
		parentDentry.insertChildLocked(leaf, candidate)
		candidate.IncRef() // our own caller-owned reference; the cache keeps its own
		leafDentry = candidate
	default:
		return nil, lookupErr
	}
	defer leafDentry.DecRef()

	// advanceMount consumes one reference each on parentMount/leafDentry;
	// take an extra one on each first since both are also released by this
	// function's own deferred DecRefs above.
	parentMount.IncRef()
	leafDentry.IncRef()
	targetMount, targetDentry := vfs.advanceMount(parentMount, leafDentry)
	defer targetMount.DecRef()
	defer targetDentry.DecRef()

	if targetDentry.Inode() != nil && targetDentry.Inode().Mode() == ModeSymlink {
		if flags&ONofollow != 0 {
			return nil, NewError(KindTooManySymlinks, path)
		}
		rm, rd, err := vfs.resolvePath(ctx, proc, path, ReadLink)
		if err != nil {
			return nil, err
		}
		defer rm.DecRef()
		defer rd.DecRef()
		return vfs.openResolved(ctx, rm, rd, flags)
	}

	if targetDentry.Inode() != nil && targetDentry.Inode().Mode() == ModeDirectory && (flags&(OWrOnly|ORdWr) != 0) {
		return nil, NewError(KindIsDirectory, path)
	}

	return vfs.openResolved(ctx, targetMount, targetDentry, flags)
}

// openResolved implements the back half of vfs_open_file once (mount,
// dentry) is fully resolved (symlinks followed, mounts advanced): consult
// the superblock's open-file cache, else construct and register a fresh
// File.
func (vfs *VirtualFilesystem) openResolved(ctx context.Context, mount *Mount, dentry *Dentry, flags uint32) (*File, error) {
	sb := dentry.Inode().Superblock()
	if cached := sb.findOpenFile(dentry); cached != nil {
		if cached.TryIncRef() {
			if flags&OTrunc != 0 {
				dentry.Inode().SetSize(0)
			}
			cached.SetPos(0)
			return cached, nil
		}
	}

	if readOnly(mount) && flags&(OWrOnly|ORdWr) != 0 {
		return nil, NewError(KindReadOnly, dentry.Name())
	}

	fops := dentry.Inode().FileOps
	f := newFile(dentry, mount, fops, flags)
	if fops.Open != nil {
		if err := fops.Open(ctx, f); err != nil {
			f.DecRef()
			return nil, WrapDriverError(dentry.Name(), err)
		}
	}
	if flags&OTrunc != 0 {
		dentry.Inode().SetSize(0)
	}
	if flags&OAppend != 0 {
		f.SetPos(dentry.Inode().Size())
	}
	sb.registerOpenFile(dentry, f)
	return f, nil
}

// Close implements vfs_close_file.
func (vfs *VirtualFilesystem) Close(ctx context.Context, f *File) error {
	if f.Ops.Flush != nil {
		if err := f.Ops.Flush(ctx, f); err != nil {
			return WrapDriverError(f.Dentry.Name(), err)
		}
	}
	sb := f.Dentry.Inode().Superblock()
	if f.refs() == 1 {
		sb.unregisterOpenFile(f.Dentry, f)
		if f.Ops.Release != nil {
			if err := f.Ops.Release(ctx, f); err != nil {
				f.DecRef()
				return WrapDriverError(f.Dentry.Name(), err)
			}
		}
	}
	f.DecRef()
	return nil
}

// Read implements vfs_read_file.
func (vfs *VirtualFilesystem) Read(ctx context.Context, f *File, buf []byte) (int, error) {
	inode := f.Dentry.Inode()
	if inode.Flag() == FlagInvalid {
		return 0, NewError(KindInvalidPath, f.Dentry.Name())
	}
	if inode.Mode() == ModeDirectory {
		return 0, NewError(KindIsDirectory, f.Dentry.Name())
	}
	if f.Ops.Read == nil {
		return 0, ErrNotSupported
	}
	off := f.Pos()
	n, err := f.Ops.Read(ctx, f, buf, off)
	if err != nil {
		return n, WrapDriverError(f.Dentry.Name(), err)
	}
	f.SetPos(off + int64(n))
	return n, nil
}

// Write implements vfs_write_file.
func (vfs *VirtualFilesystem) Write(ctx context.Context, f *File, buf []byte) (int, error) {
	inode := f.Dentry.Inode()
	if inode.Flag() == FlagInvalid {
		return 0, NewError(KindInvalidPath, f.Dentry.Name())
	}
	if inode.Mode() == ModeDirectory {
		return 0, NewError(KindIsDirectory, f.Dentry.Name())
	}
	if readOnly(f.Mount) {
		return 0, NewError(KindReadOnly, f.Dentry.Name())
	}
	if f.Ops.Write == nil {
		return 0, ErrNotSupported
	}
	off := f.Pos()
	if f.Flags()&OAppend != 0 {
		off = inode.Size()
	}
	n, err := f.Ops.Write(ctx, f, buf, off)
	if err != nil {
		return n, WrapDriverError(f.Dentry.Name(), err)
	}
	inode.GrowSize(off + int64(n))
	f.SetPos(off + int64(n))
	return n, nil
}

// Llseek implements vfs_llseek, with the generic fallback
// described there when the driver reports NotSupported.
func (vfs *VirtualFilesystem) Llseek(ctx context.Context, f *File, offset int64, whence SeekWhence) (int64, error) {
	if f.Ops.Llseek != nil {
		pos, err := f.Ops.Llseek(ctx, f, offset, whence)
		if err == nil {
			f.SetPos(pos)
			return pos, nil
		}
		if !isKind(err, KindNotSupported) {
			return 0, WrapDriverError(f.Dentry.Name(), err)
		}
	}

	var newPos int64
	switch whence {
	case SeekStart:
		newPos = offset
	case SeekEnd:
		newPos = f.Dentry.Inode().Size() + offset
	case SeekCurrent:
		newPos = f.Pos() + offset
	default:
		return 0, NewError(KindInvalidPath, f.Dentry.Name())
	}
	if newPos < 0 {
		return 0, NewError(KindInvalidPath, f.Dentry.Name())
	}
	f.SetPos(newPos)
	return newPos, nil
}

// Readdir implements vfs_readdir: buf empty probes the
// required length .
func (vfs *VirtualFilesystem) Readdir(ctx context.Context, f *File, buf []byte) (int, error) {
	if f.Dentry.Inode().Mode() != ModeDirectory {
		return 0, NewError(KindNotDirectory, f.Dentry.Name())
	}
	if f.Ops.Readdir == nil {
		return 0, ErrNotSupported
	}
	n, err := f.Ops.Readdir(ctx, f, buf)
	if err != nil {
		return n, WrapDriverError(f.Dentry.Name(), err)
	}
	return n, nil
}

// Mkdir implements vfs_mkdir.
func (vfs *VirtualFilesystem) Mkdir(ctx context.Context, proc ProcessContext, path string) error {
	parentMount, parentDentry, leaf, err := vfs.resolveParentAndLeaf(ctx, proc, path, 0)
	if err != nil {
		return err
	}
	defer parentMount.DecRef()
	defer parentDentry.DecRef()

	if leaf == "." || leaf == ".." {
		return NewError(KindInvalidPath, path)
	}
	if readOnly(parentMount) {
		return NewError(KindReadOnly, path)
	}
	dirInode := parentDentry.Inode()
	if dirInode == nil || dirInode.Mode() != ModeDirectory {
		return NewError(KindNotDirectory, path)
	}
	if existing, err := vfs.lookupChild(ctx, parentDentry, leaf); err == nil {
		existing.DecRef()
		return NewError(KindAlreadyExists, path)
	}
	if dirInode.InodeOps.Mkdir == nil {
		return ErrNotSupported
	}

	candidate := newChildDentry(parentDentry, leaf)
	inode, err := dirInode.InodeOps.Mkdir(ctx, dirInode, leaf)
	if err != nil {
		candidate.DecRef()
		return WrapDriverError(path, err)
	}
	candidate.setInode(inode)
	parentDentry.insertChildLocked(leaf, candidate)
	candidate.DecRef()
	vfslog.Debugf("vfs: mkdir %s", path)
	return nil
}

// Mknod implements vfs_mknod.
func (vfs *VirtualFilesystem) Mknod(ctx context.Context, proc ProcessContext, path string, mode InodeMode, dev DeviceID) error {
	parentMount, parentDentry, leaf, err := vfs.resolveParentAndLeaf(ctx, proc, path, 0)
	if err != nil {
		return err
	}
	defer parentMount.DecRef()
	defer parentDentry.DecRef()

	if leaf == "." || leaf == ".." {
		return NewError(KindInvalidPath, path)
	}
	if readOnly(parentMount) {
		return NewError(KindReadOnly, path)
	}
	dirInode := parentDentry.Inode()
	if existing, err := vfs.lookupChild(ctx, parentDentry, leaf); err == nil {
		existing.DecRef()
		return NewError(KindAlreadyExists, path)
	}
	if dirInode.InodeOps.Mknod == nil {
		return ErrNotSupported
	}

	candidate := newChildDentry(parentDentry, leaf)
	inode, err := dirInode.InodeOps.Mknod(ctx, dirInode, leaf, mode, dev)
	if err != nil {
		candidate.DecRef()
		return WrapDriverError(path, err)
	}
	candidate.setInode(inode)
	parentDentry.insertChildLocked(leaf, candidate)
	candidate.DecRef()
	return nil
}

// Symlink implements vfs_symlink.
func (vfs *VirtualFilesystem) Symlink(ctx context.Context, proc ProcessContext, path, target string) error {
	parentMount, parentDentry, leaf, err := vfs.resolveParentAndLeaf(ctx, proc, path, 0)
	if err != nil {
		return err
	}
	defer parentMount.DecRef()
	defer parentDentry.DecRef()

	if leaf == "." || leaf == ".." {
		return NewError(KindInvalidPath, path)
	}
	if readOnly(parentMount) {
		return NewError(KindReadOnly, path)
	}
	dirInode := parentDentry.Inode()
	if existing, err := vfs.lookupChild(ctx, parentDentry, leaf); err == nil {
		existing.DecRef()
		return NewError(KindAlreadyExists, path)
	}
	if dirInode.InodeOps.Symlink == nil {
		return ErrNotSupported
	}

	candidate := newChildDentry(parentDentry, leaf)
	inode, err := dirInode.InodeOps.Symlink(ctx, dirInode, leaf, target)
	if err != nil {
		candidate.DecRef()
		return WrapDriverError(path, err)
	}
	candidate.setInode(inode)
	parentDentry.insertChildLocked(leaf, candidate)
	candidate.DecRef()
	return nil
}

// Link implements vfs_link (hard link).
func (vfs *VirtualFilesystem) Link(ctx context.Context, proc ProcessContext, oldPath, newPath string) error {
	oldMount, oldDentry, err := vfs.resolvePath(ctx, proc, oldPath, 0)
	if err != nil {
		return err
	}
	defer oldMount.DecRef()
	defer oldDentry.DecRef()

	if oldDentry.Inode() == nil || oldDentry.Inode().Mode() == ModeDirectory {
		return NewError(KindIsDirectory, oldPath)
	}

	newParentMount, newParentDentry, leaf, err := vfs.resolveParentAndLeaf(ctx, proc, newPath, 0)
	if err != nil {
		return err
	}
	defer newParentMount.DecRef()
	defer newParentDentry.DecRef()

	if leaf == "." || leaf == ".." {
		return NewError(KindInvalidPath, newPath)
	}
	if oldMount != newParentMount {
		return NewError(KindCrossDevice, newPath)
	}
	if readOnly(newParentMount) {
		return NewError(KindReadOnly, newPath)
	}
	if existing, err := vfs.lookupChild(ctx, newParentDentry, leaf); err == nil {
		existing.DecRef()
		return NewError(KindAlreadyExists, newPath)
	}

	dirInode := newParentDentry.Inode()
	if dirInode.InodeOps.Link == nil {
		return ErrNotSupported
	}
	if err := dirInode.InodeOps.Link(ctx, dirInode, leaf, oldDentry.Inode()); err != nil {
		return WrapDriverError(newPath, err)
	}
	oldDentry.Inode().AddLink()

	candidate := newChildDentry(newParentDentry, leaf)
	candidate.setInode(oldDentry.Inode())
	oldDentry.Inode().IncRef()
	newParentDentry.insertChildLocked(leaf, candidate)
	candidate.DecRef()
	return nil
}

// Unlink implements vfs_unlink.
func (vfs *VirtualFilesystem) Unlink(ctx context.Context, proc ProcessContext, path string) error {
	if isRootPath(path) {
		return NewError(KindIsDirectory, path)
	}
	parentMount, parentDentry, leaf, err := vfs.resolveParentAndLeaf(ctx, proc, path, 0)
	if err != nil {
		return err
	}
	defer parentMount.DecRef()
	defer parentDentry.DecRef()

	if leaf == "." || leaf == ".." {
		return NewError(KindInvalidPath, path)
	}
	if readOnly(parentMount) {
		return NewError(KindReadOnly, path)
	}

	child, err := vfs.lookupChild(ctx, parentDentry, leaf)
	if err != nil {
		return err
	}
	defer child.DecRef()
	if child.Inode() == nil || child.Inode().Mode() == ModeDirectory {
		return NewError(KindIsDirectory, path)
	}

	dirInode := parentDentry.Inode()
	if dirInode.InodeOps.Unlink == nil {
		return ErrNotSupported
	}
	if err := dirInode.InodeOps.Unlink(ctx, dirInode, leaf, child.Inode()); err != nil {
		return WrapDriverError(path, err)
	}
	if child.Inode().DropLink() == 0 {
		child.Inode().markInvalid()
	}
	parentDentry.removeChildLocked(leaf)
	vfslog.Debugf("vfs: unlink %s", path)
	return nil
}

// Rmdir implements vfs_rmdir.
func (vfs *VirtualFilesystem) Rmdir(ctx context.Context, proc ProcessContext, path string) error {
	if isRootPath(path) {
		return NewError(KindBusy, path)
	}
	parentMount, parentDentry, leaf, err := vfs.resolveParentAndLeaf(ctx, proc, path, 0)
	if err != nil {
		return err
	}
	defer parentMount.DecRef()
	defer parentDentry.DecRef()

	if leaf == "." || leaf == ".." {
		return NewError(KindInvalidPath, path)
	}
	if readOnly(parentMount) {
		return NewError(KindReadOnly, path)
	}

	child, err := vfs.lookupChild(ctx, parentDentry, leaf)
	if err != nil {
		return err
	}
	defer child.DecRef()
	if child.Inode() == nil || child.Inode().Mode() != ModeDirectory {
		return NewError(KindNotDirectory, path)
	}
	if child.MountCount() > 0 {
		return NewError(KindBusy, path)
	}
	if child.hasChildren() || child.Inode().Size() != 0 {
		return NewError(KindNotEmpty, path)
	}

	dirInode := parentDentry.Inode()
	if dirInode.InodeOps.Rmdir == nil {
		return ErrNotSupported
	}
	if err := dirInode.InodeOps.Rmdir(ctx, dirInode, leaf, child.Inode()); err != nil {
		return WrapDriverError(path, err)
	}
	child.Inode().markDeleted()
	parentDentry.removeChildLocked(leaf)
	vfslog.Debugf("vfs: rmdir %s", path)
	return nil
}

// Rename implements vfs_rename.
func (vfs *VirtualFilesystem) Rename(ctx context.Context, proc ProcessContext, oldPath, newPath string) error {
	oldParentMount, oldParentDentry, oldLeaf, err := vfs.resolveParentAndLeaf(ctx, proc, oldPath, 0)
	if err != nil {
		return err
	}
	defer oldParentMount.DecRef()
	defer oldParentDentry.DecRef()
	if oldLeaf == "." || oldLeaf == ".." {
		return NewError(KindInvalidPath, oldPath)
	}

	newParentMount, newParentDentry, newLeaf, err := vfs.resolveParentAndLeaf(ctx, proc, newPath, 0)
	if err != nil {
		return err
	}
	defer newParentMount.DecRef()
	defer newParentDentry.DecRef()
	if newLeaf == "." || newLeaf == ".." {
		return NewError(KindInvalidPath, newPath)
	}

	if oldParentMount != newParentMount {
		return NewError(KindCrossDevice, newPath)
	}
	if oldParentDentry == newParentDentry && oldLeaf == newLeaf {
		return NewError(KindInvalidPath, newPath) // rename to self
	}
	if readOnly(oldParentMount) {
		return NewError(KindReadOnly, oldPath)
	}

	oldDentry, err := vfs.lookupChild(ctx, oldParentDentry, oldLeaf)
	if err != nil {
		return err
	}
	defer oldDentry.DecRef()

	var newDentry *Dentry
	var newExisted bool
	if existing, err := vfs.lookupChild(ctx, newParentDentry, newLeaf); err == nil {
		newExisted = true
		newDentry = existing
		if newDentry.Inode() != nil && newDentry.Inode().Mode() == ModeDirectory {
			if oldDentry.Inode() == nil || oldDentry.Inode().Mode() != ModeDirectory {
				newDentry.DecRef()
				return NewError(KindIsDirectory, newPath)
			}
			if newDentry.hasChildren() || newDentry.Inode().Size() != 0 {
				newDentry.DecRef()
				return NewError(KindNotEmpty, newPath)
			}
		}
	} else {
		newDentry = newChildDentry(newParentDentry, newLeaf)
	}
	defer newDentry.DecRef()

	dirInode := oldParentDentry.Inode()
	if dirInode.InodeOps.Rename == nil {
		return ErrNotSupported
	}
	if err := dirInode.InodeOps.Rename(ctx, dirInode, oldDentry, newParentDentry.Inode(), newDentry); err != nil {
		return WrapDriverError(oldPath, err)
	}

	if newExisted {
		if newDentry.Inode().DropLink() == 0 {
			newDentry.Inode().markInvalid()
		}
		newParentDentry.removeChildLocked(newLeaf)
	}

	oldParentDentry.removeChildLocked(oldLeaf)
	oldDentry.setParent(newParentDentry, newLeaf)
	newParentDentry.insertChildLocked(newLeaf, oldDentry)
	vfslog.Debugf("vfs: rename %s -> %s", oldPath, newPath)
	return nil
}

// Truncate implements vfs_truncate.
func (vfs *VirtualFilesystem) Truncate(ctx context.Context, proc ProcessContext, path string, size int64) error {
	mount, dentry, err := vfs.resolvePath(ctx, proc, path, ReadLink)
	if err != nil {
		return err
	}
	defer mount.DecRef()
	defer dentry.DecRef()

	if dentry.Inode() == nil || dentry.Inode().Mode() == ModeDirectory {
		return NewError(KindIsDirectory, path)
	}
	if readOnly(mount) {
		return NewError(KindReadOnly, path)
	}
	inode := dentry.Inode()
	if inode.InodeOps.Truncate == nil {
		return ErrNotSupported
	}
	if err := inode.InodeOps.Truncate(ctx, inode, size); err != nil {
		return WrapDriverError(path, err)
	}
	inode.SetSize(size)
	return nil
}

// Stat implements vfs_getattr.
func (vfs *VirtualFilesystem) Stat(ctx context.Context, proc ProcessContext, path string, resolveFlags ResolveFlags) (Stat, error) {
	mount, dentry, err := vfs.resolvePath(ctx, proc, path, resolveFlags)
	if err != nil {
		return Stat{}, err
	}
	defer mount.DecRef()
	defer dentry.DecRef()

	inode := dentry.Inode()
	if inode == nil {
		return Stat{}, NewError(KindNotFound, path)
	}
	entryCount := 0
	if inode.Mode() == ModeDirectory {
		entryCount = int(inode.Size())
	}
	sb := inode.Superblock()
	return inode.Stat(sb.Device.asUint64(), sb.BlockSize, entryCount, timespecFrom(proc.Now())), nil
}

// StatFS implements statfs dispatch, for the mount
// containing path.
func (vfs *VirtualFilesystem) StatFS(ctx context.Context, proc ProcessContext, path string) (Statfs, error) {
	mount, dentry, err := vfs.resolvePath(ctx, proc, path, ReadLink)
	if err != nil {
		return Statfs{}, err
	}
	defer mount.DecRef()
	defer dentry.DecRef()
	return mount.Superblock().StatFS(ctx)
}

// SetXattr implements vfs_setxattr.
func (vfs *VirtualFilesystem) SetXattr(ctx context.Context, proc ProcessContext, path, key string, value []byte) error {
	mount, dentry, err := vfs.resolvePath(ctx, proc, path, ReadLink)
	if err != nil {
		return err
	}
	defer mount.DecRef()
	defer dentry.DecRef()
	if readOnly(mount) {
		return NewError(KindReadOnly, path)
	}
	ops := dentry.Inode().InodeOps
	if ops.SetAttr == nil {
		return ErrNotSupported
	}
	return WrapDriverError(path, ops.SetAttr(ctx, dentry, key, value))
}

// GetXattr implements vfs_getxattr; an empty buf probes the
// required length .
func (vfs *VirtualFilesystem) GetXattr(ctx context.Context, proc ProcessContext, path, key string, buf []byte) (int, error) {
	mount, dentry, err := vfs.resolvePath(ctx, proc, path, ReadLink)
	if err != nil {
		return 0, err
	}
	defer mount.DecRef()
	defer dentry.DecRef()
	ops := dentry.Inode().InodeOps
	if ops.GetAttr == nil {
		return 0, ErrNotSupported
	}
	n, err := ops.GetAttr(ctx, dentry, key, buf)
	if err != nil {
		return n, WrapDriverError(path, err)
	}
	return n, nil
}

// ListXattr implements vfs_listxattr.
func (vfs *VirtualFilesystem) ListXattr(ctx context.Context, proc ProcessContext, path string, buf []byte) (int, error) {
	mount, dentry, err := vfs.resolvePath(ctx, proc, path, ReadLink)
	if err != nil {
		return 0, err
	}
	defer mount.DecRef()
	defer dentry.DecRef()
	ops := dentry.Inode().InodeOps
	if ops.ListAttr == nil {
		return 0, ErrNotSupported
	}
	n, err := ops.ListAttr(ctx, dentry, buf)
	if err != nil {
		return n, WrapDriverError(path, err)
	}
	return n, nil
}

// RemoveXattr implements vfs_removexattr.
func (vfs *VirtualFilesystem) RemoveXattr(ctx context.Context, proc ProcessContext, path, key string) error {
	mount, dentry, err := vfs.resolvePath(ctx, proc, path, ReadLink)
	if err != nil {
		return err
	}
	defer mount.DecRef()
	defer dentry.DecRef()
	if readOnly(mount) {
		return NewError(KindReadOnly, path)
	}
	ops := dentry.Inode().InodeOps
	if ops.RemoveAttr == nil {
		return ErrNotSupported
	}
	return WrapDriverError(path, ops.RemoveAttr(ctx, dentry, key))
}

func isRootPath(path string) bool {
	trimmed := strings.TrimRight(path, "/")
	return trimmed == "" || trimmed == "."
}

func (d DeviceID) asUint64() uint64 { return uint64(d.Major)<<32 | uint64(d.Minor) }
