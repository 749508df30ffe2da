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

	"github.com/google/btree"

	"github.com/coriolisfs/vfs/internal/vfslog"
)

// Mount is an attachment point: a mounted superblock's root
// dentry exposed as a subtree of another mount.
//
// Concurrency: mu guards parent-weak, covered, and the children set, per
// per-mount lock. Flags, DeviceName, and sb are immutable
// after construction (there's no remount operation), so they're read
// without mu.
type Mount struct {
	refCount

	id uint64 // monotonic, used only to order the global mount set deterministically

	Flags      uint32
	DeviceName string
	sb         *Superblock // strong

	mu       sync.Mutex
	parent   weakMount
	covered  *Dentry // strong reference; the dentry in the parent mount that this mount covers, nil for the root mount
	children map[*Mount]struct{}
}

// Superblock returns the superblock this mount attaches.
func (m *Mount) Superblock() *Superblock { return m.sb }

// Root returns the mounted superblock's root dentry.
func (m *Mount) Root() *Dentry { return m.sb.Root() }

// Parent upgrades the weak parent-mount reference. Returns nil for the root
// mount, whose parent-weak-ref is never installed
// (represented here simply as no parent).
func (m *Mount) Parent() *Mount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parent.upgrade()
}

// Covered returns the dentry in the parent mount this mount is attached
// over, or nil for the root mount.
func (m *Mount) Covered() *Dentry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.covered
}

func (m *Mount) hasChildren() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children) > 0
}

func (m *Mount) destroy() {
	vfslog.Debugf("vfs: mount %s dropped from mount set", m.DeviceName)
	m.sb.DecRef()
}

type mountEntry struct {
	id uint64
	m  *Mount
}

func mountEntryLess(a, b mountEntry) bool { return a.id < b.id }

// VirtualFilesystem is the top-level object tying the filesystem-type
// registry together with the process-wide mount set, // ("The mount set and filesystem-type set are process-wide"). It is the
// Go analogue of VirtualFilesystem type.
type VirtualFilesystem struct {
	Registry *Registry

	mountMu     sync.RWMutex
	mounts      *btree.BTreeG[mountEntry] // global mount set, ordered for deterministic advance_mount scans
	nextMountID uint64

	root *Mount // the root mount, set once by Bootstrap
}

// NewVirtualFilesystem constructs an empty VFS with its own registry and
// mount set.
func NewVirtualFilesystem() *VirtualFilesystem {
	return &VirtualFilesystem{
		Registry: NewRegistry(),
		mounts:   btree.NewG(32, mountEntryLess),
	}
}

// Bootstrap mounts fsTypeName as the process root, equivalent to
// mount_rootfs(). It must be called exactly once, before
// any path resolution.
func (vfs *VirtualFilesystem) Bootstrap(ctx context.Context, fsTypeName, deviceName string, flags uint32, data string) (*Mount, error) {
	sb, err := vfs.getSuperblock(ctx, fsTypeName, deviceName, flags, data)
	if err != nil {
		return nil, err
	}
	m := vfs.newMount(sb, flags, deviceName)
	vfs.mountMu.Lock()
	vfs.root = m
	vfs.mountMu.Unlock()
	vfslog.Infof("vfs: bootstrapped root filesystem %q on device %q", fsTypeName, deviceName)
	return m, nil
}

// RootMount returns the process root mount installed by Bootstrap.
func (vfs *VirtualFilesystem) RootMount() *Mount {
	vfs.mountMu.RLock()
	defer vfs.mountMu.RUnlock()
	return vfs.root
}

func (vfs *VirtualFilesystem) newMount(sb *Superblock, flags uint32, deviceName string) *Mount {
	vfs.mountMu.Lock()
	vfs.nextMountID++
	id := vfs.nextMountID
	vfs.mountMu.Unlock()
	sb.IncRef()
	m := &Mount{id: id, Flags: flags, DeviceName: deviceName, sb: sb}
	m.refCount.init(func() { m.destroy() })
	return m
}

func (vfs *VirtualFilesystem) getSuperblock(ctx context.Context, fsTypeName, deviceName string, flags uint32, data string) (*Superblock, error) {
	t, err := vfs.Registry.LookupFilesystem(fsTypeName)
	if err != nil {
		return nil, err
	}
	sb, err := t.GetSuper(ctx, t, deviceName, flags, data)
	if err != nil {
		return nil, err
	}
	return sb, nil
}

// DoMount implements do_mount: resolve dir, obtain (or
// reuse) a superblock, and graft the new mount at dir.
//
// User-initiated calls must not be able to attach MNT_INTERNAL mounts;
// pass allowInternal=false for those callers.
func (vfs *VirtualFilesystem) DoMount(ctx context.Context, proc ProcessContext, dirPath, fsTypeName, deviceName string, flags uint32, data string, allowInternal bool) (*Mount, error) {
	if !allowInternal && flags&MntInternal != 0 {
		return nil, NewError(KindPermissionDenied, dirPath)
	}
	rm, rd, err := vfs.resolvePath(ctx, proc, dirPath, ReadLink)
	if err != nil {
		return nil, err
	}
	defer rm.DecRef()
	defer rd.DecRef()

	sb, err := vfs.getSuperblockForMount(ctx, fsTypeName, deviceName, flags, data)
	if err != nil {
		return nil, err
	}

	newMount := vfs.newMount(sb, flags, deviceName)
	if err := vfs.graftTree(ctx, rm, rd, newMount); err != nil {
		newMount.DecRef()
		return nil, err
	}
	vfslog.Infof("vfs: mounted %q (%s) at %s", fsTypeName, deviceName, dirPath)
	return newMount, nil
}

// getSuperblockForMount is do_kernel_mount's superblock half: look up the
// type, consult its superblock list to possibly
// reuse, else call the factory and insert the freshly created superblock
// into the type's list (addSuperblock).
func (vfs *VirtualFilesystem) getSuperblockForMount(ctx context.Context, fsTypeName, deviceName string, flags uint32, data string) (*Superblock, error) {
	t, err := vfs.Registry.LookupFilesystem(fsTypeName)
	if err != nil {
		return nil, err
	}
	if reused := t.FindSuperblock(func(sb *Superblock) bool { return sb.DeviceName == deviceName }); reused != nil {
		reused.IncRef()
		return reused, nil
	}
	sb, err := t.GetSuper(ctx, t, deviceName, flags, data)
	if err != nil {
		return nil, err
	}
	t.addSuperblock(sb)
	return sb, nil
}

// graftTree validates and attaches newMount at
// (coveringMount, coveredDentry).
func (vfs *VirtualFilesystem) graftTree(ctx context.Context, coveringMount *Mount, coveredDentry *Dentry, newMount *Mount) error {
	root := newMount.Root()
	if coveredDentry.Inode() == nil || coveredDentry.Inode().Mode() != ModeDirectory {
		return NewError(KindNotDirectory, coveredDentry.Name())
	}
	if root.Inode() == nil || root.Inode().Mode() != ModeDirectory {
		return NewError(KindNotDirectory, "")
	}
	if coveredDentry.Inode().Flag() == FlagDeleted {
		return NewError(KindNotFound, coveredDentry.Name())
	}
	if root.Inode().Mode() == ModeSymlink {
		return NewError(KindSymlinkLoop, "")
	}

	coveredDentry.IncRef() // Mount.covered is a strong reference: the dentry must outlive DoMount's own caller-held reference, for as long as it remains mounted-over.

	newMount.mu.Lock()
	newMount.parent.m = coveringMount
	newMount.covered = coveredDentry
	newMount.mu.Unlock()

	coveringMount.mu.Lock()
	if coveringMount.children == nil {
		coveringMount.children = make(map[*Mount]struct{})
	}
	coveringMount.children[newMount] = struct{}{}
	coveringMount.mu.Unlock()
	coveringMount.IncRef() // newMount's parent-weak target must stay alive while it resolves; paired with DecRef in DoUmount / detach.

	coveredDentry.incMountCount()

	vfs.mountMu.Lock()
	vfs.mounts.ReplaceOrInsert(mountEntry{id: newMount.id, m: newMount})
	vfs.mountMu.Unlock()
	newMount.IncRef() // the global mount set's own reference

	return nil
}

// DoUmount implements do_umount: fails if m has children,
// otherwise detaches it from its parent and the global mount set.
func (vfs *VirtualFilesystem) DoUmount(ctx context.Context, m *Mount) error {
	if m.hasChildren() {
		return NewError(KindBusy, m.DeviceName)
	}
	parent := m.Parent()
	if parent == nil {
		return NewError(KindBusy, m.DeviceName) // cannot unmount the root
	}
	defer parent.DecRef()

	m.mu.Lock()
	covered := m.covered
	m.covered = nil
	m.parent.m = nil
	m.mu.Unlock()

	if covered != nil {
		covered.decMountCount()
		covered.DecRef() // undo graftTree's strong reference
	}

	parent.mu.Lock()
	delete(parent.children, m)
	parent.mu.Unlock()
	parent.DecRef() // undo graftTree's IncRef on the parent

	vfs.mountMu.Lock()
	vfs.mounts.Delete(mountEntry{id: m.id})
	vfs.mountMu.Unlock()
	m.DecRef() // undo the global mount set's own reference

	vfslog.Infof("vfs: unmounted %s", m.DeviceName)
	return nil
}

// advanceMount implements mount-point crossing: while child's mount_count is
// nonzero, find the mount covering it whose parent is current, and descend
// into that mount's root, repeating until no further mount covers the
// result.
//
// Takes ownership of one reference on current and child; returns a new pair
// each holding exactly one reference, which the caller must eventually
// release.
func (vfs *VirtualFilesystem) advanceMount(current *Mount, child *Dentry) (*Mount, *Dentry) {
	curMount, curDentry := current, child
	for curDentry.MountCount() > 0 {
		next := vfs.findChildMount(curMount, curDentry) // returns an owned reference, or nil
		if next == nil {
			break
		}
		// next's Superblock is pinned alive by the reference we now hold on
		// next (Mount -> Superblock is a strong reference), so next's root
		// dentry -- retained for the superblock's entire lifetime per
		//  -- is safe to IncRef here.
		root := next.Root()
		root.IncRef()
		curDentry.DecRef()
		curMount.DecRef()
		curMount, curDentry = next, root
	}
	return curMount, curDentry
}

// findChildMount scans the global mount set for the mount whose parent is
// parent and whose covered dentry is covered, returning it with an extra
// reference taken while still holding the mount-set lock, to avoid a race
// against a concurrent DoUmount dropping the last reference between the
// scan and the IncRef.
func (vfs *VirtualFilesystem) findChildMount(parent *Mount, covered *Dentry) *Mount {
	vfs.mountMu.RLock()
	defer vfs.mountMu.RUnlock()
	var found *Mount
	vfs.mounts.Ascend(func(e mountEntry) bool {
		m := e.m
		m.mu.Lock()
		match := m.covered == covered && m.parent.m == parent
		m.mu.Unlock()
		if match && m.TryIncRef() {
			found = m
			return false
		}
		return true
	})
	return found
}
