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

	"github.com/coriolisfs/vfs/internal/vfslog"
)

// DentryOps is the (minor) dentry-ops vtable of the data model.
// Unlike InodeOps/SuperblockOps/FileOps, the driver contract names only
// the three major vtables; DentryOps exists purely as the
// extension point the data model mentions, with every slot optional.
type DentryOps struct {
	// Revalidate is consulted before trusting a cached child dentry; if it
	// returns false the resolver treats the entry as a cache miss and calls
	// Inode.Lookup again. A nil Revalidate always trusts the cache, which is
	// correct for every driver in this module (memfs/tmpfs/devfs never
	// mutate out from under the cache).
	Revalidate func(ctx context.Context, d *Dentry) bool
}

// Dentry is a name bound to an inode inside a parent dentry, .
//
// Concurrency: mu guards every mutable field below, // per-dentry lock discipline (name, parent-weak, children, mount_count,
// inode pointer). This is a direct simplification of // pkg/sentry/vfs/dentry.go, which also guards dead/evictable state and a
// DentryImpl behind one mu; here the "impl" is folded directly into the
// struct since this spec has no analogue of gVisor's separately-pluggable
// DentryImpl (each spliced or root Dentry has exactly one Inode; only a
// not-yet-populated placeholder has none).
type Dentry struct {
	refCount

	mu sync.Mutex

	name       string
	parent     weakDentry
	children   map[string]*Dentry
	mountCount uint32
	inode      *Inode
	ops        DentryOps
}

// NewRootDentry constructs the root dentry of a freshly created superblock.
// Its parent-weak is left empty, satisfying invariant that the
// root dentry "is its own parent or has no parent." Exported for driver
// packages' GetSuperFunc implementations (get_super is
// expected to create its own root inode and dentry, then call
// Superblock.SetRoot).
func NewRootDentry(inode *Inode, ops DentryOps) *Dentry {
	d := &Dentry{inode: inode, ops: ops, name: ""}
	d.refCount.init(func() { d.destroy() })
	return d
}

// newChildDentry constructs a placeholder dentry for name under parent, with
// an empty inode. Create-side
// operations build a fresh dentry with name and parent set but an empty
// inode, hand it to the driver callback, and splice it into the parent's
// cache only on success.
//
// Precondition: caller holds a reference on parent, transferred to the new
// dentry's parent-weak bookkeeping (the weak ref itself does not consume
// that reference; insertChildLocked takes the strong ref the child holds on
// its parent).
func newChildDentry(parent *Dentry, name string) *Dentry {
	d := &Dentry{name: name}
	d.parent.d = parent
	d.refCount.init(func() { d.destroy() })
	return d
}

func (d *Dentry) destroy() {
	d.mu.Lock()
	inode := d.inode
	d.inode = nil
	d.mu.Unlock()
	if inode != nil {
		inode.DecRef()
	}
}

// Name returns the dentry's current name.
func (d *Dentry) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// Inode returns the dentry's strongly-held inode. Never nil for a dentry
// that has been spliced into a parent or is a superblock root; may be nil
// for a not-yet-populated placeholder.
func (d *Dentry) Inode() *Inode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inode
}

// setInode installs inode as this dentry's target, taking ownership of the
// reference the caller holds on it (the driver callback that created inode
// is expected to hand it over with exactly one reference belonging to this
// dentry). Used both at placeholder-completion time and by Lookup.
func (d *Dentry) setInode(inode *Inode) {
	d.mu.Lock()
	d.inode = inode
	d.mu.Unlock()
}

// Parent upgrades the weak parent reference. Returns nil if d is the root
// dentry, or if d's parent subtree has been detached .
// Returns a reference the caller must DecRef.
func (d *Dentry) Parent() *Dentry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parent.upgrade()
}

// setParent updates the weak parent reference, used by rename to retarget a
// moved dentry's name and parent-weak to its new location.
func (d *Dentry) setParent(p *Dentry, name string) {
	d.mu.Lock()
	d.parent.d = p
	d.name = name
	d.mu.Unlock()
}

// MountCount returns the number of superblock roots mounted on this dentry.
func (d *Dentry) MountCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mountCount
}

func (d *Dentry) incMountCount() {
	d.mu.Lock()
	d.mountCount++
	d.mu.Unlock()
}

func (d *Dentry) decMountCount() {
	d.mu.Lock()
	if d.mountCount > 0 {
		d.mountCount--
	}
	d.mu.Unlock()
}

// lookupChild returns the cached child named name, if any, without
// consulting the driver.
func (d *Dentry) lookupChild(name string) (*Dentry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.children[name]
	return c, ok
}

// insertChildLocked inserts child into d's children set. child must already
// have its parent-weak pointing at d (set by newChildDentry). child takes
// an extra reference on d (its parent), released by removeChildLocked.
//
// Precondition: d's underlying inode is a directory.
func (d *Dentry) insertChildLocked(name string, child *Dentry) {
	d.mu.Lock()
	if d.children == nil {
		d.children = make(map[string]*Dentry)
	}
	d.children[name] = child
	d.mu.Unlock()
	d.IncRef() // DecRef happens in removeChildLocked.
	vfslog.Debugf("vfs: dentry %q spliced under parent", name)
}

// removeChildLocked detaches name from d's children set, if present, and
// drops the reference insertChildLocked took on d.
func (d *Dentry) removeChildLocked(name string) {
	d.mu.Lock()
	_, ok := d.children[name]
	if ok {
		delete(d.children, name)
	}
	d.mu.Unlock()
	if ok {
		d.DecRef()
	}
}

// childrenSnapshot returns a copy of d's children set. Safe to range over
// without holding d.mu further.
func (d *Dentry) childrenSnapshot() map[string]*Dentry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]*Dentry, len(d.children))
	for k, v := range d.children {
		out[k] = v
	}
	return out
}

func (d *Dentry) hasChildren() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.children) > 0
}
