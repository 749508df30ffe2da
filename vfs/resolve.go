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
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/coriolisfs/vfs/internal/vfslog"
)

// LookupState is the resolver's mutable per-walk state, threaded through
// FollowLink so a driver's symlink callback can push a target without
// performing I/O itself.
//
// A LookupState owns exactly one reference each on mount and dentry at any
// point during a walk; the caller of resolvePath receives that single owned
// pair.
type LookupState struct {
	vfs  *VirtualFilesystem
	proc ProcessContext

	mount  *Mount
	dentry *Dentry

	flags ResolveFlags

	nested int // symlinks followed so far on this walk

	// symlinkTargets is the "push the link target string" scratch slot a
	// FollowLink callback writes to; followLink pops it immediately after
	// the callback returns, so it never holds more than one entry across a
	// public call.
	symlinkTargets []string
}

// PushSymlinkTarget records target as the symlink's destination. Drivers
// call this from their InodeOps.FollowLink implementation instead of
// performing I/O themselves.
func (s *LookupState) PushSymlinkTarget(target string) {
	s.symlinkTargets = append(s.symlinkTargets, target)
}

// componentsOf splits path into non-empty components, also reporting whether
// the original string ended in a trailing slash: a trailing
// slash forces directory resolution of the last component.
func componentsOf(path string) (comps []string, endsInSlash bool) {
	endsInSlash = strings.HasSuffix(path, "/") && path != "/"
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return comps, endsInSlash
}

// resolvePath is the entry point for path_walk: resolve path
// against proc's root/cwd, honoring flags. Returns an owned (mount, dentry)
// pair the caller must DecRef.
func (vfs *VirtualFilesystem) resolvePath(ctx context.Context, proc ProcessContext, path string, flags ResolveFlags) (*Mount, *Dentry, error) {
	if path == "" {
		if !flags.has(Empty) {
			return nil, nil, NewError(KindInvalidPath, path)
		}
		m, d := proc.Cwd()
		m.IncRef()
		d.IncRef()
		return m, d, nil
	}

	var startMount *Mount
	var startDentry *Dentry
	if strings.HasPrefix(path, "/") {
		startMount, startDentry = proc.Root()
	} else {
		startMount, startDentry = proc.Cwd()
	}
	startMount.IncRef()
	startDentry.IncRef()

	s := &LookupState{
		vfs:    vfs,
		proc:   proc,
		mount:  startMount,
		dentry: startDentry,
		flags:  flags,
	}

	if err := s.walk(ctx, path); err != nil {
		s.dentry.DecRef()
		s.mount.DecRef()
		return nil, nil, err
	}
	return s.mount, s.dentry, nil
}

// resolveParentAndLeaf resolves all but the last component of path,
// returning the parent (mount, dentry) plus the last
// component's raw name, for the create/delete/rename family of operations
// in vfs.go.
func (vfs *VirtualFilesystem) resolveParentAndLeaf(ctx context.Context, proc ProcessContext, path string, flags ResolveFlags) (*Mount, *Dentry, string, error) {
	comps, _ := componentsOf(path)
	if len(comps) == 0 {
		return nil, nil, "", NewError(KindInvalidPath, path)
	}
	leaf := comps[len(comps)-1]
	m, d, err := vfs.resolvePath(ctx, proc, path, flags|NoLast)
	if err != nil {
		return nil, nil, "", err
	}
	return m, d, leaf, nil
}

// walk resolves path's components in order, starting from s's current
// (mount, dentry). A symlink encountered mid-walk is expanded immediately:
// its target is combined with the remaining, not-yet-processed components
// and the whole thing is re-walked from the symlink's containing directory:
// the pushed target is resolved relative to
// the caller's current dir and mount; an absolute target resets the walk
// base.
func (s *LookupState) walk(ctx context.Context, path string) error {
	if strings.HasPrefix(path, "/") {
		root, rootDentry := s.proc.Root()
		root.IncRef()
		rootDentry.IncRef()
		s.mount.DecRef()
		s.dentry.DecRef()
		s.mount, s.dentry = root, rootDentry
	}

	comps, endsInSlash := componentsOf(path)
	if len(comps) == 0 {
		if s.flags.has(Directory) && s.dentry.Inode() != nil && s.dentry.Inode().Mode() != ModeDirectory {
			return NewError(KindNotDirectory, path)
		}
		return nil
	}

	for i, comp := range comps {
		last := i == len(comps)-1
		if last && s.flags.has(NoLast) {
			// Stop with s.dentry at the parent of the last component; the
			// caller (e.g. do_mount, create-side operations) resolves the
			// final name itself.
			break
		}
		switch comp {
		case ".":
			continue
		case "..":
			if err := s.recede(ctx); err != nil {
				return err
			}
			continue
		}

		wantDir := !last || endsInSlash || s.flags.has(Directory)
		target, followed, err := s.step(ctx, comp, last, wantDir)
		if err != nil {
			return err
		}
		if followed {
			remainder := strings.Join(comps[i+1:], "/")
			combined := target
			if remainder != "" {
				combined = strings.TrimRight(target, "/") + "/" + remainder
			}
			if endsInSlash && !strings.HasSuffix(combined, "/") {
				combined += "/"
			}
			return s.walk(ctx, combined)
		}
	}
	return nil
}

// step resolves one path component under s.dentry, which must be a
// directory. On a plain (non-symlink, or already-terminal-symlink) result,
// it installs the new (mount, dentry) into s and returns ("", false, nil).
// On a followable symlink it returns (target, true, nil) without mutating
// s.mount/s.dentry beyond pointing them at the symlink's containing
// directory, leaving the caller (walk) to recurse on the combined path.
//
// last indicates this is the final path component, which governs whether a
// symlink result is followed (only if ReadLink was requested, or wantDir is
// set — a trailing slash on the last component forces ReadLink|Directory)
// or returned as itself. wantDir requires the final resolved target to be
// a directory.
func (s *LookupState) step(ctx context.Context, name string, last, wantDir bool) (string, bool, error) {
	parentMount, parentDentry := s.mount, s.dentry
	if parentDentry.Inode() == nil || parentDentry.Inode().Mode() != ModeDirectory {
		return "", false, NewError(KindNotDirectory, name)
	}

	child, err := s.vfs.lookupChild(ctx, parentDentry, name)
	if err != nil {
		return "", false, err
	}

	// advanceMount consumes parentMount's single reference (folding it into
	// whatever mount the walk should continue in) and child's single
	// reference, returning a new owned pair.
	childMount, childDentry := s.vfs.advanceMount(parentMount, child)

	if childDentry.Inode() != nil && childDentry.Inode().Mode() == ModeSymlink && (!last || wantDir || s.flags.has(ReadLink)) {
		target, err := s.followLink(ctx, childMount, parentDentry, childDentry)
		if err != nil {
			return "", false, err
		}
		return target, true, nil
	}

	if wantDir && (childDentry.Inode() == nil || childDentry.Inode().Mode() != ModeDirectory) {
		childDentry.DecRef()
		s.mount = childMount // s keeps (childMount, parentDentry) for resolvePath to release
		return "", false, NewError(KindNotDirectory, name)
	}

	parentDentry.DecRef()
	s.mount, s.dentry = childMount, childDentry
	return "", false, nil
}

// recede implements "..": climb to the parent dentry
// within the same mount, or, if already at a mount root, cross into the
// covering mount first. At the process root, ".." is a no-op.
func (s *LookupState) recede(ctx context.Context) error {
	procRootMount, procRootDentry := s.proc.Root()
	for {
		if s.mount == procRootMount && s.dentry == procRootDentry {
			return nil
		}
		if s.dentry != s.mount.Root() {
			break
		}
		parentMount := s.mount.Parent()
		if parentMount == nil {
			return nil // the root mount has no parent
		}
		covered := s.mount.Covered()
		if covered == nil {
			parentMount.DecRef()
			return nil
		}
		covered.IncRef() // Covered() returns a borrowed pointer
		s.dentry.DecRef()
		s.mount.DecRef()
		s.mount, s.dentry = parentMount, covered
	}

	parent := s.dentry.Parent()
	if parent == nil {
		return nil
	}
	s.dentry.DecRef()
	s.dentry = parent
	return nil
}

// followLink implements advance_link: bump the
// per-walk nested counter, invoke the driver's FollowLink to obtain a target
// string via PushSymlinkTarget, park s.mount/s.dentry at containingDir (the
// directory holding the symlink), and return the target string for walk to
// recurse on.
func (s *LookupState) followLink(ctx context.Context, linkMount *Mount, containingDir *Dentry, linkDentry *Dentry) (string, error) {
	s.nested++
	// On every error below, s keeps (linkMount, containingDir) so that
	// resolvePath releases each exactly once.
	if s.nested > s.proc.MaxLinkCount() || s.proc.ExceedsNestedLinkLimit(s.nested) {
		linkDentry.DecRef()
		s.mount = linkMount
		return "", NewError(KindTooManySymlinks, linkDentry.Name())
	}

	ops := linkDentry.Inode().InodeOps
	if ops.FollowLink == nil {
		linkDentry.DecRef()
		s.mount = linkMount
		return "", ErrNotSupported
	}

	before := len(s.symlinkTargets)
	if err := ops.FollowLink(ctx, linkDentry, s); err != nil {
		linkDentry.DecRef()
		s.mount = linkMount
		return "", WrapDriverError(linkDentry.Name(), err)
	}
	if len(s.symlinkTargets) == before {
		linkDentry.DecRef()
		s.mount = linkMount
		return "", NewError(KindDriverError, linkDentry.Name())
	}

	n := len(s.symlinkTargets) - 1
	target := s.symlinkTargets[n]
	s.symlinkTargets = s.symlinkTargets[:n]

	linkDentry.DecRef() // the symlink itself never becomes part of the resolved chain
	s.mount, s.dentry = linkMount, containingDir
	vfslog.Debugf("vfs: followed symlink %q (depth %d)", linkDentry.Name(), s.nested)
	return target, nil
}

var dentryLookupGroup singleflight.Group

// lookupChild resolves name under dir: a cache hit is served directly; a
// miss invokes the driver's Lookup callback, with concurrent misses for the
// same (dir, name) deduplicated via singleflight: a
// dentry-cache miss may be served by a single in-flight driver lookup
// shared across concurrent callers.
//
// Returns an owned reference on the result.
func (vfs *VirtualFilesystem) lookupChild(ctx context.Context, dir *Dentry, name string) (*Dentry, error) {
	if cached, ok := dir.lookupChild(name); ok && cached.TryIncRef() {
		if cached.ops.Revalidate == nil || cached.ops.Revalidate(ctx, cached) {
			return cached, nil
		}
		cached.DecRef()
		dir.removeChildLocked(name) // drop the stale entry so the driver's Lookup runs again
	}

	key := fmt.Sprintf("%p/%s", dir, name)
	v, err, _ := dentryLookupGroup.Do(key, func() (interface{}, error) {
		if cached, ok := dir.lookupChild(name); ok {
			return cached, nil
		}

		dirInode := dir.Inode()
		if dirInode == nil || dirInode.InodeOps.Lookup == nil {
			return nil, NewError(KindNotFound, name)
		}

		inode, err := dirInode.InodeOps.Lookup(ctx, dirInode, name)
		if err != nil {
			return nil, WrapDriverError(name, err)
		}

		candidate := newChildDentry(dir, name)
		candidate.setInode(inode)
		dir.insertChildLocked(name, candidate)
		return candidate, nil
	})
	if err != nil {
		return nil, err
	}

	// v is a dentry already kept alive by the cache (one baseline reference
	// owned by dir.children); every caller of lookupChild -- whether it
	// executed the singleflight function or joined an in-flight call --
	// must take its own reference here, with a fallback retry on the rare
	// race where the entry was evicted and destroyed in between.
	result := v.(*Dentry)
	if !result.TryIncRef() {
		return vfs.lookupChild(ctx, dir, name)
	}
	return result, nil
}
