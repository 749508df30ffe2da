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

// GetSuperFunc is a FilesystemType's superblock factory (// get_super). DoMount consults FindSuperblock (matching on device name)
// before calling it, so it is only invoked when a fresh Superblock is needed.
type GetSuperFunc func(ctx context.Context, fsType *FilesystemType, deviceName string, flags uint32, data string) (*Superblock, error)

// KillSuperFunc is a FilesystemType's superblock destructor (// kill_super), invoked once a superblock's reference count in the mount set
// reaches zero.
type KillSuperFunc func(ctx context.Context, sb *Superblock)

// FilesystemType is a named driver registration, .
type FilesystemType struct {
	Name       string
	Attributes uint32
	GetSuper   GetSuperFunc
	KillSuper  KillSuperFunc

	mu   sync.Mutex
	sbs  *btree.BTreeG[sbEntry] // ordered by a monotonic id, for deterministic find_super_blk scans
	next uint64
}

type sbEntry struct {
	id uint64
	sb *Superblock
}

func sbEntryLess(a, b sbEntry) bool { return a.id < b.id }

func newFilesystemType(name string, attrs uint32, get GetSuperFunc, kill KillSuperFunc) *FilesystemType {
	return &FilesystemType{
		Name:       name,
		Attributes: attrs,
		GetSuper:   get,
		KillSuper:  kill,
		sbs:        btree.NewG(32, sbEntryLess),
	}
}

// addSuperblock records sb as produced by this type. Called by the core
// after GetSuper returns a freshly created (not reused) superblock: a
// newly created superblock is inserted by the core after
// the factory returns.
func (t *FilesystemType) addSuperblock(sb *Superblock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.sbs.ReplaceOrInsert(sbEntry{id: t.next, sb: sb})
}

func (t *FilesystemType) removeSuperblock(sb *Superblock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sbs.Ascend(func(e sbEntry) bool {
		if e.sb == sb {
			t.sbs.Delete(e)
			return false
		}
		return true
	})
}

// FindSuperblock scans this type's superblock list for one accepted by
// predicate: find_super_blk(type, predicate) scans a type's superblock
// list; DoMount calls it before get_super to decide whether to reuse an
// existing superblock or create a fresh one.
func (t *FilesystemType) FindSuperblock(predicate func(*Superblock) bool) *Superblock {
	t.mu.Lock()
	defer t.mu.Unlock()
	var found *Superblock
	t.sbs.Ascend(func(e sbEntry) bool {
		if predicate(e.sb) {
			found = e.sb
			return false
		}
		return true
	})
	return found
}

// Registry is the process-wide table of FilesystemTypes. It
// is a single reader-writer lock over the list of filesystem
// types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*FilesystemType
}

// NewRegistry constructs an empty registry. Most callers share one Registry
// via a VirtualFilesystem; tests may construct their own for isolation.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*FilesystemType)}
}

// RegisterFilesystem appends a new FilesystemType. Returns ErrAlreadyExists
// if the name is already registered.
func (r *Registry) RegisterFilesystem(name string, attrs uint32, get GetSuperFunc, kill KillSuperFunc) (*FilesystemType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[name]; ok {
		return nil, NewError(KindAlreadyExists, name)
	}
	t := newFilesystemType(name, attrs, get, kill)
	r.types[name] = t
	vfslog.Infof("vfs: registered filesystem type %q", name)
	return t, nil
}

// UnregisterFilesystem removes name from the registry.
func (r *Registry) UnregisterFilesystem(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[name]; !ok {
		return NewError(KindNotFound, name)
	}
	delete(r.types, name)
	vfslog.Infof("vfs: unregistered filesystem type %q", name)
	return nil
}

// LookupFilesystem returns the registered type named name.
func (r *Registry) LookupFilesystem(name string) (*FilesystemType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, NewError(KindNotFound, name)
	}
	return t, nil
}
