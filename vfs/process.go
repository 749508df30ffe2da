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
	"sync"
	"time"
)

// ProcessContext is the core-to-process contract: a small
// interface the host supplies so the resolver can find a starting point and
// enforce symlink-nesting limits, without the core itself owning any
// per-process state.
//
// Root and Cwd return borrowed (non-owning) references: callers that need
// to retain the result past the current call must IncRef explicitly, the
// same convention Superblock.Root and Mount.Root use.
type ProcessContext interface {
	// Root yields the process's root (mount, dentry).
	Root() (*Mount, *Dentry)
	// Cwd yields the process's current working directory (mount, dentry).
	Cwd() (*Mount, *Dentry)
	// ExceedsNestedLinkLimit decides whether nested, the number of symlinks
	// followed so far on the current walk (the same counter the core checks
	// against MaxLinkCount), has exceeded whatever policy the host enforces
	// (check_nested_link). The core keeps no cumulative per-process count. A
	// minimal host may always return false and rely
	// solely on the per-walk MaxLinkCount.
	ExceedsNestedLinkLimit(nested int) bool
	// MaxLinkCount publishes the maximum per-walk symlink nesting depth.
	MaxLinkCount() int
	// Now provides the current wall-clock time, used for timestamp fields
	// in Stat records (no timestamp update policy is enforced here;
	// this is the value callers of vfs_getattr receive).
	Now() time.Time
}

// DefaultMaxLinkCount is the per-walk symlink nesting limit used by
// SimpleProcessContext, matching common Unix defaults (e.g. Linux's
// MAXSYMLINKS).
const DefaultMaxLinkCount = 40

// SimpleProcessContext is a minimal in-process ProcessContext, grounded on
// a process-level root/cwd pair. It is not one of the three bundled
// filesystem drivers; it's a minimal host-contract stub, usable directly by
// tests and by any single-process embedding of this module.
type SimpleProcessContext struct {
	mu           sync.Mutex
	rootMount    *Mount
	rootDentry   *Dentry
	cwdMount     *Mount
	cwdDentry    *Dentry
	maxLinkCount int
}

// NewSimpleProcessContext constructs a context whose root and cwd are both
// rootMount/rootDentry. It takes its own references on them.
func NewSimpleProcessContext(rootMount *Mount, rootDentry *Dentry) *SimpleProcessContext {
	rootMount.IncRef()
	rootDentry.IncRef()
	rootMount.IncRef()
	rootDentry.IncRef()
	return &SimpleProcessContext{
		rootMount:    rootMount,
		rootDentry:   rootDentry,
		cwdMount:     rootMount,
		cwdDentry:    rootDentry,
		maxLinkCount: DefaultMaxLinkCount,
	}
}

func (p *SimpleProcessContext) Root() (*Mount, *Dentry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rootMount, p.rootDentry
}

func (p *SimpleProcessContext) Cwd() (*Mount, *Dentry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwdMount, p.cwdDentry
}

// Chdir retargets cwd to (m, d), taking a reference on both and releasing
// the previous cwd's references. Used by examples/current.rs-style
// "chdir(path)" flows.
func (p *SimpleProcessContext) Chdir(m *Mount, d *Dentry) {
	m.IncRef()
	d.IncRef()
	p.mu.Lock()
	oldM, oldD := p.cwdMount, p.cwdDentry
	p.cwdMount, p.cwdDentry = m, d
	p.mu.Unlock()
	oldD.DecRef()
	oldM.DecRef()
}

func (p *SimpleProcessContext) ExceedsNestedLinkLimit(nested int) bool {
	return nested > p.maxLinkCount
}

func (p *SimpleProcessContext) MaxLinkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxLinkCount
}

// SetMaxLinkCount overrides the per-walk symlink nesting limit.
func (p *SimpleProcessContext) SetMaxLinkCount(n int) {
	p.mu.Lock()
	p.maxLinkCount = n
	p.mu.Unlock()
}

func (p *SimpleProcessContext) Now() time.Time { return time.Now() }
