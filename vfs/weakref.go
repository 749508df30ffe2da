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

// weakDentry is a non-owning reference to a Dentry that must be upgraded
// (via TryIncRef) before use; upgrades are fallible and
// must be treated as a "subtree detached" signal. Used for the
// child -> parent edge, which needs to be weak to keep the
// dentry graph acyclic.
type weakDentry struct {
	d *Dentry
}

// upgrade returns d's target with an extra reference, or nil if the target
// has been cleared (this dentry is the root, or its parent subtree has been
// detached).
func (w *weakDentry) upgrade() *Dentry {
	d := w.d
	if d == nil {
		return nil
	}
	if !d.TryIncRef() {
		return nil
	}
	return d
}

// weakMount is the mount-graph analogue of weakDentry: the child -> parent
// mount edge is weak.
type weakMount struct {
	m *Mount
}

func (w *weakMount) upgrade() *Mount {
	m := w.m
	if m == nil {
		return nil
	}
	if !m.TryIncRef() {
		return nil
	}
	return m
}
