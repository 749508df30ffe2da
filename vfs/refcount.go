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

import "sync/atomic"

// refCount is a small embeddable reference counter, in the spirit of the
// IncRef/TryIncRef/DecRef surface on Dentry: a caller that
// already holds a reference may IncRef unconditionally; a caller racing
// against destruction must use TryIncRef and handle failure as "this object
// is gone." destroy is invoked exactly once, when the count drops to zero.
type refCount struct {
	n       atomic.Int64
	destroy func()
}

// init must be called once before first use, with the count starting
// at one (the caller's own reference) and destroy invoked at zero.
func (r *refCount) init(destroy func()) {
	r.n.Store(1)
	r.destroy = destroy
}

func (r *refCount) IncRef() {
	if r.n.Add(1) <= 1 {
		panic("vfs: IncRef on a destroyed object")
	}
}

// TryIncRef increments the count and returns true, unless the count has
// already reached zero, in which case it does nothing and returns false.
func (r *refCount) TryIncRef() bool {
	for {
		v := r.n.Load()
		if v <= 0 {
			return false
		}
		if r.n.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

func (r *refCount) DecRef() {
	v := r.n.Add(-1)
	if v < 0 {
		panic("vfs: DecRef below zero")
	}
	if v == 0 && r.destroy != nil {
		r.destroy()
	}
}

func (r *refCount) refs() int64 { return r.n.Load() }
