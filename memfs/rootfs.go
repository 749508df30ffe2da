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

package memfs

import "github.com/coriolisfs/vfs/vfs"

// rootMagic is this filesystem type's statfs magic number, arbitrary but
// stable, following the base+offset scheme the original ramfs module used
// for its own filesystem magics.
const rootMagic = 0x858458f6 + 1

// RegisterRootfs installs the "rootfs" filesystem type, the single-instance
// in-memory filesystem a process typically mounts at "/". It shares the
// generic node representation with tmpfs; the two differ only in name and
// the fact that nothing else ever re-derives a rootfs superblock by device
// name, since a root mount is created exactly once per boot.
func RegisterRootfs(reg *vfs.Registry) (*vfs.FilesystemType, error) {
	return register(reg, "rootfs", rootMagic)
}
