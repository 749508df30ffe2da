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

// tmpMagic is tmpfs's statfs magic number, distinct from rootMagic so
// callers can tell the two registrations apart via Statfs.Type.
const tmpMagic = 0x858458f6 + 2

// RegisterTmpfs installs the "tmpfs" filesystem type. Unlike rootfs, tmpfs
// may be mounted many times (e.g. at /tmp and at each container's scratch
// directory). Each do_mount with a new device name gets its own independent
// superblock and node tree; a do_mount that repeats the device name of a
// live tmpfs superblock reuses that superblock and its nodes.
func RegisterTmpfs(reg *vfs.Registry) (*vfs.FilesystemType, error) {
	return register(reg, "tmpfs", tmpMagic)
}
