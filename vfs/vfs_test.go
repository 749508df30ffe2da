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

package vfs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coriolisfs/vfs/memfs"
	"github.com/coriolisfs/vfs/vfs"
)

func newTestVFS(t *testing.T) (*vfs.VirtualFilesystem, *vfs.SimpleProcessContext) {
	t.Helper()
	ctx := context.Background()
	v := vfs.NewVirtualFilesystem()
	_, err := memfs.RegisterRootfs(v.Registry)
	require.NoError(t, err)
	_, err = memfs.RegisterTmpfs(v.Registry)
	require.NoError(t, err)

	mount, err := v.Bootstrap(ctx, "rootfs", "rootfs0", 0, "")
	require.NoError(t, err)

	proc := vfs.NewSimpleProcessContext(mount, mount.Root())
	return v, proc
}

func writeAll(t *testing.T, ctx context.Context, v *vfs.VirtualFilesystem, proc vfs.ProcessContext, path string, data []byte) {
	t.Helper()
	f, err := v.Open(ctx, proc, path, vfs.OCreat|vfs.OWrOnly, vfs.ModeRegular)
	require.NoError(t, err)
	defer v.Close(ctx, f)
	n, err := v.Write(ctx, f, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func readAll(t *testing.T, ctx context.Context, v *vfs.VirtualFilesystem, proc vfs.ProcessContext, path string) []byte {
	t.Helper()
	f, err := v.Open(ctx, proc, path, vfs.ORdOnly, 0)
	require.NoError(t, err)
	defer v.Close(ctx, f)
	buf := make([]byte, 4096)
	n, err := v.Read(ctx, f, buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	writeAll(t, ctx, v, proc, "/hello.txt", []byte("hello, devfs"))
	got := readAll(t, ctx, v, proc, "/hello.txt")
	require.Equal(t, "hello, devfs", string(got))
}

func TestMkdirAndReaddir(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	require.NoError(t, v.Mkdir(ctx, proc, "/etc"))
	writeAll(t, ctx, v, proc, "/etc/a", []byte("a"))
	writeAll(t, ctx, v, proc, "/etc/b", []byte("bb"))

	f, err := v.Open(ctx, proc, "/etc", vfs.ORdOnly|vfs.ODirectory, 0)
	require.NoError(t, err)
	defer v.Close(ctx, f)

	size, err := v.Readdir(ctx, f, nil)
	require.NoError(t, err)
	require.Greater(t, size, 0)

	buf := make([]byte, size)
	n, err := v.Readdir(ctx, f, buf)
	require.NoError(t, err)
	require.Equal(t, size, n)
}

func TestSymlinkFollow(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	writeAll(t, ctx, v, proc, "/real", []byte("payload"))
	require.NoError(t, v.Symlink(ctx, proc, "/link", "/real"))

	got := readAll(t, ctx, v, proc, "/link")
	require.Equal(t, "payload", string(got))

	st, err := v.Stat(ctx, proc, "/link", 0)
	require.NoError(t, err)
	require.Equal(t, uint32(vfs.ModeSymlink), st.Mode)
}

func TestRenameOverwritesAndRemovesSource(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	writeAll(t, ctx, v, proc, "/a", []byte("AAAA"))
	writeAll(t, ctx, v, proc, "/b", []byte("B"))

	require.NoError(t, v.Rename(ctx, proc, "/a", "/b"))
	require.Equal(t, "AAAA", string(readAll(t, ctx, v, proc, "/b")))

	_, err := v.Stat(ctx, proc, "/a", 0)
	require.Error(t, err)
}

func TestUnlinkAndRmdir(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	writeAll(t, ctx, v, proc, "/file", []byte("x"))
	require.NoError(t, v.Unlink(ctx, proc, "/file"))
	_, err := v.Stat(ctx, proc, "/file", 0)
	require.Error(t, err)

	require.NoError(t, v.Mkdir(ctx, proc, "/dir"))
	require.NoError(t, v.Rmdir(ctx, proc, "/dir"))
	_, err = v.Stat(ctx, proc, "/dir", 0)
	require.Error(t, err)
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	require.NoError(t, v.Mkdir(ctx, proc, "/dir"))
	writeAll(t, ctx, v, proc, "/dir/child", []byte("x"))

	err := v.Rmdir(ctx, proc, "/dir")
	require.Error(t, err)
	require.ErrorIs(t, err, vfs.ErrNotEmpty)
}

func TestXattrRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	writeAll(t, ctx, v, proc, "/f", []byte("content"))
	require.NoError(t, v.SetXattr(ctx, proc, "/f", "user.tag", []byte("v1")))

	n, err := v.GetXattr(ctx, proc, "/f", "user.tag", nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, n)
	n, err = v.GetXattr(ctx, proc, "/f", "user.tag", buf)
	require.NoError(t, err)
	require.Equal(t, "v1", string(buf[:n]))

	n, err = v.ListXattr(ctx, proc, "/f", nil)
	require.NoError(t, err)
	listBuf := make([]byte, n)
	_, err = v.ListXattr(ctx, proc, "/f", listBuf)
	require.NoError(t, err)
	require.Contains(t, string(listBuf), "user.tag")

	require.NoError(t, v.RemoveXattr(ctx, proc, "/f", "user.tag"))
	_, err = v.GetXattr(ctx, proc, "/f", "user.tag", nil)
	require.Error(t, err)
}

// TestOpenDeduplicatesAcrossCallers exercises open-file
// de-duplication: two Opens of the same path while both handles are live
// share one File, and the second Open resets the shared position, the
// documented reset-on-reuse behavior.
func TestOpenDeduplicatesAcrossCallers(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)
	writeAll(t, ctx, v, proc, "/f", []byte("0123456789"))

	f1, err := v.Open(ctx, proc, "/f", vfs.ORdOnly, 0)
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = v.Read(ctx, f1, buf)
	require.NoError(t, err)

	f2, err := v.Open(ctx, proc, "/f", vfs.ORdOnly, 0)
	require.NoError(t, err)
	require.Same(t, f1, f2)

	buf2 := make([]byte, 4)
	n, err := v.Read(ctx, f2, buf2)
	require.NoError(t, err)
	require.Equal(t, "0123", string(buf2[:n]))

	require.NoError(t, v.Close(ctx, f2))
	require.NoError(t, v.Close(ctx, f1))
}

func TestWriteHoleFillsZero(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	f, err := v.Open(ctx, proc, "/holey", vfs.OCreat|vfs.OWrOnly, vfs.ModeRegular)
	require.NoError(t, err)
	_, err = v.Llseek(ctx, f, 8, vfs.SeekStart)
	require.NoError(t, err)
	_, err = v.Write(ctx, f, []byte("tail"))
	require.NoError(t, err)
	require.NoError(t, v.Close(ctx, f))

	got := readAll(t, ctx, v, proc, "/holey")
	require.Equal(t, append(make([]byte, 8), []byte("tail")...), got)
}

func TestTmpfsIsIndependentFromRootfs(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t)

	require.NoError(t, v.Mkdir(ctx, proc, "/tmp"))
	mount, err := v.DoMount(ctx, proc, "/tmp", "tmpfs", "tmpfs0", 0, "", false)
	require.NoError(t, err)
	require.NotNil(t, mount)

	writeAll(t, ctx, v, proc, "/tmp/scratch", []byte("ephemeral"))
	require.Equal(t, "ephemeral", string(readAll(t, ctx, v, proc, "/tmp/scratch")))

	_, err = v.Stat(ctx, proc, "/scratch", 0)
	require.Error(t, err)
}
