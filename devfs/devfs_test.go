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

package devfs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coriolisfs/vfs/devfs"
	"github.com/coriolisfs/vfs/vfs"
)

func newTestVFS(t *testing.T, tablePath string) (*vfs.VirtualFilesystem, *vfs.SimpleProcessContext) {
	t.Helper()
	ctx := context.Background()
	v := vfs.NewVirtualFilesystem()
	_, err := devfs.Register(v.Registry, tablePath)
	require.NoError(t, err)

	mount, err := v.Bootstrap(ctx, "devfs", "devfs0", 0, "")
	require.NoError(t, err)
	proc := vfs.NewSimpleProcessContext(mount, mount.Root())
	return v, proc
}

func TestWellKnownDevicesAreSeeded(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t, "")

	for _, name := range []string{"null", "zero", "tty"} {
		st, err := v.Stat(ctx, proc, "/"+name, 0)
		require.NoError(t, err, name)
		require.Equal(t, uint32(vfs.ModeCharDevice), st.Mode, name)
	}
}

func TestNullAbsorbsWritesAndReadsEOF(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t, "")

	f, err := v.Open(ctx, proc, "/null", vfs.ORdWr, 0)
	require.NoError(t, err)
	defer v.Close(ctx, f)

	n, err := v.Write(ctx, f, []byte("anything"))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	buf := make([]byte, 16)
	n, err = v.Read(ctx, f, buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestZeroFillsReads(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t, "")

	f, err := v.Open(ctx, proc, "/zero", vfs.ORdOnly, 0)
	require.NoError(t, err)
	defer v.Close(ctx, f)

	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := v.Read(ctx, f, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

func TestTTYLoopsBackWrites(t *testing.T) {
	ctx := context.Background()
	v, proc := newTestVFS(t, "")

	f, err := v.Open(ctx, proc, "/tty", vfs.ORdWr, 0)
	require.NoError(t, err)
	defer v.Close(ctx, f)

	_, err = v.Write(ctx, f, []byte("echo"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := v.Read(ctx, f, buf)
	require.NoError(t, err)
	require.Equal(t, "echo", string(buf[:n]))
}

func TestDeviceTableRoundTripsThroughTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")

	table := devfs.DefaultDeviceTable()
	table.Add(devfs.DeviceDescriptor{Name: "extra", Major: 99, Minor: 1, Mode: "char"})
	require.NoError(t, table.Save(path))

	loaded, err := devfs.LoadDeviceTable(path)
	require.NoError(t, err)
	require.Len(t, loaded.Device, len(table.Device))
	require.True(t, loaded.Remove("extra"))
}

func TestGetSuperSeedsFromPersistedTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "devices.toml")

	table := devfs.DefaultDeviceTable()
	table.Add(devfs.DeviceDescriptor{Name: "extra", Major: 7, Minor: 7, Mode: "char"})
	require.NoError(t, table.Save(path))

	v, proc := newTestVFS(t, path)
	st, err := v.Stat(ctx, proc, "/extra", 0)
	require.NoError(t, err)
	require.Equal(t, uint32(vfs.ModeCharDevice), st.Mode)
}

func TestDefaultDeviceTableMintsFreshSerialsPerCall(t *testing.T) {
	t1 := devfs.DefaultDeviceTable()
	t2 := devfs.DefaultDeviceTable()
	require.NotEqual(t, t1.Device[0].Serial, t2.Device[0].Serial, "each call mints fresh serials absent a persisted table")
}
