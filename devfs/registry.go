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

package devfs

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// DeviceDescriptor is one row of devfs's on-disk device table, the opaque
// driver-private data a devfs superblock persists.
type DeviceDescriptor struct {
	Name   string `toml:"name"`
	Major  uint32 `toml:"major"`
	Minor  uint32 `toml:"minor"`
	Mode   string `toml:"mode"` // "char", "block", or "symlink" (Mode+Target)
	Target string `toml:"target,omitempty"`
	// Serial is a stable identifier for this device, generated once and
	// persisted thereafter so re-mounting doesn't reshuffle identity.
	Serial string `toml:"serial"`
}

// DeviceTable is devfs's device descriptor list, round-tripped through TOML
// at get_super/kill_super time.
type DeviceTable struct {
	Device []DeviceDescriptor `toml:"device"`
}

// DefaultDeviceTable returns the well-known null/zero/tty trio that dev.rs
// seeds at get_super time, using the conventional Linux major/minor pair
// for each (devfs seeding supplement).
func DefaultDeviceTable() *DeviceTable {
	t := &DeviceTable{
		Device: []DeviceDescriptor{
			{Name: "null", Major: 1, Minor: 3, Mode: "char"},
			{Name: "zero", Major: 1, Minor: 5, Mode: "char"},
			{Name: "tty", Major: 5, Minor: 0, Mode: "char"},
		},
	}
	for i := range t.Device {
		ensureSerial(&t.Device[i])
	}
	return t
}

func ensureSerial(d *DeviceDescriptor) {
	if d.Serial == "" {
		d.Serial = uuid.NewString()
	}
}

// LoadDeviceTable reads a device table from path. A missing file is not an
// error: it returns DefaultDeviceTable, matching a first-ever mount where
// no table has been written yet.
func LoadDeviceTable(path string) (*DeviceTable, error) {
	if path == "" {
		return DefaultDeviceTable(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultDeviceTable(), nil
	}
	var t DeviceTable
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, err
	}
	for i := range t.Device {
		ensureSerial(&t.Device[i])
	}
	return &t, nil
}

// Save rewrites the device table to path, devfs's kill_super persistence
// step. A blank path is a no-op, used by in-memory-only test mounts.
func (t *DeviceTable) Save(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(t)
}

// Add appends a descriptor, generating a serial if one wasn't supplied, and
// returns it.
func (t *DeviceTable) Add(d DeviceDescriptor) DeviceDescriptor {
	ensureSerial(&d)
	t.Device = append(t.Device, d)
	return d
}

// Remove deletes the descriptor named name, reporting whether one existed.
func (t *DeviceTable) Remove(name string) bool {
	for i, d := range t.Device {
		if d.Name == name {
			t.Device = append(t.Device[:i], t.Device[i+1:]...)
			return true
		}
	}
	return false
}
