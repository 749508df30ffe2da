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

// Package vfslog is the core's structural logger. It wraps logrus with the
// same Debugf/Infof/Warningf call shapes internal log package
// uses, so core mutation sites read like ordinary gVisor-style logging
// rather than ad-hoc fmt.Printf debugging.
package vfslog

import (
	"github.com/sirupsen/logrus"
)

// Logger is package-level so driver and core code share one sink; callers
// that want isolation (e.g. tests asserting on log output) can swap it.
var Logger = logrus.StandardLogger()

// Debugf logs a structural-mutation trace: dentry splices, mount grafts,
// inode flag transitions.
func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

// Infof logs a user-visible lifecycle event: mount, umount, filesystem
// registration.
func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

// Warningf logs a failure that is observed but not returned to any caller,
// such as devfs failing to persist its device table at kill_super. The core
// does not log the driver errors it returns.
func Warningf(format string, args ...interface{}) {
	Logger.Warningf(format, args...)
}
