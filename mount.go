// Copyright 2015 Google Inc. All Rights Reserved.
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

package fuse

import (
	"errors"
	"log"
	"os/exec"
	"sort"
	"strings"
)

// ErrExternallyManagedMountPoint is returned by Unmount when the mount
// point is a /dev/fd/N path handed to us by a process that mounted the
// file system on our behalf (e.g. via autofs or a setuid helper), and
// fusermount's own unmount attempt failed. The caller is expected to know
// how to tear down such a mount point itself.
var ErrExternallyManagedMountPoint = errors.New("mount point is externally managed")

// findFusermount locates the fusermount helper binary on PATH, preferring
// the libfuse3 name.
func findFusermount() (string, error) {
	for _, name := range []string{"fusermount3", "fusermount"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", errors.New("fusermount: executable file not found in $PATH")
}

// mountConfig is the platform-facing form of MountConfig: a flat bag of
// mount(2)/mount_osxfusefs option strings, built by MountConfig.toMountConfig.
type mountConfig struct {
	options map[string]string
}

// getOptions joins the option map into the comma-separated "-o" argument
// understood by both the Linux mount syscall and the OS X mount helper.
// Options are sorted so that the resulting string (and any log message
// built from it) is deterministic.
func (m *mountConfig) getOptions() string {
	keys := make([]string, 0, len(m.options))
	for k := range m.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		v := m.options[k]
		if v == "" {
			pairs = append(pairs, k)
		} else {
			pairs = append(pairs, k+"="+v)
		}
	}

	return strings.Join(pairs, ",")
}

// MountConfig holds the configuration accepted by Mount. Its zero value
// mounts with sensible defaults.
type MountConfig struct {
	// The name of the file system as it shows up in mount(8) output, e.g.
	// under the "on" column in OS X and as the "special" device in Linux.
	FSName string

	// The fstype reported to the system. On Linux this shows up as the
	// third field in /proc/mounts; OS X's diskutil calls it the "file
	// system personality".
	Subtype string

	// A volume name to present to the OS, used only on OS X.
	VolumeName string

	// Mount the file system in read-only mode.
	ReadOnly bool

	// By default this package tells the kernel to perform its own
	// permission checking based on the file mode, owning UID/GID, and
	// the UID/GID of the calling process (cf. the default_permissions
	// mount option). Set this to defer all permission decisions to the
	// file system's own Access/GetInodeAttributes handling.
	DisableDefaultPermissions bool

	// Allow users other than the one invoking the mount to access the
	// file system (the allow_other mount option). Requires either root
	// or the user_allow_other option in /etc/fuse.conf on Linux.
	AllowOther bool

	// Extra options to pass to the mount(2) syscall or mount helper
	// verbatim, beyond the ones this package derives from the fields
	// above. A zero-value entry is passed as a bare flag.
	Options map[string]string

	// Where to write FUSE debug messages (one line per op). Nil disables
	// debug logging, which is the default.
	DebugLogger *log.Logger

	// Where to write errors encountered while servicing ops. Defaults to
	// a logger that discards its input.
	ErrorLogger *log.Logger

	// Cause Init to advertise FUSE_ASYNC_READ to the kernel, allowing
	// concurrent reads against a single file handle.
	EnableAsyncReads bool

	// Disable the FUSE_WRITEBACK_CACHE init flag, causing the kernel to
	// send every write immediately rather than coalescing them in its
	// page cache first.
	DisableWritebackCaching bool

	// Cause Init to advertise FUSE_CACHE_SYMLINKS, letting the kernel
	// cache the target of ReadSymlinkOp.
	EnableSymlinkCaching bool

	// Cause Init to advertise FUSE_NO_OPEN_SUPPORT, telling the kernel it
	// may skip OpenFile entirely and go straight to ReadFile/WriteFile.
	EnableNoOpenSupport bool

	// As EnableNoOpenSupport, but for OpenDir/ReadDir.
	EnableNoOpendirSupport bool

	// Cause Init to advertise FUSE_PARALLEL_DIROPS, allowing the kernel
	// to issue concurrent directory-modifying ops against one directory.
	EnableParallelDirOps bool

	// Cause Init to advertise FUSE_ATOMIC_O_TRUNC, so O_TRUNC opens are
	// delivered as a single CreateFile/OpenFile rather than an open
	// followed by a separate SetInodeAttributes truncation.
	EnableAtomicTrunc bool

	// Cause Init to advertise FUSE_DO_READDIRPLUS, switching the kernel
	// to ReadDirPlusOp instead of ReadDirOp.
	EnableReaddirplus bool

	// In conjunction with EnableReaddirplus, advertise
	// FUSE_READDIRPLUS_AUTO so the kernel only asks for readdirplus when
	// it expects to need the extra attributes.
	EnableAutoReaddirplus bool

	// OS X only. By default OS X disables entry and attribute caching, so
	// LookUpInodeOp and GetInodeAttributesOp are called far more often
	// than on Linux. This field is not read when the mount options are
	// built, so setting it does not change osxfuse's caching.
	EnableVnodeCaching bool
}

func (c *MountConfig) debugLogger() *log.Logger {
	if c.DebugLogger != nil {
		return c.DebugLogger
	}

	return discardLogger()
}

func (c *MountConfig) errorLogger() *log.Logger {
	if c.ErrorLogger != nil {
		return c.ErrorLogger
	}

	return discardLogger()
}

// toMountConfig derives the flat option set a platform mount() function
// needs from the friendlier MountConfig fields.
func (c *MountConfig) toMountConfig() *mountConfig {
	options := make(map[string]string)
	for k, v := range c.Options {
		options[k] = v
	}

	if c.FSName != "" {
		options["fsname"] = c.FSName
	}

	if c.Subtype != "" {
		options["subtype"] = c.Subtype
	}

	if c.VolumeName != "" {
		options["volname"] = c.VolumeName
	}

	if c.ReadOnly {
		options["ro"] = ""
	}

	if !c.DisableDefaultPermissions {
		options["default_permissions"] = ""
	}

	if c.AllowOther {
		options["allow_other"] = ""
	}

	return &mountConfig{options: options}
}
