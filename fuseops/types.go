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

package fuseops

import (
	"fmt"
	"os"
	"time"
)

// InodeID is the numeric identifier assigned to an inode by a file system.
// Zero is never a valid value. One (RootInodeID) is reserved for the root of
// the file system.
type InodeID uint64

// RootInodeID is the fixed ID of the root inode, used in the parent field of
// the first LookUpInodeOp the kernel ever sends.
const RootInodeID = InodeID(1)

// GenerationNumber disambiguates InodeIDs that have been reused after the
// original inode they named was forgotten, per the FUSE NFS export contract.
type GenerationNumber uint64

// HandleID identifies an open file or directory handle, scoped to the
// lifetime of a single mount.
type HandleID uint64

// DirOffset is an opaque directory-stream position, meaningful only as an
// argument to a subsequent ReadDirOp/ReadDirPlusOp against the same handle.
type DirOffset uint64

// InodeAttributes mirrors the POSIX stat(2) fields a file system reports
// back to the kernel for a given inode.
type InodeAttributes struct {
	Size   uint64
	Nlink  uint32
	Mode   os.FileMode
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time
	Uid    uint32
	Gid    uint32
	Rdev   uint32
}

func (a InodeAttributes) DebugString() string {
	return fmt.Sprintf(
		"%v %d:%d %d bytes, links %d",
		a.Mode, a.Uid, a.Gid, a.Size, a.Nlink)
}

// ChildInodeEntry is returned by operations that resolve or create a
// directory entry (LookUpInode, MkDir, CreateFile, CreateSymlink, MkNode,
// CreateLink).
type ChildInodeEntry struct {
	Child                InodeID
	Generation           GenerationNumber
	Attributes           InodeAttributes
	AttributesExpiration time.Time
	EntryExpiration      time.Time
}

// StatfsInfo is the result of a StatFSOp, mirroring statvfs(2).
type StatfsInfo struct {
	BlockSize      uint32
	Blocks         uint64
	BlocksFree     uint64
	BlocksAvailable uint64
	IoSize         uint32
	Inodes         uint64
	InodesFree     uint64
}

// XattrFlag restricts how SetXattrOp may create or replace an extended
// attribute; it mirrors the XATTR_CREATE / XATTR_REPLACE flags from
// setxattr(2).
type XattrFlag uint32

const (
	XattrFlagAny     XattrFlag = 0
	XattrFlagCreate  XattrFlag = 1
	XattrFlagReplace XattrFlag = 2
)

// FileLockType is an OS-independent enum for the l_type field of struct
// flock; platform flock_*.go files map the kernel's raw values onto it.
type FileLockType uint32

const (
	F_RDLOCK FileLockType = iota
	F_WRLOCK
	F_UNLOCK
)

// FileLock describes a POSIX byte-range lock, as used by GetLkOp/SetLkOp.
type FileLock struct {
	Type  FileLockType
	Start uint64
	End   uint64
	Pid   uint32
}

// SeekWhence mirrors the whence argument to lseek(2) as used by LSeekOp.
type SeekWhence uint32

const (
	SeekData SeekWhence = 3
	SeekHole SeekWhence = 4
)

// RenameFlags mirrors the flags argument accepted by renameat2(2).
type RenameFlags uint32

const (
	RenameNoReplace RenameFlags = 1 << 0
	RenameExchange  RenameFlags = 1 << 1
)
