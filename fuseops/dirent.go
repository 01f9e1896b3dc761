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

// DirentType is the wire-level directory entry type tag understood by the
// kernel (the dirent d_type / fuse_dirent.type field), distinct from the
// GCS-metadata-oriented Filetype in filetype.go. See readdir(3) DT_* constants.
type DirentType uint32

const (
	DT_Unknown DirentType = 0
	DT_FIFO    DirentType = 1
	DT_Char    DirentType = 2
	DT_Dir     DirentType = 4
	DT_Block   DirentType = 6
	DT_File    DirentType = 8
	DT_Link    DirentType = 10
	DT_Socket  DirentType = 12
)

// ToDirentType maps the coarse Filetype used elsewhere in this package to
// its wire-level DirentType; unknown or unsupported kinds map to
// DT_Unknown, which tells the kernel to fall back to an explicit getattr.
func (f Filetype) ToDirentType() DirentType {
	switch f {
	case RegularFiletype:
		return DT_File
	case DirectoryFiletype:
		return DT_Dir
	case SymlinkFiletype:
		return DT_Link
	default:
		return DT_Unknown
	}
}

// Dirent represents a single directory entry, in the form expected for
// ReadDirOp.Data and serialized by fuseutil.WriteDirent.
type Dirent struct {
	// The offset within the directory stream at which the next entry (not
	// this one) begins.
	Offset DirOffset

	// The inode to which this entry refers.
	Inode InodeID

	// The name of this entry, which is NOT required to be NUL-terminated.
	Name string

	// The type of the child inode this entry names.
	Type DirentType
}
