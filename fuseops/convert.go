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
	"time"

	"github.com/jacobsa/fuse/internal/fusekernel"
)

// convertExpirationTime splits a deadline into the (seconds, nanoseconds)
// pair the kernel wants for an *_valid / *_valid_nsec field pair. A
// deadline in the past becomes (0, 0), i.e. "do not cache".
func convertExpirationTime(t time.Time) (secs uint64, nsecs uint32) {
	d := time.Until(t)
	if d <= 0 {
		return 0, 0
	}

	secs = uint64(d / time.Second)
	nsecs = uint32(d % time.Second)

	return secs, nsecs
}

// convertAttributes fills out with in, as reported for inode.
func convertAttributes(inode InodeID, in *InodeAttributes, out *fusekernel.Attr) {
	out.Ino = uint64(inode)
	out.Size = in.Size
	out.Blocks = (in.Size + 511) / 512
	out.Atime = uint64(in.Atime.Unix())
	out.AtimeNsec = uint32(in.Atime.Nanosecond())
	out.Mtime = uint64(in.Mtime.Unix())
	out.MtimeNsec = uint32(in.Mtime.Nanosecond())
	out.Ctime = uint64(in.Ctime.Unix())
	out.CtimeNsec = uint32(in.Ctime.Nanosecond())
	out.Mode = uint32(in.Mode)
	out.Nlink = in.Nlink
	out.UID = in.Uid
	out.GID = in.Gid
	out.Rdev = in.Rdev
}

// convertChildInodeEntry fills out with in.
func convertChildInodeEntry(in *ChildInodeEntry, out *fusekernel.EntryOut) {
	out.Nodeid = uint64(in.Child)
	out.Generation = uint64(in.Generation)
	out.EntryValid, out.EntryValidNsec = convertExpirationTime(in.EntryExpiration)
	out.AttrValid, out.AttrValidNsec = convertExpirationTime(in.AttributesExpiration)
	convertAttributes(in.Child, &in.Attributes, &out.Attr)
}
