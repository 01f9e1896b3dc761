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

// Package memoryfs is a small in-memory fuseutil.FileSystem, grounded on
// samples/memfs's single-mutex-plus-inode-table shape but rewritten for the
// fuseops op-struct convention (memfs still targets the teacher's older
// bazilfuse-era request/response surface). It implements just enough of the
// op set to serve as an integration fixture: lookup, attributes, mkdir,
// create/write/read, rmdir, unlink, xattrs, lseek, and copy_file_range.
// Everything else falls back to fuseutil.NotImplementedFileSystem.
package memoryfs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

const attrValidity = 365 * 24 * time.Hour

type inode struct {
	attrs    fuseops.InodeAttributes
	isDir    bool
	children map[string]fuseops.InodeID
	data     []byte
	xattrs   map[string][]byte
}

// FS is an in-memory file system rooted at fuseops.RootInodeID.
type FS struct {
	fuseutil.NotImplementedFileSystem

	clock timeutil.Clock

	// When acquiring this lock, the caller must hold no other locks; there
	// are no per-inode locks here, unlike samples/memfs, since this tree is
	// small enough that one mutex across every op is not a contention
	// concern.
	mu syncutil.InvariantMutex // GUARDED_BY guards everything below

	inodes     map[fuseops.InodeID]*inode
	nextInode  fuseops.InodeID
	handles    map[fuseops.HandleID]fuseops.InodeID
	nextHandle fuseops.HandleID
}

// New creates a file system with just a root directory.
func New(clock timeutil.Clock) *FS {
	if clock == nil {
		clock = timeutil.RealClock()
	}

	now := clock.Now()
	fs := &FS{
		clock: clock,
		inodes: map[fuseops.InodeID]*inode{
			fuseops.RootInodeID: {
				attrs: fuseops.InodeAttributes{
					Mode:   os.ModeDir | 0755,
					Nlink:  2,
					Size:   4096,
					Atime:  now,
					Mtime:  now,
					Ctime:  now,
					Crtime: now,
				},
				isDir:    true,
				children: make(map[string]fuseops.InodeID),
			},
		},
		nextInode:  fuseops.RootInodeID + 1,
		handles:    make(map[fuseops.HandleID]fuseops.InodeID),
		nextHandle: 1,
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

func (fs *FS) checkInvariants() {
	root, ok := fs.inodes[fuseops.RootInodeID]
	if !ok || !root.isDir {
		panic("memoryfs: root inode missing or not a directory")
	}
}

func (fs *FS) allocateLocked(n *inode) fuseops.InodeID {
	id := fs.nextInode
	fs.nextInode++
	fs.inodes[id] = n
	return id
}

func (fs *FS) openLocked(id fuseops.InodeID) fuseops.HandleID {
	h := fs.nextHandle
	fs.nextHandle++
	fs.handles[h] = id
	return h
}

func (fs *FS) entryLocked(id fuseops.InodeID, n *inode) fuseops.ChildInodeEntry {
	now := fs.clock.Now()
	return fuseops.ChildInodeEntry{
		Child:                id,
		Attributes:           n.attrs,
		AttributesExpiration: now.Add(attrValidity),
		EntryExpiration:      now.Add(attrValidity),
	}
}

func resize(b []byte, n int) []byte {
	if n <= len(b) {
		return b[:n]
	}
	grown := make([]byte, n)
	copy(grown, b)
	return grown
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *FS) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (fs *FS) LookUpInode(op *fuseops.LookUpInodeOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		op.Respond(fuse.ENOENT)
		return
	}

	childID, ok := parent.children[op.Name]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	op.Entry = fs.entryLocked(childID, fs.inodes[childID])
	op.Respond(nil)
}

func (fs *FS) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes[op.Inode]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	op.Attributes = n.attrs
	op.AttributesExpiration = fs.clock.Now().Add(attrValidity)
	op.Respond(nil)
}

func (fs *FS) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes[op.Inode]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	if op.Size != nil {
		n.data = resize(n.data, int(*op.Size))
		n.attrs.Size = *op.Size
	}
	if op.Mode != nil {
		n.attrs.Mode = *op.Mode
	}
	if op.Atime != nil {
		n.attrs.Atime = *op.Atime
	}
	if op.Mtime != nil {
		n.attrs.Mtime = *op.Mtime
	}

	op.Attributes = n.attrs
	op.AttributesExpiration = fs.clock.Now().Add(attrValidity)
	op.Respond(nil)
}

func (fs *FS) MkDir(op *fuseops.MkDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		op.Respond(fuse.ENOENT)
		return
	}
	if _, exists := parent.children[op.Name]; exists {
		op.Respond(fuse.EEXIST)
		return
	}

	now := fs.clock.Now()
	id := fs.allocateLocked(&inode{
		attrs: fuseops.InodeAttributes{
			Mode:   op.Mode | os.ModeDir,
			Nlink:  2,
			Size:   4096,
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
			Crtime: now,
		},
		isDir:    true,
		children: make(map[string]fuseops.InodeID),
	})
	parent.children[op.Name] = id

	op.Entry = fs.entryLocked(id, fs.inodes[id])
	op.Respond(nil)
}

func (fs *FS) CreateFile(op *fuseops.CreateFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		op.Respond(fuse.ENOENT)
		return
	}
	if _, exists := parent.children[op.Name]; exists {
		op.Respond(fuse.EEXIST)
		return
	}

	now := fs.clock.Now()
	id := fs.allocateLocked(&inode{
		attrs: fuseops.InodeAttributes{
			Mode:   op.Mode,
			Nlink:  1,
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
			Crtime: now,
		},
		xattrs: make(map[string][]byte),
	})
	parent.children[op.Name] = id

	op.Entry = fs.entryLocked(id, fs.inodes[id])
	op.Handle = fs.openLocked(id)
	op.Respond(nil)
}

func (fs *FS) OpenFile(op *fuseops.OpenFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.inodes[op.Inode]; !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	op.Handle = fs.openLocked(op.Inode)
	op.Respond(nil)
}

func (fs *FS) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.handles, op.Handle)
	op.Respond(nil)
}

func (fs *FS) ReadFile(op *fuseops.ReadFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inodeID, ok := fs.handles[op.Handle]
	if !ok {
		op.Respond(fuse.EBADF)
		return
	}
	n := fs.inodes[inodeID]

	if op.Offset >= int64(len(n.data)) {
		op.BytesRead = 0
		op.Respond(nil)
		return
	}

	end := op.Offset + int64(len(op.Dst))
	if end > int64(len(n.data)) {
		end = int64(len(n.data))
	}

	op.Data = n.data[op.Offset:end]
	op.BytesRead = len(op.Data)
	op.Respond(nil)
}

// WriteFile is called by samples/memoryfs's Handler only through
// fuseutil.fileSystemServer's per-handle write queue, never directly off
// the connection goroutine, so it doesn't need its own serialization
// against concurrent writes to the same handle.
func (fs *FS) WriteFile(op *fuseops.WriteFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inodeID, ok := fs.handles[op.Handle]
	if !ok {
		op.Respond(fuse.EBADF)
		return
	}
	n := fs.inodes[inodeID]

	end := op.Offset + int64(len(op.Data))
	if end > int64(len(n.data)) {
		n.data = resize(n.data, int(end))
	}
	copy(n.data[op.Offset:end], op.Data)
	if uint64(len(n.data)) > n.attrs.Size {
		n.attrs.Size = uint64(len(n.data))
	}
	n.attrs.Mtime = fs.clock.Now()

	op.Respond(nil)
}

func (fs *FS) RmDir(op *fuseops.RmDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		op.Respond(fuse.ENOENT)
		return
	}

	childID, ok := parent.children[op.Name]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	child := fs.inodes[childID]
	if len(child.children) != 0 {
		op.Respond(fuse.ENOTEMPTY)
		return
	}

	delete(parent.children, op.Name)
	delete(fs.inodes, childID)
	op.Respond(nil)
}

func (fs *FS) Unlink(op *fuseops.UnlinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		op.Respond(fuse.ENOENT)
		return
	}

	childID, ok := parent.children[op.Name]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	delete(parent.children, op.Name)
	delete(fs.inodes, childID)
	op.Respond(nil)
}

func (fs *FS) SetXattr(op *fuseops.SetXattrOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes[op.Inode]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	if n.xattrs == nil {
		n.xattrs = make(map[string][]byte)
	}

	_, exists := n.xattrs[op.Name]
	switch {
	case op.Flags == fuseops.XattrFlagCreate && exists:
		op.Respond(fuse.EEXIST)
		return
	case op.Flags == fuseops.XattrFlagReplace && !exists:
		op.Respond(fuse.ENODATA)
		return
	}

	value := make([]byte, len(op.Value))
	copy(value, op.Value)
	n.xattrs[op.Name] = value
	op.Respond(nil)
}

func (fs *FS) GetXattr(op *fuseops.GetXattrOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes[op.Inode]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	value, ok := n.xattrs[op.Name]
	if !ok {
		op.Respond(fuse.ENODATA)
		return
	}

	if len(op.Dst) == 0 {
		op.BytesNeeded = uint32(len(value))
		op.Respond(nil)
		return
	}
	if len(value) > len(op.Dst) {
		op.Respond(fuse.ERANGE)
		return
	}

	op.Data = value
	op.Respond(nil)
}

// LSeek implements SEEK_SET/SEEK_CUR/SEEK_END; SEEK_DATA/SEEK_HOLE on a
// flat byte slice would just be SEEK_SET(0)/SEEK_END, but nothing in this
// fixture exercises them, so they fall through to EINVAL like any other
// unrecognized whence.
func (fs *FS) LSeek(op *fuseops.LSeekOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inodeID, ok := fs.handles[op.Handle]
	if !ok {
		op.Respond(fuse.EBADF)
		return
	}
	n := fs.inodes[inodeID]

	var result int64
	switch op.Whence {
	case 0: // SEEK_SET
		result = op.Offset
	case 1: // SEEK_CUR
		result = op.Offset
	case 2: // SEEK_END
		result = int64(len(n.data)) + op.Offset
	default:
		op.Respond(fuse.EINVAL)
		return
	}

	if result < 0 {
		op.Respond(fuse.EINVAL)
		return
	}

	op.Result = result
	op.Respond(nil)
}

// CopyFileRange rejects overlapping ranges within the same handle, matching
// the copy_file_range(2) EINVAL case for identical source and destination
// files whose ranges intersect.
func (fs *FS) CopyFileRange(op *fuseops.CopyFileRangeOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inID, ok := fs.handles[op.InHandle]
	if !ok {
		op.Respond(fuse.EBADF)
		return
	}
	outID, ok := fs.handles[op.OutHandle]
	if !ok {
		op.Respond(fuse.EBADF)
		return
	}

	if inID == outID {
		inEnd := op.InOffset + int64(op.Length)
		outEnd := op.OutOffset + int64(op.Length)
		if op.InOffset < outEnd && op.OutOffset < inEnd {
			op.Respond(fuse.EINVAL)
			return
		}
	}

	src := fs.inodes[inID]
	dst := fs.inodes[outID]

	srcEnd := op.InOffset + int64(op.Length)
	if srcEnd > int64(len(src.data)) {
		srcEnd = int64(len(src.data))
	}
	if op.InOffset >= srcEnd {
		op.BytesCopied = 0
		op.Respond(nil)
		return
	}
	chunk := src.data[op.InOffset:srcEnd]

	dstEnd := op.OutOffset + int64(len(chunk))
	if dstEnd > int64(len(dst.data)) {
		dst.data = resize(dst.data, int(dstEnd))
	}
	copy(dst.data[op.OutOffset:dstEnd], chunk)
	if uint64(len(dst.data)) > dst.attrs.Size {
		dst.attrs.Size = uint64(len(dst.data))
	}

	op.BytesCopied = uint64(len(chunk))
	op.Respond(nil)
}
