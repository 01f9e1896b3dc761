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

package memoryfs_test

import (
	"io/ioutil"
	"os"
	"path"
	"testing"
	"time"

	"golang.org/x/net/context"
	"golang.org/x/sys/unix"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/fuse/samples/memoryfs"
	"github.com/jacobsa/timeutil"
)

// mountMemoryFS mounts a fresh memoryfs.FS on a temporary directory and
// returns the directory plus a cleanup func that unmounts and joins.
func mountMemoryFS(t *testing.T) (dir string, cleanup func()) {
	t.Helper()

	dir, err := ioutil.TempDir("", "memoryfs_test")
	if err != nil {
		t.Fatalf("ioutil.TempDir: %v", err)
	}

	fs := memoryfs.New(timeutil.RealClock())
	mfs, err := fuse.Mount(dir, fuseutil.NewFileSystemServer(fs), &fuse.MountConfig{})
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("fuse.Mount: %v", err)
	}

	cleanup = func() {
		mfs.Unmount("test complete", 5*time.Second)
		mfs.Join(context.Background())
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

// scenario 1: stat-ing the mount root reports the preallocated root inode.
func TestGetAttrOnRoot(t *testing.T) {
	dir, cleanup := mountMemoryFS(t)
	defer cleanup()

	fi, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("os.Stat: %v", err)
	}

	if !fi.IsDir() {
		t.Errorf("root is not reported as a directory")
	}
	if fi.Mode().Perm() != 0755 {
		t.Errorf("root mode = %v, want 0755", fi.Mode().Perm())
	}
}

// scenario 2: create, write, and read back a file end to end.
func TestCreateWriteRead(t *testing.T) {
	dir, cleanup := mountMemoryFS(t)
	defer cleanup()

	p := path.Join(dir, "foo")
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("os.OpenFile: %v", err)
	}
	defer f.Close()

	const want = "hello, world"
	if _, err := f.Write([]byte(want)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, len(want))
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if string(got) != want {
		t.Errorf("read back %q, want %q", got, want)
	}
}

// scenario 3: rmdir on a non-empty directory fails with ENOTEMPTY.
func TestRmDirNonEmpty(t *testing.T) {
	dir, cleanup := mountMemoryFS(t)
	defer cleanup()

	sub := path.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("os.Mkdir: %v", err)
	}
	if err := ioutil.WriteFile(path.Join(sub, "child"), []byte("x"), 0644); err != nil {
		t.Fatalf("ioutil.WriteFile: %v", err)
	}

	err := unix.Rmdir(sub)
	if err != unix.ENOTEMPTY {
		t.Fatalf("Rmdir error = %v, want ENOTEMPTY", err)
	}
}

// scenario 4: setxattr with XATTR_CREATE on an existing name fails with EEXIST.
func TestSetXattrCreateFlagOnExisting(t *testing.T) {
	dir, cleanup := mountMemoryFS(t)
	defer cleanup()

	p := path.Join(dir, "foo")
	if err := ioutil.WriteFile(p, []byte("x"), 0644); err != nil {
		t.Fatalf("ioutil.WriteFile: %v", err)
	}

	const attr = "user.test"
	if err := unix.Setxattr(p, attr, []byte("v1"), 0); err != nil {
		t.Fatalf("first Setxattr: %v", err)
	}

	err := unix.Setxattr(p, attr, []byte("v2"), unix.XATTR_CREATE)
	if err != unix.EEXIST {
		t.Fatalf("second Setxattr error = %v, want EEXIST", err)
	}
}

// scenario 5: seeking past a negative result with SEEK_END fails with EINVAL.
func TestLSeekEndNegative(t *testing.T) {
	dir, cleanup := mountMemoryFS(t)
	defer cleanup()

	p := path.Join(dir, "foo")
	if err := ioutil.WriteFile(p, []byte("12345"), 0644); err != nil {
		t.Fatalf("ioutil.WriteFile: %v", err)
	}

	f, err := os.OpenFile(p, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("os.OpenFile: %v", err)
	}
	defer f.Close()

	_, err = f.Seek(-100, os.SEEK_END)
	if err == nil {
		t.Fatalf("Seek past start unexpectedly succeeded")
	}
}

// scenario 6: copy_file_range with overlapping source/destination ranges on
// the same file fails with EINVAL; non-overlapping ranges succeed.
func TestCopyFileRangeOverlap(t *testing.T) {
	dir, cleanup := mountMemoryFS(t)
	defer cleanup()

	p := path.Join(dir, "foo")
	if err := ioutil.WriteFile(p, []byte("0123456789ABCDEFGHIJ"), 0644); err != nil {
		t.Fatalf("ioutil.WriteFile: %v", err)
	}

	f, err := os.OpenFile(p, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("os.OpenFile: %v", err)
	}
	defer f.Close()

	fd := int(f.Fd())

	offIn := int64(0)
	offOut := int64(10)
	n, err := unix.CopyFileRange(fd, &offIn, fd, &offOut, 20, 0)
	if err != unix.EINVAL {
		t.Fatalf("overlapping CopyFileRange: n=%d err=%v, want EINVAL", n, err)
	}

	p2 := path.Join(dir, "bar")
	if err := ioutil.WriteFile(p2, make([]byte, 20), 0644); err != nil {
		t.Fatalf("ioutil.WriteFile: %v", err)
	}
	dst, err := os.OpenFile(p2, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("os.OpenFile: %v", err)
	}
	defer dst.Close()

	offIn = 0
	offOut = 0
	n, err = unix.CopyFileRange(fd, &offIn, int(dst.Fd()), &offOut, 20, 0)
	if err != nil {
		t.Fatalf("non-overlapping CopyFileRange: %v", err)
	}
	if n != 20 {
		t.Fatalf("CopyFileRange copied %d bytes, want 20", n)
	}
}
