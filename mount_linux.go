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
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// parseFuseFd recognizes a mount point of the form /dev/fd/N, as handed to
// us by a process (e.g. automount, or a setuid wrapper) that has already
// opened /dev/fuse and done the kernel-side mount(2) call for us. It
// returns -1 if dir does not name a file descriptor this way.
func parseFuseFd(dir string) (fd int, err error) {
	const prefix = "/dev/fd/"
	if !strings.HasPrefix(dir, prefix) {
		return -1, fmt.Errorf("not a /dev/fd path: %s", dir)
	}

	n, err := strconv.Atoi(dir[len(prefix):])
	if err != nil {
		return -1, fmt.Errorf("parsing fd from %s: %v", dir, err)
	}

	if n < 0 {
		return -1, fmt.Errorf("negative fd in %s", dir)
	}

	return n, nil
}

// mountDirect opens /dev/fuse and calls mount(2) directly, without
// fusermount's help. This only succeeds if we are root or the running
// kernel has user_allow_other / unprivileged user namespaces configured
// appropriately; callers fall back to fuserunmount-via-fusermount when it
// fails.
func mountDirect(dir string, conf *mountConfig) (dev *os.File, err error) {
	dev, err = os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/fuse: %v", err)
	}

	fi, err := os.Stat(dir)
	if err != nil {
		dev.Close()
		return nil, err
	}

	data := fmt.Sprintf(
		"fd=%d,rootmode=%o,user_id=%d,group_id=%d",
		dev.Fd(), fi.Mode()&os.ModePerm|syscall.S_IFDIR, os.Getuid(), os.Getgid())

	if opts := conf.getOptions(); opts != "" {
		data = data + "," + opts
	}

	err = unix.Mount("fuse", dir, "fuse", uintptr(unix.MS_NOSUID|unix.MS_NODEV), data)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mount(2): %v", err)
	}

	return dev, nil
}

// mountViaFusermount shells out to the fusermount(3) helper, which is
// typically installed setuid root, and receives the kernel fd it opened
// as SCM_RIGHTS data over the socket passed to it via cmd.ExtraFiles.
func mountViaFusermount(dir string, conf *mountConfig) (dev *os.File, err error) {
	fusermount, err := findFusermount()
	if err != nil {
		return nil, err
	}

	// fusermount communicates the opened /dev/fuse descriptor back to us
	// over a unix socket pair passed as fd 3 in the child.
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %v", err)
	}

	writeFile := os.NewFile(uintptr(fds[0]), "fusermount-child")
	readFile := os.NewFile(uintptr(fds[1]), "fusermount-parent")
	defer readFile.Close()

	cmd := exec.Command(fusermount, "-o", conf.getOptions(), "--", dir)
	cmd.Env = append(os.Environ(), "_FUSE_COMMFD=3")
	cmd.ExtraFiles = []*os.File{writeFile}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err = cmd.Start(); err != nil {
		writeFile.Close()
		return nil, fmt.Errorf("starting fusermount: %v", err)
	}
	writeFile.Close()

	fd, err := receiveFD(readFile)
	waitErr := cmd.Wait()

	if err != nil {
		if waitErr != nil && stderr.Len() > 0 {
			return nil, fmt.Errorf("fusermount: %v: %s", waitErr, bytes.TrimRight(stderr.Bytes(), "\n"))
		}
		return nil, fmt.Errorf("receiving fd from fusermount: %v", err)
	}

	return os.NewFile(uintptr(fd), "/dev/fuse"), nil
}

// receiveFD reads a single file descriptor sent as SCM_RIGHTS ancillary
// data over the given unix-domain socket connection.
func receiveFD(f *os.File) (fd int, err error) {
	buf := make([]byte, 4)
	oob := make([]byte, unix.CmsgSpace(4))

	sock, err := f.SyscallConn()
	if err != nil {
		return -1, err
	}

	var n, oobn int
	var sockErr error
	err = sock.Read(func(s uintptr) bool {
		n, oobn, _, _, sockErr = unix.Recvmsg(int(s), buf, oob, 0)
		return true
	})
	if err != nil {
		return -1, err
	}
	if sockErr != nil {
		return -1, sockErr
	}
	if n == 0 && oobn == 0 {
		return -1, fmt.Errorf("fusermount: empty response")
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, err
	}
	if len(msgs) != 1 {
		return -1, fmt.Errorf("fusermount: expected one control message, got %d", len(msgs))
	}

	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return -1, err
	}
	if len(fds) != 1 {
		return -1, fmt.Errorf("fusermount: expected one fd, got %d", len(fds))
	}

	return fds[0], nil
}

// mount begins the process of mounting a file system at dir, returning the
// open /dev/fuse file once the kernel has a FUSE superblock in place.
// ready is closed, with no value sent, as soon as the mount is in place;
// mount errors are returned directly.
func mount(
	dir string,
	conf *mountConfig,
	ready chan<- error) (dev *os.File, err error) {
	// Support the "externally managed mount point" convention: if dir is of
	// the form /dev/fd/N, someone has already done the kernel-side mount
	// for us and handed us the resulting fd.
	if fd, parseErr := parseFuseFd(dir); parseErr == nil {
		dev = os.NewFile(uintptr(fd), "/dev/fuse")
		close(ready)
		return dev, nil
	}

	dev, err = mountDirect(dir, conf)
	if err != nil {
		dev, err = mountViaFusermount(dir, conf)
		if err != nil {
			return nil, err
		}
	}

	close(ready)
	return dev, nil
}
