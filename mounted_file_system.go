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
	"fmt"
	"os"
	"time"

	"golang.org/x/net/context"

	"github.com/jacobsa/fuse/shutdown"
)

// Server is implemented by anything that knows how to serve ops read from a
// Connection, e.g. fuseutil.NewFileSystemServer's result.
type Server interface {
	// Read and serve ops from the supplied connection until EOF.
	ServeOps(*Connection)
}

// Drainable is implemented by a Server that wants the chance to stop
// accepting new work and let in-flight requests finish before
// MountedFileSystem.Unmount proceeds to the kernel-level unmount syscall.
// fuseutil.NewFileSystemServer's result satisfies this.
type Drainable interface {
	Drain(timeout time.Duration) bool
}

// noopDrainer is used when a Server doesn't implement Drainable: draining
// has nothing to do, so it succeeds immediately.
type noopDrainer struct{}

func (noopDrainer) Shutdown(time.Duration) bool { return true }

type drainableAdapter struct{ d Drainable }

func (a drainableAdapter) Shutdown(timeout time.Duration) bool { return a.d.Drain(timeout) }

func drainerFor(server Server) shutdown.Drainer {
	if d, ok := server.(Drainable); ok {
		return drainableAdapter{d}
	}
	return noopDrainer{}
}

// mfsUnmounter adapts the package-level unmount syscall wrapper to
// shutdown.Unmounter.
type mfsUnmounter struct {
	dir string
}

func (u mfsUnmounter) Unmount() error { return unmount(u.dir) }

// MountedFileSystem tracks the status of a mount operation, with a method
// that waits for unmounting.
type MountedFileSystem struct {
	dir string

	// The result to return from Join. Not valid until the channel is closed.
	joinStatus          error
	joinStatusAvailable chan struct{}

	// coord drives the RUNNING -> DRAINING -> UNMOUNTING -> CLOSED lifecycle
	// when Unmount is called on this handle.
	coord *shutdown.Coordinator
}

// Dir returns the directory on which the file system is mounted (or where
// we attempted to mount it).
func (mfs *MountedFileSystem) Dir() string {
	return mfs.dir
}

// Join blocks until a mounted file system has been unmounted. The return
// value is non-nil if anything unexpected happened while serving. May be
// called multiple times.
func (mfs *MountedFileSystem) Join(ctx context.Context) error {
	select {
	case <-mfs.joinStatusAvailable:
		return mfs.joinStatus
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkMountPoint verifies that dir is suitable to mount onto: it must
// exist and, unless it's one of the externally-managed /dev/fd/N paths
// handed to us by a parent process, it must be empty.
func checkMountPoint(dir string) error {
	if _, err := parseFuseFd(dir); err == nil {
		return nil
	}

	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening mount point: %v", err)
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if err != nil && len(names) == 0 {
		return nil
	}

	if len(names) > 0 {
		return fmt.Errorf("mount point %s is not empty", dir)
	}

	return nil
}

// Mount attempts to mount a file system on the given directory, using the
// supplied Server to serve connection requests. This function blocks until
// the file system is successfully mounted; on most systems that requires
// the supplied Server to make forward progress (in particular, to respond
// to the initial fuseops.InitOp).
func Mount(
	dir string,
	server Server,
	config *MountConfig) (mfs *MountedFileSystem, err error) {
	if config == nil {
		config = &MountConfig{}
	}

	if err = checkMountPoint(dir); err != nil {
		return nil, err
	}

	mfs = &MountedFileSystem{
		dir:                 dir,
		joinStatusAvailable: make(chan struct{}),
	}

	ready := make(chan error, 1)
	dev, err := mount(dir, config.toMountConfig(), ready)
	if err != nil {
		return nil, fmt.Errorf("mount: %v", err)
	}

	connection, err := newConnection(*config, config.debugLogger(), config.errorLogger(), dev)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("newConnection: %v", err)
	}

	mfs.coord = shutdown.New(drainerFor(server), mfsUnmounter{dir: dir}, nil)
	if err = mfs.coord.Initialize(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("shutdown.Initialize: %v", err)
	}

	go func() {
		server.ServeOps(connection)
		mfs.joinStatus = connection.close()
		close(mfs.joinStatusAvailable)
	}()

	if err = <-ready; err != nil {
		return nil, fmt.Errorf("waiting for mount to complete: %v", err)
	}

	return mfs, nil
}

// Unmount drives the mount's connection through the graceful shutdown
// lifecycle: draining whatever the Server is still working on, then asking
// the kernel to unmount, bounded by shutdown.DefaultTimeouts() unless
// overridden via mfs's Coordinator. It blocks until the lifecycle reaches
// CLOSED (ServeOps will then see EOF and return, completing Join) and
// reports whether every phase finished within its own timeout.
func (mfs *MountedFileSystem) Unmount(reason string, timeoutTotal time.Duration) bool {
	return mfs.coord.InitiateGraceful(reason, timeoutTotal)
}

// UnmountState returns the current phase of mfs's shutdown lifecycle.
func (mfs *MountedFileSystem) UnmountState() shutdown.State {
	return mfs.coord.State()
}

// Unmount attempts to unmount the file system mounted at dir, without
// running the graceful drain lifecycle. Prefer MountedFileSystem.Unmount
// when a handle to the mount is available.
func Unmount(dir string) error {
	return unmount(dir)
}
