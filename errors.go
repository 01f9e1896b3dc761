// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package fuse

import (
	"golang.org/x/sys/unix"
)

// Errno is an error that carries an explicit kernel error number, for
// operations wrappers to translate into the OutHeader.Error field of a
// reply. Any error returned by a fuseutil.FileSystem method that does not
// implement this interface is mapped to EIO.
type Errno interface {
	error
	Errno() int32
}

type errno int32

func (e errno) Error() string {
	return unix.Errno(-e).Error()
}

func (e errno) Errno() int32 {
	return int32(e)
}

// ToErrno extracts the kernel error number that should be reported to the
// kernel for err: zero for nil (success), the error's own number for an
// Errno, and EIO for any other error.
func ToErrno(err error) int32 {
	if err == nil {
		return 0
	}

	if e, ok := err.(Errno); ok {
		return e.Errno()
	}

	return int32(EIO)
}

// The errno values a file system is expected to return from its handlers.
// These are negative, matching the OutHeader.Error wire convention (the
// kernel interprets a negative reply as -errno).
const (
	EPERM        = errno(-int32(unix.EPERM))
	ENOENT       = errno(-int32(unix.ENOENT))
	EIO          = errno(-int32(unix.EIO))
	EBADF        = errno(-int32(unix.EBADF))
	EAGAIN       = errno(-int32(unix.EAGAIN))
	ENOMEM       = errno(-int32(unix.ENOMEM))
	EACCES       = errno(-int32(unix.EACCES))
	EBUSY        = errno(-int32(unix.EBUSY))
	EEXIST       = errno(-int32(unix.EEXIST))
	EXDEV        = errno(-int32(unix.EXDEV))
	ENOTDIR      = errno(-int32(unix.ENOTDIR))
	EISDIR       = errno(-int32(unix.EISDIR))
	EINVAL       = errno(-int32(unix.EINVAL))
	ENOTTY       = errno(-int32(unix.ENOTTY))
	ENOSPC       = errno(-int32(unix.ENOSPC))
	EROFS        = errno(-int32(unix.EROFS))
	ENAMETOOLONG = errno(-int32(unix.ENAMETOOLONG))
	ENOSYS       = errno(-int32(unix.ENOSYS))
	ENOTEMPTY    = errno(-int32(unix.ENOTEMPTY))
	ENODATA      = errno(-int32(unix.ENODATA))
	ENOTSUP      = errno(-int32(unix.ENOTSUP))
	ERANGE       = errno(-int32(unix.ERANGE))
	ETIMEDOUT    = errno(-int32(unix.ETIMEDOUT))
	ECANCELED    = errno(-int32(unix.ECANCELED))
	EPROTO       = errno(-int32(unix.EPROTO))
	ESHUTDOWN    = errno(-int32(unix.ESHUTDOWN))
)
