package sysfs

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// errnoOf reduces a non-nil error to the errno the C library would report.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	switch {
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, fs.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, fs.ErrPermission):
		return unix.EACCES
	default:
		return unix.EIO
	}
}
