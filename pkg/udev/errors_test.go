package udev

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestBackendErr_Mapping(t *testing.T) {
	tests := []struct {
		errno unix.Errno
		kind  ErrorKind
		is    error
	}{
		{unix.ENOMEM, AllocationFailure, ErrAllocation},
		{unix.EINVAL, InvalidArgument, ErrInvalidArgument},
		{unix.EACCES, BackendError, ErrBackend},
		{unix.EROFS, BackendError, ErrBackend},
		{unix.ENOENT, BackendError, ErrBackend},
	}
	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			err := backendErr("write", tt.errno)
			var uerr *Error
			assert.True(t, errors.As(err, &uerr))
			assert.Equal(t, tt.kind, uerr.Kind)
			assert.Equal(t, tt.errno, uerr.Errno)
			assert.ErrorIs(t, err, tt.is)
			assert.ErrorIs(t, err, tt.errno)
		})
	}
}

func TestError_Message(t *testing.T) {
	err := backendErr("set attribute value", unix.EACCES)
	assert.Equal(t, "udev: set attribute value: backend error: permission denied", err.Error())

	err = stateErr("scan devices", ErrScanned)
	assert.Equal(t, "udev: scan devices: invalid argument: enumerator already scanned", err.Error())
	assert.NotErrorIs(t, err, ErrBackend)

	plain := errors.New("boom")
	err = backendErr("x", plain)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, plain)
}

func TestAllocErr(t *testing.T) {
	err := allocErr("device from syspath", unix.ENODEV)
	assert.ErrorIs(t, err, ErrAllocation)
	assert.ErrorIs(t, err, unix.ENODEV)
	assert.Equal(t, "allocation failure", AllocationFailure.String())
}
