package udev

import (
	"errors"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrorKind classifies failures.
type ErrorKind int

const (
	// AllocationFailure means the backend produced no object: the thing
	// looked up does not exist or resources ran out.
	AllocationFailure ErrorKind = iota + 1
	// InvalidArgument means an argument could not be encoded or was
	// rejected, or the value is in a state that does not allow the call.
	InvalidArgument
	// BackendError carries any other errno from the backend.
	BackendError
)

func (k ErrorKind) String() string {
	switch k {
	case AllocationFailure:
		return "allocation failure"
	case InvalidArgument:
		return "invalid argument"
	case BackendError:
		return "backend error"
	}
	return "unknown error"
}

// Sentinels for errors.Is against an *Error of the matching kind.
var (
	ErrAllocation      = errors.New("udev: allocation failure")
	ErrInvalidArgument = errors.New("udev: invalid argument")
	ErrBackend         = errors.New("udev: backend error")
)

// State errors, wrapped in an *Error of kind InvalidArgument.
var (
	ErrScanned  = errors.New("enumerator already scanned")
	ErrConsumed = errors.New("monitor already consumed by Listen")
	ErrClosed   = errors.New("use of closed value")
	ErrNulByte  = errors.New("string contains NUL byte")
)

// Error is returned by every fallible operation in this package.
type Error struct {
	Op    string
	Kind  ErrorKind
	Errno unix.Errno // zero when the failure did not come from the backend
	Err   error      // underlying cause other than Errno, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("udev: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Errno != 0 {
		b.WriteString(": ")
		b.WriteString(e.Errno.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Errno != 0 {
		errs = append(errs, e.Errno)
	}
	return errs
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAllocation:
		return e.Kind == AllocationFailure
	case ErrInvalidArgument:
		return e.Kind == InvalidArgument
	case ErrBackend:
		return e.Kind == BackendError
	}
	return false
}

// backendErr translates a backend error code into the error taxonomy.
func backendErr(op string, err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return &Error{Op: op, Kind: BackendError, Err: err}
	}
	kind := BackendError
	switch errno {
	case unix.ENOMEM:
		kind = AllocationFailure
	case unix.EINVAL:
		kind = InvalidArgument
	}
	return &Error{Op: op, Kind: kind, Errno: errno}
}

// allocErr reports a constructor or lookup that produced no object.
func allocErr(op string, err error) error {
	e := &Error{Op: op, Kind: AllocationFailure}
	if !errors.As(err, &e.Errno) {
		e.Err = err
	}
	return e
}

func stateErr(op string, cause error) error {
	return &Error{Op: op, Kind: InvalidArgument, Err: cause}
}

// checkStrings rejects values that cannot be passed as C strings.
func checkStrings(op string, values ...string) error {
	for _, v := range values {
		if strings.IndexByte(v, 0) >= 0 {
			return &Error{Op: op, Kind: InvalidArgument, Errno: unix.EINVAL, Err: ErrNulByte}
		}
	}
	return nil
}

func encodable(s string) bool { return strings.IndexByte(s, 0) < 0 }
