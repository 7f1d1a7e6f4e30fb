package udev

import "github.com/Hara602/devtree/internal/sysfs"

// handle is implemented by every type that wraps a native object.
type handle[T any] interface {
	raw() *T
}

var (
	_ handle[sysfs.Udev]      = (*Context)(nil)
	_ handle[sysfs.Device]    = (*Device)(nil)
	_ handle[sysfs.Enumerate] = (*Enumerator)(nil)
	_ handle[sysfs.Monitor]   = (*Monitor)(nil)
	_ handle[sysfs.Monitor]   = (*MonitorSocket)(nil)
)

// rootRef is one counted reference on the root resource. It is the only
// place the root count is touched.
type rootRef struct {
	udev *sysfs.Udev
}

func acquireRoot(u *sysfs.Udev) rootRef {
	return rootRef{udev: u.Ref()}
}

// release drops the reference. Later calls do nothing.
func (r *rootRef) release() {
	if r.udev != nil {
		r.udev.Unref()
		r.udev = nil
	}
}

func (r *rootRef) live() bool { return r.udev != nil }
