package udev

import (
	"strconv"

	"github.com/Hara602/devtree/internal/sysfs"
)

// Option configures a Context.
type Option func(*sysfs.Paths)

// WithSysPath points the Context at a sysfs mount other than /sys.
func WithSysPath(path string) Option { return func(p *sysfs.Paths) { p.Sys = path } }

// WithDevPath sets the directory device nodes are reported under.
func WithDevPath(path string) Option { return func(p *sysfs.Paths) { p.Dev = path } }

// WithRunPath sets the udev runtime directory holding the device database.
func WithRunPath(path string) Option { return func(p *sysfs.Paths) { p.Run = path } }

// Context is a reference to the root of the device tree. Every other value
// in this package is derived from one.
type Context struct {
	root rootRef
}

// NewContext opens the device tree.
func NewContext(opts ...Option) (*Context, error) {
	paths := sysfs.DefaultPaths()
	for _, opt := range opts {
		opt(&paths)
	}
	if err := checkStrings("new context", paths.Sys, paths.Dev, paths.Run); err != nil {
		return nil, err
	}

	u, err := sysfs.New(paths)
	if err != nil {
		return nil, allocErr("new context", err)
	}
	// New hands out the first reference; the Context adopts it.
	return &Context{root: rootRef{udev: u}}, nil
}

func (c *Context) raw() *sysfs.Udev { return c.root.udev }

// Clone returns another Context sharing the same root. Cloning a closed
// Context fails with ErrClosed.
func (c *Context) Clone() (*Context, error) {
	if !c.root.live() {
		return nil, stateErr("clone context", ErrClosed)
	}
	return &Context{root: acquireRoot(c.root.udev)}, nil
}

// Close drops the reference. The root itself goes away once every value
// derived from it has been closed too.
func (c *Context) Close() error {
	c.root.release()
	return nil
}

// RefCount reports how many references the root currently has, or 0 when c
// has been closed.
func (c *Context) RefCount() int32 {
	if !c.root.live() {
		return 0
	}
	return c.root.udev.Refs()
}

// DeviceFromSyspath looks a device up by its path below the sysfs mount.
func (c *Context) DeviceFromSyspath(syspath string) (*Device, error) {
	const op = "device from syspath"
	if err := c.check(op, syspath); err != nil {
		return nil, err
	}
	d, err := sysfs.NewFromSyspath(c.raw(), syspath)
	if err != nil {
		return nil, allocErr(op, err)
	}
	return newDevice(d), nil
}

// DeviceFromDevnum looks a device up by its type and device number.
func (c *Context) DeviceFromDevnum(kind DeviceKind, major, minor uint32) (*Device, error) {
	const op = "device from devnum"
	if err := c.check(op); err != nil {
		return nil, err
	}
	d, err := sysfs.NewFromDevnum(c.raw(), byte(kind), sysfs.Mkdev(major, minor))
	if err != nil {
		return nil, allocErr(op, err)
	}
	return newDevice(d), nil
}

// DeviceFromSubsystemSysname looks a device up by subsystem and kernel name,
// e.g. ("net", "eth0") or ("block", "sda1").
func (c *Context) DeviceFromSubsystemSysname(subsystem, sysname string) (*Device, error) {
	const op = "device from subsystem/sysname"
	if err := c.check(op, subsystem, sysname); err != nil {
		return nil, err
	}
	d, err := sysfs.NewFromSubsystemSysname(c.raw(), subsystem, sysname)
	if err != nil {
		return nil, allocErr(op, err)
	}
	return newDevice(d), nil
}

func (c *Context) check(op string, args ...string) error {
	if !c.root.live() {
		return stateErr(op, ErrClosed)
	}
	return checkStrings(op, args...)
}

// DeviceKind selects the device number namespace.
type DeviceKind byte

const (
	CharDevice  DeviceKind = 'c'
	BlockDevice DeviceKind = 'b'
)

func (k DeviceKind) String() string {
	switch k {
	case CharDevice:
		return "char"
	case BlockDevice:
		return "block"
	}
	return "unknown"
}

// Devnum is a packed major/minor device number in the kernel's
// userspace encoding.
type Devnum uint64

// Makedev packs major and minor into a Devnum.
func Makedev(major, minor uint32) Devnum {
	return Devnum(sysfs.Mkdev(major, minor))
}

func (n Devnum) Major() uint32 { return sysfs.Major(uint64(n)) }
func (n Devnum) Minor() uint32 { return sysfs.Minor(uint64(n)) }

func (n Devnum) String() string {
	return strconv.FormatUint(uint64(n.Major()), 10) + ":" + strconv.FormatUint(uint64(n.Minor()), 10)
}
