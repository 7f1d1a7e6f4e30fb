// Package sysfs is the device subsystem service the udev wrapper talks to.
//
// It reads the kernel device tree from a sysfs mount, the udev database
// from /run/udev and receives uevents over netlink. Objects are manually
// reference counted the same way libudev objects are: every New* returns an
// object holding one reference, Ref adds one, Unref drops one and the object
// is torn down when the count reaches zero. Device, Enumerate and Monitor
// objects point at their root Udev but do not hold a reference on it; callers
// that need the root to outlive them must take their own.
//
// Nothing in this package is safe for concurrent use.
package sysfs

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/Hara602/devtree/internal/sysutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Paths locates the trees the backend reads from.
type Paths struct {
	Sys string // sysfs mount, e.g. /sys
	Dev string // device node directory, e.g. /dev
	Run string // udev runtime directory, e.g. /run/udev
}

// DefaultPaths returns the locations used on a standard Linux host.
func DefaultPaths() Paths {
	return Paths{Sys: "/sys", Dev: "/dev", Run: "/run/udev"}
}

// Udev is the root resource every other object derives from.
type Udev struct {
	sysPath string
	devPath string
	runPath string
	refs    atomic.Int32
}

// New opens the root resource. It fails when the sysfs mount has no
// devices directory, which is the case when sysfs is not mounted or the
// process cannot read it.
func New(p Paths) (*Udev, error) {
	def := DefaultPaths()
	if p.Sys == "" {
		p.Sys = def.Sys
	}
	if p.Dev == "" {
		p.Dev = def.Dev
	}
	if p.Run == "" {
		p.Run = def.Run
	}

	sys, err := filepath.EvalSymlinks(p.Sys)
	if err != nil {
		return nil, errnoOf(err)
	}
	fi, err := os.Stat(filepath.Join(sys, "devices"))
	if err != nil {
		return nil, errnoOf(err)
	}
	if !fi.IsDir() {
		return nil, unix.ENOTDIR
	}

	u := &Udev{
		sysPath: filepath.Clean(sys),
		devPath: filepath.Clean(p.Dev),
		runPath: filepath.Clean(p.Run),
	}
	u.refs.Store(1)
	sysutil.Log.Debug("udev root allocated", zap.String("sys", u.sysPath))
	return u, nil
}

// Ref takes another reference on the root and returns it.
func (u *Udev) Ref() *Udev {
	u.refs.Add(1)
	return u
}

// Unref drops one reference. The last one tears the root down.
func (u *Udev) Unref() {
	switch n := u.refs.Add(-1); {
	case n == 0:
		sysutil.Log.Debug("udev root released", zap.String("sys", u.sysPath))
	case n < 0:
		panic("sysfs: udev reference count underflow")
	}
}

// Refs reports the number of live references.
func (u *Udev) Refs() int32 { return u.refs.Load() }

// SysPath returns the resolved sysfs mount point.
func (u *Udev) SysPath() string { return u.sysPath }

// DevPath returns the device node directory.
func (u *Udev) DevPath() string { return u.devPath }

// RunPath returns the udev runtime directory.
func (u *Udev) RunPath() string { return u.runPath }
