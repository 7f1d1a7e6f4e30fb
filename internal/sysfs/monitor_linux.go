//go:build linux

package sysfs

import (
	"sync/atomic"

	"github.com/Hara602/devtree/internal/sysutil"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// recvBufferSize fits the largest record the udev daemon sends.
const recvBufferSize = 16 * 1024

// Monitor is a netlink uevent socket. Filters are collected first and
// turned into a socket filter by EnableReceiving.
type Monitor struct {
	udev *Udev
	refs atomic.Int32

	fd    int
	group netlink.Mode
	bound bool

	subsystems []subsystemFilter
	tags       []string
	buf        []byte
}

// NewMonitorFromNetlink opens an unbound uevent socket. name selects the
// source: "udev" for records processed by the udev daemon, "kernel" for
// raw kernel records.
func NewMonitorFromNetlink(u *Udev, name string) (*Monitor, error) {
	group, err := groupOf(name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, errnoOf(err)
	}
	return newMonitorFD(u, fd, group, false), nil
}

// NewMonitorFromFD wraps a socket that is already bound, e.g. one handed
// over by a service manager. The monitor owns fd from then on.
func NewMonitorFromFD(u *Udev, fd int, name string) (*Monitor, error) {
	if fd < 0 {
		return nil, unix.EBADF
	}
	group, err := groupOf(name)
	if err != nil {
		return nil, err
	}
	return newMonitorFD(u, fd, group, true), nil
}

func groupOf(name string) (netlink.Mode, error) {
	switch name {
	case "udev":
		return netlink.UdevEvent, nil
	case "kernel":
		return netlink.KernelEvent, nil
	}
	return 0, unix.EINVAL
}

func newMonitorFD(u *Udev, fd int, group netlink.Mode, bound bool) *Monitor {
	m := &Monitor{
		udev:  u,
		fd:    fd,
		group: group,
		bound: bound,
		buf:   make([]byte, recvBufferSize),
	}
	m.refs.Store(1)
	return m
}

// Ref takes another reference on the monitor.
func (m *Monitor) Ref() *Monitor {
	m.refs.Add(1)
	return m
}

// Unref drops one reference; the last one closes the socket.
func (m *Monitor) Unref() {
	switch n := m.refs.Add(-1); {
	case n == 0:
		if m.fd >= 0 {
			unix.Close(m.fd)
			m.fd = -1
		}
	case n < 0:
		panic("sysfs: monitor reference count underflow")
	}
}

// Udev returns the root the monitor was created from without referencing it.
func (m *Monitor) Udev() *Udev { return m.udev }

// FD returns the socket descriptor for readiness polling.
func (m *Monitor) FD() int { return m.fd }

// FilterAddMatchSubsystemDevtype adds a subsystem match; an empty devtype
// matches every devtype of the subsystem.
func (m *Monitor) FilterAddMatchSubsystemDevtype(subsystem, devtype string) error {
	if subsystem == "" {
		return unix.EINVAL
	}
	m.subsystems = append(m.subsystems, subsystemFilter{subsystem: subsystem, devtype: devtype})
	return nil
}

func (m *Monitor) FilterAddMatchTag(tag string) error {
	if tag == "" {
		return unix.EINVAL
	}
	m.tags = append(m.tags, tag)
	return nil
}

// FilterUpdate attaches the socket filter built from the current matches.
func (m *Monitor) FilterUpdate() error {
	prog, err := buildFilter(m.subsystems, m.tags)
	if err != nil {
		return err
	}
	if prog == nil {
		return nil
	}
	raw, err := bpf.Assemble(prog)
	if err != nil {
		return unix.EINVAL
	}
	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := unix.SockFprog{Len: uint16(len(filter)), Filter: &filter[0]}
	if err := unix.SetsockoptSockFprog(m.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
		return errnoOf(err)
	}
	sysutil.Log.Debug("monitor filter attached",
		zap.Int("instructions", len(filter)),
		zap.Int("subsystems", len(m.subsystems)),
		zap.Int("tags", len(m.tags)))
	return nil
}

// FilterRemove drops every match and detaches the socket filter.
func (m *Monitor) FilterRemove() error {
	m.subsystems, m.tags = nil, nil
	err := unix.SetsockoptInt(m.fd, unix.SOL_SOCKET, unix.SO_DETACH_FILTER, 0)
	if err != nil && err != unix.ENOENT {
		return errnoOf(err)
	}
	return nil
}

// EnableReceiving attaches the filter and binds the socket to its
// multicast group.
func (m *Monitor) EnableReceiving() error {
	if err := m.FilterUpdate(); err != nil {
		return err
	}
	if m.bound {
		return nil
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: uint32(m.group)}
	if err := unix.Bind(m.fd, sa); err != nil {
		return errnoOf(err)
	}
	m.bound = true
	return nil
}

// ReceiveDevice returns the next queued record that passes the filters.
// It never blocks: with nothing queued it fails with EAGAIN.
func (m *Monitor) ReceiveDevice() (*Device, error) {
	for {
		n, from, err := unix.Recvfrom(m.fd, m.buf, unix.MSG_DONTWAIT)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errnoOf(err)
		}
		if n <= 0 || n >= len(m.buf) {
			sysutil.Log.Debug("monitor dropped truncated record", zap.Int("len", n))
			continue
		}
		if sa, ok := from.(*unix.SockaddrNetlink); ok && sa.Groups == uint32(netlink.KernelEvent) && sa.Pid > 0 {
			// kernel group records only ever come from the kernel itself
			continue
		}

		env, fromUdev, err := parseRecord(m.buf[:n])
		if err != nil {
			sysutil.Log.Debug("monitor dropped malformed record", zap.Error(err))
			continue
		}
		if !passesFilter(m.subsystems, m.tags, env) {
			continue
		}

		d, err := NewFromEnv(m.udev, env, fromUdev)
		if err != nil {
			sysutil.Log.Debug("monitor dropped incomplete record", zap.String("devpath", env["DEVPATH"]))
			continue
		}
		return d, nil
	}
}
