package udev

import (
	"errors"

	"github.com/Hara602/devtree/internal/sysfs"
	"github.com/Hara602/devtree/internal/sysutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Source selects which netlink group a monitor listens on.
type Source string

const (
	// SourceUdev delivers events after the udev daemon processed them, with
	// its rules applied and the database updated.
	SourceUdev Source = "udev"
	// SourceKernel delivers raw kernel uevents.
	SourceKernel Source = "kernel"
)

type monitorOptions struct {
	source Source
}

// MonitorOption configures NewMonitor.
type MonitorOption func(*monitorOptions)

func WithSource(s Source) MonitorOption {
	return func(o *monitorOptions) { o.source = s }
}

// Monitor collects event filters. Listen turns it into a MonitorSocket.
type Monitor struct {
	mon      *sysfs.Monitor
	root     rootRef
	consumed bool
}

// NewMonitor creates a monitor session on the udev source unless
// WithSource says otherwise.
func NewMonitor(c *Context, opts ...MonitorOption) (*Monitor, error) {
	const op = "new monitor"
	o := monitorOptions{source: SourceUdev}
	for _, opt := range opts {
		opt(&o)
	}
	if err := c.check(op, string(o.source)); err != nil {
		return nil, err
	}
	if o.source != SourceUdev && o.source != SourceKernel {
		return nil, &Error{Op: op, Kind: InvalidArgument, Errno: unix.EINVAL}
	}

	m, err := sysfs.NewMonitorFromNetlink(c.raw(), string(o.source))
	if err != nil {
		return nil, allocErr(op, err)
	}
	return &Monitor{mon: m, root: acquireRoot(c.raw())}, nil
}

// NewMonitorFromFD creates a monitor on a socket that is already bound,
// such as one passed in by a service manager. The monitor owns fd even when
// NewMonitorFromFD fails.
func NewMonitorFromFD(c *Context, fd int, s Source) (*Monitor, error) {
	const op = "new monitor from fd"
	if err := c.check(op, string(s)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if s != SourceUdev && s != SourceKernel {
		unix.Close(fd)
		return nil, &Error{Op: op, Kind: InvalidArgument, Errno: unix.EINVAL}
	}
	m, err := sysfs.NewMonitorFromFD(c.raw(), fd, string(s))
	if err != nil {
		if fd >= 0 {
			unix.Close(fd)
		}
		return nil, backendErr(op, err)
	}
	return &Monitor{mon: m, root: acquireRoot(c.raw())}, nil
}

func (m *Monitor) raw() *sysfs.Monitor { return m.mon }

func (m *Monitor) usable(op string) error {
	switch {
	case m.consumed:
		return stateErr(op, ErrConsumed)
	case m.mon == nil:
		return stateErr(op, ErrClosed)
	}
	return nil
}

// MatchSubsystem passes events of the given subsystem.
func (m *Monitor) MatchSubsystem(subsystem string) error {
	const op = "monitor match subsystem"
	if err := m.usable(op); err != nil {
		return err
	}
	if err := checkStrings(op, subsystem); err != nil {
		return err
	}
	if err := m.mon.FilterAddMatchSubsystemDevtype(subsystem, ""); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// MatchSubsystemDevtype passes events of the given subsystem and devtype,
// e.g. ("usb", "usb_device").
func (m *Monitor) MatchSubsystemDevtype(subsystem, devtype string) error {
	const op = "monitor match subsystem/devtype"
	if err := m.usable(op); err != nil {
		return err
	}
	if err := checkStrings(op, subsystem, devtype); err != nil {
		return err
	}
	if devtype == "" {
		return &Error{Op: op, Kind: InvalidArgument, Errno: unix.EINVAL}
	}
	if err := m.mon.FilterAddMatchSubsystemDevtype(subsystem, devtype); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// MatchTag passes events of devices carrying tag. Tags are only present on
// events from the udev source.
func (m *Monitor) MatchTag(tag string) error {
	const op = "monitor match tag"
	if err := m.usable(op); err != nil {
		return err
	}
	if err := checkStrings(op, tag); err != nil {
		return err
	}
	if err := m.mon.FilterAddMatchTag(tag); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// ClearFilters removes every match added so far.
func (m *Monitor) ClearFilters() error {
	const op = "monitor clear filters"
	if err := m.usable(op); err != nil {
		return err
	}
	if err := m.mon.FilterRemove(); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// Listen installs the filters and starts receiving. The Monitor is used up
// whether or not Listen succeeds; on failure its resources are released.
func (m *Monitor) Listen() (*MonitorSocket, error) {
	const op = "monitor listen"
	if err := m.usable(op); err != nil {
		return nil, err
	}
	mon, root := m.mon, m.root
	m.mon, m.root, m.consumed = nil, rootRef{}, true

	if err := mon.EnableReceiving(); err != nil {
		mon.Unref()
		root.release()
		return nil, backendErr(op, err)
	}
	return &MonitorSocket{mon: mon, root: root}, nil
}

// Close releases a Monitor that was never passed to Listen.
func (m *Monitor) Close() error {
	if m.mon != nil {
		m.mon.Unref()
		m.mon = nil
	}
	m.root.release()
	return nil
}

// MonitorSocket is a monitor that is receiving events.
type MonitorSocket struct {
	mon  *sysfs.Monitor
	root rootRef
}

func (s *MonitorSocket) raw() *sysfs.Monitor { return s.mon }

// FD returns the socket descriptor for use with poll or epoll, or -1 after
// Close. Reading from it directly is not supported.
func (s *MonitorSocket) FD() int {
	if s.mon == nil {
		return -1
	}
	return s.mon.FD()
}

// ReceiveEvent returns the next queued event without blocking. It reports
// false when no event is ready.
func (s *MonitorSocket) ReceiveEvent() (*Event, bool) {
	if s.mon == nil {
		return nil, false
	}
	d, err := s.mon.ReceiveDevice()
	if err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN):
		case errors.Is(err, unix.ENOBUFS):
			sysutil.Log.Warn("monitor receive queue overflowed, events were lost")
		default:
			sysutil.Log.Debug("monitor receive failed", zap.Error(err))
		}
		return nil, false
	}
	return newEvent(newDevice(d)), true
}

// Close closes the socket and then releases the root reference.
func (s *MonitorSocket) Close() error {
	if s.mon != nil {
		s.mon.Unref()
		s.mon = nil
	}
	s.root.release()
	return nil
}
