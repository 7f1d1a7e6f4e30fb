//go:build !linux

package sysfs

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Monitor is unavailable outside Linux; every operation fails.
type Monitor struct {
	udev *Udev
	refs atomic.Int32
}

func NewMonitorFromNetlink(u *Udev, name string) (*Monitor, error) {
	return nil, unix.ENOTSUP
}

func NewMonitorFromFD(u *Udev, fd int, name string) (*Monitor, error) {
	return nil, unix.ENOTSUP
}

func (m *Monitor) Ref() *Monitor                                    { m.refs.Add(1); return m }
func (m *Monitor) Unref()                                           { m.refs.Add(-1) }
func (m *Monitor) Udev() *Udev                                      { return m.udev }
func (m *Monitor) FD() int                                          { return -1 }
func (m *Monitor) FilterAddMatchSubsystemDevtype(s, d string) error { return unix.ENOTSUP }
func (m *Monitor) FilterAddMatchTag(tag string) error               { return unix.ENOTSUP }
func (m *Monitor) FilterUpdate() error                              { return unix.ENOTSUP }
func (m *Monitor) FilterRemove() error                              { return unix.ENOTSUP }
func (m *Monitor) EnableReceiving() error                           { return unix.ENOTSUP }
func (m *Monitor) ReceiveDevice() (*Device, error)                  { return nil, unix.ENOTSUP }
