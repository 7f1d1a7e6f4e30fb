//go:build linux

package sysfs

import (
	"encoding/binary"
	"testing"

	"github.com/Hara602/devtree/internal/sysfstest"
	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newPairMonitor returns a monitor reading from one end of a datagram
// socketpair and the fd of the other end.
func newPairMonitor(t *testing.T, u *Udev) (*Monitor, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	m := newMonitorFD(u, fds[0], netlink.UdevEvent, true)
	t.Cleanup(func() {
		m.Unref()
		unix.Close(fds[1])
	})
	return m, fds[1]
}

func send(t *testing.T, fd int, rec []byte) {
	t.Helper()
	_, err := unix.Write(fd, rec)
	require.NoError(t, err)
}

func TestMonitor_ReceiveDeviceEmpty(t *testing.T) {
	tr := sysfstest.New(t)
	m, _ := newPairMonitor(t, newTestUdev(t, tr))

	d, err := m.ReceiveDevice()
	assert.Nil(t, d)
	assert.ErrorIs(t, err, unix.EAGAIN)
}

func TestMonitor_ReceiveDevice(t *testing.T) {
	tr := sysfstest.New(t)
	u := newTestUdev(t, tr)
	m, peer := newPairMonitor(t, u)

	send(t, peer, udevRecord(partitionEnv()))
	send(t, peer, kernelRecord(netEnv()))

	d, err := m.ReceiveDevice()
	require.NoError(t, err)
	defer d.Unref()
	assert.Equal(t, "add", d.Action())
	assert.Equal(t, "block", d.Subsystem())
	assert.Equal(t, "partition", d.Devtype())
	assert.Equal(t, uint64(12), d.Seqnum())
	assert.Equal(t, tr.Sys+"/devices/virtual/block/loop0/loop0p1", d.Syspath())
	assert.Equal(t, []string{"systemd", "uaccess"}, d.Tags())

	k, err := m.ReceiveDevice()
	require.NoError(t, err)
	defer k.Unref()
	assert.Equal(t, "net", k.Subsystem())
	assert.Equal(t, "veth0", k.Sysname())
	assert.Equal(t, uint64(13), k.Seqnum())

	_, err = m.ReceiveDevice()
	assert.ErrorIs(t, err, unix.EAGAIN)
}

// TestMonitor_UserspaceFilter verifies that records the socket filter could
// not reject are dropped before they become devices.
func TestMonitor_UserspaceFilter(t *testing.T) {
	tr := sysfstest.New(t)
	m, peer := newPairMonitor(t, newTestUdev(t, tr))
	require.NoError(t, m.FilterAddMatchSubsystemDevtype("net", ""))

	send(t, peer, udevRecord(partitionEnv()))
	send(t, peer, []byte("garbage"))
	send(t, peer, kernelRecord(netEnv()))

	d, err := m.ReceiveDevice()
	require.NoError(t, err)
	defer d.Unref()
	assert.Equal(t, "net", d.Subsystem())

	_, err = m.ReceiveDevice()
	assert.ErrorIs(t, err, unix.EAGAIN)

	require.NoError(t, m.FilterRemove())
	send(t, peer, udevRecord(partitionEnv()))
	d2, err := m.ReceiveDevice()
	require.NoError(t, err)
	defer d2.Unref()
	assert.Equal(t, "block", d2.Subsystem())
}

func TestMonitor_RejectsEmptyFilters(t *testing.T) {
	tr := sysfstest.New(t)
	m, _ := newPairMonitor(t, newTestUdev(t, tr))
	assert.ErrorIs(t, m.FilterAddMatchSubsystemDevtype("", "disk"), unix.EINVAL)
	assert.ErrorIs(t, m.FilterAddMatchTag(""), unix.EINVAL)
}

func TestNewMonitorFromNetlink_UnknownSource(t *testing.T) {
	tr := sysfstest.New(t)
	_, err := NewMonitorFromNetlink(newTestUdev(t, tr), "bogus")
	assert.ErrorIs(t, err, unix.EINVAL)
}

func TestParseRecord(t *testing.T) {
	rec := udevRecord(partitionEnv())
	env, fromUdev, err := parseRecord(rec)
	require.NoError(t, err)
	assert.True(t, fromUdev)
	assert.Equal(t, partitionEnv(), env)

	env, fromUdev, err = parseRecord(kernelRecord(netEnv()))
	require.NoError(t, err)
	assert.False(t, fromUdev)
	assert.Equal(t, "net", env["SUBSYSTEM"])
	assert.Equal(t, "/devices/virtual/net/veth0", env["DEVPATH"])

	_, _, err = parseRecord(rec[:udevHeaderSize-1])
	assert.ErrorIs(t, err, errBadRecord)

	bad := append([]byte(nil), rec...)
	binary.NativeEndian.PutUint32(bad[offPropertiesLen:], uint32(len(rec)))
	_, _, err = parseRecord(bad)
	assert.ErrorIs(t, err, errBadRecord)
}
