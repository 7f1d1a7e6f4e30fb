package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// NewFromDevnum looks a device up by its type ('b' or 'c') and number.
func NewFromDevnum(u *Udev, kind byte, devnum uint64) (*Device, error) {
	var dir string
	switch kind {
	case 'b':
		dir = "block"
	case 'c':
		dir = "char"
	default:
		return nil, unix.EINVAL
	}
	name := strconv.FormatUint(uint64(Major(devnum)), 10) + ":" + strconv.FormatUint(uint64(Minor(devnum)), 10)
	return NewFromSyspath(u, filepath.Join(u.sysPath, "dev", dir, name))
}

// NewFromSubsystemSysname looks a device up by subsystem and kernel name,
// trying the same directories libudev does.
func NewFromSubsystemSysname(u *Udev, subsystem, sysname string) (*Device, error) {
	name := strings.ReplaceAll(sysname, "/", "!")
	sys := u.sysPath

	var candidates []string
	switch subsystem {
	case "subsystem":
		candidates = []string{
			filepath.Join(sys, "subsystem", name),
			filepath.Join(sys, "bus", name),
			filepath.Join(sys, "class", name),
		}
	case "module":
		candidates = []string{filepath.Join(sys, "module", name)}
	case "drivers":
		subsys, driver, ok := strings.Cut(name, ":")
		if !ok {
			return nil, unix.EINVAL
		}
		candidates = []string{
			filepath.Join(sys, "subsystem", subsys, "drivers", driver),
			filepath.Join(sys, "bus", subsys, "drivers", driver),
		}
	default:
		candidates = []string{
			filepath.Join(sys, "subsystem", subsystem, "devices", name),
			filepath.Join(sys, "bus", subsystem, "devices", name),
			filepath.Join(sys, "class", subsystem, name),
		}
	}

	for _, p := range candidates {
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		if d, err := NewFromSyspath(u, p); err == nil {
			return d, nil
		}
	}
	return nil, unix.ENODEV
}

// NewFromIfindex looks a network interface up by index.
func NewFromIfindex(u *Udev, ifindex int) (*Device, error) {
	dir := filepath.Join(u.sysPath, "class", "net")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, unix.ENODEV
	}
	want := strconv.Itoa(ifindex)
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name(), "ifindex"))
		if err != nil || strings.TrimSpace(string(b)) != want {
			continue
		}
		return NewFromSyspath(u, filepath.Join(dir, e.Name()))
	}
	return nil, unix.ENODEV
}

// NewFromDeviceID resolves a udev database id such as "b8:1", "n2" or
// "+usb:1-1".
func NewFromDeviceID(u *Udev, id string) (*Device, error) {
	if id == "" {
		return nil, unix.EINVAL
	}
	switch id[0] {
	case 'b', 'c':
		maj, mnr, ok := strings.Cut(id[1:], ":")
		if !ok {
			return nil, unix.EINVAL
		}
		major, err1 := strconv.ParseUint(maj, 10, 32)
		minor, err2 := strconv.ParseUint(mnr, 10, 32)
		if err1 != nil || err2 != nil {
			return nil, unix.EINVAL
		}
		return NewFromDevnum(u, id[0], Mkdev(uint32(major), uint32(minor)))
	case 'n':
		ifindex, err := strconv.Atoi(id[1:])
		if err != nil || ifindex <= 0 {
			return nil, unix.EINVAL
		}
		return NewFromIfindex(u, ifindex)
	case '+':
		subsystem, sysname, ok := strings.Cut(id[1:], ":")
		if !ok {
			return nil, unix.EINVAL
		}
		return NewFromSubsystemSysname(u, subsystem, sysname)
	}
	return nil, unix.EINVAL
}
