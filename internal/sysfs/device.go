package sysfs

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Device is one record of the kernel device tree.
type Device struct {
	udev *Udev
	refs atomic.Int32

	syspath   string
	devpath   string
	sysname   string
	sysnum    string
	subsystem string
	devtype   string
	driver    string
	devnode   string
	devnum    uint64
	ifindex   int
	seqnum    uint64
	action    string
	devlinks  []string
	tags      []string

	// initialized is set once a udev database record was read or the
	// device arrived from the udev daemon.
	initialized bool
	dbProps     map[string]string
	props       map[string]string

	propList *ListEntry
	attrList *ListEntry
	attrRead bool
}

// Mkdev packs a major/minor pair the way the Linux kernel ABI expects.
func Mkdev(major, minor uint32) uint64 {
	maj, mnr := uint64(major), uint64(minor)
	return ((maj & 0xfffff000) << 32) |
		((maj & 0xfff) << 8) |
		((mnr & 0xffffff00) << 12) |
		(mnr & 0xff)
}

// Major extracts the major number from a packed device number.
func Major(dev uint64) uint32 {
	return uint32(((dev >> 8) & 0xfff) | ((dev >> 32) & 0xfffff000))
}

// Minor extracts the minor number from a packed device number.
func Minor(dev uint64) uint32 {
	return uint32((dev & 0xff) | ((dev >> 12) & 0xffffff00))
}

func newDevice(u *Udev) *Device {
	d := &Device{udev: u}
	d.refs.Store(1)
	return d
}

// NewFromSyspath reads the device at syspath. The path must lie inside the
// sysfs mount; symlinks such as /sys/class/net/eth0 are resolved.
func NewFromSyspath(u *Udev, syspath string) (*Device, error) {
	real, err := u.resolveSyspath(syspath)
	if err != nil {
		return nil, err
	}

	d := newDevice(u)
	d.setSyspath(real)

	env := readUevent(filepath.Join(real, "uevent"))
	d.applyEnv(env)
	if d.subsystem == "" {
		d.subsystem = u.subsystemOf(real)
	}
	if drv, ok := readLinkBase(filepath.Join(real, "driver")); ok {
		d.driver = drv
	}
	d.readDB()
	d.props = d.collectProperties(env)
	return d, nil
}

// NewFromEnv builds a device from a received uevent record. fromUdev marks
// records that were processed by the udev daemon.
func NewFromEnv(u *Udev, env map[string]string, fromUdev bool) (*Device, error) {
	if env["DEVPATH"] == "" || env["SUBSYSTEM"] == "" || env["ACTION"] == "" {
		return nil, unix.EINVAL
	}

	d := newDevice(u)
	d.setSyspath(filepath.Join(u.sysPath, env["DEVPATH"]))
	d.subsystem = env["SUBSYSTEM"]
	d.applyEnv(env)
	d.initialized = fromUdev
	d.props = d.collectProperties(env)
	return d, nil
}

// resolveSyspath validates syspath the way libudev does and returns the
// real path of the device directory.
func (u *Udev) resolveSyspath(syspath string) (string, error) {
	syspath = filepath.Clean(syspath)
	if !strings.HasPrefix(syspath, u.sysPath+"/") {
		return "", unix.EINVAL
	}
	sub := syspath[len(u.sysPath):]
	if pos := strings.LastIndexByte(sub, '/'); pos < 2 {
		return "", unix.EINVAL
	}

	real, err := filepath.EvalSymlinks(syspath)
	if err != nil {
		return "", errnoOf(err)
	}
	if !strings.HasPrefix(real, u.sysPath+"/") {
		return "", unix.EINVAL
	}

	if strings.HasPrefix(real, u.sysPath+"/devices/") {
		// every device below /sys/devices carries a uevent file
		if _, err := os.Stat(filepath.Join(real, "uevent")); err != nil {
			return "", unix.ENODEV
		}
		return real, nil
	}
	fi, err := os.Stat(real)
	if err != nil || !fi.IsDir() {
		return "", unix.ENODEV
	}
	return real, nil
}

// subsystemOf derives the subsystem of paths that have no subsystem link.
func (u *Udev) subsystemOf(syspath string) string {
	if s, ok := readLinkBase(filepath.Join(syspath, "subsystem")); ok {
		return s
	}
	parts := strings.Split(strings.TrimPrefix(syspath[len(u.sysPath):], "/"), "/")
	switch {
	case parts[0] == "module" && len(parts) == 2:
		return "module"
	case parts[0] == "bus" && len(parts) == 4 && parts[2] == "drivers":
		return "drivers"
	case (parts[0] == "subsystem" || parts[0] == "class" || parts[0] == "bus") && len(parts) == 2:
		return "subsystem"
	}
	return ""
}

func (d *Device) setSyspath(p string) {
	d.syspath = p
	d.devpath = p[len(d.udev.sysPath):]
	d.sysname = strings.ReplaceAll(filepath.Base(p), "!", "/")

	i := len(d.sysname)
	for i > 0 && d.sysname[i-1] >= '0' && d.sysname[i-1] <= '9' {
		i--
	}
	if i > 0 && i < len(d.sysname) {
		d.sysnum = d.sysname[i:]
	}
}

func (d *Device) applyEnv(env map[string]string) {
	var major, minor uint64
	var hasMajor bool
	for k, v := range env {
		switch k {
		case "DEVTYPE":
			d.devtype = v
		case "DRIVER":
			d.driver = v
		case "DEVNAME":
			if strings.HasPrefix(v, "/") {
				d.devnode = v
			} else if v != "" {
				d.devnode = filepath.Join(d.udev.devPath, v)
			}
		case "MAJOR":
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				major, hasMajor = n, true
			}
		case "MINOR":
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				minor = n
			}
		case "IFINDEX":
			d.ifindex, _ = strconv.Atoi(v)
		case "SEQNUM":
			d.seqnum, _ = strconv.ParseUint(v, 10, 64)
		case "ACTION":
			d.action = v
		case "DEVLINKS":
			d.devlinks = strings.Fields(v)
		case "TAGS":
			d.tags = splitTags(v)
		}
	}
	if hasMajor {
		d.devnum = Mkdev(uint32(major), uint32(minor))
	}
}

func (d *Device) collectProperties(env map[string]string) map[string]string {
	props := make(map[string]string, len(env)+len(d.dbProps)+6)
	for k, v := range env {
		props[k] = v
	}
	props["DEVPATH"] = d.devpath
	if d.subsystem != "" {
		props["SUBSYSTEM"] = d.subsystem
	}
	if d.devnode != "" {
		props["DEVNAME"] = d.devnode
	}
	if d.driver != "" {
		props["DRIVER"] = d.driver
	}
	for k, v := range d.dbProps {
		props[k] = v
	}
	if len(d.devlinks) > 0 {
		props["DEVLINKS"] = strings.Join(d.devlinks, " ")
	}
	if len(d.tags) > 0 {
		props["TAGS"] = ":" + strings.Join(d.tags, ":") + ":"
	}
	return props
}

// Ref takes another reference on the device.
func (d *Device) Ref() *Device {
	d.refs.Add(1)
	return d
}

// Unref drops one reference; the last one frees the cached lists.
func (d *Device) Unref() {
	switch n := d.refs.Add(-1); {
	case n == 0:
		d.props, d.dbProps = nil, nil
		d.propList, d.attrList = nil, nil
	case n < 0:
		panic("sysfs: device reference count underflow")
	}
}

// Udev returns the root the device was created from without referencing it.
func (d *Device) Udev() *Udev { return d.udev }

func (d *Device) Syspath() string   { return d.syspath }
func (d *Device) Devpath() string   { return d.devpath }
func (d *Device) Sysname() string   { return d.sysname }
func (d *Device) Sysnum() string    { return d.sysnum }
func (d *Device) Subsystem() string { return d.subsystem }
func (d *Device) Devtype() string   { return d.devtype }
func (d *Device) Driver() string    { return d.driver }
func (d *Device) Devnode() string   { return d.devnode }
func (d *Device) Devnum() uint64    { return d.devnum }
func (d *Device) Ifindex() int      { return d.ifindex }
func (d *Device) Seqnum() uint64    { return d.seqnum }
func (d *Device) Action() string    { return d.action }
func (d *Device) Devlinks() []string {
	return append([]string(nil), d.devlinks...)
}
func (d *Device) Tags() []string {
	return append([]string(nil), d.tags...)
}

// IsInitialized reports whether udev has processed the device. Devices
// without a device node or network interface are always initialized.
func (d *Device) IsInitialized() bool {
	if d.devnum == 0 && d.ifindex == 0 {
		return true
	}
	return d.initialized
}

// HasTag reports whether the device carries tag.
func (d *Device) HasTag(tag string) bool {
	for _, t := range d.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// PropertyValue looks up one property.
func (d *Device) PropertyValue(key string) (string, bool) {
	v, ok := d.props[key]
	return v, ok
}

// Properties returns the head of the property list, sorted by name.
func (d *Device) Properties() *ListEntry {
	if d.propList == nil {
		d.propList = buildList(d.props)
	}
	return d.propList
}

// Parent walks up the syspath until it finds a directory that is a device.
func (d *Device) Parent() (*Device, error) {
	sys := d.udev.sysPath
	rel := strings.TrimPrefix(d.syspath[len(sys):], "/")
	for {
		pos := strings.LastIndexByte(rel, '/')
		if pos < 2 {
			return nil, unix.ENOENT
		}
		rel = rel[:pos]
		if p, err := NewFromSyspath(d.udev, sys+"/"+rel); err == nil {
			return p, nil
		}
	}
}

// deviceID is the key of the device in the udev database.
func (d *Device) deviceID() string {
	switch {
	case d.devnum != 0:
		kind := 'c'
		if d.subsystem == "block" {
			kind = 'b'
		}
		return string(kind) + strconv.FormatUint(uint64(Major(d.devnum)), 10) + ":" +
			strconv.FormatUint(uint64(Minor(d.devnum)), 10)
	case d.ifindex > 0:
		return "n" + strconv.Itoa(d.ifindex)
	case d.subsystem == "" || d.sysname == "":
		return ""
	case d.subsystem == "drivers":
		return "+drivers:" + filepath.Base(filepath.Dir(filepath.Dir(d.syspath))) + ":" + d.sysname
	default:
		return "+" + d.subsystem + ":" + d.sysname
	}
}

func readUevent(path string) map[string]string {
	env := make(map[string]string)
	b, err := os.ReadFile(path)
	if err != nil {
		return env
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if k, v, ok := strings.Cut(sc.Text(), "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func readLinkBase(path string) (string, bool) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", false
	}
	return filepath.Base(target), true
}

func splitTags(v string) []string {
	var tags []string
	for _, t := range strings.Split(v, ":") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
