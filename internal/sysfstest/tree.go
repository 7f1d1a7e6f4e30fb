// Package sysfstest builds throwaway sysfs, /dev and /run/udev trees for
// tests.
package sysfstest

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// Devpaths of the devices created by Standard.
const (
	PCIRoot   = "/devices/pci0000:00"
	XHCI      = PCIRoot + "/0000:00:14.0"
	USBStick  = XHCI + "/usb1/1-1"
	USBIface  = USBStick + "/1-1:1.0"
	Disk      = USBIface + "/host0/target0:0:0/0:0:0:0/block/sda"
	Partition = Disk + "/sda1"
	Loopback  = "/devices/virtual/net/lo"
	MD        = "/devices/virtual/block/md0"
)

// Tree is a fake device tree rooted in a temporary directory.
type Tree struct {
	Sys string
	Dev string
	Run string

	t testing.TB
}

// New creates the empty skeleton of a tree.
func New(t testing.TB) *Tree {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	tr := &Tree{
		Sys: filepath.Join(root, "sys"),
		Dev: filepath.Join(root, "dev"),
		Run: filepath.Join(root, "run", "udev"),
		t:   t,
	}
	for _, dir := range []string{
		filepath.Join(tr.Sys, "devices"),
		filepath.Join(tr.Sys, "bus"),
		filepath.Join(tr.Sys, "class"),
		filepath.Join(tr.Sys, "dev", "block"),
		filepath.Join(tr.Sys, "dev", "char"),
		tr.Dev,
		filepath.Join(tr.Run, "data"),
		filepath.Join(tr.Run, "tags"),
	} {
		tr.mkdir(dir)
	}
	return tr
}

// Path returns the absolute syspath of devpath.
func (tr *Tree) Path(devpath string) string { return tr.Sys + devpath }

// Device creates the device directory with its uevent file and attribute
// files.
func (tr *Tree) Device(devpath, uevent string, attrs map[string]string) string {
	dir := tr.Path(devpath)
	tr.mkdir(dir)
	tr.write(filepath.Join(dir, "uevent"), uevent)
	for name, value := range attrs {
		tr.write(filepath.Join(dir, name), value)
	}
	return dir
}

// Bus registers the device under /sys/bus/<subsystem>/devices.
func (tr *Tree) Bus(devpath, subsystem string) {
	base := filepath.Join(tr.Sys, "bus", subsystem)
	tr.mkdir(filepath.Join(base, "devices"))
	tr.mkdir(filepath.Join(base, "drivers"))
	tr.Link(base, filepath.Join(tr.Path(devpath), "subsystem"))
	tr.Link(tr.Path(devpath), filepath.Join(base, "devices", filepath.Base(devpath)))
}

// Class registers the device under /sys/class/<subsystem>.
func (tr *Tree) Class(devpath, subsystem string) {
	base := filepath.Join(tr.Sys, "class", subsystem)
	tr.mkdir(base)
	tr.Link(base, filepath.Join(tr.Path(devpath), "subsystem"))
	tr.Link(tr.Path(devpath), filepath.Join(base, filepath.Base(devpath)))
}

// Driver binds the device to a driver of its bus.
func (tr *Tree) Driver(devpath, subsystem, driver string) {
	dir := filepath.Join(tr.Sys, "bus", subsystem, "drivers", driver)
	tr.mkdir(dir)
	tr.Link(dir, filepath.Join(tr.Path(devpath), "driver"))
}

// Devnum creates the /sys/dev/{block,char}/MAJOR:MINOR link.
func (tr *Tree) Devnum(devpath, kind string, major, minor uint32) {
	name := strconv.FormatUint(uint64(major), 10) + ":" + strconv.FormatUint(uint64(minor), 10)
	tr.Link(tr.Path(devpath), filepath.Join(tr.Sys, "dev", kind, name))
}

// DB writes the udev database record for id.
func (tr *Tree) DB(id string, lines ...string) {
	var b []byte
	for _, l := range lines {
		b = append(b, l...)
		b = append(b, '\n')
	}
	tr.write(filepath.Join(tr.Run, "data", id), string(b))
}

// Tag marks id with tag in the tag index.
func (tr *Tree) Tag(tag, id string) {
	dir := filepath.Join(tr.Run, "tags", tag)
	tr.mkdir(dir)
	tr.write(filepath.Join(dir, id), "")
}

// Link creates link pointing at target.
func (tr *Tree) Link(target, link string) {
	tr.t.Helper()
	tr.mkdir(filepath.Dir(link))
	if err := os.Symlink(target, link); err != nil {
		tr.t.Fatalf("symlink %s: %v", link, err)
	}
}

// Remove deletes the device directory.
func (tr *Tree) Remove(devpath string) {
	tr.t.Helper()
	if err := os.RemoveAll(tr.Path(devpath)); err != nil {
		tr.t.Fatalf("remove %s: %v", devpath, err)
	}
}

func (tr *Tree) mkdir(dir string) {
	tr.t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tr.t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func (tr *Tree) write(path, content string) {
	tr.t.Helper()
	tr.mkdir(filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tr.t.Fatalf("write %s: %v", path, err)
	}
}

// Standard builds a host with a PCI USB controller, a USB stick exposing
// one mass storage interface with a partitioned disk, the loopback
// interface and an md array.
func Standard(t testing.TB) *Tree {
	tr := New(t)

	tr.Device(PCIRoot, "", nil)

	tr.Device(XHCI, "DRIVER=xhci_hcd\nPCI_CLASS=C0330\n", map[string]string{"vendor": "0x8086\n"})
	tr.Bus(XHCI, "pci")
	tr.Driver(XHCI, "pci", "xhci_hcd")

	tr.Device(USBStick, "MAJOR=189\nMINOR=1\nDEVNAME=bus/usb/001/002\nDEVTYPE=usb_device\nPRODUCT=781/5567/100\n",
		map[string]string{
			"idVendor":     "0781\n",
			"idProduct":    "5567\n",
			"serial":       "4C530001\n",
			"manufacturer": "SanDisk\n",
			"authorized":   "1\n",
		})
	tr.Bus(USBStick, "usb")
	tr.Devnum(USBStick, "char", 189, 1)
	tr.DB("c189:1", "E:ID_VENDOR=SanDisk", "E:ID_MODEL=Cruzer_Blade", "G:uaccess", "I:1000")
	tr.Tag("uaccess", "c189:1")

	tr.Device(USBIface, "DEVTYPE=usb_interface\nINTERFACE=8/6/80\n", map[string]string{"bInterfaceClass": "08\n"})
	tr.Bus(USBIface, "usb")

	tr.Device(Disk, "MAJOR=8\nMINOR=0\nDEVNAME=sda\nDEVTYPE=disk\n",
		map[string]string{"size": "30031872\n", "removable": "1\n"})
	tr.Class(Disk, "block")
	tr.Devnum(Disk, "block", 8, 0)
	tr.DB("b8:0", "S:disk/by-id/usb-SanDisk_Cruzer_Blade", "E:ID_BUS=usb", "G:systemd", "I:2000")
	tr.Tag("systemd", "b8:0")

	tr.Device(Partition, "MAJOR=8\nMINOR=1\nDEVNAME=sda1\nDEVTYPE=partition\nPARTN=1\n",
		map[string]string{"partition": "1\n", "size": "30029824\n"})
	tr.Class(Partition, "block")
	tr.Devnum(Partition, "block", 8, 1)
	tr.DB("b8:1",
		"S:disk/by-uuid/1234-ABCD",
		"S:disk/by-id/usb-SanDisk_Cruzer_Blade-part1",
		"E:ID_FS_TYPE=vfat",
		"E:ID_FS_UUID=1234-ABCD",
		"G:systemd",
		"I:3000")
	tr.Tag("systemd", "b8:1")

	tr.Device(Loopback, "INTERFACE=lo\nIFINDEX=1\n",
		map[string]string{"ifindex": "1\n", "address": "00:00:00:00:00:00\n", "mtu": "65536\n"})
	tr.Class(Loopback, "net")

	tr.Device(MD, "MAJOR=9\nMINOR=0\nDEVNAME=md0\nDEVTYPE=disk\n", nil)
	tr.Class(MD, "block")
	tr.Devnum(MD, "block", 9, 0)

	return tr
}
