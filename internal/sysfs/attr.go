package sysfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

func (d *Device) attrPath(name string) (string, bool) {
	p := filepath.Join(d.syspath, name)
	if name == "" || !strings.HasPrefix(p, d.syspath+"/") {
		return "", false
	}
	return p, true
}

// SysattrValue reads an attribute file of the device. Nothing is cached:
// every call reads the file again.
func (d *Device) SysattrValue(name string) (string, bool) {
	p, ok := d.attrPath(name)
	if !ok {
		return "", false
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return "", false
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		// only these links have a meaningful value: the name they point at
		switch name {
		case "driver", "subsystem", "module":
			return readLinkBase(p)
		}
		return "", false
	}
	if fi.IsDir() || fi.Mode().Perm()&0o400 == 0 {
		return "", false
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(string(b), "\n"), true
}

// SetSysattrValue writes value into the attribute file. A trailing newline
// is stripped before writing.
func (d *Device) SetSysattrValue(name, value string) error {
	p, ok := d.attrPath(name)
	if !ok {
		return unix.EINVAL
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return unix.ENXIO
	}
	switch {
	case fi.Mode()&fs.ModeSymlink != 0:
		return unix.EINVAL
	case fi.IsDir():
		return unix.EISDIR
	case fi.Mode().Perm()&0o400 == 0:
		return unix.EACCES
	}

	value = strings.TrimRight(value, "\n")
	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if err != nil {
		return errnoOf(err)
	}
	n, err := f.WriteString(value)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errnoOf(err)
	}
	if n < len(value) {
		return unix.EIO
	}
	return nil
}

// Sysattrs returns the head of the attribute name list: readable regular
// files and symlinks in the device directory, minus uevent.
func (d *Device) Sysattrs() *ListEntry {
	if d.attrRead {
		return d.attrList
	}
	d.attrRead = true

	entries, err := os.ReadDir(d.syspath)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || name == "uevent" {
			continue
		}
		if !e.Type().IsRegular() && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Mode().Perm()&0o400 == 0 {
			continue
		}
		names = append(names, name)
	}
	d.attrList = buildNameList(names)
	return d.attrList
}
