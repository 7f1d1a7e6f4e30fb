package sysfs

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// readDB loads the udev database record of the device, if there is one.
//
// Record lines are "<type>:<payload>":
//
//	S: device node symlink, relative to the device directory
//	E: property KEY=VALUE
//	G: tag
//	I: usec timestamp of initialization
func (d *Device) readDB() {
	id := d.deviceID()
	if id == "" {
		return
	}
	f, err := os.Open(filepath.Join(d.udev.runPath, "data", id))
	if err != nil {
		return
	}
	defer f.Close()

	d.dbProps = make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 2 || line[1] != ':' {
			continue
		}
		val := line[2:]
		switch line[0] {
		case 'S':
			d.devlinks = append(d.devlinks, filepath.Join(d.udev.devPath, val))
		case 'E':
			if k, v, ok := strings.Cut(val, "="); ok {
				d.dbProps[k] = v
			}
		case 'G':
			if !d.HasTag(val) {
				d.tags = append(d.tags, val)
			}
		case 'I':
			d.dbProps["USEC_INITIALIZED"] = val
		}
	}
	d.initialized = true
}

// taggedIDs lists the database ids of devices carrying tag.
func (u *Udev) taggedIDs(tag string) []string {
	entries, err := os.ReadDir(filepath.Join(u.runPath, "tags", tag))
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Name())
	}
	return ids
}
