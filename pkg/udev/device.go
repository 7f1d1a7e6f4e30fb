package udev

import (
	"strconv"

	"github.com/Hara602/devtree/internal/sysfs"
)

// Device is one node of the device tree.
type Device struct {
	dev  *sysfs.Device
	root rootRef
}

// newDevice adopts the reference d was created with and takes one on the
// root for the lifetime of the returned Device.
func newDevice(d *sysfs.Device) *Device {
	return &Device{dev: d, root: acquireRoot(d.Udev())}
}

func (d *Device) raw() *sysfs.Device { return d.dev }

// Close releases the device record and then the root reference.
func (d *Device) Close() error {
	if d.dev != nil {
		d.dev.Unref()
		d.dev = nil
	}
	d.root.release()
	return nil
}

func present(s string) (string, bool) { return s, s != "" }

// Syspath returns the absolute path of the device below the sysfs mount.
func (d *Device) Syspath() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Syspath())
}

// Devpath returns the syspath without the sysfs mount prefix.
func (d *Device) Devpath() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Devpath())
}

// Devnode returns the device node path, e.g. /dev/sda.
func (d *Device) Devnode() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Devnode())
}

func (d *Device) Subsystem() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Subsystem())
}

// Sysname returns the kernel name of the device, e.g. sda1.
func (d *Device) Sysname() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Sysname())
}

// Sysnum returns the trailing instance number of the kernel name, e.g. 1
// for sda1.
func (d *Device) Sysnum() (uint64, bool) {
	if d.dev == nil || d.dev.Sysnum() == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(d.dev.Sysnum(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (d *Device) Devtype() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Devtype())
}

func (d *Device) Driver() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Driver())
}

// Devnum returns the device number. Devices without a device node have none.
func (d *Device) Devnum() (Devnum, bool) {
	if d.dev == nil || d.dev.Devnum() == 0 {
		return 0, false
	}
	return Devnum(d.dev.Devnum()), true
}

// Action returns the uevent action of a device received from a monitor.
func (d *Device) Action() (string, bool) {
	if d.dev == nil {
		return "", false
	}
	return present(d.dev.Action())
}

// SequenceNumber returns the kernel sequence number of a device received
// from a monitor, or 0.
func (d *Device) SequenceNumber() uint64 {
	if d.dev == nil {
		return 0
	}
	return d.dev.Seqnum()
}

// Parent returns the closest ancestor that is a device itself.
func (d *Device) Parent() (*Device, bool) {
	if d.dev == nil {
		return nil, false
	}
	p, err := d.dev.Parent()
	if err != nil {
		return nil, false
	}
	return newDevice(p), true
}

// IsInitialized reports whether udev has finished processing the device.
func (d *Device) IsInitialized() bool {
	return d.dev != nil && d.dev.IsInitialized()
}

func (d *Device) Tags() []string {
	if d.dev == nil {
		return nil
	}
	return d.dev.Tags()
}

func (d *Device) Devlinks() []string {
	if d.dev == nil {
		return nil
	}
	return d.dev.Devlinks()
}

// PropertyValue returns the value of one udev property.
func (d *Device) PropertyValue(key string) (string, bool) {
	if d.dev == nil || !encodable(key) {
		return "", false
	}
	return d.dev.PropertyValue(key)
}

// AttributeValue reads one sysfs attribute. The value is read from the
// attribute file on every call.
func (d *Device) AttributeValue(name string) (string, bool) {
	if d.dev == nil || !encodable(name) {
		return "", false
	}
	return d.dev.SysattrValue(name)
}

// SetAttributeValue writes value into the attribute file.
func (d *Device) SetAttributeValue(name, value string) error {
	const op = "set attribute value"
	if d.dev == nil {
		return stateErr(op, ErrClosed)
	}
	if err := checkStrings(op, name, value); err != nil {
		return err
	}
	if err := d.dev.SetSysattrValue(name, value); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// Properties returns a new iterator over the device's properties.
func (d *Device) Properties() *Properties {
	if d.dev == nil {
		return &Properties{}
	}
	return &Properties{entry: d.dev.Properties()}
}

// Attributes returns a new iterator over the device's attribute names.
func (d *Device) Attributes() *Attributes {
	if d.dev == nil {
		return &Attributes{}
	}
	return &Attributes{entry: d.dev.Sysattrs(), device: d}
}
