// Package analysis inspects USB devices and the volumes they carry.
package analysis

import (
	"github.com/Hara602/devtree/pkg/udev"
)

// Class is the verdict of ClassifyUSB.
type Class string

const (
	// ClassBadUSBSuspect is a device exposing both a mass storage and a
	// HID interface: a stick that can also type.
	ClassBadUSBSuspect Class = "BADUSB_SUSPECT"
	ClassStorage       Class = "udisk"
	ClassOther         Class = "other"
)

// USB interface class codes as found in bInterfaceClass.
const (
	interfaceClassHID     = "03"
	interfaceClassStorage = "08"
)

// Suspicious reports whether the class warrants an alert.
func (c Class) Suspicious() bool { return c == ClassBadUSBSuspect }

// USBInfo identifies a USB device.
type USBInfo struct {
	Syspath      string
	VendorID     string
	ProductID    string
	Serial       string
	Product      string
	Manufacturer string
}

// ReadUSBInfo collects the identifying attributes of a usb_device. Missing
// attributes are left empty.
func ReadUSBInfo(usb *udev.Device) USBInfo {
	attr := func(name string) string {
		v, _ := usb.AttributeValue(name)
		return v
	}
	syspath, _ := usb.Syspath()
	return USBInfo{
		Syspath:      syspath,
		VendorID:     attr("idVendor"),
		ProductID:    attr("idProduct"),
		Serial:       attr("serial"),
		Product:      attr("product"),
		Manufacturer: attr("manufacturer"),
	}
}

// FindUSBDevice returns the usb_device dev belongs to: dev itself or its
// closest usb_device ancestor. The caller closes the returned Device.
func FindUSBDevice(ctx *udev.Context, dev *udev.Device) (*udev.Device, bool) {
	if isUSBDevice(dev) {
		syspath, ok := dev.Syspath()
		if !ok {
			return nil, false
		}
		d, err := ctx.DeviceFromSyspath(syspath)
		if err != nil {
			return nil, false
		}
		return d, true
	}

	cur, ok := dev.Parent()
	for ok {
		if isUSBDevice(cur) {
			return cur, true
		}
		next, more := cur.Parent()
		cur.Close()
		cur, ok = next, more
	}
	return nil, false
}

func isUSBDevice(d *udev.Device) bool {
	subsystem, _ := d.Subsystem()
	devtype, _ := d.Devtype()
	return subsystem == "usb" && devtype == "usb_device"
}

// ClassifyUSB looks at the interfaces below usb. A device that offers
// storage and HID at the same time is a BadUSB suspect.
func ClassifyUSB(ctx *udev.Context, usb *udev.Device) (Class, error) {
	e, err := udev.NewEnumerator(ctx)
	if err != nil {
		return ClassOther, err
	}
	defer e.Close()

	if err := e.MatchParent(usb); err != nil {
		return ClassOther, err
	}
	if err := e.MatchProperty("DEVTYPE", "usb_interface"); err != nil {
		return ClassOther, err
	}
	devices, err := e.ScanDevices()
	if err != nil {
		return ClassOther, err
	}
	defer devices.Close()

	hasStorage, hasHID := false, false
	for iface := range devices.All() {
		switch class, _ := iface.AttributeValue("bInterfaceClass"); class {
		case interfaceClassHID:
			hasHID = true
		case interfaceClassStorage:
			hasStorage = true
		}
		iface.Close()
	}

	switch {
	case hasStorage && hasHID:
		return ClassBadUSBSuspect, nil
	case hasStorage:
		return ClassStorage, nil
	}
	return ClassOther, nil
}
