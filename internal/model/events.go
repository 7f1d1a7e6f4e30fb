// Package model holds the records passed between the watcher, the policy
// layer and the journal.
package model

import "time"

// ActionExisting marks devices reported by the startup scan rather than
// by a uevent.
const ActionExisting = "existing"

// DeviceEvent is one device change as seen by the watcher.
type DeviceEvent struct {
	Action     string // "add", "remove", "change", ActionExisting
	Seqnum     uint64 // 0 for ActionExisting
	Syspath    string
	Subsystem  string
	Devtype    string
	DevicePath string // e.g. /dev/sdb1
	MountPoint string // e.g. /media/usb, filled in late for partitions

	// USB identity of the device or its closest usb_device ancestor.
	USBSyspath string
	VendorID   string
	ProductID  string
	Serial     string
	Product    string
	DeviceType string // "udisk", "BADUSB_SUSPECT", "other"

	TimeStamp time.Time
}

// IsUSB reports whether the event carries a USB identity.
func (e DeviceEvent) IsUSB() bool { return e.USBSyspath != "" }
