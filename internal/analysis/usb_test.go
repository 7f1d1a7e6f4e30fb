package analysis

import (
	"testing"

	"github.com/Hara602/devtree/internal/sysfstest"
	"github.com/Hara602/devtree/pkg/udev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, tr *sysfstest.Tree) *udev.Context {
	t.Helper()
	ctx, err := udev.NewContext(udev.WithSysPath(tr.Sys), udev.WithDevPath(tr.Dev), udev.WithRunPath(tr.Run))
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func openDevice(t *testing.T, ctx *udev.Context, syspath string) *udev.Device {
	t.Helper()
	d, err := ctx.DeviceFromSyspath(syspath)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestFindUSBDevice(t *testing.T) {
	tr := sysfstest.Standard(t)
	ctx := newTestContext(t, tr)

	tests := []struct {
		name    string
		devpath string
		wantOK  bool
	}{
		{name: "partition", devpath: sysfstest.Partition, wantOK: true},
		{name: "interface", devpath: sysfstest.USBIface, wantOK: true},
		{name: "device itself", devpath: sysfstest.USBStick, wantOK: true},
		{name: "pci controller", devpath: sysfstest.XHCI},
		{name: "virtual", devpath: sysfstest.MD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usb, ok := FindUSBDevice(ctx, openDevice(t, ctx, tr.Path(tt.devpath)))
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			defer usb.Close()
			p, _ := usb.Syspath()
			assert.Equal(t, tr.Path(sysfstest.USBStick), p)
		})
	}
	assert.Equal(t, int32(1), ctx.RefCount())
}

func TestReadUSBInfo(t *testing.T) {
	tr := sysfstest.Standard(t)
	ctx := newTestContext(t, tr)

	info := ReadUSBInfo(openDevice(t, ctx, tr.Path(sysfstest.USBStick)))
	assert.Equal(t, USBInfo{
		Syspath:      tr.Path(sysfstest.USBStick),
		VendorID:     "0781",
		ProductID:    "5567",
		Serial:       "4C530001",
		Manufacturer: "SanDisk",
	}, info)
}

// TestClassifyUSB verifies the verdict for each interface combination.
func TestClassifyUSB(t *testing.T) {
	const (
		hidIface  = sysfstest.USBStick + "/1-1:1.1"
		keyboard  = sysfstest.XHCI + "/usb1/1-2"
		kbdIface  = keyboard + "/1-2:1.0"
		usbDevice = "DEVTYPE=usb_device\n"
		usbIface  = "DEVTYPE=usb_interface\n"
	)

	tests := []struct {
		name  string
		setup func(tr *sysfstest.Tree)
		dev   string
		want  Class
	}{
		{name: "storage", dev: sysfstest.USBStick, want: ClassStorage},
		{
			name: "storage and keyboard",
			setup: func(tr *sysfstest.Tree) {
				tr.Device(hidIface, usbIface, map[string]string{"bInterfaceClass": "03\n"})
				tr.Bus(hidIface, "usb")
			},
			dev:  sysfstest.USBStick,
			want: ClassBadUSBSuspect,
		},
		{
			name: "keyboard",
			setup: func(tr *sysfstest.Tree) {
				tr.Device(keyboard, usbDevice, map[string]string{"idVendor": "046d\n"})
				tr.Bus(keyboard, "usb")
				tr.Device(kbdIface, usbIface, map[string]string{"bInterfaceClass": "03\n"})
				tr.Bus(kbdIface, "usb")
			},
			dev:  keyboard,
			want: ClassOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := sysfstest.Standard(t)
			if tt.setup != nil {
				tt.setup(tr)
			}
			ctx := newTestContext(t, tr)

			got, err := ClassifyUSB(ctx, openDevice(t, ctx, tr.Path(tt.dev)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want == ClassBadUSBSuspect, got.Suspicious())
		})
	}
}
