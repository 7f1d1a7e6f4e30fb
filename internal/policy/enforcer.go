package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hara602/devtree/internal/analysis"
	"github.com/Hara602/devtree/internal/sysutil"
	"github.com/Hara602/devtree/pkg/udev"
	"go.uber.org/zap"
)

// ErrNotUSB is returned for devices with no usb_device in their ancestry.
var ErrNotUSB = errors.New("policy: device is not on a USB bus")

// Decision is the outcome of Enforce.
type Decision struct {
	Device  analysis.USBInfo
	Blocked bool
	Reason  string
}

// Enforcer applies Rules to connected devices.
type Enforcer struct {
	rules *Rules
	opts  []udev.Option
}

// NewEnforcer returns an enforcer that opens device trees with opts.
func NewEnforcer(rules *Rules, opts ...udev.Option) *Enforcer {
	return &Enforcer{rules: rules, opts: opts}
}

// Enforce looks up the USB device syspath belongs to and, when the rules
// block it, writes 0 to its authorized attribute. The kernel then unbinds
// every interface driver of the device.
//
// Enforce opens its own context, so it may be called from any goroutine.
func (e *Enforcer) Enforce(ctx context.Context, syspath string) (Decision, error) {
	uctx, err := udev.NewContext(e.opts...)
	if err != nil {
		return Decision{}, err
	}
	defer uctx.Close()

	dev, err := uctx.DeviceFromSyspath(syspath)
	if err != nil {
		return Decision{}, err
	}
	defer dev.Close()

	usb, ok := analysis.FindUSBDevice(uctx, dev)
	if !ok {
		return Decision{}, ErrNotUSB
	}
	defer usb.Close()

	d := Decision{Device: analysis.ReadUSBInfo(usb)}
	d.Blocked, d.Reason, err = e.rules.IsBlocked(ctx, d.Device.VendorID, d.Device.ProductID, d.Device.Serial)
	if err != nil || !d.Blocked {
		return d, err
	}

	if err := usb.SetAttributeValue("authorized", "0"); err != nil {
		return d, fmt.Errorf("deauthorizing %s: %w", d.Device.Syspath, err)
	}
	sysutil.Log.Warn("usb device blocked",
		zap.String("syspath", d.Device.Syspath),
		zap.String("vid", d.Device.VendorID),
		zap.String("pid", d.Device.ProductID),
		zap.String("serial", d.Device.Serial),
		zap.String("reason", d.Reason))
	return d, nil
}
