package udev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Hara602/devtree/internal/sysfstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDevice_Accessors(t *testing.T) {
	ctx, tr := newTestContext(t)
	d := openDevice(t, ctx, tr.Path(sysfstest.Partition))

	str := func(v string, ok bool) string {
		assert.True(t, ok)
		return v
	}
	assert.Equal(t, tr.Path(sysfstest.Partition), str(d.Syspath()))
	assert.Equal(t, sysfstest.Partition, str(d.Devpath()))
	assert.Equal(t, filepath.Join(tr.Dev, "sda1"), str(d.Devnode()))
	assert.Equal(t, "block", str(d.Subsystem()))
	assert.Equal(t, "sda1", str(d.Sysname()))
	assert.Equal(t, "partition", str(d.Devtype()))

	n, ok := d.Sysnum()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), n)
	dn, ok := d.Devnum()
	assert.True(t, ok)
	assert.Equal(t, Makedev(8, 1), dn)

	_, ok = d.Driver()
	assert.False(t, ok)
	_, ok = d.Action()
	assert.False(t, ok)
	assert.Zero(t, d.SequenceNumber())
	assert.True(t, d.IsInitialized())
	assert.Equal(t, []string{"systemd"}, d.Tags())
	assert.Len(t, d.Devlinks(), 2)
}

func TestDevice_AbsentFields(t *testing.T) {
	ctx, tr := newTestContext(t)
	root := openDevice(t, ctx, tr.Path(sysfstest.PCIRoot))

	_, ok := root.Subsystem()
	assert.False(t, ok)
	_, ok = root.Devnode()
	assert.False(t, ok)
	_, ok = root.Devnum()
	assert.False(t, ok)
	_, ok = root.Devtype()
	assert.False(t, ok)
	_, ok = root.Parent()
	assert.False(t, ok)

	lo := openDevice(t, ctx, tr.Path(sysfstest.Loopback))
	_, ok = lo.Sysnum()
	assert.False(t, ok)
	assert.False(t, lo.IsInitialized())
}

func TestDevice_Parent(t *testing.T) {
	ctx, tr := newTestContext(t)
	d := openDevice(t, ctx, tr.Path(sysfstest.Partition))

	want := []string{sysfstest.Disk, sysfstest.USBIface, sysfstest.USBStick, sysfstest.XHCI, sysfstest.PCIRoot}
	var got []string
	cur := d
	for {
		p, ok := cur.Parent()
		if !ok {
			break
		}
		defer p.Close()
		dp, _ := p.Devpath()
		got = append(got, dp)
		cur = p
	}
	assert.Equal(t, want, got)
	// one reference for the context, one per open device
	assert.Equal(t, int32(len(want)+2), ctx.RefCount())
}

func TestDevice_PropertyValue(t *testing.T) {
	ctx, tr := newTestContext(t)
	d := openDevice(t, ctx, tr.Path(sysfstest.USBStick))

	v, ok := d.PropertyValue("ID_VENDOR")
	assert.True(t, ok)
	assert.Equal(t, "SanDisk", v)

	_, ok = d.PropertyValue("ID_MISSING")
	assert.False(t, ok)
	_, ok = d.PropertyValue("ID_\x00VENDOR")
	assert.False(t, ok)
}

func TestDevice_AttributeValue(t *testing.T) {
	ctx, tr := newTestContext(t)
	d := openDevice(t, ctx, tr.Path(sysfstest.USBStick))

	v, ok := d.AttributeValue("idVendor")
	assert.True(t, ok)
	assert.Equal(t, "0781", v)

	_, ok = d.AttributeValue("nope")
	assert.False(t, ok)
	_, ok = d.AttributeValue("id\x00Vendor")
	assert.False(t, ok)
}

func TestDevice_SetAttributeValue(t *testing.T) {
	ctx, tr := newTestContext(t)
	d := openDevice(t, ctx, tr.Path(sysfstest.USBStick))

	require.NoError(t, d.SetAttributeValue("authorized", "0"))
	b, err := os.ReadFile(filepath.Join(tr.Path(sysfstest.USBStick), "authorized"))
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(b))

	err = d.SetAttributeValue("auth\x00orized", "0")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = d.SetAttributeValue("authorized", "0\x00")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = d.SetAttributeValue("does_not_exist", "1")
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, unix.ENXIO)

	err = d.SetAttributeValue("1-1:1.0", "1")
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, unix.EISDIR)
}

func TestDevice_Properties(t *testing.T) {
	ctx, tr := newTestContext(t)
	d := openDevice(t, ctx, tr.Path(sysfstest.Partition))

	first := d.Properties()
	second := d.Properties()

	seen := map[string]string{}
	for p := range first.All() {
		seen[p.Name] = p.Value
	}
	assert.Equal(t, "vfat", seen["ID_FS_TYPE"])
	assert.Equal(t, "partition", seen["DEVTYPE"])
	for name, value := range seen {
		v, ok := d.PropertyValue(name)
		assert.True(t, ok, name)
		assert.Equal(t, value, v, name)
	}

	// exhausted iterators stay exhausted
	_, ok := first.Next()
	assert.False(t, ok)
	_, ok = first.Next()
	assert.False(t, ok)

	// other iterators are unaffected
	n := 0
	for {
		if _, ok := second.Next(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, len(seen), n)
}

// TestDevice_Attributes verifies that attribute values are read at the
// time Value is called, not when the list is built.
func TestDevice_Attributes(t *testing.T) {
	ctx, tr := newTestContext(t)
	d := openDevice(t, ctx, tr.Path(sysfstest.USBStick))

	var attrs []Attribute
	for a := range d.Attributes().All() {
		attrs = append(attrs, a)
	}
	var names []string
	for _, a := range attrs {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"authorized", "idProduct", "idVendor", "manufacturer", "serial", "subsystem"}, names)

	require.NoError(t, os.WriteFile(filepath.Join(tr.Path(sysfstest.USBStick), "serial"), []byte("XYZ\n"), 0o644))
	v, ok := attrs[4].Value()
	assert.True(t, ok)
	assert.Equal(t, "XYZ", v)
	v, ok = attrs[5].Value()
	assert.True(t, ok)
	assert.Equal(t, "usb", v)

	require.NoError(t, os.Remove(filepath.Join(tr.Path(sysfstest.USBStick), "manufacturer")))
	_, ok = attrs[3].Value()
	assert.False(t, ok)
}

func TestDevice_Closed(t *testing.T) {
	ctx, tr := newTestContext(t)
	d, err := ctx.DeviceFromSyspath(tr.Path(sysfstest.Disk))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ctx.RefCount())

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, int32(1), ctx.RefCount())

	_, ok := d.Syspath()
	assert.False(t, ok)
	_, ok = d.PropertyValue("DEVNAME")
	assert.False(t, ok)
	_, ok = d.Properties().Next()
	assert.False(t, ok)
	assert.ErrorIs(t, d.SetAttributeValue("size", "1"), ErrClosed)
}
