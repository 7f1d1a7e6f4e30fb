package udev

import (
	"testing"

	"github.com/Hara602/devtree/internal/sysfstest"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) (*Context, *sysfstest.Tree) {
	t.Helper()
	tr := sysfstest.Standard(t)
	ctx, err := NewContext(WithSysPath(tr.Sys), WithDevPath(tr.Dev), WithRunPath(tr.Run))
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx, tr
}

func openDevice(t *testing.T, ctx *Context, syspath string) *Device {
	t.Helper()
	d, err := ctx.DeviceFromSyspath(syspath)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}
