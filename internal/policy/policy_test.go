package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Hara602/devtree/internal/store"
	"github.com/Hara602/devtree/internal/sysfstest"
	"github.com/Hara602/devtree/pkg/udev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRules(t *testing.T) *Rules {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "devtree.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRules(db)
}

// TestRules_IsBlocked verifies the serial heuristic and stored rules.
func TestRules_IsBlocked(t *testing.T) {
	ctx := context.Background()
	r := newTestRules(t)
	require.NoError(t, r.AddBlockRule(ctx, "0781", "5567", "4C530001", "lost stick"))
	require.NoError(t, r.AddBlockRule(ctx, "046d", "c52b", "ABC", ""))

	tests := []struct {
		name        string
		vid         string
		pid         string
		serial      string
		wantBlocked bool
		wantReason  string
	}{
		{name: "empty serial", vid: "1234", pid: "5678", serial: "", wantBlocked: true, wantReason: reasonNoSerial},
		{name: "zero serial", vid: "1234", pid: "5678", serial: "000000000000", wantBlocked: true, wantReason: reasonNoSerial},
		{name: "rule with reason", vid: "0781", pid: "5567", serial: "4C530001", wantBlocked: true, wantReason: "lost stick"},
		{name: "rule without reason", vid: "046d", pid: "c52b", serial: "ABC", wantBlocked: true, wantReason: "device is on the block list"},
		{name: "other serial", vid: "0781", pid: "5567", serial: "4C530002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, reason, err := r.IsBlocked(ctx, tt.vid, tt.pid, tt.serial)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBlocked, blocked)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestRules_AddListRemove(t *testing.T) {
	ctx := context.Background()
	r := newTestRules(t)

	assert.Error(t, r.AddBlockRule(ctx, "", "5567", "x", ""))
	require.NoError(t, r.AddBlockRule(ctx, "0781", "5567", "S1", "first"))
	require.NoError(t, r.AddBlockRule(ctx, "0781", "5567", "S1", "second"))
	require.NoError(t, r.AddBlockRule(ctx, "0781", "5567", "S2", ""))

	rules, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "S1", rules[0].Serial)
	assert.Equal(t, "first", rules[0].Reason)
	assert.False(t, rules[0].CreatedAt.IsZero())

	removed, err := r.RemoveBlockRule(ctx, "0781", "5567", "S1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = r.RemoveBlockRule(ctx, "0781", "5567", "S1")
	require.NoError(t, err)
	assert.False(t, removed)

	rules, err = r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func readAuthorized(t *testing.T, tr *sysfstest.Tree) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(tr.Path(sysfstest.USBStick), "authorized"))
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

// TestEnforcer_Enforce verifies that only blocked devices are deauthorized
// and that any device below the stick resolves to it.
func TestEnforcer_Enforce(t *testing.T) {
	ctx := context.Background()
	tr := sysfstest.Standard(t)
	r := newTestRules(t)
	e := NewEnforcer(r, udev.WithSysPath(tr.Sys), udev.WithDevPath(tr.Dev), udev.WithRunPath(tr.Run))

	d, err := e.Enforce(ctx, tr.Path(sysfstest.Partition))
	require.NoError(t, err)
	assert.False(t, d.Blocked)
	assert.Equal(t, tr.Path(sysfstest.USBStick), d.Device.Syspath)
	assert.Equal(t, "SanDisk", d.Device.Manufacturer)
	assert.Equal(t, "1", readAuthorized(t, tr))

	require.NoError(t, r.AddBlockRule(ctx, "0781", "5567", "4C530001", "lost stick"))
	d, err = e.Enforce(ctx, tr.Path(sysfstest.Partition))
	require.NoError(t, err)
	assert.True(t, d.Blocked)
	assert.Equal(t, "lost stick", d.Reason)
	assert.Equal(t, "0", readAuthorized(t, tr))
}

func TestEnforcer_Errors(t *testing.T) {
	ctx := context.Background()
	tr := sysfstest.Standard(t)
	e := NewEnforcer(newTestRules(t), udev.WithSysPath(tr.Sys), udev.WithRunPath(tr.Run))

	_, err := e.Enforce(ctx, tr.Path(sysfstest.MD))
	assert.ErrorIs(t, err, ErrNotUSB)

	_, err = e.Enforce(ctx, tr.Sys+"/devices/nowhere/none")
	assert.ErrorIs(t, err, udev.ErrAllocation)

	_, err = NewEnforcer(newTestRules(t), udev.WithSysPath(t.TempDir())).Enforce(ctx, tr.Path(sysfstest.MD))
	assert.Error(t, err)
}
