package sysutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMounts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	old := ProcMounts
	ProcMounts = path
	t.Cleanup(func() { ProcMounts = old })
	return path
}

func TestMountPoint(t *testing.T) {
	useMounts(t, `sysfs /sys sysfs rw,nosuid 0 0
/dev/sda1 /media/alice/USB\040STICK vfat rw 0 0
/dev/sdb1 /mnt/tab\011here ext4 rw 0 0
`)
	tests := []struct {
		devnode string
		want    string
	}{
		{devnode: "/dev/sda1", want: "/media/alice/USB STICK"},
		{devnode: "/dev/sdb1", want: "/mnt/tab\there"},
		{devnode: "/dev/sdc1", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.devnode, func(t *testing.T) {
			assert.Equal(t, tt.want, MountPoint(tt.devnode))
		})
	}

	ProcMounts = filepath.Join(t.TempDir(), "missing")
	assert.Empty(t, MountPoint("/dev/sda1"))
}

func TestUnescapeMount(t *testing.T) {
	assert.Equal(t, "plain", unescapeMount("plain"))
	assert.Equal(t, `a\b`, unescapeMount(`a\134b`))
	assert.Equal(t, `trailing\04`, unescapeMount(`trailing\04`))
	assert.Equal(t, `not\999octal`, unescapeMount(`not\999octal`))
}

// TestWaitForMount verifies the mount is picked up once it appears and that
// cancellation ends the wait.
func TestWaitForMount(t *testing.T) {
	path := useMounts(t, "")
	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(path, []byte("/dev/sda1 /media/usb vfat rw 0 0\n"), 0o644)
	}()
	assert.Equal(t, "/media/usb", WaitForMount(context.Background(), "/dev/sda1", 200, 10*time.Millisecond))

	assert.Empty(t, WaitForMount(context.Background(), "/dev/sdz1", 3, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.Empty(t, WaitForMount(ctx, "/dev/sdz1", 1000, time.Second))
	assert.Less(t, time.Since(start), time.Second)
}
