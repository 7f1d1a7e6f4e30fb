package sysutil

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"
)

// ProcMounts is the mount table consulted by MountPoint.
var ProcMounts = "/proc/mounts"

// MountPoint returns where devnode is mounted, or "" when it is not.
func MountPoint(devnode string) string {
	f, err := os.Open(ProcMounts)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == devnode {
			return unescapeMount(fields[1])
		}
	}
	return ""
}

// WaitForMount polls the mount table, because the filesystem is usually
// mounted some time after the block device shows up. It gives up after
// attempts tries or when ctx is done.
func WaitForMount(ctx context.Context, devnode string, attempts int, interval time.Duration) string {
	t := time.NewTicker(interval)
	defer t.Stop()
	for i := 0; i < attempts; i++ {
		if mp := MountPoint(devnode); mp != "" {
			return mp
		}
		select {
		case <-ctx.Done():
			return ""
		case <-t.C:
		}
	}
	return ""
}

// unescapeMount decodes the octal escapes (\040 for space) the kernel uses
// in mount table fields.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }
