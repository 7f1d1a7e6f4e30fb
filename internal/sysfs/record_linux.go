//go:build linux

package sysfs

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/pilebones/go-udev/netlink"
)

var errBadRecord = errors.New("malformed udev record")

// parseRecord decodes one datagram into its property map. fromUdev is set
// for records that carry the udev daemon's header.
func parseRecord(rec []byte) (env map[string]string, fromUdev bool, err error) {
	if bytes.HasPrefix(rec, []byte(udevHeaderPrefix)) {
		env, err = parseUdevRecord(rec)
		return env, true, err
	}

	ev, err := netlink.ParseUEvent(rec)
	if err != nil {
		return nil, false, err
	}
	env = make(map[string]string, len(ev.Env)+2)
	for k, v := range ev.Env {
		env[k] = v
	}
	if env["ACTION"] == "" {
		env["ACTION"] = string(ev.Action)
	}
	if env["DEVPATH"] == "" {
		env["DEVPATH"] = ev.KObj
	}
	return env, false, nil
}

func parseUdevRecord(rec []byte) (map[string]string, error) {
	if len(rec) < udevHeaderSize || binary.BigEndian.Uint32(rec[offMagic:]) != udevMonitorMagic {
		return nil, errBadRecord
	}
	off := binary.NativeEndian.Uint32(rec[offPropertiesOff:])
	n := binary.NativeEndian.Uint32(rec[offPropertiesLen:])
	if off < udevHeaderSize || uint64(off)+uint64(n) > uint64(len(rec)) {
		return nil, errBadRecord
	}

	env := make(map[string]string)
	for _, field := range bytes.Split(rec[off:off+n], []byte{0}) {
		if k, v, ok := bytes.Cut(field, []byte("=")); ok && len(k) > 0 {
			env[string(k)] = string(v)
		}
	}
	return env, nil
}
