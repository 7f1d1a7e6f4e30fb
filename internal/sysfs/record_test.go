package sysfs

import (
	"encoding/binary"
	"sort"
)

// udevRecord encodes a record the way the udev daemon forwards it: a
// libudev header followed by NUL terminated KEY=VALUE properties.
func udevRecord(env map[string]string) []byte {
	props := encodeEnv(env)

	hdr := make([]byte, udevHeaderSize)
	copy(hdr, udevHeaderPrefix)
	binary.BigEndian.PutUint32(hdr[offMagic:], udevMonitorMagic)
	binary.NativeEndian.PutUint32(hdr[offHeaderSize:], udevHeaderSize)
	binary.NativeEndian.PutUint32(hdr[offPropertiesOff:], udevHeaderSize)
	binary.NativeEndian.PutUint32(hdr[offPropertiesLen:], uint32(len(props)))
	binary.BigEndian.PutUint32(hdr[offSubsystemHash:], stringHash32(env["SUBSYSTEM"]))
	if dt := env["DEVTYPE"]; dt != "" {
		binary.BigEndian.PutUint32(hdr[offDevtypeHash:], stringHash32(dt))
	}
	var bloom uint64
	for _, tag := range splitTags(env["TAGS"]) {
		bloom |= stringBloom64(tag)
	}
	binary.BigEndian.PutUint32(hdr[offTagBloomHi:], uint32(bloom>>32))
	binary.BigEndian.PutUint32(hdr[offTagBloomLo:], uint32(bloom))

	return append(hdr, props...)
}

// kernelRecord encodes a record as the kernel broadcasts it.
func kernelRecord(env map[string]string) []byte {
	b := []byte(env["ACTION"] + "@" + env["DEVPATH"])
	b = append(b, 0)
	return append(b, encodeEnv(env)...)
}

func encodeEnv(env map[string]string) []byte {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b []byte
	for _, k := range keys {
		b = append(b, k+"="+env[k]...)
		b = append(b, 0)
	}
	return b
}
