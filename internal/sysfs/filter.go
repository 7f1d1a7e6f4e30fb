package sysfs

import (
	"encoding/binary"
	"math"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// Layout of the header the udev daemon puts in front of every record it
// forwards over netlink. Integer fields are in network byte order.
const (
	udevHeaderPrefix = "libudev\x00"
	udevMonitorMagic = 0xfeedcafe

	offMagic           = 8
	offHeaderSize      = 12
	offPropertiesOff   = 16
	offPropertiesLen   = 20
	offSubsystemHash   = 24
	offDevtypeHash     = 28
	offTagBloomHi      = 32
	offTagBloomLo      = 36
	udevHeaderSize     = 40
	bpfPass            = 0xffffffff
	bpfDrop            = 0
	tagMatchBlockInstr = 6
)

type subsystemFilter struct {
	subsystem string
	devtype   string
}

// murmurHash2 is the hash the udev daemon stamps into the record header.
// Words are read in host byte order, as libudev does.
func murmurHash2(key string, seed uint32) uint32 {
	const m = 0x5bd1e995
	const r = 24

	data := []byte(key)
	h := seed ^ uint32(len(data))
	for len(data) >= 4 {
		k := binary.NativeEndian.Uint32(data)
		k *= m
		k ^= k >> r
		k *= m
		h *= m
		h ^= k
		data = data[4:]
	}
	switch len(data) {
	case 3:
		h ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[0])
		h *= m
	}
	h ^= h >> 13
	h *= m
	h ^= h >> 15
	return h
}

func stringHash32(s string) uint32 { return murmurHash2(s, 0) }

// stringBloom64 sets four bits of a 64 bit bloom filter for s.
func stringBloom64(s string) uint64 {
	h := stringHash32(s)
	var bits uint64
	bits |= 1 << (h & 63)
	bits |= 1 << ((h >> 6) & 63)
	bits |= 1 << ((h >> 12) & 63)
	bits |= 1 << ((h >> 18) & 63)
	return bits
}

// buildFilter assembles the socket filter for the given matches. Records
// without the udev header pass untouched; for the others at least one tag
// must hit the bloom filter and at least one subsystem[/devtype] pair must
// match the header hashes. It returns nil when there is nothing to filter.
func buildFilter(subsystems []subsystemFilter, tags []string) ([]bpf.Instruction, error) {
	if len(subsystems) == 0 && len(tags) == 0 {
		return nil, nil
	}
	// a matched tag jumps over all remaining tag blocks with an 8 bit offset
	if 1+(len(tags)-1)*tagMatchBlockInstr > math.MaxUint8 {
		return nil, unix.E2BIG
	}

	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: offMagic, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: udevMonitorMagic, SkipTrue: 1},
		bpf.RetConstant{Val: bpfPass},
	}

	if len(tags) > 0 {
		remaining := len(tags)
		for _, tag := range tags {
			bloom := stringBloom64(tag)
			hi, lo := uint32(bloom>>32), uint32(bloom)
			remaining--
			prog = append(prog,
				bpf.LoadAbsolute{Off: offTagBloomHi, Size: 4},
				bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: hi},
				bpf.JumpIf{Cond: bpf.JumpEqual, Val: hi, SkipFalse: 3},
				bpf.LoadAbsolute{Off: offTagBloomLo, Size: 4},
				bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: lo},
				bpf.JumpIf{Cond: bpf.JumpEqual, Val: lo, SkipTrue: uint8(1 + remaining*tagMatchBlockInstr)},
			)
		}
		prog = append(prog, bpf.RetConstant{Val: bpfDrop})
	}

	if len(subsystems) > 0 {
		for _, f := range subsystems {
			prog = append(prog, bpf.LoadAbsolute{Off: offSubsystemHash, Size: 4})
			if f.devtype == "" {
				prog = append(prog,
					bpf.JumpIf{Cond: bpf.JumpEqual, Val: stringHash32(f.subsystem), SkipFalse: 1})
			} else {
				prog = append(prog,
					bpf.JumpIf{Cond: bpf.JumpEqual, Val: stringHash32(f.subsystem), SkipFalse: 3},
					bpf.LoadAbsolute{Off: offDevtypeHash, Size: 4},
					bpf.JumpIf{Cond: bpf.JumpEqual, Val: stringHash32(f.devtype), SkipFalse: 1})
			}
			prog = append(prog, bpf.RetConstant{Val: bpfPass})
		}
		prog = append(prog, bpf.RetConstant{Val: bpfDrop})
	}

	return append(prog, bpf.RetConstant{Val: bpfPass}), nil
}

// passesFilter repeats the socket filter in userspace with exact string
// comparison, since hashes and bloom bits can collide.
func passesFilter(subsystems []subsystemFilter, tags []string, env map[string]string) bool {
	if len(subsystems) > 0 {
		hit := false
		for _, f := range subsystems {
			if f.subsystem == env["SUBSYSTEM"] && (f.devtype == "" || f.devtype == env["DEVTYPE"]) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(tags) == 0 {
		return true
	}
	have := splitTags(env["TAGS"])
	for _, want := range tags {
		for _, t := range have {
			if t == want {
				return true
			}
		}
	}
	return false
}
