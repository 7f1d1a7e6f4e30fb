package udev

import (
	"iter"

	"github.com/Hara602/devtree/internal/sysfs"
	"github.com/Hara602/devtree/internal/sysutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Enumerator collects filters for one scan of the device tree.
//
// Matches of the same kind are OR'ed, matches of different kinds are AND'ed
// and a device hitting any Nomatch filter is excluded. Values may contain
// shell glob patterns. Once ScanDevices has run the Enumerator accepts no
// further calls.
type Enumerator struct {
	enum    *sysfs.Enumerate
	root    rootRef
	scanned bool
}

// NewEnumerator starts a scan session.
func NewEnumerator(c *Context) (*Enumerator, error) {
	const op = "new enumerator"
	if err := c.check(op); err != nil {
		return nil, err
	}
	e, err := sysfs.NewEnumerate(c.raw())
	if err != nil {
		return nil, allocErr(op, err)
	}
	return &Enumerator{enum: e, root: acquireRoot(c.raw())}, nil
}

func (e *Enumerator) raw() *sysfs.Enumerate { return e.enum }

// configure runs one filter call after the state and argument checks.
func (e *Enumerator) configure(op string, fn func() error, args ...string) error {
	switch {
	case e.scanned:
		return stateErr(op, ErrScanned)
	case e.enum == nil:
		return stateErr(op, ErrClosed)
	}
	if err := checkStrings(op, args...); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// MatchIsInitialized keeps only devices udev has finished processing.
func (e *Enumerator) MatchIsInitialized() error {
	return e.configure("match is initialized", func() error { return e.enum.AddMatchIsInitialized() })
}

func (e *Enumerator) MatchSubsystem(subsystem string) error {
	return e.configure("match subsystem", func() error {
		return e.enum.AddMatchSubsystem(subsystem)
	}, subsystem)
}

// MatchAttribute keeps devices whose sysfs attribute matches value. An
// empty value only requires the attribute to exist.
func (e *Enumerator) MatchAttribute(attribute, value string) error {
	return e.configure("match attribute", func() error {
		return e.enum.AddMatchSysattr(attribute, value)
	}, attribute, value)
}

func (e *Enumerator) MatchSysname(sysname string) error {
	return e.configure("match sysname", func() error {
		return e.enum.AddMatchSysname(sysname)
	}, sysname)
}

func (e *Enumerator) MatchProperty(property, value string) error {
	return e.configure("match property", func() error {
		return e.enum.AddMatchProperty(property, value)
	}, property, value)
}

func (e *Enumerator) MatchTag(tag string) error {
	return e.configure("match tag", func() error {
		return e.enum.AddMatchTag(tag)
	}, tag)
}

// MatchParent keeps parent and the devices below it.
func (e *Enumerator) MatchParent(parent *Device) error {
	return e.configure("match parent", func() error {
		if parent == nil || parent.dev == nil {
			return unix.EINVAL
		}
		return e.enum.AddMatchParent(parent.dev)
	})
}

func (e *Enumerator) NomatchSubsystem(subsystem string) error {
	return e.configure("nomatch subsystem", func() error {
		return e.enum.AddNomatchSubsystem(subsystem)
	}, subsystem)
}

func (e *Enumerator) NomatchAttribute(attribute, value string) error {
	return e.configure("nomatch attribute", func() error {
		return e.enum.AddNomatchSysattr(attribute, value)
	}, attribute, value)
}

// AddSyspath puts the device at syspath into the result whether or not it
// passes the filters.
func (e *Enumerator) AddSyspath(syspath string) error {
	return e.configure("add syspath", func() error {
		return e.enum.AddSyspath(syspath)
	}, syspath)
}

// ScanDevices runs the scan. It can be called once.
func (e *Enumerator) ScanDevices() (*Devices, error) {
	const op = "scan devices"
	switch {
	case e.scanned:
		return nil, stateErr(op, ErrScanned)
	case e.enum == nil:
		return nil, stateErr(op, ErrClosed)
	}
	if err := e.enum.ScanDevices(); err != nil {
		return nil, backendErr(op, err)
	}
	e.scanned = true

	head := e.enum.ListEntry()
	n := 0
	for ent := head; ent != nil; ent = ent.Next() {
		n++
	}
	return &Devices{entry: head, count: n, root: acquireRoot(e.enum.Udev())}, nil
}

// Close releases the scan session and then the root reference. A Devices
// returned by ScanDevices stays usable.
func (e *Enumerator) Close() error {
	if e.enum != nil {
		e.enum.Unref()
		e.enum = nil
	}
	e.root.release()
	return nil
}

// Devices walks the result of a scan. The list of syspaths is fixed at scan
// time; each Device is read when it is reached. Entries whose device has
// disappeared in the meantime are skipped.
type Devices struct {
	entry *sysfs.ListEntry
	count int
	root  rootRef
}

// Next returns the next device. Once it reports false it keeps doing so.
func (ds *Devices) Next() (*Device, bool) {
	for ds.entry != nil && ds.root.live() {
		syspath := ds.entry.Name()
		ds.entry = ds.entry.Next()

		d, err := sysfs.NewFromSyspath(ds.root.udev, syspath)
		if err != nil {
			sysutil.Log.Debug("skipping vanished device", zap.String("syspath", syspath), zap.Error(err))
			continue
		}
		return newDevice(d), true
	}
	ds.entry = nil
	return nil, false
}

// All adapts the remaining devices to a range-over-func sequence. The
// caller owns every yielded Device.
func (ds *Devices) All() iter.Seq[*Device] {
	return func(yield func(*Device) bool) {
		for {
			d, ok := ds.Next()
			if !ok || !yield(d) {
				return
			}
		}
	}
}

// Len reports how many syspaths the scan produced.
func (ds *Devices) Len() int { return ds.count }

// Close releases the root reference. Next reports false afterwards.
func (ds *Devices) Close() error {
	ds.root.release()
	ds.entry = nil
	return nil
}
