package sysfs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Hara602/devtree/internal/sysutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const maxCrawlDepth = 256

type pair struct {
	key   string
	value string
}

// Enumerate is a scan session. Filters of the same kind are OR'ed, filters
// of different kinds are AND'ed and any nomatch hit excludes a device.
type Enumerate struct {
	udev *Udev
	refs atomic.Int32

	subsystemMatch   []string
	subsystemNomatch []string
	sysattrMatch     []pair
	sysattrNomatch   []pair
	propertyMatch    []pair
	sysnameMatch     []string
	tagMatch         []string
	parentMatch      []string
	initializedOnly  bool

	syspaths map[string]struct{}
	list     *ListEntry
}

// NewEnumerate creates an empty scan session.
func NewEnumerate(u *Udev) (*Enumerate, error) {
	e := &Enumerate{udev: u, syspaths: make(map[string]struct{})}
	e.refs.Store(1)
	return e, nil
}

// Ref takes another reference on the session.
func (e *Enumerate) Ref() *Enumerate {
	e.refs.Add(1)
	return e
}

// Unref drops one reference; the last one frees the result list.
func (e *Enumerate) Unref() {
	switch n := e.refs.Add(-1); {
	case n == 0:
		e.syspaths, e.list = nil, nil
	case n < 0:
		panic("sysfs: enumerate reference count underflow")
	}
}

// Udev returns the root the session was created from without referencing it.
func (e *Enumerate) Udev() *Udev { return e.udev }

func (e *Enumerate) AddMatchSubsystem(subsystem string) error {
	return appendNonEmpty(&e.subsystemMatch, subsystem)
}

func (e *Enumerate) AddNomatchSubsystem(subsystem string) error {
	return appendNonEmpty(&e.subsystemNomatch, subsystem)
}

// AddMatchSysattr matches devices whose attribute matches value. An empty
// value only requires the attribute to exist.
func (e *Enumerate) AddMatchSysattr(name, value string) error {
	if name == "" {
		return unix.EINVAL
	}
	e.sysattrMatch = append(e.sysattrMatch, pair{name, value})
	return nil
}

func (e *Enumerate) AddNomatchSysattr(name, value string) error {
	if name == "" {
		return unix.EINVAL
	}
	e.sysattrNomatch = append(e.sysattrNomatch, pair{name, value})
	return nil
}

func (e *Enumerate) AddMatchProperty(key, value string) error {
	if key == "" {
		return unix.EINVAL
	}
	e.propertyMatch = append(e.propertyMatch, pair{key, value})
	return nil
}

func (e *Enumerate) AddMatchSysname(sysname string) error {
	return appendNonEmpty(&e.sysnameMatch, sysname)
}

func (e *Enumerate) AddMatchTag(tag string) error {
	return appendNonEmpty(&e.tagMatch, tag)
}

// AddMatchParent restricts the scan to the subtree below parent, parent
// included.
func (e *Enumerate) AddMatchParent(parent *Device) error {
	if parent == nil {
		return unix.EINVAL
	}
	e.parentMatch = append(e.parentMatch, parent.syspath)
	return nil
}

func (e *Enumerate) AddMatchIsInitialized() error {
	e.initializedOnly = true
	return nil
}

// AddSyspath puts one device into the result regardless of the filters.
func (e *Enumerate) AddSyspath(syspath string) error {
	d, err := NewFromSyspath(e.udev, syspath)
	if err != nil {
		return err
	}
	e.syspaths[d.syspath] = struct{}{}
	d.Unref()
	e.list = nil
	return nil
}

func appendNonEmpty(list *[]string, s string) error {
	if s == "" {
		return unix.EINVAL
	}
	*list = append(*list, s)
	return nil
}

// ScanDevices runs the filters against the device tree and stores the
// ordered result list.
func (e *Enumerate) ScanDevices() error {
	seen := make(map[string]struct{})
	visit := func(d *Device) {
		defer d.Unref()
		if _, dup := seen[d.syspath]; dup {
			return
		}
		seen[d.syspath] = struct{}{}
		if e.matches(d) {
			e.syspaths[d.syspath] = struct{}{}
		}
	}

	switch {
	case len(e.tagMatch) > 0:
		for _, tag := range e.tagMatch {
			for _, id := range e.udev.taggedIDs(tag) {
				if d, err := NewFromDeviceID(e.udev, id); err == nil {
					visit(d)
				}
			}
		}
	case len(e.parentMatch) > 0:
		for _, p := range e.parentMatch {
			e.crawl(p, 0, visit)
		}
	default:
		if err := e.scanAll(visit); err != nil {
			return err
		}
	}

	e.list = nil
	sysutil.Log.Debug("enumerate scan finished", zap.Int("devices", len(e.syspaths)))
	return nil
}

func (e *Enumerate) scanAll(visit func(*Device)) error {
	sys := e.udev.sysPath
	if fi, err := os.Stat(filepath.Join(sys, "subsystem")); err == nil && fi.IsDir() {
		return e.scanDir("subsystem", "devices", visit)
	}
	if err := e.scanDir("bus", "devices", visit); err != nil {
		return err
	}
	return e.scanDir("class", "", visit)
}

func (e *Enumerate) scanDir(base, sub string, visit func(*Device)) error {
	dir := filepath.Join(e.udev.sysPath, base)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errnoOf(err)
	}
	for _, ent := range entries {
		if !e.subsystemNameWanted(ent.Name()) {
			continue
		}
		devDir := filepath.Join(dir, ent.Name(), sub)
		devs, err := os.ReadDir(devDir)
		if err != nil {
			continue
		}
		for _, dev := range devs {
			if strings.HasPrefix(dev.Name(), ".") {
				continue
			}
			if d, err := NewFromSyspath(e.udev, filepath.Join(devDir, dev.Name())); err == nil {
				visit(d)
			}
		}
	}
	return nil
}

// crawl visits syspath and every device directory below it. Symlinks are
// not followed, so each device is reached through its real path only.
func (e *Enumerate) crawl(syspath string, depth int, visit func(*Device)) {
	if depth > maxCrawlDepth {
		return
	}
	if d, err := NewFromSyspath(e.udev, syspath); err == nil {
		visit(d)
	}
	entries, err := os.ReadDir(syspath)
	if err != nil {
		return
	}
	for _, ent := range entries {
		if !ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		e.crawl(filepath.Join(syspath, ent.Name()), depth+1, visit)
	}
}

// subsystemNameWanted prunes whole subsystem directories before any device
// in them is read.
func (e *Enumerate) subsystemNameWanted(name string) bool {
	for _, p := range e.subsystemNomatch {
		if globMatch(p, name) {
			return false
		}
	}
	if len(e.subsystemMatch) == 0 {
		return true
	}
	return anyMatch(e.subsystemMatch, name)
}

func (e *Enumerate) matches(d *Device) bool {
	if e.initializedOnly && !d.IsInitialized() {
		return false
	}
	for _, p := range e.subsystemNomatch {
		if globMatch(p, d.subsystem) {
			return false
		}
	}
	if len(e.subsystemMatch) > 0 && !anyMatch(e.subsystemMatch, d.subsystem) {
		return false
	}
	if len(e.sysnameMatch) > 0 && !anyMatch(e.sysnameMatch, d.sysname) {
		return false
	}
	if len(e.tagMatch) > 0 && !e.matchTag(d) {
		return false
	}
	if len(e.parentMatch) > 0 && !e.matchParent(d) {
		return false
	}
	if len(e.propertyMatch) > 0 && !e.matchProperty(d) {
		return false
	}
	for _, p := range e.sysattrNomatch {
		if matchSysattr(d, p) {
			return false
		}
	}
	if len(e.sysattrMatch) > 0 {
		for _, p := range e.sysattrMatch {
			if matchSysattr(d, p) {
				return true
			}
		}
		return false
	}
	return true
}

func (e *Enumerate) matchTag(d *Device) bool {
	for _, t := range e.tagMatch {
		if d.HasTag(t) {
			return true
		}
	}
	return false
}

func (e *Enumerate) matchParent(d *Device) bool {
	for _, p := range e.parentMatch {
		if d.syspath == p || strings.HasPrefix(d.syspath, p+"/") {
			return true
		}
	}
	return false
}

func (e *Enumerate) matchProperty(d *Device) bool {
	for _, m := range e.propertyMatch {
		for k, v := range d.props {
			if globMatch(m.key, k) && globMatch(m.value, v) {
				return true
			}
		}
	}
	return false
}

func matchSysattr(d *Device, p pair) bool {
	v, ok := d.SysattrValue(p.key)
	if !ok {
		return false
	}
	return p.value == "" || globMatch(p.value, v)
}

func anyMatch(patterns []string, s string) bool {
	for _, p := range patterns {
		if globMatch(p, s) {
			return true
		}
	}
	return false
}

// ListEntry returns the scan result ordered so that parents come before
// their children. Devices that depend on siblings (md and dm block devices,
// sound control nodes) are moved behind everything else.
func (e *Enumerate) ListEntry() *ListEntry {
	if e.list != nil || len(e.syspaths) == 0 {
		return e.list
	}

	var early, late, last []string
	for p := range e.syspaths {
		rel := p[len(e.udev.sysPath):]
		switch {
		case strings.Contains(rel, "/block/md") || strings.Contains(rel, "/block/dm-"):
			last = append(last, p)
		case strings.Contains(rel, "/sound/card") && strings.HasPrefix(filepath.Base(p), "controlC"):
			late = append(late, p)
		default:
			early = append(early, p)
		}
	}
	sort.Strings(early)
	sort.Strings(late)
	sort.Strings(last)

	ordered := make([]string, 0, len(e.syspaths))
	ordered = append(ordered, early...)
	ordered = append(ordered, late...)
	ordered = append(ordered, last...)
	e.list = buildNameList(ordered)
	return e.list
}
