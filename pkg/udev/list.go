package udev

import (
	"iter"

	"github.com/Hara602/devtree/internal/sysfs"
)

// Property is one name/value pair of a device's udev properties.
type Property struct {
	Name  string
	Value string
}

// Properties walks a device's property list once, in name order.
type Properties struct {
	entry *sysfs.ListEntry
}

// Next returns the next property. Once it reports false it keeps doing so.
func (p *Properties) Next() (Property, bool) {
	if p.entry == nil {
		return Property{}, false
	}
	e := p.entry
	p.entry = e.Next()
	return Property{Name: e.Name(), Value: e.Value()}, true
}

// All adapts the remaining properties to a range-over-func sequence.
func (p *Properties) All() iter.Seq[Property] {
	return func(yield func(Property) bool) {
		for {
			prop, ok := p.Next()
			if !ok || !yield(prop) {
				return
			}
		}
	}
}

// Attribute names one sysfs attribute of a device.
type Attribute struct {
	name   string
	device *Device
}

func (a Attribute) Name() string { return a.name }

// Value reads the attribute now. It reports false for attributes that are
// not readable or that disappeared since the list was built.
func (a Attribute) Value() (string, bool) { return a.device.AttributeValue(a.name) }

// Attributes walks a device's attribute names once, in name order.
type Attributes struct {
	entry  *sysfs.ListEntry
	device *Device
}

// Next returns the next attribute. Once it reports false it keeps doing so.
func (a *Attributes) Next() (Attribute, bool) {
	if a.entry == nil {
		return Attribute{}, false
	}
	e := a.entry
	a.entry = e.Next()
	return Attribute{name: e.Name(), device: a.device}, true
}

func (a *Attributes) All() iter.Seq[Attribute] {
	return func(yield func(Attribute) bool) {
		for {
			attr, ok := a.Next()
			if !ok || !yield(attr) {
				return
			}
		}
	}
}
