package sysfs

import "sort"

// ListEntry is one node of a singly linked name/value list. Lists are owned
// by the object that returned their head and must not be used after that
// object is released.
type ListEntry struct {
	name  string
	value string
	next  *ListEntry
}

// Name returns the entry name.
func (e *ListEntry) Name() string { return e.name }

// Value returns the entry value.
func (e *ListEntry) Value() string { return e.value }

// Next returns the following entry or nil at the end of the list.
func (e *ListEntry) Next() *ListEntry { return e.next }

// buildList links the pairs in name order.
func buildList(m map[string]string) *ListEntry {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var head *ListEntry
	for i := len(names) - 1; i >= 0; i-- {
		head = &ListEntry{name: names[i], value: m[names[i]], next: head}
	}
	return head
}

// buildNameList links names in the order given, with empty values.
func buildNameList(names []string) *ListEntry {
	var head *ListEntry
	for i := len(names) - 1; i >= 0; i-- {
		head = &ListEntry{name: names[i], next: head}
	}
	return head
}
