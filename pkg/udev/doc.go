// Package udev models the kernel device tree: point lookups of devices,
// enumeration with filters, property and attribute introspection and a
// non-blocking feed of add/change/remove events.
//
// # Ownership
//
// A Context owns one reference on the root resource. Every Device,
// Enumerator, Devices, Monitor and MonitorSocket takes its own reference on
// the same root when it is created and drops it in Close, after releasing
// its own resource. The root is torn down when the last reference is gone,
// so derived values stay usable after the Context that produced them has
// been closed. Close is idempotent: each value decrements exactly once.
//
// # Threads
//
// None of the types are safe for concurrent use. A Context and everything
// derived from it must stay on the goroutine that created it; code that
// hands values to another goroutine must copy out plain data first.
//
// # Absent values
//
// Accessors for fields a device may legitimately lack return (value, ok).
// Property and attribute reads report a key containing a NUL byte as
// absent, whereas SetAttributeValue rejects it with an InvalidArgument
// error.
package udev
