package udev

// EventType classifies what happened to a device.
type EventType int

const (
	EventUnknown EventType = iota
	EventAdd
	EventChange
	EventRemove
)

func (t EventType) String() string {
	switch t {
	case EventAdd:
		return "add"
	case EventChange:
		return "change"
	case EventRemove:
		return "remove"
	}
	return "unknown"
}

// eventTypeOf maps a uevent action. bind, unbind, move, online and offline
// have no type of their own.
func eventTypeOf(action string) EventType {
	switch action {
	case "add":
		return EventAdd
	case "change":
		return EventChange
	case "remove":
		return EventRemove
	}
	return EventUnknown
}

// Event is a device received from a MonitorSocket. All Device methods are
// available on it: SequenceNumber reports the kernel's SEQNUM and Close
// releases the device.
type Event struct {
	*Device
	typ EventType
}

func newEvent(d *Device) *Event {
	action, _ := d.PropertyValue("ACTION")
	return &Event{Device: d, typ: eventTypeOf(action)}
}

// Type is derived from the ACTION property when the event is received.
func (e *Event) Type() EventType { return e.typ }
