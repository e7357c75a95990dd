package dpm

import (
	"fmt"
	"strings"
)

// Event is the kind of a power transition.
type Event uint32

const (
	EventOn        Event = 0x0000
	EventFreeze    Event = 0x0001
	EventSuspend   Event = 0x0002
	EventHibernate Event = 0x0004
	EventQuiesce   Event = 0x0008
	EventResume    Event = 0x0010
	EventThaw      Event = 0x0020
	EventRestore   Event = 0x0040
	EventRecover   Event = 0x0080
)

// Message describes the transition being carried out. It is immutable for
// the duration of a phase and shared read-only by async workers.
type Message struct {
	Event Event
}

// Predefined messages.
var (
	MsgOn        = Message{Event: EventOn}
	MsgFreeze    = Message{Event: EventFreeze}
	MsgSuspend   = Message{Event: EventSuspend}
	MsgHibernate = Message{Event: EventHibernate}
	MsgQuiesce   = Message{Event: EventQuiesce}
	MsgResume    = Message{Event: EventResume}
	MsgThaw      = Message{Event: EventThaw}
	MsgRestore   = Message{Event: EventRestore}
	MsgRecover   = Message{Event: EventRecover}
)

var eventVerbs = map[Event]string{
	EventOn:        "on",
	EventFreeze:    "freeze",
	EventSuspend:   "suspend",
	EventHibernate: "hibernate",
	EventQuiesce:   "quiesce",
	EventResume:    "resume",
	EventThaw:      "thaw",
	EventRestore:   "restore",
	EventRecover:   "recover",
}

// Verb returns the verb used in log lines, e.g. "freeze".
func (m Message) Verb() string {
	if v, ok := eventVerbs[m.Event]; ok {
		return v
	}
	return "(unknown PM event)"
}

func (m Message) String() string {
	return m.Verb()
}

// ResumeEvent returns the message used to roll back a failed transition.
func (m Message) ResumeEvent() Message {
	switch m.Event {
	case EventSuspend:
		return MsgResume
	case EventFreeze, EventQuiesce:
		return MsgRecover
	case EventHibernate:
		return MsgRestore
	}
	return MsgOn
}

// WakeEvent returns the message used to resume after a successful sleep.
func (m Message) WakeEvent() Message {
	switch m.Event {
	case EventSuspend:
		return MsgResume
	case EventFreeze:
		return MsgThaw
	case EventHibernate:
		return MsgRestore
	case EventQuiesce:
		return MsgRecover
	}
	return MsgOn
}

// Sleeping reports whether the message starts a suspend-direction transition.
func (m Message) Sleeping() bool {
	switch m.Event {
	case EventFreeze, EventSuspend, EventHibernate, EventQuiesce:
		return true
	}
	return false
}

// ParseEvent parses a transition name such as "suspend" or "hibernate".
func ParseEvent(name string) (Message, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ev, verb := range eventVerbs {
		if verb == name {
			return Message{Event: ev}, nil
		}
	}
	return Message{}, fmt.Errorf("%w: %q", ErrInvalidEvent, name)
}
