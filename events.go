// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import "sync"

// EventKind labels a lifecycle event emitted by the Manager.
type EventKind string

const (
	EventConnecting   EventKind = "connecting"
	EventConnected    EventKind = "connected"
	EventSigning      EventKind = "signing"
	EventSigned       EventKind = "signed"
	EventError        EventKind = "error"
	EventDisconnected EventKind = "disconnected"
)

// Event is one lifecycle notification. Err is set for EventError only and
// Message always carries a user-displayable line.
type Event struct {
	Kind    EventKind
	Family  Family
	Message string
	Err     error
}

// eventSubBuffer is each subscriber's channel capacity. Delivery never
// blocks a device exchange: a subscriber that falls this far behind drops
// events.
const eventSubBuffer = 16

// EventSub is one subscriber's handle on the manager event stream.
type EventSub struct {
	// C receives lifecycle events until Unsubscribe.
	C <-chan Event

	id   uint64
	feed *eventFeed
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// more than once.
func (s *EventSub) Unsubscribe() {
	s.feed.unsubscribe(s.id)
}

type eventFeed struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Event
}

func (f *eventFeed) subscribe() *EventSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[uint64]chan Event)
	}
	id := f.nextID
	f.nextID++
	ch := make(chan Event, eventSubBuffer)
	f.subs[id] = ch
	return &EventSub{C: ch, id: id, feed: f}
}

func (f *eventFeed) unsubscribe(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

func (f *eventFeed) send(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
			// Subscriber wedged; dropping beats stalling the device.
		}
	}
}
