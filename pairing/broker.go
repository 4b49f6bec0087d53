// Copyright 2025 ChatBridge
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pairing

import "sync"

// StreamEventKind discriminates pairing stream events.
type StreamEventKind int

const (
	// StreamQR carries a freshly rendered QR image.
	StreamQR StreamEventKind = iota
	// StreamConnected is the terminal success marker.
	StreamConnected
	// StreamError is the terminal failure marker.
	StreamError
)

// StreamEvent is one message on a tenant's pairing stream.
type StreamEvent struct {
	Kind StreamEventKind `json:"kind"`
	Data string          `json:"data"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == StreamConnected || e.Kind == StreamError
}

// Broker fans pairing events out to per-tenant subscribers. A terminal
// event closes every subscriber channel for that tenant and marks the
// stream ended; late subscribers after a terminal event get a channel
// that is already closed, which reads as stream completion. The ended
// mark is cleared when the stream is torn down with Close or when a new
// pairing round publishes a fresh non-terminal event.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan StreamEvent
	ended  map[string]struct{}
	nextID int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs:  make(map[string]map[int]chan StreamEvent),
		ended: make(map[string]struct{}),
	}
}

// Subscribe registers a listener for a tenant's pairing stream. The
// returned cancel function detaches the listener; it is safe to call
// after the stream completed.
func (b *Broker) Subscribe(tenantID string) (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, 8)

	b.mu.Lock()
	if _, done := b.ended[tenantID]; done {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = make(map[int]chan StreamEvent)
	}
	b.subs[tenantID][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[tenantID]; ok {
			if ch, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of a tenant. Slow
// subscribers lose events rather than block the publisher. Terminal
// events close the stream.
func (b *Broker) Publish(tenantID string, ev StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Terminal() {
		b.ended[tenantID] = struct{}{}
	} else {
		// A fresh event starts a new pairing round.
		delete(b.ended, tenantID)
	}

	for id, ch := range b.subs[tenantID] {
		select {
		case ch <- ev:
		default:
		}
		if ev.Terminal() {
			delete(b.subs[tenantID], id)
			close(ch)
		}
	}
	if ev.Terminal() {
		delete(b.subs, tenantID)
	}
}

// Close ends a tenant's stream without a terminal event, e.g. when the
// connection itself is torn down.
func (b *Broker) Close(tenantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[tenantID] {
		close(ch)
	}
	delete(b.subs, tenantID)
	delete(b.ended, tenantID)
}

// SubscriberCount returns how many listeners a tenant currently has.
func (b *Broker) SubscriberCount(tenantID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[tenantID])
}
