// go-uhf
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-uhf.
//
// go-uhf is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-uhf is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-uhf; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.


package bridge

import (
	"sync"
	"sync/atomic"

	uhf "github.com/ZaparooProject/go-uhf"
)

const subscriberBuffer = 256

// Hub is an EventSink that fans every event out to the connected event
// stream clients. A client that falls behind loses events rather than
// stalling the scanner.
type Hub struct {
	subs    map[chan uhf.Event]struct{}
	next    uhf.EventSink
	dropped atomic.Int64
	mu      sync.RWMutex
}

// NewHub creates a Hub. Events are also passed to next when it is not nil.
func NewHub(next uhf.EventSink) *Hub {
	return &Hub{subs: make(map[chan uhf.Event]struct{}), next: next}
}

// Subscribe registers a client. The returned func unsubscribes and closes
// the channel.
func (h *Hub) Subscribe() (<-chan uhf.Event, func()) {
	ch := make(chan uhf.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of connected clients
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow clients
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) publish(ev uhf.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) TagBatch(batch uhf.TagBatch) {
	h.publish(uhf.ToEvent(uhf.EventTagScanBatch, batch))
	if h.next != nil {
		h.next.TagBatch(batch)
	}
}

func (h *Hub) ConnectionStatus(event uhf.StatusEvent) {
	h.publish(uhf.ToEvent(uhf.EventConnectionStatus, event))
	if h.next != nil {
		h.next.ConnectionStatus(event)
	}
}

func (h *Hub) LocateValue(value int) {
	h.publish(uhf.ToEvent(uhf.EventLocateValue, value))
	if h.next != nil {
		h.next.LocateValue(value)
	}
}

func (h *Hub) DevicesDiscovered(devices []uhf.DiscoveredDevice) {
	h.publish(uhf.ToEvent(uhf.EventDeviceDiscovered, devices))
	if h.next != nil {
		h.next.DevicesDiscovered(devices)
	}
}

func (h *Hub) Feedback(kind uhf.Feedback) {
	h.publish(uhf.ToEvent(uhf.EventFeedback, kind))
	if h.next != nil {
		h.next.Feedback(kind)
	}
}

var _ uhf.EventSink = (*Hub)(nil)
