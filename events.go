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

package uhf

import (
	"sync"
	"sync/atomic"
)

// Event names as seen by host event bridges
const (
	EventTagScanBatch     = "tagScanBatch"
	EventConnectionStatus = "connectionStatus"
	EventLocateValue      = "locateValue"
	EventDeviceDiscovered = "deviceDiscovered"
	EventFeedback         = "feedback"
)

// Feedback is an audible cue requested from the host
type Feedback string

const (
	// FeedbackNew marks the first read of an EPC
	FeedbackNew Feedback = "new"
	// FeedbackRepeat marks an EPC already in the seen set, and locate pings
	FeedbackRepeat Feedback = "repeat"
	// FeedbackSuccess marks a completed read, write or lock
	FeedbackSuccess Feedback = "success"
	// FeedbackError marks a failed read, write or lock
	FeedbackError Feedback = "error"
)

// TagBatch is one flush of the inventory loop
type TagBatch struct {
	SessionID string      `json:"sessionId"`
	Tags      []TagRecord `json:"tags"`
}

// StatusEvent is a connection status transition
type StatusEvent struct {
	Status        ConnectionStatus `json:"status"`
	DeviceName    string           `json:"deviceName,omitempty"`
	DeviceAddress string           `json:"deviceAddress,omitempty"`
}

// DiscoveredDevice is a reader seen during Bluetooth discovery
type DiscoveredDevice struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int    `json:"rssi"`
}

// EventSink receives everything the library streams to the host. Calls are
// fire-and-forget and may come from background goroutines.
type EventSink interface {
	TagBatch(batch TagBatch)
	ConnectionStatus(event StatusEvent)
	LocateValue(value int)
	DevicesDiscovered(devices []DiscoveredDevice)
	Feedback(kind Feedback)
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) TagBatch(TagBatch)                   {}
func (NopSink) ConnectionStatus(StatusEvent)        {}
func (NopSink) LocateValue(int)                     {}
func (NopSink) DevicesDiscovered([]DiscoveredDevice) {}
func (NopSink) Feedback(Feedback)                   {}

// Event is the generic envelope used by channel based sinks
type Event struct {
	Data    any    `json:"data"`
	Name    string `json:"event"`
	Session string `json:"session,omitempty"`
}

// ToEvent converts a sink call payload into an Event envelope
func ToEvent(name string, payload any) Event {
	if batch, ok := payload.(TagBatch); ok {
		return Event{Name: name, Data: batch.Tags, Session: batch.SessionID}
	}
	return Event{Name: name, Data: payload}
}

// ChannelSink delivers events on a buffered channel. When the channel is
// full new events are dropped and counted so the producer never blocks.
type ChannelSink struct {
	events  chan Event
	dropped atomic.Int64
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewChannelSink creates a channel sink with the given buffer size
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 64
	}
	return &ChannelSink{events: make(chan Event, size)}
}

// Events returns the receive side of the sink
func (c *ChannelSink) Events() <-chan Event {
	return c.events
}

// Dropped returns how many events were discarded because the buffer was full
func (c *ChannelSink) Dropped() int64 {
	return c.dropped.Load()
}

// Close closes the events channel. Later events are dropped.
func (c *ChannelSink) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
}

func (c *ChannelSink) send(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.dropped.Add(1)
	}
}

func (c *ChannelSink) TagBatch(batch TagBatch) {
	c.send(ToEvent(EventTagScanBatch, batch))
}

func (c *ChannelSink) ConnectionStatus(event StatusEvent) {
	c.send(ToEvent(EventConnectionStatus, event))
}

func (c *ChannelSink) LocateValue(value int) {
	c.send(ToEvent(EventLocateValue, value))
}

func (c *ChannelSink) DevicesDiscovered(devices []DiscoveredDevice) {
	c.send(ToEvent(EventDeviceDiscovered, devices))
}

func (c *ChannelSink) Feedback(kind Feedback) {
	c.send(ToEvent(EventFeedback, kind))
}
