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


package ble

import (
	"context"
	"errors"
	"sync"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
)

// DefaultEventRate is how often discovered devices are reported
const DefaultEventRate = 100 * time.Millisecond

// ErrAlreadyDiscovering is returned by Start while a scan is running
var ErrAlreadyDiscovering = errors.New("device discovery already running")

// Advertisement is one scan result
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
	// UART is set when the peer advertises the Nordic UART service
	UART bool
}

// Scanner runs a scan, calling fn for every advertisement until StopScan.
// Scan blocks for the whole scan.
type Scanner interface {
	Scan(fn func(Advertisement)) error
	StopScan() error
}

// DiscoveryOption configures a Discovery
type DiscoveryOption func(*Discovery)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) DiscoveryOption {
	return func(d *Discovery) {
		d.now = now
	}
}

// WithUARTOnly drops peers that do not advertise the Nordic UART service
func WithUARTOnly() DiscoveryOption {
	return func(d *Discovery) {
		d.uartOnly = true
	}
}

// Discovery scans for readers and reports them to a sink in batches: a
// batch goes out on the first advertisement after eventRate has passed
// since the previous one, and whatever is left goes out on Stop.
type Discovery struct {
	lastEmit  time.Time
	scanner   Scanner
	sink      uhf.EventSink
	now       func() time.Time
	done      chan struct{}
	batch     []uhf.DiscoveredDevice
	eventRate time.Duration
	mu        sync.Mutex
	running   bool
	uartOnly  bool
}

// NewDiscovery creates a Discovery reporting to sink
func NewDiscovery(scanner Scanner, sink uhf.EventSink, opts ...DiscoveryOption) *Discovery {
	if sink == nil {
		sink = uhf.NopSink{}
	}
	d := &Discovery{scanner: scanner, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins scanning in the background. The scan ends on Stop or
// when ctx is done.
func (d *Discovery) Start(ctx context.Context, eventRate time.Duration) error {
	if eventRate <= 0 {
		eventRate = DefaultEventRate
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyDiscovering
	}
	d.running = true
	d.eventRate = eventRate
	d.batch = nil
	d.lastEmit = time.Time{}
	done := make(chan struct{})
	d.done = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		err := d.scanner.Scan(d.handle)
		if err != nil {
			uhf.Logger().Warn().Err(err).Msg("bluetooth scan ended")
		}
		d.ended(done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = d.Stop()
		case <-done:
		}
	}()
	uhf.Logger().Debug().Dur("event_rate", eventRate).Msg("device discovery started")
	return nil
}

func (d *Discovery) handle(adv Advertisement) {
	if adv.Address == "" || (d.uartOnly && !adv.UART) {
		return
	}
	name := seen.name(adv.Address, adv.Name)

	d.mu.Lock()
	d.batch = append(d.batch, uhf.DiscoveredDevice{Address: adv.Address, Name: name, RSSI: adv.RSSI})
	var out []uhf.DiscoveredDevice
	if now := d.now(); now.Sub(d.lastEmit) > d.eventRate {
		out = d.batch
		d.batch = nil
		d.lastEmit = now
	}
	d.mu.Unlock()

	if out != nil {
		d.sink.DevicesDiscovered(out)
	}
}

// ended marks a scan that returned without Stop as no longer running and
// reports what it found. A scan already stopped or replaced is left alone.
func (d *Discovery) ended(done chan struct{}) {
	d.mu.Lock()
	if !d.running || d.done != done {
		d.mu.Unlock()
		return
	}
	d.running = false
	out := d.batch
	d.batch = nil
	d.mu.Unlock()
	if len(out) > 0 {
		d.sink.DevicesDiscovered(out)
	}
}

// Stop ends the scan, waits for it to wind down and reports any devices
// still waiting for a batch. Stopping an idle Discovery is a no-op.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	done := d.done
	d.mu.Unlock()

	err := d.scanner.StopScan()
	<-done

	d.mu.Lock()
	out := d.batch
	d.batch = nil
	d.mu.Unlock()
	if len(out) > 0 {
		d.sink.DevicesDiscovered(out)
	}
	uhf.Logger().Debug().Msg("device discovery stopped")
	return err
}

// Running reports whether a scan is in progress
func (d *Discovery) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
