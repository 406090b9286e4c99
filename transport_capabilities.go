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
	"time"
)

// TransportOptimizer lets a transport suggest its own scan timing
type TransportOptimizer interface {
	ScanTuning() ScanTuning
}

// PoweredTransport is implemented by transports that switch the reader
// module's power themselves
type PoweredTransport interface {
	IsPowerOn() bool
}

// transportPowered reports whether the module behind t has power.
// Transports without a power switch are powered while connected.
func transportPowered(t Transport) bool {
	if p, ok := t.(PoweredTransport); ok {
		return p.IsPowerOn()
	}
	if wrapped, ok := t.(interface{ Unwrap() Transport }); ok {
		return transportPowered(wrapped.Unwrap())
	}
	return t.IsConnected()
}

// ScanTuning holds transport-appropriate timing for buffered inventory
type ScanTuning struct {
	// PollInterval is the pause after each record drained from the reader
	PollInterval time.Duration
	// IdleInterval is the back-off while the reader buffer is empty
	IdleInterval time.Duration
	// FlushInterval is the batch emission cadence
	FlushInterval time.Duration
	// LocateInterval is the cadence of locate inventory rounds
	LocateInterval time.Duration
}

// TuningFor returns scan timing for t. Transports implementing
// TransportOptimizer are asked first.
func TuningFor(t Transport) ScanTuning {
	if t == nil {
		return defaultTuning()
	}
	if optimizer, ok := t.(TransportOptimizer); ok {
		return optimizer.ScanTuning()
	}
	if wrapped, ok := t.(interface{ Unwrap() Transport }); ok {
		return TuningFor(wrapped.Unwrap())
	}

	switch t.Type() {
	case TransportUART:
		return uartTuning()
	case TransportBLE:
		return bleTuning()
	case TransportMock:
		return ScanTuning{
			PollInterval:   0,
			IdleInterval:   time.Millisecond,
			FlushInterval:  10 * time.Millisecond,
			LocateInterval: 5 * time.Millisecond,
		}
	default:
		return defaultTuning()
	}
}

// ScanTuning returns the timing for the device's current transport
func (d *Device) ScanTuning() ScanTuning {
	return TuningFor(d.Transport())
}

func uartTuning() ScanTuning {
	return ScanTuning{
		PollInterval:   2 * time.Millisecond,
		IdleInterval:   10 * time.Millisecond,
		FlushInterval:  100 * time.Millisecond,
		LocateInterval: 50 * time.Millisecond,
	}
}

// BLE round trips are slower, so each poll costs a connection interval.
func bleTuning() ScanTuning {
	return ScanTuning{
		PollInterval:   5 * time.Millisecond,
		IdleInterval:   30 * time.Millisecond,
		FlushInterval:  250 * time.Millisecond,
		LocateInterval: 100 * time.Millisecond,
	}
}

func defaultTuning() ScanTuning {
	return ScanTuning{
		PollInterval:   5 * time.Millisecond,
		IdleInterval:   20 * time.Millisecond,
		FlushInterval:  200 * time.Millisecond,
		LocateInterval: 50 * time.Millisecond,
	}
}
