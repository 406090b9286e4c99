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
	"context"
	"time"
)

// InventoryDriver is the part of a reader driver the inventory loop needs.
// PollOneRecord must not block waiting for tags: ok is false when the
// reader's buffer is currently empty.
type InventoryDriver interface {
	SetPower(ctx context.Context, level int) error
	SetFilter(ctx context.Context, filter Filter) error
	StartInventory(ctx context.Context) error
	StopInventory(ctx context.Context) error
	PollOneRecord(ctx context.Context) (rec TagRecord, ok bool, err error)
}

// LocateFunc receives proximity values (0-100) while locating a tag
type LocateFunc func(value int)

// Driver is the full reader capability set used by a Session
type Driver interface {
	InventoryDriver

	Init(ctx context.Context) error
	Connect(ctx context.Context, address string) (Peer, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool

	ReadData(ctx context.Context, password string, filter *Filter, bank Bank, pointer, count int) (string, error)
	WriteData(ctx context.Context, password string, filter *Filter, bank Bank, pointer, count int, data string) error
	LockMem(ctx context.Context, password string, filter *Filter, code string) error

	StartLocation(ctx context.Context, epc string, bank Bank, pointer int, fn LocateFunc) error
	StopLocation(ctx context.Context) error
}

// FrequencyController is implemented by drivers that can change region
type FrequencyController interface {
	SetFrequencyMode(ctx context.Context, mode FrequencyMode) error
	FrequencyMode(ctx context.Context) (FrequencyMode, error)
}

// HealthReporter is implemented by handheld readers with a battery and sensors
type HealthReporter interface {
	BatteryLevel(ctx context.Context) (int, error)
	Temperature(ctx context.Context) (int, error)
	IsWorking(ctx context.Context) (bool, error)
}

// PowerReporter is implemented by drivers that can tell whether the reader
// module has power
type PowerReporter interface {
	IsPowerOn(ctx context.Context) (bool, error)
}

// Beeper is implemented by readers with a built-in buzzer
type Beeper interface {
	SetBeep(ctx context.Context, enabled bool) error
	TriggerBeep(ctx context.Context, d time.Duration) error
}

// StatusNotifier is implemented by drivers that report link changes on
// their own, e.g. a Bluetooth reader going out of range.
type StatusNotifier interface {
	SetStatusHandler(fn func(status ConnectionStatus, peer Peer))
}

// Freer is implemented by drivers holding resources beyond the connection
type Freer interface {
	Free(ctx context.Context) error
}
