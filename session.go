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
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Mode is the exclusive activity a Session's driver is engaged in
type Mode int32

const (
	ModeIdle Mode = iota
	ModeInventory
	ModeLocate
	ModeAccess
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeInventory:
		return "inventory"
	case ModeLocate:
		return "locate"
	case ModeAccess:
		return "access"
	default:
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
}

// Session owns one reader driver on behalf of a control surface. It lazily
// initializes the driver, configures power and filters, performs tag
// memory access and reports connection changes to the sink.
//
// Inventory, locate and memory access are mutually exclusive; Claim and
// Release arbitrate between them.
type Session struct {
	driver      Driver
	sink        EventSink
	peer        Peer
	status      ConnectionStatus
	mode        atomic.Int32
	mu          sync.Mutex
	initialized bool
}

// NewSession creates a session over driver that reports to sink. A nil sink
// discards events.
func NewSession(driver Driver, sink EventSink) *Session {
	if sink == nil {
		sink = NopSink{}
	}
	s := &Session{
		driver: driver,
		sink:   sink,
		status: StatusDisconnected,
	}
	if n, ok := driver.(StatusNotifier); ok {
		n.SetStatusHandler(s.driverStatus)
	}
	return s
}

// Driver returns the session's reader driver
func (s *Session) Driver() Driver {
	return s.driver
}

// Sink returns the session's event sink
func (s *Session) Sink() EventSink {
	return s.sink
}

// Mode returns the current activity
func (s *Session) Mode() Mode {
	return Mode(s.mode.Load())
}

// Claim moves the session from idle to m. When another activity holds the
// driver it returns that activity and false.
func (s *Session) Claim(m Mode) (Mode, bool) {
	if s.mode.CompareAndSwap(int32(ModeIdle), int32(m)) {
		return m, true
	}
	return s.Mode(), false
}

// Release returns the session to idle if m is the current activity
func (s *Session) Release(m Mode) {
	s.mode.CompareAndSwap(int32(m), int32(ModeIdle))
}

// EnsureInit initializes the driver unless it is already initialized and connected
func (s *Session) EnsureInit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized && s.driver.IsConnected() {
		return nil
	}
	if err := s.driver.Init(ctx); err != nil {
		s.initialized = false
		return opError("init", err)
	}
	s.initialized = true
	return nil
}

// Connect drops any stale link, connects to address and reports each
// transition to the sink.
func (s *Session) Connect(ctx context.Context, address string) (Peer, error) {
	if held := s.Mode(); held != ModeIdle {
		return Peer{}, opError("connect", fmt.Errorf("%w: %s in progress", ErrBusy, held))
	}
	s.setStatus(StatusConnecting, Peer{Address: address})

	// Readers refuse a second link while the previous one lingers.
	if err := s.driver.Disconnect(ctx); err != nil {
		Logger().Debug().Err(err).Msg("disconnect before connect")
	}

	peer, err := s.driver.Connect(ctx, address)
	if err != nil {
		s.setStatus(StatusDisconnected, Peer{Address: address})
		return Peer{}, opError("connect", err)
	}
	if peer.Address == "" {
		peer.Address = address
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	s.setStatus(StatusConnected, peer)
	return peer, nil
}

// Disconnect closes the link and reports DISCONNECTED
func (s *Session) Disconnect(ctx context.Context) error {
	err := s.driver.Disconnect(ctx)
	s.mu.Lock()
	s.initialized = false
	peer := s.peer
	s.mu.Unlock()
	s.setStatus(StatusDisconnected, peer)
	return opError("disconnect", err)
}

// Status returns the last reported connection state
func (s *Session) Status() StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusEvent{
		Status:        s.status,
		DeviceName:    s.peer.Name,
		DeviceAddress: s.peer.Address,
	}
}

func (s *Session) setStatus(status ConnectionStatus, peer Peer) {
	s.mu.Lock()
	s.status = status
	s.peer = peer
	s.mu.Unlock()
	s.sink.ConnectionStatus(StatusEvent{
		Status:        status,
		DeviceName:    peer.Name,
		DeviceAddress: peer.Address,
	})
}

func (s *Session) driverStatus(status ConnectionStatus, peer Peer) {
	if status == StatusDisconnected {
		s.mu.Lock()
		s.initialized = false
		s.mu.Unlock()
	}
	s.setStatus(status, peer)
}

// configure runs fn while holding the driver, so reader settings cannot
// change under a running scan, locate or memory operation.
func (s *Session) configure(op string, fn func() error) error {
	if held, ok := s.Claim(ModeAccess); !ok {
		return opError(op, fmt.Errorf("%w: %s in progress", ErrBusy, held))
	}
	defer s.Release(ModeAccess)
	return fn()
}

// SetPower sets the transmit power in dBm. It fails with ErrBusy while any
// operation holds the driver.
func (s *Session) SetPower(ctx context.Context, level int) error {
	return s.configure("setPower", func() error {
		return s.setPower(ctx, level)
	})
}

func (s *Session) setPower(ctx context.Context, level int) error {
	if err := ValidatePower(level); err != nil {
		return opError("setPower", err)
	}
	if err := s.EnsureInit(ctx); err != nil {
		return err
	}
	return opError("setPower", s.driver.SetPower(ctx, level))
}

// ApplyFilter installs filter, or clears the EPC, TID and USER filters when
// nil. It fails with ErrBusy while any operation holds the driver.
func (s *Session) ApplyFilter(ctx context.Context, filter *Filter) error {
	return s.configure("setFilter", func() error {
		return s.applyFilter(ctx, filter)
	})
}

func (s *Session) applyFilter(ctx context.Context, filter *Filter) error {
	if filter == nil {
		for _, f := range ClearFilters() {
			if err := s.driver.SetFilter(ctx, f); err != nil {
				return opError("setFilter", err)
			}
		}
		return nil
	}
	if err := filter.Validate(); err != nil {
		return opError("setFilter", err)
	}
	return opError("setFilter", s.driver.SetFilter(ctx, *filter))
}

// PrepareInventory initializes the driver and applies power and filter.
// Any rejection is returned before inventory starts. The caller must hold
// ModeInventory.
func (s *Session) PrepareInventory(ctx context.Context, power int, filter *Filter) error {
	if err := s.setPower(ctx, power); err != nil {
		return err
	}
	return s.applyFilter(ctx, filter)
}

// PrepareLocate initializes the driver and applies power. The caller must
// hold ModeLocate.
func (s *Session) PrepareLocate(ctx context.Context, power int) error {
	return s.setPower(ctx, power)
}

// SetFrequencyMode selects the regional frequency table
func (s *Session) SetFrequencyMode(ctx context.Context, mode FrequencyMode) error {
	fc, ok := s.driver.(FrequencyController)
	if !ok {
		return opError("setFrequencyMode", ErrNotSupported)
	}
	return s.configure("setFrequencyMode", func() error {
		if err := s.EnsureInit(ctx); err != nil {
			return err
		}
		return opError("setFrequencyMode", fc.SetFrequencyMode(ctx, mode))
	})
}

// FrequencyMode returns the active regional frequency table
func (s *Session) FrequencyMode(ctx context.Context) (FrequencyMode, error) {
	fc, ok := s.driver.(FrequencyController)
	if !ok {
		return 0, opError("getFrequencyMode", ErrNotSupported)
	}
	if err := s.EnsureInit(ctx); err != nil {
		return 0, err
	}
	mode, err := fc.FrequencyMode(ctx)
	return mode, opError("getFrequencyMode", err)
}

// BatteryLevel returns the reader's charge in percent
func (s *Session) BatteryLevel(ctx context.Context) (int, error) {
	hr, ok := s.driver.(HealthReporter)
	if !ok {
		return 0, opError("getBattery", ErrNotSupported)
	}
	level, err := hr.BatteryLevel(ctx)
	return level, opError("getBattery", err)
}

// Temperature returns the reader's module temperature in degrees Celsius
func (s *Session) Temperature(ctx context.Context) (int, error) {
	hr, ok := s.driver.(HealthReporter)
	if !ok {
		return 0, opError("getTemperature", ErrNotSupported)
	}
	temp, err := hr.Temperature(ctx)
	return temp, opError("getTemperature", err)
}

// IsWorking reports whether the reader is busy with an RF operation
func (s *Session) IsWorking(ctx context.Context) (bool, error) {
	hr, ok := s.driver.(HealthReporter)
	if !ok {
		return false, opError("isWorking", ErrNotSupported)
	}
	working, err := hr.IsWorking(ctx)
	return working, opError("isWorking", err)
}

// IsPowerOn reports whether the reader module has power
func (s *Session) IsPowerOn(ctx context.Context) (bool, error) {
	pr, ok := s.driver.(PowerReporter)
	if !ok {
		return false, opError("isPowerOn", ErrNotSupported)
	}
	on, err := pr.IsPowerOn(ctx)
	return on, opError("isPowerOn", err)
}

// Beep sounds the reader's buzzer for roughly d
func (s *Session) Beep(ctx context.Context, d time.Duration) error {
	b, ok := s.driver.(Beeper)
	if !ok {
		return opError("triggerBeep", ErrNotSupported)
	}
	return s.configure("triggerBeep", func() error {
		return opError("triggerBeep", b.TriggerBeep(ctx, d))
	})
}

// SetBeep enables or disables the reader's own buzzer on tag reads. A
// running scan mutes the buzzer itself and turns it back on when it ends.
func (s *Session) SetBeep(ctx context.Context, enabled bool) error {
	b, ok := s.driver.(Beeper)
	if !ok {
		return opError("setBeep", ErrNotSupported)
	}
	return s.configure("setBeep", func() error {
		return opError("setBeep", b.SetBeep(ctx, enabled))
	})
}

// Free releases the driver. Drivers without extra resources are disconnected.
func (s *Session) Free(ctx context.Context) error {
	if held := s.Mode(); held != ModeIdle {
		return opError("free", fmt.Errorf("%w: %s in progress", ErrBusy, held))
	}
	f, ok := s.driver.(Freer)
	if !ok {
		return s.Disconnect(ctx)
	}
	err := f.Free(ctx)
	s.mu.Lock()
	s.initialized = false
	peer := s.peer
	s.mu.Unlock()
	s.setStatus(StatusDisconnected, peer)
	return opError("free", err)
}
