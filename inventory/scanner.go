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

// Package inventory runs continuous tag inventory on a reader session and
// streams deduplicated, time-batched results to the session's event sink.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ZaparooProject/go-uhf"
)

// Scanner owns one inventory poll loop at a time for a Session.
//
// Start configures the reader and spawns the loop; Stop signals it and
// waits until it has flushed and exited. Scanner is safe for concurrent use.
type Scanner struct {
	session    *uhf.Session
	driver     uhf.InventoryDriver
	config     *Config
	seen       *TagSet
	run        *run
	params     ScanParams
	records    atomic.Int64
	newTags    atomic.Int64
	batches    atomic.Int64
	pollErrors atomic.Int64
	sessions   atomic.Int64
	mu         sync.Mutex
	state      atomic.Int32
	scanning   atomic.Bool
}

// NewScanner creates a scanner over session's driver
func NewScanner(session *uhf.Session, opts ...Option) (*Scanner, error) {
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	return &Scanner{
		session: session,
		driver:  session.Driver(),
		config:  newConfig(opts),
		seen:    NewTagSet(),
	}, nil
}

// run is the handle of one poll loop. err is written before done is
// closed and read only after, so a restart never clobbers it.
type run struct {
	stop  chan struct{}
	done  chan struct{}
	err   error
	id    string
	muted bool
}

func startError(err error) error {
	return &uhf.OperationError{Op: "startScan", Err: err}
}

// Start validates params, mutes the reader's buzzer, applies power and
// filter, starts driver inventory and spawns the poll loop. Any failure
// leaves the scanner idle with no loop running and the buzzer restored.
// ctx bounds configuration only; the loop runs until Stop.
func (s *Scanner) Start(ctx context.Context, params ScanParams) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		if s.State() == StateStarting {
			return startError(ErrStartInProgress)
		}
		return startError(ErrAlreadyScanning)
	}
	if err := s.start(ctx, params.clone()); err != nil {
		s.state.Store(int32(StateIdle))
		uhf.Logger().Warn().Err(err).Msg("scan start failed")
		return startError(err)
	}
	return nil
}

func (s *Scanner) start(ctx context.Context, params ScanParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if held, ok := s.session.Claim(uhf.ModeInventory); !ok {
		if held == uhf.ModeLocate {
			return ErrLocateActive
		}
		return fmt.Errorf("%w: %s in progress", uhf.ErrBusy, held)
	}
	muted := s.muteBeep(ctx)
	if err := s.configure(ctx, params); err != nil {
		if muted {
			s.restoreBeep(context.WithoutCancel(ctx), 0)
		}
		s.session.Release(uhf.ModeInventory)
		return err
	}

	if s.config.DedupScope == DedupScopeSession {
		s.seen.Clear()
	}
	r := &run{
		id:    uuid.NewString(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		muted: muted,
	}

	s.mu.Lock()
	s.params = params
	s.run = r
	s.mu.Unlock()

	s.sessions.Add(1)
	s.scanning.Store(true)
	s.state.Store(int32(StateScanning))

	uhf.Logger().Debug().
		Str("session", r.id).
		Int("power", params.Power).
		Dur("flush", params.FlushInterval).
		Msg("scan started")

	go s.pollLoop(context.WithoutCancel(ctx), params, r)
	return nil
}

// configure applies power and filter and starts driver inventory
func (s *Scanner) configure(ctx context.Context, params ScanParams) error {
	if err := s.session.PrepareInventory(ctx, params.Power, params.Filter); err != nil {
		return err
	}
	if err := s.driver.StartInventory(ctx); err != nil {
		return &uhf.OperationError{Op: "startInventory", Err: err}
	}
	return nil
}

// muteBeep turns off the reader's own buzzer so it does not compete with
// new/repeat feedback. It reports whether the buzzer was muted.
func (s *Scanner) muteBeep(ctx context.Context) bool {
	b, ok := s.driver.(uhf.Beeper)
	if !ok {
		return false
	}
	if err := b.SetBeep(ctx, false); err != nil {
		uhf.Logger().Debug().Err(err).Msg("mute beep failed")
		return false
	}
	return true
}

// restoreBeep turns the buzzer back on after delay, once reads still
// buffered in the reader have been signalled.
func (s *Scanner) restoreBeep(ctx context.Context, delay time.Duration) {
	b, ok := s.driver.(uhf.Beeper)
	if !ok {
		return
	}
	pause(nil, delay)
	ctx, cancel := context.WithTimeout(ctx, s.config.StopTimeout)
	defer cancel()
	if err := b.SetBeep(ctx, true); err != nil {
		uhf.Logger().Warn().Err(err).Msg("restore beep failed")
	}
}

// Stop clears the scanning flag and waits for the loop to flush and exit,
// or for ctx. Stopping an idle scanner succeeds immediately. The returned
// error is the driver's stop failure, if any.
func (s *Scanner) Stop(ctx context.Context) error {
	for {
		switch State(s.state.Load()) {
		case StateIdle:
			return nil
		case StateStarting:
			return &uhf.OperationError{Op: "stopScan", Err: ErrStartInProgress}
		case StateStopping:
			return s.Wait(ctx)
		case StateScanning:
			if !s.state.CompareAndSwap(int32(StateScanning), int32(StateStopping)) {
				continue
			}
			s.scanning.Store(false)
			s.mu.Lock()
			r := s.run
			close(r.stop)
			s.mu.Unlock()
			return r.wait(ctx)
		}
	}
}

// Wait blocks until the current loop has exited or ctx is done
func (s *Scanner) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.wait(ctx)
}

func (r *run) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return &uhf.OperationError{Op: "stopScan", Err: ctx.Err()}
	}
}

// Clear forgets every EPC seen so far. Batches already emitted are not affected.
func (s *Scanner) Clear() {
	s.seen.Clear()
}

// Seen returns the distinct EPCs classified so far
func (s *Scanner) Seen() []string {
	return s.seen.Snapshot()
}

// State returns the lifecycle state
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// IsScanning reports whether the loop is running and has not been told to stop
func (s *Scanner) IsScanning() bool {
	return s.scanning.Load()
}

// SessionID returns the id of the current or most recent scan session
func (s *Scanner) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.id
}

// Params returns the parameters of the current or most recent scan session
func (s *Scanner) Params() ScanParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.clone()
}

// Stats returns processing counters
func (s *Scanner) Stats() Stats {
	return Stats{
		Records:    s.records.Load(),
		NewTags:    s.newTags.Load(),
		Batches:    s.batches.Load(),
		PollErrors: s.pollErrors.Load(),
		Sessions:   s.sessions.Load(),
	}
}
