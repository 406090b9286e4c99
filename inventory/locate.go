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

package inventory

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ZaparooProject/go-uhf"
)

// epcBitOffset skips the CRC and PC words at the start of the EPC bank
const epcBitOffset = 32

// LocateParams configures a locate run
type LocateParams struct {
	EPC       string `json:"epc"`
	Power     int    `json:"power"`
	PlaySound bool   `json:"playSound"`
}

// Validate checks the parameters before any driver call is made
func (p *LocateParams) Validate() error {
	if p.EPC == "" {
		return fmt.Errorf("%w: empty epc", uhf.ErrInvalidParameter)
	}
	if _, err := hex.DecodeString(p.EPC); err != nil {
		return fmt.Errorf("%w: epc is not hex: %v", uhf.ErrInvalidParameter, err)
	}
	return uhf.ValidatePower(p.Power)
}

// Locator streams proximity values for one tag. The driver callback never
// blocks: values pass through a bounded buffer that drops the oldest value
// when the sink falls behind, so the latest reading is always delivered.
// Delivery is therefore lossy under a slow sink; Dropped counts the values
// discarded this way.
type Locator struct {
	session   *uhf.Session
	config    *Config
	values    chan int
	done      chan struct{}
	dropped   atomic.Int64
	forwarded atomic.Int64
	mu        sync.Mutex
	valuesMu  sync.Mutex
	active    bool
}

// NewLocator creates a locator over session's driver
func NewLocator(session *uhf.Session, opts ...Option) (*Locator, error) {
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	return &Locator{session: session, config: newConfig(opts)}, nil
}

// Start sets power and starts the driver locate for params.EPC. It fails
// while an inventory scan holds the session.
func (l *Locator) Start(ctx context.Context, params LocateParams) error {
	if err := params.Validate(); err != nil {
		return &uhf.OperationError{Op: "startLocate", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return &uhf.OperationError{Op: "startLocate", Err: ErrAlreadyLocating}
	}
	if held, ok := l.session.Claim(uhf.ModeLocate); !ok {
		err := fmt.Errorf("%w: %s in progress", uhf.ErrBusy, held)
		if held == uhf.ModeInventory {
			err = ErrAlreadyScanning
		}
		return &uhf.OperationError{Op: "startLocate", Err: err}
	}

	if err := l.session.PrepareLocate(ctx, params.Power); err != nil {
		l.session.Release(uhf.ModeLocate)
		return &uhf.OperationError{Op: "startLocate", Err: err}
	}

	values := make(chan int, l.config.LocateBuffer)
	done := make(chan struct{})
	l.valuesMu.Lock()
	l.values = values
	l.valuesMu.Unlock()

	deliver := func(v int) { l.deliver(values, v) }
	err := l.session.Driver().StartLocation(ctx, params.EPC, uhf.BankEPC, epcBitOffset, deliver)
	if err != nil {
		l.valuesMu.Lock()
		l.values = nil
		l.valuesMu.Unlock()
		l.session.Release(uhf.ModeLocate)
		return &uhf.OperationError{Op: "startLocate", Err: err}
	}

	l.done = done
	l.active = true
	go l.forward(values, done, params.PlaySound)
	uhf.Logger().Debug().Str("epc", params.EPC).Int("power", params.Power).Msg("locate started")
	return nil
}

// deliver is the driver callback. Values arriving after Stop are discarded.
func (l *Locator) deliver(values chan int, v int) {
	l.valuesMu.Lock()
	defer l.valuesMu.Unlock()
	if l.values != values {
		return
	}
	for {
		select {
		case values <- v:
			return
		default:
		}
		select {
		case <-values:
			l.dropped.Add(1)
		default:
		}
	}
}

func (l *Locator) forward(values <-chan int, done chan<- struct{}, playSound bool) {
	defer close(done)
	sink := l.session.Sink()
	for v := range values {
		l.forwarded.Add(1)
		safeCall("locate value", func() { sink.LocateValue(v) })
		if playSound {
			safeCall("feedback", func() { sink.Feedback(uhf.FeedbackRepeat) })
		}
	}
}

// Stop tears down the driver locate and waits until every buffered value
// has reached the sink. Stopping an inactive locator succeeds.
func (l *Locator) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return nil
	}

	stopErr := l.session.Driver().StopLocation(ctx)

	l.valuesMu.Lock()
	close(l.values)
	l.values = nil
	l.valuesMu.Unlock()

	done := l.done
	l.active = false
	l.done = nil
	l.session.Release(uhf.ModeLocate)

	select {
	case <-done:
	case <-ctx.Done():
		return &uhf.OperationError{Op: "stopLocate", Err: ctx.Err()}
	}
	uhf.Logger().Debug().Int64("dropped", l.dropped.Load()).Msg("locate stopped")

	if stopErr != nil {
		return &uhf.OperationError{Op: "stopLocate", Err: stopErr}
	}
	return nil
}

// IsActive reports whether a locate run is in progress
func (l *Locator) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Dropped returns how many values were discarded because the sink lagged.
// These values never reach the sink.
func (l *Locator) Dropped() int64 {
	return l.dropped.Load()
}

// Forwarded returns how many values reached the sink
func (l *Locator) Forwarded() int64 {
	return l.forwarded.Load()
}
