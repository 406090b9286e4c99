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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-uhf"
)

var (
	ErrAlreadyScanning   = errors.New("inventory scan already running")
	ErrLocateActive      = errors.New("locate is active")
	ErrAlreadyLocating   = errors.New("locate already running")
	ErrInvalidScanParams = errors.New("invalid scan parameters")
	ErrStartInProgress   = errors.New("scan start in progress")
)

// Default timings, matching what handheld readers are tuned for
const (
	DefaultPollInterval  = 30 * time.Millisecond
	DefaultFlushInterval = 250 * time.Millisecond
	DefaultIdleInterval  = time.Millisecond
	DefaultStopTimeout   = 2 * time.Second
	DefaultLocateBuffer  = 64

	// DefaultBeepRestoreDelay covers beeps for reads still buffered in the
	// reader when inventory stops
	DefaultBeepRestoreDelay = 800 * time.Millisecond
)

// ScanParams configures one scan session. It is copied at Start and not
// read again from the caller's value.
type ScanParams struct {
	// Filter restricts inventory to matching tags. Nil clears all filters.
	Filter *uhf.Filter
	// Power is the transmit power in dBm
	Power int
	// PollInterval is the pause after each record read
	PollInterval time.Duration
	// FlushInterval is the minimum time between batch emissions
	FlushInterval time.Duration
	// PlaySound signals new/repeat feedback for each record
	PlaySound bool
}

// DefaultScanParams returns params at the given power with default timings
func DefaultScanParams(power int) ScanParams {
	return ScanParams{
		Power:         power,
		PollInterval:  DefaultPollInterval,
		FlushInterval: DefaultFlushInterval,
	}
}

// Validate checks the parameters before any driver call is made
func (p *ScanParams) Validate() error {
	if err := uhf.ValidatePower(p.Power); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScanParams, err)
	}
	if p.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval %v", ErrInvalidScanParams, p.PollInterval)
	}
	if p.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush interval %v", ErrInvalidScanParams, p.FlushInterval)
	}
	if p.Filter != nil {
		if err := p.Filter.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidScanParams, err)
		}
	}
	return nil
}

func (p *ScanParams) clone() ScanParams {
	c := *p
	if p.Filter != nil {
		f := *p.Filter
		c.Filter = &f
	}
	return c
}

// DedupScope controls when the seen-EPC set is cleared
type DedupScope int

const (
	// DedupScopeDevice keeps the set across stop/start until Clear
	DedupScopeDevice DedupScope = iota
	// DedupScopeSession clears the set at every successful Start
	DedupScopeSession
)

// Config holds Scanner and Locator settings
type Config struct {
	Clock            func() time.Time
	DedupScope       DedupScope
	IdleInterval     time.Duration
	StopTimeout      time.Duration
	BeepRestoreDelay time.Duration
	LocateBuffer     int
}

// DefaultConfig returns the default Scanner configuration
func DefaultConfig() *Config {
	return &Config{
		Clock:            time.Now,
		DedupScope:       DedupScopeDevice,
		IdleInterval:     DefaultIdleInterval,
		StopTimeout:      DefaultStopTimeout,
		BeepRestoreDelay: DefaultBeepRestoreDelay,
		LocateBuffer:     DefaultLocateBuffer,
	}
}

// Option configures a Scanner or Locator
type Option func(*Config)

// WithDedupScope sets when the seen-EPC set is cleared
func WithDedupScope(scope DedupScope) Option {
	return func(c *Config) {
		c.DedupScope = scope
	}
}

// WithIdleInterval sets the back-off after an empty poll. Zero only yields.
func WithIdleInterval(d time.Duration) Option {
	return func(c *Config) {
		c.IdleInterval = d
	}
}

// WithClock replaces the wall clock used for flush timing
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithStopTimeout bounds the driver stop call made when a scan ends
func WithStopTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.StopTimeout = d
	}
}

// WithBeepRestoreDelay sets how long after a scan stops the reader's own
// buzzer is turned back on
func WithBeepRestoreDelay(d time.Duration) Option {
	return func(c *Config) {
		c.BeepRestoreDelay = d
	}
}

// WithLocateBuffer sets how many proximity values may wait for the sink
func WithLocateBuffer(n int) Option {
	return func(c *Config) {
		c.LocateBuffer = n
	}
}

func newConfig(opts []Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.LocateBuffer < 1 {
		cfg.LocateBuffer = DefaultLocateBuffer
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return cfg
}
