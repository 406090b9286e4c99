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
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrVerifyMismatch is returned when read-back data differs from what was written
var ErrVerifyMismatch = errors.New("read-back does not match written data")

// VerifyConfig holds configuration for write verification
type VerifyConfig struct {
	// RetryDelay specifies delay between attempts
	RetryDelay time.Duration

	// WriteRetries specifies how often a failed or mismatched write is repeated
	WriteRetries int
}

// DefaultVerifyConfig returns default verification configuration
func DefaultVerifyConfig() *VerifyConfig {
	return &VerifyConfig{
		WriteRetries: 3,
		RetryDelay:   50 * time.Millisecond,
	}
}

// VerifyMetrics tracks verification statistics
type VerifyMetrics struct {
	LastVerification time.Time
	TotalWrites      uint64
	Attempts         uint64
	Mismatches       uint64
	Failures         uint64
}

// Verifier performs memory writes on a session and reads each one back
type Verifier struct {
	session *Session
	config  *VerifyConfig
	metrics VerifyMetrics
	mu      sync.RWMutex
}

// NewVerifier creates a verifier for session
func NewVerifier(session *Session, config *VerifyConfig) *Verifier {
	if config == nil {
		config = DefaultVerifyConfig()
	}
	return &Verifier{session: session, config: config}
}

// Metrics returns a copy of the verification statistics
func (v *Verifier) Metrics() VerifyMetrics {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.metrics
}

// Write writes op and reads the same words back, repeating the write when
// the tag reports different data. Feedback is signalled once for the
// whole operation.
func (v *Verifier) Write(ctx context.Context, op MemoryOp) error {
	want := strings.ToUpper(op.Data)
	readBack := MemoryOp{
		Bank:     op.Bank,
		Pointer:  op.Pointer,
		Count:    op.Count,
		Password: op.Password,
		Filter:   op.Filter,
	}

	var lastErr error
	for attempt := 0; attempt <= v.config.WriteRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, v.config.RetryDelay); err != nil {
				lastErr = err
				break
			}
			debugf("verified write retry %d/%d: %v", attempt, v.config.WriteRetries, lastErr)
		}
		v.record(func(m *VerifyMetrics) { m.Attempts++ })

		lastErr = v.session.access(ctx, "verifiedWrite", op.Power, false, func() error {
			if err := v.session.writeData(ctx, op); err != nil {
				return err
			}
			got, err := v.session.readData(ctx, readBack)
			if err != nil {
				return err
			}
			if got != want {
				v.record(func(m *VerifyMetrics) { m.Mismatches++ })
				return fmt.Errorf("%w: wrote %s, read %s", ErrVerifyMismatch, want, got)
			}
			return nil
		})
		if lastErr == nil || !verifyRetryable(lastErr) {
			break
		}
	}

	v.record(func(m *VerifyMetrics) {
		m.TotalWrites++
		m.LastVerification = time.Now()
		if lastErr != nil {
			m.Failures++
		}
	})
	if op.PlaySound {
		if lastErr != nil {
			v.session.sink.Feedback(FeedbackError)
		} else {
			v.session.sink.Feedback(FeedbackSuccess)
		}
	}
	return lastErr
}

func (v *Verifier) record(fn func(*VerifyMetrics)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(&v.metrics)
}

func verifyRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrBusy),
		errors.Is(err, ErrInvalidParameter),
		errors.Is(err, ErrNotSupported),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
