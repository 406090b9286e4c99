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
	"fmt"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/internal/batch"
)

// pollLoop drains the driver's tag buffer while the scanning flag is set.
// Records are classified against the seen set as they arrive and emitted
// in batches no more often than params.FlushInterval.
func (s *Scanner) pollLoop(ctx context.Context, params ScanParams, r *run) {
	sink := s.session.Sink()
	pending := batch.New[uhf.TagRecord](params.FlushInterval, s.config.Clock())
	defer s.finish(ctx, pending, r)

	id, stop := r.id, r.stop
	for s.scanning.Load() {
		rec, ok, err := s.pollOnce(ctx)
		switch {
		case err != nil:
			s.pollErrors.Add(1)
			uhf.Logger().Debug().Err(err).Str("session", id).Msg("poll failed")
			s.idle(stop)
		case !ok:
			s.idle(stop)
		default:
			pending.Add(rec)
			s.records.Add(1)
			isNew := s.seen.Insert(rec.EPC)
			if isNew {
				s.newTags.Add(1)
			}
			if params.PlaySound {
				kind := uhf.FeedbackRepeat
				if isNew {
					kind = uhf.FeedbackNew
				}
				safeCall("feedback", func() { sink.Feedback(kind) })
			}
			pause(stop, params.PollInterval)
		}

		if now := s.config.Clock(); pending.Due(now) {
			s.emit(sink, id, pending.Take(now))
		}
	}
}

// pollOnce reads one record, turning a driver panic into an error
func (s *Scanner) pollOnce(ctx context.Context) (rec uhf.TagRecord, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
	}()
	return s.driver.PollOneRecord(ctx)
}

// finish stops driver inventory, flushes what is left, turns the buzzer
// back on and marks the scanner idle. It runs even if the loop body panics.
func (s *Scanner) finish(ctx context.Context, pending *batch.Batch[uhf.TagRecord], r *run) {
	if p := recover(); p != nil {
		uhf.Logger().Error().Interface("panic", p).Str("session", r.id).Msg("poll loop panicked")
	}

	stopCtx, cancel := context.WithTimeout(ctx, s.config.StopTimeout)
	if err := s.driver.StopInventory(stopCtx); err != nil {
		r.err = &uhf.OperationError{Op: "stopInventory", Err: err}
		uhf.Logger().Warn().Err(err).Str("session", r.id).Msg("stop inventory failed")
	}
	cancel()

	if pending.Len() > 0 {
		s.emit(s.session.Sink(), r.id, pending.Take(s.config.Clock()))
	}
	if r.muted {
		s.restoreBeep(ctx, s.config.BeepRestoreDelay)
	}

	s.scanning.Store(false)
	s.session.Release(uhf.ModeInventory)
	s.state.Store(int32(StateIdle))
	uhf.Logger().Debug().Str("session", r.id).Msg("scan stopped")
	close(r.done)
}

// emit sends a non-empty batch to the sink
func (s *Scanner) emit(sink uhf.EventSink, id string, tags []uhf.TagRecord) {
	if len(tags) == 0 {
		return
	}
	s.batches.Add(1)
	safeCall("tag batch", func() { sink.TagBatch(uhf.TagBatch{SessionID: id, Tags: tags}) })
}

func (s *Scanner) idle(stop <-chan struct{}) {
	if s.config.IdleInterval <= 0 {
		runtime.Gosched()
		return
	}
	pause(stop, s.config.IdleInterval)
}

// pause sleeps for d unless stop is closed first. A nil stop never closes.
func pause(stop <-chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
	case <-timer.C:
	}
}

func safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			uhf.Logger().Error().Interface("panic", r).Msgf("event sink panicked on %s", what)
		}
	}()
	fn()
}
