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
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-uhf"
)

const waitFor = 2 * time.Second

func fastParams() ScanParams {
	return ScanParams{Power: 20, FlushInterval: 5 * time.Millisecond}
}

func tag(epc string) uhf.TagRecord {
	return uhf.TagRecord{EPC: epc, TID: "E280" + epc, RSSI: "-55.00"}
}

func epcs(tags []uhf.TagRecord) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.EPC
	}
	return out
}

func newTestScanner(t *testing.T, opts ...Option) (*Scanner, *uhf.MockDriver, *uhf.RecordingSink) {
	t.Helper()
	driver := uhf.NewMockDriver()
	sink := &uhf.RecordingSink{}
	scanner := newScannerFor(t, driver, sink, opts...)
	return scanner, driver, sink
}

func newScannerFor(t *testing.T, driver uhf.Driver, sink uhf.EventSink, opts ...Option) *Scanner {
	t.Helper()
	session := uhf.NewSession(driver, sink)
	opts = append([]Option{WithIdleInterval(100 * time.Microsecond)}, opts...)
	scanner, err := NewScanner(session, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = scanner.Stop(context.Background())
	})
	return scanner
}

func TestNewScanner_NilSession(t *testing.T) {
	t.Parallel()
	_, err := NewScanner(nil)
	require.Error(t, err)
}

func TestScanner_EveryRecordInExactlyOneBatch(t *testing.T) {
	t.Parallel()
	scanner, driver, sink := newTestScanner(t)

	var pushed []uhf.TagRecord
	for i := range 60 {
		pushed = append(pushed, tag(fmt.Sprintf("E2%02d", i%17)))
	}
	driver.PushRecords(pushed...)

	require.NoError(t, scanner.Start(context.Background(), fastParams()))
	require.Eventually(t, func() bool {
		return scanner.Stats().Records == int64(len(pushed))
	}, waitFor, time.Millisecond)
	require.NoError(t, scanner.Stop(context.Background()))

	assert.Equal(t, pushed, sink.Tags(), "records keep drain order with no loss or duplication")
	for _, b := range sink.Batches() {
		assert.NotEmpty(t, b.Tags, "no empty batch is emitted")
		assert.Equal(t, scanner.SessionID(), b.SessionID)
	}
	assert.Equal(t, 17, len(scanner.Seen()))
	assert.Equal(t, StateIdle, scanner.State())
	assert.False(t, driver.InventoryRunning())
}

// fakeClock only moves when the driver is polled
type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type timedRead struct {
	epc string
	at  time.Duration
}

// timedDriver releases scripted reads once the fake clock reaches them,
// advancing the clock by step on each poll up to limit.
type timedDriver struct {
	*uhf.MockDriver
	clock     *fakeClock
	delivered chan struct{}
	start     time.Time
	script    []timedRead
	step      time.Duration
	limit     time.Duration
	mu        sync.Mutex
}

func (d *timedDriver) PollOneRecord(context.Context) (uhf.TagRecord, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	if now.Sub(d.start) < d.limit {
		now = d.clock.advance(d.step)
	}
	if len(d.script) > 0 && now.Sub(d.start) >= d.script[0].at {
		rec := tag(d.script[0].epc)
		d.script = d.script[1:]
		if len(d.script) == 0 {
			close(d.delivered)
		}
		return rec, true, nil
	}
	return uhf.TagRecord{}, false, nil
}

func TestScanner_FlushOnWallClockScenario(t *testing.T) {
	t.Parallel()
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{now: start}
	driver := &timedDriver{
		MockDriver: uhf.NewMockDriver(),
		clock:      clock,
		start:      start,
		step:       5 * time.Millisecond,
		limit:      160 * time.Millisecond,
		delivered:  make(chan struct{}),
		script: []timedRead{
			{epc: "A", at: 10 * time.Millisecond},
			{epc: "B", at: 20 * time.Millisecond},
			{epc: "A", at: 30 * time.Millisecond},
			{epc: "C", at: 150 * time.Millisecond},
		},
	}
	sink := &uhf.RecordingSink{}
	scanner := newScannerFor(t, driver, sink, WithClock(clock.Now), WithIdleInterval(0))

	params := ScanParams{Power: 20, FlushInterval: 100 * time.Millisecond, PlaySound: true}
	require.NoError(t, scanner.Start(context.Background(), params))

	select {
	case <-driver.delivered:
	case <-time.After(waitFor):
		t.Fatal("script not consumed")
	}
	require.NoError(t, scanner.Stop(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"A", "B", "A"}, epcs(batches[0].Tags))
	assert.Equal(t, []string{"C"}, epcs(batches[1].Tags))

	seen := scanner.Seen()
	sort.Strings(seen)
	assert.Equal(t, []string{"A", "B", "C"}, seen)

	assert.Equal(t, []uhf.Feedback{
		uhf.FeedbackNew, uhf.FeedbackNew, uhf.FeedbackRepeat, uhf.FeedbackNew,
	}, sink.FeedbackSignals())
}

func TestScanner_ClearMidSession(t *testing.T) {
	t.Parallel()
	scanner, driver, sink := newTestScanner(t)

	params := fastParams()
	params.PlaySound = true
	require.NoError(t, scanner.Start(context.Background(), params))

	driver.PushRecords(tag("A"))
	require.Eventually(t, func() bool { return len(sink.Batches()) == 1 }, waitFor, time.Millisecond)
	first := sink.Batches()[0]

	scanner.Clear()
	assert.Empty(t, scanner.Seen())

	driver.PushRecords(tag("A"))
	require.Eventually(t, func() bool { return scanner.Stats().Records == 2 }, waitFor, time.Millisecond)
	require.NoError(t, scanner.Stop(context.Background()))

	assert.Equal(t, []uhf.Feedback{uhf.FeedbackNew, uhf.FeedbackNew}, sink.FeedbackSignals())
	assert.Equal(t, first, sink.Batches()[0], "emitted batches are not altered")
	assert.Equal(t, []string{"A", "A"}, epcs(sink.Tags()))
}

func TestScanner_PowerRejectedSpawnsNoLoop(t *testing.T) {
	t.Parallel()
	scanner, driver, sink := newTestScanner(t)

	var polls atomic.Int32
	driver.SetPollHook(func() { polls.Add(1) })
	driver.SetPowerError(uhf.ErrRejected)
	driver.PushRecords(tag("A"), tag("B"))

	err := scanner.Start(context.Background(), fastParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, uhf.ErrRejected)

	var opErr *uhf.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "startScan", opErr.Op)
	assert.Contains(t, err.Error(), "setPower")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, scanner.State())
	assert.False(t, scanner.IsScanning())
	assert.Zero(t, polls.Load())
	assert.Zero(t, driver.CallCount("StartInventory"))
	assert.Empty(t, sink.Batches())
	assert.Equal(t, uhf.ModeIdle, scanner.session.Mode())
}

func TestScanner_StartFailuresReturnToIdle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		setup func(*uhf.MockDriver)
		name  string
		op    string
	}{
		{
			name:  "filter rejected",
			setup: func(d *uhf.MockDriver) { d.SetFilterError(uhf.ErrRejected) },
			op:    "setFilter",
		},
		{
			name:  "start inventory rejected",
			setup: func(d *uhf.MockDriver) { d.SetStartError(uhf.ErrRejected) },
			op:    "startInventory",
		},
		{
			name:  "init fails",
			setup: func(d *uhf.MockDriver) { d.SetConnected(false); d.SetInitError(uhf.ErrNotConnected) },
			op:    "init",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scanner, driver, _ := newTestScanner(t)
			tt.setup(driver)

			err := scanner.Start(context.Background(), fastParams())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.op)
			assert.Equal(t, StateIdle, scanner.State())
			assert.Equal(t, uhf.ModeIdle, scanner.session.Mode())
		})
	}
}

func TestScanner_InvalidParamsTouchNothing(t *testing.T) {
	t.Parallel()
	scanner, driver, _ := newTestScanner(t)

	err := scanner.Start(context.Background(), ScanParams{Power: 99, FlushInterval: time.Second})
	require.ErrorIs(t, err, ErrInvalidScanParams)
	assert.Empty(t, driver.Calls())
	assert.Equal(t, StateIdle, scanner.State())
}

func TestScanner_StartWhileScanningRejected(t *testing.T) {
	t.Parallel()
	scanner, driver, _ := newTestScanner(t)

	require.NoError(t, scanner.Start(context.Background(), fastParams()))
	err := scanner.Start(context.Background(), fastParams())
	require.ErrorIs(t, err, ErrAlreadyScanning)
	assert.Equal(t, 1, driver.CallCount("StartInventory"))

	require.NoError(t, scanner.Stop(context.Background()))
	require.NoError(t, scanner.Start(context.Background(), fastParams()), "restart after stop")
	assert.Equal(t, int64(2), scanner.Stats().Sessions)
}

func TestScanner_StopWhileIdleIsNoop(t *testing.T) {
	t.Parallel()
	scanner, driver, sink := newTestScanner(t)

	require.NoError(t, scanner.Stop(context.Background()))
	require.NoError(t, scanner.Wait(context.Background()))
	assert.Empty(t, driver.Calls())
	assert.Empty(t, sink.Batches())
}

func TestScanner_StopRightAfterStartKeepsReads(t *testing.T) {
	t.Parallel()
	for range 20 {
		scanner, driver, sink := newTestScanner(t)
		driver.PushRecords(tag("A"), tag("B"), tag("C"))

		params := fastParams()
		params.FlushInterval = time.Hour
		require.NoError(t, scanner.Start(context.Background(), params))
		require.NoError(t, scanner.Stop(context.Background()))

		read := 3 - driver.Pending()
		assert.Len(t, sink.Tags(), read, "every record pulled from the driver is flushed on exit")
		assert.LessOrEqual(t, len(sink.Batches()), 1)
	}
}

func TestScanner_EmptyBatchesSuppressed(t *testing.T) {
	t.Parallel()
	scanner, _, sink := newTestScanner(t)

	params := fastParams()
	params.FlushInterval = time.Millisecond
	require.NoError(t, scanner.Start(context.Background(), params))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, scanner.Stop(context.Background()))

	assert.Empty(t, sink.Batches())
	assert.Zero(t, scanner.Stats().Batches)
}

func TestScanner_PollErrorsDoNotEndLoop(t *testing.T) {
	t.Parallel()
	scanner, driver, sink := newTestScanner(t)
	driver.SetPollError(errors.New("buffer read failed"))

	require.NoError(t, scanner.Start(context.Background(), fastParams()))
	require.Eventually(t, func() bool { return scanner.Stats().PollErrors > 3 }, waitFor, time.Millisecond)

	driver.PushRecords(tag("A"))
	require.Eventually(t, func() bool { return scanner.Stats().Records == 1 }, waitFor, time.Millisecond)
	require.NoError(t, scanner.Stop(context.Background()))

	assert.Equal(t, []string{"A"}, epcs(sink.Tags()))
}

func TestScanner_DriverPanicStillFlushes(t *testing.T) {
	t.Parallel()
	scanner, driver, sink := newTestScanner(t)

	var calls atomic.Int32
	driver.SetPollHook(func() {
		if calls.Add(1) == 2 {
			panic("driver bug")
		}
	})
	driver.PushRecords(tag("A"), tag("B"))

	params := fastParams()
	params.FlushInterval = time.Hour
	require.NoError(t, scanner.Start(context.Background(), params))
	require.Eventually(t, func() bool { return scanner.Stats().Records == 2 }, waitFor, time.Millisecond)
	require.NoError(t, scanner.Stop(context.Background()))

	assert.Equal(t, []string{"A", "B"}, epcs(sink.Tags()))
	assert.Equal(t, int64(1), scanner.Stats().PollErrors)
}

func TestScanner_StopInventoryErrorReported(t *testing.T) {
	t.Parallel()
	scanner, driver, sink := newTestScanner(t)
	driver.SetStopError(uhf.ErrRejected)
	driver.PushRecords(tag("A"))

	params := fastParams()
	params.FlushInterval = time.Hour
	require.NoError(t, scanner.Start(context.Background(), params))
	require.Eventually(t, func() bool { return scanner.Stats().Records == 1 }, waitFor, time.Millisecond)

	err := scanner.Stop(context.Background())
	require.ErrorIs(t, err, uhf.ErrRejected)
	assert.Contains(t, err.Error(), "stopInventory")
	assert.Equal(t, StateIdle, scanner.State())
	assert.Equal(t, []string{"A"}, epcs(sink.Tags()), "final flush still happens")
}

func TestScanner_DedupScope(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		scope    DedupScope
		wantSeen bool
	}{
		{name: "device lifetime", scope: DedupScopeDevice, wantSeen: true},
		{name: "per session", scope: DedupScopeSession, wantSeen: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scanner, driver, _ := newTestScanner(t, WithDedupScope(tt.scope))

			driver.PushRecords(tag("A"))
			require.NoError(t, scanner.Start(context.Background(), fastParams()))
			require.Eventually(t, func() bool { return scanner.Stats().Records == 1 }, waitFor, time.Millisecond)
			require.NoError(t, scanner.Stop(context.Background()))

			require.NoError(t, scanner.Start(context.Background(), fastParams()))
			assert.Equal(t, tt.wantSeen, len(scanner.Seen()) == 1)
			require.NoError(t, scanner.Stop(context.Background()))
		})
	}
}

func TestScanner_FilterDefaultsToClearAll(t *testing.T) {
	t.Parallel()
	scanner, driver, _ := newTestScanner(t)

	require.NoError(t, scanner.Start(context.Background(), fastParams()))
	require.NoError(t, scanner.Stop(context.Background()))

	assert.Equal(t, uhf.ClearFilters(), driver.Filters())
	assert.Equal(t, 20, driver.Power())
}

func TestScanner_ConcurrentStartStop(t *testing.T) {
	t.Parallel()
	scanner, driver, _ := newTestScanner(t)
	driver.PushRecords(tag("A"), tag("B"))

	var wg sync.WaitGroup
	var started atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if scanner.Start(context.Background(), fastParams()) == nil {
				started.Add(1)
			}
			_ = scanner.Stop(context.Background())
		}()
	}
	wg.Wait()
	require.NoError(t, scanner.Stop(context.Background()))

	assert.GreaterOrEqual(t, started.Load(), int32(1))
	assert.Equal(t, driver.CallCount("StartInventory"), driver.CallCount("StopInventory"))
	assert.Equal(t, StateIdle, scanner.State())
}

func TestScanner_ConfigLockedWhileScanning(t *testing.T) {
	t.Parallel()
	scanner, driver, _ := newTestScanner(t)
	ctx := context.Background()
	require.NoError(t, scanner.Start(ctx, fastParams()))
	filters := len(driver.Filters())

	err := scanner.session.SetPower(ctx, 5)
	require.ErrorIs(t, err, uhf.ErrBusy)
	assert.Contains(t, err.Error(), "setPower")
	require.ErrorIs(t, scanner.session.ApplyFilter(ctx, uhf.EPCFilter("E200")), uhf.ErrBusy)
	require.ErrorIs(t, scanner.session.SetFrequencyMode(ctx, uhf.FrequencyFCC), uhf.ErrBusy)
	assert.Equal(t, StateScanning, scanner.State())
	assert.Equal(t, 20, driver.Power(), "power is read-only while scanning")
	assert.Len(t, driver.Filters(), filters)

	require.NoError(t, scanner.Stop(ctx))
	require.NoError(t, scanner.session.SetPower(ctx, 5))
	assert.Equal(t, 5, driver.Power())
}

// beepDriver records every buzzer change together with whether driver
// inventory was running when it happened
type beepDriver struct {
	*uhf.MockDriver
	changes []beepChange
	mu      sync.Mutex
}

type beepChange struct {
	enabled   bool
	inventory bool
}

func (d *beepDriver) SetBeep(_ context.Context, enabled bool) error {
	running := d.InventoryRunning()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, beepChange{enabled: enabled, inventory: running})
	return nil
}

func (*beepDriver) TriggerBeep(context.Context, time.Duration) error {
	return nil
}

func (d *beepDriver) Changes() []beepChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]beepChange(nil), d.changes...)
}

func TestScanner_BuzzerMutedDuringScan(t *testing.T) {
	t.Parallel()
	driver := &beepDriver{MockDriver: uhf.NewMockDriver()}
	scanner := newScannerFor(t, driver, &uhf.RecordingSink{}, WithBeepRestoreDelay(20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, scanner.Start(ctx, fastParams()))
	assert.Equal(t, []beepChange{{enabled: false, inventory: false}}, driver.Changes(),
		"muted before inventory starts")

	began := time.Now()
	require.NoError(t, scanner.Stop(ctx))
	assert.GreaterOrEqual(t, time.Since(began), 20*time.Millisecond)
	assert.Equal(t, []beepChange{
		{enabled: false, inventory: false},
		{enabled: true, inventory: false},
	}, driver.Changes(), "restored after inventory stops")
}

func TestScanner_BuzzerRestoredWhenStartFails(t *testing.T) {
	t.Parallel()
	driver := &beepDriver{MockDriver: uhf.NewMockDriver()}
	driver.SetStartError(uhf.ErrRejected)
	scanner := newScannerFor(t, driver, &uhf.RecordingSink{})

	require.ErrorIs(t, scanner.Start(context.Background(), fastParams()), uhf.ErrRejected)
	assert.Equal(t, []beepChange{
		{enabled: false, inventory: false},
		{enabled: true, inventory: false},
	}, driver.Changes())
}

func TestScanner_StopErrorSurvivesImmediateRestart(t *testing.T) {
	t.Parallel()
	scanner, driver, _ := newTestScanner(t)
	driver.SetStopError(uhf.ErrRejected)
	ctx := context.Background()
	require.NoError(t, scanner.Start(ctx, fastParams()))

	for range 20 {
		stopped := make(chan error, 1)
		go func() { stopped <- scanner.Stop(ctx) }()
		for scanner.Start(ctx, fastParams()) != nil {
			runtime.Gosched()
		}
		require.ErrorIs(t, <-stopped, uhf.ErrRejected)
	}
	require.ErrorIs(t, scanner.Stop(ctx), uhf.ErrRejected)
}
