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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peakTransport records how many exchanges overlap
type peakTransport struct {
	*MockTransport
	inflight atomic.Int32
	peak     atomic.Int32
}

func (p *peakTransport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return p.MockTransport.SendCommand(cmd, args)
}

func TestDevice_CommandLockReleasedAfterCancel(t *testing.T) {
	t.Parallel()

	mock := NewBlockingMockTransport()
	_ = mock.SetTimeout(200 * time.Millisecond)
	defer func() { _ = mock.Close() }()
	mock.SetResponse(ok())

	device, err := New(mock, WithoutRetry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)
	err = device.SetPower(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)

	time.AfterFunc(10*time.Millisecond, mock.Unblock)
	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, device.SetPower(ctx, 10))
}

func TestDevice_ConcurrentCommandsSerialize(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdSetPower, ok())
	mock.SetDelay(time.Millisecond)
	transport := &peakTransport{MockTransport: mock}

	device, err := New(transport, WithoutRetry())
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range workers {
		go func(level int) {
			defer wg.Done()
			assert.NoError(t, device.SetPower(context.Background(), level))
		}(i + 1)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commands did not complete")
	}

	assert.Equal(t, int32(1), transport.peak.Load())
	assert.Equal(t, workers, mock.GetCallCount(cmdSetPower))
}

func TestDevice_CancelDuringBlockedExchange(t *testing.T) {
	t.Parallel()

	mock := NewBlockingMockTransport()
	_ = mock.SetTimeout(50 * time.Millisecond)
	defer func() { _ = mock.Close() }()

	device, err := New(mock, WithoutRetry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- device.StartInventory(ctx)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("exchange ignored cancellation")
	}
}
