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

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr   error
		name      string
		succeedAt int
		wantCalls int
		failHard  bool
	}{
		{name: "first attempt", succeedAt: 1, wantCalls: 1},
		{name: "third attempt", succeedAt: 3, wantCalls: 3},
		{name: "exhausted", succeedAt: 10, wantCalls: 3, wantErr: uhf.ErrCommunicationFailed},
		{name: "permanent error", failHard: true, wantCalls: 1, wantErr: uhf.ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls, retries := 0, 0
			cfg := RetryConfig{
				Description: "connect",
				MaxRetries:  2,
				RetryDelay:  time.Millisecond,
				OnRetry:     func() error { retries++; return nil },
			}
			got, err := WithRetry(context.Background(), cfg, func() (int, bool, error) {
				calls++
				if tt.failHard {
					return 0, false, uhf.ErrNotConnected
				}
				return calls, calls < tt.succeedAt, nil
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.succeedAt, got)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, max(0, tt.wantCalls-1), retries)
		})
	}
}

func TestWithRetry_OnRetryError(t *testing.T) {
	t.Parallel()
	hookErr := errors.New("reset failed")
	_, err := WithRetry(context.Background(), RetryConfig{MaxRetries: 3, OnRetry: func() error { return hookErr }},
		func() (int, bool, error) { return 0, true, nil })
	require.ErrorIs(t, err, hookErr)
}

func TestPollUntil(t *testing.T) {
	t.Parallel()
	calls := 0
	got, err := PollUntil(context.Background(), time.Now().Add(time.Second), time.Millisecond, "read",
		func() (string, bool, error) {
			calls++
			return "frame", calls < 3, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "frame", got)
	assert.Equal(t, 3, calls)
}

func TestPollUntil_Deadline(t *testing.T) {
	t.Parallel()
	start := time.Now()
	_, err := PollUntil(context.Background(), start.Add(20*time.Millisecond), 5*time.Millisecond, "read",
		func() (int, bool, error) { return 0, true, nil })
	require.ErrorIs(t, err, uhf.ErrTransportTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPollUntil_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := PollUntil(ctx, time.Now().Add(time.Hour), time.Millisecond, "read",
		func() (int, bool, error) { return 0, true, nil })
	require.ErrorIs(t, err, context.Canceled)
}
