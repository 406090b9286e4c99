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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportWithRetry(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.SetResponse(cmdReaderInfo, readerInfo("R2000"))
	mock.SetError(cmdSetPower, ErrTransportTimeout)

	tr := NewTransportWithRetry(mock, fastRetry(3))
	resp, err := tr.SendCommand(cmdReaderInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(statusSuccess), resp[0])

	_, err = tr.SendCommand(cmdSetPower, []byte{10})
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 3, mock.GetCallCount(cmdSetPower))

	assert.Equal(t, TransportMock, tr.Type())
	assert.Equal(t, time.Second, tr.Timeout())
	require.NoError(t, tr.SetTimeout(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, tr.Timeout())
	assert.Same(t, mock, tr.Unwrap())

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
	_, err = tr.SendCommand(cmdSetPower, nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestTransportWithRetry_NotRetryingPermanent(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.SetError(cmdSetPower, errors.New("port gone"))

	tr := NewTransportWithRetry(mock, nil)
	_, err := tr.SendCommand(cmdSetPower, nil)
	require.Error(t, err)
	assert.Equal(t, 1, mock.GetCallCount(cmdSetPower))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrorTypePermanent, te.Type)
}

func TestTransportWithRetry_OnDisconnect(t *testing.T) {
	t.Parallel()
	inner := &notifyingTransport{MockTransport: NewMockTransport()}
	tr := NewTransportWithRetry(inner, nil)

	called := false
	tr.OnDisconnect(func() { called = true })
	require.NotNil(t, inner.lost)
	inner.lost()
	assert.True(t, called)

	// a transport without link notifications ignores the handler
	NewTransportWithRetry(NewMockTransport(), nil).OnDisconnect(func() { t.Fail() })
}

func TestTransportWithRetry_ContextDeadline(t *testing.T) {
	t.Parallel()
	mock := NewMockTransport()
	mock.SetResponse(cmdSetPower, ok())
	mock.SetDelay(50 * time.Millisecond)
	tr := NewTransportWithRetry(mock, fastRetry(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := AsTransportContext(tr).SendCommandContext(ctx, cmdSetPower, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
