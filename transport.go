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
	"time"
)

// Transport moves command frames between the host and a reader. It can be
// implemented by UART or Bluetooth LE backends.
type Transport interface {
	// SendCommand sends a command and waits for its response. The returned
	// slice starts with the reader status byte followed by response data.
	SendCommand(cmd byte, args []byte) ([]byte, error)

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the response timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportBLE represents Bluetooth LE transport.
	TransportBLE TransportType = "ble"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// DisconnectNotifier is implemented by transports that can lose their link
// without being closed.
type DisconnectNotifier interface {
	OnDisconnect(fn func())
}

// PeerReporter is implemented by transports that know the name the
// reader advertises, such as Bluetooth links.
type PeerReporter interface {
	Peer() Peer
}

func advertisedName(t Transport) string {
	for t != nil {
		if pr, ok := t.(PeerReporter); ok {
			return pr.Peer().Name
		}
		u, ok := t.(interface{ Unwrap() Transport })
		if !ok {
			return ""
		}
		t = u.Unwrap()
	}
	return ""
}

// TransportWithRetry wraps a Transport with retry capabilities
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// SendCommand sends a command with retry logic
func (t *TransportWithRetry) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return t.SendCommandContext(context.Background(), cmd, args)
}

// SendCommandContext sends a command with retry logic. ctx bounds every
// attempt and the backoff between them.
func (t *TransportWithRetry) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	inner := AsTransportContext(t.transport)
	var result []byte
	err := RetryWithConfig(ctx, t.config, func() error {
		var err error
		result, err = inner.SendCommandContext(ctx, cmd, args)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return &TransportError{
				Op:        "SendCommand",
				Err:       err,
				Type:      GetErrorType(err),
				Retryable: IsRetryable(err),
			}
		}
		return nil
	})
	return result, err
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// SetTimeout sets the response timeout for the transport
func (t *TransportWithRetry) SetTimeout(timeout time.Duration) error {
	if err := t.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on underlying transport: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *TransportWithRetry) IsConnected() bool {
	return t.transport.IsConnected()
}

// Type returns the transport type
func (t *TransportWithRetry) Type() TransportType {
	return t.transport.Type()
}

// OnDisconnect forwards to the wrapped transport when it supports it
func (t *TransportWithRetry) OnDisconnect(fn func()) {
	if n, ok := t.transport.(DisconnectNotifier); ok {
		n.OnDisconnect(fn)
	}
}

// Timeout forwards to the wrapped transport when it reports one
func (t *TransportWithRetry) Timeout() time.Duration {
	if r, ok := t.transport.(TimeoutReporter); ok {
		return r.Timeout()
	}
	return defaultExchangeTimeout
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}

// Unwrap returns the wrapped transport
func (t *TransportWithRetry) Unwrap() Transport {
	return t.transport
}
