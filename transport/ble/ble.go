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


// Package ble provides the Bluetooth LE transport for handheld UHF
// readers. Frames travel over the Nordic UART service: commands are
// written to the RX characteristic and responses arrive as TX
// notifications, split at the link MTU.
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/internal/frame"
	"github.com/ZaparooProject/go-uhf/internal/transport"
)

const (
	// DefaultChunkSize is the ATT payload of the default 23 byte MTU
	DefaultChunkSize = 20

	pollSlice  = 5 * time.Millisecond
	maxPending = 1024
)

// Link is an established connection to a reader. The tinygo bluetooth
// implementation lives in connect.go; tests provide their own.
type Link interface {
	// Write sends one chunk to the reader's RX characteristic
	Write(p []byte) (int, error)
	Disconnect() error
}

// Transport implements the uhf.Transport interface over a BLE link
type Transport struct {
	link       Link
	onLost     func()
	address    string
	name       string
	pending    []byte
	timeout    time.Duration
	chunkSize  int
	mu         sync.Mutex
	rxMu       sync.Mutex
	handlersMu sync.Mutex
	readerAddr byte
}

// Option configures a Transport
type Option func(*Transport)

// WithChunkSize sets the largest write the link accepts
func WithChunkSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithReaderAddress sets the frame address of the reader
func WithReaderAddress(address byte) Option {
	return func(t *Transport) {
		t.readerAddr = address
	}
}

// WithTimeout sets the response timeout
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// NewWithLink wraps an established link. Notifications from the reader
// must be passed to Receive.
func NewWithLink(link Link, address, name string, opts ...Option) *Transport {
	t := &Transport{
		link:       link,
		address:    address,
		name:       name,
		timeout:    time.Second,
		chunkSize:  DefaultChunkSize,
		readerAddr: frame.DefaultAddress,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Receive queues notification bytes from the reader
func (t *Transport) Receive(buf []byte) {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()
	if len(t.pending)+len(buf) > maxPending {
		t.pending = t.pending[:0]
	}
	t.pending = append(t.pending, buf...)
}

func (t *Transport) takeFrames() []frame.Frame {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	frames, rest := frame.Parse(t.pending)
	t.pending = append(t.pending[:0], rest...)
	return frames
}

func (t *Transport) flush() {
	t.rxMu.Lock()
	t.pending = t.pending[:0]
	t.rxMu.Unlock()
}

// SendCommand sends a command and waits for the matching response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return t.SendCommandContext(context.Background(), cmd, args)
}

// SendCommandContext writes the command in MTU sized chunks and waits for
// the matching response, the transport timeout or ctx.
func (t *Transport) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.link == nil {
		return nil, uhf.ErrNotConnected
	}
	packet, err := frame.Build(t.readerAddr, cmd, args)
	if err != nil {
		return nil, uhf.NewDataTooLargeError("SendCommand", t.address)
	}

	t.flush()
	for off := 0; off < len(packet); off += t.chunkSize {
		end := min(off+t.chunkSize, len(packet))
		if _, err := t.link.Write(packet[off:end]); err != nil {
			return nil, t.linkError("write", err)
		}
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	resp, err := transport.PollUntil(ctx, deadline, pollSlice, "SendCommand", func() ([]byte, bool, error) {
		for _, f := range t.takeFrames() {
			if f.Command == cmd {
				return append([]byte{f.Status}, f.Data...), false, nil
			}
			uhf.Logger().Debug().Msgf("discarding stale frame for 0x%02X", f.Command)
		}
		return nil, true, nil
	})
	if err != nil {
		var te *uhf.TransportError
		if errors.As(err, &te) && te.Port == "" {
			te.Port = t.address
		}
		return nil, err
	}
	return resp, nil
}

func (t *Transport) linkError(op string, cause error) error {
	t.notifyLost()
	return uhf.NewTransportError(op, t.address,
		fmt.Errorf("%w: %w", uhf.ErrTransportWrite, cause), uhf.ErrorTypePermanent)
}

// LinkLost tells the transport the peer dropped the connection
func (t *Transport) LinkLost() {
	t.mu.Lock()
	t.link = nil
	t.mu.Unlock()
	t.notifyLost()
}

func (t *Transport) notifyLost() {
	t.handlersMu.Lock()
	lost := t.onLost
	t.handlersMu.Unlock()
	if lost != nil {
		go lost()
	}
}

// OnDisconnect registers fn to run when the link drops
func (t *Transport) OnDisconnect(fn func()) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.onLost = fn
}

// Peer returns the connected reader's name and address
func (t *Transport) Peer() uhf.Peer {
	return uhf.Peer{Name: t.name, Address: t.address}
}

// SetTimeout sets the response timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close disconnects from the reader
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == nil {
		return nil
	}
	err := t.link.Disconnect()
	t.link = nil
	unregister(t.address)
	if err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", t.address, err)
	}
	return nil
}

// IsConnected returns true while the link is up
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link != nil
}

// Type returns the transport type
func (*Transport) Type() uhf.TransportType {
	return uhf.TransportBLE
}

var _ uhf.TransportContext = (*Transport)(nil)
