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

// Package uart provides the serial transport for UHF reader modules
package uart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/internal/frame"
	"github.com/ZaparooProject/go-uhf/internal/transport"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	// DefaultBaudRate is the factory setting of most reader modules
	DefaultBaudRate = 115200

	readSlice      = 10 * time.Millisecond
	readBufferSize = 256
	powerUpDelay   = 100 * time.Millisecond
)

// Port is the part of a serial port the transport uses. serial.Port
// satisfies it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Transport implements the uhf.Transport interface for serial readers
type Transport struct {
	port       Port
	enable     gpio.PinOut
	onLost     func()
	portName   string
	enablePin  string
	pending    []byte
	timeout    time.Duration
	baudRate   int
	mu         sync.Mutex
	handlersMu sync.Mutex
	address    byte
}

// Option configures a Transport
type Option func(*Transport)

// WithBaudRate sets the line speed
func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		t.baudRate = baud
	}
}

// WithReaderAddress sets the bus address written into every frame
func WithReaderAddress(address byte) Option {
	return func(t *Transport) {
		t.address = address
	}
}

// WithEnablePin drives the named GPIO high while the port is open. Some
// handheld sleds gate the module's power on a host pin.
func WithEnablePin(name string) Option {
	return func(t *Transport) {
		t.enablePin = name
	}
}

// New opens portName
func New(portName string, opts ...Option) (*Transport, error) {
	t := newTransport(portName, opts)

	if t.enablePin != "" {
		if err := t.powerUp(); err != nil {
			return nil, err
		}
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		t.powerDown()
		return nil, uhf.NewTransportError("open", portName, err, uhf.ErrorTypePermanent)
	}
	t.port = port
	uhf.Logger().Debug().Str("port", portName).Int("baud", t.baudRate).Msg("serial port opened")
	return t, nil
}

// NewWithPort wraps an already open port
func NewWithPort(port Port, portName string, opts ...Option) *Transport {
	t := newTransport(portName, opts)
	t.port = port
	return t
}

func newTransport(portName string, opts []Option) *Transport {
	t := &Transport{
		portName: portName,
		baudRate: DefaultBaudRate,
		timeout:  time.Second,
		address:  frame.DefaultAddress,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) powerUp() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(t.enablePin)
	if pin == nil {
		return fmt.Errorf("%w: gpio %q", uhf.ErrDeviceNotFound, t.enablePin)
	}
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to raise enable pin %s: %w", t.enablePin, err)
	}
	t.enable = pin
	time.Sleep(powerUpDelay)
	return nil
}

func (t *Transport) powerDown() {
	if t.enable == nil {
		return
	}
	if err := t.enable.Out(gpio.Low); err != nil {
		uhf.Logger().Warn().Err(err).Str("pin", t.enablePin).Msg("failed to lower enable pin")
	}
	t.enable = nil
}

// SendCommand sends a command and waits for the matching response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return t.SendCommandContext(context.Background(), cmd, args)
}

// SendCommandContext sends a command and waits for the matching response,
// the transport timeout or ctx, whichever ends first. Frames answering
// other commands are discarded.
func (t *Transport) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, uhf.ErrNotConnected
	}
	packet, err := frame.Build(t.address, cmd, args)
	if err != nil {
		return nil, uhf.NewDataTooLargeError("SendCommand", t.portName)
	}

	_ = t.port.ResetInputBuffer()
	t.pending = nil
	if _, err := t.port.Write(packet); err != nil {
		return nil, t.linkError("write", uhf.ErrTransportWrite, err)
	}
	if err := t.port.SetReadTimeout(readSlice); err != nil {
		return nil, t.linkError("read", uhf.ErrTransportRead, err)
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := make([]byte, readBufferSize)
	resp, err := transport.PollUntil(ctx, deadline, 0, "SendCommand", func() ([]byte, bool, error) {
		n, err := t.port.Read(buf)
		if err != nil {
			return nil, false, t.linkError("read", uhf.ErrTransportRead, err)
		}
		if n == 0 {
			return nil, true, nil
		}
		frames, rest := frame.Parse(append(t.pending, buf[:n]...))
		t.pending = rest
		for _, f := range frames {
			if f.Command != cmd {
				uhf.Logger().Debug().Msgf("discarding stale frame for 0x%02X", f.Command)
				continue
			}
			return append([]byte{f.Status}, f.Data...), false, nil
		}
		return nil, true, nil
	})
	if err != nil {
		var te *uhf.TransportError
		if errors.As(err, &te) && te.Port == "" {
			te.Port = t.portName
		}
		return nil, err
	}
	return resp, nil
}

// linkError wraps a port failure. Read and write errors on a serial port
// mean the device went away, so the disconnect handler is told.
func (t *Transport) linkError(op string, kind, cause error) error {
	t.handlersMu.Lock()
	lost := t.onLost
	t.handlersMu.Unlock()
	if lost != nil {
		go lost()
	}
	return uhf.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", kind, cause), uhf.ErrorTypePermanent)
}

// OnDisconnect registers fn to run when the port fails
func (t *Transport) OnDisconnect(fn func()) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.onLost = fn
}

// SetTimeout sets the response timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Timeout returns the response timeout
func (t *Transport) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// Close closes the port and powers the module down
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.powerDown()
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true while the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// IsPowerOn reports whether the module is powered: the enable pin is high,
// or no pin is configured and the port is open
func (t *Transport) IsPowerOn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return false
	}
	return t.enablePin == "" || t.enable != nil
}

// Type returns the transport type
func (*Transport) Type() uhf.TransportType {
	return uhf.TransportUART
}

// Ensure Transport implements the context-aware transport
var _ uhf.TransportContext = (*Transport)(nil)

var _ uhf.PoweredTransport = (*Transport)(nil)
