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


package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/internal/transport"
	"tinygo.org/x/bluetooth"
)

const (
	connectTimeout = 10 * time.Second
	connectRetries = 2
	connectBackoff = 500 * time.Millisecond
	factoryTimeout = 30 * time.Second
)

// ErrServiceNotFound is returned when the peer has no Nordic UART service
var ErrServiceNotFound = errors.New("nordic uart service not found")

var (
	adapter     = bluetooth.DefaultAdapter
	enableOnce  sync.Once
	errEnable   error
	connectedMu sync.Mutex
	connected   = map[string]*Transport{}
)

// enableAdapter powers the host adapter once and routes disconnects to
// the transport that owns the peer.
func enableAdapter() error {
	enableOnce.Do(func() {
		if err := adapter.Enable(); err != nil {
			errEnable = fmt.Errorf("failed to enable bluetooth adapter: %w", err)
			return
		}
		adapter.SetConnectHandler(func(device bluetooth.Device, isConnected bool) {
			if isConnected {
				return
			}
			address := device.Address.String()
			connectedMu.Lock()
			t := connected[address]
			delete(connected, address)
			connectedMu.Unlock()
			if t != nil {
				uhf.Logger().Info().Str("address", address).Msg("bluetooth link lost")
				t.LinkLost()
			}
		})
	})
	return errEnable
}

func register(address string, t *Transport) {
	connectedMu.Lock()
	defer connectedMu.Unlock()
	connected[address] = t
}

func unregister(address string) {
	connectedMu.Lock()
	defer connectedMu.Unlock()
	delete(connected, address)
}

// nusLink writes to the RX characteristic of a connected peer
type nusLink struct {
	device bluetooth.Device
	rx     bluetooth.DeviceCharacteristic
}

func (l *nusLink) Write(p []byte) (int, error) {
	return l.rx.WriteWithoutResponse(p)
}

func (l *nusLink) Disconnect() error {
	return l.device.Disconnect()
}

func resolveAddress(address string) (bluetooth.Address, error) {
	if dev, ok := seen.lookup(address); ok && dev.address != nil {
		return *dev.address, nil
	}
	return parseAddress(address)
}

// Connect connects to the reader at address, subscribes to its TX
// characteristic and returns a ready transport. Addresses seen by a
// Discovery resolve without a new scan.
func Connect(ctx context.Context, address string, opts ...Option) (*Transport, error) {
	if err := enableAdapter(); err != nil {
		return nil, uhf.NewTransportError("connect", address, err, uhf.ErrorTypePermanent)
	}
	addr, err := resolveAddress(address)
	if err != nil {
		return nil, uhf.NewTransportError("connect", address, err, uhf.ErrorTypePermanent)
	}

	var lastErr error
	device, err := transport.WithRetry(ctx, transport.RetryConfig{
		Description: "connect",
		MaxRetries:  connectRetries,
		RetryDelay:  connectBackoff,
	}, func() (bluetooth.Device, bool, error) {
		d, err := adapter.Connect(addr, bluetooth.ConnectionParams{
			ConnectionTimeout: bluetooth.NewDuration(connectTimeout),
		})
		if err != nil {
			uhf.Logger().Debug().Err(err).Str("address", address).Msg("bluetooth connect attempt failed")
			lastErr = err
			return d, true, nil
		}
		return d, false, nil
	})
	if err != nil {
		if lastErr != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", err, lastErr)
		}
		return nil, err
	}

	link, tx, err := openUART(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, uhf.NewTransportError("connect", address, err, uhf.ErrorTypePermanent)
	}

	name, _ := seen.lookup(address)
	t := NewWithLink(link, address, name.name, opts...)
	if err := tx.EnableNotifications(t.Receive); err != nil {
		_ = device.Disconnect()
		return nil, uhf.NewTransportError("subscribe", address, err, uhf.ErrorTypePermanent)
	}
	register(address, t)
	uhf.Logger().Info().Str("address", address).Str("name", name.name).Msg("bluetooth reader connected")
	return t, nil
}

func openUART(device bluetooth.Device) (*nusLink, bluetooth.DeviceCharacteristic, error) {
	var tx bluetooth.DeviceCharacteristic
	services, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDNordicUART})
	if err != nil {
		return nil, tx, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, tx, ErrServiceNotFound
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetooth.CharacteristicUUIDUARTRX,
		bluetooth.CharacteristicUUIDUARTTX,
	})
	if err != nil {
		return nil, tx, fmt.Errorf("discover characteristics: %w", err)
	}

	link := &nusLink{device: device}
	var haveRX, haveTX bool
	for _, c := range chars {
		switch c.UUID() {
		case bluetooth.CharacteristicUUIDUARTRX:
			link.rx, haveRX = c, true
		case bluetooth.CharacteristicUUIDUARTTX:
			tx, haveTX = c, true
		}
	}
	if !haveRX || !haveTX {
		return nil, tx, ErrServiceNotFound
	}
	return link, tx, nil
}

// Factory returns a uhf.TransportFactory that connects over Bluetooth
func Factory(opts ...Option) uhf.TransportFactory {
	return func(address string) (uhf.Transport, error) {
		ctx, cancel := context.WithTimeout(context.Background(), factoryTimeout)
		defer cancel()
		t, err := Connect(ctx, address, opts...)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// adapterScanner scans with the host adapter
type adapterScanner struct {
	adapter *bluetooth.Adapter
}

// NewAdapterScanner returns a Scanner backed by the default adapter
func NewAdapterScanner() (Scanner, error) {
	if err := enableAdapter(); err != nil {
		return nil, err
	}
	return &adapterScanner{adapter: adapter}, nil
}

func (s *adapterScanner) Scan(fn func(Advertisement)) error {
	return s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		address := result.Address.String()
		seen.rememberAddress(address, result.Address)
		fn(Advertisement{
			Address: address,
			Name:    result.LocalName(),
			RSSI:    int(result.RSSI),
			UART:    result.HasServiceUUID(bluetooth.ServiceUUIDNordicUART),
		})
	})
}

func (s *adapterScanner) StopScan() error {
	return s.adapter.StopScan()
}
