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


package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/detection"
	"github.com/ZaparooProject/go-uhf/transport/ble"
	"github.com/ZaparooProject/go-uhf/transport/uart"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// isBluetoothAddress reports whether address names a BLE peer: a MAC on
// Linux and Windows, a peripheral UUID on macOS.
func isBluetoothAddress(address string) bool {
	if hw, err := net.ParseMAC(address); err == nil && len(hw) == 6 {
		return true
	}
	_, err := uuid.Parse(address)
	return err == nil
}

// transportFactory opens UART or BLE transports depending on the address
func transportFactory(c *cli.Context) uhf.TransportFactory {
	bluetooth := ble.Factory(ble.WithTimeout(c.Duration("timeout")))
	return func(address string) (uhf.Transport, error) {
		if isBluetoothAddress(address) {
			return bluetooth(address)
		}
		opts := []uart.Option{uart.WithBaudRate(c.Int("baud"))}
		if pin := c.String("enable-pin"); pin != "" {
			opts = append(opts, uart.WithEnablePin(pin))
		}
		t, err := uart.New(address, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return t, nil
	}
}

// resolveAddress returns --device, or the best serial reader found
func resolveAddress(c *cli.Context, out *Output) (string, error) {
	if address := c.String("device"); address != "" {
		return address, nil
	}
	out.Info("auto-detecting readers...")
	opts := detection.DefaultOptions()
	devices, err := detection.DetectAll(c.Context, &opts)
	if err != nil {
		return "", fmt.Errorf("auto-detection failed: %w", err)
	}
	for _, d := range devices {
		out.Verbose("candidate %s (%s)", d.Path, d.Confidence)
	}
	return devices[0].Path, nil
}

// openSession connects to the reader selected on the command line
func openSession(c *cli.Context, sink uhf.EventSink) (*uhf.Session, *uhf.Device, error) {
	out := outputFor(c)
	address, err := resolveAddress(c, out)
	if err != nil {
		return nil, nil, err
	}

	device, err := uhf.New(nil,
		uhf.WithTransportFactory(transportFactory(c)),
		uhf.WithTimeout(c.Duration("timeout")),
	)
	if err != nil {
		return nil, nil, err
	}
	session := uhf.NewSession(device, sink)

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	peer, err := session.Connect(ctx, address)
	if err != nil {
		return nil, nil, err
	}
	out.OK("connected to %s at %s", peer.Name, peer.Address)
	return session, device, nil
}

// closeSession frees the reader and closes the link
func closeSession(session *uhf.Session, device *uhf.Device) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Free(ctx); err != nil && !errors.Is(err, uhf.ErrNotSupported) {
		uhf.Logger().Debug().Err(err).Msg("free reader")
	}
	_ = device.Close()
}

// filterFor builds an EPC filter from --epc
func filterFor(c *cli.Context) *uhf.Filter {
	if epc := c.String("epc"); epc != "" {
		return uhf.EPCFilter(epc)
	}
	return nil
}
