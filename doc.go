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


/*
Package uhf drives UHF RFID readers (EPC Gen2 tags) that speak the common
length-prefixed serial frame protocol, over a UART or a Bluetooth LE UART
service.

A Device turns reader commands into methods. A Session owns one Device and
makes sure only one long-running activity (scanning, locating or a tag
access) uses the reader at a time. The inventory package runs buffered
inventory and locate loops on top of a Session and streams results to an
EventSink.

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-uhf"
	    "github.com/ZaparooProject/go-uhf/inventory"
	    "github.com/ZaparooProject/go-uhf/transport/uart"
	)

	transport, err := uart.New("/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}

	device, err := uhf.New(transport, uhf.WithTimeout(2*time.Second))
	if err != nil {
	    log.Fatal(err)
	}
	defer device.Close()

	sink := uhf.NewChannelSink(64)
	session := uhf.NewSession(device, sink)

	scanner, err := inventory.NewScanner(session)
	if err != nil {
	    log.Fatal(err)
	}
	if err := scanner.Start(ctx, inventory.DefaultScanParams(20)); err != nil {
	    log.Fatal(err)
	}
	for ev := range sink.Events() {
	    fmt.Println(ev.Name)
	}

Transport Selection:

  - UART: USB-to-serial adapters and on-board modules, optionally powered
    through a GPIO enable pin
  - BLE: handheld readers exposing the Nordic UART service

Devices created with WithTransportFactory open the transport themselves on
Connect, which is how Bluetooth readers are normally used.

Tag Access:

Session.Read, Session.Write and Session.Lock address tag memory by bank and
16-bit word. WriteEPCAndLock and ResetEPCAndUnlock chain those primitives
into the usual "protect a tag" and "return to factory state" flows, and a
Verifier reads writes back and retries on mismatch.

Error Handling:

All operations return errors that can be inspected:

	if errors.Is(err, uhf.ErrBusy) {
	    // another activity holds the reader
	}
	var statusErr *uhf.StatusError
	if errors.As(err, &statusErr) {
	    // the reader rejected the command
	}

Thread Safety:

Device serializes command exchanges, so its methods may be called from
several goroutines. EventSink implementations are called from background
goroutines and must not block.
*/
package uhf
