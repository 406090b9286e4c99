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

const maxInventoryRSSI = 255

type locateRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartLocation repeatedly inventories the tag matching epc at bank/pointer
// (pointer in bits) and reports its proximity to fn. Rounds where the tag
// does not answer report 0.
func (d *Device) StartLocation(ctx context.Context, epc string, bank Bank, pointer int, fn LocateFunc) error {
	if fn == nil {
		return opError("startLocation", fmt.Errorf("%w: nil callback", ErrInvalidParameter))
	}
	raw, err := decodeHex("epc", epc)
	if err != nil || len(raw) == 0 {
		return opError("startLocation", fmt.Errorf("%w: epc %q", ErrInvalidParameter, epc))
	}
	epc = encodeHex(raw)

	d.stateMu.Lock()
	busy := d.locate != nil
	d.stateMu.Unlock()
	if busy {
		return opError("startLocation", ErrBusy)
	}

	filter := Filter{Bank: bank, Pointer: pointer, Length: len(epc) * 4, Data: epc}
	if err = d.SetFilter(ctx, filter); err != nil {
		return opError("startLocation", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &locateRun{cancel: cancel, done: make(chan struct{})}

	d.stateMu.Lock()
	if d.locate != nil {
		d.stateMu.Unlock()
		cancel()
		return opError("startLocation", ErrBusy)
	}
	d.locate = run
	d.stateMu.Unlock()

	go d.locateLoop(runCtx, run, epc, fn)
	return nil
}

func (d *Device) locateLoop(ctx context.Context, run *locateRun, epc string, fn LocateFunc) {
	defer close(run.done)

	interval := d.config.LocateInterval
	if interval <= 0 {
		interval = DefaultDeviceConfig().LocateInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		value, err := d.locateRound(ctx, epc)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			Logger().Debug().Err(err).Msg("locate round failed")
			continue
		}
		fn(value)
	}
}

// locateRound runs one inventory round and maps the tag's RSSI to 0-100
func (d *Device) locateRound(ctx context.Context, epc string) (int, error) {
	status, data, err := d.exchange(ctx, cmdInventory, nil)
	if err != nil {
		return 0, err
	}
	switch status {
	case statusSuccess:
	case statusNoTag:
		return 0, nil
	default:
		return 0, &StatusError{Command: cmdInventory, Status: status}
	}
	hits, err := decodeInventory(data)
	if err != nil {
		return 0, err
	}
	for _, hit := range hits {
		if hit.EPC == epc {
			return min(hit.RSSI, maxInventoryRSSI) * 100 / maxInventoryRSSI, nil
		}
	}
	return 0, nil
}

// StopLocation stops a running locate and waits for its loop to exit
func (d *Device) StopLocation(ctx context.Context) error {
	d.stateMu.Lock()
	run := d.locate
	d.locate = nil
	d.stateMu.Unlock()

	if run == nil {
		return nil
	}
	run.cancel()
	select {
	case <-run.done:
	case <-ctx.Done():
		return opError("stopLocation", ctx.Err())
	}
	return d.SetFilter(ctx, Filter{Bank: BankEPC})
}
