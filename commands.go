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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Reader command codes
const (
	cmdInventory     = 0x01
	cmdReadData      = 0x02
	cmdWriteData     = 0x03
	cmdLockMem       = 0x06
	cmdReaderInfo    = 0x21
	cmdSetRegion     = 0x22
	cmdSetPower      = 0x2F
	cmdBeep          = 0x33
	cmdBeepEnable    = 0x34
	cmdStartBuffered = 0x50
	cmdStopBuffered  = 0x51
	cmdFetchBuffered = 0x52
	cmdBatteryLevel  = 0x53
	cmdTemperature   = 0x54
	cmdGetRegion     = 0x55
	cmdWorkingStatus = 0x56
	cmdSelectFilter  = 0x9A
	cmdFreeResources = 0x5F
	statusSuccess    = 0x00
	statusNoTag      = 0x01
	maxBeepUnits     = 0xFF
	rssiScale        = 10.0 // fetched RSSI is in tenths of a dBm
	passwordBytes    = 4
	lockCodeBytes    = 3
)

func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex: %v", ErrInvalidParameter, field, err)
	}
	return b, nil
}

func encodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

func encodePassword(pwd string) ([]byte, error) {
	b, err := decodeHex("password", passwordOrDefault(pwd))
	if err != nil {
		return nil, err
	}
	if len(b) != passwordBytes {
		return nil, fmt.Errorf("%w: password must be %d bytes", ErrInvalidParameter, passwordBytes)
	}
	return b, nil
}

// appendFilter appends Bank, Pointer(2), Length(bits), Data. A nil filter
// encodes as a zero-length mask that matches every tag.
func appendFilter(buf []byte, f *Filter) ([]byte, error) {
	if f.IsEmpty() {
		bank := BankEPC
		if f != nil {
			bank = f.Bank
		}
		return append(buf, byte(bank), 0, 0, 0), nil
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	data, _ := hex.DecodeString(f.Data)
	data = data[:(f.Length+7)/8]
	buf = append(buf, byte(f.Bank))
	buf = binary.BigEndian.AppendUint16(buf, uint16(f.Pointer))
	buf = append(buf, byte(f.Length))
	return append(buf, data...), nil
}

// encodeMemory builds the shared read/write payload:
// Password(4) Filter Bank Pointer(2) Count
func encodeMemory(pwd string, f *Filter, bank Bank, pointer, count int) ([]byte, error) {
	if bank > BankUser {
		return nil, fmt.Errorf("%w: bank %d", ErrInvalidParameter, bank)
	}
	if pointer < 0 || pointer > 0xFFFF || count < 1 || count > 0xFF {
		return nil, fmt.Errorf("%w: pointer %d count %d", ErrInvalidParameter, pointer, count)
	}
	buf, err := encodePassword(pwd)
	if err != nil {
		return nil, err
	}
	if buf, err = appendFilter(buf, f); err != nil {
		return nil, err
	}
	buf = append(buf, byte(bank))
	buf = binary.BigEndian.AppendUint16(buf, uint16(pointer))
	return append(buf, byte(count)), nil
}

// decodeFetchedTag parses a buffered tag record:
// EPCLen EPC TIDLen TID RSSI(int16, 0.1 dBm)
func decodeFetchedTag(data []byte) (TagRecord, error) {
	cursor := 0
	next := func() ([]byte, error) {
		if cursor >= len(data) {
			return nil, ErrFrameCorrupted
		}
		n := int(data[cursor])
		cursor++
		if cursor+n > len(data) {
			return nil, ErrFrameCorrupted
		}
		field := data[cursor : cursor+n]
		cursor += n
		return field, nil
	}

	epc, err := next()
	if err != nil {
		return TagRecord{}, fmt.Errorf("epc: %w", err)
	}
	tid, err := next()
	if err != nil {
		return TagRecord{}, fmt.Errorf("tid: %w", err)
	}
	if cursor+2 > len(data) {
		return TagRecord{}, fmt.Errorf("rssi: %w", ErrFrameCorrupted)
	}
	rssi := float64(int16(binary.BigEndian.Uint16(data[cursor:]))) / rssiScale

	return TagRecord{
		EPC:  encodeHex(epc),
		TID:  encodeHex(tid),
		RSSI: fmt.Sprintf("%.2f", rssi),
	}, nil
}

// inventoryHit is one tag from a single-round inventory
type inventoryHit struct {
	EPC  string
	RSSI int
}

// decodeInventory parses a single-round inventory response:
// Antenna TagNum [EPCLen EPC RSSI]...
func decodeInventory(data []byte) ([]inventoryHit, error) {
	if len(data) < 2 {
		return nil, nil
	}
	count := int(data[1])
	cursor := 2
	hits := make([]inventoryHit, 0, count)
	for i := range count {
		if cursor >= len(data) {
			return nil, fmt.Errorf("%w: inventory truncated at tag %d", ErrFrameCorrupted, i)
		}
		n := int(data[cursor])
		cursor++
		if n == 0 || cursor+n+1 > len(data) {
			return nil, fmt.Errorf("%w: bad epc length at tag %d", ErrFrameCorrupted, i)
		}
		hits = append(hits, inventoryHit{
			EPC:  encodeHex(data[cursor : cursor+n]),
			RSSI: int(data[cursor+n]),
		})
		cursor += n + 1
	}
	return hits, nil
}
