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

// Package testing provides a simulated UHF reader that speaks the serial
// frame protocol, for transport and end-to-end tests.
package testing

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Memory banks, numbered as on the wire
const (
	BankReserved = 0
	BankEPC      = 1
	BankTID      = 2
	BankUser     = 3
)

const userWords = 16

// VirtualTag is a simulated EPC Gen2 tag
type VirtualTag struct {
	Memory  [4][]byte
	RSSI    int16 // tenths of a dBm
	Present bool
	Locked  bool
}

// NewVirtualTag creates a present, unlocked tag with zeroed passwords and
// user memory. epc and tid are hex strings; epc must be whole words.
func NewVirtualTag(epc, tid string, rssi int16) *VirtualTag {
	epcBytes := mustHex(epc)
	tag := &VirtualTag{RSSI: rssi, Present: true}
	tag.Memory[BankReserved] = make([]byte, 8)
	tag.Memory[BankEPC] = make([]byte, 4, 4+len(epcBytes))
	binary.BigEndian.PutUint16(tag.Memory[BankEPC][2:], uint16(len(epcBytes)/2)<<11)
	tag.Memory[BankEPC] = append(tag.Memory[BankEPC], epcBytes...)
	tag.Memory[BankTID] = mustHex(tid)
	tag.Memory[BankUser] = make([]byte, userWords*2)
	return tag
}

// EPC returns the EPC as upper-case hex, sized by the PC word
func (v *VirtualTag) EPC() string {
	mem := v.Memory[BankEPC]
	if len(mem) < 4 {
		return ""
	}
	words := int(binary.BigEndian.Uint16(mem[2:]) >> 11)
	end := min(4+words*2, len(mem))
	return strings.ToUpper(hex.EncodeToString(mem[4:end]))
}

// TID returns the TID bank as upper-case hex
func (v *VirtualTag) TID() string {
	return strings.ToUpper(hex.EncodeToString(v.Memory[BankTID]))
}

// AccessPassword returns the access password bytes
func (v *VirtualTag) AccessPassword() []byte {
	return append([]byte(nil), v.Memory[BankReserved][4:8]...)
}

// Strength maps RSSI to the single-byte scale of plain inventory rounds,
// -100 dBm and below reading 0 and 0 dBm reading 255.
func (v *VirtualTag) Strength() byte {
	scaled := (int(v.RSSI) + 1000) * 255 / 1000
	return byte(max(0, min(255, scaled)))
}

// ReadWords reads count words from bank starting at word pointer
func (v *VirtualTag) ReadWords(bank byte, pointer, count int) ([]byte, error) {
	mem, err := v.bank(bank)
	if err != nil {
		return nil, err
	}
	start, end := pointer*2, (pointer+count)*2
	if end > len(mem) {
		return nil, fmt.Errorf("words %d..%d outside bank %d", pointer, pointer+count, bank)
	}
	return append([]byte(nil), mem[start:end]...), nil
}

// WriteWords writes data into bank at word pointer, growing the EPC bank
// when a longer EPC is written.
func (v *VirtualTag) WriteWords(bank byte, pointer int, data []byte) error {
	mem, err := v.bank(bank)
	if err != nil {
		return err
	}
	end := pointer*2 + len(data)
	if end > len(mem) {
		if bank != BankEPC {
			return fmt.Errorf("write past end of bank %d", bank)
		}
		grown := make([]byte, end)
		copy(grown, mem)
		mem = grown
	}
	copy(mem[pointer*2:], data)
	v.Memory[bank] = mem
	return nil
}

// Matches reports whether lengthBits bits of data equal the bank contents
// starting at bit pointer.
func (v *VirtualTag) Matches(bank byte, pointer, lengthBits int, data []byte) bool {
	if lengthBits == 0 {
		return true
	}
	mem, err := v.bank(bank)
	if err != nil {
		return false
	}
	for i := range lengthBits {
		pos := pointer + i
		if pos/8 >= len(mem) || i/8 >= len(data) {
			return false
		}
		memBit := mem[pos/8] >> (7 - pos%8) & 1
		dataBit := data[i/8] >> (7 - i%8) & 1
		if memBit != dataBit {
			return false
		}
	}
	return true
}

func (v *VirtualTag) bank(bank byte) ([]byte, error) {
	if int(bank) >= len(v.Memory) {
		return nil, fmt.Errorf("no bank %d", bank)
	}
	return v.Memory[bank], nil
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("virtual tag: %q is not hex", s))
	}
	return b
}
