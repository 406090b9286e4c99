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
	"encoding/hex"
	"fmt"
	"strings"
)

// Bank selects an EPC Gen2 memory bank
type Bank byte

const (
	BankReserved Bank = 0
	BankEPC      Bank = 1
	BankTID      Bank = 2
	BankUser     Bank = 3
)

// DefaultAccessPassword is the factory access password of Gen2 tags
const DefaultAccessPassword = "00000000"

var bankNames = map[Bank]string{
	BankReserved: "RESERVED",
	BankEPC:      "EPC",
	BankTID:      "TID",
	BankUser:     "USER",
}

func (b Bank) String() string {
	if name, ok := bankNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Bank(%d)", byte(b))
}

// ParseBank parses a bank name such as "EPC" or "user"
func ParseBank(s string) (Bank, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for bank, n := range bankNames {
		if n == name {
			return bank, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown memory bank %q", ErrInvalidParameter, s)
}

// MarshalText implements encoding.TextMarshaler
func (b Bank) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *Bank) UnmarshalText(text []byte) error {
	parsed, err := ParseBank(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Filter restricts which tags respond to an operation. Pointer and Length
// are in bits, Data is hex.
type Filter struct {
	Data    string `json:"data"`
	Pointer int    `json:"pointer"`
	Length  int    `json:"length"`
	Bank    Bank   `json:"bank"`
}

// Validate checks the filter fields against each other
func (f *Filter) Validate() error {
	if f.Pointer < 0 || f.Length < 0 || f.Length > 255 {
		return fmt.Errorf("%w: filter pointer %d length %d", ErrInvalidParameter, f.Pointer, f.Length)
	}
	if f.Bank > BankUser {
		return fmt.Errorf("%w: filter bank %d", ErrInvalidParameter, f.Bank)
	}
	data, err := hex.DecodeString(f.Data)
	if err != nil {
		return fmt.Errorf("%w: filter data is not hex: %v", ErrInvalidParameter, err)
	}
	if len(data)*8 < f.Length {
		return fmt.Errorf("%w: filter data has %d bits, length is %d", ErrInvalidParameter, len(data)*8, f.Length)
	}
	return nil
}

// IsEmpty reports whether the filter matches every tag
func (f *Filter) IsEmpty() bool {
	return f == nil || f.Length == 0
}

// ClearFilters returns the empty EPC, TID and USER filters that reset a reader
// to match every tag.
func ClearFilters() []Filter {
	return []Filter{
		{Bank: BankEPC},
		{Bank: BankTID},
		{Bank: BankUser},
	}
}

// EPCFilter returns a filter matching exactly the given hex EPC. The EPC
// bank starts with CRC and PC words, so the match begins at bit 32.
func EPCFilter(epc string) *Filter {
	return &Filter{
		Bank:    BankEPC,
		Pointer: 32,
		Length:  len(epc) * 4,
		Data:    epc,
	}
}

// TagRecord is one tag read pulled from the reader's buffer
type TagRecord struct {
	TID  string `json:"tid"`
	EPC  string `json:"epc"`
	RSSI string `json:"rssi"`
}

// ConnectionStatus is the link state reported to the event sink
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Peer identifies the connected reader
type Peer struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// FrequencyMode is the vendor region/frequency table index
type FrequencyMode int

// Frequency modes understood by common UHF modules
const (
	FrequencyChina1 FrequencyMode = 0x01 // 840-845 MHz
	FrequencyChina2 FrequencyMode = 0x02 // 920-925 MHz
	FrequencyETSI   FrequencyMode = 0x04 // 865-868 MHz
	FrequencyFCC    FrequencyMode = 0x08 // 902-928 MHz
	FrequencyKorea  FrequencyMode = 0x16
	FrequencyJapan  FrequencyMode = 0x32
)

// Power limits in dBm
const (
	MinPower = 1
	MaxPower = 30
)

// ValidatePower checks a transmit power level
func ValidatePower(level int) error {
	if level < MinPower || level > MaxPower {
		return fmt.Errorf("%w: power %d outside %d..%d", ErrInvalidParameter, level, MinPower, MaxPower)
	}
	return nil
}

// MemoryOp describes a read or write of tag memory. Pointer and Count are in
// 16-bit words, Password and Data are hex.
type MemoryOp struct {
	Filter    *Filter `json:"filter,omitempty"`
	Password  string  `json:"password,omitempty"`
	Data      string  `json:"data,omitempty"`
	Power     int     `json:"power"`
	Pointer   int     `json:"pointer"`
	Count     int     `json:"count"`
	Bank      Bank    `json:"bank"`
	PlaySound bool    `json:"playSound"`
}

// LockOp describes a lock of tag memory. Code is the 3-byte hex lock payload.
type LockOp struct {
	Filter    *Filter `json:"filter,omitempty"`
	Password  string  `json:"password,omitempty"`
	Code      string  `json:"code"`
	Power     int     `json:"power"`
	PlaySound bool    `json:"playSound"`
}

func passwordOrDefault(pwd string) string {
	if pwd == "" {
		return DefaultAccessPassword
	}
	return pwd
}
