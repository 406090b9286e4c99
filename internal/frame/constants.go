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

// Package frame provides frame encoding and protocol constants for the
// length-prefixed UHF reader protocol.
package frame

// Reader addresses
const (
	DefaultAddress   = 0x00 // Address of a single attached reader
	BroadcastAddress = 0xFF // Any reader answers
)

// Response status bytes
const (
	StatusSuccess  = 0x00 // Command executed
	StatusNoTag    = 0x01 // No tag answered or the tag buffer is empty
	StatusTagError = 0xFA // Tag present but the operation failed
	StatusNoTagFB  = 0xFB // No tag in field, reported by some firmware
	StatusAntenna  = 0xF8 // Antenna check failed
	StatusParam    = 0xFD // Parameter out of range
	StatusCmdError = 0xFE // Unknown or malformed command
	StatusCRCError = 0xFF // Reader rejected the frame checksum
)

// Frame size limits
const (
	MinCommandLength  = 5   // Len + Adr + Cmd + CRC
	MinResponseLength = 6   // Len + Adr + Cmd + Status + CRC
	MaxDataLength     = 250 // Len is one byte and counts itself out
)
