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

package frame

import (
	"errors"
	"fmt"
)

var (
	ErrTooLarge    = errors.New("frame data too large")
	ErrShortFrame  = errors.New("frame too short")
	ErrBadChecksum = errors.New("frame checksum mismatch")
)

// Frame is one decoded response frame
type Frame struct {
	Data    []byte
	Length  byte
	Address byte
	Command byte
	Status  byte
}

// Build encodes a command packet: Len Adr Cmd Data CRC_L CRC_H where Len
// counts every byte after itself.
func Build(address, cmd byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	packet := make([]byte, 0, len(data)+MinCommandLength)
	packet = append(packet, byte(len(data)+4), address, cmd)
	packet = append(packet, data...)
	return appendCRC(packet), nil
}

// BuildResponse encodes a response packet. Readers send these; the host side
// only needs it for simulation and tests.
func BuildResponse(address, cmd, status byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataLength-1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	packet := make([]byte, 0, len(data)+MinResponseLength)
	packet = append(packet, byte(len(data)+5), address, cmd, status)
	packet = append(packet, data...)
	return appendCRC(packet), nil
}

// Verify checks the length prefix and CRC of a complete packet
func Verify(packet []byte) error {
	if len(packet) < MinCommandLength {
		return ErrShortFrame
	}
	if int(packet[0])+1 != len(packet) {
		return fmt.Errorf("%w: length byte %d, got %d bytes", ErrShortFrame, packet[0], len(packet))
	}
	n := len(packet)
	crc := CRC16(packet[:n-2])
	if byte(crc) != packet[n-2] || byte(crc>>8) != packet[n-1] {
		return ErrBadChecksum
	}
	return nil
}

// Parse decodes as many complete response frames as possible from stream.
// Garbage is skipped one byte at a time; the incomplete tail is returned
// so the caller can prepend it to the next read.
func Parse(stream []byte) (frames []Frame, remaining []byte) {
	buf := stream
	for len(buf) >= MinResponseLength {
		total := int(buf[0]) + 1
		if total < MinResponseLength {
			buf = buf[1:]
			continue
		}
		if total > len(buf) {
			// A corrupt length byte would stall here forever; skip to
			// a complete frame further on when there is one.
			off := resync(buf)
			if off == 0 {
				break
			}
			buf = buf[off:]
			continue
		}
		raw := buf[:total]
		if Verify(raw) != nil {
			buf = buf[1:]
			continue
		}
		data := make([]byte, total-MinResponseLength)
		copy(data, raw[4:total-2])
		frames = append(frames, Frame{
			Length:  raw[0],
			Address: raw[1],
			Command: raw[2],
			Status:  raw[3],
			Data:    data,
		})
		buf = buf[total:]
	}
	if len(buf) > 0 {
		remaining = make([]byte, len(buf))
		copy(remaining, buf)
	}
	return frames, remaining
}

func resync(buf []byte) int {
	for i := 1; i < len(buf); i++ {
		total := int(buf[i]) + 1
		if total >= MinResponseLength && i+total <= len(buf) && Verify(buf[i:i+total]) == nil {
			return i
		}
	}
	return 0
}

// ParseCommand decodes one complete command packet. It is the reader-side
// counterpart of Build.
func ParseCommand(packet []byte) (address, cmd byte, data []byte, err error) {
	if err := Verify(packet); err != nil {
		return 0, 0, nil, err
	}
	data = make([]byte, len(packet)-MinCommandLength)
	copy(data, packet[3:len(packet)-2])
	return packet[1], packet[2], data, nil
}

// CRC16 computes CRC-16/MCRF4XX (poly 0x8408 reflected, init 0xFFFF)
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func appendCRC(packet []byte) []byte {
	crc := CRC16(packet)
	return append(packet, byte(crc), byte(crc>>8))
}
