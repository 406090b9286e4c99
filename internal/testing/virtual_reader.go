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

package testing

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/ZaparooProject/go-uhf/internal/frame"
)

// Command codes understood by the virtual reader
const (
	CmdInventory     = 0x01
	CmdReadData      = 0x02
	CmdWriteData     = 0x03
	CmdLockMem       = 0x06
	CmdReaderInfo    = 0x21
	CmdSetRegion     = 0x22
	CmdSetPower      = 0x2F
	CmdBeep          = 0x33
	CmdBeepEnable    = 0x34
	CmdStartBuffered = 0x50
	CmdStopBuffered  = 0x51
	CmdFetchBuffered = 0x52
	CmdBatteryLevel  = 0x53
	CmdTemperature   = 0x54
	CmdGetRegion     = 0x55
	CmdWorkingStatus = 0x56
	CmdFreeResources = 0x5F
	CmdSelectFilter  = 0x9A
)

type selectFilter struct {
	data    []byte
	pointer int
	length  int
	bank    byte
}

// VirtualReader simulates a UHF reader module. Buffered inventory works in
// rounds: each round queues every present tag matching the select filter,
// and an empty fetch separates consecutive rounds.
type VirtualReader struct {
	failures    map[byte][]byte
	Model       string
	tags        []*VirtualTag
	buffer      []*VirtualTag
	commands    []byte
	filter      selectFilter
	mu          sync.Mutex
	Temperature int16
	Power       byte
	Region      byte
	Battery     byte
	Address     byte
	running     bool
	drained     bool
	BeepEnabled bool
}

// NewVirtualReader creates an idle reader with no tags in its field
func NewVirtualReader() *VirtualReader {
	return &VirtualReader{
		failures:    make(map[byte][]byte),
		Model:       "VR-2000",
		Region:      0x04,
		Battery:     100,
		Temperature: 25,
		Power:       30,
		drained:     true,
	}
}

// AddTag places tags in the reader's field
func (r *VirtualReader) AddTag(tags ...*VirtualTag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tags...)
}

// Tags returns the tags in the field
func (r *VirtualReader) Tags() []*VirtualTag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*VirtualTag(nil), r.tags...)
}

// FailNext makes the next cmd answer with status
func (r *VirtualReader) FailNext(cmd, status byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[cmd] = append(r.failures[cmd], status)
}

// Commands returns every command code handled, in order
func (r *VirtualReader) Commands() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.commands...)
}

// Running reports whether buffered inventory is active
func (r *VirtualReader) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// HandlePacket answers one command packet. A packet that fails its
// checksum gets no answer, like the real module.
func (r *VirtualReader) HandlePacket(packet []byte) []byte {
	addr, cmd, data, err := frame.ParseCommand(packet)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	if addr != r.Address && addr != frame.BroadcastAddress {
		return nil
	}

	status, payload := r.dispatch(cmd, data)
	if queued := r.failures[cmd]; len(queued) > 0 {
		status, payload = queued[0], nil
		r.failures[cmd] = queued[1:]
	}
	resp, err := frame.BuildResponse(r.Address, cmd, status, payload)
	if err != nil {
		return nil
	}
	return resp
}

func (r *VirtualReader) dispatch(cmd byte, data []byte) (status byte, payload []byte) {
	switch cmd {
	case CmdReaderInfo:
		return frame.StatusSuccess, append([]byte{0x02, 0x01, 0x0A}, r.Model...)
	case CmdSetPower:
		if len(data) != 1 || data[0] < 1 || data[0] > 30 {
			return frame.StatusParam, nil
		}
		r.Power = data[0]
	case CmdSetRegion:
		if len(data) != 1 {
			return frame.StatusParam, nil
		}
		r.Region = data[0]
	case CmdGetRegion:
		return frame.StatusSuccess, []byte{r.Region}
	case CmdSelectFilter:
		f, rest, ok := parseFilter(data)
		if !ok || len(rest) != 0 {
			return frame.StatusParam, nil
		}
		r.filter = f
	case CmdStartBuffered:
		r.running = true
		r.buffer = nil
		r.drained = true
	case CmdStopBuffered:
		r.running = false
		r.buffer = nil
	case CmdFetchBuffered:
		return r.fetch()
	case CmdInventory:
		return r.inventory()
	case CmdReadData, CmdWriteData, CmdLockMem:
		return r.access(cmd, data)
	case CmdBatteryLevel:
		return frame.StatusSuccess, []byte{r.Battery}
	case CmdTemperature:
		return frame.StatusSuccess, binary.BigEndian.AppendUint16(nil, uint16(r.Temperature))
	case CmdWorkingStatus:
		working := byte(0)
		if r.running {
			working = 1
		}
		return frame.StatusSuccess, []byte{working}
	case CmdBeepEnable:
		r.BeepEnabled = len(data) > 0 && data[0] != 0
	case CmdBeep, CmdFreeResources:
	default:
		return frame.StatusCmdError, nil
	}
	return frame.StatusSuccess, nil
}

func (r *VirtualReader) selected() []*VirtualTag {
	var out []*VirtualTag
	for _, tag := range r.tags {
		if tag.Present && tag.Matches(r.filter.bank, r.filter.pointer, r.filter.length, r.filter.data) {
			out = append(out, tag)
		}
	}
	return out
}

func (r *VirtualReader) fetch() (status byte, payload []byte) {
	if len(r.buffer) == 0 && r.running {
		if r.drained {
			r.buffer = r.selected()
			r.drained = len(r.buffer) == 0
		} else {
			r.drained = true
		}
	}
	if len(r.buffer) == 0 {
		return frame.StatusNoTag, nil
	}
	tag := r.buffer[0]
	r.buffer = r.buffer[1:]
	if len(r.buffer) == 0 {
		r.drained = false
	}

	epc := tag.Memory[BankEPC][4:]
	epc = epc[:min(len(epc), int(binary.BigEndian.Uint16(tag.Memory[BankEPC][2:])>>11)*2)]
	tid := tag.Memory[BankTID]
	payload = append(payload, byte(len(epc)))
	payload = append(payload, epc...)
	payload = append(payload, byte(len(tid)))
	payload = append(payload, tid...)
	payload = binary.BigEndian.AppendUint16(payload, uint16(tag.RSSI))
	return frame.StatusSuccess, payload
}

func (r *VirtualReader) inventory() (status byte, payload []byte) {
	tags := r.selected()
	if len(tags) == 0 {
		return frame.StatusNoTag, nil
	}
	payload = []byte{0x01, byte(len(tags))}
	for _, tag := range tags {
		epc := mustHex(tag.EPC())
		payload = append(payload, byte(len(epc)))
		payload = append(payload, epc...)
		payload = append(payload, tag.Strength())
	}
	return frame.StatusSuccess, payload
}

func (r *VirtualReader) access(cmd byte, data []byte) (status byte, payload []byte) {
	if len(data) < 4 {
		return frame.StatusParam, nil
	}
	password := data[:4]
	f, rest, ok := parseFilter(data[4:])
	if !ok {
		return frame.StatusParam, nil
	}

	var target *VirtualTag
	for _, tag := range r.tags {
		if tag.Present && tag.Matches(f.bank, f.pointer, f.length, f.data) {
			target = tag
			break
		}
	}
	if target == nil {
		return frame.StatusNoTagFB, nil
	}

	if cmd == CmdLockMem {
		if len(rest) != 3 {
			return frame.StatusParam, nil
		}
		if target.Locked && !bytes.Equal(password, target.AccessPassword()) {
			return frame.StatusTagError, nil
		}
		target.Locked = rest[0] != 0 || rest[1] != 0 || rest[2] != 0
		return frame.StatusSuccess, nil
	}

	if len(rest) < 4 {
		return frame.StatusParam, nil
	}
	bank, pointer, count := rest[0], int(binary.BigEndian.Uint16(rest[1:3])), int(rest[3])
	protected := bank == BankReserved || (cmd == CmdWriteData && bank == BankEPC)
	if target.Locked && protected && !bytes.Equal(password, target.AccessPassword()) {
		return frame.StatusTagError, nil
	}

	if cmd == CmdReadData {
		words, err := target.ReadWords(bank, pointer, count)
		if err != nil {
			return frame.StatusTagError, nil
		}
		return frame.StatusSuccess, words
	}
	if len(rest[4:]) != count*2 {
		return frame.StatusParam, nil
	}
	if err := target.WriteWords(bank, pointer, rest[4:]); err != nil {
		return frame.StatusTagError, nil
	}
	return frame.StatusSuccess, nil
}

func parseFilter(data []byte) (f selectFilter, rest []byte, ok bool) {
	if len(data) < 4 {
		return f, nil, false
	}
	f.bank = data[0]
	f.pointer = int(binary.BigEndian.Uint16(data[1:3]))
	f.length = int(data[3])
	n := (f.length + 7) / 8
	if len(data) < 4+n {
		return f, nil, false
	}
	f.data = append([]byte(nil), data[4:4+n]...)
	return f, data[4+n:], true
}
