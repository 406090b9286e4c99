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
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by reads and writes on a closed VirtualPort
var ErrPortClosed = errors.New("virtual port closed")

// VirtualPort is an in-memory serial port wired to a VirtualReader. Reads
// follow serial port semantics: they return 0, nil when the read timeout
// expires with nothing buffered.
type VirtualPort struct {
	reader      *VirtualReader
	notify      chan struct{}
	in          []byte
	out         []byte
	readTimeout time.Duration
	delay       time.Duration
	chunk       int
	mu          sync.Mutex
	closed      bool
}

// NewVirtualPort connects a port to reader
func NewVirtualPort(reader *VirtualReader) *VirtualPort {
	return &VirtualPort{
		reader:      reader,
		notify:      make(chan struct{}),
		readTimeout: 100 * time.Millisecond,
	}
}

// SetChunkSize limits how many bytes each Read returns, to exercise
// frame reassembly. Zero means unlimited.
func (p *VirtualPort) SetChunkSize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunk = n
}

// SetResponseDelay delays every answer
func (p *VirtualPort) SetResponseDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Inject appends raw bytes to the receive side, e.g. line noise
func (p *VirtualPort) Inject(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushLocked(b)
}

// Write implements the serial port. Complete packets are answered by the
// reader; partial ones wait for more bytes.
func (p *VirtualPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	p.in = append(p.in, b...)
	var packets [][]byte
	for len(p.in) > 0 && len(p.in) >= int(p.in[0])+1 {
		n := int(p.in[0]) + 1
		packets = append(packets, append([]byte(nil), p.in[:n]...))
		p.in = p.in[n:]
	}
	delay := p.delay
	p.mu.Unlock()

	for _, packet := range packets {
		resp := p.reader.HandlePacket(packet)
		if resp == nil {
			continue
		}
		if delay > 0 {
			time.AfterFunc(delay, func() { p.Inject(resp) })
			continue
		}
		p.Inject(resp)
	}
	return len(b), nil
}

// Read implements the serial port
func (p *VirtualPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	deadline := time.Now().Add(p.readTimeout)
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, ErrPortClosed
		}
		if len(p.out) > 0 {
			limit := len(b)
			if p.chunk > 0 && p.chunk < limit {
				limit = p.chunk
			}
			n := copy(b[:limit], p.out)
			p.out = p.out[n:]
			p.mu.Unlock()
			return n, nil
		}
		notify := p.notify
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-notify:
			timer.Stop()
		case <-timer.C:
			return 0, nil
		}
	}
}

// SetReadTimeout implements the serial port
func (p *VirtualPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

// ResetInputBuffer drops unread bytes
func (p *VirtualPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = nil
	return nil
}

// Close implements the serial port
func (p *VirtualPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.notify)
	}
	return nil
}

func (p *VirtualPort) pushLocked(b []byte) {
	if p.closed {
		return
	}
	p.out = append(p.out, b...)
	close(p.notify)
	p.notify = make(chan struct{})
}
