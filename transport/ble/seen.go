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


package ble

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"tinygo.org/x/bluetooth"
)

const seenCacheSize = 256

// seenDevice is what scanning learned about one peer. Names only arrive
// in scan responses, so later advertisements reuse the cached one.
type seenDevice struct {
	address *bluetooth.Address
	name    string
}

// seenCache remembers recently advertised peers, bounded so a long scan
// in a busy room cannot grow without limit.
type seenCache struct {
	entries *lru.Cache
	mu      sync.Mutex
}

var seen = newSeenCache(seenCacheSize)

func newSeenCache(size int) *seenCache {
	return &seenCache{entries: lru.New(size)}
}

func (c *seenCache) entry(address string) *seenDevice {
	if v, ok := c.entries.Get(address); ok {
		return v.(*seenDevice)
	}
	e := &seenDevice{}
	c.entries.Add(address, e)
	return e
}

// name records advertised when set and returns the best known name
func (c *seenCache) name(address, advertised string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(address)
	if advertised != "" {
		e.name = advertised
	}
	return e.name
}

func (c *seenCache) rememberAddress(address string, addr bluetooth.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := addr
	c.entry(address).address = &a
}

func (c *seenCache) lookup(address string) (seenDevice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Get(address)
	if !ok {
		return seenDevice{}, false
	}
	return *v.(*seenDevice), true
}

func (c *seenCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
