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

// Package batch accumulates items and releases them on a time interval.
package batch

import "time"

// Batch collects items between flushes. It is not safe for concurrent use;
// the owning goroutine drives Add, Due and Take.
type Batch[T any] struct {
	last     time.Time
	items    []T
	interval time.Duration
}

// New returns an empty batch whose first interval starts at now
func New[T any](interval time.Duration, now time.Time) *Batch[T] {
	return &Batch[T]{interval: interval, last: now}
}

// Add appends an item, keeping arrival order
func (b *Batch[T]) Add(item T) {
	b.items = append(b.items, item)
}

// Len returns the number of pending items
func (b *Batch[T]) Len() int {
	return len(b.items)
}

// Due reports whether at least one interval has passed since the last flush
func (b *Batch[T]) Due(now time.Time) bool {
	return now.Sub(b.last) >= b.interval
}

// Take returns the pending items, empties the batch and starts a new
// interval at now. The returned slice is owned by the caller.
func (b *Batch[T]) Take(now time.Time) []T {
	items := b.items
	b.items = nil
	b.last = now
	return items
}
