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

package inventory

import "sync"

// TagSet is the set of EPCs seen so far. The poll loop inserts while the
// control side may Clear, so access is serialized.
type TagSet struct {
	seen map[string]struct{}
	mu   sync.Mutex
}

// NewTagSet returns an empty set
func NewTagSet() *TagSet {
	return &TagSet{seen: make(map[string]struct{})}
}

// Contains reports whether epc has been seen
func (s *TagSet) Contains(epc string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[epc]
	return ok
}

// Insert adds epc and reports whether it was new
func (s *TagSet) Insert(epc string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[epc]; ok {
		return false
	}
	s.seen[epc] = struct{}{}
	return true
}

// Clear forgets every EPC
func (s *TagSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
}

// Len returns the number of distinct EPCs
func (s *TagSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Snapshot returns the EPCs in no particular order
func (s *TagSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.seen))
	for epc := range s.seen {
		out = append(out, epc)
	}
	return out
}
