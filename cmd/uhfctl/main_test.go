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


package main

import (
	"bytes"
	"os"
	"testing"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/detection"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestIsBluetoothAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		want    bool
	}{
		{"C4:DE:E2:10:20:30", true},
		{"c4-de-e2-10-20-30", true},
		{"6BA7B810-9DAD-11D1-80B4-00C04FD430C8", true},
		{"/dev/ttyUSB0", false},
		{"COM3", false},
		{"02:00:5e:10:00:00:00:01", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isBluetoothAddress(tt.address))
		})
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, m := range []detection.Mode{detection.Passive, detection.Safe, detection.Full} {
		got, err := parseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := parseMode("aggressive")
	require.ErrorIs(t, err, errUnknownMode)
}

func TestOutput_Proximity(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	out := NewOutput(&buf, false)
	out.Proximity(50)
	assert.Equal(t, "\r[###############...............]  50", buf.String())

	buf.Reset()
	out.Proximity(250)
	assert.Contains(t, buf.String(), "[##############################]")
}

func TestOutput_Verbose(t *testing.T) {
	t.Parallel()

	var quiet, loud bytes.Buffer
	NewOutput(&quiet, false).Verbose("hidden %d", 1)
	NewOutput(&loud, true).Verbose("shown %d", 2)
	assert.Empty(t, quiet.String())
	assert.Equal(t, "shown 2\n", loud.String())
}

func TestConsoleSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(NewOutput(&buf, false))
	sink.TagBatch(uhf.TagBatch{Tags: []uhf.TagRecord{
		{EPC: "AAAA", RSSI: "-50"},
		{EPC: "BBBB", RSSI: "-61"},
	}})
	sink.TagBatch(uhf.TagBatch{Tags: []uhf.TagRecord{{EPC: "AAAA", RSSI: "-48"}}})

	assert.Equal(t, 2, sink.Unique())
	assert.Contains(t, buf.String(), "AAAA  rssi -48 dBm")

	buf.Reset()
	sink.DevicesDiscovered([]uhf.DiscoveredDevice{{Address: "C4:DE:E2:10:20:30", RSSI: -70}})
	assert.Contains(t, buf.String(), "(unnamed)")
}
