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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBank(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input   string
		want    Bank
		wantErr bool
	}{
		{input: "EPC", want: BankEPC},
		{input: "tid", want: BankTID},
		{input: " user ", want: BankUser},
		{input: "Reserved", want: BankReserved},
		{input: "KILL", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseBank(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBank_JSON(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(Filter{Bank: BankTID, Pointer: 0, Length: 16, Data: "E280"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bank":"TID","pointer":0,"length":16,"data":"E280"}`, string(raw))

	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{"bank":"user","length":8,"data":"FF"}`), &f))
	assert.Equal(t, BankUser, f.Bank)

	require.Error(t, json.Unmarshal([]byte(`{"bank":"nope"}`), &f))
	assert.Equal(t, "Bank(9)", Bank(9).String())
}

func TestFilter_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{name: "empty", filter: Filter{Bank: BankEPC}},
		{name: "epc filter", filter: *EPCFilter("E2001234")},
		{name: "partial byte", filter: Filter{Bank: BankTID, Length: 12, Data: "E280"}},
		{name: "data too short", filter: Filter{Bank: BankEPC, Length: 17, Data: "E200"}, wantErr: true},
		{name: "not hex", filter: Filter{Bank: BankEPC, Length: 8, Data: "GG"}, wantErr: true},
		{name: "bad bank", filter: Filter{Bank: Bank(4)}, wantErr: true},
		{name: "negative pointer", filter: Filter{Bank: BankEPC, Pointer: -1}, wantErr: true},
		{name: "length too large", filter: Filter{Bank: BankEPC, Length: 256}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.filter.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFilter_IsEmpty(t *testing.T) {
	t.Parallel()
	var nilFilter *Filter
	assert.True(t, nilFilter.IsEmpty())
	assert.True(t, (&Filter{Bank: BankTID, Data: "E2"}).IsEmpty())
	assert.False(t, EPCFilter("E2").IsEmpty())
}

func TestEPCFilter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, &Filter{Bank: BankEPC, Pointer: 32, Length: 96, Data: "E20000000000000000000001"},
		EPCFilter("E20000000000000000000001"))
}

func TestValidatePower(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidatePower(MinPower))
	require.NoError(t, ValidatePower(MaxPower))
	require.ErrorIs(t, ValidatePower(0), ErrInvalidParameter)
	require.ErrorIs(t, ValidatePower(31), ErrInvalidParameter)
}

func TestClearFilters(t *testing.T) {
	t.Parallel()
	filters := ClearFilters()
	require.Len(t, filters, 3)
	for _, f := range filters {
		assert.True(t, f.IsEmpty())
	}
	assert.Equal(t, []Bank{BankEPC, BankTID, BankUser}, []Bank{filters[0].Bank, filters[1].Bank, filters[2].Bank})
}
