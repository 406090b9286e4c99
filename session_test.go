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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "idle", ModeIdle.String())
	assert.Equal(t, "inventory", ModeInventory.String())
	assert.Equal(t, "locate", ModeLocate.String())
	assert.Equal(t, "access", ModeAccess.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestSession_ClaimRelease(t *testing.T) {
	t.Parallel()
	s := NewSession(NewMockDriver(), nil)

	got, ok := s.Claim(ModeInventory)
	require.True(t, ok)
	assert.Equal(t, ModeInventory, got)

	held, ok := s.Claim(ModeLocate)
	assert.False(t, ok)
	assert.Equal(t, ModeInventory, held)

	s.Release(ModeLocate)
	assert.Equal(t, ModeInventory, s.Mode(), "release by a non-holder is ignored")

	s.Release(ModeInventory)
	assert.Equal(t, ModeIdle, s.Mode())
}

func TestSession_Connect(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	sink := &RecordingSink{}
	s := NewSession(driver, sink)

	peer, err := s.Connect(context.Background(), "AA:BB")
	require.NoError(t, err)
	assert.Equal(t, Peer{Name: "MockReader", Address: "AA:BB"}, peer)
	assert.Equal(t, []string{"Disconnect", "Connect"}, driver.Calls())
	assert.Equal(t, []StatusEvent{
		{Status: StatusConnecting, DeviceAddress: "AA:BB"},
		{Status: StatusConnected, DeviceName: "MockReader", DeviceAddress: "AA:BB"},
	}, sink.Statuses())
	assert.Equal(t, StatusConnected, s.Status().Status)

	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, StatusEvent{
		Status: StatusDisconnected, DeviceName: "MockReader", DeviceAddress: "AA:BB",
	}, s.Status())
}

func TestSession_ConnectFailure(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	driver.SetConnectError(ErrDeviceNotFound)
	sink := &RecordingSink{}
	s := NewSession(driver, sink)

	_, err := s.Connect(context.Background(), "AA:BB")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	statuses := sink.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, StatusConnecting, statuses[0].Status)
	assert.Equal(t, StatusDisconnected, statuses[1].Status)
}

func TestSession_ConnectWhileBusy(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	s := NewSession(driver, nil)
	_, ok := s.Claim(ModeInventory)
	require.True(t, ok)

	_, err := s.Connect(context.Background(), "AA:BB")
	require.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, driver.Calls())
}

func TestSession_LazyInit(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	s := NewSession(driver, nil)
	ctx := context.Background()

	require.NoError(t, s.SetPower(ctx, 20))
	require.NoError(t, s.SetPower(ctx, 25))
	assert.Equal(t, 1, driver.CallCount("Init"))
	assert.Equal(t, 25, driver.Power())

	driver.SetConnected(false)
	require.NoError(t, s.SetPower(ctx, 25))
	assert.Equal(t, 2, driver.CallCount("Init"), "re-initialized after link loss")
}

func TestSession_InitFailure(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	driver.SetInitError(ErrNotConnected)
	s := NewSession(driver, nil)

	err := s.SetPower(context.Background(), 20)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, driver.CallCount("SetPower"))
}

func TestSession_ApplyFilter(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	s := NewSession(driver, nil)
	ctx := context.Background()

	require.NoError(t, s.ApplyFilter(ctx, nil))
	assert.Equal(t, ClearFilters(), driver.Filters())

	filter := EPCFilter("E200")
	require.NoError(t, s.ApplyFilter(ctx, filter))
	assert.Equal(t, *filter, driver.Filters()[3])

	err := s.ApplyFilter(ctx, &Filter{Bank: BankEPC, Length: 64, Data: "E200"})
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Len(t, driver.Filters(), 4)
}

func TestSession_Access(t *testing.T) {
	t.Parallel()
	accessErr := errors.New("no tag in field")

	tests := []struct {
		setup        func(*MockDriver)
		wantErr      error
		name         string
		wantData     string
		wantFeedback []Feedback
		op           MemoryOp
		wantReads    int
	}{
		{
			name:         "read with sound",
			op:           MemoryOp{Bank: BankEPC, Pointer: 2, Count: 2, Power: 20, PlaySound: true},
			wantData:     "E2000000",
			wantFeedback: []Feedback{FeedbackSuccess},
			wantReads:    1,
		},
		{
			name:      "read silently",
			op:        MemoryOp{Bank: BankTID, Count: 6, Power: 20},
			wantData:  "E2000000",
			wantReads: 1,
		},
		{
			name:         "driver failure",
			setup:        func(d *MockDriver) { d.SetAccessError(accessErr) },
			op:           MemoryOp{Bank: BankUser, Count: 1, Power: 20, PlaySound: true},
			wantErr:      accessErr,
			wantFeedback: []Feedback{FeedbackError},
			wantReads:    1,
		},
		{
			name:      "empty result",
			setup:     func(d *MockDriver) { d.SetReadResult("") },
			op:        MemoryOp{Bank: BankUser, Count: 1, Power: 20},
			wantErr:   ErrEmptyResult,
			wantReads: 1,
		},
		{
			name:         "power rejected",
			setup:        func(d *MockDriver) { d.SetPowerError(ErrRejected) },
			op:           MemoryOp{Bank: BankUser, Count: 1, Power: 20, PlaySound: true},
			wantErr:      ErrRejected,
			wantFeedback: []Feedback{FeedbackError},
		},
		{
			name:    "power missing",
			op:      MemoryOp{Bank: BankUser, Count: 1},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "bad filter",
			op:      MemoryOp{Bank: BankUser, Count: 1, Power: 20, Filter: &Filter{Length: 8, Data: "zz"}},
			wantErr: ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			driver := NewMockDriver()
			if tt.setup != nil {
				tt.setup(driver)
			}
			sink := &RecordingSink{}
			s := NewSession(driver, sink)

			data, err := s.Read(context.Background(), tt.op)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantData, data)
			}
			assert.Equal(t, tt.wantFeedback, sink.FeedbackSignals())
			assert.Equal(t, tt.wantReads, driver.CallCount("ReadData"))
			assert.Equal(t, ModeIdle, s.Mode(), "claim released")
		})
	}
}

func TestSession_AccessWhileBusy(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	s := NewSession(driver, nil)
	_, ok := s.Claim(ModeLocate)
	require.True(t, ok)

	err := s.Write(context.Background(), MemoryOp{Bank: BankUser, Count: 1, Data: "0000", Power: 20})
	require.ErrorIs(t, err, ErrBusy)
	assert.Contains(t, err.Error(), "locate")

	err = s.Lock(context.Background(), LockOp{Code: LockCodeUnlock, Power: 20})
	require.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, driver.CallCount("SetPower"))
}

func TestSession_WriteAndLock(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	sink := &RecordingSink{}
	s := NewSession(driver, sink)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, MemoryOp{Bank: BankUser, Count: 1, Data: "BEEF", Power: 20, PlaySound: true}))
	require.NoError(t, s.Lock(ctx, LockOp{Code: LockCodeProtect, Power: 20}))
	assert.Equal(t, []string{"Init", "SetPower", "WriteData", "SetPower", "LockMem"}, driver.Calls())
	assert.Equal(t, []Feedback{FeedbackSuccess}, sink.FeedbackSignals())
}

func TestSession_NotSupported(t *testing.T) {
	t.Parallel()
	s := NewSession(NewMockDriver(), nil)
	ctx := context.Background()

	_, err := s.BatteryLevel(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = s.Temperature(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = s.IsWorking(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = s.IsPowerOn(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	require.ErrorIs(t, s.Beep(ctx, 0), ErrNotSupported)
	require.ErrorIs(t, s.SetBeep(ctx, true), ErrNotSupported)
}

func TestSession_FrequencyMode(t *testing.T) {
	t.Parallel()
	s := NewSession(NewMockDriver(), nil)
	ctx := context.Background()

	mode, err := s.FrequencyMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, FrequencyETSI, mode)

	require.NoError(t, s.SetFrequencyMode(ctx, FrequencyFCC))
	mode, err = s.FrequencyMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, FrequencyFCC, mode)
}

func TestSession_Free(t *testing.T) {
	t.Parallel()
	driver := NewMockDriver()
	sink := &RecordingSink{}
	s := NewSession(driver, sink)
	_, ok := s.Claim(ModeAccess)
	require.True(t, ok)

	require.ErrorIs(t, s.Free(context.Background()), ErrBusy)

	s.Release(ModeAccess)
	require.NoError(t, s.Free(context.Background()))
	assert.Equal(t, 1, driver.CallCount("Disconnect"))
	assert.Equal(t, StatusDisconnected, s.Status().Status)
}

func TestSession_SettersRejectedWhileBusy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		call func(context.Context, *Session) error
		name string
		op   string
	}{
		{
			name: "power",
			call: func(ctx context.Context, s *Session) error { return s.SetPower(ctx, 5) },
			op:   "setPower",
		},
		{
			name: "filter",
			call: func(ctx context.Context, s *Session) error { return s.ApplyFilter(ctx, nil) },
			op:   "setFilter",
		},
		{
			name: "frequency",
			call: func(ctx context.Context, s *Session) error { return s.SetFrequencyMode(ctx, FrequencyFCC) },
			op:   "setFrequencyMode",
		},
		{
			name: "beep enable",
			call: func(ctx context.Context, s *Session) error { return s.SetBeep(ctx, false) },
			op:   "setBeep",
		},
		{
			name: "beep trigger",
			call: func(ctx context.Context, s *Session) error { return s.Beep(ctx, 0) },
			op:   "triggerBeep",
		},
	}

	for _, tt := range tests {
		for _, held := range []Mode{ModeInventory, ModeLocate, ModeAccess} {
			t.Run(tt.name+"/"+held.String(), func(t *testing.T) {
				t.Parallel()
				s, mock, _ := newDeviceSession(t)
				_, ok := s.Claim(held)
				require.True(t, ok)

				err := tt.call(context.Background(), s)
				require.ErrorIs(t, err, ErrBusy)
				assert.Contains(t, err.Error(), tt.op)
				assert.Zero(t, mock.GetCallCount(cmdReaderInfo), "driver untouched")
				assert.Equal(t, held, s.Mode(), "claim is kept")
			})
		}
	}
}

func newDeviceSession(t *testing.T) (*Session, *MockTransport, *RecordingSink) {
	t.Helper()
	device, mock := newTestDevice(t)
	mock.SetResponse(cmdSetPower, ok())
	mock.SetResponse(cmdWriteData, ok())
	mock.SetResponse(cmdLockMem, ok())
	sink := &RecordingSink{}
	return NewSession(device, sink), mock, sink
}

func TestSession_Health(t *testing.T) {
	t.Parallel()
	s, mock, _ := newDeviceSession(t)
	mock.SetResponse(cmdBatteryLevel, ok(42))
	mock.SetResponse(cmdTemperature, ok(0x00, 0x1F))
	mock.SetResponse(cmdBeep, ok())

	battery, err := s.BatteryLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, battery)

	temp, err := s.Temperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 31, temp)

	require.NoError(t, s.Beep(context.Background(), 0))
	assert.Equal(t, []byte{1, 0, 1}, mock.LastArgs(cmdBeep))
}

func TestPCWord(t *testing.T) {
	t.Parallel()
	tests := []struct {
		want  string
		words int
	}{
		{words: 1, want: "0800"},
		{words: 2, want: "1000"},
		{words: 6, want: "3000"},
		{words: 15, want: "7800"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PCWord(tt.words))
	}
}

func TestSession_WriteEPCAndLock(t *testing.T) {
	t.Parallel()
	s, mock, sink := newDeviceSession(t)

	var steps []string
	err := s.WriteEPCAndLock(context.Background(), EPCLockRequest{
		EPC:         "e2001234",
		NewPassword: "11223344",
		Power:       25,
		PlaySound:   true,
		Progress:    func(step string) { steps = append(steps, step) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"writing data", "initializing lock", "setting password", "done"}, steps)
	assert.Equal(t, []byte{25}, mock.LastArgs(cmdSetPower))

	writes := mock.Args(cmdWriteData)
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x01, 0x03,
		0x10, 0x00, 0xE2, 0x00, 0x12, 0x34,
	}, writes[0])
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x20, 0x20, 0xE2, 0x00, 0x12, 0x34,
		0x00, 0x00, 0x00, 0x04,
		0x11, 0x22, 0x33, 0x44, 0x11, 0x22, 0x33, 0x44,
	}, writes[1])
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x20, 0x20, 0xE2, 0x00, 0x12, 0x34,
		0x0A, 0x82, 0xA0,
	}, mock.LastArgs(cmdLockMem))
	assert.Equal(t, []Feedback{FeedbackSuccess}, sink.FeedbackSignals())
}

func TestSession_WriteEPCAndLockStepFailure(t *testing.T) {
	t.Parallel()
	s, mock, sink := newDeviceSession(t)
	mock.SetResponse(cmdLockMem, []byte{0xFE})

	var steps []string
	err := s.WriteEPCAndLock(context.Background(), EPCLockRequest{
		EPC:         "E2001234",
		NewPassword: "11223344",
		Power:       25,
		PlaySound:   true,
		Progress:    func(step string) { steps = append(steps, step) },
	})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "initializing lock")
	assert.Equal(t, []string{"writing data", "initializing lock", "failed on initializing lock"}, steps)
	assert.Len(t, mock.Args(cmdWriteData), 1, "password never written")
	assert.Equal(t, []Feedback{FeedbackError}, sink.FeedbackSignals())
}

func TestSession_WriteEPCAndLockInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		req  EPCLockRequest
	}{
		{name: "odd epc", req: EPCLockRequest{EPC: "E20", NewPassword: "11223344", Power: 20}},
		{name: "empty epc", req: EPCLockRequest{NewPassword: "11223344", Power: 20}},
		{name: "not hex", req: EPCLockRequest{EPC: "XXXX", NewPassword: "11223344", Power: 20}},
		{name: "too long", req: EPCLockRequest{EPC: "0000000000000000000000000000000000000000000000000000000000000000", NewPassword: "11223344", Power: 20}},
		{name: "short password", req: EPCLockRequest{EPC: "E200", NewPassword: "1122", Power: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, mock, _ := newDeviceSession(t)
			err := s.WriteEPCAndLock(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidParameter)
			assert.Zero(t, mock.GetCallCount(cmdWriteData))
		})
	}
}

func TestSession_ResetEPCAndUnlock(t *testing.T) {
	t.Parallel()
	s, mock, _ := newDeviceSession(t)

	var steps []string
	err := s.ResetEPCAndUnlock(context.Background(), UnlockRequest{
		OldPassword: "11223344",
		Power:       25,
		Progress:    func(step string) { steps = append(steps, step) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"resetting data", "unlocking tag", "removing password", "done"}, steps)

	writes := mock.Args(cmdWriteData)
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{
		0x11, 0x22, 0x33, 0x44,
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x01, 0x02,
		0x08, 0x00, 0x00, 0x00,
	}, writes[0])
	assert.Equal(t, []byte{
		0x11, 0x22, 0x33, 0x44,
		0x01, 0x00, 0x20, 0x10, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x04,
		0, 0, 0, 0, 0, 0, 0, 0,
	}, writes[1])
	assert.Equal(t, []byte{
		0x11, 0x22, 0x33, 0x44,
		0x01, 0x00, 0x20, 0x10, 0x00, 0x00,
		0x00, 0x00, 0x00,
	}, mock.LastArgs(cmdLockMem))
}

func TestSession_ResetEPCAndUnlockUnlockedTag(t *testing.T) {
	t.Parallel()
	s, mock, _ := newDeviceSession(t)
	mock.QueueResponses(cmdWriteData, []byte{0xFE})

	var steps []string
	err := s.ResetEPCAndUnlock(context.Background(), UnlockRequest{
		OldPassword: "11223344",
		Power:       25,
		Progress:    func(step string) { steps = append(steps, step) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"resetting data", "unlocking tag", "done"}, steps)

	writes := mock.Args(cmdWriteData)
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, writes[0][:4])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, writes[1][:4], "retried with the default password")
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, mock.LastArgs(cmdLockMem)[:4])
}

func TestSession_ResetEPCAndUnlockFailure(t *testing.T) {
	t.Parallel()
	s, mock, sink := newDeviceSession(t)
	mock.SetResponse(cmdWriteData, []byte{0xFE})

	var steps []string
	err := s.ResetEPCAndUnlock(context.Background(), UnlockRequest{
		Power:     25,
		PlaySound: true,
		Progress:  func(step string) { steps = append(steps, step) },
	})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "resetting data")
	assert.Equal(t, []string{"resetting data", "failed while resetting data"}, steps)
	assert.Zero(t, mock.GetCallCount(cmdLockMem))
	assert.Equal(t, []Feedback{FeedbackError}, sink.FeedbackSignals())
}

func TestSession_LinkLossResetsInit(t *testing.T) {
	t.Parallel()
	mock := &notifyingTransport{MockTransport: NewMockTransport()}
	mock.SetResponse(cmdReaderInfo, readerInfo("R2000"))
	mock.SetResponse(cmdSetPower, ok())
	device, err := New(mock, WithoutRetry())
	require.NoError(t, err)

	sink := &RecordingSink{}
	s := NewSession(device, sink)
	_, err = s.Connect(context.Background(), "BLE-1")
	require.NoError(t, err)
	require.NotNil(t, mock.lost)

	mock.lost()
	assert.Equal(t, StatusDisconnected, s.Status().Status)

	require.NoError(t, s.SetPower(context.Background(), 10))
	assert.Equal(t, 2, mock.GetCallCount(cmdReaderInfo), "re-initialized after link loss")
}
