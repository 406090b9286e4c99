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
	"fmt"
	"strings"
)

// Lock codes understood by LockMem
const (
	// LockCodeProtect write-locks EPC and read/write-locks the kill and
	// access passwords.
	LockCodeProtect = "0A82A0"
	// LockCodeUnlock clears every lock bit
	LockCodeUnlock = "000000"
)

const (
	maxEPCWords = 15
	// blankEPC is the PC word for a one-word EPC followed by that word
	blankEPC = "08000000"
	// clearedPasswords zeroes kill and access passwords
	clearedPasswords = "0000000000000000"
)

// Read reads tag memory. An empty answer counts as a failure.
func (s *Session) Read(ctx context.Context, op MemoryOp) (string, error) {
	var data string
	err := s.access(ctx, "readData", op.Power, op.PlaySound, func() error {
		var err error
		data, err = s.readData(ctx, op)
		return err
	})
	return data, err
}

// Write writes op.Data into tag memory
func (s *Session) Write(ctx context.Context, op MemoryOp) error {
	return s.access(ctx, "writeData", op.Power, op.PlaySound, func() error {
		return s.writeData(ctx, op)
	})
}

// Lock applies op.Code to the tag's lock bits
func (s *Session) Lock(ctx context.Context, op LockOp) error {
	return s.access(ctx, "lockMem", op.Power, op.PlaySound, func() error {
		return s.lockMem(ctx, op)
	})
}

// access claims the driver, sets power and runs fn. Power rejection aborts
// before fn touches tag memory.
func (s *Session) access(ctx context.Context, op string, power int, playSound bool, fn func() error) error {
	if held, ok := s.Claim(ModeAccess); !ok {
		return opError(op, fmt.Errorf("%w: %s in progress", ErrBusy, held))
	}
	defer s.Release(ModeAccess)

	err := s.setPower(ctx, power)
	if err == nil {
		err = opError(op, fn())
	}
	if playSound {
		if err != nil {
			s.sink.Feedback(FeedbackError)
		} else {
			s.sink.Feedback(FeedbackSuccess)
		}
	}
	return err
}

func (s *Session) readData(ctx context.Context, op MemoryOp) (string, error) {
	if op.Filter != nil {
		if err := op.Filter.Validate(); err != nil {
			return "", err
		}
	}
	data, err := s.driver.ReadData(ctx, passwordOrDefault(op.Password), op.Filter, op.Bank, op.Pointer, op.Count)
	if err != nil {
		return "", err
	}
	if data == "" {
		return "", ErrEmptyResult
	}
	return data, nil
}

func (s *Session) writeData(ctx context.Context, op MemoryOp) error {
	if op.Filter != nil {
		if err := op.Filter.Validate(); err != nil {
			return err
		}
	}
	return s.driver.WriteData(ctx, passwordOrDefault(op.Password), op.Filter, op.Bank, op.Pointer, op.Count, op.Data)
}

func (s *Session) lockMem(ctx context.Context, op LockOp) error {
	if op.Filter != nil {
		if err := op.Filter.Validate(); err != nil {
			return err
		}
	}
	return s.driver.LockMem(ctx, passwordOrDefault(op.Password), op.Filter, op.Code)
}

// EPCLockRequest describes writing a new EPC and protecting it with a password
type EPCLockRequest struct {
	Filter      *Filter
	Progress    func(step string)
	EPC         string
	NewPassword string
	OldPassword string
	Power       int
	PlaySound   bool
}

// PCWord returns the Gen2 protocol-control word announcing an EPC of words
// 16-bit words.
func PCWord(words int) string {
	return fmt.Sprintf("%04X", words<<11)
}

// WriteEPCAndLock writes req.EPC with a matching PC word, locks the kill and
// access passwords and the EPC bank, then sets both passwords to
// req.NewPassword.
func (s *Session) WriteEPCAndLock(ctx context.Context, req EPCLockRequest) error {
	epc := strings.ToUpper(req.EPC)
	words := (len(epc) + 3) / 4
	if _, err := decodeHex("epc", epc); err != nil || len(epc)%4 != 0 || words == 0 || words > maxEPCWords {
		return opError("writeEpcAndLock", fmt.Errorf("%w: epc %q", ErrInvalidParameter, req.EPC))
	}
	if pwd, err := decodeHex("password", req.NewPassword); err != nil || len(pwd) != passwordBytes {
		return opError("writeEpcAndLock", fmt.Errorf("%w: new password", ErrInvalidParameter))
	}
	progress := req.Progress
	if progress == nil {
		progress = func(string) {}
	}
	oldPwd := passwordOrDefault(req.OldPassword)
	tagFilter := EPCFilter(epc)

	steps := []struct {
		run  func() error
		name string
	}{
		{
			name: "writing data",
			run: func() error {
				return s.writeData(ctx, MemoryOp{
					Bank: BankEPC, Pointer: 1, Count: words + 1,
					Data: PCWord(words) + epc, Password: oldPwd, Filter: req.Filter,
				})
			},
		},
		{
			name: "initializing lock",
			run: func() error {
				return s.lockMem(ctx, LockOp{Code: LockCodeProtect, Password: oldPwd, Filter: tagFilter})
			},
		},
		{
			name: "setting password",
			run: func() error {
				return s.writeData(ctx, MemoryOp{
					Bank: BankReserved, Pointer: 0, Count: 4,
					Data: req.NewPassword + req.NewPassword, Password: oldPwd, Filter: tagFilter,
				})
			},
		},
	}

	return s.access(ctx, "writeEpcAndLock", req.Power, req.PlaySound, func() error {
		for _, step := range steps {
			progress(step.name)
			if err := step.run(); err != nil {
				progress("failed on " + step.name)
				return fmt.Errorf("%s: %w", step.name, err)
			}
		}
		progress("done")
		return nil
	})
}

// UnlockRequest describes returning a protected tag to factory state
type UnlockRequest struct {
	Filter      *Filter
	Progress    func(step string)
	OldPassword string
	Power       int
	PlaySound   bool
}

// ResetEPCAndUnlock blanks the EPC, clears the lock bits and removes the
// passwords. A tag that was never locked is detected by falling back to the
// default password.
func (s *Session) ResetEPCAndUnlock(ctx context.Context, req UnlockRequest) error {
	progress := req.Progress
	if progress == nil {
		progress = func(string) {}
	}
	oldPwd := passwordOrDefault(req.OldPassword)
	reset := MemoryOp{Bank: BankEPC, Pointer: 1, Count: 2, Data: blankEPC, Filter: req.Filter}
	blankFilter := &Filter{Bank: BankEPC, Pointer: 32, Length: 16, Data: "0000"}

	return s.access(ctx, "resetEpcAndUnlock", req.Power, req.PlaySound, func() error {
		progress("resetting data")
		locked := true
		reset.Password = oldPwd
		if err := s.writeData(ctx, reset); err != nil {
			reset.Password = DefaultAccessPassword
			if err := s.writeData(ctx, reset); err != nil {
				progress("failed while resetting data")
				return fmt.Errorf("resetting data: %w", err)
			}
			locked = false
		}

		lockPwd := DefaultAccessPassword
		if locked {
			lockPwd = oldPwd
		}
		progress("unlocking tag")
		if err := s.lockMem(ctx, LockOp{Code: LockCodeUnlock, Password: lockPwd, Filter: blankFilter}); err != nil {
			progress("failed while unlocking tag")
			return fmt.Errorf("unlocking tag: %w", err)
		}

		if locked {
			progress("removing password")
			err := s.writeData(ctx, MemoryOp{
				Bank: BankReserved, Pointer: 0, Count: 4,
				Data: clearedPasswords, Password: oldPwd, Filter: blankFilter,
			})
			if err != nil {
				progress("failed while removing password")
				return fmt.Errorf("removing password: %w", err)
			}
		}
		progress("done")
		return nil
	})
}
