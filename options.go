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
	"fmt"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithRetryConfig sets the retry configuration for the device
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.SetRetryConfig(config)
		return nil
	}
}

// WithTimeout sets the default timeout for device operations
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout %v", ErrInvalidParameter, timeout)
		}
		return d.SetTimeout(timeout)
	}
}

// WithMaxRetries sets the maximum number of retries for device operations
func WithMaxRetries(maxAttempts int) Option {
	return func(device *Device) error {
		if device.config.RetryConfig == nil {
			device.config.RetryConfig = DefaultRetryConfig()
		}
		device.config.RetryConfig.MaxAttempts = maxAttempts
		if tr, ok := device.transport.(*TransportWithRetry); ok {
			tr.SetRetryConfig(device.config.RetryConfig)
		}
		return nil
	}
}

// WithoutRetry sends every command exactly once
func WithoutRetry() Option {
	return func(device *Device) error {
		device.config.RetryConfig = nil
		return nil
	}
}

// WithTransportFactory lets Connect open transports by address
func WithTransportFactory(factory TransportFactory) Option {
	return func(device *Device) error {
		device.factory = factory
		return nil
	}
}

// WithAddress sets the address Init connects to when no transport is open
func WithAddress(address string) Option {
	return func(device *Device) error {
		device.address = address
		return nil
	}
}

// WithLocateInterval sets the cadence of locate inventory rounds
func WithLocateInterval(interval time.Duration) Option {
	return func(device *Device) error {
		if interval <= 0 {
			return fmt.Errorf("%w: locate interval %v", ErrInvalidParameter, interval)
		}
		device.config.LocateInterval = interval
		return nil
	}
}
