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


// Package uart detects readers behind USB serial bridges. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/detection"
	uarttransport "github.com/ZaparooProject/go-uhf/transport/uart"
	"go.bug.st/serial/enumerator"
)

const probeTimeout = time.Second

// ErrNoAccess is returned when the current user cannot open a port
var ErrNoAccess = errors.New("no read/write access to port")

// knownBridges are the USB serial chips UHF reader modules ship with
var knownBridges = map[string]string{
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "WCH CH340",
	"1A86:55D4": "WCH CH9102",
	"0403:6001": "FTDI FT232R",
	"0403:6015": "FTDI FT231X",
	"067B:2303": "Prolific PL2303",
}

// skippedNames are ports the OS creates that never lead to a reader
var skippedNames = []string{
	"Bluetooth-Incoming-Port",
	"debug-console",
	"wlan-debug",
}

type (
	portLister func() ([]*enumerator.PortDetails, error)
	prober     func(ctx context.Context, path string) (uhf.ReaderInfo, error)
)

type detector struct {
	list   portLister
	probe  prober
	access func(path string) error
}

// New creates a serial port detector
func New() detection.Detector {
	return &detector{
		list:   enumerator.GetDetailedPortsList,
		probe:  probeReader,
		access: checkAccess,
	}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports and rates each one. Known bridges are
// reported in every mode; other USB ports only in Full mode, and only
// when they answer the info query.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return devices, err
		}
		device, ok := d.examine(ctx, port, opts)
		if ok {
			devices = append(devices, device)
		}
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) examine(
	ctx context.Context, port *enumerator.PortDetails, opts *detection.Options,
) (detection.DeviceInfo, bool) {
	if !shouldIncludePort(port.Name) || detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	vidpid := ""
	if port.IsUSB {
		vidpid = detection.VIDPID(port.VID, port.PID)
		if detection.IsBlocked(vidpid, opts.Blocklist) {
			return detection.DeviceInfo{}, false
		}
	}

	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Name,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   map[string]string{},
	}
	if vidpid != "" {
		device.Metadata["vidpid"] = vidpid
	}
	if port.SerialNumber != "" {
		device.Metadata["serial_number"] = port.SerialNumber
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
		device.Name = port.Product
	}
	if bridge, ok := knownBridges[vidpid]; ok {
		device.Confidence = detection.Medium
		device.Metadata["bridge"] = bridge
	}

	switch opts.Mode {
	case detection.Passive:
		return device, device.Confidence == detection.Medium
	case detection.Safe:
		if device.Confidence != detection.Medium {
			return detection.DeviceInfo{}, false
		}
	case detection.Full:
		if !port.IsUSB && device.Confidence == detection.Low {
			return detection.DeviceInfo{}, false
		}
	}

	if err := d.access(port.Name); err != nil {
		device.Metadata["error"] = err.Error()
		return device, device.Confidence == detection.Medium
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	info, err := d.probe(probeCtx, port.Name)
	cancel()
	if err != nil {
		return device, device.Confidence == detection.Medium
	}

	device.Confidence = detection.High
	device.Metadata["model"] = info.Model
	device.Metadata["firmware"] = info.Firmware
	if info.Model != "" {
		device.Name = info.Model
	}
	return device, true
}

func shouldIncludePort(name string) bool {
	if name == "" {
		return false
	}
	for _, skip := range skippedNames {
		if strings.Contains(name, skip) {
			return false
		}
	}
	return true
}

// probeReader opens the port and asks the reader to identify itself
func probeReader(ctx context.Context, path string) (uhf.ReaderInfo, error) {
	tr, err := uarttransport.New(path)
	if err != nil {
		return uhf.ReaderInfo{}, err
	}
	device, err := uhf.New(tr, uhf.WithoutRetry(), uhf.WithTimeout(probeTimeout))
	if err != nil {
		_ = tr.Close()
		return uhf.ReaderInfo{}, err
	}
	defer func() { _ = device.Close() }()

	if err := device.Init(ctx); err != nil {
		return uhf.ReaderInfo{}, err
	}
	return device.Info(), nil
}
