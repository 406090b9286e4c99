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
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retry behavior for transport operations
	RetryConfig *RetryConfig
	// Timeout is the default timeout for a command exchange
	Timeout time.Duration
	// LocateInterval is the cadence of inventory rounds while locating
	LocateInterval time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:    DefaultRetryConfig(),
		Timeout:        1 * time.Second,
		LocateInterval: 50 * time.Millisecond,
	}
}

// Clone returns a copy of the configuration
func (c *DeviceConfig) Clone() *DeviceConfig {
	clone := *c
	if c.RetryConfig != nil {
		rc := *c.RetryConfig
		clone.RetryConfig = &rc
	}
	return &clone
}

// TransportFactory opens a transport to the reader at address
type TransportFactory func(address string) (Transport, error)

// Device drives a UHF reader module over a Transport. Command exchanges are
// serialized, so a Device may be shared between the inventory loop and
// control callers.
type Device struct {
	transport Transport
	factory   TransportFactory
	config    *DeviceConfig
	statusFn  func(ConnectionStatus, Peer)
	locate    *locateRun
	info      ReaderInfo
	peer      Peer
	address   string
	cmdMu     sync.Mutex
	stateMu   sync.Mutex
}

// ReaderInfo is the reader's answer to an info query
type ReaderInfo struct {
	Model    string `json:"model"`
	Firmware string `json:"firmware"`
	Type     byte   `json:"type"`
}

// New creates a Device. Either a transport or a WithTransportFactory option
// is required before the device can be used.
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}
	return device, nil
}

// Transport returns the underlying transport, or nil when disconnected
func (d *Device) Transport() Transport {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.transport
}

// Info returns what the reader reported during Init or Connect
func (d *Device) Info() ReaderInfo {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.info
}

// SetTimeout sets the default timeout for operations
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.config.Timeout = timeout
	t := d.Transport()
	if t == nil {
		return nil
	}
	if err := t.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// SetRetryConfig updates the retry configuration
func (d *Device) SetRetryConfig(config *RetryConfig) {
	d.config.RetryConfig = config
	if tr, ok := d.Transport().(*TransportWithRetry); ok {
		tr.SetRetryConfig(config)
	}
}

// SetStatusHandler registers fn for link changes the reader reports on its own
func (d *Device) SetStatusHandler(fn func(status ConnectionStatus, peer Peer)) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.statusFn = fn
}

// Init opens the configured address if needed and queries the reader
func (d *Device) Init(ctx context.Context) error {
	d.stateMu.Lock()
	needConnect := d.transport == nil && d.factory != nil && d.address != ""
	address := d.address
	d.stateMu.Unlock()

	if needConnect {
		_, err := d.Connect(ctx, address)
		return err
	}
	if _, err := d.queryInfo(ctx); err != nil {
		return opError("init", err)
	}
	return nil
}

// Connect opens a transport to address and identifies the reader. Without
// a factory the existing transport is reused.
func (d *Device) Connect(ctx context.Context, address string) (Peer, error) {
	d.stateMu.Lock()
	factory := d.factory
	d.stateMu.Unlock()

	var transport Transport
	if factory != nil {
		t, err := factory(address)
		if err != nil {
			return Peer{}, opError("connect", err)
		}
		transport = t
	} else {
		transport = d.Transport()
		if transport == nil {
			return Peer{}, opError("connect", ErrNotConnected)
		}
	}
	if d.config.RetryConfig != nil {
		if _, wrapped := transport.(*TransportWithRetry); !wrapped {
			transport = NewTransportWithRetry(transport, d.config.RetryConfig)
		}
	}
	if d.config.Timeout > 0 {
		if err := transport.SetTimeout(d.config.Timeout); err != nil {
			_ = transport.Close()
			return Peer{}, opError("connect", err)
		}
	}

	d.stateMu.Lock()
	d.transport = transport
	d.address = address
	d.stateMu.Unlock()

	info, err := d.queryInfo(ctx)
	if err != nil {
		_ = d.closeTransport()
		return Peer{}, opError("connect", err)
	}

	peer := Peer{Name: info.Model, Address: address}
	if name := advertisedName(transport); name != "" {
		peer.Name = name
	}
	d.stateMu.Lock()
	d.peer = peer
	d.stateMu.Unlock()

	if n, ok := transport.(DisconnectNotifier); ok {
		n.OnDisconnect(d.linkLost)
	}
	Logger().Info().Str("address", address).Str("model", info.Model).Msg("reader connected")
	return peer, nil
}

func (d *Device) linkLost() {
	d.stateMu.Lock()
	fn := d.statusFn
	peer := d.peer
	d.stateMu.Unlock()

	Logger().Warn().Str("address", peer.Address).Msg("reader link lost")
	if fn != nil {
		fn(StatusDisconnected, peer)
	}
}

// Disconnect stops any locate run and closes a transport opened by the
// factory. A transport handed to New stays open until Close.
func (d *Device) Disconnect(ctx context.Context) error {
	d.stopLocationQuietly(ctx)
	d.stateMu.Lock()
	owned := d.factory != nil
	d.stateMu.Unlock()
	if !owned {
		return nil
	}
	if err := d.closeTransport(); err != nil {
		return opError("disconnect", err)
	}
	return nil
}

func (d *Device) stopLocationQuietly(ctx context.Context) {
	if err := d.StopLocation(ctx); err != nil {
		Logger().Debug().Err(err).Msg("stop location during disconnect")
	}
}

func (d *Device) closeTransport() error {
	d.stateMu.Lock()
	t := d.transport
	if d.factory != nil {
		d.transport = nil
	}
	d.stateMu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// Close stops any locate run and closes the transport
func (d *Device) Close() error {
	d.stopLocationQuietly(context.Background())
	return d.closeTransport()
}

// IsConnected reports whether the transport is open
func (d *Device) IsConnected() bool {
	t := d.Transport()
	return t != nil && t.IsConnected()
}

// exchange sends one command and splits the status byte from the data
func (d *Device) exchange(ctx context.Context, cmd byte, args []byte) (status byte, data []byte, err error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	t := d.Transport()
	if t == nil {
		return 0, nil, ErrNotConnected
	}
	resp, err := AsTransportContext(t).SendCommandContext(ctx, cmd, args)
	if err != nil {
		return 0, nil, err
	}
	if len(resp) == 0 {
		return 0, nil, NewFrameCorruptedError("exchange", "")
	}
	debugf("cmd 0x%02X -> status 0x%02X, %d bytes", cmd, resp[0], len(resp)-1)
	return resp[0], resp[1:], nil
}

// command runs an exchange and turns any non-success status into an error
func (d *Device) command(ctx context.Context, op string, cmd byte, args []byte) ([]byte, error) {
	status, data, err := d.exchange(ctx, cmd, args)
	if err != nil {
		return nil, opError(op, err)
	}
	if status != statusSuccess {
		return nil, opError(op, &StatusError{Command: cmd, Status: status})
	}
	return data, nil
}

// queryInfo reads Version(2) Type(1) Model(ascii...)
func (d *Device) queryInfo(ctx context.Context) (ReaderInfo, error) {
	data, err := d.command(ctx, "readerInfo", cmdReaderInfo, nil)
	if err != nil {
		return ReaderInfo{}, err
	}
	if len(data) < 3 {
		return ReaderInfo{}, opError("readerInfo", ErrFrameCorrupted)
	}
	info := ReaderInfo{
		Firmware: fmt.Sprintf("%d.%d", data[0], data[1]),
		Type:     data[2],
		Model:    strings.TrimRight(string(data[3:]), "\x00 "),
	}
	if info.Model == "" {
		info.Model = fmt.Sprintf("UHF-%02X", info.Type)
	}
	d.stateMu.Lock()
	d.info = info
	d.stateMu.Unlock()
	return info, nil
}

// SetPower sets the transmit power in dBm
func (d *Device) SetPower(ctx context.Context, level int) error {
	if err := ValidatePower(level); err != nil {
		return opError("setPower", err)
	}
	_, err := d.command(ctx, "setPower", cmdSetPower, []byte{byte(level)})
	return err
}

// SetFilter installs a select mask: Bank Pointer(2) Length(bits) Data
func (d *Device) SetFilter(ctx context.Context, filter Filter) error {
	payload, err := appendFilter(nil, &filter)
	if err != nil {
		return opError("setFilter", err)
	}
	_, err = d.command(ctx, "setFilter", cmdSelectFilter, payload)
	return err
}

// StartInventory starts continuous inventory into the reader's tag buffer
func (d *Device) StartInventory(ctx context.Context) error {
	_, err := d.command(ctx, "startInventory", cmdStartBuffered, nil)
	return err
}

// StopInventory stops continuous inventory
func (d *Device) StopInventory(ctx context.Context) error {
	_, err := d.command(ctx, "stopInventory", cmdStopBuffered, nil)
	return err
}

// PollOneRecord fetches the next buffered tag. ok is false when the buffer is empty.
func (d *Device) PollOneRecord(ctx context.Context) (TagRecord, bool, error) {
	status, data, err := d.exchange(ctx, cmdFetchBuffered, nil)
	if err != nil {
		return TagRecord{}, false, opError("readTagFromBuffer", err)
	}
	switch status {
	case statusSuccess:
	case statusNoTag:
		return TagRecord{}, false, nil
	default:
		return TagRecord{}, false, opError("readTagFromBuffer", &StatusError{Command: cmdFetchBuffered, Status: status})
	}
	rec, err := decodeFetchedTag(data)
	if err != nil {
		return TagRecord{}, false, opError("readTagFromBuffer", err)
	}
	return rec, true, nil
}

// ReadData reads count words from bank starting at word pointer
func (d *Device) ReadData(
	ctx context.Context, password string, filter *Filter, bank Bank, pointer, count int,
) (string, error) {
	payload, err := encodeMemory(password, filter, bank, pointer, count)
	if err != nil {
		return "", opError("readData", err)
	}
	data, err := d.command(ctx, "readData", cmdReadData, payload)
	if err != nil {
		return "", err
	}
	return encodeHex(data), nil
}

// WriteData writes count words of hex data into bank starting at word pointer
func (d *Device) WriteData(
	ctx context.Context, password string, filter *Filter, bank Bank, pointer, count int, data string,
) error {
	payload, err := encodeMemory(password, filter, bank, pointer, count)
	if err != nil {
		return opError("writeData", err)
	}
	raw, err := decodeHex("data", data)
	if err != nil {
		return opError("writeData", err)
	}
	if len(raw) != count*2 {
		return opError("writeData", fmt.Errorf("%w: %d bytes of data for %d words",
			ErrInvalidParameter, len(raw), count))
	}
	_, err = d.command(ctx, "writeData", cmdWriteData, append(payload, raw...))
	return err
}

// LockMem applies a 3-byte lock code: Password(4) Filter Code(3)
func (d *Device) LockMem(ctx context.Context, password string, filter *Filter, code string) error {
	payload, err := encodePassword(password)
	if err != nil {
		return opError("lockMem", err)
	}
	if payload, err = appendFilter(payload, filter); err != nil {
		return opError("lockMem", err)
	}
	raw, err := decodeHex("lock code", code)
	if err != nil {
		return opError("lockMem", err)
	}
	if len(raw) != lockCodeBytes {
		return opError("lockMem", fmt.Errorf("%w: lock code must be %d bytes", ErrInvalidParameter, lockCodeBytes))
	}
	_, err = d.command(ctx, "lockMem", cmdLockMem, append(payload, raw...))
	return err
}

// SetFrequencyMode selects the regional frequency table
func (d *Device) SetFrequencyMode(ctx context.Context, mode FrequencyMode) error {
	_, err := d.command(ctx, "setFrequencyMode", cmdSetRegion, []byte{byte(mode)})
	return err
}

// FrequencyMode returns the active regional frequency table
func (d *Device) FrequencyMode(ctx context.Context) (FrequencyMode, error) {
	data, err := d.command(ctx, "getFrequencyMode", cmdGetRegion, nil)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, opError("getFrequencyMode", ErrFrameCorrupted)
	}
	return FrequencyMode(data[0]), nil
}

// BatteryLevel returns the charge level in percent
func (d *Device) BatteryLevel(ctx context.Context) (int, error) {
	data, err := d.command(ctx, "getBattery", cmdBatteryLevel, nil)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, opError("getBattery", ErrFrameCorrupted)
	}
	return int(data[0]), nil
}

// Temperature returns the module temperature in degrees Celsius
func (d *Device) Temperature(ctx context.Context) (int, error) {
	data, err := d.command(ctx, "getTemperature", cmdTemperature, nil)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, opError("getTemperature", ErrFrameCorrupted)
	}
	return int(int16(binary.BigEndian.Uint16(data))), nil
}

// IsWorking reports whether the module is busy with an RF operation
func (d *Device) IsWorking(ctx context.Context) (bool, error) {
	data, err := d.command(ctx, "isWorking", cmdWorkingStatus, nil)
	if err != nil {
		return false, err
	}
	return len(data) > 0 && data[0] != 0, nil
}

// IsPowerOn reports whether the reader module has power. It asks the
// transport rather than the module, which cannot answer while unpowered.
func (d *Device) IsPowerOn(context.Context) (bool, error) {
	t := d.Transport()
	if t == nil {
		return false, nil
	}
	return transportPowered(t), nil
}

// SetBeep enables or disables the buzzer on tag reads
func (d *Device) SetBeep(ctx context.Context, enabled bool) error {
	var flag byte
	if enabled {
		flag = 1
	}
	_, err := d.command(ctx, "setBeep", cmdBeepEnable, []byte{flag})
	return err
}

// TriggerBeep sounds the buzzer once for roughly d, in 10ms units
func (d *Device) TriggerBeep(ctx context.Context, dur time.Duration) error {
	units := dur / (10 * time.Millisecond)
	if units < 1 {
		units = 1
	}
	if units > maxBeepUnits {
		units = maxBeepUnits
	}
	// on time, off time, repetitions
	_, err := d.command(ctx, "triggerBeep", cmdBeep, []byte{byte(units), 0, 1})
	return err
}

// Free releases the reader's RF resources and closes the link
func (d *Device) Free(ctx context.Context) error {
	_, err := d.command(ctx, "free", cmdFreeResources, nil)
	if err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	if err := d.Close(); err != nil {
		return opError("free", err)
	}
	return nil
}
