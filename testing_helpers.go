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
	"sync"
	"time"
)

// MockTransport answers commands from per-command canned responses. Queued
// responses are consumed first, then the fixed response is repeated.
type MockTransport struct {
	responses map[byte][]byte
	queues    map[byte][][]byte
	errs      map[byte]error
	calls     map[byte]int
	history   map[byte][][]byte
	delay     time.Duration
	timeout   time.Duration
	mu        sync.Mutex
	closed    bool
}

// NewMockTransport creates a connected mock transport with no responses
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[byte][]byte),
		queues:    make(map[byte][][]byte),
		errs:      make(map[byte]error),
		calls:     make(map[byte]int),
		history:   make(map[byte][][]byte),
		timeout:   time.Second,
	}
}

// SetResponse sets the status-prefixed response for cmd
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = response
	delete(m.errs, cmd)
}

// QueueResponses queues one-shot responses for cmd
func (m *MockTransport) QueueResponses(cmd byte, responses ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[cmd] = append(m.queues[cmd], responses...)
}

// SetError makes cmd fail with err
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[cmd] = err
}

// SetDelay delays every response
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetCallCount returns how many times cmd was sent
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[cmd]
}

// LastArgs returns the arguments of the most recent cmd
func (m *MockTransport) LastArgs(cmd byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history[cmd]
	if len(h) == 0 {
		return nil
	}
	return append([]byte(nil), h[len(h)-1]...)
}

// Args returns the arguments of every cmd sent so far, oldest first
func (m *MockTransport) Args(cmd byte) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.history[cmd]))
	for i, a := range m.history[cmd] {
		out[i] = append([]byte(nil), a...)
	}
	return out
}

// SendCommand implements Transport
func (m *MockTransport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrNotConnected
	}
	m.calls[cmd]++
	m.history[cmd] = append(m.history[cmd], append([]byte(nil), args...))

	if err, ok := m.errs[cmd]; ok {
		return nil, err
	}
	if q := m.queues[cmd]; len(q) > 0 {
		m.queues[cmd] = q[1:]
		return append([]byte(nil), q[0]...), nil
	}
	if resp, ok := m.responses[cmd]; ok {
		return append([]byte(nil), resp...), nil
	}
	return nil, NewTimeoutError("SendCommand", "mock")
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Reopen marks a closed mock connected again
func (m *MockTransport) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// SetTimeout implements Transport
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// Timeout implements TimeoutReporter
func (m *MockTransport) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// BlockingMockTransport is a simple mock transport that can block operations on demand
// This is used for testing deadlock scenarios and context cancellation
type BlockingMockTransport struct {
	blockChan    chan struct{}
	ResponseFunc func(cmd byte, data []byte) ([]byte, error)
	Response     []byte
	timeout      time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewBlockingMockTransport creates a new blocking mock transport
func NewBlockingMockTransport() *BlockingMockTransport {
	return &BlockingMockTransport{
		blockChan: make(chan struct{}),
		timeout:   5 * time.Second,
	}
}

// SendCommand blocks until Unblock() is called, timeout expires, or the transport is closed
func (m *BlockingMockTransport) SendCommand(cmd byte, data []byte) ([]byte, error) {
	m.mu.Lock()
	blockChan := m.blockChan
	closed := m.closed
	responseFunc := m.ResponseFunc
	response := m.Response
	timeout := m.timeout
	m.mu.Unlock()

	if closed {
		return nil, ErrTransportRead
	}

	select {
	case <-blockChan:
	case <-time.After(timeout):
		return nil, NewTimeoutError("SendCommand", "mock")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrTransportRead
	}
	if responseFunc != nil {
		return responseFunc(cmd, data)
	}
	if response != nil {
		return append([]byte(nil), response...), nil
	}
	return []byte{statusSuccess}, nil
}

// Unblock allows one blocked SendCommand to proceed
func (m *BlockingMockTransport) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.blockChan)
		m.blockChan = make(chan struct{})
	}
}

// Close unblocks all operations and marks transport as closed
func (m *BlockingMockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.blockChan)
	}
	return nil
}

// SetResponse configures a fixed response for all SendCommand calls
func (m *BlockingMockTransport) SetResponse(response []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Response = response
	m.ResponseFunc = nil
}

// SetResponseFunc configures a dynamic response function for SendCommand calls
func (m *BlockingMockTransport) SetResponseFunc(fn func(cmd byte, data []byte) ([]byte, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseFunc = fn
	m.Response = nil
}

// SetTimeout configures the timeout for blocking operations
func (m *BlockingMockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// IsConnected reports whether Close has been called
func (m *BlockingMockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*BlockingMockTransport) Type() TransportType {
	return TransportMock
}

// MockDriver is a scriptable Driver. Records pushed with PushRecords are
// returned one per PollOneRecord call; an empty queue polls as "no tag".
type MockDriver struct {
	locateFn      LocateFunc
	powerErr      error
	filterErr     error
	startErr      error
	stopErr       error
	pollErr       error
	connectErr    error
	initErr       error
	accessErr     error
	readResult    string
	pollHook      func()
	calls         []string
	records       []TagRecord
	filters       []Filter
	power         int
	frequencyMode FrequencyMode
	mu            sync.Mutex
	connected     bool
	inventory     bool
}

// NewMockDriver returns a connected mock driver
func NewMockDriver() *MockDriver {
	return &MockDriver{connected: true, readResult: "E2000000", frequencyMode: FrequencyETSI}
}

func (m *MockDriver) record(call string) {
	m.calls = append(m.calls, call)
}

// Calls returns the driver methods invoked so far, in order
func (m *MockDriver) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how often the named method was invoked
func (m *MockDriver) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

// PushRecords appends records to the buffer PollOneRecord drains
func (m *MockDriver) PushRecords(records ...TagRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

// Pending returns how many pushed records have not been polled
func (m *MockDriver) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// SetPowerError makes SetPower fail
func (m *MockDriver) SetPowerError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerErr = err
}

// SetFilterError makes SetFilter fail
func (m *MockDriver) SetFilterError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterErr = err
}

// SetStartError makes StartInventory fail
func (m *MockDriver) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetStopError makes StopInventory fail
func (m *MockDriver) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}

// SetPollError makes PollOneRecord fail while the record queue is empty
func (m *MockDriver) SetPollError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErr = err
}

// SetPollHook runs fn at the start of every PollOneRecord call
func (m *MockDriver) SetPollHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollHook = fn
}

// SetConnectError makes Connect fail
func (m *MockDriver) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// SetInitError makes Init fail
func (m *MockDriver) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetAccessError makes ReadData, WriteData and LockMem fail
func (m *MockDriver) SetAccessError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessErr = err
}

// SetReadResult sets what ReadData returns
func (m *MockDriver) SetReadResult(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readResult = data
}

// SetConnected sets what IsConnected reports
func (m *MockDriver) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// Power returns the last power level set
func (m *MockDriver) Power() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power
}

// Filters returns every filter set so far
func (m *MockDriver) Filters() []Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Filter(nil), m.filters...)
}

// InventoryRunning reports whether StartInventory was called without a matching stop
func (m *MockDriver) InventoryRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inventory
}

// EmitLocate delivers value to the active locate callback. It reports
// false when no locate is running.
func (m *MockDriver) EmitLocate(value int) bool {
	m.mu.Lock()
	fn := m.locateFn
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(value)
	return true
}

// Init implements Driver
func (m *MockDriver) Init(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Init")
	if m.initErr != nil {
		return m.initErr
	}
	m.connected = true
	return nil
}

// Connect implements Driver
func (m *MockDriver) Connect(_ context.Context, address string) (Peer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Connect")
	if m.connectErr != nil {
		return Peer{}, m.connectErr
	}
	m.connected = true
	return Peer{Name: "MockReader", Address: address}, nil
}

// Disconnect implements Driver
func (m *MockDriver) Disconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Disconnect")
	m.connected = false
	return nil
}

// IsConnected implements Driver
func (m *MockDriver) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetPower implements Driver
func (m *MockDriver) SetPower(_ context.Context, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetPower")
	if m.powerErr != nil {
		return m.powerErr
	}
	m.power = level
	return nil
}

// SetFilter implements Driver
func (m *MockDriver) SetFilter(_ context.Context, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetFilter")
	if m.filterErr != nil {
		return m.filterErr
	}
	m.filters = append(m.filters, filter)
	return nil
}

// StartInventory implements Driver
func (m *MockDriver) StartInventory(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StartInventory")
	if m.startErr != nil {
		return m.startErr
	}
	m.inventory = true
	return nil
}

// StopInventory implements Driver
func (m *MockDriver) StopInventory(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StopInventory")
	m.inventory = false
	return m.stopErr
}

// PollOneRecord implements Driver
func (m *MockDriver) PollOneRecord(context.Context) (TagRecord, bool, error) {
	m.mu.Lock()
	hook := m.pollHook
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return TagRecord{}, false, m.pollErr
	}
	rec := m.records[0]
	m.records = m.records[1:]
	return rec, true, nil
}

// ReadData implements Driver
func (m *MockDriver) ReadData(context.Context, string, *Filter, Bank, int, int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ReadData")
	if m.accessErr != nil {
		return "", m.accessErr
	}
	return m.readResult, nil
}

// WriteData implements Driver
func (m *MockDriver) WriteData(context.Context, string, *Filter, Bank, int, int, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WriteData")
	return m.accessErr
}

// LockMem implements Driver
func (m *MockDriver) LockMem(context.Context, string, *Filter, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("LockMem")
	return m.accessErr
}

// StartLocation implements Driver
func (m *MockDriver) StartLocation(_ context.Context, _ string, _ Bank, _ int, fn LocateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StartLocation")
	if m.locateFn != nil {
		return ErrBusy
	}
	m.locateFn = fn
	return nil
}

// StopLocation implements Driver
func (m *MockDriver) StopLocation(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StopLocation")
	m.locateFn = nil
	return nil
}

// SetFrequencyMode implements FrequencyController
func (m *MockDriver) SetFrequencyMode(_ context.Context, mode FrequencyMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetFrequencyMode")
	m.frequencyMode = mode
	return nil
}

// FrequencyMode implements FrequencyController
func (m *MockDriver) FrequencyMode(context.Context) (FrequencyMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frequencyMode, nil
}

// RecordingSink is an EventSink that keeps everything it receives
type RecordingSink struct {
	batches  []TagBatch
	statuses []StatusEvent
	locate   []int
	devices  [][]DiscoveredDevice
	feedback []Feedback
	mu       sync.Mutex
}

// TagBatch implements EventSink
func (r *RecordingSink) TagBatch(batch TagBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

// ConnectionStatus implements EventSink
func (r *RecordingSink) ConnectionStatus(event StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, event)
}

// LocateValue implements EventSink
func (r *RecordingSink) LocateValue(value int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locate = append(r.locate, value)
}

// DevicesDiscovered implements EventSink
func (r *RecordingSink) DevicesDiscovered(devices []DiscoveredDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, devices)
}

// Feedback implements EventSink
func (r *RecordingSink) Feedback(kind Feedback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, kind)
}

// Batches returns the tag batches received so far
func (r *RecordingSink) Batches() []TagBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TagBatch(nil), r.batches...)
}

// Tags returns every record from every batch, in emission order
func (r *RecordingSink) Tags() []TagRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tags []TagRecord
	for _, b := range r.batches {
		tags = append(tags, b.Tags...)
	}
	return tags
}

// Statuses returns the connection events received so far
func (r *RecordingSink) Statuses() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.statuses...)
}

// LocateValues returns the proximity values received so far
func (r *RecordingSink) LocateValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.locate...)
}

// Devices returns the discovery batches received so far
func (r *RecordingSink) Devices() [][]DiscoveredDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]DiscoveredDevice(nil), r.devices...)
}

// FeedbackSignals returns the feedback signals received so far
func (r *RecordingSink) FeedbackSignals() []Feedback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Feedback(nil), r.feedback...)
}
