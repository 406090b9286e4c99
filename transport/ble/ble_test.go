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


package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/internal/frame"
	virt "github.com/ZaparooProject/go-uhf/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testAddress = "C8:47:8C:01:02:03"

// virtualLink reassembles written chunks into packets, hands them to a
// virtual reader and notifies the transport with the answer split into
// notifySize pieces.
type virtualLink struct {
	writeErr   error
	reader     *virt.VirtualReader
	transport  *Transport
	stale      []byte
	buf        []byte
	writes     int
	notifySize int
	mu         sync.Mutex
	silent     bool
	closed     bool
}

func (l *virtualLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	l.writes++
	l.buf = append(l.buf, p...)
	if len(l.buf) == 0 || len(l.buf) < int(l.buf[0])+1 {
		return len(p), nil
	}
	n := int(l.buf[0]) + 1
	packet := l.buf[:n]
	l.buf = l.buf[n:]
	if l.silent {
		return len(p), nil
	}
	if l.stale != nil {
		l.transport.Receive(l.stale)
	}
	resp := l.reader.HandlePacket(packet)
	size := l.notifySize
	if size <= 0 {
		size = DefaultChunkSize
	}
	for off := 0; off < len(resp); off += size {
		l.transport.Receive(resp[off:min(off+size, len(resp))])
	}
	return len(p), nil
}

func (l *virtualLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *virtualLink) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

func newVirtualTransport(opts ...Option) (*Transport, *virtualLink) {
	link := &virtualLink{reader: virt.NewVirtualReader()}
	t := NewWithLink(link, testAddress, "UHF-01", opts...)
	link.transport = t
	return t, link
}

func TestTransport_SendCommand(t *testing.T) {
	t.Parallel()

	tr, link := newVirtualTransport(WithChunkSize(2))
	resp, err := tr.SendCommand(virt.CmdReaderInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), resp[0])
	assert.Contains(t, string(resp), "VR-2000")
	assert.Equal(t, 3, link.Writes())
}

func TestTransport_SplitNotifications(t *testing.T) {
	t.Parallel()

	tr, link := newVirtualTransport()
	link.notifySize = 3
	link.reader.AddTag(virt.NewVirtualTag("E20000000000000000000001", "E2801160", -553))

	device, err := uhf.New(tr, uhf.WithoutRetry())
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))
	assert.Equal(t, "VR-2000", device.Info().Model)

	tid, err := device.ReadData(context.Background(), "", nil, uhf.BankTID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "E2801160", tid)
}

func TestTransport_DiscardsStaleFrames(t *testing.T) {
	t.Parallel()

	tr, link := newVirtualTransport()
	stale, err := frame.BuildResponse(frame.DefaultAddress, virt.CmdSetPower, 0x00, nil)
	require.NoError(t, err)
	link.stale = stale

	resp, err := tr.SendCommand(virt.CmdGetRegion, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), resp[0])
}

func TestTransport_Timeout(t *testing.T) {
	t.Parallel()

	tr, link := newVirtualTransport(WithTimeout(30 * time.Millisecond))
	link.silent = true

	_, err := tr.SendCommand(virt.CmdReaderInfo, nil)
	require.ErrorIs(t, err, uhf.ErrTransportTimeout)
	var te *uhf.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, testAddress, te.Port)
}

func TestTransport_Context(t *testing.T) {
	t.Parallel()

	tr, link := newVirtualTransport()
	link.silent = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := tr.SendCommandContext(ctx, virt.CmdReaderInfo, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = tr.SendCommandContext(ctx, virt.CmdReaderInfo, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTransport_WriteFailure(t *testing.T) {
	t.Parallel()

	tr, link := newVirtualTransport()
	link.writeErr = errors.New("att error")
	lost := make(chan struct{})
	tr.OnDisconnect(func() { close(lost) })

	_, err := tr.SendCommand(virt.CmdReaderInfo, nil)
	require.ErrorIs(t, err, uhf.ErrTransportWrite)
	assert.False(t, uhf.IsRetryable(err))
	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("disconnect handler not called")
	}
}

func TestTransport_LinkLost(t *testing.T) {
	t.Parallel()

	tr, _ := newVirtualTransport()
	lost := make(chan struct{})
	tr.OnDisconnect(func() { close(lost) })

	tr.LinkLost()
	<-lost
	assert.False(t, tr.IsConnected())
	_, err := tr.SendCommand(virt.CmdReaderInfo, nil)
	require.ErrorIs(t, err, uhf.ErrNotConnected)
	require.NoError(t, tr.Close())
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	tr, link := newVirtualTransport()
	register(testAddress, tr)
	assert.True(t, tr.IsConnected())
	require.NoError(t, tr.Close())
	connectedMu.Lock()
	assert.NotContains(t, connected, testAddress)
	connectedMu.Unlock()
	assert.True(t, link.closed)
	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Close())
	assert.Equal(t, uhf.TransportBLE, tr.Type())
}

func TestTransport_ReceiveBounded(t *testing.T) {
	t.Parallel()

	tr, _ := newVirtualTransport()
	tr.Receive(make([]byte, maxPending))
	tr.Receive([]byte{0x01})
	tr.rxMu.Lock()
	defer tr.rxMu.Unlock()
	assert.Len(t, tr.pending, 1)
}

func TestTransport_PeerName(t *testing.T) {
	t.Parallel()

	tr, _ := newVirtualTransport()
	assert.Equal(t, uhf.Peer{Name: "UHF-01", Address: testAddress}, tr.Peer())

	device, err := uhf.New(tr, uhf.WithoutRetry())
	require.NoError(t, err)
	peer, err := device.Connect(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "UHF-01", peer.Name)
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	_, err := resolveAddress("not-an-address")
	require.ErrorIs(t, err, uhf.ErrInvalidParameter)
}
