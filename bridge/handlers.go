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


package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/inventory"
)

type connectRequest struct {
	Address string `json:"address"`
}

type powerRequest struct {
	Level int `json:"level"`
}

type frequencyBody struct {
	Mode uhf.FrequencyMode `json:"mode"`
}

type beepRequest struct {
	Enabled    *bool `json:"enabled,omitempty"`
	DurationMs int   `json:"durationMs"`
}

// scanRequest mirrors inventory.ScanParams with rates in milliseconds
type scanRequest struct {
	Filter    *uhf.Filter `json:"filter,omitempty"`
	Power     int         `json:"power"`
	ScanRate  int         `json:"scanRate"`
	EventRate int         `json:"eventRate"`
	PlaySound bool        `json:"playSound"`
}

type epcLockRequest struct {
	Filter      *uhf.Filter `json:"filter,omitempty"`
	EPC         string      `json:"epc"`
	NewPassword string      `json:"newPassword"`
	OldPassword string      `json:"oldPassword,omitempty"`
	Power       int         `json:"power"`
	PlaySound   bool        `json:"playSound"`
}

type resetRequest struct {
	Filter      *uhf.Filter `json:"filter,omitempty"`
	OldPassword string      `json:"oldPassword"`
	Power       int         `json:"power"`
	PlaySound   bool        `json:"playSound"`
}

type discoverRequest struct {
	EventRate int `json:"eventRate"`
}

type statusResponse struct {
	uhf.StatusEvent
	Mode     string `json:"mode"`
	Scanning bool   `json:"scanning"`
	Locating bool   `json:"locating"`
}

type healthResponse struct {
	Battery     int  `json:"battery"`
	Temperature int  `json:"temperature"`
	Working     bool `json:"working"`
	PowerOn     bool `json:"powerOn"`
}

type scanStatsResponse struct {
	SessionID string          `json:"sessionId,omitempty"`
	State     string          `json:"state"`
	Seen      int             `json:"seen"`
	Stats     inventory.Stats `json:"stats"`
}

type readResponse struct {
	Data string `json:"data"`
}

type stepsResponse struct {
	Steps []string `json:"steps"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) error {
	respond(w, http.StatusOK, statusResponse{
		StatusEvent: s.session.Status(),
		Mode:        s.session.Mode().String(),
		Scanning:    s.scanner.IsScanning(),
		Locating:    s.locator.IsActive(),
	})
	return nil
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) error {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	peer, err := s.session.Connect(ctx, req.Address)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, peer)
	return nil
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.scanner.Stop(ctx); err != nil {
		return err
	}
	if err := s.locator.Stop(ctx); err != nil {
		return err
	}
	if err := s.session.Disconnect(ctx); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) setPower(w http.ResponseWriter, r *http.Request) error {
	var req powerRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.session.SetPower(ctx, req.Level); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) setFrequency(w http.ResponseWriter, r *http.Request) error {
	var req frequencyBody
	if err := decode(r, &req); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.session.SetFrequencyMode(ctx, req.Mode); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) getFrequency(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := s.opContext(r)
	defer cancel()
	mode, err := s.session.FrequencyMode(ctx)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, frequencyBody{Mode: mode})
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := s.opContext(r)
	defer cancel()
	var resp healthResponse
	var err error
	if resp.Battery, err = s.session.BatteryLevel(ctx); err != nil {
		return err
	}
	if resp.Temperature, err = s.session.Temperature(ctx); err != nil {
		return err
	}
	if resp.Working, err = s.session.IsWorking(ctx); err != nil {
		return err
	}
	if resp.PowerOn, err = s.session.IsPowerOn(ctx); err != nil {
		return err
	}
	respond(w, http.StatusOK, resp)
	return nil
}

func (s *Server) beep(w http.ResponseWriter, r *http.Request) error {
	var req beepRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	if req.Enabled != nil {
		if err := s.session.SetBeep(ctx, *req.Enabled); err != nil {
			return err
		}
		return ok(w)
	}
	if err := s.session.Beep(ctx, time.Duration(req.DurationMs)*time.Millisecond); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) free(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.session.Free(ctx); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) scanStart(w http.ResponseWriter, r *http.Request) error {
	var req scanRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	params := inventory.DefaultScanParams(req.Power)
	params.Filter = req.Filter
	params.PlaySound = req.PlaySound
	if req.ScanRate > 0 {
		params.PollInterval = time.Duration(req.ScanRate) * time.Millisecond
	}
	if req.EventRate > 0 {
		params.FlushInterval = time.Duration(req.EventRate) * time.Millisecond
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.scanner.Start(ctx, params); err != nil {
		return err
	}
	respond(w, http.StatusOK, map[string]string{"sessionId": s.scanner.SessionID()})
	return nil
}

func (s *Server) scanStop(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.scanner.Stop(ctx); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) scanClear(w http.ResponseWriter, _ *http.Request) error {
	s.scanner.Clear()
	return ok(w)
}

func (s *Server) scanStats(w http.ResponseWriter, _ *http.Request) error {
	respond(w, http.StatusOK, scanStatsResponse{
		SessionID: s.scanner.SessionID(),
		State:     s.scanner.State().String(),
		Seen:      len(s.scanner.Seen()),
		Stats:     s.scanner.Stats(),
	})
	return nil
}

func (s *Server) locateStart(w http.ResponseWriter, r *http.Request) error {
	var req inventory.LocateParams
	if err := decode(r, &req); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.locator.Start(ctx, req); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) locateStop(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.locator.Stop(ctx); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) tagRead(w http.ResponseWriter, r *http.Request) error {
	var op uhf.MemoryOp
	if err := decode(r, &op); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	data, err := s.session.Read(ctx, op)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, readResponse{Data: data})
	return nil
}

func (s *Server) tagWrite(w http.ResponseWriter, r *http.Request) error {
	var op uhf.MemoryOp
	if err := decode(r, &op); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.session.Write(ctx, op); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) tagLock(w http.ResponseWriter, r *http.Request) error {
	var op uhf.LockOp
	if err := decode(r, &op); err != nil {
		return err
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	if err := s.session.Lock(ctx, op); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) tagEPCLock(w http.ResponseWriter, r *http.Request) error {
	var req epcLockRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	var steps []string
	ctx, cancel := s.opContext(r)
	defer cancel()
	err := s.session.WriteEPCAndLock(ctx, uhf.EPCLockRequest{
		Filter:      req.Filter,
		EPC:         req.EPC,
		NewPassword: req.NewPassword,
		OldPassword: req.OldPassword,
		Power:       req.Power,
		PlaySound:   req.PlaySound,
		Progress:    func(step string) { steps = append(steps, step) },
	})
	if err != nil {
		return fmt.Errorf("after %v: %w", steps, err)
	}
	respond(w, http.StatusOK, stepsResponse{Steps: steps})
	return nil
}

func (s *Server) tagReset(w http.ResponseWriter, r *http.Request) error {
	var req resetRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	var steps []string
	ctx, cancel := s.opContext(r)
	defer cancel()
	err := s.session.ResetEPCAndUnlock(ctx, uhf.UnlockRequest{
		Filter:      req.Filter,
		OldPassword: req.OldPassword,
		Power:       req.Power,
		PlaySound:   req.PlaySound,
		Progress:    func(step string) { steps = append(steps, step) },
	})
	if err != nil {
		return fmt.Errorf("after %v: %w", steps, err)
	}
	respond(w, http.StatusOK, stepsResponse{Steps: steps})
	return nil
}

func (s *Server) discoverStart(w http.ResponseWriter, r *http.Request) error {
	if s.discovery == nil {
		return ErrDiscoveryUnavailable
	}
	var req discoverRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	// The scan outlives the request; it ends on /discover/stop or Shutdown.
	ctx := context.WithoutCancel(r.Context())
	if err := s.discovery.Start(ctx, time.Duration(req.EventRate)*time.Millisecond); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) discoverStop(w http.ResponseWriter, _ *http.Request) error {
	if s.discovery == nil {
		return ErrDiscoveryUnavailable
	}
	if err := s.discovery.Stop(); err != nil {
		return err
	}
	return ok(w)
}

// events streams every sink event as Server-Sent Events until the client
// goes away. The current connection status is sent first.
func (s *Server) events(w http.ResponseWriter, r *http.Request) error {
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		return fmt.Errorf("%w: streaming unsupported", uhf.ErrNotSupported)
	}
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, uhf.ToEvent(uhf.EventConnectionStatus, s.session.Status())); err != nil {
		return nil
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case ev, open := <-events:
			if !open {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev uhf.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		uhf.Logger().Warn().Err(err).Str("event", ev.Name).Msg("failed to encode event")
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
