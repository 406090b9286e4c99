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
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/inventory"
	"github.com/ZaparooProject/go-uhf/transport/ble"
)

const maxBodySize = 64 << 10

var (
	// ErrBadRequest is returned for bodies that cannot be decoded
	ErrBadRequest = errors.New("bad request")
	// ErrDiscoveryUnavailable is returned when no Discoverer was configured
	ErrDiscoveryUnavailable = errors.New("device discovery not available")
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// handlerFunc is an http handler that reports failure by returning it
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		status := statusFor(err)
		ev := uhf.Logger().Debug()
		if status >= http.StatusInternalServerError {
			ev = uhf.Logger().Warn()
		}
		ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
		respond(w, status, errorResponse{Error: err.Error()})
	}
}

// statusFor maps library errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, uhf.ErrInvalidParameter),
		errors.Is(err, inventory.ErrInvalidScanParams):
		return http.StatusBadRequest
	case errors.Is(err, uhf.ErrBusy),
		errors.Is(err, inventory.ErrAlreadyScanning),
		errors.Is(err, inventory.ErrAlreadyLocating),
		errors.Is(err, inventory.ErrLocateActive),
		errors.Is(err, inventory.ErrStartInProgress),
		errors.Is(err, ble.ErrAlreadyDiscovering):
		return http.StatusConflict
	case errors.Is(err, uhf.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, uhf.ErrNotSupported), errors.Is(err, ErrDiscoveryUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, uhf.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, uhf.ErrTransportTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		uhf.Logger().Debug().Err(err).Msg("failed to write response")
	}
}

func ok(w http.ResponseWriter) error {
	respond(w, http.StatusOK, okResponse{OK: true})
	return nil
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// statusRecorder remembers the response code for the request log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		uhf.Logger().Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
