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


// Package bridge exposes a reader session over HTTP: JSON endpoints for
// every operation and a Server-Sent Events stream carrying the events the
// session emits.
package bridge

import (
	"context"
	"net/http"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/inventory"
	"github.com/gorilla/mux"
)

const (
	defaultHeartbeat = 15 * time.Second
	defaultTimeout   = 10 * time.Second
)

// Discoverer scans for readers that are not connected yet
type Discoverer interface {
	Start(ctx context.Context, eventRate time.Duration) error
	Stop() error
	Running() bool
}

// Server routes HTTP requests to a session
type Server struct {
	session    *uhf.Session
	scanner    *inventory.Scanner
	locator    *inventory.Locator
	hub        *Hub
	discovery  Discoverer
	router     *mux.Router
	invOptions []inventory.Option
	heartbeat  time.Duration
	timeout    time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithDiscovery enables the /discover endpoints
func WithDiscovery(d Discoverer) Option {
	return func(s *Server) {
		s.discovery = d
	}
}

// WithHeartbeat sets how often idle event streams get a keep-alive comment
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithTimeout bounds each reader operation started by a request
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInventoryOptions passes options to the scanner and locator
func WithInventoryOptions(opts ...inventory.Option) Option {
	return func(s *Server) {
		s.invOptions = append(s.invOptions, opts...)
	}
}

// New creates a Server for session. hub must be the session's sink for
// events to reach stream clients.
func New(session *uhf.Session, hub *Hub, opts ...Option) (*Server, error) {
	s := &Server{
		session:   session,
		hub:       hub,
		heartbeat: defaultHeartbeat,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.scanner, err = inventory.NewScanner(session, s.invOptions...); err != nil {
		return nil, err
	}
	if s.locator, err = inventory.NewLocator(session, s.invOptions...); err != nil {
		return nil, err
	}
	s.router = s.newRouter()
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Scanner returns the inventory scanner driven by the server
func (s *Server) Scanner() *inventory.Scanner {
	return s.scanner
}

// Locator returns the locator driven by the server
func (s *Server) Locator() *inventory.Locator {
	return s.locator
}

// Shutdown stops scanning, locating and discovery
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.scanner.Stop(ctx); err != nil {
		uhf.Logger().Warn().Err(err).Msg("stop scan on shutdown")
	}
	if err := s.locator.Stop(ctx); err != nil {
		uhf.Logger().Warn().Err(err).Msg("stop locate on shutdown")
	}
	if s.discovery != nil {
		return s.discovery.Stop()
	}
	return nil
}

type route struct {
	Name    string
	Method  string
	Pattern string
	Handler handlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{"Status", http.MethodGet, "/status", s.status},
		{"Connect", http.MethodPost, "/connect", s.connect},
		{"Disconnect", http.MethodPost, "/disconnect", s.disconnect},
		{"Power", http.MethodPut, "/power", s.setPower},
		{"SetFrequency", http.MethodPut, "/frequency", s.setFrequency},
		{"GetFrequency", http.MethodGet, "/frequency", s.getFrequency},
		{"Health", http.MethodGet, "/health", s.health},
		{"Beep", http.MethodPost, "/beep", s.beep},
		{"Free", http.MethodPost, "/free", s.free},
		{"ScanStart", http.MethodPost, "/scan/start", s.scanStart},
		{"ScanStop", http.MethodPost, "/scan/stop", s.scanStop},
		{"ScanClear", http.MethodPost, "/scan/clear", s.scanClear},
		{"ScanStats", http.MethodGet, "/scan/stats", s.scanStats},
		{"LocateStart", http.MethodPost, "/locate/start", s.locateStart},
		{"LocateStop", http.MethodPost, "/locate/stop", s.locateStop},
		{"TagRead", http.MethodPost, "/tag/read", s.tagRead},
		{"TagWrite", http.MethodPost, "/tag/write", s.tagWrite},
		{"TagLock", http.MethodPost, "/tag/lock", s.tagLock},
		{"TagEPCLock", http.MethodPost, "/tag/epc-lock", s.tagEPCLock},
		{"TagReset", http.MethodPost, "/tag/reset", s.tagReset},
		{"DiscoverStart", http.MethodPost, "/discover/start", s.discoverStart},
		{"DiscoverStop", http.MethodPost, "/discover/stop", s.discoverStop},
		{"Events", http.MethodGet, "/events", s.events},
	}
}

func (s *Server) newRouter() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	for _, rt := range s.routes() {
		router.
			Methods(rt.Method).
			Path(rt.Pattern).
			Name(rt.Name).
			Handler(rt.Handler)
	}
	router.Use(logRequests)
	return router
}

// opContext bounds a reader operation. Operations that outlive the
// request, like a scan loop, take their lifetime from Stop instead.
func (s *Server) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout)
}
