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


package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/detection"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

const locateBarWidth = 30

// Output handles consistent formatting of messages
type Output struct {
	w       io.Writer
	ok      *color.Color
	warn    *color.Color
	fail    *color.Color
	info    *color.Color
	accent  *color.Color
	mu      sync.Mutex
	verbose bool
}

// NewOutput creates a new output handler
func NewOutput(w io.Writer, verbose bool) *Output {
	return &Output{
		w:       w,
		verbose: verbose,
		ok:      color.New(color.FgHiGreen),
		warn:    color.New(color.FgHiYellow),
		fail:    color.New(color.FgHiRed),
		info:    color.New(color.FgHiCyan),
		accent:  color.New(color.FgHiMagenta),
	}
}

func outputFor(c *cli.Context) *Output {
	return NewOutput(os.Stdout, c.Bool("verbose"))
}

func (o *Output) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = fmt.Fprintf(o.w, format, args...)
}

// Error prints an error message
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.fail.Sprint("ERROR:"), fmt.Sprintf(format, args...))
}

// Warning prints a warning message
func (o *Output) Warning(format string, args ...any) {
	o.printf("%s %s\n", o.warn.Sprint("WARNING:"), fmt.Sprintf(format, args...))
}

// Info prints an info message
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.info.Sprint("INFO:"), fmt.Sprintf(format, args...))
}

// OK prints a success message
func (o *Output) OK(format string, args ...any) {
	o.printf("%s %s\n", o.ok.Sprint("OK:"), fmt.Sprintf(format, args...))
}

// Verbose prints only if verbose mode is enabled
func (o *Output) Verbose(format string, args ...any) {
	if o.verbose {
		o.printf(format+"\n", args...)
	}
}

// Device prints one detection result
func (o *Output) Device(d detection.DeviceInfo) {
	conf := d.Confidence.String()
	switch d.Confidence {
	case detection.High:
		conf = o.ok.Sprint(conf)
	case detection.Medium:
		conf = o.warn.Sprint(conf)
	}
	o.printf("%-28s %-5s %-16s %s\n", d.Path, d.Transport, conf, d.Name)
	if o.verbose {
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			o.printf("    %s: %s\n", k, d.Metadata[k])
		}
	}
}

// Tag prints one inventory record, new tags highlighted
func (o *Output) Tag(tag uhf.TagRecord, isNew bool) {
	epc := tag.EPC
	if isNew {
		epc = o.ok.Sprint(epc)
	}
	o.printf("%s  rssi %s dBm  tid %s\n", epc, tag.RSSI, tag.TID)
}

// Proximity draws a locate value as a bar
func (o *Output) Proximity(value int) {
	filled := min(max(value, 0), 100) * locateBarWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat(".", locateBarWidth-filled)
	o.printf("\r[%s] %3d", o.accent.Sprint(bar), value)
}

// ConsoleSink prints session events as they arrive
type ConsoleSink struct {
	uhf.NopSink
	out  *Output
	seen map[string]bool
	mu   sync.Mutex
}

// NewConsoleSink creates a sink printing to out
func NewConsoleSink(out *Output) *ConsoleSink {
	return &ConsoleSink{out: out, seen: make(map[string]bool)}
}

func (s *ConsoleSink) TagBatch(batch uhf.TagBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range batch.Tags {
		isNew := !s.seen[tag.EPC]
		s.seen[tag.EPC] = true
		s.out.Tag(tag, isNew)
	}
}

func (s *ConsoleSink) ConnectionStatus(ev uhf.StatusEvent) {
	s.out.Verbose("status: %s %s %s", ev.Status, ev.DeviceName, ev.DeviceAddress)
}

func (s *ConsoleSink) LocateValue(value int) {
	s.out.Proximity(value)
}

func (s *ConsoleSink) DevicesDiscovered(devices []uhf.DiscoveredDevice) {
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		s.out.printf("%-20s %4d dBm  %s\n", d.Address, d.RSSI, name)
	}
}

// Unique returns how many distinct EPCs were printed
func (s *ConsoleSink) Unique() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
