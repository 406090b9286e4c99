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


package detection

import (
	"path/filepath"
	"slices"
	"strings"
)

// DefaultBlocklist returns USB devices that expose a serial port but must
// never be probed: writing reader frames to them disturbs the attached target.
// Entries are VID:PID in hexadecimal, any case.
func DefaultBlocklist() []string {
	return []string{
		"1D50:6018", // Black Magic Probe, resets the target on open
		"0483:374B", // ST-LINK/V2-1 virtual COM port
		"1366:0105", // SEGGER J-Link CDC
		"2E8A:000C", // Raspberry Pi Debug Probe
	}
}

var (
	vidKeys = []string{"VID", "VENDOR", "IDVENDOR"}
	pidKeys = []string{"PID", "PRODUCT", "IDPRODUCT"}
)

// VIDPID formats a USB vendor and product id as "VVVV:PPPP". It returns
// "" unless both are hex.
func VIDPID(vid, pid string) string {
	vid, pid = usbID(vid), usbID(pid)
	if vid == "" || pid == "" {
		return ""
	}
	return vid + ":" + pid
}

func usbID(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0X")
	if !isHex(s) || len(s) > 4 {
		return ""
	}
	return strings.Repeat("0", 4-len(s)) + s
}

// ParseVIDPID extracts VID:PID from the descriptor strings operating
// systems report, such as "VID:10C4 PID:EA60", "vendor=1a86 product=7523"
// or a bare "10c4:ea60".
func ParseVIDPID(descriptor string) string {
	var vid, pid string
	fields := strings.FieldsFunc(strings.ToUpper(descriptor), func(r rune) bool {
		return r == ' ' || r == ',' || r == ';'
	})
	for _, field := range fields {
		key, value, found := strings.Cut(field, "=")
		if !found {
			key, value, found = strings.Cut(field, ":")
		}
		if !found {
			continue
		}
		switch {
		case slices.Contains(vidKeys, key):
			vid = value
		case slices.Contains(pidKeys, key):
			pid = value
		case vid == "" && pid == "" && isHex(key) && isHex(value):
			vid, pid = key, value
		}
	}
	return VIDPID(vid, pid)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsBlocked reports whether vidpid matches a blocklist entry
func IsBlocked(vidpid string, blocklist []string) bool {
	id := ParseVIDPID(vidpid)
	if id == "" {
		return false
	}
	return slices.ContainsFunc(blocklist, func(entry string) bool {
		return ParseVIDPID(entry) == id
	})
}

// IsPathIgnored reports whether devicePath names one of ignorePaths.
// Paths are cleaned and compared case-insensitively, which also makes
// Windows COM names and Bluetooth addresses match in any case.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	want := normalizedPath(devicePath)
	return slices.ContainsFunc(ignorePaths, func(p string) bool {
		return p != "" && normalizedPath(p) == want
	})
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
