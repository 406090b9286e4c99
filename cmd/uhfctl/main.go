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


// Command uhfctl talks to UHF RFID readers from the terminal and can
// expose one over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	_ "github.com/ZaparooProject/go-uhf/detection/uart"
	"github.com/ZaparooProject/go-uhf/transport/uart"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		NewOutput(os.Stderr, false).Error("%v", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "uhfctl",
		Usage: "Control UHF RFID readers over serial or Bluetooth LE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Usage:   "serial port or Bluetooth address; empty auto-detects a serial reader",
				EnvVars: []string{"UHF_DEVICE"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "connect and command timeout",
			},
			&cli.IntFlag{
				Name:  "power",
				Value: 20,
				Usage: "transmit power in dBm",
			},
			&cli.IntFlag{
				Name:  "baud",
				Value: uart.DefaultBaudRate,
				Usage: "serial line speed",
			},
			&cli.StringFlag{
				Name:  "enable-pin",
				Usage: "GPIO that powers the reader module, e.g. GPIO17",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "show more detail",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log protocol traffic",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			portsCommand(),
			discoverCommand(),
			infoCommand(),
			scanCommand(),
			locateCommand(),
			readCommand(),
			writeCommand(),
			lockCommand(),
			protectCommand(),
			unprotectCommand(),
			serveCommand(),
		},
	}
}

func setup(c *cli.Context) error {
	if c.Bool("no-color") {
		color.NoColor = true
	}
	level := zerolog.InfoLevel
	if c.Bool("debug") {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
		NoColor:    color.NoColor,
	}).Level(level).With().Timestamp().Logger()
	uhf.SetLogger(logger)
	uhf.SetDebugEnabled(c.Bool("debug"))
	return nil
}
