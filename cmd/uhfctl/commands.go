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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	uhf "github.com/ZaparooProject/go-uhf"
	"github.com/ZaparooProject/go-uhf/bridge"
	"github.com/ZaparooProject/go-uhf/detection"
	"github.com/ZaparooProject/go-uhf/inventory"
	"github.com/ZaparooProject/go-uhf/transport/ble"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 5 * time.Second

var errUnknownMode = errors.New("unknown detection mode")

func parseMode(s string) (detection.Mode, error) {
	for _, m := range []detection.Mode{detection.Passive, detection.Safe, detection.Full} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownMode, s)
}

func portsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ports",
		Usage: "list serial ports that look like readers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: detection.Safe.String(), Usage: "passive, safe or full"},
		},
		Action: func(c *cli.Context) error {
			out := outputFor(c)
			mode, err := parseMode(c.String("mode"))
			if err != nil {
				return err
			}
			opts := detection.DefaultOptions()
			opts.Mode = mode
			devices, err := detection.DetectAll(c.Context, &opts)
			if errors.Is(err, detection.ErrNoDevicesFound) {
				out.Warning("no readers found")
				return nil
			}
			if err != nil {
				return err
			}
			for _, d := range devices {
				out.Device(d)
			}
			return nil
		},
	}
}

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "scan for Bluetooth LE readers",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second},
			&cli.BoolFlag{Name: "all", Usage: "include devices without the UART service"},
		},
		Action: func(c *cli.Context) error {
			scanner, err := ble.NewAdapterScanner()
			if err != nil {
				return err
			}
			var opts []ble.DiscoveryOption
			if !c.Bool("all") {
				opts = append(opts, ble.WithUARTOnly())
			}
			discovery := ble.NewDiscovery(scanner, NewConsoleSink(outputFor(c)), opts...)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("duration"))
			defer cancel()
			if err := discovery.Start(ctx, ble.DefaultEventRate); err != nil {
				return err
			}
			<-ctx.Done()
			return discovery.Stop()
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "show reader model and health",
		Action: func(c *cli.Context) error {
			out := outputFor(c)
			session, device, err := openSession(c, uhf.NopSink{})
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			info := device.Info()
			out.printf("model:       %s\n", info.Model)
			out.printf("firmware:    %s\n", info.Firmware)
			if mode, err := session.FrequencyMode(ctx); err == nil {
				out.printf("frequency:   %#02x\n", int(mode))
			}
			if level, err := session.BatteryLevel(ctx); err == nil {
				out.printf("battery:     %d%%\n", level)
			}
			if temp, err := session.Temperature(ctx); err == nil {
				out.printf("temperature: %d C\n", temp)
			}
			if working, err := session.IsWorking(ctx); err == nil {
				out.printf("working:     %t\n", working)
			}
			if on, err := session.IsPowerOn(ctx); err == nil {
				out.printf("power:       %t\n", on)
			}
			tuning := device.ScanTuning()
			out.Verbose("poll %s, idle %s, flush %s", tuning.PollInterval, tuning.IdleInterval, tuning.FlushInterval)
			return nil
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "run inventory and print tags as they are seen",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Usage: "stop after this long; zero runs until interrupted"},
			&cli.StringFlag{Name: "epc", Usage: "only report tags whose EPC starts with this hex"},
			&cli.BoolFlag{Name: "sound", Usage: "beep on each read"},
		},
		Action: func(c *cli.Context) error {
			out := outputFor(c)
			sink := NewConsoleSink(out)
			session, device, err := openSession(c, sink)
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			tuning := device.ScanTuning()
			scanner, err := inventory.NewScanner(session, inventory.WithIdleInterval(tuning.IdleInterval))
			if err != nil {
				return err
			}
			params := inventory.DefaultScanParams(c.Int("power"))
			params.PollInterval = tuning.PollInterval
			params.FlushInterval = tuning.FlushInterval
			params.Filter = filterFor(c)
			params.PlaySound = c.Bool("sound")
			if err := scanner.Start(c.Context, params); err != nil {
				return err
			}
			out.Info("scanning, press Ctrl-C to stop")

			ctx := c.Context
			if d := c.Duration("duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := scanner.Stop(stopCtx); err != nil {
				return err
			}
			stats := scanner.Stats()
			out.OK("%d unique tags, %d reads", sink.Unique(), stats.Records)
			return nil
		},
	}
}

func locateCommand() *cli.Command {
	return &cli.Command{
		Name:  "locate",
		Usage: "show proximity to one tag",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "epc", Required: true},
			&cli.BoolFlag{Name: "sound", Usage: "beep as the tag is found"},
		},
		Action: func(c *cli.Context) error {
			session, device, err := openSession(c, NewConsoleSink(outputFor(c)))
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			locator, err := inventory.NewLocator(session)
			if err != nil {
				return err
			}
			err = locator.Start(c.Context, inventory.LocateParams{
				EPC:       c.String("epc"),
				Power:     c.Int("power"),
				PlaySound: c.Bool("sound"),
			})
			if err != nil {
				return err
			}
			<-c.Context.Done()
			outputFor(c).printf("\n")

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return locator.Stop(ctx)
		},
	}
}

func memoryFlags(withData bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "bank", Value: uhf.BankEPC.String(), Usage: "reserved, epc, tid or user"},
		&cli.IntFlag{Name: "pointer", Usage: "first word"},
		&cli.StringFlag{Name: "password", Usage: "access password as hex"},
		&cli.StringFlag{Name: "epc", Usage: "select the tag by EPC"},
	}
	if withData {
		return append(flags,
			&cli.StringFlag{Name: "data", Required: true, Usage: "hex words to write"},
			&cli.BoolFlag{Name: "verify", Usage: "read back and retry on mismatch"},
		)
	}
	return append(flags, &cli.IntFlag{Name: "count", Value: 6, Usage: "words to read"})
}

func memoryOp(c *cli.Context) (uhf.MemoryOp, error) {
	bank, err := uhf.ParseBank(c.String("bank"))
	if err != nil {
		return uhf.MemoryOp{}, err
	}
	op := uhf.MemoryOp{
		Filter:   filterFor(c),
		Password: c.String("password"),
		Power:    c.Int("power"),
		Pointer:  c.Int("pointer"),
		Bank:     bank,
	}
	if c.IsSet("data") {
		op.Data = c.String("data")
		op.Count = len(op.Data) / 4
	} else {
		op.Count = c.Int("count")
	}
	return op, nil
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "read words from tag memory",
		Flags: memoryFlags(false),
		Action: func(c *cli.Context) error {
			op, err := memoryOp(c)
			if err != nil {
				return err
			}
			session, device, err := openSession(c, uhf.NopSink{})
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			data, err := session.Read(ctx, op)
			if err != nil {
				return err
			}
			outputFor(c).printf("%s\n", data)
			return nil
		},
	}
}

func writeCommand() *cli.Command {
	return &cli.Command{
		Name:  "write",
		Usage: "write words to tag memory",
		Flags: memoryFlags(true),
		Action: func(c *cli.Context) error {
			op, err := memoryOp(c)
			if err != nil {
				return err
			}
			session, device, err := openSession(c, uhf.NopSink{})
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			out := outputFor(c)
			if c.Bool("verify") {
				verifier := uhf.NewVerifier(session, uhf.DefaultVerifyConfig())
				err = verifier.Write(ctx, op)
				m := verifier.Metrics()
				out.Verbose("attempts %d, mismatches %d", m.Attempts, m.Mismatches)
			} else {
				err = session.Write(ctx, op)
			}
			if err != nil {
				return err
			}
			out.OK("wrote %d words to %s at %d", op.Count, op.Bank, op.Pointer)
			return nil
		},
	}
}

func lockCommand() *cli.Command {
	return &cli.Command{
		Name:  "lock",
		Usage: "send a raw lock payload",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "code", Required: true, Usage: "3-byte lock payload as hex"},
			&cli.StringFlag{Name: "password", Usage: "access password as hex"},
			&cli.StringFlag{Name: "epc", Usage: "select the tag by EPC"},
		},
		Action: func(c *cli.Context) error {
			session, device, err := openSession(c, uhf.NopSink{})
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			err = session.Lock(ctx, uhf.LockOp{
				Filter:   filterFor(c),
				Password: c.String("password"),
				Code:     c.String("code"),
				Power:    c.Int("power"),
			})
			if err != nil {
				return err
			}
			outputFor(c).OK("lock applied")
			return nil
		},
	}
}

func protectCommand() *cli.Command {
	return &cli.Command{
		Name:  "protect",
		Usage: "write a new EPC and lock it behind a password",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "new-epc", Required: true},
			&cli.StringFlag{Name: "new-password", Required: true},
			&cli.StringFlag{Name: "password", Usage: "current access password"},
			&cli.StringFlag{Name: "epc", Usage: "select the tag by EPC"},
		},
		Action: func(c *cli.Context) error {
			out := outputFor(c)
			session, device, err := openSession(c, uhf.NopSink{})
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			err = session.WriteEPCAndLock(ctx, uhf.EPCLockRequest{
				Filter:      filterFor(c),
				Progress:    func(step string) { out.Verbose("%s", step) },
				EPC:         c.String("new-epc"),
				NewPassword: c.String("new-password"),
				OldPassword: c.String("password"),
				Power:       c.Int("power"),
			})
			if err != nil {
				return err
			}
			out.OK("tag protected")
			return nil
		},
	}
}

func unprotectCommand() *cli.Command {
	return &cli.Command{
		Name:  "unprotect",
		Usage: "blank the EPC and remove locks and passwords",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "password", Usage: "current access password"},
			&cli.StringFlag{Name: "epc", Usage: "select the tag by EPC"},
		},
		Action: func(c *cli.Context) error {
			out := outputFor(c)
			session, device, err := openSession(c, uhf.NopSink{})
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			err = session.ResetEPCAndUnlock(ctx, uhf.UnlockRequest{
				Filter:      filterFor(c),
				Progress:    func(step string) { out.Verbose("%s", step) },
				OldPassword: c.String("password"),
				Power:       c.Int("power"),
			})
			if err != nil {
				return err
			}
			out.OK("tag reset")
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "expose the reader over HTTP with a server-sent event stream",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: "127.0.0.1:8080"},
			&cli.BoolFlag{Name: "ble-discovery", Usage: "allow Bluetooth LE discovery through the API"},
		},
		Action: func(c *cli.Context) error {
			out := outputFor(c)
			hub := bridge.NewHub(nil)
			session, device, err := openSession(c, hub)
			if err != nil {
				return err
			}
			defer closeSession(session, device)

			opts := []bridge.Option{
				bridge.WithTimeout(c.Duration("timeout")),
				bridge.WithInventoryOptions(inventory.WithIdleInterval(device.ScanTuning().IdleInterval)),
			}
			if c.Bool("ble-discovery") {
				scanner, err := ble.NewAdapterScanner()
				if err != nil {
					return err
				}
				opts = append(opts, bridge.WithDiscovery(ble.NewDiscovery(scanner, hub, ble.WithUARTOnly())))
			}
			server, err := bridge.New(session, hub, opts...)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              c.String("listen"),
				Handler:           server,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errs := make(chan error, 1)
			go func() {
				errs <- httpServer.ListenAndServe()
			}()
			out.OK("listening on http://%s", httpServer.Addr)

			select {
			case err := <-errs:
				return err
			case <-c.Context.Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				out.Warning("bridge shutdown: %v", err)
			}
			if err := httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
