// Copyright 2026 The go-xcp Authors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main implements xcpsh, an interactive shell for talking to an
// XCP slave over CAN.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	xcp "github.com/openxcp/go-xcp"
	"github.com/openxcp/go-xcp/transport/slcan"
	"github.com/openxcp/go-xcp/transport/socketcan"
)

const banner = `
                         _
  __  _____ _ __  ___| |__
  \ \/ / __| '_ \/ __| '_ \
   >  < (__| |_) \__ \ | | |
  /_/\_\___| .__/|___/_| |_|
           |_|

   XCP master shell for CAN (v1.0)
   -------------------------------

`

// Session state for the shell. One transport and one master at a time;
// grumble runs one command at a time so no synchronization is needed.
var (
	bus      xcp.Transport
	master   *xcp.Master
	busName  string
	lastSeed []byte
)

func main() {
	configureLogging()

	app := setupCLI()
	AddCommands(app)

	if err := app.Run(); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

// configureLogging sets up zerolog with a console writer for interactive use.
func configureLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// setupCLI initializes the interactive shell application.
func setupCLI() *grumble.App {
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".xcpsh"
	} else {
		histFile = filepath.Join(home, ".xcpsh")
	}

	app := grumble.New(&grumble.Config{
		Name:        "xcpsh",
		HistoryFile: histFile,
		Flags: func(f *grumble.Flags) {
			f.Bool("v", "verbose", false, "log every frame on the bus")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Print(banner)
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		if flags.Bool("verbose") {
			xcp.SetDebugEnabled(true)
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	})

	app.OnClose(func() error {
		if bus != nil {
			_ = bus.Close()
		}
		return nil
	})

	return app
}

// AddCommands registers all shell commands with the application.
func AddCommands(app *grumble.App) {
	app.AddCommand(&grumble.Command{
		Name: "open",
		Help: "open a CAN transport (socketcan or slcan)",
		Args: func(a *grumble.Args) {
			a.String("device", "CAN interface name (can0) or serial port (/dev/ttyACM0)")
		},
		Flags: func(f *grumble.Flags) {
			f.String("t", "transport", "socketcan", "transport backend: socketcan or slcan")
			f.String("x", "txid", "0x700", "CAN identifier for master requests")
			f.String("r", "rxid", "0x701", "CAN identifier for slave responses")
			f.Int("b", "bitrate", 500, "CAN bitrate in kbit/s (slcan only)")
			f.Duration("T", "timeout", time.Second, "response timeout per exchange")
		},
		Run: runOpen,
	})

	app.AddCommand(&grumble.Command{
		Name: "close",
		Help: "close the CAN transport",
		Run: func(c *grumble.Context) error {
			if bus == nil {
				log.Warn().Msg("No transport open")
				return nil
			}
			if err := bus.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close transport")
				return nil
			}
			bus, master, busName, lastSeed = nil, nil, "", nil
			c.App.SetPrompt("xcpsh » ")
			log.Info().Msg("Transport closed")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "connect",
		Help: "establish an XCP session",
		Flags: func(f *grumble.Flags) {
			f.Bool("u", "user-defined", false, "connect in user-defined mode")
		},
		Run: func(c *grumble.Context) error {
			if master == nil {
				log.Warn().Msg("No transport open. Use 'open' first")
				return nil
			}

			mode := xcp.ConnectModeNormal
			if c.Flags.Bool("user-defined") {
				mode = xcp.ConnectModeUserDefined
			}

			session, err := master.Connect(mode)
			if err != nil {
				log.Error().Err(err).Msg("CONNECT failed")
				return nil
			}

			log.Info().Msg("Session established")
			c.App.Println(renderSessionTable(session))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "disconnect",
		Help: "end the XCP session",
		Run: func(c *grumble.Context) error {
			if master == nil {
				log.Warn().Msg("No transport open")
				return nil
			}
			if err := master.Disconnect(); err != nil {
				log.Error().Err(err).Msg("DISCONNECT failed")
				return nil
			}
			lastSeed = nil
			log.Info().Msg("Session ended")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "status",
		Help: "show transport and session state",
		Run: func(c *grumble.Context) error {
			if master == nil {
				log.Info().Msg("No transport open")
				return nil
			}
			log.Info().
				Str("device", busName).
				Str("transport", string(bus.Type())).
				Str("state", master.State().String()).
				Msg("Session status")
			if session := master.Session(); session != nil {
				c.App.Println(renderSessionTable(session))
			}
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "seed",
		Help: "retrieve the full seed for a protected resource",
		Args: func(a *grumble.Args) {
			a.String("resource", "protected resource: calpag, daq, stim or pgm")
		},
		Run: func(c *grumble.Context) error {
			if master == nil {
				log.Warn().Msg("No transport open. Use 'open' first")
				return nil
			}

			resource, err := parseResource(c.Args.String("resource"))
			if err != nil {
				log.Error().Err(err).Msg("Bad resource name")
				return nil
			}

			seed, err := master.GetFullSeed(resource)
			if err != nil {
				log.Error().Err(err).Msg("GET_SEED failed")
				return nil
			}

			lastSeed = seed
			log.Info().
				Int("bytes", len(seed)).
				Str("seed", fmt.Sprintf("%X", seed)).
				Msg("Seed retrieved")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "unlock",
		Help: "send the key for the last retrieved seed",
		Flags: func(f *grumble.Flags) {
			f.String("k", "key", "", "key as hex bytes; default derives the key by inverting the seed")
		},
		Run: func(c *grumble.Context) error {
			if master == nil {
				log.Warn().Msg("No transport open. Use 'open' first")
				return nil
			}
			if lastSeed == nil {
				log.Warn().Msg("No seed retrieved. Use 'seed' first")
				return nil
			}

			keyFn := invertSeedKey
			if keyHex := c.Flags.String("key"); keyHex != "" {
				key, err := parseHexBytes(keyHex)
				if err != nil {
					log.Error().Err(err).Msg("Bad key")
					return nil
				}
				keyFn = func([]byte) ([]byte, error) { return key, nil }
			}

			if err := master.Unlock(lastSeed, keyFn); err != nil {
				log.Error().Err(err).Msg("UNLOCK failed")
				return nil
			}

			lastSeed = nil
			log.Info().Msg("Resource unlocked")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "cmd",
		Help: "send a raw XCP command and print the response",
		Args: func(a *grumble.Args) {
			a.String("code", "command code as a hex byte, e.g. FD")
			a.String("args", "command parameters as hex bytes", grumble.Default(""))
		},
		Run: runRawCommand,
	})
}

func runOpen(c *grumble.Context) error {
	if bus != nil {
		log.Warn().Msg("Transport already open. Use 'close' first")
		return nil
	}

	device := c.Args.String("device")
	txID, err := parseCANID(c.Flags.String("txid"))
	if err != nil {
		log.Error().Err(err).Msg("Bad txid")
		return nil
	}
	rxID, err := parseCANID(c.Flags.String("rxid"))
	if err != nil {
		log.Error().Err(err).Msg("Bad rxid")
		return nil
	}

	var transport xcp.Transport
	switch c.Flags.String("transport") {
	case "socketcan":
		transport, err = socketcan.New(device, socketcan.WithIDs(txID, rxID))
	case "slcan":
		rate, rateErr := slcanBitrate(c.Flags.Int("bitrate"))
		if rateErr != nil {
			log.Error().Err(rateErr).Msg("Bad bitrate")
			return nil
		}
		transport, err = slcan.New(device, slcan.WithIDs(txID, rxID), slcan.WithBitrate(rate))
	default:
		log.Error().Str("transport", c.Flags.String("transport")).Msg("Unknown transport backend")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Str("device", device).Msg("Failed to open transport")
		return nil
	}

	m, err := xcp.NewMaster(transport, xcp.WithTimeout(c.Flags.Duration("timeout")))
	if err != nil {
		_ = transport.Close()
		log.Error().Err(err).Msg("Failed to create master")
		return nil
	}

	bus, master, busName = transport, m, device
	c.App.SetPrompt(device + " » ")
	log.Info().
		Str("device", device).
		Str("transport", string(transport.Type())).
		Uint32("txid", txID).
		Uint32("rxid", rxID).
		Msg("Transport open")
	return nil
}

func runRawCommand(c *grumble.Context) error {
	if master == nil {
		log.Warn().Msg("No transport open. Use 'open' first")
		return nil
	}

	code, err := parseHexBytes(c.Args.String("code"))
	if err != nil || len(code) != 1 {
		log.Error().Msg("Command code must be one hex byte, e.g. FD")
		return nil
	}

	var args []byte
	if argHex := c.Args.String("args"); argHex != "" {
		if args, err = parseHexBytes(argHex); err != nil {
			log.Error().Err(err).Msg("Bad command parameters")
			return nil
		}
	}

	resp, err := master.Exchange(context.Background(), xcp.RawRequest{Cmd: code[0], Args: args})
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
		return nil
	}

	log.Info().Str("response", fmt.Sprintf("% 02X", resp)).Msg("Positive response")
	return nil
}

// renderSessionTable formats a connect response for display.
func renderSessionTable(session *xcp.ConnectResponse) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Resources", resourceNames(session.Resource)},
		{"Byte order", byteOrderName(session.CommMode)},
		{"Max CTO", session.MaxCTO},
		{"Max DTO", session.MaxDTO},
		{"Protocol version", session.ProtocolVersion},
		{"Transport version", session.TransportVersion},
	})
	return t.Render()
}

func resourceNames(flags xcp.ResourceFlags) string {
	var names []string
	if flags.Has(xcp.ResCalPag) {
		names = append(names, "CAL/PAG")
	}
	if flags.Has(xcp.ResDaq) {
		names = append(names, "DAQ")
	}
	if flags.Has(xcp.ResStim) {
		names = append(names, "STIM")
	}
	if flags.Has(xcp.ResPgm) {
		names = append(names, "PGM")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func byteOrderName(mode xcp.CommModeBasic) string {
	if mode.MSBFirst() {
		return "big endian"
	}
	return "little endian"
}

func parseResource(name string) (xcp.ResourceFlags, error) {
	switch strings.ToLower(name) {
	case "calpag", "cal", "pag":
		return xcp.ResCalPag, nil
	case "daq":
		return xcp.ResDaq, nil
	case "stim":
		return xcp.ResStim, nil
	case "pgm":
		return xcp.ResPgm, nil
	default:
		return 0, fmt.Errorf("unknown resource %q, want calpag, daq, stim or pgm", name)
	}
}

func parseCANID(s string) (uint32, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid CAN identifier %q", s)
	}
	return uint32(id), nil
}

func parseHexBytes(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimPrefix(strings.ToLower(s), "0x"), " ", "")
	return hex.DecodeString(s)
}

func slcanBitrate(kbit int) (slcan.Bitrate, error) {
	rates := map[int]slcan.Bitrate{
		10:   slcan.Bitrate10k,
		20:   slcan.Bitrate20k,
		50:   slcan.Bitrate50k,
		100:  slcan.Bitrate100k,
		125:  slcan.Bitrate125k,
		250:  slcan.Bitrate250k,
		500:  slcan.Bitrate500k,
		800:  slcan.Bitrate800k,
		1000: slcan.Bitrate1M,
	}
	rate, ok := rates[kbit]
	if !ok {
		return 0, fmt.Errorf("unsupported bitrate %d kbit/s", kbit)
	}
	return rate, nil
}

// invertSeedKey is the default key derivation: the bitwise complement of
// the seed. Real slaves use proprietary algorithms; pass --key for those.
func invertSeedKey(seed []byte) ([]byte, error) {
	key := make([]byte, len(seed))
	for i, b := range seed {
		key[i] = ^b
	}
	return key, nil
}
