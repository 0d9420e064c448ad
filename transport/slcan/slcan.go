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

// Package slcan implements the xcp.Transport interface over a serial-line
// CAN (SLCAN) adapter such as CANable or USBtin. Frames travel as ASCII
// records ('t'/'T' + hex identifier + DLC digit + hex payload, CR
// terminated) on a serial port.
package slcan

import (
	"context"
	"fmt"
	"strings"
	"time"

	xcp "github.com/openxcp/go-xcp"
	"github.com/openxcp/go-xcp/internal/canframe"
	"github.com/openxcp/go-xcp/internal/syncutil"
	"go.bug.st/serial"
)

// Bitrate is an SLCAN 'S' setup code.
type Bitrate byte

// Common CAN bitrates.
const (
	Bitrate10k  Bitrate = '0'
	Bitrate20k  Bitrate = '1'
	Bitrate50k  Bitrate = '2'
	Bitrate100k Bitrate = '3'
	Bitrate125k Bitrate = '4'
	Bitrate250k Bitrate = '5'
	Bitrate500k Bitrate = '6'
	Bitrate800k Bitrate = '7'
	Bitrate1M   Bitrate = '8'
)

// readTimeout is the serial read slice; Receive loops in slices of this
// size so context cancellation is honored between reads.
const readTimeout = 50 * time.Millisecond

// bell is the adapter's negative acknowledgement byte.
const bell = 0x07

// Transport implements the xcp.Transport interface for SLCAN adapters.
type Transport struct {
	port     serial.Port
	portName string
	pending  []byte
	txID     uint32
	rxID     uint32
	bitrate  Bitrate
	timeout  time.Duration
	mu       syncutil.Mutex
	closed   bool
}

// Option configures the transport
type Option func(*Transport)

// WithIDs sets the request and response CAN identifiers.
func WithIDs(txID, rxID uint32) Option {
	return func(t *Transport) {
		t.txID = txID
		t.rxID = rxID
	}
}

// WithBitrate sets the CAN bitrate programmed into the adapter on open.
func WithBitrate(rate Bitrate) Option {
	return func(t *Transport) {
		t.bitrate = rate
	}
}

// New opens an SLCAN adapter on the named serial port and opens its CAN
// channel: close any stale channel, program the bitrate, then open.
func New(portName string, opts ...Option) (*Transport, error) {
	t := &Transport{
		portName: portName,
		txID:     0x700,
		rxID:     0x701,
		bitrate:  Bitrate500k,
		timeout:  time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}
	t.port = port

	for _, cmd := range []string{"C\r", "S" + string(rune(t.bitrate)) + "\r", "O\r"} {
		if _, err := port.Write([]byte(cmd)); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("failed to initialize SLCAN channel on %s: %w", portName, err)
		}
	}

	return t, nil
}

// Send transmits one data frame with the request identifier.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return xcp.NewTransportClosedError("Send", t.portName)
	}

	frame, err := canframe.New(t.txID, data)
	if err != nil {
		return fmt.Errorf("Send %s: %w", t.portName, err)
	}

	if _, err := t.port.Write([]byte(EncodeFrame(frame))); err != nil {
		return xcp.NewTransportWriteError("Send", t.portName)
	}
	return nil
}

// Receive blocks for the next frame carrying the response identifier,
// bounded by the configured timeout. Adapter acknowledgements and frames
// with other identifiers are skipped.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, xcp.NewTransportClosedError("Receive", t.portName)
	}

	deadline := time.Now().Add(t.timeout)
	buf := make([]byte, 64)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if frame, ok := t.nextPendingFrame(); ok {
			if frame.ID == t.rxID && !frame.RTR {
				out := make([]byte, frame.Len)
				copy(out, frame.Payload())
				return out, nil
			}
			continue
		}

		if time.Now().After(deadline) {
			return nil, xcp.NewTimeoutError("Receive", t.portName)
		}

		n, err := t.port.Read(buf)
		if err != nil {
			return nil, xcp.NewTransportReadError("Receive", t.portName)
		}
		t.pending = append(t.pending, buf[:n]...)
	}
}

// nextPendingFrame consumes one CR-terminated record from the pending
// buffer. Records that are not frames (command echoes, the bell NACK) are
// dropped here; the caller keeps scanning.
func (t *Transport) nextPendingFrame() (canframe.Frame, bool) {
	for {
		idx := -1
		for i, b := range t.pending {
			if b == '\r' || b == bell {
				idx = i
				break
			}
		}
		if idx < 0 {
			return canframe.Frame{}, false
		}

		record := string(t.pending[:idx])
		t.pending = t.pending[idx+1:]

		frame, err := ParseFrame(record)
		if err != nil {
			continue
		}
		return frame, true
	}
}

// SetTimeout sets the receive timeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
	return nil
}

// Close closes the CAN channel and the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	_, _ = t.port.Write([]byte("C\r"))
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true if the serial port is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type.
func (*Transport) Type() xcp.TransportType {
	return xcp.TransportSLCAN
}

// EncodeFrame converts a CAN frame into its ASCII SLCAN record.
func EncodeFrame(frame canframe.Frame) string {
	var builder strings.Builder
	switch {
	case frame.RTR && frame.Extended:
		builder.WriteByte('R')
	case frame.RTR && !frame.Extended:
		builder.WriteByte('r')
	case !frame.RTR && frame.Extended:
		builder.WriteByte('T')
	default:
		builder.WriteByte('t')
	}

	if frame.Extended {
		builder.WriteString(fmt.Sprintf("%08X", frame.ID&canframe.MaxExtID))
	} else {
		builder.WriteString(fmt.Sprintf("%03X", frame.ID&canframe.MaxStdID))
	}

	builder.WriteByte('0' + (frame.Len & 0x0F))

	if !frame.RTR {
		for i := uint8(0); i < frame.Len && i < 8; i++ {
			builder.WriteString(fmt.Sprintf("%02X", frame.Data[i]))
		}
	}

	builder.WriteByte('\r')
	return builder.String()
}

// ParseFrame decodes one SLCAN record (without its CR terminator) into a
// CAN frame. Non-frame records yield an error.
func ParseFrame(record string) (canframe.Frame, error) {
	if len(record) == 0 {
		return canframe.Frame{}, fmt.Errorf("slcan: empty record")
	}

	var frame canframe.Frame
	idLen := 3
	switch record[0] {
	case 'T':
		frame.Extended = true
		idLen = 8
	case 'R':
		frame.Extended = true
		frame.RTR = true
		idLen = 8
	case 'r':
		frame.RTR = true
	case 't':
	default:
		return canframe.Frame{}, fmt.Errorf("slcan: not a frame record: %q", record[0])
	}

	if len(record) < 1+idLen+1 {
		return canframe.Frame{}, fmt.Errorf("slcan: truncated record %q", record)
	}

	var err error
	frame.ID, err = parseHex32(record[1 : 1+idLen])
	if err != nil {
		return canframe.Frame{}, fmt.Errorf("slcan: bad identifier in %q: %w", record, err)
	}

	dlc := record[1+idLen]
	if dlc < '0' || dlc > '8' {
		return canframe.Frame{}, fmt.Errorf("slcan: bad DLC %q", dlc)
	}
	frame.Len = dlc - '0'

	if !frame.RTR {
		hexData := record[1+idLen+1:]
		if len(hexData) < int(frame.Len)*2 {
			return canframe.Frame{}, fmt.Errorf("slcan: record %q carries %d hex chars, DLC %d",
				record, len(hexData), frame.Len)
		}
		for i := uint8(0); i < frame.Len; i++ {
			b, err := parseHex32(hexData[i*2 : i*2+2])
			if err != nil {
				return canframe.Frame{}, fmt.Errorf("slcan: bad data byte in %q: %w", record, err)
			}
			frame.Data[i] = byte(b)
		}
	}

	return frame, frame.Validate()
}

func parseHex32(s string) (uint32, error) {
	var v uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		default:
			return 0, fmt.Errorf("invalid hex digit %q", c)
		}
		v = v<<4 | d
	}
	return v, nil
}
