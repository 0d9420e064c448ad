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

//go:build linux

// Package socketcan implements the xcp.Transport interface on top of a raw
// Linux SocketCAN socket. Frames are transmitted to a fixed request
// identifier and only frames carrying the fixed response identifier are
// handed back to the master; everything else on the bus is skipped.
package socketcan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	xcp "github.com/openxcp/go-xcp"
	"github.com/openxcp/go-xcp/internal/canframe"
	"github.com/openxcp/go-xcp/internal/syncutil"
	"golang.org/x/sys/unix"
)

// pollInterval is the kernel-level receive timeout. Receive loops in slices
// of this size so context cancellation is honored between reads.
const pollInterval = 50 * time.Millisecond

// Transport implements the xcp.Transport interface for Linux SocketCAN.
type Transport struct {
	iface   string
	fd      int
	txID    uint32
	rxID    uint32
	timeout time.Duration
	mu      syncutil.Mutex
	closed  bool
}

// Option configures the transport
type Option func(*Transport)

// WithIDs sets the request and response CAN identifiers. The defaults are
// the CCP/XCP convention of 0x700 for requests and 0x701 for responses, but
// nearly every ECU assigns its own pair via its A2L description.
func WithIDs(txID, rxID uint32) Option {
	return func(t *Transport) {
		t.txID = txID
		t.rxID = rxID
	}
}

// New opens a raw CAN socket bound to the named interface (e.g. "can0").
func New(iface string, opts ...Option) (*Transport, error) {
	t := &Transport{
		iface:   iface,
		txID:    0x700,
		rxID:    0x701,
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to find CAN interface %s: %w", iface, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN socket: %w", err)
	}

	// Kernel-side filter on the response identifier. Receive still checks
	// the identifier, the filter just keeps bus noise out of the socket
	// buffer.
	filter := []unix.CanFilter{{Id: t.rxID, Mask: unix.CAN_SFF_MASK}}
	if t.rxID > canframe.MaxStdID {
		filter[0].Mask = unix.CAN_EFF_MASK
	}
	if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filter); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to set CAN filter: %w", err)
	}

	tv := unix.NsecToTimeval(pollInterval.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to bind to %s: %w", iface, err)
	}

	t.fd = fd
	return t, nil
}

// Send transmits one data frame with the request identifier.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return xcp.NewTransportClosedError("Send", t.iface)
	}

	frame, err := canframe.New(t.txID, data)
	if err != nil {
		return fmt.Errorf("Send %s: %w", t.iface, err)
	}
	buf, err := frame.MarshalBinary()
	if err != nil {
		return fmt.Errorf("Send %s: %w", t.iface, err)
	}

	if _, err := unix.Write(t.fd, buf); err != nil {
		if errors.Is(err, unix.ENETDOWN) || errors.Is(err, unix.ENOBUFS) {
			return xcp.NewBusError("Send", t.iface)
		}
		return xcp.NewTransportWriteError("Send", t.iface)
	}
	return nil
}

// Receive blocks for the next frame carrying the response identifier,
// bounded by the configured timeout.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	fd, closed, timeout := t.fd, t.closed, t.timeout
	t.mu.Unlock()

	if closed {
		return nil, xcp.NewTransportClosedError("Receive", t.iface)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, canframe.WireSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, xcp.NewTimeoutError("Receive", t.iface)
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EBADF) {
				return nil, xcp.NewTransportClosedError("Receive", t.iface)
			}
			return nil, xcp.NewTransportReadError("Receive", t.iface)
		}

		var frame canframe.Frame
		if err := frame.UnmarshalBinary(buf[:n]); err != nil {
			continue
		}
		if frame.ID != t.rxID || frame.RTR {
			continue
		}

		out := make([]byte, frame.Len)
		copy(out, frame.Payload())
		return out, nil
	}
}

// SetTimeout sets the receive timeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
	return nil
}

// Close closes the CAN socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := unix.Close(t.fd); err != nil {
		return fmt.Errorf("failed to close CAN socket: %w", err)
	}
	return nil
}

// IsConnected returns true if the socket is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type.
func (*Transport) Type() xcp.TransportType {
	return xcp.TransportSocketCAN
}
