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

package xcp

import (
	"context"
	"fmt"
	"time"
)

// State is the session state of a Master.
type State int

const (
	// StateIdle - no session established
	StateIdle State = iota
	// StateConnecting - CONNECT exchange in flight
	StateConnecting
	// StateConnected - session established, no seed retrieval pending
	StateConnected
	// StateRetrievingSeed - GET_SEED loop in flight
	StateRetrievingSeed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrievingSeed:
		return "retrieving seed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config contains configuration options for the Master
type Config struct {
	// Timeout is the response timeout for one exchange
	Timeout time.Duration
	// StrictFrameLength rejects responses longer than the fixed layout
	// of the command instead of ignoring the tail
	StrictFrameLength bool
}

// DefaultConfig returns default master configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:           1 * time.Second,
		StrictFrameLength: false,
	}
}

// Master drives the XCP command/response exchange with one slave.
//
// Thread Safety: Master is NOT thread-safe. XCP over CAN is a
// single-outstanding-request protocol: the next frame received is the
// response to the last frame sent, with no correlation tag. All methods
// must be called from a single goroutine or protected with external
// synchronization, and the Master assumes exclusive ownership of the
// transport for the duration of each exchange.
type Master struct {
	transport Transport
	config    *Config
	session   *ConnectResponse
	state     State
}

// Option configures a Master
type Option func(*Master) error

// WithTimeout sets the per-exchange response timeout
func WithTimeout(timeout time.Duration) Option {
	return func(m *Master) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		m.config.Timeout = timeout
		return nil
	}
}

// WithStrictFrameLength rejects response frames longer than the command's
// fixed layout as malformed instead of ignoring the trailing bytes. The
// default is lenient: over-length frames only occur behind non-CAN bridges
// that pad frames, and the tail carries no protocol meaning.
func WithStrictFrameLength() Option {
	return func(m *Master) error {
		m.config.StrictFrameLength = true
		return nil
	}
}

// NewMaster creates a new XCP master on the given transport
func NewMaster(transport Transport, opts ...Option) (*Master, error) {
	m := &Master{
		transport: transport,
		config:    DefaultConfig(),
		state:     StateIdle,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if err := transport.SetTimeout(m.config.Timeout); err != nil {
		return nil, fmt.Errorf("failed to set timeout on transport: %w", err)
	}

	return m, nil
}

// State returns the current session state.
func (m *Master) State() State {
	return m.state
}

// Session returns the connect response of the current session, or nil when
// no session is established.
func (m *Master) Session() *ConnectResponse {
	return m.session
}

// Transport returns the underlying transport
func (m *Master) Transport() Transport {
	return m.transport
}

// SetTimeout sets the response timeout for subsequent exchanges
func (m *Master) SetTimeout(timeout time.Duration) error {
	m.config.Timeout = timeout
	if err := m.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// Exchange performs exactly one command/response round trip: one frame
// transmitted, at most one frame received. The raw payload of a positive
// response is returned; a negative response surfaces as *SlaveError and a
// structurally invalid frame as ErrMalformedFrame. Exchange never resends a
// frame - repeating a CONNECT or GET_SEED has protocol-visible effects on
// the slave, so retry policy belongs to the caller of the whole logical
// operation.
func (m *Master) Exchange(ctx context.Context, req Request) ([]byte, error) {
	frame := req.Encode()
	if len(frame) > MaxFrameLen {
		return nil, fmt.Errorf("%s: encoded to %d bytes: %w", req.Name(), len(frame), ErrFrameTooLong)
	}

	Debugf("%s TX % 02X", req.Name(), frame)
	if err := m.transport.Send(frame); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Name(), err)
	}

	resp, err := m.transport.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Name(), err)
	}
	Debugf("%s RX % 02X", req.Name(), resp)

	if err := CheckResponse(req.Name(), resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Connect establishes an XCP session
func (m *Master) Connect(mode ConnectMode) (*ConnectResponse, error) {
	return m.ConnectContext(context.Background(), mode)
}

// ConnectContext establishes an XCP session with context support. On any
// failure the master returns to the idle state with no partial session
// retained.
func (m *Master) ConnectContext(ctx context.Context, mode ConnectMode) (*ConnectResponse, error) {
	if m.state != StateIdle {
		return nil, fmt.Errorf("connect from %s state: %w", m.state, ErrAlreadyConnected)
	}

	m.state = StateConnecting
	resp, err := m.Exchange(ctx, ConnectRequest{Mode: mode})
	if err != nil {
		m.state = StateIdle
		return nil, err
	}

	if err := m.checkLength("CONNECT", resp, connectResponseLen); err != nil {
		m.state = StateIdle
		return nil, err
	}
	session, err := DecodeConnectResponse(resp)
	if err != nil {
		m.state = StateIdle
		return nil, err
	}

	m.session = session
	m.state = StateConnected
	Debugf("connected: maxCTO=%d maxDTO=%d proto=%d transport=%d",
		session.MaxCTO, session.MaxDTO, session.ProtocolVersion, session.TransportVersion)
	return session, nil
}

// Disconnect ends the current XCP session
func (m *Master) Disconnect() error {
	return m.DisconnectContext(context.Background())
}

// DisconnectContext ends the current XCP session with context support
func (m *Master) DisconnectContext(ctx context.Context) error {
	if m.state != StateConnected {
		return fmt.Errorf("disconnect from %s state: %w", m.state, ErrNotConnected)
	}

	if _, err := m.Exchange(ctx, DisconnectRequest{}); err != nil {
		return err
	}
	m.session = nil
	m.state = StateIdle
	return nil
}

// GetFullSeed retrieves the complete seed for a protected resource
func (m *Master) GetFullSeed(resource ResourceFlags) ([]byte, error) {
	return m.GetFullSeedContext(context.Background(), resource)
}

// GetFullSeedContext retrieves the complete seed for a protected resource,
// accumulating chunks across as many GET_SEED exchanges as the slave needs.
// The loop terminates solely when the slave reports zero remaining bytes;
// the remaining count is a hint about what is left at the time of each
// response, not a total the client verifies byte-for-byte.
//
// Retrieval is atomic from the caller's perspective: any failure aborts the
// whole operation with no partial seed, the master stays connected, and a
// later call starts a fresh retrieval with a mode-start request.
func (m *Master) GetFullSeedContext(ctx context.Context, resource ResourceFlags) ([]byte, error) {
	if m.state != StateConnected {
		return nil, fmt.Errorf("seed retrieval from %s state: %w", m.state, ErrNotConnected)
	}

	m.state = StateRetrievingSeed
	defer func() { m.state = StateConnected }()

	var seed []byte
	req := GetSeedRequest{Mode: SeedModeStart, Resource: resource}

	for {
		resp, err := m.Exchange(ctx, req)
		if err != nil {
			return nil, err
		}
		chunk, err := DecodeSeedChunk(resp)
		if err != nil {
			return nil, err
		}

		seed = append(seed, chunk.Data...)
		Debugf("seed chunk: %d bytes, %d remaining reported", len(chunk.Data), chunk.Remaining)

		if chunk.Remaining == 0 {
			return seed, nil
		}
		req = GetSeedRequest{Mode: SeedModeContinue}
	}
}

// KeyFunc derives the unlock key for a seed. The algorithm is
// slave-specific and supplied by the caller.
type KeyFunc func(seed []byte) ([]byte, error)

// Unlock performs the key half of a seed & key exchange
func (m *Master) Unlock(seed []byte, keyFn KeyFunc) error {
	return m.UnlockContext(context.Background(), seed, keyFn)
}

// UnlockContext derives the key from the seed and streams it to the slave
// in UNLOCK frames. Each frame carries at most MaxCTO-2 key bytes, bounded
// by the CONNECT-negotiated CTO length.
func (m *Master) UnlockContext(ctx context.Context, seed []byte, keyFn KeyFunc) error {
	if m.state != StateConnected {
		return fmt.Errorf("unlock from %s state: %w", m.state, ErrNotConnected)
	}

	key, err := keyFn(seed)
	if err != nil {
		return fmt.Errorf("key derivation failed: %w", err)
	}
	if len(key) == 0 || len(key) > 255 {
		return fmt.Errorf("key length %d out of range 1..255", len(key))
	}

	capacity := MaxFrameLen - 2
	if cto := int(m.session.MaxCTO) - 2; cto > 0 && cto < capacity {
		capacity = cto
	}

	for sent := 0; sent < len(key); {
		n := len(key) - sent
		if n > capacity {
			n = capacity
		}
		req := UnlockRequest{
			Remaining: byte(len(key) - sent),
			Key:       key[sent : sent+n],
		}
		if _, err := m.Exchange(ctx, req); err != nil {
			return err
		}
		sent += n
	}

	return nil
}

// checkLength applies the configured trailing-byte policy: lenient masters
// ignore bytes past the fixed layout, strict masters reject them.
func (m *Master) checkLength(command string, data []byte, want int) error {
	if m.config.StrictFrameLength && len(data) > want {
		return fmt.Errorf("%s: response %d bytes, fixed layout is %d: %w",
			command, len(data), want, ErrMalformedFrame)
	}
	return nil
}
