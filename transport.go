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
	"sync"
	"time"
)

// Transport defines the frame-level capability consumed by the Master.
// Implementations carry no XCP semantics: Send transmits one raw data frame
// to the fixed request identifier, Receive blocks for the next frame
// addressed to the master. This can be implemented by SocketCAN, SLCAN or
// any other CAN backend.
type Transport interface {
	// Send transmits one data frame of at most 8 bytes
	Send(data []byte) error

	// Receive blocks for the next frame addressed to the master, bounded
	// by the configured timeout. Frames with other identifiers are not
	// returned.
	Receive(ctx context.Context) ([]byte, error)

	// SetTimeout sets the receive timeout for the transport
	SetTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportSocketCAN represents a Linux SocketCAN transport.
	TransportSocketCAN TransportType = "socketcan"
	// TransportSLCAN represents a serial-line CAN (SLCAN) transport.
	TransportSLCAN TransportType = "slcan"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// mockStep is one scripted receive outcome.
type mockStep struct {
	err  error
	data []byte
}

// MockTransport provides a scripted implementation of Transport for testing.
// Responses are consumed in FIFO order, one per Receive call, because XCP
// exchanges with the same command code can yield different responses (seed
// chunks in particular).
type MockTransport struct {
	script    []mockStep
	sent      [][]byte
	sendErr   error
	timeout   time.Duration
	mu        sync.Mutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
	}
}

// Send implements Transport interface
func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return NewTransportClosedError("Send", string(TransportMock))
	}
	if m.sendErr != nil {
		return m.sendErr
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	m.sent = append(m.sent, frame)
	return nil
}

// Receive implements Transport interface
func (m *MockTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, NewTransportClosedError("Receive", string(TransportMock))
	}
	if len(m.script) == 0 {
		return nil, NewTimeoutError("Receive", string(TransportMock))
	}

	step := m.script[0]
	m.script = m.script[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.data, nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// QueueResponse appends a frame to be returned by the next unclaimed Receive
func (m *MockTransport) QueueResponse(data []byte) {
	m.mu.Lock()
	m.script = append(m.script, mockStep{data: data})
	m.mu.Unlock()
}

// QueueError appends a receive failure to the script
func (m *MockTransport) QueueError(err error) {
	m.mu.Lock()
	m.script = append(m.script, mockStep{err: err})
	m.mu.Unlock()
}

// SetSendError makes every subsequent Send fail with err
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

// Sent returns the frames transmitted so far, in order
func (m *MockTransport) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset clears the script and sent-frame log and reconnects the transport
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.script = nil
	m.sent = nil
	m.sendErr = nil
	m.connected = true
	m.mu.Unlock()
}
