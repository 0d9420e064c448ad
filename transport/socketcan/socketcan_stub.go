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

//go:build !linux

// Package socketcan implements the xcp.Transport interface on top of a raw
// Linux SocketCAN socket. SocketCAN is a Linux kernel facility; on other
// platforms New fails and the SLCAN transport should be used instead.
package socketcan

import (
	"context"
	"time"

	xcp "github.com/openxcp/go-xcp"
)

// Transport is unavailable on non-Linux platforms.
type Transport struct{}

// Option configures the transport
type Option func(*Transport)

// WithIDs sets the request and response CAN identifiers.
func WithIDs(_, _ uint32) Option {
	return func(*Transport) {}
}

// New fails with ErrUnsupportedPlatform outside Linux.
func New(_ string, _ ...Option) (*Transport, error) {
	return nil, xcp.ErrUnsupportedPlatform
}

// Send implements xcp.Transport
func (*Transport) Send(_ []byte) error {
	return xcp.ErrUnsupportedPlatform
}

// Receive implements xcp.Transport
func (*Transport) Receive(_ context.Context) ([]byte, error) {
	return nil, xcp.ErrUnsupportedPlatform
}

// SetTimeout implements xcp.Transport
func (*Transport) SetTimeout(_ time.Duration) error {
	return xcp.ErrUnsupportedPlatform
}

// Close implements xcp.Transport
func (*Transport) Close() error { return nil }

// IsConnected implements xcp.Transport
func (*Transport) IsConnected() bool { return false }

// Type implements xcp.Transport
func (*Transport) Type() xcp.TransportType { return xcp.TransportSocketCAN }
