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
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlaveError(t *testing.T) {
	t.Parallel()

	err := NewSlaveError("GET_SEED", 0x25)
	assert.Equal(t, "GET_SEED rejected by slave: 0x25 (access denied, seed & key required)", err.Error())
	assert.True(t, err.IsAccessLocked())
	assert.False(t, err.IsBusy())
	assert.False(t, err.IsUnknownCommand())
}

func TestSlaveError_UnknownCodeKeptVerbatim(t *testing.T) {
	t.Parallel()

	err := NewSlaveError("CONNECT", 0x7F)
	assert.Equal(t, byte(0x7F), err.Code)
	assert.Contains(t, err.Error(), "0x7F")
	assert.Contains(t, err.Error(), "unknown error")

	code, ok := IsSlaveError(fmt.Errorf("wrapped: %w", err))
	assert.True(t, ok)
	assert.Equal(t, byte(0x7F), code)
}

func TestSlaveError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    byte
		busy    bool
		locked  bool
		unknown bool
	}{
		{name: "command busy", code: 0x10, busy: true},
		{name: "resource temporarily unavailable", code: 0x33, busy: true},
		{name: "access locked", code: 0x25, locked: true},
		{name: "unknown command", code: 0x20, unknown: true},
		{name: "unknown sub command", code: 0x34, unknown: true},
		{name: "out of range", code: 0x22},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewSlaveError("CMD", tt.code)
			assert.Equal(t, tt.busy, err.IsBusy())
			assert.Equal(t, tt.locked, err.IsAccessLocked())
			assert.Equal(t, tt.unknown, err.IsUnknownCommand())
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError("Receive", "can0")
	assert.Equal(t, "Receive can0: transport timeout", err.Error())
	assert.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, ErrorTypeTimeout, err.Type)

	var te *TransportError
	require.ErrorAs(t, fmt.Errorf("CONNECT: %w", err), &te)
	assert.Equal(t, "can0", te.Iface)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: NewTimeoutError("Receive", "can0"), want: true},
		{name: "bus error", err: NewBusError("Send", "can0"), want: true},
		{name: "write error", err: NewTransportWriteError("Send", "can0"), want: true},
		{name: "closed transport", err: NewTransportClosedError("Send", "can0"), want: false},
		{name: "busy slave", err: NewSlaveError("GET_SEED", 0x10), want: true},
		{name: "access locked slave", err: NewSlaveError("GET_SEED", 0x25), want: false},
		{name: "malformed frame", err: ErrMalformedFrame, want: false},
		{name: "wrapped timeout sentinel", err: fmt.Errorf("GET_SEED: %w", ErrTransportTimeout), want: true},
		{name: "unrelated", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(NewTransportClosedError("Send", "can0")))
	assert.True(t, IsFatal(ErrTransportClosed))
	assert.True(t, IsFatal(ErrUnsupportedPlatform))
	assert.True(t, IsFatal(io.EOF))
	assert.False(t, IsFatal(NewTimeoutError("Receive", "can0")))
	assert.False(t, IsFatal(NewSlaveError("CONNECT", 0x10)))
	assert.False(t, IsFatal(nil))
}
