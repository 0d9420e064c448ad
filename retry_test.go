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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return NewTimeoutError("Receive", "can0")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_NonRetryableAbortsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return NewSlaveError("GET_SEED", 0x25)
	})

	var se *SlaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, calls, "a slave rejection must not be retried")
}

func TestRetryWithConfig_BusySlaveIsRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls == 1 {
			return NewSlaveError("CONNECT", 0x10)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryWithConfig_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return NewBusError("Send", "can0")
	})

	assert.ErrorIs(t, err, ErrBusError)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_NilConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), nil, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), &RetryConfig{}, func() error {
		calls++
		return NewTimeoutError("Receive", "can0")
	})

	assert.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ContextCancelReturnsLastError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithConfig(ctx, fastRetryConfig(5), func() error {
		calls++
		cancel()
		return NewTimeoutError("Receive", "can0")
	})

	assert.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ConnectOperation(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	master, err := NewMaster(mock)
	require.NoError(t, err)

	// First attempt times out on the empty script; the second finds a
	// response queued. A fresh connect is safe because the first attempt
	// never established a session.
	go func() {
		time.Sleep(5 * time.Millisecond)
		mock.QueueResponse(connectOK)
	}()

	err = RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		_, err := master.Connect(ConnectModeNormal)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, StateConnected, master.State())
}

func TestCalculateJitteredSleep(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond

	assert.Equal(t, base, calculateJitteredSleep(base, 0))

	for i := 0; i < 32; i++ {
		sleep := calculateJitteredSleep(base, 0.5)
		assert.GreaterOrEqual(t, sleep, base)
		assert.Less(t, sleep, base+base/2)
	}
}

func TestCalculateNextBackoff_Caps(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{MaxBackoff: 50 * time.Millisecond, BackoffMultiplier: 10}
	assert.Equal(t, 50*time.Millisecond, calculateNextBackoff(10*time.Millisecond, config))
	assert.Equal(t, 50*time.Millisecond, calculateNextBackoff(50*time.Millisecond, config))
}
