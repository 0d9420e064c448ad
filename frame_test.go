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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRequest_Encode(t *testing.T) {
	t.Parallel()

	for _, mode := range []ConnectMode{ConnectModeNormal, ConnectModeUserDefined} {
		frame := ConnectRequest{Mode: mode}.Encode()
		assert.Len(t, frame, 2)
		assert.Equal(t, CmdConnect, frame[0])
		assert.Equal(t, byte(mode), frame[1])
	}
}

func TestGetSeedRequest_Encode(t *testing.T) {
	t.Parallel()

	start := GetSeedRequest{Mode: SeedModeStart, Resource: ResPgm}.Encode()
	assert.Equal(t, []byte{CmdGetSeed, 0x00, 0x10}, start)

	// The resource selector is only present in mode-start requests.
	cont := GetSeedRequest{Mode: SeedModeContinue, Resource: ResPgm}.Encode()
	assert.Equal(t, []byte{CmdGetSeed, 0x01}, cont)
}

func TestUnlockRequest_Encode(t *testing.T) {
	t.Parallel()

	frame := UnlockRequest{Remaining: 0x0A, Key: []byte{0x01, 0x02, 0x03}}.Encode()
	assert.Equal(t, []byte{CmdUnlock, 0x0A, 0x01, 0x02, 0x03}, frame)
}

// Every encoded request fits one CAN frame and leads with its command code.
func TestEncode_FrameLaws(t *testing.T) {
	t.Parallel()

	requests := []Request{
		ConnectRequest{Mode: ConnectModeNormal},
		ConnectRequest{Mode: ConnectModeUserDefined},
		DisconnectRequest{},
		GetSeedRequest{Mode: SeedModeStart, Resource: ResCalPag | ResPgm},
		GetSeedRequest{Mode: SeedModeContinue},
		UnlockRequest{Remaining: 6, Key: []byte{1, 2, 3, 4, 5, 6}},
		RawRequest{Cmd: CmdSynch},
		RawRequest{Cmd: CmdUpload, Args: []byte{0x10}},
	}

	for _, req := range requests {
		frame := req.Encode()
		assert.LessOrEqual(t, len(frame), MaxFrameLen, "%s", req.Name())
		require.NotEmpty(t, frame)
		assert.Equal(t, req.Code(), frame[0], "%s", req.Name())
	}
}

func TestDecodeConnectResponse(t *testing.T) {
	t.Parallel()

	resp, err := DecodeConnectResponse([]byte{0xFF, 0x01, 0x02, 0x08, 0x00, 0x08, 0x01, 0x01})
	require.NoError(t, err)

	assert.Equal(t, ResourceFlags(0x01), resp.Resource)
	assert.True(t, resp.Resource.Has(ResCalPag))
	assert.Equal(t, CommModeBasic(0x02), resp.CommMode)
	assert.Equal(t, byte(8), resp.MaxCTO)
	assert.Equal(t, uint16(8), resp.MaxDTO)
	assert.Equal(t, byte(1), resp.ProtocolVersion)
	assert.Equal(t, byte(1), resp.TransportVersion)
}

func TestDecodeConnectResponse_Negative(t *testing.T) {
	t.Parallel()

	resp, err := DecodeConnectResponse([]byte{0xFE, 0x22})
	assert.Nil(t, resp)

	var se *SlaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, byte(0x22), se.Code)
	assert.Equal(t, "CONNECT", se.Command)
}

func TestDecodeConnectResponse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty frame", data: nil},
		{name: "positive but truncated", data: []byte{0xFF}},
		{name: "positive one byte short", data: []byte{0xFF, 1, 2, 3, 4, 5, 6}},
		{name: "negative without reason", data: []byte{0xFE}},
		{name: "reserved packet identifier", data: []byte{0x42, 0x01, 0x02, 0x08, 0x00, 0x08, 0x01, 0x01}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, err := DecodeConnectResponse(tt.data)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeSeedChunk(t *testing.T) {
	t.Parallel()

	chunk, err := DecodeSeedChunk([]byte{0xFF, 0x04, 0x11, 0x22, 0x33, 0x44})
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), chunk.Remaining)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, chunk.Data)
}

func TestDecodeSeedChunk_FinalChunkNoData(t *testing.T) {
	t.Parallel()

	chunk, err := DecodeSeedChunk([]byte{0xFF, 0x00})
	require.NoError(t, err)
	assert.Equal(t, byte(0), chunk.Remaining)
	assert.Empty(t, chunk.Data)
}

func TestDecodeSeedChunk_Negative(t *testing.T) {
	t.Parallel()

	chunk, err := DecodeSeedChunk([]byte{0xFE, 0x25})
	assert.Nil(t, chunk)

	var se *SlaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, byte(0x25), se.Code)
	assert.True(t, se.IsAccessLocked())
}

func TestDecodeSeedChunk_Malformed(t *testing.T) {
	t.Parallel()

	chunk, err := DecodeSeedChunk([]byte{0xFF})
	assert.Nil(t, chunk)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeSeedChunk_CapsDataAtSixBytes(t *testing.T) {
	t.Parallel()

	// Nine-byte frame from a padding bridge: only the six in-layout data
	// bytes count.
	chunk, err := DecodeSeedChunk([]byte{0xFF, 0x00, 1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, chunk.Data)
}

func TestCheckResponse(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckResponse("CONNECT", []byte{0xFF}))

	err := CheckResponse("GET_SEED", []byte{0xFE, 0x10})
	var se *SlaveError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.IsBusy())

	assert.ErrorIs(t, CheckResponse("CONNECT", nil), ErrMalformedFrame)
	assert.ErrorIs(t, CheckResponse("CONNECT", []byte{0xFE}), ErrMalformedFrame)
	assert.ErrorIs(t, CheckResponse("CONNECT", []byte{0x00, 0x00}), ErrMalformedFrame)
}
