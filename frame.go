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
	"encoding/binary"
	"fmt"
)

// MaxFrameLen is the CAN data frame payload limit. Every encoded request and
// every response handled by this package fits in one frame.
const MaxFrameLen = 8

// maxSeedChunk is the seed payload capacity of one GET_SEED response:
// 8 bytes minus the packet identifier and the remaining-length byte.
const maxSeedChunk = MaxFrameLen - 2

// Request is an encodable XCP command. Encode is pure and cannot fail for a
// valid value; the result never exceeds MaxFrameLen bytes.
type Request interface {
	// Encode returns the raw CAN payload for the request.
	Encode() []byte
	// Code returns the command code in the first payload byte.
	Code() byte
	// Name returns the command name used in error context.
	Name() string
}

// ConnectRequest starts an XCP session.
type ConnectRequest struct {
	Mode ConnectMode
}

// Encode implements Request
func (r ConnectRequest) Encode() []byte {
	return []byte{CmdConnect, byte(r.Mode)}
}

// Code implements Request
func (ConnectRequest) Code() byte { return CmdConnect }

// Name implements Request
func (ConnectRequest) Name() string { return "CONNECT" }

// DisconnectRequest ends the current XCP session.
type DisconnectRequest struct{}

// Encode implements Request
func (DisconnectRequest) Encode() []byte {
	return []byte{CmdDisconnect}
}

// Code implements Request
func (DisconnectRequest) Code() byte { return CmdDisconnect }

// Name implements Request
func (DisconnectRequest) Name() string { return "DISCONNECT" }

// GetSeedRequest retrieves one chunk of the seed for a protected resource.
// The resource selector is only on the wire in SeedModeStart requests.
type GetSeedRequest struct {
	Mode     SeedMode
	Resource ResourceFlags
}

// Encode implements Request
func (r GetSeedRequest) Encode() []byte {
	if r.Mode == SeedModeStart {
		return []byte{CmdGetSeed, byte(SeedModeStart), byte(r.Resource)}
	}
	return []byte{CmdGetSeed, byte(SeedModeContinue)}
}

// Code implements Request
func (GetSeedRequest) Code() byte { return CmdGetSeed }

// Name implements Request
func (GetSeedRequest) Name() string { return "GET_SEED" }

// UnlockRequest sends one key segment of a seed & key exchange. Remaining is
// the total key bytes still to be sent including this segment; Key holds at
// most MaxFrameLen-2 bytes.
type UnlockRequest struct {
	Key       []byte
	Remaining byte
}

// Encode implements Request
func (r UnlockRequest) Encode() []byte {
	out := make([]byte, 0, MaxFrameLen)
	out = append(out, CmdUnlock, r.Remaining)
	return append(out, r.Key...)
}

// Code implements Request
func (UnlockRequest) Code() byte { return CmdUnlock }

// Name implements Request
func (UnlockRequest) Name() string { return "UNLOCK" }

// RawRequest issues an arbitrary XCP command. It is the escape hatch for
// services without a dedicated request type.
type RawRequest struct {
	Args []byte
	Cmd  byte
}

// Encode implements Request
func (r RawRequest) Encode() []byte {
	out := make([]byte, 0, len(r.Args)+1)
	out = append(out, r.Cmd)
	return append(out, r.Args...)
}

// Code implements Request
func (r RawRequest) Code() byte { return r.Cmd }

// Name implements Request
func (r RawRequest) Name() string { return fmt.Sprintf("CMD_%02X", r.Cmd) }

// ConnectResponse is the decoded positive response to CONNECT.
type ConnectResponse struct {
	Resource         ResourceFlags
	CommMode         CommModeBasic
	MaxCTO           byte
	MaxDTO           uint16
	ProtocolVersion  byte
	TransportVersion byte
}

// SeedChunk is one decoded positive GET_SEED response. Remaining is the
// total seed bytes still to be fetched as reported by the slave at the time
// of this response; Data carries up to 6 seed bytes.
type SeedChunk struct {
	Data      []byte
	Remaining byte
}

// connectResponseLen is the fixed size of a positive CONNECT response.
const connectResponseLen = 8

// seedChunkMinLen covers the packet identifier and the remaining-length
// byte; the final chunk may carry no data at all.
const seedChunkMinLen = 2

// CheckResponse classifies the leading byte of a response frame. It returns
// nil for a positive response, a *SlaveError carrying the verbatim reason
// byte for a negative response, and ErrMalformedFrame for anything else,
// including an empty frame or a truncated negative response.
func CheckResponse(command string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%s: empty frame: %w", command, ErrMalformedFrame)
	}
	switch data[0] {
	case pidPositive:
		return nil
	case pidNegative:
		if len(data) < 2 {
			return fmt.Errorf("%s: negative response without reason byte: %w", command, ErrMalformedFrame)
		}
		return NewSlaveError(command, data[1])
	default:
		return fmt.Errorf("%s: unrecognized packet identifier 0x%02X: %w", command, data[0], ErrMalformedFrame)
	}
}

// DecodeConnectResponse decodes a raw response frame to CONNECT. A frame
// shorter than 8 bytes is malformed, never zero-padded; bytes past the
// fixed layout are ignored.
func DecodeConnectResponse(data []byte) (*ConnectResponse, error) {
	if err := CheckResponse("CONNECT", data); err != nil {
		return nil, err
	}
	if len(data) < connectResponseLen {
		return nil, fmt.Errorf("CONNECT: response %d bytes, need %d: %w",
			len(data), connectResponseLen, ErrMalformedFrame)
	}
	return &ConnectResponse{
		Resource:         ResourceFlags(data[1]),
		CommMode:         CommModeBasic(data[2]),
		MaxCTO:           data[3],
		MaxDTO:           binary.BigEndian.Uint16(data[4:6]),
		ProtocolVersion:  data[6],
		TransportVersion: data[7],
	}, nil
}

// DecodeSeedChunk decodes a raw response frame to GET_SEED. The chunk
// carries only as many data bytes as the frame does, at most 6.
func DecodeSeedChunk(data []byte) (*SeedChunk, error) {
	if err := CheckResponse("GET_SEED", data); err != nil {
		return nil, err
	}
	if len(data) < seedChunkMinLen {
		return nil, fmt.Errorf("GET_SEED: response %d bytes, need %d: %w",
			len(data), seedChunkMinLen, ErrMalformedFrame)
	}
	end := len(data)
	if end > seedChunkMinLen+maxSeedChunk {
		end = seedChunkMinLen + maxSeedChunk
	}
	chunk := &SeedChunk{
		Remaining: data[1],
		Data:      make([]byte, end-seedChunkMinLen),
	}
	copy(chunk.Data, data[seedChunkMinLen:end])
	return chunk, nil
}
