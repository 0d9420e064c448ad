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

package slcan

import (
	"testing"

	"github.com/openxcp/go-xcp/internal/canframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		want  string
		frame canframe.Frame
	}{
		{
			name:  "standard data frame",
			frame: mustFrame(t, 0x700, []byte{0xFF, 0x00}),
			want:  "t7002FF00\r",
		},
		{
			name:  "standard frame no data",
			frame: mustFrame(t, 0x701, nil),
			want:  "t7010\r",
		},
		{
			name:  "extended data frame",
			frame: mustFrame(t, 0x18DB33F1, []byte{0x12}),
			want:  "T18DB33F1112\r",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EncodeFrame(tt.frame))
		})
	}
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		record  string
		wantID  uint32
		want    []byte
		wantExt bool
		wantErr bool
	}{
		{
			name:   "seed chunk response",
			record: "t7016FF0411223344",
			wantID: 0x701,
			want:   []byte{0xFF, 0x04, 0x11, 0x22, 0x33, 0x44},
		},
		{
			name:    "extended frame",
			record:  "T18DB33F1201FF",
			wantID:  0x18DB33F1,
			want:    []byte{0x01, 0xFF},
			wantExt: true,
		},
		{
			name:    "command echo is not a frame",
			record:  "z",
			wantErr: true,
		},
		{
			name:    "truncated data",
			record:  "t70128A",
			wantErr: true,
		},
		{
			name:    "bad DLC digit",
			record:  "t7019FF",
			wantErr: true,
		},
		{
			name:    "empty record",
			record:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frame, err := ParseFrame(tt.record)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, frame.ID)
			assert.Equal(t, tt.wantExt, frame.Extended)
			assert.Equal(t, tt.want, append([]byte(nil), frame.Payload()...))
		})
	}
}

func TestEncodeParse_RoundTrip(t *testing.T) {
	t.Parallel()

	orig := mustFrame(t, 0x700, []byte{0x12, 0x00, 0x01})
	record := EncodeFrame(orig)
	require.Equal(t, byte('\r'), record[len(record)-1])

	got, err := ParseFrame(record[:len(record)-1])
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func mustFrame(t *testing.T, id uint32, data []byte) canframe.Frame {
	t.Helper()
	frame, err := canframe.New(id, data)
	require.NoError(t, err)
	return frame
}
