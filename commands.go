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

// XCP command codes (CTO packet identifiers, master to slave).
// Only CONNECT, DISCONNECT, GET_SEED and UNLOCK have dedicated request
// types in this package; the remaining services can be issued through
// RawRequest and Exchange.
const (
	CmdConnect             byte = 0xFF
	CmdDisconnect          byte = 0xFE
	CmdGetStatus           byte = 0xFD
	CmdSynch               byte = 0xFC
	CmdGetCommModeInfo     byte = 0xFB
	CmdGetID               byte = 0xFA
	CmdSetRequest          byte = 0xF9
	CmdGetSeed             byte = 0x12
	CmdUnlock              byte = 0xF7
	CmdSetMta              byte = 0xF6
	CmdUpload              byte = 0xF5
	CmdShortUpload         byte = 0xF4
	CmdBuildChecksum       byte = 0xF3
	CmdTransportLayerCmd   byte = 0xF2
	CmdUserCmd             byte = 0xF1
	CmdDownload            byte = 0xF0
	CmdDownloadNext        byte = 0xEF
	CmdDownloadMax         byte = 0xEE
	CmdShortDownload       byte = 0xED
	CmdModifyBits          byte = 0xEC
	CmdSetCalPage          byte = 0xEB
	CmdGetCalPage          byte = 0xEA
	CmdGetPagProcessorInfo byte = 0xE9
	CmdGetSegmentInfo      byte = 0xE8
	CmdGetPageInfo         byte = 0xE7
	CmdSetSegmentMode      byte = 0xE6
	CmdGetSegmentMode      byte = 0xE5
	CmdCopyCalPage         byte = 0xE4
	CmdClearDaqList        byte = 0xE3
	CmdSetDaqPtr           byte = 0xE2
	CmdWriteDaq            byte = 0xE1
	CmdSetDaqListMode      byte = 0xE0
	CmdGetDaqListMode      byte = 0xDF
	CmdStartStopDaqList    byte = 0xDE
	CmdStartStopSynch      byte = 0xDD
	CmdGetDaqClock         byte = 0xDC
	CmdReadDaq             byte = 0xDB
	CmdGetDaqProcessorInfo byte = 0xDA
	CmdGetDaqResolution    byte = 0xD9
	CmdGetDaqListInfo      byte = 0xD8
	CmdGetDaqEventInfo     byte = 0xD7
	CmdFreeDaq             byte = 0xD6
	CmdAllocDaq            byte = 0xD5
	CmdAllocOdt            byte = 0xD4
	CmdAllocOdtEntry       byte = 0xD3
	CmdProgramStart        byte = 0xD2
	CmdProgramClear        byte = 0xD1
	CmdProgram             byte = 0xD0
	CmdProgramReset        byte = 0xCF
	CmdGetPgmProcessorInfo byte = 0xCE
	CmdGetSectorInfo       byte = 0xCD
	CmdProgramPrepare      byte = 0xCC
	CmdProgramFormat       byte = 0xCB
	CmdProgramNext         byte = 0xCA
	CmdProgramMax          byte = 0xC9
	CmdProgramVerify       byte = 0xC8
)

// XCP response packet identifiers. The first byte of every CTO response
// is one of these; anything else is a malformed frame.
const (
	pidPositive byte = 0xFF
	pidNegative byte = 0xFE
)

// ConnectMode selects the session type requested by a CONNECT command.
type ConnectMode byte

const (
	// ConnectModeNormal - standard XCP session (default)
	ConnectModeNormal ConnectMode = 0x00
	// ConnectModeUserDefined - slave-specific session type
	ConnectModeUserDefined ConnectMode = 0x01
)

// SeedMode distinguishes the first GET_SEED request of a retrieval, which
// carries the resource selector, from the follow-up requests that fetch the
// remaining seed bytes.
type SeedMode byte

const (
	// SeedModeStart begins a new seed retrieval for a resource.
	SeedModeStart SeedMode = 0x00
	// SeedModeContinue fetches the remaining bytes of the current seed.
	SeedModeContinue SeedMode = 0x01
)

// ResourceFlags is the XCP resource availability/selection bitmask used in
// CONNECT responses and GET_SEED requests.
type ResourceFlags byte

const (
	// ResCalPag - calibration/paging resource
	ResCalPag ResourceFlags = 0x01
	// ResDaq - data acquisition resource
	ResDaq ResourceFlags = 0x04
	// ResStim - stimulation resource
	ResStim ResourceFlags = 0x08
	// ResPgm - programming resource
	ResPgm ResourceFlags = 0x10
)

// Has reports whether all resources in mask are set.
func (r ResourceFlags) Has(mask ResourceFlags) bool {
	return r&mask == mask
}

// CommModeBasic is the basic communication mode bitmask from a CONNECT
// response.
type CommModeBasic byte

// MSBFirst reports whether the slave uses Motorola (big-endian) byte order
// for multi-byte protocol fields.
func (c CommModeBasic) MSBFirst() bool {
	return c&0x01 != 0
}

// AddressGranularity returns the slave's address granularity in bytes
// (1, 2 or 4).
func (c CommModeBasic) AddressGranularity() int {
	switch (c >> 1) & 0x03 {
	case 0x01:
		return 2
	case 0x02:
		return 4
	default:
		return 1
	}
}

// SlaveBlockMode reports whether the slave supports block transfer mode.
func (c CommModeBasic) SlaveBlockMode() bool {
	return c&0x40 != 0
}

// Optional reports whether the slave implements GET_COMM_MODE_INFO.
func (c CommModeBasic) Optional() bool {
	return c&0x80 != 0
}
