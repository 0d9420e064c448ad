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
)

// Error categories for error handling and retry logic
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportClosed  = errors.New("transport is closed")
	ErrBusError         = errors.New("CAN bus error")

	// Protocol errors - not retryable without caller intervention
	ErrMalformedFrame = errors.New("malformed response frame")
	ErrFrameTooLong   = errors.New("frame exceeds 8 data bytes")

	// Session errors
	ErrNotConnected     = errors.New("no active XCP session")
	ErrAlreadyConnected = errors.New("XCP session already established")

	// Platform errors
	ErrUnsupportedPlatform = errors.New("transport not supported on this platform")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps bus-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Iface     string    // CAN interface or port identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Iface != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Iface, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SlaveError is a negative response from the XCP slave. The reason byte is
// kept verbatim so unrecognized codes survive round trips to the caller.
type SlaveError struct {
	Command string
	Code    byte
}

func (e *SlaveError) Error() string {
	return fmt.Sprintf("%s rejected by slave: 0x%02X (%s)", e.Command, e.Code, xcpErrorMeaning(e.Code))
}

// XCP negative response reason codes (part 1 of the ASAM XCP specification).
const (
	errCmdSynch       byte = 0x00
	errCmdBusy        byte = 0x10
	errDaqActive      byte = 0x11
	errPgmActive      byte = 0x12
	errCmdUnknown     byte = 0x20
	errCmdSyntax      byte = 0x21
	errOutOfRange     byte = 0x22
	errWriteProtected byte = 0x23
	errAccessDenied   byte = 0x24
	errAccessLocked   byte = 0x25
	errPageNotValid   byte = 0x26
	errModeNotValid   byte = 0x27
	errSegmentInvalid byte = 0x28
	errSequence       byte = 0x29
	errDaqConfig      byte = 0x2A
	errMemoryOverflow byte = 0x30
	errGeneric        byte = 0x31
	errVerify         byte = 0x32
	errResourceTemp   byte = 0x33
	errSubcmdUnknown  byte = 0x34
)

// xcpErrorMeaning returns a human-readable meaning for XCP negative
// response codes.
func xcpErrorMeaning(code byte) string {
	meanings := map[byte]string{
		errCmdSynch:       "command processor synchronization",
		errCmdBusy:        "command was not executed, slave busy",
		errDaqActive:      "command rejected because DAQ is running",
		errPgmActive:      "command rejected because PGM is running",
		errCmdUnknown:     "unknown or unimplemented command",
		errCmdSyntax:      "command syntax invalid",
		errOutOfRange:     "command parameter out of range",
		errWriteProtected: "memory location is write protected",
		errAccessDenied:   "memory location is not accessible",
		errAccessLocked:   "access denied, seed & key required",
		errPageNotValid:   "selected page not available",
		errModeNotValid:   "selected mode not available",
		errSegmentInvalid: "selected segment not valid",
		errSequence:       "sequence error",
		errDaqConfig:      "DAQ configuration not valid",
		errMemoryOverflow: "memory overflow",
		errGeneric:        "generic error",
		errVerify:         "slave program verify failed",
		errResourceTemp:   "resource temporarily not accessible",
		errSubcmdUnknown:  "unknown or unimplemented sub command",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown error"
}

// IsAccessLocked returns true if the slave requires a seed & key exchange
// before the command is allowed.
func (e *SlaveError) IsAccessLocked() bool {
	return e.Code == errAccessLocked
}

// IsBusy returns true if the slave was temporarily unable to execute the
// command.
func (e *SlaveError) IsBusy() bool {
	return e.Code == errCmdBusy || e.Code == errResourceTemp
}

// IsUnknownCommand returns true if the slave does not implement the command.
func (e *SlaveError) IsUnknownCommand() bool {
	return e.Code == errCmdUnknown || e.Code == errSubcmdUnknown
}

// IsRetryable returns true if the error is potentially retryable. Retrying
// always means repeating the whole logical operation; single exchanges are
// never resent internally.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var se *SlaveError
	if errors.As(err, &se) {
		// Busy-style rejections may clear on their own. Everything else
		// needs a precondition fixed first.
		return se.IsBusy()
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrBusError):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the transport is gone and the
// session cannot continue. This is distinct from IsRetryable, which reports
// whether a logical operation can be repeated.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrUnsupportedPlatform),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// IsSlaveError reports whether err is a negative response, returning the
// reason byte when it is.
func IsSlaveError(err error) (byte, bool) {
	var se *SlaveError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// Error constructors for consistent error creation

// NewSlaveError creates a negative response error for the named command
func NewSlaveError(command string, code byte) *SlaveError {
	return &SlaveError{Command: command, Code: code}
}

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, iface string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Iface:     iface,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, iface string) *TransportError {
	return NewTransportError(op, iface, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewBusError creates a CAN bus error (transient)
func NewBusError(op, iface string) *TransportError {
	return NewTransportError(op, iface, ErrBusError, ErrorTypeTransient)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, iface string) *TransportError {
	return NewTransportError(op, iface, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, iface string) *TransportError {
	return NewTransportError(op, iface, ErrTransportRead, ErrorTypeTransient)
}

// NewTransportClosedError creates an interface-closed error (permanent)
func NewTransportClosedError(op, iface string) *TransportError {
	return NewTransportError(op, iface, ErrTransportClosed, ErrorTypePermanent)
}
