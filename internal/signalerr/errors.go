// sigcli - A command-line client for the Signal secure-messaging service.
// Copyright (C) 2026 sigcli contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package signalerr defines the error taxonomy (spec.md §7) the
// registration core raises, and the exit-code mapping the CLI applies to
// it. Every kind is a distinct type so callers can recover it with
// errors.As instead of matching on string content.
package signalerr

import (
	"fmt"
	"time"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/types"
)

// UserError covers malformed input the caller can fix without retrying
// the network: a bad CAPTCHA token, garbled verification code, and so on.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

// CaptchaRequiredError is raised when the server demands a CAPTCHA before
// it will issue a verification code.
type CaptchaRequiredError struct {
	ServerMessage string
}

func (e *CaptchaRequiredError) Error() string {
	return fmt.Sprintf("captcha required: %s", e.ServerMessage)
}

// PinLockedError is raised when registration lock is in force and no PIN
// was supplied to unlock it.
type PinLockedError struct {
	TimeRemaining time.Duration
}

func (e *PinLockedError) Error() string {
	return fmt.Sprintf("registration lock in force, %s remaining", e.TimeRemaining)
}

// IncorrectPinError is raised when the Key Backup Service enclave rejects
// the supplied PIN.
type IncorrectPinError struct {
	TriesRemaining int
}

func (e *IncorrectPinError) Error() string {
	return fmt.Sprintf("incorrect PIN, %d tries remaining", e.TriesRemaining)
}

// IOError wraps any transport, enclave-attestation, or local storage
// failure. It is the default home for a service-response execution error.
type IOError struct {
	Cause error
}

func (e *IOError) Error() string { return fmt.Sprintf("i/o error: %v", e.Cause) }
func (e *IOError) Unwrap() error { return e.Cause }

// UntrustedKeyError is raised when a remote identity key changes in the
// middle of a flow that assumed it was stable. History carries whatever
// prior keys the local protocol store retained for the same address, most
// recent first.
type UntrustedKeyError struct {
	Address types.Address
	NewKey  *libsignalgo.IdentityKey
	History []types.IdentityInfo
}

func (e *UntrustedKeyError) Error() string {
	return fmt.Sprintf("untrusted identity key change for %s", e.Address)
}

// UnexpectedError wraps an assertion violation: a state the core's own
// invariants say cannot occur (e.g. a second LOCKED response after a
// successful KBS PIN exchange).
type UnexpectedError struct {
	Cause error
}

func (e *UnexpectedError) Error() string { return fmt.Sprintf("unexpected error: %v", e.Cause) }
func (e *UnexpectedError) Unwrap() error { return e.Cause }

// Unexpectedf builds an UnexpectedError from a format string, mirroring
// fmt.Errorf's ergonomics for the one error kind that is always a bug.
func Unexpectedf(format string, args ...any) *UnexpectedError {
	return &UnexpectedError{Cause: fmt.Errorf(format, args...)}
}
