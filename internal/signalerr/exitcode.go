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

package signalerr

import "errors"

// Exit codes per spec.md §7.
const (
	ExitSuccess      = 0
	ExitUserError    = 1
	ExitUnexpected   = 2
	ExitIOError      = 3
	ExitUntrustedKey = 4
)

// ExitCode maps an error returned by the registration core to the process
// exit code the cmd/sigcli entry points use. A nil error is success; any
// error kind not covered by the taxonomy is treated as unexpected.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var userErr *UserError
	var captchaErr *CaptchaRequiredError
	var pinLockedErr *PinLockedError
	var incorrectPinErr *IncorrectPinError
	var ioErr *IOError
	var untrustedKeyErr *UntrustedKeyError
	switch {
	case errors.As(err, &userErr), errors.As(err, &captchaErr), errors.As(err, &pinLockedErr), errors.As(err, &incorrectPinErr):
		return ExitUserError
	case errors.As(err, &ioErr):
		return ExitIOError
	case errors.As(err, &untrustedKeyErr):
		return ExitUntrustedKey
	default:
		return ExitUnexpected
	}
}
