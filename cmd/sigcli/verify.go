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

package main

import (
	"context"
	"fmt"

	"go.sigcli.dev/sigcli/internal/signalerr"
)

// runVerify submits a received verification code, retrying through the
// registration-lock PIN flow when --pin is set.
func runVerify(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return &signalerr.UserError{Message: "usage: sigcli verify <code>"}
	}
	code := args[0]

	var pinArg *string
	if *pin != "" {
		pinArg = pin
	}

	// register ran to completion in an earlier process, so the in-memory
	// state machine must be fast-forwarded past the code request it made.
	mgr := a.newManager()
	mgr.ResumeCodeRequested()

	if err := mgr.VerifyAccount(ctx, code, pinArg); err != nil {
		return err
	}

	if err := a.save(); err != nil {
		return &signalerr.IOError{Cause: err}
	}

	fmt.Printf("registered as %s (device %d)\n", a.account.ACI, a.account.DeviceID)
	return nil
}
