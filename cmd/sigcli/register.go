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

	"go.sigcli.dev/sigcli/internal/registration"
	"go.sigcli.dev/sigcli/internal/signalerr"
)

// runRegister requests a verification code, or silently reactivates an
// account that already has an ACI (registration.Manager.Register handles
// that branch internally).
func runRegister(ctx context.Context, a *app, args []string) error {
	if a.account.Number == "" {
		return &signalerr.UserError{Message: "no phone number configured; set number in the config file"}
	}

	mgr := a.newManager()
	channel := registration.ChannelSMS
	if *voice {
		channel = registration.ChannelVoice
	}
	if err := mgr.Register(ctx, channel, *captcha); err != nil {
		return err
	}

	if err := a.save(); err != nil {
		return &signalerr.IOError{Cause: err}
	}

	switch mgr.State() {
	case registration.StateReactivated:
		fmt.Println("account reactivated without a new verification code")
	default:
		fmt.Println("verification code requested; run `sigcli verify <code>` once it arrives")
	}
	return nil
}
