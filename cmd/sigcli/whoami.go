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

	"go.sigcli.dev/sigcli/internal/types"
)

// runWhoami prints the persisted account's identity and registration
// state without talking to the network.
func runWhoami(ctx context.Context, a *app) error {
	acc := a.account
	fmt.Printf("number:       %s\n", orNone(acc.Number))
	fmt.Printf("aci:          %s\n", aciOrNone(acc))
	fmt.Printf("device id:    %d\n", acc.DeviceID)
	fmt.Printf("registered:   %t\n", acc.Registered)
	fmt.Printf("discoverable: %t\n", acc.Discoverable)
	fmt.Printf("lock set:     %t\n", len(acc.PINMasterKey) > 0)

	if acc.HasACI() {
		if r := a.recipients.ByAddress(types.NewUUIDAddress(acc.ACI)); r != nil {
			fmt.Printf("recipient id: %d\n", r.ID)
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func aciOrNone(acc *types.SignalAccount) string {
	if !acc.HasACI() {
		return "(none)"
	}
	return acc.ACI.String()
}
