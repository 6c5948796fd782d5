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

package types

import (
	"github.com/google/uuid"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
)

// SignalAccount is the persistent state of the local device.
type SignalAccount struct {
	Number   string
	Password string

	ACI      uuid.UUID
	DeviceID uint32

	RegistrationID uint32 // 14-bit value, per the Signal wire format

	IdentityKeyPair *libsignalgo.IdentityKeyPair

	PINMasterKey []byte // 32 bytes when a registration lock PIN is set

	Registered bool

	SelfUnidentifiedAccessKey []byte

	Discoverable bool

	EncryptedDeviceName []byte
}

// ACIServiceID returns the libsignalgo service id for the account's ACI,
// or the empty value if registration hasn't produced one yet.
func (a *SignalAccount) ACIServiceID() libsignalgo.ServiceID {
	if a == nil || a.ACI == uuid.Nil {
		return libsignalgo.EmptyServiceID
	}
	return libsignalgo.NewACIServiceID(a.ACI)
}

// HasACI reports whether the account has ever completed verification.
func (a *SignalAccount) HasACI() bool {
	return a != nil && a.ACI != uuid.Nil
}

// ClearRegistrationLock drops the PIN-derived master key, used when
// finishing a verification that carried no registration lock.
func (a *SignalAccount) ClearRegistrationLock() {
	a.PINMasterKey = nil
}
