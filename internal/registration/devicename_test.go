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

package registration_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/registration"
)

func TestEncryptDecryptDeviceNameRoundTrips(t *testing.T) {
	identity, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)

	wrapped, err := registration.EncryptDeviceName("my laptop", identity.GetPublicKey())
	require.NoError(t, err)

	name, err := registration.DecryptDeviceName(wrapped, identity.GetPrivateKey())
	require.NoError(t, err)
	require.Equal(t, "my laptop", name)
}

func TestDecryptDeviceNameRejectsTamperedCiphertext(t *testing.T) {
	identity, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)

	wrapped, err := registration.EncryptDeviceName("my laptop", identity.GetPublicKey())
	require.NoError(t, err)
	wrapped[len(wrapped)-1] ^= 0xFF

	_, err = registration.DecryptDeviceName(wrapped, identity.GetPrivateKey())
	require.Error(t, err)
}
