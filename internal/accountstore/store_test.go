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

package accountstore_test

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.sigcli.dev/sigcli/internal/accountstore"
)

func TestLoadMissingFileSeedsFreshAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")

	account, err := accountstore.Load(path)
	require.NoError(t, err)
	require.NotNil(t, account.IdentityKeyPair)
	require.False(t, account.HasACI())
	require.NotZero(t, account.RegistrationID)
}

func TestSaveThenLoadRoundTripsAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")

	account, err := accountstore.Load(path)
	require.NoError(t, err)
	account.Number = "+15551234567"
	account.ACI = uuid.New()
	account.Registered = true
	account.PINMasterKey = []byte("0123456789abcdef0123456789abcdef")

	require.NoError(t, accountstore.Save(path, account))

	loaded, err := accountstore.Load(path)
	require.NoError(t, err)
	require.Equal(t, account.Number, loaded.Number)
	require.Equal(t, account.ACI, loaded.ACI)
	require.Equal(t, account.Registered, loaded.Registered)
	require.Equal(t, account.PINMasterKey, loaded.PINMasterKey)

	origPub, err := account.IdentityKeyPair.GetPublicKey().Serialize()
	require.NoError(t, err)
	loadedPub, err := loaded.IdentityKeyPair.GetPublicKey().Serialize()
	require.NoError(t, err)
	require.Equal(t, origPub, loadedPub)
}
