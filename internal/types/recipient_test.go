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

package types_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sigcli.dev/sigcli/internal/types"
)

func TestCapabilitySetRoundTripsKnownMembers(t *testing.T) {
	cs := types.NewCapabilitySet(types.CapabilityGV2, types.CapabilityPNI)

	data, err := json.Marshal(cs)
	require.NoError(t, err)

	var out types.CapabilitySet
	require.NoError(t, json.Unmarshal(data, &out))

	assert.True(t, out.Has(types.CapabilityGV2))
	assert.True(t, out.Has(types.CapabilityPNI))
	assert.Len(t, out, 2)
}

// A capability name the client doesn't yet recognize is dropped on load
// rather than rejected or preserved opaquely.
func TestCapabilitySetDropsUnknownMembersOnLoad(t *testing.T) {
	var cs types.CapabilitySet
	err := json.Unmarshal([]byte(`["GV2","SOME_FUTURE_CAPABILITY"]`), &cs)
	require.NoError(t, err)

	assert.True(t, cs.Has(types.CapabilityGV2))
	assert.Len(t, cs, 1)
}

func TestCapabilitySetMarshalsEmptySetAsEmptyArray(t *testing.T) {
	cs := types.NewCapabilitySet()
	data, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestAddressCompatible(t *testing.T) {
	a := types.NewNumberAddress("+15550000001")
	b := types.NewNumberAddress("+15550000002")
	assert.False(t, a.Compatible(b))

	c := types.Address{}
	assert.True(t, a.Compatible(c))
	assert.True(t, c.Compatible(a))
}

func TestAddressValid(t *testing.T) {
	assert.False(t, types.Address{}.Valid())
	assert.True(t, types.NewNumberAddress("+15550000001").Valid())
}
