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

package recipientstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sigcli.dev/sigcli/internal/recipientstore"
	"go.sigcli.dev/sigcli/internal/types"
)

func newTestStore(t *testing.T) *recipientstore.Store {
	t.Helper()
	return recipientstore.New("", zerolog.Nop())
}

// Scenario 1: new user, uuid only.
func TestResolveNewUserUUIDOnly(t *testing.T) {
	s := newTestStore(t)
	u1 := uuid.New()

	id, err := s.Resolve(context.Background(), types.NewUUIDAddress(u1), false)
	require.NoError(t, err)
	assert.Equal(t, types.ID(1), id)

	r := s.Get(id)
	require.NotNil(t, r)
	assert.Equal(t, u1, r.Address.UUID)
	assert.False(t, r.Address.HasNumber())
}

// Scenario 2: low-trust sighting of a number alongside a uuid drops the
// number, never binding an unverified number.
func TestResolveLowTrustBothFieldsDropsNumber(t *testing.T) {
	s := newTestStore(t)
	u1 := uuid.New()

	id, err := s.Resolve(context.Background(), types.Address{UUID: u1, Number: "+15550000001"}, false)
	require.NoError(t, err)

	r := s.Get(id)
	require.NotNil(t, r)
	assert.Equal(t, u1, r.Address.UUID)
	assert.False(t, r.Address.HasNumber(), "low trust must never bind an unverified number")
}

// Scenario 3: high-trust binding attaches the number, and is idempotent.
func TestResolveHighTrustBindingIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	u1 := uuid.New()

	id1, err := s.Resolve(context.Background(), types.NewUUIDAddress(u1), false)
	require.NoError(t, err)

	id2, err := s.Resolve(context.Background(), types.Address{UUID: u1, Number: "+15550000001"}, true)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, "+15550000001", s.Get(id2).Address.Number)

	id3, err := s.Resolve(context.Background(), types.Address{UUID: u1, Number: "+15550000001"}, true)
	require.NoError(t, err)
	assert.Equal(t, id1, id3, "re-running high-trust resolution must be idempotent")
}

// Scenario 4: merging two previously-separate recipients under a single
// high-trust address.
func TestResolveMergesTwoExistingRecipients(t *testing.T) {
	s := newTestStore(t)
	u1 := uuid.New()
	number := "+15550000001"

	idUUID, err := s.Resolve(context.Background(), types.NewUUIDAddress(u1), false)
	require.NoError(t, err)
	idNumber, err := s.Resolve(context.Background(), types.NewNumberAddress(number), false)
	require.NoError(t, err)
	require.NotEqual(t, idUUID, idNumber)

	var mergeCalls []struct{ dst, src types.ID }
	s.RegisterMergeSink(recipientstore.MergeSinkFunc(func(ctx context.Context, dst, src types.ID) error {
		mergeCalls = append(mergeCalls, struct{ dst, src types.ID }{dst, src})
		return nil
	}))

	merged, err := s.Resolve(context.Background(), types.Address{UUID: u1, Number: number}, true)
	require.NoError(t, err)
	assert.Equal(t, idUUID, merged)
	assert.Nil(t, s.Get(idNumber), "the merged-away recipient must no longer be live")
	assert.Equal(t, idUUID, s.ActualID(idNumber))
	require.Len(t, mergeCalls, 1, "merge callback must fire exactly once")
	assert.Equal(t, idUUID, mergeCalls[0].dst)
	assert.Equal(t, idNumber, mergeCalls[0].src)
}

// Scenario 5: number stealing. A high-trust address claims a number
// currently held by a different uuid; the number moves, no merge occurs.
func TestResolveNumberStealingReassignsWithoutMerging(t *testing.T) {
	s := newTestStore(t)
	u1, u2 := uuid.New(), uuid.New()
	number := "+15550000001"

	id1, err := s.Resolve(context.Background(), types.Address{UUID: u1, Number: number}, true)
	require.NoError(t, err)
	id2, err := s.Resolve(context.Background(), types.NewUUIDAddress(u2), false)
	require.NoError(t, err)

	var mergeFired bool
	s.RegisterMergeSink(recipientstore.MergeSinkFunc(func(ctx context.Context, dst, src types.ID) error {
		mergeFired = true
		return nil
	}))

	stolen, err := s.Resolve(context.Background(), types.Address{UUID: u2, Number: number}, true)
	require.NoError(t, err)
	assert.Equal(t, id2, stolen)

	assert.False(t, s.Get(id1).Address.HasNumber(), "the original holder must have its number stripped")
	assert.Equal(t, number, s.Get(id2).Address.Number)
	assert.False(t, mergeFired, "number stealing must not merge recipients")
}

func TestResolveRejectsEmptyAddress(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Resolve(context.Background(), types.Address{}, true)
	assert.Error(t, err)
}

func TestActualIDIsIdentityForLiveRecipient(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Resolve(context.Background(), types.NewUUIDAddress(uuid.New()), false)
	require.NoError(t, err)
	assert.Equal(t, id, s.ActualID(id))
}
