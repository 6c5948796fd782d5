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

package protocolstore_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/protocolstore"
	"go.sigcli.dev/sigcli/internal/recipientstore"
	"go.sigcli.dev/sigcli/internal/types"
)

func newTestStore(t *testing.T) (*protocolstore.Store, *recipientstore.Store) {
	t.Helper()
	rawDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	db, err := dbutil.NewWithDB(rawDB, "sqlite3")
	require.NoError(t, err)

	recipients := recipientstore.New(t.TempDir()+"/recipients.json", zerolog.Nop())
	identityKeyPair, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)

	ps := protocolstore.New(db, recipients, identityKeyPair, 12345, zerolog.Nop())
	require.NoError(t, ps.Upgrade(context.Background()))
	return ps, recipients
}

func TestSaveIdentityKeyTrustOnFirstUse(t *testing.T) {
	ps, _ := newTestStore(t)
	ctx := context.Background()
	svc := libsignalgo.NewACIServiceID(uuid.New())

	keyPair, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)
	key := keyPair.GetIdentityKey()

	trusted, err := ps.IsTrustedIdentity(ctx, svc, key, libsignalgo.SignalDirectionSending)
	require.NoError(t, err)
	require.True(t, trusted, "an identity never seen before must be trusted by default")

	replacing, err := ps.SaveIdentityKey(ctx, svc, key)
	require.NoError(t, err)
	require.False(t, replacing)

	trusted, err = ps.IsTrustedIdentity(ctx, svc, key, libsignalgo.SignalDirectionSending)
	require.NoError(t, err)
	require.False(t, trusted, "a freshly-saved identity key starts UNTRUSTED")
}

func TestSaveIdentityKeyReplayIsNoop(t *testing.T) {
	ps, _ := newTestStore(t)
	ctx := context.Background()
	svc := libsignalgo.NewACIServiceID(uuid.New())

	keyPair, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)
	key := keyPair.GetIdentityKey()

	_, err = ps.SaveIdentityKey(ctx, svc, key)
	require.NoError(t, err)

	replacing, err := ps.SaveIdentityKey(ctx, svc, key)
	require.NoError(t, err)
	require.False(t, replacing, "re-saving the identical key must not report a replacement")
}

func TestSaveIdentityKeyChangeDowngradesTrust(t *testing.T) {
	ps, _ := newTestStore(t)
	ctx := context.Background()
	svc := libsignalgo.NewACIServiceID(uuid.New())

	first, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)
	_, err = ps.SaveIdentityKey(ctx, svc, first.GetIdentityKey())
	require.NoError(t, err)
	require.NoError(t, ps.SetIdentityTrustLevel(ctx, svc, types.TrustTrustedVerified))

	trusted, err := ps.IsTrustedIdentity(ctx, svc, first.GetIdentityKey(), libsignalgo.SignalDirectionSending)
	require.NoError(t, err)
	require.True(t, trusted)

	second, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)
	replacing, err := ps.SaveIdentityKey(ctx, svc, second.GetIdentityKey())
	require.NoError(t, err)
	require.True(t, replacing, "a genuinely new key must report a replacement")

	trusted, err = ps.IsTrustedIdentity(ctx, svc, second.GetIdentityKey(), libsignalgo.SignalDirectionSending)
	require.NoError(t, err)
	require.False(t, trusted, "a key change always downgrades trust, even from TRUSTED_VERIFIED")

	info, err := ps.GetIdentityInfo(ctx, svc)
	require.NoError(t, err)
	require.Len(t, info.History(), 1)
	equal, err := info.History()[0].IdentityKey.Equal(first.GetIdentityKey())
	require.NoError(t, err)
	require.True(t, equal, "the superseded key must be preserved in history")
}

func TestPreKeyRoundTrip(t *testing.T) {
	ps, _ := newTestStore(t)
	ctx := context.Background()

	privKey, err := libsignalgo.GeneratePrivateKey()
	require.NoError(t, err)
	record, err := libsignalgo.NewPreKeyRecordFromPrivateKey(7, privKey)
	require.NoError(t, err)

	require.NoError(t, ps.StorePreKey(ctx, 7, record))
	loaded, err := ps.LoadPreKey(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.NoError(t, ps.RemovePreKey(ctx, 7))
	loaded, err = ps.LoadPreKey(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

// establishSession drives a real X3DH handshake into ps so a session row
// exists for bobAddress, grounded on the bundle-construction steps
// libsignalgo's own session tests use.
func establishSession(t *testing.T, ps *protocolstore.Store, bobAddress *libsignalgo.Address) {
	t.Helper()
	ctx := context.Background()

	bobIdentity, err := libsignalgo.GenerateIdentityKeyPair()
	require.NoError(t, err)
	bobSignedPreKey, err := libsignalgo.GeneratePrivateKey()
	require.NoError(t, err)
	bobSignedPreKeyPublic, err := bobSignedPreKey.GetPublicKey()
	require.NoError(t, err)
	bobSignedPreKeyPublicSerialized, err := bobSignedPreKeyPublic.Serialize()
	require.NoError(t, err)
	bobSignature, err := bobIdentity.GetPrivateKey().Sign(bobSignedPreKeyPublicSerialized)
	require.NoError(t, err)

	bundle, err := libsignalgo.NewPreKeyBundle(
		777, 1,
		0, nil,
		3006, bobSignedPreKeyPublic, bobSignature,
		0, nil, nil,
		bobIdentity.GetIdentityKey(),
	)
	require.NoError(t, err)
	require.NoError(t, libsignalgo.ProcessPreKeyBundle(ctx, bundle, bobAddress, ps, ps))
}

func TestArchiveSessionHidesButKeepsRecord(t *testing.T) {
	ps, _ := newTestStore(t)
	ctx := context.Background()
	aci := uuid.New()
	addr, err := libsignalgo.NewACIServiceID(aci).Address(1)
	require.NoError(t, err)

	establishSession(t, ps, addr)

	exists, err := ps.ContainsSession(ctx, addr)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, ps.ArchiveSession(ctx, addr))

	exists, err = ps.ContainsSession(ctx, addr)
	require.NoError(t, err)
	require.False(t, exists, "an archived session must not be reported as current")

	loaded, err := ps.LoadSession(ctx, addr)
	require.NoError(t, err)
	require.Nil(t, loaded, "an archived session must not be returned by LoadSession")
}

func TestMergeRecipientsReroutesSessionsAndIdentities(t *testing.T) {
	ps, recipients := newTestStore(t)
	ctx := context.Background()
	aci := uuid.New()
	number := "+15551234567"

	// Low trust binds the number to its own anonymous record first.
	_, err := recipients.Resolve(ctx, types.NewNumberAddress(number), false)
	require.NoError(t, err)

	svc := libsignalgo.NewACIServiceID(aci)
	addr, err := svc.Address(1)
	require.NoError(t, err)
	establishSession(t, ps, addr)

	// High trust merges the uuid-only and number-only records together.
	mergedID, err := recipients.Resolve(ctx, types.Address{UUID: aci, Number: number}, true)
	require.NoError(t, err)

	exists, err := ps.ContainsSession(ctx, addr)
	require.NoError(t, err)
	require.True(t, exists, "session rows must still resolve after the owning recipients merged")

	got := recipients.Get(mergedID)
	require.NotNil(t, got)
	require.Equal(t, number, got.Address.Number)
	require.Equal(t, aci, got.Address.UUID)
}
