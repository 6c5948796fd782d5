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

package registration

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/signalservice"
)

// preKeyBatchSize is how many one-time pre-keys a refresh uploads, the
// same order of magnitude the server's low-water-mark prompts for.
const preKeyBatchSize = 100

// ProtocolKeyStore is the subset of protocolstore.Store a pre-key refresh
// needs: enough to mint and persist a fresh batch without this package
// importing the storage layer's full surface.
type ProtocolKeyStore interface {
	GetIdentityKeyPair(ctx context.Context) (*libsignalgo.IdentityKeyPair, error)
	NextPreKeyID(ctx context.Context) (uint32, error)
	StorePreKey(ctx context.Context, id uint32, preKey *libsignalgo.PreKeyRecord) error
	NextSignedPreKeyID(ctx context.Context) (uint32, error)
	StoreSignedPreKey(ctx context.Context, id uint32, preKey *libsignalgo.SignedPreKeyRecord) error
}

// StorePreKeyRefresher is the PreKeyRefresher RegistrationManager uses in
// production: it mints a fresh one-time batch and signed pre-key,
// persists them locally, then uploads the public halves.
type StorePreKeyRefresher struct {
	Store   ProtocolKeyStore
	Service signalservice.AccountService
}

var _ PreKeyRefresher = (*StorePreKeyRefresher)(nil)

func (r *StorePreKeyRefresher) RefreshPreKeys(ctx context.Context) error {
	identity, err := r.Store.GetIdentityKeyPair(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identity key pair: %w", err)
	}
	identityKeyBytes, err := identity.GetIdentityKey().Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize identity key: %w", err)
	}

	nextID, err := r.Store.NextPreKeyID(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate pre-key ids: %w", err)
	}
	upload := signalservice.PreKeyUpload{IdentityKey: identityKeyBytes}
	for i := uint32(0); i < preKeyBatchSize; i++ {
		id := nextID + i
		priv, err := libsignalgo.GeneratePrivateKey()
		if err != nil {
			return fmt.Errorf("failed to generate pre-key %d: %w", id, err)
		}
		record, err := libsignalgo.NewPreKeyRecordFromPrivateKey(id, priv)
		if err != nil {
			return fmt.Errorf("failed to build pre-key record %d: %w", id, err)
		}
		if err := r.Store.StorePreKey(ctx, id, record); err != nil {
			return fmt.Errorf("failed to persist pre-key %d: %w", id, err)
		}
		pub, err := priv.GetPublicKey()
		if err != nil {
			return fmt.Errorf("failed to derive pre-key %d public half: %w", id, err)
		}
		pubBytes, err := pub.Serialize()
		if err != nil {
			return fmt.Errorf("failed to serialize pre-key %d: %w", id, err)
		}
		upload.PreKeys = append(upload.PreKeys, signalservice.UploadedPreKey{ID: id, PublicKey: pubBytes})
	}

	signedID, err := r.Store.NextSignedPreKeyID(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate signed pre-key id: %w", err)
	}
	signedPriv, err := libsignalgo.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("failed to generate signed pre-key: %w", err)
	}
	signedPub, err := signedPriv.GetPublicKey()
	if err != nil {
		return fmt.Errorf("failed to derive signed pre-key public half: %w", err)
	}
	signedPubBytes, err := signedPub.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize signed pre-key: %w", err)
	}
	signature, err := identity.GetPrivateKey().Sign(signedPubBytes)
	if err != nil {
		return fmt.Errorf("failed to sign signed pre-key: %w", err)
	}
	signedRecord, err := libsignalgo.NewSignedPreKeyRecordFromPrivateKey(signedID, time.Now(), signedPriv, signature)
	if err != nil {
		return fmt.Errorf("failed to build signed pre-key record: %w", err)
	}
	if err := r.Store.StoreSignedPreKey(ctx, signedID, signedRecord); err != nil {
		return fmt.Errorf("failed to persist signed pre-key: %w", err)
	}
	upload.SignedPreKey = signalservice.UploadedSignedPreKey{ID: signedID, PublicKey: signedPubBytes, Signature: signature}

	if err := r.Service.UploadPreKeys(ctx, upload); err != nil {
		return fmt.Errorf("failed to upload pre-key batch: %w", err)
	}
	return nil
}
