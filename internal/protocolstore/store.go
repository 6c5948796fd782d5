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

// Package protocolstore implements the Signal Protocol storage contract
// (spec.md §4.2): identity keys, trust levels, pre-keys, signed pre-keys
// and sessions, keyed by (recipient, deviceId) rather than by the raw name
// string the protocol address carries, so that a recipient merge reroutes
// every associated key and session to the surviving recipient with one
// recipient-id UPDATE per table (MergeRecipients) instead of rewriting
// name strings.
package protocolstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/protocolstore/upgrades"
	"go.sigcli.dev/sigcli/internal/recipientstore"
	"go.sigcli.dev/sigcli/internal/types"
)

// Store is the local device's Signal Protocol key/session material.
type Store struct {
	db         *dbutil.Database
	recipients *recipientstore.Store
	log        zerolog.Logger

	identityKeyPair     *libsignalgo.IdentityKeyPair
	localRegistrationID uint32

	// writeMu serializes all writes, satisfying the §5 contract that the
	// protocol store internally serializes writes it receives from a merge
	// callback invoked outside the recipient store's own mutex.
	writeMu sync.Mutex
}

var _ libsignalgo.IdentityKeyStore = (*Store)(nil)
var _ libsignalgo.PreKeyStore = (*Store)(nil)
var _ libsignalgo.SignedPreKeyStore = (*Store)(nil)
var _ libsignalgo.SessionStore = (*Store)(nil)
var _ recipientstore.MergeSink = (*Store)(nil)

// New wraps db with the protocol store's own schema-version tracking and
// registers the result as a merge sink on recipients, so that future
// merges reroute this store's keys automatically. Call Upgrade before
// using the returned store.
func New(db *dbutil.Database, recipients *recipientstore.Store, identityKeyPair *libsignalgo.IdentityKeyPair, localRegistrationID uint32, log zerolog.Logger) *Store {
	s := &Store{
		db:                  db.Child("signalprotocol_version", upgrades.Table, dbutil.ZeroLogger(log)),
		recipients:          recipients,
		identityKeyPair:     identityKeyPair,
		localRegistrationID: localRegistrationID,
		log:                 log.With().Str("component", "protocolstore").Logger(),
	}
	recipients.RegisterMergeSink(s)
	return s
}

// Upgrade brings the protocol store's schema to the latest version.
func (s *Store) Upgrade(ctx context.Context) error {
	return s.db.Upgrade(ctx)
}

func (s *Store) GetIdentityKeyPair(ctx context.Context) (*libsignalgo.IdentityKeyPair, error) {
	return s.identityKeyPair, nil
}

func (s *Store) GetLocalRegistrationID(ctx context.Context) (uint32, error) {
	return s.localRegistrationID, nil
}

// recipientIDForAddress resolves a protocol address's name (a uuid string
// or an E.164 number) through the recipient store, as spec.md §4.2
// requires, so writes are always keyed by the current recipient id rather
// than the raw name that happened to appear on the wire.
func (s *Store) recipientIDForAddress(ctx context.Context, address *libsignalgo.Address) (types.ID, error) {
	serviceID, err := address.NameServiceID()
	if err == nil {
		return s.recipients.Resolve(ctx, types.NewUUIDAddress(serviceID.UUID), false)
	}
	name, nameErr := address.Name()
	if nameErr != nil {
		return 0, fmt.Errorf("failed to read protocol address name: %w", err)
	}
	return s.recipients.Resolve(ctx, types.NewNumberAddress(name), false)
}

// MergeRecipients rewrites every row keyed by src to dst. It is invoked by
// the recipient store outside its own mutex; writeMu below serializes it
// against concurrent protocol-store writes.
func (s *Store) MergeRecipients(ctx context.Context, dst, src types.ID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		for _, stmt := range []string{
			`UPDATE signalprotocol_sessions SET recipient_id=$1 WHERE recipient_id=$2`,
			`UPDATE signalprotocol_identities SET recipient_id=$1 WHERE recipient_id=$2`,
		} {
			if _, err := s.db.Exec(ctx, stmt, uint64(dst), uint64(src)); err != nil {
				return fmt.Errorf("failed to reroute rows from recipient %d to %d: %w", src, dst, err)
			}
		}
		return nil
	})
}

func scanRecord[T any](row dbutil.Scannable, deserializer func([]byte) (*T, error)) (*T, error) {
	record, err := dbutil.ScanSingleColumn[[]byte](row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return deserializer(record)
}
