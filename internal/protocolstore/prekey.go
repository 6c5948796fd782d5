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

package protocolstore

import (
	"context"
	"fmt"

	"go.mau.fi/util/dbutil"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
)

const (
	getPreKeyQuery    = `SELECT key_pair FROM signalprotocol_prekeys WHERE key_id=$1 AND is_signed=$2`
	insertPreKeyQuery = `
		INSERT INTO signalprotocol_prekeys (key_id, is_signed, key_pair) VALUES ($1, $2, $3)
		ON CONFLICT (key_id, is_signed) DO UPDATE SET key_pair=excluded.key_pair
	`
	deletePreKeyQuery = `DELETE FROM signalprotocol_prekeys WHERE key_id=$1 AND is_signed=$2`
)

func scanPreKey(row dbutil.Scannable) (*libsignalgo.PreKeyRecord, error) {
	return scanRecord(row, libsignalgo.DeserializePreKeyRecord)
}

// LoadPreKey implements libsignalgo.PreKeyStore. Pre-keys have no
// associated recipient: they are anonymous one-time bundles the server
// hands out to whoever asks first, so the real key shape libsignalgo
// requires here is local id only, unlike sessions and identities which are
// always scoped to a recipient (spec.md §4.2).
func (s *Store) LoadPreKey(ctx context.Context, id uint32) (*libsignalgo.PreKeyRecord, error) {
	record, err := scanPreKey(s.db.QueryRow(ctx, getPreKeyQuery, id, false))
	if err != nil {
		return nil, fmt.Errorf("failed to load pre-key %d: %w", id, err)
	}
	return record, nil
}

func (s *Store) StorePreKey(ctx context.Context, id uint32, preKey *libsignalgo.PreKeyRecord) error {
	serialized, err := preKey.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize pre-key %d: %w", id, err)
	}
	_, err = s.db.Exec(ctx, insertPreKeyQuery, id, false, serialized)
	if err != nil {
		return fmt.Errorf("failed to store pre-key %d: %w", id, err)
	}
	return nil
}

func (s *Store) RemovePreKey(ctx context.Context, id uint32) error {
	_, err := s.db.Exec(ctx, deletePreKeyQuery, id, false)
	if err != nil {
		return fmt.Errorf("failed to remove pre-key %d: %w", id, err)
	}
	return nil
}

// ContainsPreKey reports whether id is still on file. Pre-key refresh does
// not consult it; it allocates ids above the highest stored one via
// NextPreKeyID.
func (s *Store) ContainsPreKey(ctx context.Context, id uint32) (bool, error) {
	record, err := s.LoadPreKey(ctx, id)
	return record != nil, err
}

func (s *Store) NextPreKeyID(ctx context.Context) (uint32, error) {
	var max uint32
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(key_id), 0) FROM signalprotocol_prekeys WHERE is_signed=false`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query next pre-key id: %w", err)
	}
	return max + 1, nil
}
