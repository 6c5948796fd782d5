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

func scanSignedPreKey(row dbutil.Scannable) (*libsignalgo.SignedPreKeyRecord, error) {
	return scanRecord(row, libsignalgo.DeserializeSignedPreKeyRecord)
}

func (s *Store) LoadSignedPreKey(ctx context.Context, id uint32) (*libsignalgo.SignedPreKeyRecord, error) {
	record, err := scanSignedPreKey(s.db.QueryRow(ctx, getPreKeyQuery, id, true))
	if err != nil {
		return nil, fmt.Errorf("failed to load signed pre-key %d: %w", id, err)
	}
	return record, nil
}

func (s *Store) StoreSignedPreKey(ctx context.Context, id uint32, preKey *libsignalgo.SignedPreKeyRecord) error {
	serialized, err := preKey.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize signed pre-key %d: %w", id, err)
	}
	_, err = s.db.Exec(ctx, insertPreKeyQuery, id, true, serialized)
	if err != nil {
		return fmt.Errorf("failed to store signed pre-key %d: %w", id, err)
	}
	return nil
}

func (s *Store) RemoveSignedPreKey(ctx context.Context, id uint32) error {
	_, err := s.db.Exec(ctx, deletePreKeyQuery, id, true)
	if err != nil {
		return fmt.Errorf("failed to remove signed pre-key %d: %w", id, err)
	}
	return nil
}

func (s *Store) NextSignedPreKeyID(ctx context.Context) (uint32, error) {
	var max uint32
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(key_id), 0) FROM signalprotocol_prekeys WHERE is_signed=true`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query next signed pre-key id: %w", err)
	}
	return max + 1, nil
}
