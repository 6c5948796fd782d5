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
	"database/sql"
	"errors"
	"fmt"

	"go.mau.fi/util/dbutil"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/types"
)

const (
	getSessionQuery = `
		SELECT record FROM signalprotocol_sessions
		WHERE recipient_id=$1 AND device_id=$2 AND is_current=true
	`
	upsertSessionQuery = `
		INSERT INTO signalprotocol_sessions (recipient_id, device_id, record, is_current)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (recipient_id, device_id) DO UPDATE SET record=excluded.record, is_current=true
	`
	archiveSessionQuery = `
		UPDATE signalprotocol_sessions SET is_current=false WHERE recipient_id=$1 AND device_id=$2
	`
	archiveAllSessionsQuery = `
		UPDATE signalprotocol_sessions SET is_current=false WHERE recipient_id=$1
	`
	containsSessionQuery = `
		SELECT 1 FROM signalprotocol_sessions WHERE recipient_id=$1 AND device_id=$2 AND is_current=true
	`
)

func scanSessionRecord(row dbutil.Scannable) (*libsignalgo.SessionRecord, error) {
	return scanRecord(row, libsignalgo.DeserializeSessionRecord)
}

// recipientAndDeviceForAddress resolves a protocol address's remote
// service identifier through the recipient store and reads out its device
// id, so session rows are keyed the same way identity rows are: by the
// current recipient, not by whatever name happened to appear on the wire.
func (s *Store) recipientAndDeviceForAddress(ctx context.Context, address *libsignalgo.Address) (types.ID, uint32, error) {
	deviceID, err := address.DeviceID()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read protocol address device id: %w", err)
	}
	id, err := s.recipientIDForAddress(ctx, address)
	if err != nil {
		return 0, 0, err
	}
	return id, uint32(deviceID), nil
}

func (s *Store) LoadSession(ctx context.Context, address *libsignalgo.Address) (*libsignalgo.SessionRecord, error) {
	recipientID, deviceID, err := s.recipientAndDeviceForAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	record, err := scanSessionRecord(s.db.QueryRow(ctx, getSessionQuery, uint64(recipientID), deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return record, nil
}

func (s *Store) StoreSession(ctx context.Context, address *libsignalgo.Address, record *libsignalgo.SessionRecord) error {
	recipientID, deviceID, err := s.recipientAndDeviceForAddress(ctx, address)
	if err != nil {
		return err
	}
	serialized, err := record.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	_, err = s.db.Exec(ctx, upsertSessionQuery, uint64(recipientID), deviceID, serialized)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *Store) ContainsSession(ctx context.Context, address *libsignalgo.Address) (bool, error) {
	recipientID, deviceID, err := s.recipientAndDeviceForAddress(ctx, address)
	if err != nil {
		return false, err
	}
	var exists int
	err = s.db.QueryRow(ctx, containsSessionQuery, uint64(recipientID), deviceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check for session: %w", err)
	}
	return true, nil
}

// ArchiveSession marks a session as no longer current, without deleting
// the row, so a subsequent LoadSession reports no session (forcing a fresh
// X3DH handshake) while the superseded ratchet state stays on disk for
// diagnostics, per spec.md §4.2.
func (s *Store) ArchiveSession(ctx context.Context, address *libsignalgo.Address) error {
	recipientID, deviceID, err := s.recipientAndDeviceForAddress(ctx, address)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, archiveSessionQuery, uint64(recipientID), deviceID)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return nil
}

// ArchiveAllSessions archives every device session for a recipient, used
// when an identity key change means none of the recipient's existing
// sessions can be trusted any more.
func (s *Store) ArchiveAllSessions(ctx context.Context, theirServiceID libsignalgo.ServiceID) error {
	id, err := s.recipients.Resolve(ctx, types.NewUUIDAddress(theirServiceID.UUID), false)
	if err != nil {
		return fmt.Errorf("failed to resolve session owner: %w", err)
	}
	_, err = s.db.Exec(ctx, archiveAllSessionsQuery, uint64(id))
	if err != nil {
		return fmt.Errorf("failed to archive sessions: %w", err)
	}
	return nil
}
