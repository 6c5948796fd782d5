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
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/util/dbutil"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/types"
)

const (
	getIdentityRowQuery = `
		SELECT identity_key, trust_level, added_timestamp, previous_keys
		FROM signalprotocol_identities WHERE recipient_id=$1
	`
	upsertIdentityQuery = `
		INSERT INTO signalprotocol_identities (recipient_id, identity_key, trust_level, added_timestamp, previous_keys)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recipient_id) DO UPDATE
			SET identity_key=excluded.identity_key, trust_level=excluded.trust_level,
			    added_timestamp=excluded.added_timestamp, previous_keys=excluded.previous_keys
	`
	setTrustLevelQuery = `UPDATE signalprotocol_identities SET trust_level=$2 WHERE recipient_id=$1`
)

// previousKeyJSON is the on-disk shape of one entry in an identity's
// bounded key history (SPEC_FULL.md supplement: identity key history).
type previousKeyJSON struct {
	IdentityKey    string `json:"identityKey"`
	TrustLevel     string `json:"trustLevel"`
	AddedTimestamp int64  `json:"addedTimestamp"`
}

func scanIdentityRow(row dbutil.Scannable) (*types.IdentityInfo, []byte, error) {
	var raw, previousRaw []byte
	var trust string
	var addedMillis int64
	err := row.Scan(&raw, &trust, &addedMillis, &previousRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, err
	}
	key, err := libsignalgo.DeserializeIdentityKey(raw)
	if err != nil {
		return nil, nil, err
	}
	info := types.IdentityInfo{
		IdentityKey:    key,
		TrustLevel:     types.TrustLevel(trust),
		AddedTimestamp: time.UnixMilli(addedMillis),
	}
	return &info, previousRaw, nil
}

func unmarshalPreviousKeys(raw []byte) ([]previousKeyJSON, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []previousKeyJSON
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func pushPreviousKey(raw []byte, key *libsignalgo.IdentityKey, trust types.TrustLevel, addedAt time.Time) ([]byte, error) {
	history, err := unmarshalPreviousKeys(raw)
	if err != nil {
		return nil, err
	}
	serialized, err := key.Serialize()
	if err != nil {
		return nil, err
	}
	history = append([]previousKeyJSON{{
		IdentityKey:    base64.StdEncoding.EncodeToString(serialized),
		TrustLevel:     string(trust),
		AddedTimestamp: addedAt.UnixMilli(),
	}}, history...)
	if len(history) > 5 {
		history = history[:5]
	}
	return json.Marshal(history)
}

// SaveIdentityKey stores theirServiceID's identity key, keyed by the
// recipient it currently resolves to. A new key that differs from what was
// stored is always filed as untrusted-on-first-use regardless of the
// previous trust level, per spec.md §4.2; an identical replay changes
// nothing and reports no replacement. The replaced key is pushed onto a
// bounded history so a caller can later explain why a new key appeared.
func (s *Store) SaveIdentityKey(ctx context.Context, theirServiceID libsignalgo.ServiceID, identityKey *libsignalgo.IdentityKey) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	recipientID, err := s.recipients.Resolve(ctx, types.NewUUIDAddress(theirServiceID.UUID), false)
	if err != nil {
		return false, fmt.Errorf("failed to resolve identity owner: %w", err)
	}
	existing, existingRaw, err := scanIdentityRow(s.db.QueryRow(ctx, getIdentityRowQuery, uint64(recipientID)))
	if err != nil {
		return false, fmt.Errorf("failed to load existing identity key: %w", err)
	}
	serialized, err := identityKey.Serialize()
	if err != nil {
		return false, fmt.Errorf("failed to serialize identity key: %w", err)
	}

	var replacing bool
	trust := types.TrustUntrusted
	now := time.Now()
	var previous []byte
	if existing != nil {
		equal, err := existing.IdentityKey.Equal(identityKey)
		if err != nil {
			return false, fmt.Errorf("failed to compare identity keys: %w", err)
		}
		if equal {
			return false, nil
		}
		replacing = true
		previous, err = pushPreviousKey(existingRaw, existing.IdentityKey, existing.TrustLevel, existing.AddedTimestamp)
		if err != nil {
			return false, fmt.Errorf("failed to record identity key history: %w", err)
		}
	}
	_, err = s.db.Exec(ctx, upsertIdentityQuery, uint64(recipientID), serialized, string(trust), now.UnixMilli(), previous)
	if err != nil {
		return replacing, fmt.Errorf("failed to store identity key: %w", err)
	}
	return replacing, nil
}

func (s *Store) GetIdentityKey(ctx context.Context, theirServiceID libsignalgo.ServiceID) (*libsignalgo.IdentityKey, error) {
	id, err := s.recipients.Resolve(ctx, types.NewUUIDAddress(theirServiceID.UUID), false)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity owner: %w", err)
	}
	row, _, err := scanIdentityRow(s.db.QueryRow(ctx, getIdentityRowQuery, uint64(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to load identity key: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.IdentityKey, nil
}

// GetIdentityInfo returns the full locally-known identity record for
// theirServiceID, including its bounded key history, or nil if nothing is
// on file. Used to build UntrustedKeyError reports (SPEC_FULL.md
// supplement: identity key history).
func (s *Store) GetIdentityInfo(ctx context.Context, theirServiceID libsignalgo.ServiceID) (*types.IdentityInfo, error) {
	id, err := s.recipients.Resolve(ctx, types.NewUUIDAddress(theirServiceID.UUID), false)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity owner: %w", err)
	}
	row, previousRaw, err := scanIdentityRow(s.db.QueryRow(ctx, getIdentityRowQuery, uint64(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to load identity info: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	entries, err := unmarshalPreviousKeys(previousRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity key history: %w", err)
	}
	history := make([]types.IdentityInfo, 0, len(entries))
	for _, h := range entries {
		raw, err := base64.StdEncoding.DecodeString(h.IdentityKey)
		if err != nil {
			continue
		}
		key, err := libsignalgo.DeserializeIdentityKey(raw)
		if err != nil {
			continue
		}
		history = append(history, types.IdentityInfo{
			IdentityKey:    key,
			TrustLevel:     types.TrustLevel(h.TrustLevel),
			AddedTimestamp: time.UnixMilli(h.AddedTimestamp),
		})
	}
	info := row.WithHistory(history)
	return &info, nil
}

// IsTrustedIdentity returns false only when a key is on file and it is
// strictly UNTRUSTED; an unseen recipient is trusted by default (trust on
// first use), matching spec.md §4.2.
func (s *Store) IsTrustedIdentity(ctx context.Context, theirServiceID libsignalgo.ServiceID, identityKey *libsignalgo.IdentityKey, direction libsignalgo.SignalDirection) (bool, error) {
	id, err := s.recipients.Resolve(ctx, types.NewUUIDAddress(theirServiceID.UUID), false)
	if err != nil {
		return false, fmt.Errorf("failed to resolve identity owner: %w", err)
	}
	row, _, err := scanIdentityRow(s.db.QueryRow(ctx, getIdentityRowQuery, uint64(id)))
	if err != nil {
		return false, fmt.Errorf("failed to load trust level: %w", err)
	}
	if row == nil {
		return true, nil
	}
	return row.TrustLevel != types.TrustUntrusted, nil
}

// SetIdentityTrustLevel elevates (or explicitly lowers) the trust level of
// a recipient already on file, the explicit counterpart of the implicit
// downgrade SaveIdentityKey performs on key change.
func (s *Store) SetIdentityTrustLevel(ctx context.Context, theirServiceID libsignalgo.ServiceID, trust types.TrustLevel) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.recipients.Resolve(ctx, types.NewUUIDAddress(theirServiceID.UUID), false)
	if err != nil {
		return fmt.Errorf("failed to resolve identity owner: %w", err)
	}
	res, err := s.db.Exec(ctx, setTrustLevelQuery, uint64(id), string(trust))
	if err != nil {
		return fmt.Errorf("failed to update trust level: %w", err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("no identity key on file for %s", theirServiceID.UUID)
	}
	return nil
}
