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

package recipientstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"go.sigcli.dev/sigcli/internal/types"
)

// mergeEvent records a single merge so it can be reported to sinks after
// the store's mutex is released.
type mergeEvent struct {
	dst, src types.ID
}

// Resolve implements the resolution algorithm of spec.md §4.1. highTrust
// distinguishes a trusted channel (server discovery, a verified
// round-trip, a sync message) from ordinary observed traffic.
//
// Low-trust resolution never creates a link between two existing records
// and never modifies an existing recipient. High-trust resolution is the
// only path that may rewrite or merge records, and is idempotent: calling
// it twice with the same fully-specified address performs at most one
// merge and returns the same id both times.
func (s *Store) Resolve(ctx context.Context, addr types.Address, highTrust bool) (types.ID, error) {
	if !addr.Valid() {
		return 0, fmt.Errorf("recipientstore: address must have at least one field set")
	}

	s.mu.Lock()
	id, events, persist, err := s.resolveLocked(addr, highTrust)
	if err == nil && persist {
		err = s.saveLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	for _, ev := range events {
		for _, sink := range s.sinks {
			if sinkErr := sink.MergeRecipients(ctx, ev.dst, ev.src); sinkErr != nil {
				s.log.Error().Err(sinkErr).
					Uint64("dst", uint64(ev.dst)).
					Uint64("src", uint64(ev.src)).
					Msg("merge sink failed to propagate merge")
			}
		}
	}
	return id, nil
}

// resolveLocked runs the branches of §4.1 under the store's mutex and
// returns the events that must be reported to sinks once it is released.
func (s *Store) resolveLocked(addr types.Address, highTrust bool) (id types.ID, events []mergeEvent, persist bool, err error) {
	byUUID, byNumber := s.lookupLocked(addr)

	switch {
	case byUUID == nil && byNumber == nil:
		// Branch 1: nothing exists yet.
		if highTrust || !(addr.HasUUID() && addr.HasNumber()) {
			r := s.newRecipientLocked(addr)
			return r.ID, nil, true, nil
		}
		// Low trust, both fields present: never bind an unverified number.
		r := s.newRecipientLocked(types.NewUUIDAddress(addr.UUID))
		return r.ID, nil, true, nil

	case byUUID != nil && byUUID == byNumber:
		// Branch 2: already linked.
		return byUUID.ID, nil, false, nil

	case !highTrust:
		// Branch 3: low trust, at least one exists. Never modify.
		if byUUID != nil {
			return byUUID.ID, nil, false, nil
		}
		return byNumber.ID, nil, false, nil

	case byUUID != nil && byNumber == nil:
		// Branch 4: attach the number to the uuid-matched recipient,
		// overwriting any stale number it had.
		s.reassignNumberLocked(byUUID, addr.Number)
		return byUUID.ID, nil, true, nil

	case byUUID == nil && byNumber != nil:
		// Branch 5.
		if byNumber.Address.HasUUID() && byNumber.Address.UUID != addr.UUID {
			// The number-matched recipient has a different uuid: uuids are
			// authoritative, so strip the number and create a new
			// recipient instead of merging.
			s.reassignNumberLocked(byNumber, "")
			r := s.newRecipientLocked(addr)
			return r.ID, nil, true, nil
		}
		s.attachUUIDLocked(byNumber, addr.UUID)
		return byNumber.ID, nil, true, nil

	default:
		// Branch 6: two distinct existing records.
		if byNumber.Address.HasUUID() && byNumber.Address.UUID != addr.UUID {
			s.reassignNumberLocked(byNumber, "")
			s.reassignNumberLocked(byUUID, addr.Number)
			return byUUID.ID, nil, true, nil
		}
		dst, ev := s.mergeLocked(byUUID, byNumber)
		s.reassignNumberLocked(dst, addr.Number)
		return dst.ID, []mergeEvent{ev}, true, nil
	}
}

// reassignNumberLocked moves a number onto (or off of, for number == "") a
// recipient, keeping the uuid/number indexes consistent.
func (s *Store) reassignNumberLocked(r *types.Recipient, number string) {
	if r.Address.HasNumber() {
		delete(s.byNumber, r.Address.Number)
	}
	r.Address.Number = number
	if number != "" {
		s.byNumber[number] = r.ID
	}
}

func (s *Store) attachUUIDLocked(r *types.Recipient, id uuid.UUID) {
	if r.Address.HasUUID() {
		delete(s.byUUID, r.Address.UUID)
	}
	r.Address.UUID = id
	if id != uuid.Nil {
		s.byUUID[id] = r.ID
	}
}
