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

// Package recipientstore implements the content-addressable recipient
// registry described in spec.md §4.1: it reconciles a phone number and a
// service UUID into a single internal recipient id, merging records when a
// high-trust source links two previously-separate ones.
package recipientstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go.sigcli.dev/sigcli/internal/types"
)

// MergeSink is the capability a downstream store (the protocol store, a
// contact cache) registers to learn about merges so it can rewrite its own
// keys. Fired after the store's mutex is released (spec.md §5); a sink
// must serialize its own writes.
type MergeSink interface {
	MergeRecipients(ctx context.Context, dst, src types.ID) error
}

// MergeSinkFunc adapts a function to a MergeSink.
type MergeSinkFunc func(ctx context.Context, dst, src types.ID) error

func (f MergeSinkFunc) MergeRecipients(ctx context.Context, dst, src types.ID) error {
	return f(ctx, dst, src)
}

// Store is the in-memory recipient registry, flushed to a single JSON file
// (spec.md §6) after every Resolve that changes it and on Save.
type Store struct {
	mu sync.Mutex

	path string
	log  zerolog.Logger

	lastID   types.ID
	byID     map[types.ID]*types.Recipient
	byUUID   map[uuid.UUID]types.ID
	byNumber map[string]types.ID
	redirect map[types.ID]types.ID

	sinks []MergeSink
}

// New creates an empty store that persists to path. Call Load instead to
// restore a previously-saved store.
func New(path string, log zerolog.Logger) *Store {
	return &Store{
		path:     path,
		log:      log.With().Str("component", "recipientstore").Logger(),
		byID:     make(map[types.ID]*types.Recipient),
		byUUID:   make(map[uuid.UUID]types.ID),
		byNumber: make(map[string]types.ID),
		redirect: make(map[types.ID]types.ID),
	}
}

// RegisterMergeSink adds a sink that will be notified, outside the store's
// lock, every time a merge occurs. Sinks are invoked in registration order.
func (s *Store) RegisterMergeSink(sink MergeSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// ActualID walks the redirection chain until it reaches a live id. The
// chain is acyclic by construction: a merged id is removed from byID and
// therefore never again chosen as a merge destination.
func (s *Store) ActualID(id types.ID) types.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actualIDLocked(id)
}

func (s *Store) actualIDLocked(id types.ID) types.ID {
	seen := map[types.ID]bool{}
	for {
		next, ok := s.redirect[id]
		if !ok {
			return id
		}
		if seen[id] {
			panic(fmt.Sprintf("recipientstore: redirection cycle detected at id %d", id))
		}
		seen[id] = true
		id = next
	}
}

// Get returns a clone of the live recipient for id (after redirection), or
// nil if no such recipient exists.
func (s *Store) Get(id types.ID) *types.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[s.actualIDLocked(id)]
	if !ok {
		return nil
	}
	return r.Clone()
}

// ByAddress looks up the live recipient matching either field of addr
// without creating or modifying anything. Returns nil if neither field
// matches a live recipient.
func (s *Store) ByAddress(addr types.Address) *types.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUUID, byNumber := s.lookupLocked(addr)
	r := byUUID
	if r == nil {
		r = byNumber
	}
	if r == nil {
		return nil
	}
	return r.Clone()
}

func (s *Store) lookupLocked(addr types.Address) (byUUID *types.Recipient, byNumber *types.Recipient) {
	if addr.HasUUID() {
		if id, ok := s.byUUID[addr.UUID]; ok {
			byUUID = s.byID[s.actualIDLocked(id)]
		}
	}
	if addr.HasNumber() {
		if id, ok := s.byNumber[addr.Number]; ok {
			byNumber = s.byID[s.actualIDLocked(id)]
		}
	}
	return byUUID, byNumber
}

// All returns a clone of every live recipient. Order is unspecified.
func (s *Store) All() []*types.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Recipient, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r.Clone())
	}
	return out
}

func (s *Store) indexLocked(r *types.Recipient) {
	if r.Address.HasUUID() {
		s.byUUID[r.Address.UUID] = r.ID
	}
	if r.Address.HasNumber() {
		s.byNumber[r.Address.Number] = r.ID
	}
}

func (s *Store) unindexLocked(r *types.Recipient) {
	if r.Address.HasUUID() {
		delete(s.byUUID, r.Address.UUID)
	}
	if r.Address.HasNumber() {
		delete(s.byNumber, r.Address.Number)
	}
}

func (s *Store) newRecipientLocked(addr types.Address) *types.Recipient {
	s.lastID++
	r := &types.Recipient{ID: s.lastID, Address: addr}
	s.byID[r.ID] = r
	s.indexLocked(r)
	return r
}
