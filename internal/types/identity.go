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

package types

import (
	"time"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
)

// TrustLevel records how much we trust a remote identity key.
type TrustLevel string

const (
	TrustUntrusted        TrustLevel = "UNTRUSTED"
	TrustTrustedUnverified TrustLevel = "TRUSTED_UNVERIFIED"
	TrustTrustedVerified  TrustLevel = "TRUSTED_VERIFIED"
)

// IdentityInfo is what we know locally about a remote service address's
// identity key.
type IdentityInfo struct {
	Address        Address
	IdentityKey    *libsignalgo.IdentityKey
	TrustLevel     TrustLevel
	AddedTimestamp time.Time

	// previous holds up to maxIdentityHistory prior keys, most recent
	// first, for UntrustedKeyError reporting (SPEC_FULL.md supplement 4).
	previous []IdentityInfo
}

const maxIdentityHistory = 5

// WithReplacedKey returns a new IdentityInfo for the same address holding
// newKey, pushing the receiver onto the bounded history.
func (i IdentityInfo) WithReplacedKey(newKey *libsignalgo.IdentityKey, trust TrustLevel, now time.Time) IdentityInfo {
	history := append([]IdentityInfo{i.withoutHistory()}, i.previous...)
	if len(history) > maxIdentityHistory {
		history = history[:maxIdentityHistory]
	}
	return IdentityInfo{
		Address:        i.Address,
		IdentityKey:    newKey,
		TrustLevel:     trust,
		AddedTimestamp: now,
		previous:       history,
	}
}

func (i IdentityInfo) withoutHistory() IdentityInfo {
	i.previous = nil
	return i
}

// WithHistory returns a copy of i carrying history as its prior-keys list,
// most recent first, truncated to maxIdentityHistory. Used by storage
// backends to reassemble an IdentityInfo read back from disk.
func (i IdentityInfo) WithHistory(history []IdentityInfo) IdentityInfo {
	if len(history) > maxIdentityHistory {
		history = history[:maxIdentityHistory]
	}
	i.previous = history
	return i
}

// History returns the bounded list of previously-seen identity keys for
// this address, most recent first.
func (i IdentityInfo) History() []IdentityInfo {
	return i.previous
}
