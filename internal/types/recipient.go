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
	"encoding/json"
	"sort"
	"time"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
)

// ID is an opaque, monotonically assigned recipient identifier. Once
// emitted it either keeps naming the same logical recipient forever, or it
// is redirected to the id it was merged into.
type ID uint64

// UnidentifiedAccessMode mirrors the server's sealed-sender access policy
// for a recipient's profile.
type UnidentifiedAccessMode string

const (
	UnidentifiedAccessUnknown      UnidentifiedAccessMode = "UNKNOWN"
	UnidentifiedAccessDisabled     UnidentifiedAccessMode = "DISABLED"
	UnidentifiedAccessEnabled      UnidentifiedAccessMode = "ENABLED"
	UnidentifiedAccessUnrestricted UnidentifiedAccessMode = "UNRESTRICTED"
)

// Capability is a named account feature flag advertised in a profile.
// Capability sets round-trip through JSON lossily on purpose: unknown
// members are dropped on load rather than preserved, per the reference
// behavior recorded in spec.md §9.
type Capability string

const (
	CapabilityGV2            Capability = "GV2"
	CapabilityStorage        Capability = "STORAGE"
	CapabilityGV1Migration   Capability = "GV1_MIGRATION"
	CapabilitySenderKey      Capability = "SENDER_KEY"
	CapabilityAnnouncementGV Capability = "ANNOUNCEMENT_GROUP"
	CapabilityChangeNumber   Capability = "CHANGE_NUMBER"
	CapabilityPNI            Capability = "PNI"
)

var knownCapabilities = map[Capability]bool{
	CapabilityGV2:            true,
	CapabilityStorage:        true,
	CapabilityGV1Migration:   true,
	CapabilitySenderKey:      true,
	CapabilityAnnouncementGV: true,
	CapabilityChangeNumber:   true,
	CapabilityPNI:            true,
}

// CapabilitySet is a set of capabilities that serializes as a JSON array of
// names and silently drops unrecognized names on load.
type CapabilitySet map[Capability]struct{}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

func (cs CapabilitySet) Has(c Capability) bool {
	_, ok := cs[c]
	return ok
}

func (cs CapabilitySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(cs))
	for c := range cs {
		names = append(names, string(c))
	}
	sort.Strings(names)
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func (cs *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set := make(CapabilitySet, len(names))
	for _, name := range names {
		c := Capability(name)
		if knownCapabilities[c] {
			set[c] = struct{}{}
		}
		// Unknown capability names are dropped silently (spec.md §9).
	}
	*cs = set
	return nil
}

// Contact is locally-sourced contact metadata, harvested from the user's
// own address book rather than asserted by the remote profile.
type Contact struct {
	Name                  string
	Color                 string
	MessageExpirationTime uint32
	Blocked               bool
	Archived              bool
}

// Profile is the set of fields the remote user controls about themselves,
// encrypted end-to-end with Profile.Key and decrypted locally once fetched.
type Profile struct {
	LastUpdateTimestamp    time.Time
	GivenName              string
	FamilyName             string
	About                  string
	AboutEmoji             string
	AvatarURLPath          string
	UnidentifiedAccessMode UnidentifiedAccessMode
	Capabilities           CapabilitySet
}

// Recipient is the aggregate the store keys by ID: an address plus
// everything known locally about the user behind it.
type Recipient struct {
	ID      ID
	Address Address

	Contact *Contact

	ProfileKey           *libsignalgo.ProfileKey
	ProfileKeyCredential []byte
	Profile              *Profile
}

// Clone returns a deep-enough copy for safe mutation outside the store's
// lock (pointers to immutable crypto material are shared, not copied).
func (r *Recipient) Clone() *Recipient {
	if r == nil {
		return nil
	}
	out := *r
	if r.Contact != nil {
		c := *r.Contact
		out.Contact = &c
	}
	if r.Profile != nil {
		p := *r.Profile
		if r.Profile.Capabilities != nil {
			p.Capabilities = make(CapabilitySet, len(r.Profile.Capabilities))
			for k := range r.Profile.Capabilities {
				p.Capabilities[k] = struct{}{}
			}
		}
		out.Profile = &p
	}
	return &out
}
