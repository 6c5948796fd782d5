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

// Package types holds the value types shared by the recipient store, the
// protocol store and the registration manager.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Address is a pair of identifiers for a Signal user: a stable service UUID
// (their ACI) and a phone number in E.164 form. Either may be absent
// (uuid.Nil / "") but never both.
type Address struct {
	UUID   uuid.UUID
	Number string
}

// NewUUIDAddress builds an address with only a UUID present.
func NewUUIDAddress(id uuid.UUID) Address {
	return Address{UUID: id}
}

// NewNumberAddress builds an address with only a phone number present.
func NewNumberAddress(number string) Address {
	return Address{Number: number}
}

// HasUUID reports whether the address carries a UUID.
func (a Address) HasUUID() bool {
	return a.UUID != uuid.Nil
}

// HasNumber reports whether the address carries a phone number.
func (a Address) HasNumber() bool {
	return a.Number != ""
}

// Valid reports whether at least one field is present, per the invariant in
// the data model: an address with neither field is never constructible
// through the store.
func (a Address) Valid() bool {
	return a.HasUUID() || a.HasNumber()
}

// Compatible reports whether two addresses agree on every field that both
// of them specify.
func (a Address) Compatible(other Address) bool {
	if a.HasUUID() && other.HasUUID() && a.UUID != other.UUID {
		return false
	}
	if a.HasNumber() && other.HasNumber() && a.Number != other.Number {
		return false
	}
	return true
}

func (a Address) String() string {
	switch {
	case a.HasUUID() && a.HasNumber():
		return fmt.Sprintf("%s/%s", a.UUID, a.Number)
	case a.HasUUID():
		return a.UUID.String()
	case a.HasNumber():
		return a.Number
	default:
		return "<empty address>"
	}
}
