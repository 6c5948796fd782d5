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
	"go.sigcli.dev/sigcli/internal/types"
)

// mergeLocked merges src into dst: dst's address and, field by field, its
// contact/profile data win; src's data fills in anything dst is missing.
// src is removed from the live map and redirected to dst.
func (s *Store) mergeLocked(dst, src *types.Recipient) (*types.Recipient, mergeEvent) {
	s.log.Debug().
		Uint64("dst", uint64(dst.ID)).
		Uint64("src", uint64(src.ID)).
		Stringer("dst_addr", dst.Address).
		Stringer("src_addr", src.Address).
		Msg("merging recipient entries")

	if dst.Contact == nil {
		dst.Contact = src.Contact
	}
	if dst.ProfileKey == nil {
		dst.ProfileKey = src.ProfileKey
	}
	if dst.ProfileKeyCredential == nil {
		dst.ProfileKeyCredential = src.ProfileKeyCredential
	}
	if dst.Profile == nil {
		dst.Profile = src.Profile
	}

	s.unindexLocked(src)
	delete(s.byID, src.ID)
	s.redirect[src.ID] = dst.ID

	return dst, mergeEvent{dst: dst.ID, src: src.ID}
}
