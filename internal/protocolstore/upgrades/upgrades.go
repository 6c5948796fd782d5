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

// Package upgrades holds the protocol store's schema migrations.
package upgrades

import (
	"context"

	"go.mau.fi/util/dbutil"
)

var Table = dbutil.NewUpgradeTable()

func init() {
	Table.Register(-1, 1, 0, "Latest revision", dbutil.TxnModeOn, upgradeLatest)
}

func upgradeLatest(ctx context.Context, db *dbutil.Database) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE signalprotocol_identities (
			recipient_id     BIGINT  NOT NULL,
			identity_key     bytea   NOT NULL,
			trust_level      TEXT    NOT NULL,
			added_timestamp  BIGINT  NOT NULL,
			previous_keys    bytea,

			PRIMARY KEY (recipient_id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		CREATE TABLE signalprotocol_prekeys (
			key_id    INTEGER NOT NULL,
			is_signed BOOLEAN NOT NULL,
			key_pair  bytea   NOT NULL,

			PRIMARY KEY (key_id, is_signed)
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		CREATE TABLE signalprotocol_sessions (
			recipient_id BIGINT  NOT NULL,
			device_id    INTEGER NOT NULL,
			record       bytea   NOT NULL,
			is_current   BOOLEAN NOT NULL DEFAULT true,

			PRIMARY KEY (recipient_id, device_id)
		)
	`)
	return err
}
