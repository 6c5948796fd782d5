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

package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"go.sigcli.dev/sigcli/internal/accountstore"
	"go.sigcli.dev/sigcli/internal/kbs"
	"go.sigcli.dev/sigcli/internal/protocolstore"
	"go.sigcli.dev/sigcli/internal/recipientstore"
	"go.sigcli.dev/sigcli/internal/registration"
	"go.sigcli.dev/sigcli/internal/signalservice"
	"go.sigcli.dev/sigcli/internal/types"
)

// app bundles the composition root every subcommand drives.
type app struct {
	cfg        Config
	log        zerolog.Logger
	account    *types.SignalAccount
	recipients *recipientstore.Store
	protocol   *protocolstore.Store
	service    *signalservice.Client
}

func newApp(ctx context.Context, cfg Config, log zerolog.Logger) (*app, error) {
	account, err := accountstore.Load(cfg.accountPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if cfg.Number != "" {
		account.Number = cfg.Number
	}

	recipients, err := recipientstore.Load(cfg.recipientsPath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient store: %w", err)
	}

	rawDB, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	protocol := protocolstore.New(rawDB, recipients, account.IdentityKeyPair, account.RegistrationID, log)
	if err := protocol.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade protocol store schema: %w", err)
	}

	service := &signalservice.Client{Host: cfg.Signal.Host}

	return &app{
		cfg:        cfg,
		log:        log,
		account:    account,
		recipients: recipients,
		protocol:   protocol,
		service:    service,
	}, nil
}

func openDatabase(cfg DatabaseConfig) (*dbutil.Database, error) {
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = "sqlite3"
	}
	sqlDB, err := sql.Open(dialect, cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	rawDB, err := dbutil.NewWithDB(sqlDB, dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap %s database: %w", dialect, err)
	}
	return rawDB, nil
}

func (a *app) save() error {
	if err := accountstore.Save(a.cfg.accountPath(), a.account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if err := a.recipients.Save(); err != nil {
		return fmt.Errorf("failed to save recipient store: %w", err)
	}
	return nil
}

func (a *app) newKBS(backupCredentials []byte) registration.PinHelper {
	mrenclave, _ := hex.DecodeString(a.cfg.KBS.MRENCLAVE)
	trustedKey, _ := hex.DecodeString(a.cfg.KBS.TrustedPublicKey)
	return &kbs.PinHelper{
		Config: kbs.Config{
			Host:             a.cfg.KBS.Host,
			ServiceID:        a.cfg.KBS.ServiceID,
			MRENCLAVE:        mrenclave,
			TrustedPublicKey: trustedKey,
		},
		Service: a.service,
	}
}

func (a *app) newManager() *registration.Manager {
	preKeys := &registration.StorePreKeyRefresher{Store: a.protocol, Service: a.service}
	mgr := registration.New(a.account, a.service, a.newKBS, preKeys, registration.Locale(a.cfg.Locale), nil)
	if a.cfg.DeviceName != "" {
		mgr.SetDeviceName(a.cfg.DeviceName)
	}
	return mgr
}
