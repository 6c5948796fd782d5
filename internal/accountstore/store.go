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

// Package accountstore persists the single local SignalAccount to a JSON
// file, the same write-temp-then-rename discipline recipientstore uses for
// its own file, so a crash mid-write never corrupts the previous state.
package accountstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/types"
)

// randomRegistrationID picks a value in the 14-bit range the wire format
// reserves for it, the same range provisioning.go draws from.
func randomRegistrationID() uint32 {
	return uint32(mrand.IntN(16383) + 1)
}

type accountJSON struct {
	Number                    string `json:"number"`
	Password                  string `json:"password"`
	ACI                       string `json:"aci,omitempty"`
	DeviceID                  uint32 `json:"deviceId"`
	RegistrationID            uint32 `json:"registrationId"`
	IdentityKeyPair           string `json:"identityKeyPair,omitempty"`
	PINMasterKey              string `json:"pinMasterKey,omitempty"`
	Registered                bool   `json:"registered"`
	SelfUnidentifiedAccessKey string `json:"selfUnidentifiedAccessKey,omitempty"`
	Discoverable              bool   `json:"discoverable"`
	EncryptedDeviceName       string `json:"encryptedDeviceName,omitempty"`
}

// Load restores the account persisted at path. A missing file returns a
// fresh account seeded with a new identity key pair and random
// registration id, ready for Register to be called on it.
func Load(path string) (*types.SignalAccount, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newAccount()
	} else if err != nil {
		return nil, fmt.Errorf("failed to read account file %q: %w", path, err)
	}
	var aj accountJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return nil, fmt.Errorf("failed to parse account file %q: %w", path, err)
	}
	return aj.toAccount()
}

func newAccount() (*types.SignalAccount, error) {
	identity, err := libsignalgo.GenerateIdentityKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity key pair: %w", err)
	}
	return &types.SignalAccount{
		IdentityKeyPair: identity,
		RegistrationID:  randomRegistrationID(),
		Discoverable:    true,
	}, nil
}

// Save serializes account to path via write-temp-then-rename.
func Save(path string, account *types.SignalAccount) error {
	aj, err := fromAccount(account)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	buf, err := json.MarshalIndent(aj, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create account directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".account-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace account file: %w", err)
	}
	return nil
}

func (aj accountJSON) toAccount() (*types.SignalAccount, error) {
	a := &types.SignalAccount{
		Number:         aj.Number,
		Password:       aj.Password,
		DeviceID:       aj.DeviceID,
		RegistrationID: aj.RegistrationID,
		Registered:     aj.Registered,
		Discoverable:   aj.Discoverable,
	}
	if aj.ACI != "" {
		id, err := uuid.Parse(aj.ACI)
		if err != nil {
			return nil, fmt.Errorf("malformed aci %q: %w", aj.ACI, err)
		}
		a.ACI = id
	}
	if aj.IdentityKeyPair == "" {
		return nil, fmt.Errorf("account file is missing its identity key pair")
	}
	pairBytes, err := base64.StdEncoding.DecodeString(aj.IdentityKeyPair)
	if err != nil {
		return nil, fmt.Errorf("malformed identity key pair: %w", err)
	}
	identity, err := libsignalgo.DeserializeIdentityKeyPair(pairBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize identity key pair: %w", err)
	}
	a.IdentityKeyPair = identity
	if aj.PINMasterKey != "" {
		key, err := base64.StdEncoding.DecodeString(aj.PINMasterKey)
		if err != nil {
			return nil, fmt.Errorf("malformed pin master key: %w", err)
		}
		a.PINMasterKey = key
	}
	if aj.SelfUnidentifiedAccessKey != "" {
		key, err := base64.StdEncoding.DecodeString(aj.SelfUnidentifiedAccessKey)
		if err != nil {
			return nil, fmt.Errorf("malformed unidentified access key: %w", err)
		}
		a.SelfUnidentifiedAccessKey = key
	}
	if aj.EncryptedDeviceName != "" {
		blob, err := base64.StdEncoding.DecodeString(aj.EncryptedDeviceName)
		if err != nil {
			return nil, fmt.Errorf("malformed encrypted device name: %w", err)
		}
		a.EncryptedDeviceName = blob
	}
	return a, nil
}

func fromAccount(a *types.SignalAccount) (accountJSON, error) {
	pairBytes, err := a.IdentityKeyPair.Serialize()
	if err != nil {
		return accountJSON{}, fmt.Errorf("failed to serialize identity key pair: %w", err)
	}
	aj := accountJSON{
		Number:          a.Number,
		Password:        a.Password,
		DeviceID:        a.DeviceID,
		RegistrationID:  a.RegistrationID,
		IdentityKeyPair: base64.StdEncoding.EncodeToString(pairBytes),
		Registered:      a.Registered,
		Discoverable:    a.Discoverable,
	}
	if a.HasACI() {
		aj.ACI = a.ACI.String()
	}
	if len(a.PINMasterKey) > 0 {
		aj.PINMasterKey = base64.StdEncoding.EncodeToString(a.PINMasterKey)
	}
	if len(a.SelfUnidentifiedAccessKey) > 0 {
		aj.SelfUnidentifiedAccessKey = base64.StdEncoding.EncodeToString(a.SelfUnidentifiedAccessKey)
	}
	if len(a.EncryptedDeviceName) > 0 {
		aj.EncryptedDeviceName = base64.StdEncoding.EncodeToString(a.EncryptedDeviceName)
	}
	return aj, nil
}
