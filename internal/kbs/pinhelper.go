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

package kbs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"go.sigcli.dev/sigcli/internal/signalerr"
	"go.sigcli.dev/sigcli/internal/signalservice"
)

// registrationLockInfo is the label HMAC_SHA256 is keyed with, per
// spec.md §4.3 step 4.
const registrationLockInfo = "Registration Lock"

type restoreRequest struct {
	PinHash []byte `json:"pinHash"`
	Token   []byte `json:"token"`
}

type restoreOutcome string

const (
	outcomeOK       restoreOutcome = "OK"
	outcomeWrongPin restoreOutcome = "WRONG_PIN"
	outcomeNoData   restoreOutcome = "NO_DATA"
)

type restoreResponse struct {
	Outcome        restoreOutcome `json:"outcome"`
	MasterKey      []byte         `json:"masterKey,omitempty"`
	TriesRemaining int            `json:"triesRemaining,omitempty"`
}

// PinHelper derives a registration-lock token from a user PIN by
// exchanging it for the account's master key over an attested channel to
// the Key Backup Service enclave (spec.md §4.3).
type PinHelper struct {
	Config  Config
	Service signalservice.KBSTransport
}

// RestoreMasterKey performs the full exchange: dial the enclave, stretch
// pin into a key with the backup token as salt, and unseal the reply.
//
//   - a NoData outcome means the server has no backup for this account and
//     is surfaced as an *signalerr.IOError (spec.md §4.3 step 2).
//   - a WrongPin outcome is surfaced as *signalerr.IncorrectPinError
//     carrying triesRemaining (step 3).
func (h *PinHelper) RestoreMasterKey(ctx context.Context, pin string, backupCredentials []byte) ([]byte, error) {
	client, err := Dial(ctx, h.Config, h.Service)
	if err != nil {
		return nil, &signalerr.IOError{Cause: err}
	}

	pinHash, err := stretchPin(pin, backupCredentials)
	if err != nil {
		return nil, &signalerr.IOError{Cause: err}
	}

	reqBody, err := json.Marshal(restoreRequest{PinHash: pinHash, Token: backupCredentials})
	if err != nil {
		return nil, &signalerr.IOError{Cause: fmt.Errorf("failed to encode restore request: %w", err)}
	}
	replyBody, err := client.roundTrip(ctx, reqBody)
	if err != nil {
		return nil, &signalerr.IOError{Cause: err}
	}
	var reply restoreResponse
	if err := json.Unmarshal(replyBody, &reply); err != nil {
		return nil, &signalerr.IOError{Cause: fmt.Errorf("failed to decode restore response: %w", err)}
	}

	switch reply.Outcome {
	case outcomeOK:
		return reply.MasterKey, nil
	case outcomeWrongPin:
		return nil, &signalerr.IncorrectPinError{TriesRemaining: reply.TriesRemaining}
	case outcomeNoData:
		return nil, &signalerr.IOError{Cause: fmt.Errorf("key backup service has no data for this account")}
	default:
		return nil, &signalerr.IOError{Cause: fmt.Errorf("key backup service returned unrecognized outcome %q", reply.Outcome)}
	}
}

// stretchPin derives a fixed-length key from the low-entropy PIN, salted
// with the per-attempt backup token so the enclave can't be offline
// brute-forced from a captured request.
func stretchPin(pin string, token []byte) ([]byte, error) {
	out := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, []byte(pin), token, []byte("Signal Backup PIN"))
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("failed to stretch pin: %w", err)
	}
	return out, nil
}

// DeriveRegistrationLock computes the registration-lock token from a
// restored master key, per spec.md §4.3 step 4.
func DeriveRegistrationLock(masterKey []byte) string {
	mac := hmac.New(sha256.New, masterKey)
	mac.Write([]byte(registrationLockInfo))
	return hex.EncodeToString(mac.Sum(nil))
}
