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

// Package signalservice is the external collaborator spec.md §6 calls "the
// Signal service HTTP client": account verification and attribute calls,
// plus the raw transport the Key Backup Service enclave handshake rides
// on. RegistrationManager and PinHelper depend only on the interfaces
// below, never on this package's concrete client, so tests can swap in
// the in-memory fake in fake.go.
package signalservice

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VerifyResult is the successful outcome of an account-verification call.
type VerifyResult struct {
	ACI            uuid.UUID
	StorageCapable bool
}

// LockedError is the application-level "registration lock" rejection a
// verify call can return instead of a VerifyResult. It carries what the
// PinHelper needs to exchange a PIN for the account's master key.
type LockedError struct {
	TimeRemaining     time.Duration
	BackupCredentials []byte
}

func (e *LockedError) Error() string { return "registration lock is in force" }

// CaptchaRequiredError is the application-level rejection a code-request
// call returns when the server wants a CAPTCHA solve first.
type CaptchaRequiredError struct {
	ServerMessage string
}

func (e *CaptchaRequiredError) Error() string { return "captcha required: " + e.ServerMessage }

// AccountService is everything RegistrationManager needs from the Signal
// service, per spec.md §6.
type AccountService interface {
	RequestSMS(ctx context.Context, number, captcha string) error
	RequestVoice(ctx context.Context, number, locale, captcha string) error
	VerifyAccount(ctx context.Context, number, code string, registrationID uint32) (*VerifyResult, error)
	VerifyAccountWithRegistrationLockPin(ctx context.Context, number, code string, registrationID uint32, lockToken string) (*VerifyResult, error)
	SetAccountAttributes(ctx context.Context, attrs AccountAttributes) error

	// UploadPreKeys publishes a fresh batch of one-time pre-keys and a new
	// signed pre-key, the first post-verification step in spec.md §4.4.
	UploadPreKeys(ctx context.Context, upload PreKeyUpload) error
	// RetrieveRemoteStorage fetches the account's storage-service manifest,
	// called only when verification reported storage capability.
	RetrieveRemoteStorage(ctx context.Context) ([]byte, error)
	// SubmitEmptyProfile makes a freshly-verified account addressable in
	// groups. Per spec.md §4.4 step 3, failure here is a soft warning.
	SubmitEmptyProfile(ctx context.Context) error
}

// UploadedPreKey is one entry of a one-time pre-key batch.
type UploadedPreKey struct {
	ID        uint32
	PublicKey []byte
}

// UploadedSignedPreKey is the single current signed pre-key.
type UploadedSignedPreKey struct {
	ID        uint32
	PublicKey []byte
	Signature []byte
}

// PreKeyUpload is the payload behind AccountService.UploadPreKeys.
type PreKeyUpload struct {
	IdentityKey  []byte
	PreKeys      []UploadedPreKey
	SignedPreKey UploadedSignedPreKey
}

// AccountAttributes is the idempotent reactivation/registration payload,
// per spec.md §6 setAccountAttributes.
type AccountAttributes struct {
	RegistrationID                 uint32
	UnidentifiedAccessKey          []byte
	UnrestrictedUnidentifiedAccess bool
	Discoverable                   bool
	Capabilities                   map[string]bool
}

// KBSTransport is the raw attested-channel transport the Key Backup
// Service enclave handshake rides on (spec.md §6 "Key Backup Service").
// It carries opaque bytes only; libsignalgo.HSMEnclaveClient owns the
// actual attestation and encryption.
type KBSTransport interface {
	OpenHandshake(ctx context.Context, host, serviceID string, initialRequest []byte) (handshakeReply []byte, err error)
	SendEstablished(ctx context.Context, host, serviceID string, ciphertext []byte) (replyCiphertext []byte, err error)
}
