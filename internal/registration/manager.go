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

// Package registration implements the verification state machine
// (spec.md §4.4): IDLE -> CODE_REQUESTED -> VERIFIED -> REGISTERED, with a
// REACTIVATED shortcut for an account that already carries an ACI from a
// prior life.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.sigcli.dev/sigcli/internal/kbs"
	"go.sigcli.dev/sigcli/internal/signalerr"
	"go.sigcli.dev/sigcli/internal/signalservice"
	"go.sigcli.dev/sigcli/internal/types"
)

// State names the RegistrationManager's position in the flow.
type State string

const (
	StateIdle          State = "IDLE"
	StateCodeRequested State = "CODE_REQUESTED"
	StateVerified      State = "VERIFIED"
	StateRegistered    State = "REGISTERED"
	StateReactivated   State = "REACTIVATED"
)

// Channel is the verification-code delivery channel.
type Channel int

const (
	ChannelSMS Channel = iota
	ChannelVoice
)

// PinHelper is the subset of kbs.PinHelper RegistrationManager needs,
// extracted as an interface so tests can script KBS outcomes without a
// real enclave.
type PinHelper interface {
	RestoreMasterKey(ctx context.Context, pin string, backupCredentials []byte) ([]byte, error)
}

// PreKeyRefresher generates and uploads a fresh pre-key batch, the first
// post-verification step in spec.md §4.4. It is an interface so tests can
// count refreshes; the production implementation is StorePreKeyRefresher
// in prekeys.go, which reaches the protocol store only through the
// ProtocolKeyStore interface so this package never imports it.
type PreKeyRefresher interface {
	RefreshPreKeys(ctx context.Context) error
}

// NewManagerFunc is invoked exactly once, after verification finishes and
// the account has transferred ownership to it. RegistrationManager
// releases its own account reference immediately before calling it, per
// the single-writer invariant in spec.md §5.
type NewManagerFunc func(account *types.SignalAccount)

// Locale is the caller's default locale, sent with voice code requests.
type Locale string

// Manager drives one account through the verification state machine. It
// is not safe to reuse after VerifyAccount succeeds.
type Manager struct {
	mu      sync.Mutex
	state   State
	account *types.SignalAccount

	service      signalservice.AccountService
	preKeys      PreKeyRefresher
	newKBS       func(backupCredentials []byte) PinHelper
	onNewManager NewManagerFunc
	locale       Locale
	deviceName   string
}

// SetDeviceName arranges for name to be sealed against the account's
// identity key and stored as EncryptedDeviceName once verification
// finishes successfully. Optional; an account without a device name set
// keeps EncryptedDeviceName nil.
func (m *Manager) SetDeviceName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceName = name
}

// New starts a RegistrationManager for account. If account already has an
// ACI, the first register() call attempts silent reactivation instead of
// a fresh verification round-trip.
func New(account *types.SignalAccount, service signalservice.AccountService, newKBS func(backupCredentials []byte) PinHelper, preKeys PreKeyRefresher, locale Locale, onNewManager NewManagerFunc) *Manager {
	return &Manager{
		state:        StateIdle,
		account:      account,
		service:      service,
		newKBS:       newKBS,
		preKeys:      preKeys,
		locale:       locale,
		onNewManager: onNewManager,
	}
}

// State reports the manager's current position, for CLI status output.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ResumeCodeRequested moves a freshly constructed Manager straight to
// CODE_REQUESTED. A CLI process exits between the register and verify
// commands, so the in-memory state machine above doesn't survive the
// gap; the caller is responsible for having actually requested a code
// (and for not calling this after the account is already verified).
func (m *Manager) ResumeCodeRequested() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateCodeRequested
}

// stripCaptchaPrefix removes the signalcaptcha:// URI scheme Android/iOS
// webviews prepend to the token, per spec.md §4.4.
func stripCaptchaPrefix(captcha string) string {
	return strings.TrimPrefix(captcha, "signalcaptcha://")
}

// Register requests a verification code (from IDLE), or attempts a silent
// reactivation first if the account already has an ACI.
func (m *Manager) Register(ctx context.Context, channel Channel, captcha string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle && m.state != StateCodeRequested {
		return signalerr.Unexpectedf("register called in state %s", m.state)
	}

	if m.state == StateIdle && m.account.HasACI() {
		if err := m.tryReactivateLocked(ctx); err == nil {
			// Reactivation carries no verify response, so there's no fresh
			// isStorageCapable to act on; finishLocked still runs the rest
			// of §4.4's post-verification steps (pre-key refresh, device
			// name sealing, profile submission, manager handoff).
			if err := m.finishLocked(ctx, false); err != nil {
				return err
			}
			m.state = StateReactivated
			return nil
		}
		// Any I/O failure during reactivation falls back to the normal
		// registration path below, per spec.md §4.4.
	}

	captcha = stripCaptchaPrefix(captcha)
	var err error
	switch channel {
	case ChannelVoice:
		err = m.service.RequestVoice(ctx, m.account.Number, string(m.locale), captcha)
	default:
		err = m.service.RequestSMS(ctx, m.account.Number, captcha)
	}
	if err != nil {
		var captchaErr *signalservice.CaptchaRequiredError
		if errors.As(err, &captchaErr) {
			return &signalerr.CaptchaRequiredError{ServerMessage: captchaErr.ServerMessage}
		}
		return &signalerr.IOError{Cause: err}
	}
	m.state = StateCodeRequested
	return nil
}

func (m *Manager) tryReactivateLocked(ctx context.Context) error {
	err := m.service.SetAccountAttributes(ctx, m.accountAttributesLocked())
	if err != nil {
		return &signalerr.IOError{Cause: err}
	}
	m.account.Registered = true
	return nil
}

func (m *Manager) accountAttributesLocked() signalservice.AccountAttributes {
	return signalservice.AccountAttributes{
		RegistrationID:        m.account.RegistrationID,
		UnidentifiedAccessKey: m.account.SelfUnidentifiedAccessKey,
		Discoverable:          m.account.Discoverable,
		Capabilities:          map[string]bool{"gv2": true, "gv1-migration": true, "senderKey": true},
	}
}

// VerifyAccount submits a received verification code, handling the
// registration-lock retry flow described in spec.md §4.4.
func (m *Manager) VerifyAccount(ctx context.Context, code string, pin *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateCodeRequested {
		return signalerr.Unexpectedf("verifyAccount called in state %s", m.state)
	}

	code = strings.ReplaceAll(code, "-", "")
	result, err := m.service.VerifyAccount(ctx, m.account.Number, code, m.account.RegistrationID)
	if err != nil {
		var locked *signalservice.LockedError
		if errors.As(err, &locked) {
			result, err = m.resolveLockLocked(ctx, code, locked, pin)
			if err != nil {
				return err
			}
		} else {
			return &signalerr.IOError{Cause: err}
		}
	} else {
		m.account.ClearRegistrationLock()
	}

	m.account.ACI = result.ACI
	m.account.Registered = true
	m.state = StateVerified
	return m.finishLocked(ctx, result.StorageCapable)
}

// resolveLockLocked implements the LockedException branch of spec.md
// §4.4: no PIN surfaces PinLocked, a supplied PIN goes through the
// PinHelper and retries with the registration-lock token.
func (m *Manager) resolveLockLocked(ctx context.Context, code string, locked *signalservice.LockedError, pin *string) (*signalservice.VerifyResult, error) {
	if pin == nil {
		return nil, &signalerr.PinLockedError{TimeRemaining: locked.TimeRemaining}
	}

	helper := m.newKBS(locked.BackupCredentials)
	masterKey, err := helper.RestoreMasterKey(ctx, *pin, locked.BackupCredentials)
	if err != nil {
		return nil, err // already a *signalerr.IncorrectPinError or *signalerr.IOError
	}
	lockToken := kbs.DeriveRegistrationLock(masterKey)

	result, err := m.service.VerifyAccountWithRegistrationLockPin(ctx, m.account.Number, code, m.account.RegistrationID, lockToken)
	if err != nil {
		var lockedAgain *signalservice.LockedError
		if errors.As(err, &lockedAgain) {
			return nil, signalerr.Unexpectedf("registration lock PIN matched KBS but the server rejected it again")
		}
		return nil, &signalerr.IOError{Cause: err}
	}
	m.account.PINMasterKey = masterKey
	return result, nil
}

// finishLocked drives spec.md §4.4's post-verification steps and hands
// the account off to the Manager factory exactly once.
func (m *Manager) finishLocked(ctx context.Context, storageCapable bool) error {
	if err := m.preKeys.RefreshPreKeys(ctx); err != nil {
		return &signalerr.IOError{Cause: fmt.Errorf("failed to refresh pre-keys: %w", err)}
	}

	if m.deviceName != "" {
		encrypted, err := EncryptDeviceName(m.deviceName, m.account.IdentityKeyPair.GetPublicKey())
		if err != nil {
			return &signalerr.IOError{Cause: fmt.Errorf("failed to encrypt device name: %w", err)}
		}
		m.account.EncryptedDeviceName = encrypted
	}

	if storageCapable {
		if _, err := m.service.RetrieveRemoteStorage(ctx); err != nil {
			return &signalerr.IOError{Cause: fmt.Errorf("failed to retrieve remote storage: %w", err)}
		}
	}

	if err := m.service.SubmitEmptyProfile(ctx); err != nil {
		// Soft warning per spec.md §4.4 step 3: the account is still usable
		// without an initial profile.
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to submit initial empty profile")
	}

	m.state = StateRegistered
	account := m.account
	m.account = nil // release before the callback; single-writer invariant (spec.md §5)
	if m.onNewManager != nil {
		m.onNewManager(account)
		m.onNewManager = nil
	}
	return nil
}
