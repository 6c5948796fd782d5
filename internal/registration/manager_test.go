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

package registration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sigcli.dev/sigcli/internal/registration"
	"go.sigcli.dev/sigcli/internal/signalerr"
	"go.sigcli.dev/sigcli/internal/signalservice"
	"go.sigcli.dev/sigcli/internal/types"
)

type fakePreKeyRefresher struct {
	calls int
	err   error
}

func (f *fakePreKeyRefresher) RefreshPreKeys(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakePinHelper struct {
	masterKey []byte
	err       error
}

func (f *fakePinHelper) RestoreMasterKey(ctx context.Context, pin string, backupCredentials []byte) ([]byte, error) {
	return f.masterKey, f.err
}

func newTestManager(t *testing.T, service *signalservice.Fake, preKeys *fakePreKeyRefresher, newKBS func([]byte) registration.PinHelper) (*registration.Manager, *types.SignalAccount, *types.SignalAccount) {
	t.Helper()
	account := &types.SignalAccount{Number: "+15551234567", RegistrationID: 1234}
	var handedOff *types.SignalAccount
	mgr := registration.New(account, service, newKBS, preKeys, "en-US", func(a *types.SignalAccount) {
		handedOff = a
	})
	return mgr, account, handedOff
}

func TestRegisterRequestsSMSAndAdvancesState(t *testing.T) {
	service := signalservice.NewFake()
	mgr, account, _ := newTestManager(t, service, &fakePreKeyRefresher{}, nil)

	require.NoError(t, mgr.Register(context.Background(), registration.ChannelSMS, ""))
	assert.Equal(t, registration.StateCodeRequested, mgr.State())
	assert.Equal(t, []string{account.Number}, service.SMSRequests)
}

func TestRegisterStripsCaptchaURIPrefix(t *testing.T) {
	service := signalservice.NewFake()
	mgr, _, _ := newTestManager(t, service, &fakePreKeyRefresher{}, nil)

	require.NoError(t, mgr.Register(context.Background(), registration.ChannelSMS, "signalcaptcha://abc123"))
	require.Len(t, service.SMSRequests, 1)
	assert.Equal(t, []string{"abc123"}, service.SMSCaptchas, "the signalcaptcha:// prefix must be stripped")
}

func TestRegisterSurfacesCaptchaRequired(t *testing.T) {
	service := signalservice.NewFake()
	service.NextCaptchaErr = &signalservice.CaptchaRequiredError{ServerMessage: "solve me"}
	mgr, _, _ := newTestManager(t, service, &fakePreKeyRefresher{}, nil)

	err := mgr.Register(context.Background(), registration.ChannelSMS, "")
	var captchaErr *signalerr.CaptchaRequiredError
	require.ErrorAs(t, err, &captchaErr)
	assert.Equal(t, "solve me", captchaErr.ServerMessage)
	assert.Equal(t, registration.StateIdle, mgr.State(), "a failed request must not advance state")
}

func TestVerifyAccountSuccessRunsPostVerificationSteps(t *testing.T) {
	service := signalservice.NewFake()
	service.StorageCapable = true
	preKeys := &fakePreKeyRefresher{}
	var handedOff *types.SignalAccount
	handOffs := 0
	account := &types.SignalAccount{Number: "+15551234567", RegistrationID: 99}
	mgr := registration.New(account, service, nil, preKeys, "en-US", func(a *types.SignalAccount) {
		handedOff = a
		handOffs++
	})

	require.NoError(t, mgr.Register(context.Background(), registration.ChannelSMS, ""))
	err := mgr.VerifyAccount(context.Background(), "123-456", nil)
	require.NoError(t, err)

	assert.Equal(t, registration.StateRegistered, mgr.State())
	assert.Equal(t, 1, preKeys.calls)
	assert.True(t, service.ProfileSubmitted)
	require.NotNil(t, handedOff, "the new-manager callback must fire exactly once on success")
	assert.Equal(t, 1, handOffs, "the new-manager callback must fire exactly once on success")
	assert.Equal(t, service.AccountID, handedOff.ACI)
	require.Len(t, service.VerifyAttempts, 1)
	assert.Equal(t, "123456", service.VerifyAttempts[0].Code, "dashes must be stripped from the code")
}

func TestVerifyAccountLockedWithoutPinSurfacesPinLocked(t *testing.T) {
	service := signalservice.NewFake()
	service.NextVerifyErr = &signalservice.LockedError{TimeRemaining: 3600 * time.Second}
	mgr, _, _ := newTestManager(t, service, &fakePreKeyRefresher{}, nil)
	require.NoError(t, mgr.Register(context.Background(), registration.ChannelSMS, ""))

	err := mgr.VerifyAccount(context.Background(), "123456", nil)
	var pinLocked *signalerr.PinLockedError
	require.ErrorAs(t, err, &pinLocked)
	assert.Equal(t, 3600*time.Second, pinLocked.TimeRemaining)
}

func TestVerifyAccountLockedWithCorrectPinRetriesAndSucceeds(t *testing.T) {
	service := signalservice.NewFake()
	service.NextVerifyErr = &signalservice.LockedError{
		TimeRemaining:     time.Hour,
		BackupCredentials: []byte("backup-token"),
	}
	preKeys := &fakePreKeyRefresher{}
	newKBS := func(backupCredentials []byte) registration.PinHelper {
		return &fakePinHelper{masterKey: []byte("0123456789abcdef0123456789abcdef")}
	}
	mgr, _, _ := newTestManager(t, service, preKeys, newKBS)
	require.NoError(t, mgr.Register(context.Background(), registration.ChannelSMS, ""))

	err := mgr.VerifyAccount(context.Background(), "123456", strPtr("1234"))
	require.NoError(t, err)
	assert.Equal(t, registration.StateRegistered, mgr.State())
	require.Len(t, service.VerifyAttempts, 2, "a locked first attempt must be retried with the lock token")
	assert.NotEmpty(t, service.VerifyAttempts[1].LockToken)
}

func TestVerifyAccountIncorrectPinPropagatesTriesRemaining(t *testing.T) {
	service := signalservice.NewFake()
	service.NextVerifyErr = &signalservice.LockedError{BackupCredentials: []byte("backup-token")}
	newKBS := func(backupCredentials []byte) registration.PinHelper {
		return &fakePinHelper{err: &signalerr.IncorrectPinError{TriesRemaining: 4}}
	}
	mgr, _, _ := newTestManager(t, service, &fakePreKeyRefresher{}, newKBS)
	require.NoError(t, mgr.Register(context.Background(), registration.ChannelSMS, ""))

	err := mgr.VerifyAccount(context.Background(), "123456", strPtr("0000"))
	var incorrectPin *signalerr.IncorrectPinError
	require.ErrorAs(t, err, &incorrectPin)
	assert.Equal(t, 4, incorrectPin.TriesRemaining)
}

func TestVerifyAccountBeforeCodeRequestedIsUnexpected(t *testing.T) {
	service := signalservice.NewFake()
	mgr, _, _ := newTestManager(t, service, &fakePreKeyRefresher{}, nil)

	err := mgr.VerifyAccount(context.Background(), "123456", nil)
	var unexpected *signalerr.UnexpectedError
	require.ErrorAs(t, err, &unexpected)
}

func TestRegisterReactivatesAccountWithExistingACI(t *testing.T) {
	service := signalservice.NewFake()
	account := &types.SignalAccount{Number: "+15551234567", RegistrationID: 7, ACI: service.AccountID}
	preKeys := &fakePreKeyRefresher{}
	var handedOff *types.SignalAccount
	mgr := registration.New(account, service, nil, preKeys, "en-US", func(a *types.SignalAccount) { handedOff = a })

	require.NoError(t, mgr.Register(context.Background(), registration.ChannelSMS, ""))
	assert.Equal(t, registration.StateReactivated, mgr.State())
	assert.Len(t, service.SetAttributesCalls, 1)
	assert.Empty(t, service.SMSRequests, "a successful reactivation must not also request a code")
	assert.Equal(t, 1, preKeys.calls, "reactivation must still refresh pre-keys")
	assert.True(t, service.ProfileSubmitted)
	require.NotNil(t, handedOff, "reactivation must still hand the account off to the new-manager callback")
	assert.Equal(t, account.ACI, handedOff.ACI)
}

func strPtr(s string) *string { return &s }
