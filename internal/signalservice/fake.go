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

package signalservice

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-memory AccountService used by the registration tests.
// Every call is recorded so tests can assert on what the state machine
// actually sent, and every outcome is scriptable by setting the
// corresponding field before the call it affects.
type Fake struct {
	mu sync.Mutex

	// Scripted outcomes, consumed once per matching call and then reset
	// to nil so a retry after a scripted failure succeeds by default.
	NextVerifyResult *VerifyResult
	NextVerifyErr    error
	NextCaptchaErr   *CaptchaRequiredError

	AccountID         uuid.UUID
	StorageCapable    bool
	SubmitProfileErr  error
	UploadPreKeysErr  error
	RemoteStorageBlob []byte

	SMSRequests        []string
	SMSCaptchas        []string
	VoiceRequests      []string
	VerifyAttempts     []FakeVerifyAttempt
	SetAttributesCalls []AccountAttributes
	PreKeyUploads      []PreKeyUpload
	ProfileSubmitted   bool
}

// FakeVerifyAttempt records one verify call, with or without a lock token.
type FakeVerifyAttempt struct {
	Code      string
	LockToken string
}

var _ AccountService = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{AccountID: uuid.New()}
}

func (f *Fake) RequestSMS(ctx context.Context, number, captcha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NextCaptchaErr != nil {
		err := f.NextCaptchaErr
		f.NextCaptchaErr = nil
		return err
	}
	f.SMSRequests = append(f.SMSRequests, number)
	f.SMSCaptchas = append(f.SMSCaptchas, captcha)
	return nil
}

func (f *Fake) RequestVoice(ctx context.Context, number, locale, captcha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NextCaptchaErr != nil {
		err := f.NextCaptchaErr
		f.NextCaptchaErr = nil
		return err
	}
	f.VoiceRequests = append(f.VoiceRequests, number)
	return nil
}

func (f *Fake) verify(code, lockToken string) (*VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VerifyAttempts = append(f.VerifyAttempts, FakeVerifyAttempt{Code: code, LockToken: lockToken})
	if f.NextVerifyErr != nil {
		err := f.NextVerifyErr
		f.NextVerifyErr = nil
		return nil, err
	}
	if f.NextVerifyResult != nil {
		result := f.NextVerifyResult
		f.NextVerifyResult = nil
		return result, nil
	}
	return &VerifyResult{ACI: f.AccountID, StorageCapable: f.StorageCapable}, nil
}

func (f *Fake) VerifyAccount(ctx context.Context, number, code string, registrationID uint32) (*VerifyResult, error) {
	return f.verify(code, "")
}

func (f *Fake) VerifyAccountWithRegistrationLockPin(ctx context.Context, number, code string, registrationID uint32, lockToken string) (*VerifyResult, error) {
	return f.verify(code, lockToken)
}

func (f *Fake) SetAccountAttributes(ctx context.Context, attrs AccountAttributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetAttributesCalls = append(f.SetAttributesCalls, attrs)
	return nil
}

func (f *Fake) UploadPreKeys(ctx context.Context, upload PreKeyUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PreKeyUploads = append(f.PreKeyUploads, upload)
	return f.UploadPreKeysErr
}

func (f *Fake) RetrieveRemoteStorage(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RemoteStorageBlob, nil
}

func (f *Fake) SubmitEmptyProfile(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProfileSubmitted = true
	return f.SubmitProfileErr
}
