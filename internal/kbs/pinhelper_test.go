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

package kbs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sigcli.dev/sigcli/internal/kbs"
	"go.sigcli.dev/sigcli/internal/signalerr"
)

// fakeTransport stands in for signalservice.KBSTransport. Since a real
// handshake requires an actual enclave on the other end, it is only used
// to exercise the failure paths PinHelper must surface correctly.
type fakeTransport struct {
	handshakeReply []byte
	handshakeErr   error
	establishedErr error
}

func (f *fakeTransport) OpenHandshake(ctx context.Context, host, serviceID string, initialRequest []byte) ([]byte, error) {
	if f.handshakeErr != nil {
		return nil, f.handshakeErr
	}
	return f.handshakeReply, nil
}

func (f *fakeTransport) SendEstablished(ctx context.Context, host, serviceID string, ciphertext []byte) ([]byte, error) {
	return nil, f.establishedErr
}

func testConfig() kbs.Config {
	return kbs.Config{
		Host:             "kbs.example.signal.org",
		MRENCLAVE:        make([]byte, 64),
		TrustedPublicKey: make([]byte, 32),
		ServiceID:        "deadbeef",
	}
}

func TestRestoreMasterKeyWrapsTransportFailureAsIOError(t *testing.T) {
	transport := &fakeTransport{handshakeErr: errors.New("connection refused")}
	helper := &kbs.PinHelper{Config: testConfig(), Service: transport}

	_, err := helper.RestoreMasterKey(context.Background(), "1234", []byte("token"))
	require.Error(t, err)
	var ioErr *signalerr.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestRestoreMasterKeyFailsOnGarbledHandshakeReply(t *testing.T) {
	// A handshake reply that isn't a valid attested response must surface
	// as an IOError rather than panicking the FFI layer.
	transport := &fakeTransport{handshakeReply: []byte{0x01, 0x02, 0x03}}
	helper := &kbs.PinHelper{Config: testConfig(), Service: transport}

	_, err := helper.RestoreMasterKey(context.Background(), "1234", []byte("token"))
	require.Error(t, err)
	var ioErr *signalerr.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestDeriveRegistrationLockIsDeterministic(t *testing.T) {
	masterKey := []byte("0123456789abcdef0123456789abcdef")
	first := kbs.DeriveRegistrationLock(masterKey)
	second := kbs.DeriveRegistrationLock(masterKey)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)

	other := kbs.DeriveRegistrationLock([]byte("different master key material!!"))
	assert.NotEqual(t, first, other, "different master keys must not collide")
}
