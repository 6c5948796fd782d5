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

package registration

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"google.golang.org/protobuf/proto"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	signalpb "go.mau.fi/mautrix-signal/pkg/signalmeow/protobuf"
)

// EncryptDeviceName seals a human-readable device name against the
// account's own identity key, the way the server requires it to be
// stored: an ephemeral ECDH key agreement feeding two independent
// HMAC-derived keys (one for a synthetic IV, one for the AES-CTR stream),
// wrapped in the same DeviceName wire message the service expects.
func EncryptDeviceName(name string, identityKey *libsignalgo.PublicKey) ([]byte, error) {
	ephemeralPrivKey, err := libsignalgo.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral private key: %w", err)
	}
	ephemeralPubKey, err := ephemeralPrivKey.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral public key: %w", err)
	}
	ephemeralPubKeyBytes, err := ephemeralPubKey.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize ephemeral public key: %w", err)
	}
	masterSecret, err := ephemeralPrivKey.Agree(identityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to agree on device name secret: %w", err)
	}

	nameBytes := []byte(name)
	authKey := hmacSHA256(masterSecret, []byte("auth"))
	syntheticIV := hmacSHA256(authKey, nameBytes)[:16]
	cipherKey := hmacSHA256(hmacSHA256(masterSecret, []byte("cipher")), syntheticIV)
	ciphertext := make([]byte, len(nameBytes))
	aes256CTR(cipherKey, ciphertext, nameBytes)

	wrapped, err := proto.Marshal(&signalpb.DeviceName{
		EphemeralPublic: ephemeralPubKeyBytes,
		SyntheticIv:     syntheticIV,
		Ciphertext:      ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device name: %w", err)
	}
	return wrapped, nil
}

// DecryptDeviceName reverses EncryptDeviceName, verifying the synthetic IV
// before trusting the recovered plaintext.
func DecryptDeviceName(wrapped []byte, identityKey *libsignalgo.PrivateKey) (string, error) {
	var msg signalpb.DeviceName
	if err := proto.Unmarshal(wrapped, &msg); err != nil {
		return "", fmt.Errorf("failed to unmarshal device name: %w", err)
	}
	ephemeralPubKey, err := libsignalgo.DeserializePublicKey(msg.GetEphemeralPublic())
	if err != nil {
		return "", fmt.Errorf("failed to deserialize ephemeral public key: %w", err)
	}
	masterSecret, err := identityKey.Agree(ephemeralPubKey)
	if err != nil {
		return "", fmt.Errorf("failed to agree on device name secret: %w", err)
	}

	cipherKey := hmacSHA256(hmacSHA256(masterSecret, []byte("cipher")), msg.GetSyntheticIv())
	plaintext := make([]byte, len(msg.GetCiphertext()))
	aes256CTR(cipherKey, plaintext, msg.GetCiphertext())

	authKey := hmacSHA256(masterSecret, []byte("auth"))
	expectedIV := hmacSHA256(authKey, plaintext)[:16]
	if !hmac.Equal(expectedIV, msg.GetSyntheticIv()) {
		return "", fmt.Errorf("device name synthetic IV mismatch")
	}
	return string(plaintext), nil
}

func hmacSHA256(key, input []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(input)
	return mac.Sum(nil)
}

func aes256CTR(key, dst, src []byte) {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err) // key is always 32 bytes from hmacSHA256; a construction bug, not a runtime condition
	}
	cipher.NewCTR(block, make([]byte, aes.BlockSize)).XORKeyStream(dst, src)
}
