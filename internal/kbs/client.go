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

// Package kbs implements the PinHelper (spec.md §4.3): deriving a
// registration-lock token from a user PIN by exchanging it, over an
// attested channel to the Key Backup Service enclave, for the account's
// stored master key.
package kbs

import (
	"context"
	"fmt"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/signalservice"
)

// Config pins the enclave this client will trust, per spec.md §4.3 step 1.
type Config struct {
	Host             string
	MRENCLAVE        []byte // trusted code hash
	TrustedPublicKey []byte
	ServiceID        string
}

// Client drives one attested-channel exchange with the enclave named by
// Config. A Client is single-use: build a fresh one (via Dial) for every
// PIN attempt, mirroring the lifetime of the underlying HSM handshake.
type Client struct {
	cfg     Config
	service signalservice.KBSTransport
	hsm     *libsignalgo.HSMEnclaveClient
}

// Dial performs the attested handshake: it sends the enclave client's
// initial request to svc, feeds the enclave's reply back into the HSM
// client, and returns a Client ready for EstablishedSend/Receive.
func Dial(ctx context.Context, cfg Config, service signalservice.KBSTransport) (*Client, error) {
	hsm, err := libsignalgo.NewHSMEnclaveClient(cfg.TrustedPublicKey, cfg.MRENCLAVE)
	if err != nil {
		return nil, fmt.Errorf("failed to construct enclave client: %w", err)
	}
	initial, err := hsm.InitialRequest()
	if err != nil {
		return nil, fmt.Errorf("failed to build initial handshake request: %w", err)
	}
	handshakeReply, err := service.OpenHandshake(ctx, cfg.Host, cfg.ServiceID, initial)
	if err != nil {
		return nil, fmt.Errorf("failed to open enclave handshake: %w", err)
	}
	if err := hsm.CompleteHandshake(handshakeReply); err != nil {
		return nil, fmt.Errorf("enclave attestation failed: %w", err)
	}
	return &Client{cfg: cfg, service: service, hsm: hsm}, nil
}

// roundTrip encrypts plaintext for the established channel, ships it
// through the transport, and decrypts the reply.
func (c *Client) roundTrip(ctx context.Context, plaintext []byte) ([]byte, error) {
	ciphertext, err := c.hsm.EstablishedSend(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal enclave request: %w", err)
	}
	replyCiphertext, err := c.service.SendEstablished(ctx, c.cfg.Host, c.cfg.ServiceID, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange enclave request: %w", err)
	}
	plainReply, err := c.hsm.EstablishedReceive(replyCiphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to open enclave reply: %w", err)
	}
	return plainReply, nil
}
