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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"go.mau.fi/mautrix-signal/pkg/signalmeow/web"
)

// Client is the concrete AccountService/KBSTransport backed by an HTTPS
// connection to chat.signal.org, reusing the teacher's signalmeow/web
// transport (embedded root cert, forced HTTP/2, zerolog request tracing)
// rather than building a second HTTP stack.
type Client struct {
	Host string // defaults to web.APIHostname when empty
}

var _ AccountService = (*Client)(nil)
var _ KBSTransport = (*Client)(nil)

func (c *Client) host() string {
	if c.Host != "" {
		return c.Host
	}
	return web.APIHostname
}

type codeRequestError struct {
	Reason string `json:"reason"`
}

func (c *Client) requestCode(ctx context.Context, path, number, captcha string) error {
	body, err := json.Marshal(map[string]string{"captcha": captcha})
	if err != nil {
		return fmt.Errorf("failed to encode code request: %w", err)
	}
	resp, err := web.SendHTTPRequest(ctx, c.host(), http.MethodGet, fmt.Sprintf(path, number), &web.HTTPReqOpt{Body: body})
	if err != nil {
		return fmt.Errorf("failed to send code request: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		var reqErr codeRequestError
		_ = web.DecodeHTTPResponseBody(ctx, &reqErr, resp)
		return &CaptchaRequiredError{ServerMessage: reqErr.Reason}
	}
	return web.DecodeHTTPResponseBody(ctx, nil, resp)
}

func (c *Client) RequestSMS(ctx context.Context, number, captcha string) error {
	return c.requestCode(ctx, "/v1/accounts/sms/code/%s", number, captcha)
}

// RequestVoice requests a voice-call code. locale is accepted for the
// AccountService interface but is not sent to the server.
func (c *Client) RequestVoice(ctx context.Context, number, locale, captcha string) error {
	return c.requestCode(ctx, "/v1/accounts/voice/code/%s", number, captcha)
}

type verifyResponseBody struct {
	UUID           string `json:"uuid"`
	StorageCapable bool   `json:"storageCapable"`
}

type lockedResponseBody struct {
	TimeRemainingMillis int64  `json:"timeRemaining"`
	BackupCredentials   string `json:"backupCredentials"`
}

func (c *Client) verify(ctx context.Context, number, code string, registrationID uint32, lockToken string) (*VerifyResult, error) {
	payload := map[string]any{"registrationId": registrationID}
	if lockToken != "" {
		payload["registrationLock"] = lockToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}
	resp, err := web.SendHTTPRequest(ctx, c.host(), http.MethodPut, fmt.Sprintf("/v1/accounts/code/%s", code), &web.HTTPReqOpt{
		Body:     body,
		Username: &number,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send verify request: %w", err)
	}
	if resp.StatusCode == http.StatusLocked {
		var locked lockedResponseBody
		if err := web.DecodeHTTPResponseBody(ctx, &locked, resp); err != nil {
			return nil, fmt.Errorf("failed to decode lock response: %w", err)
		}
		credentials, _ := base64.StdEncoding.DecodeString(locked.BackupCredentials)
		return nil, &LockedError{
			TimeRemaining:     time.Duration(locked.TimeRemainingMillis) * time.Millisecond,
			BackupCredentials: credentials,
		}
	}
	var out verifyResponseBody
	if err := web.DecodeHTTPResponseBody(ctx, &out, resp); err != nil {
		return nil, err
	}
	aci, err := uuid.Parse(out.UUID)
	if err != nil {
		return nil, fmt.Errorf("server returned malformed account id: %w", err)
	}
	return &VerifyResult{ACI: aci, StorageCapable: out.StorageCapable}, nil
}

func (c *Client) VerifyAccount(ctx context.Context, number, code string, registrationID uint32) (*VerifyResult, error) {
	return c.verify(ctx, number, code, registrationID, "")
}

func (c *Client) VerifyAccountWithRegistrationLockPin(ctx context.Context, number, code string, registrationID uint32, lockToken string) (*VerifyResult, error) {
	return c.verify(ctx, number, code, registrationID, lockToken)
}

func (c *Client) SetAccountAttributes(ctx context.Context, attrs AccountAttributes) error {
	body, err := json.Marshal(map[string]any{
		"registrationId":                 attrs.RegistrationID,
		"unidentifiedAccessKey":          base64.StdEncoding.EncodeToString(attrs.UnidentifiedAccessKey),
		"unrestrictedUnidentifiedAccess": attrs.UnrestrictedUnidentifiedAccess,
		"discoverableByPhoneNumber":      attrs.Discoverable,
		"capabilities":                   attrs.Capabilities,
	})
	if err != nil {
		return fmt.Errorf("failed to encode account attributes: %w", err)
	}
	resp, err := web.SendHTTPRequest(ctx, c.host(), http.MethodPut, "/v1/accounts/attributes/", &web.HTTPReqOpt{Body: body})
	if err != nil {
		return fmt.Errorf("failed to send account attributes: %w", err)
	}
	return web.DecodeHTTPResponseBody(ctx, nil, resp)
}

type preKeyUploadBody struct {
	IdentityKey  string            `json:"identityKey"`
	PreKeys      []preKeyEntryBody `json:"preKeys"`
	SignedPreKey signedPreKeyBody  `json:"signedPreKey"`
}

type preKeyEntryBody struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

type signedPreKeyBody struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

func (c *Client) UploadPreKeys(ctx context.Context, upload PreKeyUpload) error {
	entries := make([]preKeyEntryBody, len(upload.PreKeys))
	for i, pk := range upload.PreKeys {
		entries[i] = preKeyEntryBody{KeyID: pk.ID, PublicKey: base64.StdEncoding.EncodeToString(pk.PublicKey)}
	}
	body, err := json.Marshal(preKeyUploadBody{
		IdentityKey: base64.StdEncoding.EncodeToString(upload.IdentityKey),
		PreKeys:     entries,
		SignedPreKey: signedPreKeyBody{
			KeyID:     upload.SignedPreKey.ID,
			PublicKey: base64.StdEncoding.EncodeToString(upload.SignedPreKey.PublicKey),
			Signature: base64.StdEncoding.EncodeToString(upload.SignedPreKey.Signature),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode pre-key upload: %w", err)
	}
	resp, err := web.SendHTTPRequest(ctx, c.host(), http.MethodPut, "/v2/keys", &web.HTTPReqOpt{Body: body})
	if err != nil {
		return fmt.Errorf("failed to send pre-key upload: %w", err)
	}
	return web.DecodeHTTPResponseBody(ctx, nil, resp)
}

func (c *Client) RetrieveRemoteStorage(ctx context.Context) ([]byte, error) {
	resp, err := web.SendHTTPRequest(ctx, "storage.signal.org", http.MethodGet, "/v1/storage/manifest", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote storage manifest: %w", err)
	}
	defer web.CloseBody(resp)
	return readBody(resp)
}

func (c *Client) SubmitEmptyProfile(ctx context.Context) error {
	resp, err := web.SendHTTPRequest(ctx, c.host(), http.MethodPut, "/v1/profile/", &web.HTTPReqOpt{Body: []byte("{}")})
	if err != nil {
		return fmt.Errorf("failed to submit empty profile: %w", err)
	}
	return web.DecodeHTTPResponseBody(ctx, nil, resp)
}

// OpenHandshake and SendEstablished implement KBSTransport by tunnelling
// the enclave's opaque attestation bytes over HTTP to the KBS host, the
// same way the account endpoints above tunnel JSON.
func (c *Client) OpenHandshake(ctx context.Context, host, serviceID string, initialRequest []byte) ([]byte, error) {
	resp, err := web.SendHTTPRequest(ctx, host, http.MethodPut, fmt.Sprintf("/v1/enclave/%s/handshake", serviceID), &web.HTTPReqOpt{
		Body:        initialRequest,
		ContentType: web.ContentTypeOctetStream,
	})
	if err != nil {
		return nil, err
	}
	defer web.CloseBody(resp)
	return readBody(resp)
}

func (c *Client) SendEstablished(ctx context.Context, host, serviceID string, ciphertext []byte) ([]byte, error) {
	resp, err := web.SendHTTPRequest(ctx, host, http.MethodPut, fmt.Sprintf("/v1/enclave/%s/request", serviceID), &web.HTTPReqOpt{
		Body:        ciphertext,
		ContentType: web.ContentTypeOctetStream,
	})
	if err != nil {
		return nil, err
	}
	defer web.CloseBody(resp)
	return readBody(resp)
}
