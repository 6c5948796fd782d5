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

package recipientstore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"go.mau.fi/mautrix-signal/pkg/libsignalgo"
	"go.sigcli.dev/sigcli/internal/types"
)

// fileFormat is the on-disk shape documented in spec.md §6.
type fileFormat struct {
	LastID     uint64           `json:"lastId"`
	Recipients []recipientJSON `json:"recipients"`
}

type recipientJSON struct {
	ID                   uint64         `json:"id"`
	Number               *string        `json:"number"`
	UUID                 *string        `json:"uuid"`
	ProfileKey           *string        `json:"profileKey"`
	ProfileKeyCredential *string        `json:"profileKeyCredential"`
	Contact              *contactJSON   `json:"contact"`
	Profile              *profileJSON   `json:"profile"`
}

type contactJSON struct {
	Name                  string `json:"name"`
	Color                 *string `json:"color"`
	MessageExpirationTime uint32 `json:"messageExpirationTime"`
	Blocked               bool   `json:"blocked"`
	Archived              bool   `json:"archived"`
}

type profileJSON struct {
	LastUpdateTimestamp    uint64   `json:"lastUpdateTimestamp"`
	GivenName              *string  `json:"givenName"`
	FamilyName             *string  `json:"familyName"`
	About                  *string  `json:"about"`
	AboutEmoji             *string  `json:"aboutEmoji"`
	AvatarURLPath          *string  `json:"avatarUrlPath"`
	UnidentifiedAccessMode string   `json:"unidentifiedAccessMode"`
	Capabilities           []string `json:"capabilities"`
}

// migrateLegacyFormat upgrades the pre-merge recipient store format (a bare
// JSON array of recipients, with no lastId wrapper) to the current
// {"lastId":...,"recipients":[...]} shape. It uses gjson/sjson to patch the
// document in place rather than hand-rolling a second struct for a format
// this repo never writes again, since the canonical format below is a
// plain struct round-trip better served by encoding/json.
func migrateLegacyFormat(data []byte) ([]byte, error) {
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return data, nil
	}
	var maxID uint64
	root.ForEach(func(_, value gjson.Result) bool {
		if id := value.Get("id").Uint(); id > maxID {
			maxID = id
		}
		return true
	})
	wrapped, err := sjson.SetRawBytes([]byte(`{}`), "recipients", data)
	if err != nil {
		return nil, err
	}
	wrapped, err = sjson.SetBytes(wrapped, "lastId", maxID)
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// Load restores a store from path. A missing file is equivalent to an
// empty store, per spec.md §6.
func Load(path string, log zerolog.Logger) (*Store, error) {
	s := New(path, log)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read recipient store %q: %w", path, err)
	}
	if err := s.loadBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse recipient store %q: %w", path, err)
	}
	return s, nil
}

func (s *Store) loadBytes(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("not valid JSON")
	}
	data, err := migrateLegacyFormat(data)
	if err != nil {
		return fmt.Errorf("failed to migrate legacy recipient store: %w", err)
	}
	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	s.lastID = types.ID(file.LastID)
	for _, rj := range file.Recipients {
		r, err := rj.toRecipient()
		if err != nil {
			return fmt.Errorf("recipient %d: %w", rj.ID, err)
		}
		s.byID[r.ID] = r
		s.indexLocked(r)
	}
	return nil
}

// Save serializes the full store state to an in-memory buffer and then
// writes that buffer to the file in a single pass (write-temp-then-rename),
// so a serialization error never truncates the existing file and a crash
// between mutation and flush loses only the triggering operation.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	buf, err := s.serializeLocked()
	if err != nil {
		return fmt.Errorf("failed to serialize recipient store: %w", err)
	}
	if s.path == "" {
		return nil
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".recipients-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace recipient store: %w", err)
	}
	return nil
}

func (s *Store) serializeLocked() (*bytes.Buffer, error) {
	file := fileFormat{LastID: uint64(s.lastID)}
	for _, r := range s.byID {
		rj, err := fromRecipient(r)
		if err != nil {
			return nil, err
		}
		file.Recipients = append(file.Recipients, rj)
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return nil, err
	}
	return buf, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromRecipient(r *types.Recipient) (recipientJSON, error) {
	rj := recipientJSON{ID: uint64(r.ID)}
	if r.Address.HasNumber() {
		rj.Number = strPtr(r.Address.Number)
	}
	if r.Address.HasUUID() {
		u := r.Address.UUID.String()
		rj.UUID = &u
	}
	if r.ProfileKey != nil {
		enc := base64.StdEncoding.EncodeToString(r.ProfileKey.Slice())
		rj.ProfileKey = &enc
	}
	if r.ProfileKeyCredential != nil {
		enc := base64.StdEncoding.EncodeToString(r.ProfileKeyCredential)
		rj.ProfileKeyCredential = &enc
	}
	if r.Contact != nil {
		rj.Contact = &contactJSON{
			Name:                  r.Contact.Name,
			Color:                 strPtr(r.Contact.Color),
			MessageExpirationTime: r.Contact.MessageExpirationTime,
			Blocked:               r.Contact.Blocked,
			Archived:              r.Contact.Archived,
		}
	}
	if r.Profile != nil {
		caps := make([]string, 0, len(r.Profile.Capabilities))
		for c := range r.Profile.Capabilities {
			caps = append(caps, string(c))
		}
		rj.Profile = &profileJSON{
			LastUpdateTimestamp:    uint64(r.Profile.LastUpdateTimestamp.UnixMilli()),
			GivenName:              strPtr(r.Profile.GivenName),
			FamilyName:             strPtr(r.Profile.FamilyName),
			About:                  strPtr(r.Profile.About),
			AboutEmoji:             strPtr(r.Profile.AboutEmoji),
			AvatarURLPath:          strPtr(r.Profile.AvatarURLPath),
			UnidentifiedAccessMode: string(r.Profile.UnidentifiedAccessMode),
			Capabilities:           caps,
		}
	}
	return rj, nil
}

func optStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (rj recipientJSON) toRecipient() (*types.Recipient, error) {
	r := &types.Recipient{ID: types.ID(rj.ID)}
	if rj.Number != nil {
		r.Address.Number = *rj.Number
	}
	if rj.UUID != nil {
		u, err := uuid.Parse(*rj.UUID)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid: %w", err)
		}
		r.Address.UUID = u
	}
	if !r.Address.Valid() {
		return nil, fmt.Errorf("recipient has neither uuid nor number")
	}
	if rj.ProfileKey != nil {
		raw, err := base64.StdEncoding.DecodeString(*rj.ProfileKey)
		if err != nil {
			return nil, fmt.Errorf("invalid profileKey: %w", err)
		}
		key, err := libsignalgo.DeserializeProfileKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid profileKey: %w", err)
		}
		r.ProfileKey = key
	}
	if rj.ProfileKeyCredential != nil {
		raw, err := base64.StdEncoding.DecodeString(*rj.ProfileKeyCredential)
		if err != nil {
			return nil, fmt.Errorf("invalid profileKeyCredential: %w", err)
		}
		r.ProfileKeyCredential = raw
	}
	if rj.Contact != nil {
		r.Contact = &types.Contact{
			Name:                  rj.Contact.Name,
			Color:                 optStr(rj.Contact.Color),
			MessageExpirationTime: rj.Contact.MessageExpirationTime,
			Blocked:               rj.Contact.Blocked,
			Archived:              rj.Contact.Archived,
		}
	}
	if rj.Profile != nil {
		caps := types.NewCapabilitySet()
		capsJSON, err := json.Marshal(rj.Profile.Capabilities)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(capsJSON, &caps); err != nil {
			return nil, err
		}
		r.Profile = &types.Profile{
			LastUpdateTimestamp:    time.UnixMilli(int64(rj.Profile.LastUpdateTimestamp)),
			GivenName:              optStr(rj.Profile.GivenName),
			FamilyName:             optStr(rj.Profile.FamilyName),
			About:                  optStr(rj.Profile.About),
			AboutEmoji:             optStr(rj.Profile.AboutEmoji),
			AvatarURLPath:          optStr(rj.Profile.AvatarURLPath),
			UnidentifiedAccessMode: types.UnidentifiedAccessMode(rj.Profile.UnidentifiedAccessMode),
			Capabilities:           caps,
		}
	}
	return r, nil
}
