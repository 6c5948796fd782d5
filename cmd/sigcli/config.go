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

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects and parameterizes the protocol store's backing
// SQL database. Dialect is either "sqlite3" (the default, for a single
// local device) or "postgres" (for a multi-device deployment sharing one
// store), matching dbutil.NewWithDB's driver name argument.
type DatabaseConfig struct {
	Dialect string `yaml:"dialect"`
	URI     string `yaml:"uri"`
}

// SignalConfig holds service hostname overrides. Host replaces the chat
// service hostname, so the same binary can be pointed at a staging
// environment without a rebuild. StorageHost is parsed but not used: the
// storage manifest is always fetched from storage.signal.org.
type SignalConfig struct {
	Host        string `yaml:"host"`
	StorageHost string `yaml:"storage_host"`
}

// KBSConfig names the attested enclave used for PIN-based registration
// lock recovery (spec.md §4.3).
type KBSConfig struct {
	Host             string `yaml:"host"`
	ServiceID        string `yaml:"service_id"`
	MRENCLAVE        string `yaml:"mrenclave"`          // hex
	TrustedPublicKey string `yaml:"trusted_public_key"` // hex
}

// Config is the top-level sigcli configuration file.
type Config struct {
	DataDir    string            `yaml:"data_dir"`
	Number     string            `yaml:"number"`
	Locale     string            `yaml:"locale"`
	DeviceName string            `yaml:"device_name"`
	Database   DatabaseConfig    `yaml:"database"`
	Signal     SignalConfig      `yaml:"signal"`
	KBS        KBSConfig         `yaml:"kbs"`
	Logging    zeroconfig.Config `yaml:"logging"`
}

func defaultConfig() Config {
	return Config{
		DataDir: "./data",
		Locale:  "en-US",
		Database: DatabaseConfig{
			Dialect: "sqlite3",
			URI:     "file:sigcli.db?_foreign_keys=on",
		},
		KBS: KBSConfig{
			ServiceID: "0",
		},
		Logging: zeroconfig.Config{
			Writers: []zeroconfig.WriterConfig{
				{Type: zeroconfig.WriterTypeStdout, Format: zeroconfig.LogFormatPretty},
			},
		},
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	} else if err != nil {
		return cfg, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

func (c Config) buildLogger() (*zerolog.Logger, error) {
	log, err := c.Logging.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile logging config: %w", err)
	}
	return log, nil
}

func (c Config) accountPath() string {
	return c.DataDir + "/account.json"
}

func (c Config) recipientsPath() string {
	return c.DataDir + "/recipients.json"
}
