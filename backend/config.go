// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage/crypto"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the settings read from the environment. Command-line flags
// use these values as their defaults.
type Config struct {
	Addr             string `envconfig:"ADDR" default:":8080"`
	DataDir          string `envconfig:"DATA_DIR" default:"data"`
	Debug            bool   `envconfig:"DEBUG"`
	UseMockAuth      bool   `envconfig:"USE_MOCK_AUTH"`
	PublicURL        string `envconfig:"PUBLIC_URL"`
	RaftEnabled      bool   `envconfig:"RAFT"`
	RaftBind         string `envconfig:"RAFT_BIND" default:":8081"`
	RaftAdvertise    string `envconfig:"RAFT_ADVERTISE"`
	RaftSecret       string `envconfig:"RAFT_SECRET"`
	RaftBootstrap    bool   `envconfig:"RAFT_BOOTSTRAP"`
	ClusterAddr      string `envconfig:"CLUSTER_ADDR" default:":9090"`
	ClusterAdvertise string `envconfig:"CLUSTER_ADVERTISE"`
	AuthCookieName   string `envconfig:"AUTH_COOKIE_NAME" default:"wicketkeeper_auth"`
	AuthJWKSURL      string `envconfig:"AUTH_JWKS_URL"`
	AuthIssuer       string `envconfig:"AUTH_ISSUER"`
	BootstrapAdmin   string `envconfig:"ADMIN"`

	// MasterKey is the passphrase of the storage encryption key.
	MasterKey string `envconfig:"MASTER_KEY"`
}

// LoadConfig reads WK_* variables, after loading envFile if it exists.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	var c Config
	if err := envconfig.Process("WK", &c); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}
	return c, nil
}

// LoadMasterKey opens the master key in dataDir, creating it on first use.
// An empty passphrase means unencrypted storage, which is refused once a
// key file exists.
func LoadMasterKey(dataDir, passphrase string) (crypto.MasterKey, error) {
	keyFile := filepath.Join(dataDir, "master.key")
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%s exists but WK_MASTER_KEY is not set", keyFile)
		}
		log.Println("Warning: No WK_MASTER_KEY provided. Data will be stored UNENCRYPTED.")
		return nil, nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	mk, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	if err == nil {
		log.Println("Loaded master encryption key.")
		return mk, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}
	log.Println("Initializing new master encryption key...")
	if mk, err = crypto.CreateMasterKey(); err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	if err := mk.Save([]byte(passphrase), keyFile); err != nil {
		return nil, fmt.Errorf("failed to save master key: %w", err)
	}
	return mk, nil
}
