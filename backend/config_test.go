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
	"os"
	"path/filepath"
	"testing"
)

// unsetEnv clears name for the duration of the test.
func unsetEnv(t *testing.T, name string) {
	t.Setenv(name, "")
	os.Unsetenv(name)
}

func TestLoadConfig(t *testing.T) {
	for _, name := range []string{"WK_ADDR", "WK_DATA_DIR", "WK_RAFT", "WK_PUBLIC_URL", "WK_ADMIN"} {
		unsetEnv(t, name)
	}

	t.Run("Defaults", func(t *testing.T) {
		c, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if c.Addr != ":8080" || c.DataDir != "data" || c.RaftEnabled || c.AuthCookieName != "wicketkeeper_auth" {
			t.Errorf("config = %+v", c)
		}
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("WK_ADDR", ":9999")
		t.Setenv("WK_RAFT", "true")
		c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if c.Addr != ":9999" || !c.RaftEnabled {
			t.Errorf("config = %+v", c)
		}
	})

	t.Run("EnvFile", func(t *testing.T) {
		t.Setenv("WK_ADDR", ":7070")
		envFile := filepath.Join(t.TempDir(), ".env")
		data := "WK_ADDR=:1234\nWK_PUBLIC_URL=https://scores.example.com\nWK_ADMIN=boss@example.com\n"
		if err := os.WriteFile(envFile, []byte(data), 0600); err != nil {
			t.Fatal(err)
		}
		c, err := LoadConfig(envFile)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if c.Addr != ":7070" {
			t.Errorf("the environment should win over the file: %q", c.Addr)
		}
		if c.PublicURL != "https://scores.example.com" || c.BootstrapAdmin != "boss@example.com" {
			t.Errorf("config = %+v", c)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		t.Setenv("WK_RAFT", "perhaps")
		if _, err := LoadConfig(""); err == nil {
			t.Error("expected an error for a bad boolean")
		}
	})
}

func TestLoadMasterKey(t *testing.T) {
	dir := t.TempDir()

	mk, err := LoadMasterKey(dir, "")
	if err != nil || mk != nil {
		t.Fatalf("no passphrase: %v, %v", mk, err)
	}

	mk, err = LoadMasterKey(dir, "hunter2")
	if err != nil || mk == nil {
		t.Fatalf("create: %v, %v", mk, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "master.key")); err != nil {
		t.Errorf("key file: %v", err)
	}

	again, err := LoadMasterKey(dir, "hunter2")
	if err != nil || again == nil {
		t.Fatalf("reload: %v", err)
	}
	ct, err := mk.Encrypt([]byte("wicket"))
	if err != nil {
		t.Fatal(err)
	}
	if pt, err := again.Decrypt(ct); err != nil || string(pt) != "wicket" {
		t.Errorf("reloaded key cannot decrypt: %q, %v", pt, err)
	}

	if _, err := LoadMasterKey(dir, ""); err == nil {
		t.Error("an existing key without a passphrase should be refused")
	}
	if _, err := LoadMasterKey(dir, "wrong"); err == nil {
		t.Error("a wrong passphrase should be refused")
	}
}
