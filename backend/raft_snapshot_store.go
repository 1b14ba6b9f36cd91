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
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage/crypto"
	"github.com/hashicorp/raft"
)

const snapshotCryptoCtx = "wicketkeeper-raft-snapshot"

// loadSnapshotKey reads the snapshot key from dataDir, creating it on
// first use. The key file is encrypted with the master key.
func loadSnapshotKey(mk crypto.MasterKey, dataDir string) (crypto.EncryptionKey, error) {
	path := filepath.Join(dataDir, "snapshot.key")
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		key, err := mk.ReadEncryptedKey(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot key: %w", err)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	log.Printf("Generating Raft snapshot encryption key...")
	key, err := mk.NewKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate snapshot key: %w", err)
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	if err := key.WriteEncryptedKey(out); err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to write snapshot key: %w", err)
	}
	return key, out.Close()
}

// EncryptedSnapshotStore encrypts snapshots on disk and serves them
// decrypted from Open, for restore and for streaming to followers.
type EncryptedSnapshotStore struct {
	inner raft.SnapshotStore
	key   crypto.EncryptionKey
}

// NewEncryptedSnapshotStore wraps inner. A nil key stores plaintext.
func NewEncryptedSnapshotStore(inner raft.SnapshotStore, key crypto.EncryptionKey) *EncryptedSnapshotStore {
	return &EncryptedSnapshotStore{
		inner: inner,
		key:   key,
	}
}

func (e *EncryptedSnapshotStore) Create(version raft.SnapshotVersion, index, term uint64, configuration raft.Configuration, snapshotSize uint64, trans raft.Transport) (raft.SnapshotSink, error) {
	sink, err := e.inner.Create(version, index, term, configuration, snapshotSize, trans)
	if err != nil {
		return nil, err
	}
	if e.key == nil {
		return sink, nil
	}
	w, err := e.key.StartWriter([]byte(snapshotCryptoCtx), sink)
	if err != nil {
		sink.Cancel()
		return nil, err
	}
	return &encryptedSnapshotSink{inner: sink, stream: w}, nil
}

func (e *EncryptedSnapshotStore) List() ([]*raft.SnapshotMeta, error) {
	return e.inner.List()
}

func (e *EncryptedSnapshotStore) Open(id string) (*raft.SnapshotMeta, io.ReadCloser, error) {
	meta, rc, err := e.inner.Open(id)
	if err != nil {
		return nil, nil, err
	}
	if e.key == nil {
		return meta, rc, nil
	}
	r, err := e.key.StartReader([]byte(snapshotCryptoCtx), rc)
	if err != nil {
		rc.Close()
		return nil, nil, err
	}
	return meta, &decryptedReadCloser{inner: rc, stream: r}, nil
}

type encryptedSnapshotSink struct {
	inner  raft.SnapshotSink
	stream crypto.StreamWriter
}

func (s *encryptedSnapshotSink) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// Close flushes the encryption stream before committing the snapshot.
func (s *encryptedSnapshotSink) Close() error {
	if err := s.stream.Close(); err != nil {
		s.inner.Cancel()
		return err
	}
	return s.inner.Close()
}

func (s *encryptedSnapshotSink) ID() string {
	return s.inner.ID()
}

func (s *encryptedSnapshotSink) Cancel() error {
	s.stream.Close()
	return s.inner.Cancel()
}

type decryptedReadCloser struct {
	inner  io.ReadCloser
	stream crypto.StreamReader
}

func (r *decryptedReadCloser) Read(p []byte) (int, error) {
	return r.stream.Read(p)
}

func (r *decryptedReadCloser) Close() error {
	r.stream.Close()
	return r.inner.Close()
}
