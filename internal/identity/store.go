package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zexio-io/zexio-agent/internal/core"
	"github.com/zexio-io/zexio-agent/internal/cryptoutil"
)

// Store persists a single Record to disk, sealing the node secret at
// rest under a master key. The zero value is not usable; construct one
// with NewStore.
type Store struct {
	path          string
	masterKeyPath string
	log           *slog.Logger
}

// NewStore returns a Store that reads and writes the identity record
// at path, sealing its node_secret under the master key at
// masterKeyPath. The parent directories are created with 0700
// permissions if they do not already exist, and a master key is
// generated and persisted on first use if none exists yet.
func NewStore(path, masterKeyPath string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("identity: create directory %s: %w", dir, err)
	}
	return &Store{path: path, masterKeyPath: masterKeyPath, log: slog.Default().With("component", "identity")}, nil
}

// Load reads the identity record from disk and opens its sealed
// node_secret. It returns os.ErrNotExist (wrapped) if no record has
// been bootstrapped yet.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var onDisk onDiskRecord
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return nil, &core.DomainError{
			Code:    core.ErrorCodeIdentityCorrupt,
			Message: fmt.Sprintf("parse identity file %s: %v", s.path, err),
		}
	}
	if onDisk.NodeID == "" || len(onDisk.SealedSecret) == 0 {
		return nil, &core.DomainError{
			Code:    core.ErrorCodeIdentityCorrupt,
			Message: fmt.Sprintf("identity file %s missing node_id or node_secret", s.path),
		}
	}

	masterKey, err := s.loadOrGenerateMasterKey()
	if err != nil {
		return nil, err
	}
	secret, err := cryptoutil.Open(masterKey, onDisk.SealedSecret)
	if err != nil {
		return nil, &core.DomainError{
			Code:    core.ErrorCodeIdentityCorrupt,
			Message: fmt.Sprintf("open sealed node secret in %s: %v", s.path, err),
		}
	}

	rec := &Record{
		Version:    onDisk.Version,
		NodeID:     onDisk.NodeID,
		NodeSecret: string(secret),
		RelayURL:   onDisk.RelayURL,
		CreatedAt:  onDisk.CreatedAt,
	}
	rec.RelayURL = rec.effectiveRelayURL()
	return rec, nil
}

// Save writes rec to disk atomically, sealing its node_secret under the
// master key: the record is serialized to a temporary file in the same
// directory, given owner-only permissions, then renamed over the
// destination. A failed write never corrupts an existing record,
// following the same pattern used elsewhere in this codebase for
// crash-safe persistence of generated secrets.
func (s *Store) Save(rec *Record) error {
	masterKey, err := s.loadOrGenerateMasterKey()
	if err != nil {
		return err
	}
	sealed, err := cryptoutil.Seal(masterKey, []byte(rec.NodeSecret))
	if err != nil {
		return fmt.Errorf("identity: seal node secret: %w", err)
	}

	onDisk := onDiskRecord{
		Version:      rec.Version,
		NodeID:       rec.NodeID,
		SealedSecret: sealed,
		RelayURL:     rec.RelayURL,
		CreatedAt:    rec.CreatedAt,
	}
	data, err := yaml.Marshal(onDisk)
	if err != nil {
		return fmt.Errorf("identity: marshal record: %w", err)
	}
	return atomicWriteFile(s.path, data, 0o600)
}

// Remove deletes the persisted identity file, discarding the node's
// local identity. It is called when the control plane reports it no
// longer recognizes this node (heartbeat returning 403 or 404), so the
// next Bootstrap re-registers from scratch.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("identity: remove identity file: %w", err)
	}
	return nil
}

// Bootstrap registers with the control plane via register when no
// identity exists yet, then persists the result. The control plane,
// not the agent, mints node_id and node_secret. If a record already
// exists on disk it is returned unchanged; Bootstrap is idempotent
// across restarts.
func (s *Store) Bootstrap(provisioningToken string, register RegisterFunc) (*Record, error) {
	if rec, err := s.Load(); err == nil {
		return rec, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if provisioningToken == "" {
		return nil, &core.DomainError{
			Code:    core.ErrorCodeAuthFailed,
			Message: "no identity on disk and no provisioning token supplied",
		}
	}

	nodeID, nodeSecret, relayURL, err := register(provisioningToken)
	if err != nil {
		return nil, fmt.Errorf("identity: bootstrap registration: %w", err)
	}

	rec := newRecord(nodeID, nodeSecret, relayURL)
	if err := s.Save(rec); err != nil {
		return nil, err
	}

	s.log.Info("bootstrapped node identity", "node_id", nodeID)
	return rec, nil
}

// RegisterFunc exchanges a provisioning token for the node_id,
// node_secret, and relay URL the control plane assigns this node,
// performing whatever control-plane call is necessary. It is supplied
// by the caller so that Store has no direct dependency on the
// control-plane client package.
type RegisterFunc func(provisioningToken string) (nodeID, nodeSecret, relayURL string, err error)

// onDiskRecord is Record's on-disk shape: node_secret is stored sealed
// rather than in the clear.
type onDiskRecord struct {
	Version      int       `yaml:"version"`
	NodeID       string    `yaml:"node_id"`
	SealedSecret []byte    `yaml:"node_secret_sealed"`
	RelayURL     string    `yaml:"relay_url"`
	CreatedAt    time.Time `yaml:"created_at"`
}

// loadOrGenerateMasterKey reads the master key from disk, generating
// and persisting a new one on first use.
func (s *Store) loadOrGenerateMasterKey() ([]byte, error) {
	data, err := os.ReadFile(s.masterKeyPath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("identity: read master key: %w", err)
	}

	key, err := cryptoutil.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate master key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.masterKeyPath), 0o700); err != nil {
		return nil, fmt.Errorf("identity: create master key directory: %w", err)
	}
	if err := atomicWriteFile(s.masterKeyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("identity: persist master key: %w", err)
	}
	return key, nil
}

// atomicWriteFile writes data to a temporary file in the same
// directory as path, sets its permissions, and renames it into place.
// This guarantees readers never observe a partially written file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("identity: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("identity: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("identity: rename into place: %w", err)
	}
	return nil
}
