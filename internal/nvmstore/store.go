package nvmstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// snapshotVersion is bumped whenever the snapshot layout changes
const snapshotVersion = 1

// ErrSerialMismatch is returned when a snapshot belongs to another device
var ErrSerialMismatch = errors.New("nvm snapshot belongs to a different serial number")

// Snapshot is the on-disk record of a device's NVM image
type Snapshot struct {
	Version int       `cbor:"1,keyasint"`
	Serial  string    `cbor:"2,keyasint"`
	NVM     []byte    `cbor:"3,keyasint"`
	SavedAt time.Time `cbor:"4,keyasint"`
}

// Store persists NVM images for one device serial number as CBOR snapshots
type Store struct {
	path   string
	serial string

	mu  sync.Mutex
	enc cbor.EncMode
}

// New creates a store writing to path for the given serial number
func New(path, serial string) (*Store, error) {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
	}

	return &Store{path: path, serial: serial, enc: enc}, nil
}

// Path returns the snapshot file location
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted NVM image. ok is false when no snapshot exists.
func (s *Store) Load() (nvm []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read nvm snapshot: %w", err)
	}

	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode nvm snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, false, fmt.Errorf("unsupported nvm snapshot version: %d (expected %d)", snap.Version, snapshotVersion)
	}
	if snap.Serial != s.serial {
		return nil, false, fmt.Errorf("%w: %q", ErrSerialMismatch, snap.Serial)
	}

	return snap.NVM, true, nil
}

// Save writes the NVM image atomically (temporary file + rename)
func (s *Store) Save(nvm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.enc.Marshal(Snapshot{
		Version: snapshotVersion,
		Serial:  s.serial,
		NVM:     nvm,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode nvm snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create nvm directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary nvm snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save nvm snapshot: %w", err)
	}

	return nil
}
