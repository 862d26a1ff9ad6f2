package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/cadena/internal/chain"
	"github.com/mrz1836/cadena/internal/contract"
	"github.com/mrz1836/cadena/internal/fileutil"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// stateFilePermissions is the permission mode for the state file.
const stateFilePermissions = 0o600

// ErrCorruptState indicates the state file is malformed.
var ErrCorruptState = errors.New("state file is corrupted")

// Saved is the last snapshot written to disk for a contract.
type Saved struct {
	Contract common.Address
	Snapshot Snapshot
}

// Age returns how long ago the saved values were read.
func (s *Saved) Age() time.Duration {
	if s == nil || s.Snapshot.UpdatedAt.IsZero() {
		return 0
	}
	return time.Since(s.Snapshot.UpdatedAt)
}

// stateFile is the on-disk layout.
type stateFile struct {
	Contract      common.Address `json:"contract"`
	Balance       *chain.Amount  `json:"balance,omitempty"`
	Message       *string        `json:"message,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	LastErrorKind string         `json:"last_error_kind,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// FileStorage persists the latest snapshot so it can be shown while no
// provider is reachable. It is not a transaction history.
type FileStorage struct {
	path string
}

// NewFileStorage creates storage backed by path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the state file path.
func (s *FileStorage) Path() string {
	return s.path
}

// Save writes snap for contractAddr.
func (s *FileStorage) Save(contractAddr common.Address, snap Snapshot) error {
	f := stateFile{
		Contract:  contractAddr,
		UpdatedAt: snap.UpdatedAt.UTC(),
	}
	if snap.BalanceKnown {
		balance := snap.Balance
		f.Balance = &balance
	}
	if snap.MessageKnown {
		text := snap.Message.String()
		f.Message = &text
	}
	if snap.LastError != nil {
		f.LastError = snap.LastError.Error()
		f.LastErrorKind = snap.LastErrorKind.String()
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if err := fileutil.WriteAtomic(s.path, data, stateFilePermissions); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// Load reads the saved snapshot. It returns nil without error when nothing
// was saved. A corrupted file is moved aside.
func (s *FileStorage) Load() (*Saved, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil //nolint:nilnil // nothing saved yet
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		corruptPath := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UTC().UnixNano())
		if renameErr := os.Rename(s.path, corruptPath); renameErr != nil {
			return nil, fmt.Errorf("%w: %w (also failed to move file: %w)", ErrCorruptState, err, renameErr)
		}
		return nil, fmt.Errorf("%w: %w (moved to %s)", ErrCorruptState, err, corruptPath)
	}

	saved := &Saved{Contract: f.Contract}
	saved.Snapshot.UpdatedAt = f.UpdatedAt
	if f.Balance != nil {
		saved.Snapshot.Balance = *f.Balance
		saved.Snapshot.BalanceKnown = true
	}
	if f.Message != nil {
		msg, err := contract.ParseMessage(*f.Message)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
		saved.Snapshot.Message = msg
		saved.Snapshot.MessageKnown = true
	}
	if f.LastError != "" {
		saved.Snapshot.LastError = errors.New(f.LastError)
		saved.Snapshot.LastErrorKind = cadenaerr.Kind(f.LastErrorKind)
	}
	return saved, nil
}

// Delete removes the state file.
func (s *FileStorage) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
