package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no account matches the requested id.
var ErrNotFound = errors.New("account not found")

// Store persists the account collection in a single JSON file. Every
// mutating operation reads the whole collection, changes it in memory
// and rewrites the file. There is no cross-process locking; the tool
// assumes a single writer.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path. The file does
// not need to exist; a missing file reads as an empty collection.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// List returns all accounts in insertion order.
func (s *Store) List(ctx context.Context) ([]Account, error) {
	return s.reload()
}

// Create appends the account to the collection and persists it. An
// empty id is replaced with a freshly generated one; ids supplied by
// the caller are kept as-is.
func (s *Store) Create(ctx context.Context, acc Account) (Account, error) {
	accounts, err := s.reload()
	if err != nil {
		return Account{}, err
	}

	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}

	accounts = append(accounts, acc)
	if err := s.persist(accounts); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Update merges the supplied fields into the matching account and
// persists the collection. Returns ErrNotFound when no account has the
// given id.
func (s *Store) Update(ctx context.Context, id string, upd Update) (Account, error) {
	accounts, err := s.reload()
	if err != nil {
		return Account{}, err
	}

	for i := range accounts {
		if accounts[i].ID != id {
			continue
		}
		upd.Apply(&accounts[i])
		if err := s.persist(accounts); err != nil {
			return Account{}, err
		}
		return accounts[i], nil
	}

	return Account{}, ErrNotFound
}

// Delete removes the matching account. Deleting an id that does not
// exist is a successful no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	accounts, err := s.reload()
	if err != nil {
		return err
	}

	kept := accounts[:0]
	found := false
	for _, acc := range accounts {
		if acc.ID == id {
			found = true
			continue
		}
		kept = append(kept, acc)
	}

	if !found {
		return nil
	}
	return s.persist(kept)
}

// Get returns the account with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Account, error) {
	accounts, err := s.reload()
	if err != nil {
		return Account{}, err
	}
	for _, acc := range accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return Account{}, ErrNotFound
}

// reload reads the full collection from disk.
func (s *Store) reload() ([]Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Account{}, nil
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	if len(data) == 0 {
		return []Account{}, nil
	}

	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	return accounts, nil
}

// persist rewrites the full collection. The write goes through a temp
// file and rename so a concurrent read in the same process never sees
// a partial file.
func (s *Store) persist(accounts []Account) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".accounts-*")
	if err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write accounts file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write accounts file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write accounts file: %w", err)
	}
	return nil
}
