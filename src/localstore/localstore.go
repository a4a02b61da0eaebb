// Package localstore keeps the small amount of state a browser would hold
// in local storage: the signed-in identity and the last chat filter.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/gudfood/realtime/src/store"
)

var (
	ErrNoIdentity = errors.New("no identity stored")

	validate = validator.New()
)

var (
	identityKey = []byte("identity")
	searchKey   = []byte("search:chats")
)

// Identity is the user/role pair remembered between runs.
type Identity struct {
	UserID string     `json:"userId" validate:"required"`
	Role   store.Role `json:"role" validate:"required,oneof=buyer distributor administrator"`
}

// LocalStore is a badger-backed key/value file.
type LocalStore struct {
	db *badger.DB
}

// Open opens or creates the store under dir.
func Open(dir string) (*LocalStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", dir, err)
	}
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

// SaveIdentity validates and persists id, replacing any previous one.
func (s *LocalStore) SaveIdentity(id Identity) error {
	if err := validate.Struct(id); err != nil {
		return fmt.Errorf("invalid identity: %w", err)
	}
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(identityKey, data)
	})
}

// LoadIdentity returns ErrNoIdentity when nothing was saved.
func (s *LocalStore) LoadIdentity() (Identity, error) {
	var id Identity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &id)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Identity{}, ErrNoIdentity
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load identity: %w", err)
	}
	return id, nil
}

// ClearIdentity forgets the stored identity, as on sign-out.
func (s *LocalStore) ClearIdentity() error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(identityKey)
	})
}

func (s *LocalStore) SaveSearchTerm(term string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(searchKey, []byte(term))
	})
}

// LoadSearchTerm returns "" when no term was saved.
func (s *LocalStore) LoadSearchTerm() (string, error) {
	var term string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(searchKey)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		term = string(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load search term: %w", err)
	}
	return term, nil
}
