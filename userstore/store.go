// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

// Package userstore persists database accounts. The auth collaborator looks
// accounts up here and attaches the resulting User entity to a client
// connection as its origin.
package userstore

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	siridb "github.com/db4u/siridb-server"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when no account with the requested name exists.
var ErrNotFound = fmt.Errorf("userstore: no such user")

// DefaultUserName is the account every fresh installation starts with.
const DefaultUserName = "iris"

const keyPrefix = "user:"

// Record is the stored form of an account.
type Record struct {
	Name         string `json:"name"`
	PasswordHash string `json:"password"`
	Access       uint32 `json:"access"`
}

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the user database at path. An empty path keeps the
// store in memory, which tests use.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "userstore: failed to open database")
	}
	return &Store{db: db}, nil
}

// EnsureDefault creates the default account with full access if the store
// holds no users at all.
func (s *Store) EnsureDefault() error {
	users, err := s.List()
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	return s.Put(Record{Name: DefaultUserName, Access: siridb.AccessFull})
}

func (s *Store) Put(r Record) error {
	if r.Name == "" {
		return errors.New("userstore: empty user name")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "userstore: failed to marshal record")
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+r.Name), data)
	})
	return errors.Wrapf(err, "userstore: failed to store user %q", r.Name)
}

func (s *Store) Get(name string) (Record, error) {
	var r Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if err != nil {
		return Record{}, errors.Wrapf(err, "userstore: get %q", name)
	}
	return r, nil
}

func (s *Store) Delete(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + name))
	})
	return errors.Wrapf(err, "userstore: delete %q", name)
}

func (s *Store) List() ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "userstore: list")
	}
	return out, nil
}

// User materializes the account as a refcounted entity, ready to be attached
// to a connection via siridb.ClientOrigin.
func (s *Store) User(name string) (*siridb.User, error) {
	r, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return siridb.NewUser(r.Name, r.Access), nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "userstore: close")
}
