// Package leveldb implements domain.SnapshotStore on an embedded LevelDB
// database, the default local key-value storage.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nexusx/nexus/internal/domain"
)

var _ domain.SnapshotStore = (*Store)(nil)

// Store is a LevelDB-backed snapshot store. Writes are synced to disk
// before Put returns.
type Store struct {
	db *leveldb.DB
	wo *opt.WriteOptions
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", path, err)
	}
	return &Store{db: db, wo: &opt.WriteOptions{Sync: true}}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the document stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("leveldb: get %s: %w", key, err)
	}
	return v, nil
}

// Put replaces the document stored under key.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	if err := s.db.Put([]byte(key), data, s.wo); err != nil {
		return fmt.Errorf("leveldb: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(key), s.wo); err != nil {
		return fmt.Errorf("leveldb: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists keys with the given prefix. LevelDB iterates in byte order,
// so the result is sorted.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb: iterate %q: %w", prefix, err)
	}
	return keys, nil
}
