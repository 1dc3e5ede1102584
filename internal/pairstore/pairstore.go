// Package pairstore persists PairRecord values across invocations, keyed by
// device UDID, in a BadgerDB instance. muxclient.ReadPairRecord fetches a
// pair record from the device itself; pairstore is the on-disk cache that
// lets callers avoid round-tripping the muxer for a record that hasn't
// changed.
package pairstore

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/gomux/remotexpc/internal/logger"
	"github.com/gomux/remotexpc/internal/muxclient"
)

// Database Key Namespace
//
// Data Type     Prefix   Key Format          Value Type
// ============================================================
// Pair Record   "pr:"    pr:<udid>           PairRecord (JSON)
const prefixPairRecord = "pr:"

func keyPairRecord(udid string) []byte {
	return []byte(prefixPairRecord + udid)
}

// Store is a BadgerDB-backed PairRecord cache.
type Store struct {
	db *badger.DB
}

// Config configures Store's underlying BadgerDB instance.
type Config struct {
	Dir      string
	InMemory bool // for tests; never persists to disk
}

// Open opens (creating if necessary) the BadgerDB database at cfg.Dir.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("pairstore: open %q: %w", cfg.Dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores record under udid, overwriting any existing entry.
func (s *Store) Put(ctx context.Context, udid string, record *muxclient.PairRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("pairstore: encode record for %s: %w", udid, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyPairRecord(udid), raw)
	})
	if err != nil {
		return fmt.Errorf("pairstore: store record for %s: %w", udid, err)
	}
	logger.Debug("pairstore: stored record", logger.KeyDeviceID, udid)
	return nil
}

// Get returns the cached PairRecord for udid, or ErrNotFound if none is
// cached.
func (s *Store) Get(ctx context.Context, udid string) (*muxclient.PairRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record muxclient.PairRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyPairRecord(udid))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes the cached record for udid, if any.
func (s *Store) Delete(ctx context.Context, udid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyPairRecord(udid))
	})
}

// List returns every UDID currently cached.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var udids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPairRecord)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			udids = append(udids, string(key[len(prefixPairRecord):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pairstore: list: %w", err)
	}
	return udids, nil
}
