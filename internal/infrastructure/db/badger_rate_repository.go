// Package db internal/infrastructure/db/badger_rate_repository.go
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/repository"
	"github.com/dgraph-io/badger/v3"
)

const (
	ratePrefix    = "rate:"
	historyPrefix = "history:"
)

var _ repository.ExchangeRateRepository = (*BadgerRateRepository)(nil)

// BadgerRateRepository implements the exchange rate repository interface using BadgerDB.
// Tracked rates are stored under rate:<key>, snapshots under
// history:<key>:<unix nanos> so that keys sort by time.
type BadgerRateRepository struct {
	db *badger.DB
}

// NewBadgerRateRepository creates a new BadgerDB exchange rate repository
func NewBadgerRateRepository(db *badger.DB) *BadgerRateRepository {
	return &BadgerRateRepository{db: db}
}

// Open opens a badger database at path, or in memory when path is empty
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func rateKey(key entity.Key) []byte {
	return []byte(ratePrefix + key.String())
}

func historyKeyPrefix(key entity.Key) []byte {
	return []byte(historyPrefix + key.String() + ":")
}

func snapshotKey(snapshot entity.Snapshot) []byte {
	return append(historyKeyPrefix(snapshot.Key()), []byte(fmt.Sprintf("%020d", snapshot.Timestamp.UnixNano()))...)
}

// StoreRate saves the serialized form of a tracked rate
func (r *BadgerRateRepository) StoreRate(ctx context.Context, rate *entity.ExchangeRate) error {
	data, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange rate: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rateKey(rate.Key()), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store exchange rate: %w", err)
	}

	return nil
}

// FindRates returns every tracked rate record ordered by key
func (r *BadgerRateRepository) FindRates(ctx context.Context) ([]entity.Record, error) {
	var records []entity.Record

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ratePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record entity.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve exchange rates: %w", err)
	}

	return records, nil
}

// DeleteRate forgets a tracked rate and its history
func (r *BadgerRateRepository) DeleteRate(ctx context.Context, key entity.Key) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(rateKey(key)); err != nil {
			return err
		}
		return txn.Delete(rateKey(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("rate %s: %w", key, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete exchange rate: %w", err)
	}

	if err := r.deletePrefix(historyKeyPrefix(key)); err != nil {
		return fmt.Errorf("failed to delete exchange rate history: %w", err)
	}
	return nil
}

func (r *BadgerRateRepository) deletePrefix(prefix []byte) error {
	var keys [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// StoreSnapshot appends a snapshot to the rate's history
func (r *BadgerRateRepository) StoreSnapshot(ctx context.Context, snapshot entity.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snapshot), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

// FindHistory returns up to limit snapshots of a rate, newest first. A
// limit of zero or less returns the whole history.
func (r *BadgerRateRepository) FindHistory(ctx context.Context, key entity.Key, limit int) ([]entity.Snapshot, error) {
	prefix := historyKeyPrefix(key)
	snapshots := []entity.Snapshot{}

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration starts at the last key not greater than the seek key
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(snapshots) >= limit {
				break
			}
			var snapshot entity.Snapshot
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snapshot)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			snapshots = append(snapshots, snapshot)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve history: %w", err)
	}

	return snapshots, nil
}
