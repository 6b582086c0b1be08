package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/evanofslack/dh-dyn-update/internal/address"
	"github.com/evanofslack/dh-dyn-update/internal/metrics"
)

const addressPrefix = "address:"

// Manager owns the previously observed address set. Contents live only as
// long as the process.
type Manager interface {
	Load(ctx context.Context) (address.Set, error)
	Save(ctx context.Context, set address.Set) error
	Close() error
}

type badgerManager struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

// New opens an in-memory store seeded with seed.
func New(metrics *metrics.Metrics, seed address.Set) (Manager, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	m := &badgerManager{db: db, metrics: metrics}
	if err := m.Save(context.Background(), seed); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed state: %w", err)
	}
	return m, nil
}

func (m *badgerManager) Load(ctx context.Context) (address.Set, error) {
	var set address.Set

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(addressPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var st AddressState
				if err := json.Unmarshal(val, &st); err != nil {
					return err
				}
				a, err := address.Parse(st.Address)
				if err != nil {
					return err
				}
				set = append(set, a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	m.metrics.IncStateRequest("read", err == nil)
	return set, err
}

// Save replaces the stored set. At most one address per family is kept; a
// later entry of the same family wins.
func (m *badgerManager) Save(ctx context.Context, set address.Set) error {
	txn := m.db.NewTransaction(true)
	defer txn.Discard()

	// First, get all existing keys to handle deletions
	existing := make(map[string]bool)

	it := txn.NewIterator(badger.DefaultIteratorOptions)
	prefix := []byte(addressPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		existing[string(it.Item().KeyCopy(nil))] = true
	}
	it.Close()

	now := time.Now().Unix()
	for _, a := range set {
		data, err := json.Marshal(AddressState{Address: a.String(), LastSeen: now})
		if err != nil {
			m.metrics.IncStateRequest("update", false)
			return err
		}
		key := addressPrefix + a.Family().String()
		if err := txn.Set([]byte(key), data); err != nil {
			m.metrics.IncStateRequest("update", false)
			return err
		}
		delete(existing, key)
	}

	// Delete families that are no longer present
	for key := range existing {
		if err := txn.Delete([]byte(key)); err != nil {
			m.metrics.IncStateRequest("delete", false)
			return err
		}
	}
	err := txn.Commit()
	m.metrics.IncStateRequest("update", err == nil)
	return err
}

func (m *badgerManager) Close() error {
	return m.db.Close()
}
