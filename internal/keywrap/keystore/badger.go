package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"medblock/pkg/platform/sentinel"
)

const keyPrefix = "principal/"

// Badger is a Store backed by an embedded badger database. Values are sealed
// with Sealer so the key directory is useless without the master secret.
type Badger struct {
	db     *badger.DB
	sealer *Sealer
}

// OpenBadger opens (or creates) the key directory at dir.
func OpenBadger(dir string, sealer *Sealer) (*Badger, error) {
	return openBadger(badger.DefaultOptions(dir), sealer)
}

// OpenBadgerInMemory opens a throwaway store.
func OpenBadgerInMemory(sealer *Sealer) (*Badger, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true), sealer)
}

func openBadger(opts badger.Options, sealer *Sealer) (*Badger, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	return &Badger{db: db, sealer: sealer}, nil
}

func (s *Badger) Get(_ context.Context, principalID string) ([]byte, error) {
	var sealed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + principalID))
		if err != nil {
			return err
		}
		sealed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read principal key: %w", err)
	}
	der, err := s.sealer.Open(principalID, sealed)
	if err != nil {
		return nil, fmt.Errorf("open principal key: %w", err)
	}
	return der, nil
}

func (s *Badger) PutIfAbsent(_ context.Context, principalID string, der []byte) error {
	sealed, err := s.sealer.Seal(principalID, der)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		k := []byte(keyPrefix + principalID)
		_, err := txn.Get(k)
		if err == nil {
			return sentinel.ErrConflict
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, sealed)
	})
	if errors.Is(err, badger.ErrConflict) {
		return sentinel.ErrConflict
	}
	return err
}

func (s *Badger) Close() error {
	return s.db.Close()
}
