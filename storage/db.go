package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

var ErrNotFound = errors.New("not found")

// DB is the receipt store.
type DB struct {
	db *badger.DB
}

// Open opens the badger store at path. An empty path keeps everything in
// memory.
func Open(path string) (*DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil) // disable spam log
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening receipt store: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) save(entries map[string][]byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) load(key []byte) ([]byte, error) {
	var valCopy []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return valCopy, err
}

// reverse walks values of keys under prefix from the highest key down, until
// fn returns false.
func (d *DB) reverse(prefix []byte, fn func(val []byte) bool) error {
	return d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(val) {
				return nil
			}
		}
		return nil
	})
}
