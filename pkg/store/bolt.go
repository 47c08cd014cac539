package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/usage-ledger/pkg/logger"
)

// boltStore implements the Store interface using BoltDB.
type boltStore struct {
	db     *bolt.DB
	path   string
	logger logger.Logger
}

// Open opens (or creates) the database at cfg.Path and ensures every table
// exists.
func Open(cfg Config, log logger.Logger) (Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := expandHome(cfg.Path)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, t := range allTables {
			if _, createErr := tx.CreateBucketIfNotExists([]byte(t)); createErr != nil {
				return fmt.Errorf("failed to create %s bucket: %w", t, createErr)
			}
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, err
	}

	log.Info("store opened", "db_path", dbPath)

	return &boltStore{
		db:     db,
		path:   dbPath,
		logger: log,
	}, nil
}

// Get implements Store.Get.
func (s *boltStore) Get(table Table, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		var getErr error
		value, getErr = (&boltTx{tx: tx}).Get(table, key)
		return getErr
	})
	return value, err
}

// Put implements Store.Put.
func (s *boltStore) Put(table Table, key, value []byte) error {
	return s.Update(func(tx KV) error {
		return tx.Put(table, key, value)
	})
}

// Delete implements Store.Delete.
func (s *boltStore) Delete(table Table, key []byte) error {
	return s.Update(func(tx KV) error {
		return tx.Delete(table, key)
	})
}

// Rekey implements Store.Rekey.
func (s *boltStore) Rekey(table Table, oldKey, newKey, value []byte) error {
	return s.Update(func(tx KV) error {
		return tx.Rekey(table, oldKey, newKey, value)
	})
}

// Scan implements Store.Scan.
func (s *boltStore) Scan(table Table, prefix []byte, fn ScanFunc) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return (&boltTx{tx: tx}).Scan(table, prefix, fn)
	})
}

// NextID implements Store.NextID.
func (s *boltStore) NextID(table Table) (int64, error) {
	var id int64
	err := s.Update(func(tx KV) error {
		var idErr error
		id, idErr = tx.NextID(table)
		return idErr
	})
	return id, err
}

// Update implements Store.Update.
func (s *boltStore) Update(fn func(tx KV) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Close implements Store.Close.
func (s *boltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Info("store closed", "db_path", s.path)
	return nil
}

// boltTx implements KV over a bolt transaction.
type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) bucket(table Table) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return b, nil
}

// Get implements KV.Get.
func (t *boltTx) Get(table Table, key []byte) ([]byte, error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, err
	}

	data := b.Get(key)
	if data == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, key)
	}

	return append([]byte(nil), data...), nil
}

// Put implements KV.Put.
func (t *boltTx) Put(table Table, key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	b, err := t.bucket(table)
	if err != nil {
		return err
	}

	if err := b.Put(key, value); err != nil {
		return fmt.Errorf("failed to store %s/%s: %w", table, key, err)
	}
	return nil
}

// Delete implements KV.Delete.
func (t *boltTx) Delete(table Table, key []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}

	if err := b.Delete(key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, key, err)
	}
	return nil
}

// Rekey implements KV.Rekey.
func (t *boltTx) Rekey(table Table, oldKey, newKey, value []byte) error {
	if len(oldKey) == 0 || len(newKey) == 0 {
		return ErrEmptyKey
	}

	b, err := t.bucket(table)
	if err != nil {
		return err
	}

	if b.Get(oldKey) == nil {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, oldKey)
	}

	if !bytes.Equal(oldKey, newKey) {
		if err := b.Delete(oldKey); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", table, oldKey, err)
		}
	}

	if err := b.Put(newKey, value); err != nil {
		return fmt.Errorf("failed to store %s/%s: %w", table, newKey, err)
	}
	return nil
}

// Scan implements KV.Scan.
func (t *boltTx) Scan(table Table, prefix []byte, fn ScanFunc) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}

	c := b.Cursor()
	k, v := c.First()
	if len(prefix) > 0 {
		k, v = c.Seek(prefix)
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// NextID implements KV.NextID.
func (t *boltTx) NextID(table Table) (int64, error) {
	b, err := t.bucket(table)
	if err != nil {
		return 0, err
	}

	seq, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id in %s: %w", table, err)
	}
	return int64(seq), nil
}

// expandHome expands a leading "~" to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
