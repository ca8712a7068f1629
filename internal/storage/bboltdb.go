// Package storage keeps sessions and credentials in an embedded bbolt database, for
// single-node deployments and the command line tool.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	SessionsBucket    = "oauth_sessions"
	CredentialsBucket = "credentials"
	metadataSuffix    = "_meta"
)

// StoredItemMetadata holds metadata for a stored item, primarily its expiration time.
type StoredItemMetadata struct {
	ExpiresAtUnixNano int64
}

// BBoltStore is a wrapper around bbolt providing key-value storage with TTL.
type BBoltStore struct {
	db              *bbolt.DB
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	now             func() time.Time
}

// NewBBoltStore opens (or creates) the database at dbPath and ensures the buckets
// used by the connector.
func NewBBoltStore(dbPath string, cleanupInterval time.Duration) (*BBoltStore, error) {
	// Ensure the directory for the database file exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", dbPath, err)
	}

	store := &BBoltStore{
		db:              db,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	for _, bucket := range []string{SessionsBucket, CredentialsBucket} {
		if err := store.ensureBucket(bucket); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	log.Debug().Str("path", dbPath).Msg("bbolt store opened")
	return store, nil
}

// StartCleanupRoutine removes expired items in the background until Close.
func (s *BBoltStore) StartCleanupRoutine() {
	if s.cleanupInterval <= 0 {
		return
	}
	go s.runCleanupLoop()
}

func (s *BBoltStore) ensureBucket(bucketName string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketName + metadataSuffix)); err != nil {
			return fmt.Errorf("failed to create metadata bucket for %s: %w", bucketName, err)
		}
		return nil
	})
}

// Set stores value under key. A zero expiresAt never expires.
func (s *BBoltStore) Set(bucketName, key string, value []byte, expiresAt time.Time) error {
	var metadata StoredItemMetadata
	if !expiresAt.IsZero() {
		metadata.ExpiresAtUnixNano = expiresAt.UnixNano()
	}

	var metaBuf bytes.Buffer
	if err := gob.NewEncoder(&metaBuf).Encode(metadata); err != nil {
		return fmt.Errorf("failed to encode metadata for key %s: %w", key, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, metaB, err := buckets(tx, bucketName)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to put value for key %s in bucket %s: %w", key, bucketName, err)
		}
		return metaB.Put([]byte(key), metaBuf.Bytes())
	})
}

// Get retrieves a value by key. Expired items are reported as not found.
func (s *BBoltStore) Get(bucketName, key string) (value []byte, found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		b, metaB, err := buckets(tx, bucketName)
		if err != nil {
			return err
		}

		metaBytes := metaB.Get([]byte(key))
		if metaBytes == nil {
			return nil
		}

		var metadata StoredItemMetadata
		if err := gob.NewDecoder(bytes.NewReader(metaBytes)).Decode(&metadata); err != nil {
			return fmt.Errorf("failed to decode metadata for key %s: %w", key, err)
		}
		if metadata.expired(s.now()) {
			return nil
		}

		valBytes := b.Get([]byte(key))
		if valBytes == nil {
			return nil
		}

		// Need to copy the value, as it's only valid during the transaction.
		value = append([]byte(nil), valBytes...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Delete removes key. Unknown keys are ignored.
func (s *BBoltStore) Delete(bucketName, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, metaB, err := buckets(tx, bucketName)
		if err != nil {
			return err
		}
		if err := b.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete key %s from bucket %s: %w", key, bucketName, err)
		}
		return metaB.Delete([]byte(key))
	})
}

// Keys lists the live keys of a bucket.
func (s *BBoltStore) Keys(bucketName string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, metaB, err := buckets(tx, bucketName)
		if err != nil {
			return err
		}
		now := s.now()
		return metaB.ForEach(func(k, v []byte) error {
			var metadata StoredItemMetadata
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&metadata); err != nil {
				return fmt.Errorf("failed to decode metadata for key %s: %w", string(k), err)
			}
			if !metadata.expired(now) {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	return keys, err
}

// DeleteExpired removes every expired item of bucketName and returns how many were dropped.
func (s *BBoltStore) DeleteExpired(bucketName string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, metaB, err := buckets(tx, bucketName)
		if err != nil {
			return err
		}

		var expired [][]byte
		now := s.now()
		c := metaB.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var metadata StoredItemMetadata
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&metadata); err != nil {
				log.Warn().Err(err).Str("bucket", bucketName).Str("key", string(k)).Msg("Skipping item with unreadable metadata")
				continue
			}
			if metadata.expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
			if err := metaB.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (s *BBoltStore) runCleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.DeleteExpired(SessionsBucket)
			if err != nil {
				log.Error().Err(err).Msg("Error deleting expired oauth sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int("count", n).Msg("Deleted expired oauth sessions")
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup routine and closes the database.
func (s *BBoltStore) Close() error {
	select {
	case <-s.stopCleanup:
	default:
		close(s.stopCleanup)
	}
	return s.db.Close()
}

func buckets(tx *bbolt.Tx, bucketName string) (*bbolt.Bucket, *bbolt.Bucket, error) {
	b := tx.Bucket([]byte(bucketName))
	metaB := tx.Bucket([]byte(bucketName + metadataSuffix))
	if b == nil || metaB == nil {
		return nil, nil, fmt.Errorf("bucket %s not found", bucketName)
	}
	return b, metaB, nil
}

func (m StoredItemMetadata) expired(now time.Time) bool {
	return m.ExpiresAtUnixNano != 0 && now.UnixNano() >= m.ExpiresAtUnixNano
}
