package attestation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("attestations")

// ErrEmptyUID is returned when a record without a UID is offered for storage.
var ErrEmptyUID = errors.New("attestation: record uid required")

// Store persists the most recent attestation snapshot fetched from the index
// collaborator, so reputation reads do not depend on the fetch path being
// live.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the snapshot database at path.
func NewStore(path string, opts *bolt.Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("open attestation store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare attestation store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the stored snapshot for the provided records atomically.
func (s *Store) ReplaceAll(records []Record) error {
	for _, rec := range records {
		if strings.TrimSpace(rec.UID) == "" {
			return ErrEmptyUID
		}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		bucket, err := tx.CreateBucket(bucketRecords)
		if err != nil {
			return err
		}
		for _, rec := range records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(rec.UID), payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// All returns every record in the snapshot.
func (s *Store) All() ([]Record, error) {
	return s.list(func(Record) bool { return true })
}

// BySubject returns the records whose decoded subject matches exactly.
func (s *Store) BySubject(subject string) ([]Record, error) {
	return s.list(func(rec Record) bool { return rec.Subject() == subject })
}

func (s *Store) list(keep func(Record) bool) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, value []byte) error {
			var rec Record
			decoder := json.NewDecoder(bytes.NewReader(value))
			// Keep big ratings as json.Number so precision survives the
			// round trip through storage.
			decoder.UseNumber()
			if err := decoder.Decode(&rec); err != nil {
				return err
			}
			if keep(rec) {
				records = append(records, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
