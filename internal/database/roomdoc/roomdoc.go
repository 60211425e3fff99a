// Package roomdoc persists synchronized room documents in a bbolt bucket so
// that a restarted store server can resume live rooms.
package roomdoc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bloops-games/partyroom/internal/database"
	bolt "go.etcd.io/bbolt"
)

const bucket = "rooms"

var ErrBucketNotFound = fmt.Errorf("bucket not found")

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

// Save writes every document in one transaction. A nil document deletes the
// stored entry for that path.
func (db *DB) Save(docs map[string]interface{}) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := db.sDB.DB.Begin(true)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer tx.Rollback() // nolint

	b, err := tx.CreateBucketIfNotExists([]byte(bucket))
	if err != nil {
		return fmt.Errorf("can not create bucket: %w", err)
	}

	for path, doc := range docs {
		if doc == nil {
			if err := b.Delete([]byte(path)); err != nil {
				return fmt.Errorf("delete %s: %w", path, err)
			}
			continue
		}

		bytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}

		if err := b.Put([]byte(path), bytes); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// LoadAll returns every stored document keyed by its store path.
func (db *DB) LoadAll() (map[string]interface{}, error) {
	docs := map[string]interface{}{}

	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var doc interface{}
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("json unmarshal %s: %w", k, err)
			}
			docs[string(k)] = doc
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return docs, nil
}

func (db *DB) Clean() error {
	tx, err := db.sDB.DB.Begin(true)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer tx.Rollback() // nolint

	if err := tx.DeleteBucket([]byte(bucket)); err != nil {
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return ErrBucketNotFound
		}
		return fmt.Errorf("delete bucket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
