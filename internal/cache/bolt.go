package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

// Bolt keeps one bucket per kind. Keys are zero-padded positions so a cursor
// walks records in the order they were stored.
type Bolt struct {
	db *bolt.DB
}

const openTimeout = time.Second

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Open returns a Bolt cache at path, or a Memory cache when the database
// cannot be opened (another berth holding the lock, read-only home).
func Open(path string, logger zerolog.Logger) Cache {
	b, err := OpenBolt(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("cache unavailable, using memory")
		return NewMemory()
	}
	return b
}

func positionKey(i int) []byte {
	return []byte(fmt.Sprintf("%08d", i))
}

func (b *Bolt) Store(kind Kind, records []Record) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		name := []byte(kind)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		for i, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := bucket.Put(positionKey(i), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

func (b *Bolt) FetchAll(kind Kind) ([]Record, bool, error) {
	var (
		records []Record
		found   bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return nil
		}
		found = true
		return bucket.ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", kind, err)
	}
	return records, found, nil
}

func (b *Bolt) DeleteWhere(kind Kind, pred func(Record) bool) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return nil
		}
		var doomed [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if pred(r) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
