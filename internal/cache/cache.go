// Package cache persists the last known endpoints, containers and stacks so
// berth can show something before the first refresh completes.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a group of records, e.g. "containers".
type Kind string

const (
	KindEndpoints  Kind = "endpoints"
	KindContainers Kind = "containers"
	KindStacks     Kind = "stacks"
	KindSelection  Kind = "selection"
)

// Record is one cached value. Key is the identity used by DeleteWhere.
type Record struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Decode unmarshals the record value into dest.
func (r Record) Decode(dest any) error {
	if err := json.Unmarshal(r.Value, dest); err != nil {
		return fmt.Errorf("decode %s: %w", r.Key, err)
	}
	return nil
}

// NewRecord encodes value under key.
func NewRecord(key string, value any) (Record, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Record{Key: key, Value: data}, nil
}

// Cache stores ordered record sets per kind.
type Cache interface {
	// Store replaces every record of kind with records, keeping their order.
	Store(kind Kind, records []Record) error
	// FetchAll returns the records of kind in stored order. ok is false when
	// nothing was ever stored for kind.
	FetchAll(kind Kind) (records []Record, ok bool, err error)
	// DeleteWhere removes the records of kind matching pred.
	DeleteWhere(kind Kind, pred func(Record) bool) error
	Close() error
}

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")
