package cache

import "sync"

// Memory is an in-process Cache, used when no database can be opened and in tests.
type Memory struct {
	mu     sync.RWMutex
	kinds  map[Kind][]Record
	closed bool
}

// NewMemory returns an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{kinds: make(map[Kind][]Record)}
}

func (m *Memory) Store(kind Kind, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.kinds[kind] = cloneRecords(records)
	return nil
}

func (m *Memory) FetchAll(kind Kind) ([]Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	records, ok := m.kinds[kind]
	if !ok {
		return nil, false, nil
	}
	return cloneRecords(records), true, nil
}

func (m *Memory) DeleteWhere(kind Kind, pred func(Record) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	records, ok := m.kinds[kind]
	if !ok {
		return nil
	}
	kept := records[:0:0]
	for _, r := range records {
		if !pred(r) {
			kept = append(kept, r)
		}
	}
	m.kinds[kind] = kept
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneRecords(records []Record) []Record {
	dup := make([]Record, len(records))
	for i, r := range records {
		dup[i] = Record{Key: r.Key, Value: append([]byte(nil), r.Value...)}
	}
	return dup
}
