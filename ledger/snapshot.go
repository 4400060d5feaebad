package ledger

import (
	"errors"
	"fmt"

	"promphub.io/market/codec"
	"promphub.io/market/store"
)

const snapshotVersion = 1

type snapshotEntry struct {
	Key   []byte
	Value []byte
}

type snapshot struct {
	Version uint8
	Entries []snapshotEntry
}

var errStop = errors.New("stop")

// Snapshot returns the canonical encoding of the full committed state:
// every key in ascending order. Equal states produce equal bytes.
func (l *Ledger) Snapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := snapshot{Version: snapshotVersion}
	err := l.kv.Iterate(nil, func(k, v []byte) error {
		s.Entries = append(s.Entries, snapshotEntry{Key: k, Value: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codec.Marshal(s)
}

// Restore loads a snapshot into an empty store.
func Restore(kv store.KV, data []byte) error {
	var s snapshot
	if err := codec.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ledger: decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return fmt.Errorf("ledger: unsupported snapshot version %d", s.Version)
	}
	empty, err := IsEmpty(kv)
	if err != nil {
		return err
	}
	if !empty {
		return ErrNotEmpty
	}
	ops := make([]store.Op, 0, len(s.Entries))
	for _, e := range s.Entries {
		ops = append(ops, store.Op{Key: e.Key, Value: e.Value})
	}
	return kv.Apply(ops)
}

// IsEmpty reports whether kv holds no keys.
func IsEmpty(kv store.KV) (bool, error) {
	empty := true
	err := kv.Iterate(nil, func(_, _ []byte) error {
		empty = false
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, err
	}
	return empty, nil
}
