// Package store defines the ordered key/value contract that backs the
// ledger's records and the registry of concrete backends.
package store

import "errors"

var (
	ErrNotFound = errors.New("store: not found")
	ErrClosed   = errors.New("store: closed")
	ErrEmptyKey = errors.New("store: empty key")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Op is one mutation in a batch. Delete ignores Value.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// KV is an ordered byte-keyed store.
//
// Contract:
// - Get MUST return ErrNotFound when the key is absent.
// - Apply MUST be atomic: either every op is visible afterwards or none is.
// - Ops in one batch apply in order; a later op on the same key wins.
// - Iterate MUST visit keys with the given prefix in ascending byte order and
//   stop at the first error returned by fn. fn may call Get but not Apply.
// - Returned slices are owned by the caller.
type KV interface {
	Get(key []byte) ([]byte, error)
	Apply(ops []Op) error
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// PrefixEnd returns the smallest key greater than every key with prefix, or
// nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
