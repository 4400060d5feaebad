// Package storetest is the conformance suite every store.KV backend runs.
package storetest

import (
	"bytes"
	"errors"
	"testing"

	"promphub.io/market/store"
)

// NewKV constructs a fresh, empty KV for a test.
// The returned KV MUST be isolated from other tests.
type NewKV func(t *testing.T) store.KV

func RunKVConformance(t *testing.T, newKV NewKV) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		kv := newKV(t)
		if _, err := kv.Get([]byte("absent")); !store.IsNotFound(err) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := kv.Get(nil); !errors.Is(err, store.ErrEmptyKey) {
			t.Fatalf("expected ErrEmptyKey, got %v", err)
		}
	})

	t.Run("ApplyPutDelete", func(t *testing.T) {
		kv := newKV(t)
		err := kv.Apply([]store.Op{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("a"), Value: []byte("3")},
		})
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		got, err := kv.Get([]byte("a"))
		if err != nil || string(got) != "3" {
			t.Fatalf("later op must win: %q, %v", got, err)
		}
		if err := kv.Apply([]store.Op{{Key: []byte("a"), Delete: true}, {Key: []byte("zz"), Delete: true}}); err != nil {
			t.Fatalf("Apply delete: %v", err)
		}
		if _, err := kv.Get([]byte("a")); !store.IsNotFound(err) {
			t.Fatalf("deleted key still present: %v", err)
		}
	})

	t.Run("ApplyIsAllOrNothing", func(t *testing.T) {
		kv := newKV(t)
		err := kv.Apply([]store.Op{
			{Key: []byte("ok"), Value: []byte("1")},
			{Key: nil, Value: []byte("bad")},
		})
		if err == nil {
			t.Fatalf("expected error for empty key")
		}
		if _, err := kv.Get([]byte("ok")); !store.IsNotFound(err) {
			t.Fatalf("partial batch became visible: %v", err)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Apply([]store.Op{{Key: []byte("e"), Value: nil}}); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		got, err := kv.Get([]byte("e"))
		if err != nil || len(got) != 0 {
			t.Fatalf("empty value = %q, %v", got, err)
		}
	})

	t.Run("IterateOrderedPrefix", func(t *testing.T) {
		kv := newKV(t)
		keys := [][]byte{{2, 0xff}, {1, 3}, {2, 1}, {1, 1}, {2}, {3}, {1, 0xff, 0xff}}
		var ops []store.Op
		for _, k := range keys {
			ops = append(ops, store.Op{Key: k, Value: append([]byte("v"), k...)})
		}
		if err := kv.Apply(ops); err != nil {
			t.Fatalf("Apply: %v", err)
		}

		var seen [][]byte
		err := kv.Iterate([]byte{1}, func(k, v []byte) error {
			if !bytes.Equal(v, append([]byte("v"), k...)) {
				t.Fatalf("value mismatch for %x", k)
			}
			seen = append(seen, k)
			return nil
		})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		want := [][]byte{{1, 1}, {1, 3}, {1, 0xff, 0xff}}
		if len(seen) != len(want) {
			t.Fatalf("Iterate(1) visited %x, want %x", seen, want)
		}
		for i := range want {
			if !bytes.Equal(seen[i], want[i]) {
				t.Fatalf("Iterate(1) visited %x, want %x", seen, want)
			}
		}

		var all int
		var prev []byte
		if err := kv.Iterate(nil, func(k, _ []byte) error {
			if prev != nil && bytes.Compare(prev, k) >= 0 {
				t.Fatalf("keys out of order: %x then %x", prev, k)
			}
			prev = k
			all++
			return nil
		}); err != nil {
			t.Fatalf("Iterate(nil): %v", err)
		}
		if all != len(keys) {
			t.Fatalf("Iterate(nil) visited %d, want %d", all, len(keys))
		}
	})

	t.Run("IterateStopsOnError", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Apply([]store.Op{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}}); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		stop := errors.New("stop")
		n := 0
		err := kv.Iterate(nil, func(k, _ []byte) error {
			n++
			if _, err := kv.Get(k); err != nil {
				t.Fatalf("Get inside Iterate: %v", err)
			}
			return stop
		})
		if !errors.Is(err, stop) || n != 1 {
			t.Fatalf("Iterate did not stop: n=%d err=%v", n, err)
		}
	})
}
