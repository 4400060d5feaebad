package storage_test

import (
	"errors"
	"testing"

	"promphub.io/market/cidutil"
	"promphub.io/market/storage"
	"promphub.io/market/storage/localfs"
	"promphub.io/market/storage/testkit"
)

func newLocal(t *testing.T) *localfs.Archive {
	t.Helper()
	a, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return a
}

func TestReplicating_Conformance(t *testing.T) {
	testkit.RunArchiveConformance(t, func(t *testing.T) storage.SnapshotArchive {
		return storage.Replicating{Archives: []storage.NamedArchive{
			{Name: "a", Archive: newLocal(t)},
			{Name: "b", Archive: newLocal(t)},
		}}
	})
}

func TestReplicating_WritesEverywhere(t *testing.T) {
	a, b := newLocal(t), newLocal(t)
	r := storage.Replicating{Archives: []storage.NamedArchive{{Name: "a", Archive: a}, {Name: "b", Archive: b}}}

	data := []byte("ledger snapshot")
	id, per, err := r.PutAll(data)
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if want := cidutil.String(data); id.String() != want || len(per) != 2 {
		t.Fatalf("PutAll = %s %v", id, per)
	}
	if !a.Has(id) || !b.Has(id) {
		t.Fatalf("snapshot not replicated")
	}
	h, err := storage.Checkpoint(r, 7, []byte{1, 2}, data)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	for _, arch := range []*localfs.Archive{a, b} {
		got, err := arch.Head()
		if err != nil || got != h {
			t.Fatalf("replica head = %+v, %v", got, err)
		}
	}
}

func TestReplicating_HeadPrefersHighest(t *testing.T) {
	a, b := newLocal(t), newLocal(t)
	r := storage.Replicating{Archives: []storage.NamedArchive{{Name: "a", Archive: a}, {Name: "b", Archive: b}}}
	if _, err := r.Head(); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("empty Head err = %v", err)
	}

	if _, err := storage.Checkpoint(a, 3, nil, []byte("old")); err != nil {
		t.Fatalf("Checkpoint a: %v", err)
	}
	newer, err := storage.Checkpoint(b, 9, nil, []byte("new"))
	if err != nil {
		t.Fatalf("Checkpoint b: %v", err)
	}
	h, data, err := storage.Latest(r)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if h != newer || string(data) != "new" {
		t.Fatalf("Latest = %+v %q", h, data)
	}
}

func TestReplicating_NoArchives(t *testing.T) {
	var r storage.Replicating
	if _, err := r.Put([]byte("x")); err == nil {
		t.Fatalf("expected error without archives")
	}
	id, _ := cidutil.Sum([]byte("x"))
	if _, err := r.Get(id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get err = %v", err)
	}
}
