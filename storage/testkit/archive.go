package testkit

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"promphub.io/market/cidutil"
	"promphub.io/market/storage"
)

// NewArchive constructs a fresh, empty archive for a test.
// The returned archive MUST be isolated from other tests.
type NewArchive func(t *testing.T) storage.SnapshotArchive

func RunArchiveConformance(t *testing.T, newArchive NewArchive) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		a := newArchive(t)
		want := []byte("ledger snapshot")

		id, err := a.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.Sum(want)
		if err != nil {
			t.Fatalf("Sum failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}
		got, err := a.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		a := newArchive(t)
		b := []byte("same bytes")
		id1, err := a.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := a.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		a := newArchive(t)
		b := []byte("missing")
		id, err := cidutil.Sum(b)
		if err != nil {
			t.Fatalf("Sum failed: %v", err)
		}
		if a.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := a.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if _, err := a.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !a.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		a := newArchive(t)
		var undef cid.Cid
		if a.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := a.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("HeadTracksCheckpoints", func(t *testing.T) {
		a := newArchive(t)
		if _, err := a.Head(); !storage.IsNotFound(err) {
			t.Fatalf("Head before checkpoint: got %v want ErrNotFound", err)
		}
		if _, _, err := storage.Latest(a); !storage.IsNotFound(err) {
			t.Fatalf("Latest before checkpoint: got %v want ErrNotFound", err)
		}
		if _, err := storage.Checkpoint(a, 5, []byte{1, 2}, []byte("five")); err != nil {
			t.Fatalf("Checkpoint(5): %v", err)
		}
		h, err := storage.Checkpoint(a, 9, []byte{3, 4}, []byte("nine"))
		if err != nil {
			t.Fatalf("Checkpoint(9): %v", err)
		}
		got, data, err := storage.Latest(a)
		if err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if got != h || got.Height != 9 || got.AppHash != "0304" || string(data) != "nine" {
			t.Fatalf("Latest = %+v %q", got, data)
		}
	})

	t.Run("SetHeadRequiresArchivedSnapshot", func(t *testing.T) {
		a := newArchive(t)
		id, err := cidutil.Sum([]byte("never stored"))
		if err != nil {
			t.Fatalf("Sum failed: %v", err)
		}
		if err := a.SetHead(storage.Head{Height: 1, CID: id.String()}); !storage.IsNotFound(err) {
			t.Fatalf("SetHead to missing snapshot: got %v want ErrNotFound", err)
		}
		if err := a.SetHead(storage.Head{Height: 1, CID: "not-a-cid"}); !errors.Is(err, storage.ErrInvalidCID) {
			t.Fatalf("SetHead with bad cid: got %v want ErrInvalidCID", err)
		}
	})
}
