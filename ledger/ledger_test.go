package ledger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/store/memory"
)

func newKey() solana.PublicKey { return solana.NewWallet().PublicKey() }

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(memory.New())
}

func fund(t *testing.T, l *Ledger, addr solana.PublicKey, amount uint64) {
	t.Helper()
	if _, err := l.Credit(addr, amount); err != nil {
		t.Fatalf("Credit: %v", err)
	}
}

func mustLamports(t *testing.T, l *Ledger, addr solana.PublicKey) uint64 {
	t.Helper()
	v, err := l.Lamports(addr)
	if err != nil {
		t.Fatalf("Lamports: %v", err)
	}
	return v
}

func TestTransferCommits(t *testing.T) {
	l := newLedger(t)
	a, b := newKey(), newKey()
	fund(t, l, a, 100)

	tx := l.Begin(AccessList{a: true, b: true}, []solana.PublicKey{a})
	if err := tx.Transfer(a, b, 40); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := mustLamports(t, l, b); got != 0 {
		t.Fatalf("uncommitted write visible: %d", got)
	}
	cs, err := tx.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(cs.Ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(cs.Ops))
	}
	if mustLamports(t, l, a) != 60 || mustLamports(t, l, b) != 40 {
		t.Fatalf("balances %d/%d", mustLamports(t, l, a), mustLamports(t, l, b))
	}
}

func TestTransferRules(t *testing.T) {
	l := newLedger(t)
	a, b, c := newKey(), newKey(), newKey()
	fund(t, l, a, 10)

	tx := l.Begin(AccessList{a: true, b: true, c: false}, []solana.PublicKey{a})
	if err := tx.Transfer(a, b, 11); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := tx.Transfer(b, a, 1); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	if err := tx.Transfer(a, c, 1); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := tx.Transfer(a, newKey(), 1); !errors.Is(err, ErrAccessViolation) {
		t.Fatalf("expected ErrAccessViolation, got %v", err)
	}
	var ae *AddressError
	if err := tx.Transfer(a, c, 1); !errors.As(err, &ae) || !ae.Address.Equals(c) {
		t.Fatalf("expected AddressError naming %s, got %v", c, err)
	}
}

func TestDiscardLeavesStateUntouched(t *testing.T) {
	l := newLedger(t)
	a, b := newKey(), newKey()
	fund(t, l, a, 10)
	tx := l.Begin(AccessList{a: true, b: true}, []solana.PublicKey{a})
	if err := tx.Transfer(a, b, 5); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	tx.Discard()
	if _, err := tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Fatalf("expected ErrTxDone, got %v", err)
	}
	if mustLamports(t, l, a) != 10 || mustLamports(t, l, b) != 0 {
		t.Fatalf("discarded tx changed balances")
	}
}

func TestConflictingCommitIsRejected(t *testing.T) {
	l := newLedger(t)
	a, b, c := newKey(), newKey(), newKey()
	fund(t, l, a, 100)

	first := l.Begin(AccessList{a: true, b: true}, []solana.PublicKey{a})
	second := l.Begin(AccessList{a: true, c: true}, []solana.PublicKey{a})
	if err := first.Transfer(a, b, 70); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := second.Transfer(a, c, 70); err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := first.Commit(); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if _, err := second.Commit(); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if mustLamports(t, l, a) != 30 || mustLamports(t, l, c) != 0 {
		t.Fatalf("stale transaction applied")
	}

	// Disjoint access lists commit independently.
	d, e := newKey(), newKey()
	fund(t, l, d, 5)
	x := l.Begin(AccessList{d: true, e: true}, []solana.PublicKey{d})
	y := l.Begin(AccessList{b: true, c: true}, []solana.PublicKey{b})
	if err := x.Transfer(d, e, 5); err != nil {
		t.Fatalf("x: %v", err)
	}
	if err := y.Transfer(b, c, 5); err != nil {
		t.Fatalf("y: %v", err)
	}
	if _, err := x.Commit(); err != nil {
		t.Fatalf("x commit: %v", err)
	}
	if _, err := y.Commit(); err != nil {
		t.Fatalf("y commit: %v", err)
	}
}

func TestRecordLifecycle(t *testing.T) {
	l := newLedger(t)
	program, other, addr := newKey(), newKey(), newKey()

	tx := l.Begin(AccessList{addr: true}, nil)
	if err := tx.CreateRecord(addr, program, []byte{1, 2, 3}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if err := tx.CreateRecord(addr, program, []byte{9}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if err := tx.WriteRecord(addr, other, []byte{9}); !errors.Is(err, ErrWrongOwner) {
		t.Fatalf("expected ErrWrongOwner, got %v", err)
	}
	if err := tx.WriteRecord(addr, program, []byte{4, 5}); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	r, err := l.Record(addr)
	if err != nil || !bytes.Equal(r.Data, []byte{4, 5}) || !r.Owner.Equals(program) {
		t.Fatalf("Record = %+v, %v", r, err)
	}

	tx = l.Begin(AccessList{addr: true}, nil)
	if err := tx.CloseRecord(addr, program); err != nil {
		t.Fatalf("CloseRecord: %v", err)
	}
	if _, err := tx.Record(addr); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("closed record still readable in tx: %v", err)
	}
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := l.Record(addr); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := newLedger(t)
	a := newKey()
	fund(t, l, a, 77)
	if err := l.SetMeta(map[string][]byte{"height": {1}}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	snap, err := l.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	kv := memory.New()
	if err := Restore(kv, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored := New(kv)
	if mustLamports(t, restored, a) != 77 {
		t.Fatalf("restored balance wrong")
	}
	again, err := restored.Snapshot()
	if err != nil || !bytes.Equal(again, snap) {
		t.Fatalf("snapshot not canonical: %v", err)
	}
	if err := Restore(kv, snap); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("expected ErrNotEmpty, got %v", err)
	}
}

func TestChangeSetDigestIsDeterministic(t *testing.T) {
	run := func() [32]byte {
		l := newLedger(t)
		a := solana.PublicKeyFromBytes(bytes.Repeat([]byte{1}, 32))
		b := solana.PublicKeyFromBytes(bytes.Repeat([]byte{2}, 32))
		fund(t, l, a, 10)
		tx := l.Begin(AccessList{a: true, b: true}, []solana.PublicKey{a})
		if err := tx.Transfer(a, b, 3); err != nil {
			t.Fatalf("Transfer: %v", err)
		}
		cs, err := tx.Commit()
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return cs.Digest()
	}
	if run() != run() {
		t.Fatalf("digest differs for identical batches")
	}
}

func TestMetaCommitsWithTransaction(t *testing.T) {
	l := newLedger(t)
	a, b := newKey(), newKey()
	fund(t, l, a, 10)

	access := AccessList{}
	access.Add(a, true)
	access.Add(b, true)

	tx := l.Begin(access, []solana.PublicKey{a})
	if err := tx.Transfer(a, b, 4); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	tx.PutMeta("seen/x", []byte{1})
	tx.Discard()
	if got, err := l.MetaPrefix("seen/"); err != nil || len(got) != 0 {
		t.Fatalf("discarded meta visible: %v, %v", got, err)
	}

	tx = l.Begin(access, []solana.PublicKey{a})
	if err := tx.Transfer(a, b, 4); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	tx.PutMeta("seen/x", []byte{1})
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := l.SetMeta(map[string][]byte{"seen/y": {2}, "chain": {3}}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	got, err := l.MetaPrefix("seen/")
	if err != nil || len(got) != 2 || !bytes.Equal(got["seen/x"], []byte{1}) {
		t.Fatalf("MetaPrefix = %v, %v", got, err)
	}

	if err := l.SetMeta(map[string][]byte{"seen/x": nil}); err != nil {
		t.Fatalf("SetMeta delete: %v", err)
	}
	got, err = l.MetaPrefix("seen/")
	if err != nil || len(got) != 1 || got["seen/y"] == nil {
		t.Fatalf("after delete = %v, %v", got, err)
	}
	if _, err := l.Meta("chain"); err != nil {
		t.Fatalf("Meta(chain): %v", err)
	}
}
