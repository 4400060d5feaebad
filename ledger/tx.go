package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sort"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
	"promphub.io/market/safemath"
	"promphub.io/market/store"
)

// AccessList maps every address a transaction may touch to whether it may
// be written.
type AccessList map[solana.PublicKey]bool

// Add declares addr, upgrading it to writable when writable is set.
func (a AccessList) Add(addr solana.PublicKey, writable bool) {
	a[addr] = a[addr] || writable
}

type write struct {
	value []byte
	del   bool
}

// Tx buffers reads and writes against a snapshot-free view of the ledger and
// applies them atomically on Commit. A Tx is not safe for concurrent use.
type Tx struct {
	l              *Ledger
	access         AccessList
	signers        map[solana.PublicKey]bool
	programSigners map[solana.PublicKey]bool
	writes         map[string]write
	accessed       map[solana.PublicKey]struct{}
	start          uint64
	done           bool
}

// Begin opens a transaction restricted to access. signers are the addresses
// whose signatures were verified by the caller.
func (l *Ledger) Begin(access AccessList, signers []solana.PublicKey) *Tx {
	l.mu.Lock()
	start := l.version
	l.mu.Unlock()

	tx := &Tx{
		l:              l,
		access:         access,
		signers:        map[solana.PublicKey]bool{},
		programSigners: map[solana.PublicKey]bool{},
		writes:         map[string]write{},
		accessed:       map[solana.PublicKey]struct{}{},
		start:          start,
	}
	for _, s := range signers {
		tx.signers[s] = true
	}
	return tx
}

// IsSigner reports whether addr signed the transaction or was signed for by
// SignAsProgram.
func (tx *Tx) IsSigner(addr solana.PublicKey) bool {
	return tx.signers[addr] || tx.programSigners[addr]
}

// SignAsProgram authorizes the address derived from seeds (bump included)
// under programID, the way a program signs for its own derived accounts.
func (tx *Tx) SignAsProgram(programID solana.PublicKey, seeds [][]byte) (solana.PublicKey, error) {
	addr, err := solana.CreateProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	tx.programSigners[addr] = true
	return addr, nil
}

func (tx *Tx) checkRead(addr solana.PublicKey) error {
	if tx.done {
		return ErrTxDone
	}
	if _, ok := tx.access[addr]; !ok {
		return accessErr(ErrAccessViolation, addr)
	}
	tx.accessed[addr] = struct{}{}
	return nil
}

func (tx *Tx) checkWrite(addr solana.PublicKey) error {
	if err := tx.checkRead(addr); err != nil {
		return err
	}
	if !tx.access[addr] {
		return accessErr(ErrReadOnly, addr)
	}
	return nil
}

func (tx *Tx) get(k []byte) ([]byte, error) {
	if w, ok := tx.writes[string(k)]; ok {
		if w.del {
			return nil, ErrAccountNotFound
		}
		return w.value, nil
	}
	return tx.l.get(k)
}

func (tx *Tx) put(k, v []byte) { tx.writes[string(k)] = write{value: v} }
func (tx *Tx) del(k []byte)    { tx.writes[string(k)] = write{del: true} }

// Lamports returns the balance of addr as seen by this transaction.
func (tx *Tx) Lamports(addr solana.PublicKey) (uint64, error) {
	if err := tx.checkRead(addr); err != nil {
		return 0, err
	}
	return tx.lamports(addr)
}

func (tx *Tx) lamports(addr solana.PublicKey) (uint64, error) {
	b, err := tx.get(key(prefixLamports, addr))
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeLamports(b)
}

func (tx *Tx) setLamports(addr solana.PublicKey, v uint64) {
	if v == 0 {
		tx.del(key(prefixLamports, addr))
		return
	}
	tx.put(key(prefixLamports, addr), encodeLamports(v))
}

// Transfer moves lamports. The sender must have signed.
func (tx *Tx) Transfer(from, to solana.PublicKey, amount uint64) error {
	if err := tx.checkWrite(from); err != nil {
		return err
	}
	if err := tx.checkWrite(to); err != nil {
		return err
	}
	if !tx.signers[from] {
		return accessErr(ErrMissingSignature, from)
	}
	if amount == 0 || from.Equals(to) {
		return nil
	}
	fb, err := tx.lamports(from)
	if err != nil {
		return err
	}
	if fb < amount {
		return ErrInsufficientFunds
	}
	tb, err := tx.lamports(to)
	if err != nil {
		return err
	}
	next, err := safemath.Add(tb, amount)
	if err != nil {
		return ErrOverflow
	}
	tx.setLamports(from, fb-amount)
	tx.setLamports(to, next)
	return nil
}

// Burn removes lamports from a signing account. Network fees are burned.
func (tx *Tx) Burn(from solana.PublicKey, amount uint64) error {
	if err := tx.checkWrite(from); err != nil {
		return err
	}
	if !tx.signers[from] {
		return accessErr(ErrMissingSignature, from)
	}
	fb, err := tx.lamports(from)
	if err != nil {
		return err
	}
	if fb < amount {
		return ErrInsufficientFunds
	}
	tx.setLamports(from, fb-amount)
	return nil
}

// Record returns the record at addr.
func (tx *Tx) Record(addr solana.PublicKey) (*Record, error) {
	if err := tx.checkRead(addr); err != nil {
		return nil, err
	}
	b, err := tx.get(key(prefixRecord, addr))
	if err != nil {
		return nil, err
	}
	return decodeValue[Record](b)
}

func (tx *Tx) putRecord(addr solana.PublicKey, r Record) error {
	b, err := codec.Marshal(r)
	if err != nil {
		return err
	}
	tx.put(key(prefixRecord, addr), b)
	return nil
}

// CreateRecord allocates a new record owned by owner.
func (tx *Tx) CreateRecord(addr, owner solana.PublicKey, data []byte) error {
	if err := tx.checkWrite(addr); err != nil {
		return err
	}
	if _, err := tx.get(key(prefixRecord, addr)); err == nil {
		return accessErr(ErrAccountExists, addr)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return tx.putRecord(addr, Record{Owner: owner, Data: bytes.Clone(data)})
}

// WriteRecord replaces the data of an existing record. Only the owning
// program may write.
func (tx *Tx) WriteRecord(addr, owner solana.PublicKey, data []byte) error {
	if err := tx.checkWrite(addr); err != nil {
		return err
	}
	r, err := tx.Record(addr)
	if err != nil {
		return err
	}
	if !r.Owner.Equals(owner) {
		return accessErr(ErrWrongOwner, addr)
	}
	return tx.putRecord(addr, Record{Owner: owner, Data: bytes.Clone(data)})
}

// CloseRecord deletes a record owned by owner.
func (tx *Tx) CloseRecord(addr, owner solana.PublicKey) error {
	if err := tx.checkWrite(addr); err != nil {
		return err
	}
	r, err := tx.Record(addr)
	if err != nil {
		return err
	}
	if !r.Owner.Equals(owner) {
		return accessErr(ErrWrongOwner, addr)
	}
	tx.del(key(prefixRecord, addr))
	return nil
}

// PutMeta buffers a chain metadata write that commits together with the
// transaction. Metadata is host bookkeeping and sits outside the access list.
func (tx *Tx) PutMeta(name string, value []byte) {
	tx.put(metaKey(name), append([]byte{}, value...))
}

// ChangeSet is the ordered batch a Tx committed.
type ChangeSet struct {
	Ops     []store.Op
	Version uint64
}

// Digest is sha256 over the length-prefixed ops; equal batches hash equally.
func (c *ChangeSet) Digest() [32]byte {
	h := sha256.New()
	var n [8]byte
	for _, op := range c.Ops {
		binary.LittleEndian.PutUint64(n[:], uint64(len(op.Key)))
		h.Write(n[:])
		h.Write(op.Key)
		if op.Delete {
			h.Write([]byte{1})
			continue
		}
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(n[:], uint64(len(op.Value)))
		h.Write(n[:])
		h.Write(op.Value)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Commit applies every buffered write in one batch. It fails with
// ErrConflict when another commit changed an address this transaction
// touched since Begin; nothing is written in that case.
func (tx *Tx) Commit() (*ChangeSet, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	tx.done = true

	ops := make([]store.Op, 0, len(tx.writes))
	for k, w := range tx.writes {
		ops = append(ops, store.Op{Key: []byte(k), Value: w.value, Delete: w.del})
	}
	sortOps(ops)

	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr := range tx.accessed {
		if l.touched[addr] > tx.start {
			return nil, accessErr(ErrConflict, addr)
		}
	}
	if len(ops) > 0 {
		if err := l.kv.Apply(ops); err != nil {
			return nil, err
		}
	}
	l.version++
	for _, op := range ops {
		if len(op.Key) == 1+solana.PublicKeyLength && op.Key[0] != prefixMeta {
			l.touched[solana.PublicKeyFromBytes(op.Key[1:])] = l.version
		}
	}
	return &ChangeSet{Ops: ops, Version: l.version}, nil
}

// Discard drops every buffered write.
func (tx *Tx) Discard() {
	tx.done = true
	tx.writes = nil
}

func sortOps(ops []store.Op) {
	sort.Slice(ops, func(i, j int) bool { return bytes.Compare(ops[i].Key, ops[j].Key) < 0 })
}

// AddressError names the address an operation failed on.
type AddressError struct {
	Err     error
	Address solana.PublicKey
}

func (e *AddressError) Error() string { return e.Err.Error() + ": " + e.Address.String() }
func (e *AddressError) Unwrap() error { return e.Err }

func accessErr(err error, addr solana.PublicKey) error {
	return &AddressError{Err: err, Address: addr}
}
