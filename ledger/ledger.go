// Package ledger is the host ledger the marketplace program runs on.
//
// State lives in a store.KV under one-byte prefixes:
//
//	0x01 / address => lamports (u64 LE)
//	0x02 / address => program record (owner, data)
//	0x03 / address => token mint (authority, freeze authority, supply, decimals)
//	0x04 / address => token account (mint, owner, amount)
//	0x05 / address => token metadata (name, symbol, uri, royalty, creators)
//	0x7f / name    => chain metadata
//
// All mutation goes through a Tx, which only touches the addresses declared
// in its access list and commits as a single atomic batch.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
	"promphub.io/market/safemath"
	"promphub.io/market/store"
)

const (
	prefixLamports byte = 0x01
	prefixRecord   byte = 0x02
	prefixMint     byte = 0x03
	prefixToken    byte = 0x04
	prefixMetadata byte = 0x05
	prefixMeta     byte = 0x7f
)

// Record is a program-owned data account.
type Record struct {
	Owner solana.PublicKey
	Data  []byte
}

// Mint is a token type. Marketplace assets are mints with supply 1 and
// zero decimals.
type Mint struct {
	Authority solana.PublicKey
	// FreezeAuthority is the zero key when the mint has none.
	FreezeAuthority solana.PublicKey
	Supply          uint64
	Decimals        uint8
}

// TokenAccount holds an amount of one mint for one owner.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// Ledger is the committed state plus the bookkeeping that detects
// conflicting commits.
type Ledger struct {
	kv store.KV

	mu      sync.Mutex
	version uint64
	// touched records the commit version that last wrote each address.
	touched map[solana.PublicKey]uint64
}

func New(kv store.KV) *Ledger {
	return &Ledger{kv: kv, touched: map[solana.PublicKey]uint64{}}
}

// KV returns the backing store.
func (l *Ledger) KV() store.KV { return l.kv }

func key(prefix byte, addr solana.PublicKey) []byte {
	k := make([]byte, 1+solana.PublicKeyLength)
	k[0] = prefix
	copy(k[1:], addr[:])
	return k
}

func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, name...)
}

func encodeLamports(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeLamports(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("ledger: lamports value is %d bytes", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

func decodeValue[T any](b []byte) (*T, error) {
	var v T
	if err := codec.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("ledger: decode %T: %w", v, err)
	}
	return &v, nil
}

func (l *Ledger) get(k []byte) ([]byte, error) {
	b, err := l.kv.Get(k)
	if store.IsNotFound(err) {
		return nil, ErrAccountNotFound
	}
	return b, err
}

// Lamports returns the committed native balance of addr. Unknown addresses
// hold zero.
func (l *Ledger) Lamports(addr solana.PublicKey) (uint64, error) {
	b, err := l.get(key(prefixLamports, addr))
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeLamports(b)
}

// Record returns the committed record at addr.
func (l *Ledger) Record(addr solana.PublicKey) (*Record, error) {
	b, err := l.get(key(prefixRecord, addr))
	if err != nil {
		return nil, err
	}
	return decodeValue[Record](b)
}

func (l *Ledger) Mint(addr solana.PublicKey) (*Mint, error) {
	b, err := l.get(key(prefixMint, addr))
	if err != nil {
		return nil, err
	}
	return decodeValue[Mint](b)
}

func (l *Ledger) TokenAccount(addr solana.PublicKey) (*TokenAccount, error) {
	b, err := l.get(key(prefixToken, addr))
	if err != nil {
		return nil, err
	}
	return decodeValue[TokenAccount](b)
}

// Credit adds lamports to addr outside of any transaction. It backs genesis
// allocation and the development faucet.
func (l *Ledger) Credit(addr solana.PublicKey, amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.Lamports(addr)
	if err != nil {
		return 0, err
	}
	next, err := safemath.Add(cur, amount)
	if err != nil {
		return 0, ErrOverflow
	}
	if err := l.kv.Apply([]store.Op{{Key: key(prefixLamports, addr), Value: encodeLamports(next)}}); err != nil {
		return 0, err
	}
	l.version++
	l.touched[addr] = l.version
	return next, nil
}

// Meta reads a chain metadata value.
func (l *Ledger) Meta(name string) ([]byte, error) {
	b, err := l.kv.Get(metaKey(name))
	if store.IsNotFound(err) {
		return nil, ErrAccountNotFound
	}
	return b, err
}

// MetaPrefix returns every chain metadata value whose name starts with
// prefix, keyed by the full name.
func (l *Ledger) MetaPrefix(prefix string) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := l.kv.Iterate(metaKey(prefix), func(k, v []byte) error {
		out[string(k[1:])] = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetMeta writes chain metadata values in one batch. A nil value deletes
// the name.
func (l *Ledger) SetMeta(values map[string][]byte) error {
	ops := make([]store.Op, 0, len(values))
	for name, v := range values {
		if v == nil {
			ops = append(ops, store.Op{Key: metaKey(name), Delete: true})
			continue
		}
		ops = append(ops, store.Op{Key: metaKey(name), Value: v})
	}
	sortOps(ops)
	return l.kv.Apply(ops)
}
