package chain

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
	"promphub.io/market/ledger"
)

const (
	metaChain = "chain"
	// metaSeen prefixes one entry per executed signature, valued with the
	// recent hash it referenced. Entries are written in the same batch as
	// the transaction's effects and dropped once that hash leaves the window.
	metaSeen = "seen/"
)

// state is the persisted chain head: height, hash and the window of hashes
// a new transaction may reference.
type state struct {
	Height uint64
	Hash   solana.Hash
	Recent []solana.Hash
}

// GenesisHash is the chain hash at height zero for programID.
func GenesisHash(programID solana.PublicKey) solana.Hash {
	return solana.Hash(sha256.Sum256(append([]byte("promphub/genesis/"), programID[:]...)))
}

func loadState(l *ledger.Ledger, programID solana.PublicKey) (*state, error) {
	b, err := l.Meta(metaChain)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		g := GenesisHash(programID)
		return &state{Hash: g, Recent: []solana.Hash{g}}, nil
	}
	if err != nil {
		return nil, err
	}
	var s state
	if err := codec.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *state) encode() ([]byte, error) {
	return codec.Marshal(*s)
}

func seenName(sig solana.Signature) string {
	return metaSeen + string(sig[:])
}

// loadSeen returns every executed signature still tracked by the ledger.
func loadSeen(l *ledger.Ledger) (map[solana.Signature]solana.Hash, error) {
	entries, err := l.MetaPrefix(metaSeen)
	if err != nil {
		return nil, err
	}
	seen := make(map[solana.Signature]solana.Hash, len(entries))
	for name, v := range entries {
		raw := name[len(metaSeen):]
		if len(raw) != len(solana.Signature{}) || len(v) != len(solana.Hash{}) {
			return nil, fmt.Errorf("chain: corrupt seen entry %x", name)
		}
		var sig solana.Signature
		copy(sig[:], raw)
		seen[sig] = solana.HashFromBytes(v)
	}
	return seen, nil
}
