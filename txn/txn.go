// Package txn is the signed transaction wire format.
//
// A transaction is a message (fee payer, recent hash, instructions) plus one
// ed25519 signature per required signer over the borsh-encoded message. The
// fee payer signs first; other signers follow in order of first appearance
// in the instruction account lists.
package txn

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
)

var (
	ErrNoInstructions   = errors.New("txn: transaction has no instructions")
	ErrMissingSignature = errors.New("txn: missing signature")
	ErrInvalidSignature = errors.New("txn: invalid signature")
	ErrUnknownSigner    = errors.New("txn: key is not a required signer")
)

// AccountMeta declares one account an instruction touches.
type AccountMeta struct {
	PublicKey  solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

func Meta(key solana.PublicKey, writable, signer bool) AccountMeta {
	return AccountMeta{PublicKey: key, IsWritable: writable, IsSigner: signer}
}

type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

type Message struct {
	FeePayer     solana.PublicKey
	RecentHash   solana.Hash
	Instructions []Instruction
}

// Bytes is the signed form of m.
func (m *Message) Bytes() ([]byte, error) {
	return codec.Marshal(*m)
}

// Signers lists the required signers, fee payer first.
func (m *Message) Signers() []solana.PublicKey {
	out := []solana.PublicKey{m.FeePayer}
	seen := map[solana.PublicKey]bool{m.FeePayer: true}
	for _, ix := range m.Instructions {
		for _, a := range ix.Accounts {
			if a.IsSigner && !seen[a.PublicKey] {
				seen[a.PublicKey] = true
				out = append(out, a.PublicKey)
			}
		}
	}
	return out
}

// AccessList merges the account metas of every instruction. An address is
// writable when any instruction marks it writable; the fee payer is always
// writable. Program ids are readable.
func (m *Message) AccessList() map[solana.PublicKey]bool {
	out := map[solana.PublicKey]bool{m.FeePayer: true}
	for _, ix := range m.Instructions {
		if _, ok := out[ix.ProgramID]; !ok {
			out[ix.ProgramID] = false
		}
		for _, a := range ix.Accounts {
			out[a.PublicKey] = out[a.PublicKey] || a.IsWritable
		}
	}
	return out
}

type Transaction struct {
	Signatures []solana.Signature
	Message    Message
}

// New builds and signs a transaction. keys must cover every required signer;
// extra keys are an error.
func New(feePayer solana.PublicKey, recent solana.Hash, instructions []Instruction, keys ...solana.PrivateKey) (*Transaction, error) {
	tx := &Transaction{Message: Message{FeePayer: feePayer, RecentHash: recent, Instructions: instructions}}
	if err := tx.Sign(keys...); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sign computes every required signature from keys.
func (tx *Transaction) Sign(keys ...solana.PrivateKey) error {
	if len(tx.Message.Instructions) == 0 {
		return ErrNoInstructions
	}
	msg, err := tx.Message.Bytes()
	if err != nil {
		return err
	}
	byKey := map[solana.PublicKey]solana.PrivateKey{}
	for _, k := range keys {
		byKey[k.PublicKey()] = k
	}
	signers := tx.Message.Signers()
	sigs := make([]solana.Signature, len(signers))
	for i, s := range signers {
		k, ok := byKey[s]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSignature, s)
		}
		if sigs[i], err = k.Sign(msg); err != nil {
			return err
		}
		delete(byKey, s)
	}
	if len(byKey) > 0 {
		extra := make([]string, 0, len(byKey))
		for k := range byKey {
			extra = append(extra, k.String())
		}
		return fmt.Errorf("%w: %v", ErrUnknownSigner, extra)
	}
	tx.Signatures = sigs
	return nil
}

// Verify checks one valid signature per required signer.
func (tx *Transaction) Verify() error {
	if len(tx.Message.Instructions) == 0 {
		return ErrNoInstructions
	}
	msg, err := tx.Message.Bytes()
	if err != nil {
		return err
	}
	signers := tx.Message.Signers()
	if len(tx.Signatures) != len(signers) {
		return fmt.Errorf("%w: have %d, need %d", ErrMissingSignature, len(tx.Signatures), len(signers))
	}
	for i, s := range signers {
		if !tx.Signatures[i].Verify(s, msg) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, s)
		}
	}
	return nil
}

// ID is the fee payer's signature, which names the transaction.
func (tx *Transaction) ID() solana.Signature {
	if len(tx.Signatures) == 0 {
		return solana.Signature{}
	}
	return tx.Signatures[0]
}

func (tx *Transaction) Encode() ([]byte, error) {
	return codec.Marshal(*tx)
}

func Decode(b []byte) (*Transaction, error) {
	var tx Transaction
	if err := codec.Unmarshal(b, &tx); err != nil {
		return nil, fmt.Errorf("txn: decode: %w", err)
	}
	return &tx, nil
}
