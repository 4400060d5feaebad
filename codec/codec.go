// Package codec implements the on-ledger binary layout of records,
// instructions and events.
//
// Every payload starts with an 8-byte discriminator: the first eight bytes
// of sha256("<namespace>:<name>"). Records use the "account" namespace,
// instructions "global" and events "event". The body is borsh.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

const DiscriminatorLen = 8

const (
	NamespaceAccount     = "account"
	NamespaceInstruction = "global"
	NamespaceEvent       = "event"
)

var (
	ErrShortData             = errors.New("codec: data shorter than discriminator")
	ErrDiscriminatorMismatch = errors.New("codec: discriminator mismatch")
	ErrTrailingData          = errors.New("codec: unexpected trailing bytes")
)

// Discriminator tags the type of an encoded payload.
type Discriminator [DiscriminatorLen]byte

func (d Discriminator) String() string { return hex.EncodeToString(d[:]) }

// NewDiscriminator returns sha256(namespace + ":" + name)[:8].
func NewDiscriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

func AccountDiscriminator(name string) Discriminator {
	return NewDiscriminator(NamespaceAccount, name)
}

func InstructionDiscriminator(name string) Discriminator {
	return NewDiscriminator(NamespaceInstruction, name)
}

func EventDiscriminator(name string) Discriminator {
	return NewDiscriminator(NamespaceEvent, name)
}

// Marshal borsh-encodes v without a discriminator.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a borsh body into v and rejects any trailing byte.
func Unmarshal(data []byte, v any) error {
	dec := bin.NewBorshDecoder(data)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.Remaining() != 0 {
		return fmt.Errorf("%w: %d", ErrTrailingData, dec.Remaining())
	}
	return nil
}

func encodeTagged(d Discriminator, v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(d[:])
	if v != nil {
		if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Split separates the discriminator from the body.
func Split(data []byte) (Discriminator, []byte, error) {
	var d Discriminator
	if len(data) < DiscriminatorLen {
		return d, nil, ErrShortData
	}
	copy(d[:], data[:DiscriminatorLen])
	return d, data[DiscriminatorLen:], nil
}

// EncodeAccount returns the stored form of a record named name.
func EncodeAccount(name string, v any) ([]byte, error) {
	return encodeTagged(AccountDiscriminator(name), v)
}

// DecodeAccount checks the record discriminator and decodes the body into v.
// Records live in fixed-size allocations, so trailing bytes are accepted
// only when they are all zero.
func DecodeAccount(name string, data []byte, v any) error {
	d, body, err := Split(data)
	if err != nil {
		return err
	}
	if want := AccountDiscriminator(name); d != want {
		return fmt.Errorf("%w: have %s, want %s (%s)", ErrDiscriminatorMismatch, d, want, name)
	}
	dec := bin.NewBorshDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	rest := body[len(body)-dec.Remaining():]
	for _, b := range rest {
		if b != 0 {
			return fmt.Errorf("%w: %d", ErrTrailingData, len(rest))
		}
	}
	return nil
}

// EncodeInstruction returns instruction data for the named handler.
// A nil args value encodes a handler that takes no arguments.
func EncodeInstruction(name string, args any) ([]byte, error) {
	return encodeTagged(InstructionDiscriminator(name), args)
}

// EncodeEvent returns the binary form of an emitted event.
func EncodeEvent(name string, v any) ([]byte, error) {
	return encodeTagged(EventDiscriminator(name), v)
}
