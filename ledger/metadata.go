package ledger

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
)

// Token metadata field limits, in bytes.
const (
	MaxMetadataNameLen   = 32
	MaxMetadataSymbolLen = 10
	MaxMetadataURILen    = 200
	MaxMetadataCreators  = 5
)

// Creator is one entry of a token's creator list.
type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// TokenMetadata describes a mint to wallets and marketplaces. It lives at
// the mint's token metadata address.
type TokenMetadata struct {
	UpdateAuthority      solana.PublicKey
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
	IsMutable            bool
}

func (m *TokenMetadata) validate() error {
	switch {
	case len(m.Name) > MaxMetadataNameLen || !utf8.ValidString(m.Name):
		return fmt.Errorf("%w: name", ErrInvalidMetadata)
	case len(m.Symbol) > MaxMetadataSymbolLen || !utf8.ValidString(m.Symbol):
		return fmt.Errorf("%w: symbol", ErrInvalidMetadata)
	case len(m.URI) > MaxMetadataURILen || !utf8.ValidString(m.URI):
		return fmt.Errorf("%w: uri", ErrInvalidMetadata)
	case m.SellerFeeBasisPoints > 10000:
		return fmt.Errorf("%w: seller fee %d bps", ErrInvalidMetadata, m.SellerFeeBasisPoints)
	case len(m.Creators) > MaxMetadataCreators:
		return fmt.Errorf("%w: %d creators", ErrInvalidMetadata, len(m.Creators))
	}
	if len(m.Creators) == 0 {
		return nil
	}
	total := 0
	seen := make(map[solana.PublicKey]bool, len(m.Creators))
	for _, c := range m.Creators {
		if seen[c.Address] {
			return fmt.Errorf("%w: duplicate creator %s", ErrInvalidMetadata, c.Address)
		}
		seen[c.Address] = true
		total += int(c.Share)
	}
	if total != 100 {
		return fmt.Errorf("%w: creator shares sum to %d", ErrInvalidMetadata, total)
	}
	return nil
}

// DecodeTokenMetadata decodes the stored form returned by Ledger reads and
// the node's metadata queries.
func DecodeTokenMetadata(b []byte) (*TokenMetadata, error) {
	return decodeValue[TokenMetadata](b)
}

// Encode is the stored form of m.
func (m *TokenMetadata) Encode() ([]byte, error) {
	return codec.Marshal(*m)
}

// Metadata returns the token metadata at addr.
func (l *Ledger) Metadata(addr solana.PublicKey) (*TokenMetadata, error) {
	b, err := l.get(key(prefixMetadata, addr))
	if err != nil {
		return nil, err
	}
	return DecodeTokenMetadata(b)
}

// Metadata returns the token metadata at addr as seen by this transaction.
func (tx *Tx) Metadata(addr solana.PublicKey) (*TokenMetadata, error) {
	if err := tx.checkRead(addr); err != nil {
		return nil, err
	}
	b, err := tx.get(key(prefixMetadata, addr))
	if err != nil {
		return nil, err
	}
	return DecodeTokenMetadata(b)
}

// CreateMetadata stores md at the token metadata address of md.Mint. The
// mint authority must sign, and a creator may only be marked verified when
// it signed too.
func (tx *Tx) CreateMetadata(addr, mintAuthority solana.PublicKey, md TokenMetadata) error {
	if err := tx.checkWrite(addr); err != nil {
		return err
	}
	want, _, err := solana.FindTokenMetadataAddress(md.Mint)
	if err != nil {
		return err
	}
	if !want.Equals(addr) {
		return accessErr(ErrNotMetadataAddress, addr)
	}
	m, err := tx.Mint(md.Mint)
	if err != nil {
		return err
	}
	if !tx.IsSigner(mintAuthority) {
		return accessErr(ErrMissingSignature, mintAuthority)
	}
	if !m.Authority.Equals(mintAuthority) {
		return accessErr(ErrAuthorityMismatch, md.Mint)
	}
	if err := md.validate(); err != nil {
		return err
	}
	for _, c := range md.Creators {
		if c.Verified && !tx.IsSigner(c.Address) {
			return accessErr(ErrMissingSignature, c.Address)
		}
	}
	if _, err := tx.get(key(prefixMetadata, addr)); err == nil {
		return accessErr(ErrAccountExists, addr)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return tx.putValue(key(prefixMetadata, addr), md)
}
