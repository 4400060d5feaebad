package market

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
)

// Record names as they appear in discriminators. The asset record keeps the
// deployed program's "Prompt" name.
const (
	ConfigAccountName  = "Config"
	AssetAccountName   = "Prompt"
	ListingAccountName = "Listing"
)

const (
	MaxBps            = 10_000
	MaxMetadataURILen = 200
)

// Token metadata written for every created asset.
const (
	AssetTokenName   = "Promphub Prompt"
	AssetTokenSymbol = "PROMPT"
)

// Allocation sizes, discriminator included.
const (
	ConfigSpace  = 8 + 32 + 8 + 1
	AssetSpace   = 8 + 32 + 32 + 4 + MaxMetadataURILen + 8 + 1
	ListingSpace = 8 + 32 + 32 + 8 + 1 + 1
)

type Config struct {
	Admin  solana.PublicKey `json:"admin"`
	FeeBps uint64           `json:"fee_bps"`
	Bump   uint8            `json:"bump"`
}

type Asset struct {
	Mint        solana.PublicKey `json:"mint"`
	Creator     solana.PublicKey `json:"creator"`
	MetadataURI string           `json:"metadata_uri"`
	RoyaltyBps  uint64           `json:"royalty_bps"`
	Bump        uint8            `json:"bump"`
}

type Listing struct {
	Mint     solana.PublicKey `json:"mint"`
	Seller   solana.PublicKey `json:"seller"`
	Price    uint64           `json:"price"`
	IsActive bool             `json:"is_active"`
	Bump     uint8            `json:"bump"`
}

func (c *Config) Encode() ([]byte, error)  { return encodeRecord(ConfigAccountName, *c, ConfigSpace) }
func (a *Asset) Encode() ([]byte, error)   { return encodeRecord(AssetAccountName, *a, AssetSpace) }
func (l *Listing) Encode() ([]byte, error) { return encodeRecord(ListingAccountName, *l, ListingSpace) }

func DecodeConfig(data []byte) (*Config, error) {
	var c Config
	if err := decodeRecord(ConfigAccountName, data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func DecodeAsset(data []byte) (*Asset, error) {
	var a Asset
	if err := decodeRecord(AssetAccountName, data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func DecodeListing(data []byte) (*Listing, error) {
	var l Listing
	if err := decodeRecord(ListingAccountName, data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func encodeRecord(name string, v any, space int) ([]byte, error) {
	b, err := codec.EncodeAccount(name, v)
	if err != nil {
		return nil, Wrap(CodeInternal, err, "encode %s", name)
	}
	if len(b) > space {
		return nil, New(CodeInternal, "%s record is %d bytes, allocation is %d", name, len(b), space)
	}
	out := make([]byte, space)
	copy(out, b)
	return out, nil
}

func decodeRecord(name string, data []byte, v any) error {
	err := codec.DecodeAccount(name, data, v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, codec.ErrDiscriminatorMismatch), errors.Is(err, codec.ErrShortData):
		return Wrap(CodeAccountDiscriminatorMismatch, err, "%s", name)
	default:
		return Wrap(CodeAccountDidNotDeserialize, err, "%s: %v", name, err)
	}
}

// ValidateURI enforces the metadata uri allocation.
func ValidateURI(uri string) error {
	if len(uri) > MaxMetadataURILen {
		return New(CodeInvalidURI, "metadata uri is %d bytes, limit %d", len(uri), MaxMetadataURILen)
	}
	return nil
}

func (l *Listing) String() string {
	state := "inactive"
	if l.IsActive {
		state = "active"
	}
	return fmt.Sprintf("listing %s by %s at %d (%s)", l.Mint, l.Seller, l.Price, state)
}
