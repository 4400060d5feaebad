package market

import (
	"errors"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestRecordsEncodeToAllocation(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()

	cfg := &Config{Admin: creator, FeeBps: 250, Bump: 254}
	b, err := cfg.Encode()
	if err != nil || len(b) != ConfigSpace {
		t.Fatalf("config encode: len=%d err=%v", len(b), err)
	}
	gotCfg, err := DecodeConfig(b)
	if err != nil || *gotCfg != *cfg {
		t.Fatalf("config decode: %+v, %v", gotCfg, err)
	}

	asset := &Asset{Mint: mint, Creator: creator, MetadataURI: "ipfs://bafy", RoyaltyBps: 500, Bump: 253}
	b, err = asset.Encode()
	if err != nil || len(b) != AssetSpace {
		t.Fatalf("asset encode: len=%d err=%v", len(b), err)
	}
	gotAsset, err := DecodeAsset(b)
	if err != nil || *gotAsset != *asset {
		t.Fatalf("asset decode: %+v, %v", gotAsset, err)
	}

	listing := &Listing{Mint: mint, Seller: creator, Price: 10, IsActive: true, Bump: 252}
	b, err = listing.Encode()
	if err != nil || len(b) != ListingSpace {
		t.Fatalf("listing encode: len=%d err=%v", len(b), err)
	}
	gotListing, err := DecodeListing(b)
	if err != nil || *gotListing != *listing {
		t.Fatalf("listing decode: %+v, %v", gotListing, err)
	}
}

func TestDecodeRejectsOtherRecordType(t *testing.T) {
	b, err := (&Listing{Price: 1}).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = DecodeConfig(b)
	if CodeOf(err) != CodeAccountDiscriminatorMismatch {
		t.Fatalf("expected discriminator mismatch, got %v", err)
	}
	if !IsKind(err, KindDecode) {
		t.Fatalf("expected decode kind, got %v", err)
	}
}

func TestAssetURILimit(t *testing.T) {
	if err := ValidateURI(strings.Repeat("a", MaxMetadataURILen)); err != nil {
		t.Fatalf("uri at limit rejected: %v", err)
	}
	err := ValidateURI(strings.Repeat("a", MaxMetadataURILen+1))
	if !errors.Is(err, ErrInvalidURI) {
		t.Fatalf("expected ErrInvalidURI, got %v", err)
	}
	a := &Asset{MetadataURI: strings.Repeat("a", MaxMetadataURILen)}
	if _, err := a.Encode(); err != nil {
		t.Fatalf("max uri must fit the allocation: %v", err)
	}
}
