// Package client is the typed marketplace client. It builds and signs
// transactions, submits them through a Backend and decodes the records it
// reads back.
package client

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/pda"
	"promphub.io/market/program"
	"promphub.io/market/txn"
)

// Backend is a node the client talks to: an in-process runtime or a
// remote daemon.
type Backend interface {
	SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	LatestHash(ctx context.Context) (solana.Hash, error)
	AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	Balance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	TokenMetadata(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	Airdrop(ctx context.Context, addr solana.PublicKey, amount uint64) (uint64, error)
}

type Client struct {
	Backend   Backend
	ProgramID solana.PublicKey
	// Payer signs and pays for every transaction. It is also the acting
	// admin, creator, seller or buyer.
	Payer solana.PrivateKey
}

func New(b Backend, programID solana.PublicKey, payer solana.PrivateKey) *Client {
	return &Client{Backend: b, ProgramID: programID, Payer: payer}
}

func (c *Client) Address() solana.PublicKey { return c.Payer.PublicKey() }

func (c *Client) send(ctx context.Context, ix txn.Instruction, buildErr error, extra ...solana.PrivateKey) (solana.Signature, error) {
	if buildErr != nil {
		return solana.Signature{}, buildErr
	}
	recent, err := c.Backend.LatestHash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("client: recent hash: %w", err)
	}
	tx, err := txn.New(c.Address(), recent, []txn.Instruction{ix}, append([]solana.PrivateKey{c.Payer}, extra...)...)
	if err != nil {
		return solana.Signature{}, err
	}
	raw, err := tx.Encode()
	if err != nil {
		return solana.Signature{}, err
	}
	return c.Backend.SendTransaction(ctx, raw)
}

// Initialize creates the marketplace config with the payer as admin.
func (c *Client) Initialize(ctx context.Context, feeBps uint64) (solana.Signature, error) {
	ix, err := program.NewInitialize(c.ProgramID, c.Address(), feeBps)
	return c.send(ctx, ix, err)
}

// CloseConfig removes the config. Only the admin may close it.
func (c *Client) CloseConfig(ctx context.Context) (solana.Signature, error) {
	ix, err := program.NewCloseConfig(c.ProgramID, c.Address())
	return c.send(ctx, ix, err)
}

// CreateAsset mints a new asset under a fresh mint key and returns the mint.
func (c *Client) CreateAsset(ctx context.Context, metadataURI string, royaltyBps uint64) (solana.PublicKey, solana.Signature, error) {
	mint, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}
	sig, err := c.CreateAssetWithMint(ctx, mint, metadataURI, royaltyBps)
	return mint.PublicKey(), sig, err
}

// CreateAssetWithMint is CreateAsset with a caller-chosen mint key.
func (c *Client) CreateAssetWithMint(ctx context.Context, mint solana.PrivateKey, metadataURI string, royaltyBps uint64) (solana.Signature, error) {
	ix, err := program.NewCreateAsset(c.ProgramID, c.Address(), mint.PublicKey(), metadataURI, royaltyBps)
	return c.send(ctx, ix, err, mint)
}

func (c *Client) List(ctx context.Context, mint solana.PublicKey, price uint64) (solana.Signature, error) {
	ix, err := program.NewList(c.ProgramID, c.Address(), mint, price)
	return c.send(ctx, ix, err)
}

func (c *Client) Delist(ctx context.Context, mint solana.PublicKey) (solana.Signature, error) {
	ix, err := program.NewDelist(c.ProgramID, c.Address(), mint)
	return c.send(ctx, ix, err)
}

// Buy purchases the active listing for mint. The seller, creator and admin
// accounts are read from the current records.
func (c *Client) Buy(ctx context.Context, mint solana.PublicKey) (solana.Signature, error) {
	listing, err := c.FetchListing(ctx, mint)
	if err != nil {
		return solana.Signature{}, err
	}
	asset, err := c.FetchAsset(ctx, mint)
	if err != nil {
		return solana.Signature{}, err
	}
	cfg, err := c.FetchConfig(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := program.NewBuy(c.ProgramID, program.BuyAccounts{
		Buyer:   c.Address(),
		Seller:  listing.Seller,
		Admin:   cfg.Admin,
		Creator: asset.Creator,
		Mint:    mint,
	})
	return c.send(ctx, ix, err)
}

func (c *Client) FetchConfig(ctx context.Context) (*market.Config, error) {
	addr, _, err := pda.Config(c.ProgramID)
	if err != nil {
		return nil, err
	}
	data, err := c.Backend.AccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return market.DecodeConfig(data)
}

func (c *Client) FetchAsset(ctx context.Context, mint solana.PublicKey) (*market.Asset, error) {
	addr, _, err := pda.Asset(c.ProgramID, mint)
	if err != nil {
		return nil, err
	}
	data, err := c.Backend.AccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return market.DecodeAsset(data)
}

func (c *Client) FetchListing(ctx context.Context, mint solana.PublicKey) (*market.Listing, error) {
	addr, _, err := pda.Listing(c.ProgramID, mint)
	if err != nil {
		return nil, err
	}
	data, err := c.Backend.AccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return market.DecodeListing(data)
}

// FetchMetadata reads the token metadata created alongside mint's asset.
func (c *Client) FetchMetadata(ctx context.Context, mint solana.PublicKey) (*ledger.TokenMetadata, error) {
	addr, err := pda.Metadata(mint)
	if err != nil {
		return nil, err
	}
	data, err := c.Backend.TokenMetadata(ctx, addr)
	if err != nil {
		return nil, err
	}
	return ledger.DecodeTokenMetadata(data)
}

// EscrowBalance is the number of units of mint held in escrow.
func (c *Client) EscrowBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	authority, _, err := pda.EscrowAuthority(c.ProgramID, mint)
	if err != nil {
		return 0, err
	}
	return c.TokenBalance(ctx, authority, mint)
}

// TokenBalance is the number of units of mint owner holds in its
// associated token account.
func (c *Client) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	addr, err := pda.TokenAccount(owner, mint)
	if err != nil {
		return 0, err
	}
	return c.Backend.TokenBalance(ctx, addr)
}

// Quote previews how a purchase of mint would be split at current rates.
func (c *Client) Quote(ctx context.Context, mint solana.PublicKey) (market.Split, *market.Listing, error) {
	listing, err := c.FetchListing(ctx, mint)
	if err != nil {
		return market.Split{}, nil, err
	}
	if !listing.IsActive {
		return market.Split{}, listing, market.New(market.CodeNotActive, "mint %s", mint)
	}
	asset, err := c.FetchAsset(ctx, mint)
	if err != nil {
		return market.Split{}, nil, err
	}
	cfg, err := c.FetchConfig(ctx)
	if err != nil {
		return market.Split{}, nil, err
	}
	split, err := market.SplitPrice(listing.Price, cfg.FeeBps, asset.RoyaltyBps)
	return split, listing, err
}

// Balance is the payer's lamport balance.
func (c *Client) Balance(ctx context.Context) (uint64, error) {
	return c.Backend.Balance(ctx, c.Address())
}

// Airdrop asks the node faucet for lamports and returns the new balance.
func (c *Client) Airdrop(ctx context.Context, lamports uint64) (uint64, error) {
	return c.Backend.Airdrop(ctx, c.Address(), lamports)
}
