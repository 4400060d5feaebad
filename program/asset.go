package program

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/pda"
)

func (p *Program) createAsset(tx *ledger.Tx, a accounts, raw []byte, r *Result) error {
	var args CreateAssetArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	if err := a.need(9); err != nil {
		return err
	}
	assetAddr, err := a.writable(0, "asset")
	if err != nil {
		return err
	}
	mint, err := a.writable(1, "mint")
	if err != nil {
		return err
	}
	creatorToken, err := a.writable(2, "creator token")
	if err != nil {
		return err
	}
	creator, err := a.signer(3, "creator")
	if err != nil {
		return err
	}
	metadataAddr, err := a.writable(4, "metadata")
	if err != nil {
		return err
	}
	for i, id := range []solana.PublicKey{solana.SystemProgramID, solana.TokenProgramID, solana.SPLAssociatedTokenAccountProgramID, solana.TokenMetadataProgramID} {
		if err := a.program(5+i, id); err != nil {
			return err
		}
	}
	bump, err := p.derived(assetAddr, "asset", pda.SeedAsset, mint[:])
	if err != nil {
		return err
	}

	if args.RoyaltyBps > p.Policy.MaxRoyaltyBps {
		return market.New(market.CodeInvalidRoyalty, "royalty_bps %d exceeds %d", args.RoyaltyBps, p.Policy.MaxRoyaltyBps)
	}
	if err := market.ValidateURI(args.MetadataURI); err != nil {
		return err
	}

	if _, exists, err := p.record(tx, assetAddr, "asset"); err != nil {
		return err
	} else if exists {
		return market.New(market.CodeMintAlreadyInitialized, "asset for mint %s exists", mint)
	}

	// A mint prepared by the creator beforehand is accepted while it is
	// still empty; otherwise the mint is created here and must sign.
	m, err := tx.Mint(mint)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		if err := tx.CreateMint(mint, creator, creator, 0); err != nil {
			return hostErr(err, "mint")
		}
	case err != nil:
		return hostErr(err, "mint")
	case m.Supply != 0 || m.Decimals != 0 || !m.Authority.Equals(creator):
		return market.New(market.CodeMintAlreadyInitialized, "mint %s has supply %d", mint, m.Supply)
	}

	if _, err := tokenAccount(tx, creatorToken, mint, creator, "creator token", true); err != nil {
		return err
	}
	r.logf("Creating prompt: mint=%s, creator=%s, metadata_uri=%s, royalty_bps=%d", mint, creator, args.MetadataURI, args.RoyaltyBps)
	if err := tx.MintTo(mint, creatorToken, creator, 1); err != nil {
		return hostErr(err, "mint_to")
	}
	r.logf("mint_to succeeded, creating metadata %s", metadataAddr)
	err = tx.CreateMetadata(metadataAddr, creator, ledger.TokenMetadata{
		UpdateAuthority:      creator,
		Mint:                 mint,
		Name:                 market.AssetTokenName,
		Symbol:               market.AssetTokenSymbol,
		URI:                  args.MetadataURI,
		SellerFeeBasisPoints: uint16(args.RoyaltyBps),
		Creators:             []ledger.Creator{{Address: creator, Verified: true, Share: 100}},
		IsMutable:            true,
	})
	if err != nil {
		return hostErr(err, "metadata")
	}

	asset := &market.Asset{Mint: mint, Creator: creator, MetadataURI: args.MetadataURI, RoyaltyBps: args.RoyaltyBps, Bump: bump}
	data, err := asset.Encode()
	if err != nil {
		return err
	}
	if err := hostErr(tx.CreateRecord(assetAddr, p.ID, data), "asset"); err != nil {
		return err
	}
	return r.emit(market.AssetCreated{Mint: mint, Creator: creator, MetadataURI: args.MetadataURI})
}
