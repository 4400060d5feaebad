package program

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/pda"
)

// escrowAccounts are the accounts shared by list, delist and buy.
type escrowAccounts struct {
	listing     solana.PublicKey
	listingBump uint8
	asset       solana.PublicKey
	mint        solana.PublicKey
	escrowToken solana.PublicKey
	authority   solana.PublicKey
	escrowBump  uint8
}

func (p *Program) escrowFor(a accounts, listing, asset, mint, escrowToken, authority int) (escrowAccounts, error) {
	var e escrowAccounts
	var err error
	if e.listing, err = a.writable(listing, "listing"); err != nil {
		return e, err
	}
	if e.escrowToken, err = a.writable(escrowToken, "escrow token"); err != nil {
		return e, err
	}
	e.asset, e.mint, e.authority = a.key(asset), a.key(mint), a.key(authority)

	if e.listingBump, err = p.derived(e.listing, "listing", pda.SeedListing, e.mint[:]); err != nil {
		return e, err
	}
	if _, err = p.derived(e.asset, "asset", pda.SeedAsset, e.mint[:]); err != nil {
		return e, err
	}
	if e.escrowBump, err = p.derived(e.authority, "escrow authority", pda.SeedEscrow, e.mint[:]); err != nil {
		return e, err
	}
	want, err := pda.TokenAccount(e.authority, e.mint)
	if err != nil {
		return e, market.Wrap(market.CodeBumpExhausted, err, "escrow token")
	}
	if !want.Equals(e.escrowToken) {
		return e, market.New(market.CodeConstraintSeeds, "escrow token is %s, want %s", e.escrowToken, want)
	}
	return e, nil
}

// releaseEscrow moves the escrowed unit to dest, signing as the escrow
// authority.
func (p *Program) releaseEscrow(tx *ledger.Tx, e escrowAccounts, dest solana.PublicKey) error {
	if _, err := tx.SignAsProgram(p.ID, pda.Seeds(e.escrowBump, pda.SeedEscrow, e.mint[:])); err != nil {
		return market.Wrap(market.CodeBumpExhausted, err, "escrow authority")
	}
	if _, err := tokenAccount(tx, e.escrowToken, e.mint, e.authority, "escrow token", false); err != nil {
		return err
	}
	return hostErr(tx.TransferTokens(e.escrowToken, dest, e.authority, 1), "escrow transfer")
}

func (p *Program) saveListing(tx *ledger.Tx, addr solana.PublicKey, l *market.Listing) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	return p.save(tx, addr, data)
}

func (p *Program) list(tx *ledger.Tx, a accounts, raw []byte, r *Result) error {
	var args ListArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	if err := a.need(10); err != nil {
		return err
	}
	e, err := p.escrowFor(a, 0, 1, 2, 5, 6)
	if err != nil {
		return err
	}
	seller, err := a.signer(3, "seller")
	if err != nil {
		return err
	}
	sellerToken, err := a.writable(4, "seller token")
	if err != nil {
		return err
	}
	for i, id := range []solana.PublicKey{solana.SystemProgramID, solana.TokenProgramID, solana.SPLAssociatedTokenAccountProgramID} {
		if err := a.program(7+i, id); err != nil {
			return err
		}
	}

	if args.Price == 0 {
		return market.New(market.CodeInvalidPrice, "price must be positive")
	}
	asset, err := p.loadAsset(tx, e.asset)
	if err != nil {
		return err
	}
	if err := hasOne(e.mint, asset.Mint, "mint"); err != nil {
		return err
	}

	if data, exists, err := p.record(tx, e.listing, "listing"); err != nil {
		return err
	} else if exists {
		prev, err := market.DecodeListing(data)
		if err != nil {
			return err
		}
		if prev.IsActive {
			return market.New(market.CodeListingActive, "mint %s is listed by %s", e.mint, prev.Seller)
		}
	}

	src, err := tokenAccount(tx, sellerToken, e.mint, seller, "seller token", false)
	if errors.Is(err, market.ErrAccountNotInitialized) {
		return market.Wrap(market.CodeInsufficientBalance, err, "seller holds no %s", e.mint)
	}
	if err != nil {
		return err
	}
	if src.Amount < 1 {
		return market.New(market.CodeInsufficientBalance, "seller token %s is empty", sellerToken)
	}
	if _, err := tokenAccount(tx, e.escrowToken, e.mint, e.authority, "escrow token", true); err != nil {
		return err
	}

	listing := &market.Listing{Mint: e.mint, Seller: seller, Price: args.Price, IsActive: true, Bump: e.listingBump}
	r.logf("Listing prompt: mint=%s, seller=%s, price=%d, bump=%d", listing.Mint, listing.Seller, listing.Price, listing.Bump)
	if err := hostErr(tx.TransferTokens(sellerToken, e.escrowToken, seller, 1), "escrow deposit"); err != nil {
		return err
	}
	if err := p.saveListing(tx, e.listing, listing); err != nil {
		return err
	}
	return r.emit(market.AssetListed{Mint: e.mint, Seller: seller, Price: args.Price})
}

func (p *Program) delist(tx *ledger.Tx, a accounts, raw []byte, r *Result) error {
	if err := decodeArgs(raw, &struct{}{}); err != nil {
		return err
	}
	if err := a.need(9); err != nil {
		return err
	}
	e, err := p.escrowFor(a, 0, 1, 2, 5, 6)
	if err != nil {
		return err
	}
	seller, err := a.signer(3, "seller")
	if err != nil {
		return err
	}
	sellerToken, err := a.writable(4, "seller token")
	if err != nil {
		return err
	}
	for i, id := range []solana.PublicKey{solana.SystemProgramID, solana.TokenProgramID} {
		if err := a.program(7+i, id); err != nil {
			return err
		}
	}

	listing, err := p.loadListing(tx, e.listing)
	if err != nil {
		return err
	}
	if err := hasOne(e.mint, listing.Mint, "mint"); err != nil {
		return err
	}
	if !listing.IsActive {
		return market.New(market.CodeNotActive, "mint %s", e.mint)
	}
	if !listing.Seller.Equals(seller) {
		return market.New(market.CodeUnauthorized, "%s is not the seller of %s", seller, e.mint)
	}
	if _, err := tokenAccount(tx, sellerToken, e.mint, seller, "seller token", true); err != nil {
		return err
	}

	r.logf("Delisting prompt: mint=%s, seller=%s", listing.Mint, listing.Seller)
	if err := p.releaseEscrow(tx, e, sellerToken); err != nil {
		return err
	}
	listing.IsActive = false
	if err := p.saveListing(tx, e.listing, listing); err != nil {
		return err
	}
	return r.emit(market.AssetDelisted{Mint: e.mint})
}

func (p *Program) buy(tx *ledger.Tx, a accounts, raw []byte, r *Result) error {
	if err := decodeArgs(raw, &struct{}{}); err != nil {
		return err
	}
	if err := a.need(14); err != nil {
		return err
	}
	e, err := p.escrowFor(a, 0, 1, 3, 9, 10)
	if err != nil {
		return err
	}
	configAddr := a.key(2)
	if _, err := p.derived(configAddr, "config", pda.SeedConfig); err != nil {
		return err
	}
	buyer, err := a.signer(4, "buyer")
	if err != nil {
		return err
	}
	seller, err := a.writable(5, "seller")
	if err != nil {
		return err
	}
	admin, err := a.writable(6, "admin")
	if err != nil {
		return err
	}
	creator, err := a.writable(7, "creator")
	if err != nil {
		return err
	}
	buyerToken, err := a.writable(8, "buyer token")
	if err != nil {
		return err
	}
	for i, id := range []solana.PublicKey{solana.SystemProgramID, solana.TokenProgramID, solana.SPLAssociatedTokenAccountProgramID} {
		if err := a.program(11+i, id); err != nil {
			return err
		}
	}

	listing, err := p.loadListing(tx, e.listing)
	if err != nil {
		return err
	}
	if err := hasOne(e.mint, listing.Mint, "mint"); err != nil {
		return err
	}
	if !listing.IsActive {
		return market.New(market.CodeNotActive, "mint %s", e.mint)
	}
	if err := hasOne(seller, listing.Seller, "seller"); err != nil {
		return err
	}
	asset, err := p.loadAsset(tx, e.asset)
	if err != nil {
		return err
	}
	if err := hasOne(e.mint, asset.Mint, "mint"); err != nil {
		return err
	}
	if err := hasOne(creator, asset.Creator, "creator"); err != nil {
		return err
	}
	cfg, err := p.loadConfig(tx, configAddr)
	if err != nil {
		return err
	}
	if err := hasOne(admin, cfg.Admin, "admin"); err != nil {
		return err
	}
	if buyer.Equals(listing.Seller) && !p.Policy.AllowSelfPurchase {
		return market.New(market.CodeSelfPurchase, "%s", buyer)
	}

	split, err := market.SplitPrice(listing.Price, cfg.FeeBps, asset.RoyaltyBps)
	if err != nil {
		return err
	}
	balance, err := tx.Lamports(buyer)
	if err != nil {
		return hostErr(err, "buyer")
	}
	if balance < listing.Price {
		return market.New(market.CodeInsufficientFunds, "buyer has %d, price is %d", balance, listing.Price)
	}
	r.logf("Platform fee: %d", split.PlatformFee)
	r.logf("Royalty: %d", split.Royalty)
	r.logf("Seller amount: %d", split.SellerAmount)

	if _, err := tokenAccount(tx, buyerToken, e.mint, buyer, "buyer token", true); err != nil {
		return err
	}
	for _, leg := range []struct {
		to     solana.PublicKey
		amount uint64
		what   string
	}{
		{seller, split.SellerAmount, "seller payment"},
		{admin, split.PlatformFee, "platform fee"},
		{creator, split.Royalty, "royalty"},
	} {
		if err := hostErr(tx.Transfer(buyer, leg.to, leg.amount), leg.what); err != nil {
			return err
		}
	}
	if err := p.releaseEscrow(tx, e, buyerToken); err != nil {
		return err
	}

	listing.IsActive = false
	if err := p.saveListing(tx, e.listing, listing); err != nil {
		return err
	}
	return r.emit(market.AssetSold{Mint: e.mint, Buyer: buyer, Seller: listing.Seller, Price: listing.Price, Split: split})
}
