package program

import (
	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
	"promphub.io/market/pda"
	"promphub.io/market/txn"
)

// Instruction names as hashed into discriminators.
const (
	InstructionInitialize  = "initialize"
	InstructionCloseConfig = "close_config"
	InstructionCreateAsset = "create_prompt"
	InstructionList        = "list_prompt"
	InstructionDelist      = "delist_prompt"
	InstructionBuy         = "buy_prompt"
)

type InitializeArgs struct {
	FeeBps uint64
}

type CreateAssetArgs struct {
	MetadataURI string
	RoyaltyBps  uint64
}

type ListArgs struct {
	Price uint64
}

func newInstruction(programID solana.PublicKey, name string, args any, metas ...txn.AccountMeta) (txn.Instruction, error) {
	data, err := codec.EncodeInstruction(name, args)
	if err != nil {
		return txn.Instruction{}, err
	}
	return txn.Instruction{ProgramID: programID, Accounts: metas, Data: data}, nil
}

// NewInitialize builds initialize(fee_bps).
//
// Accounts: config (w), admin (w, s), system program.
func NewInitialize(programID, admin solana.PublicKey, feeBps uint64) (txn.Instruction, error) {
	config, _, err := pda.Config(programID)
	if err != nil {
		return txn.Instruction{}, err
	}
	return newInstruction(programID, InstructionInitialize, InitializeArgs{FeeBps: feeBps},
		txn.Meta(config, true, false),
		txn.Meta(admin, true, true),
		txn.Meta(solana.SystemProgramID, false, false),
	)
}

// NewCloseConfig builds close_config().
//
// Accounts: config (w), admin (w, s), system program.
func NewCloseConfig(programID, admin solana.PublicKey) (txn.Instruction, error) {
	config, _, err := pda.Config(programID)
	if err != nil {
		return txn.Instruction{}, err
	}
	return newInstruction(programID, InstructionCloseConfig, nil,
		txn.Meta(config, true, false),
		txn.Meta(admin, true, true),
		txn.Meta(solana.SystemProgramID, false, false),
	)
}

// NewCreateAsset builds create_prompt(metadata_uri, royalty_bps). mint is a
// fresh key that signs the transaction.
//
// Accounts: asset (w), mint (w, s), creator token (w), creator (w, s),
// token metadata (w), system, token, associated token and token metadata
// programs.
func NewCreateAsset(programID, creator, mint solana.PublicKey, metadataURI string, royaltyBps uint64) (txn.Instruction, error) {
	asset, _, err := pda.Asset(programID, mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	creatorToken, err := pda.TokenAccount(creator, mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	metadata, err := pda.Metadata(mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	return newInstruction(programID, InstructionCreateAsset, CreateAssetArgs{MetadataURI: metadataURI, RoyaltyBps: royaltyBps},
		txn.Meta(asset, true, false),
		txn.Meta(mint, true, true),
		txn.Meta(creatorToken, true, false),
		txn.Meta(creator, true, true),
		txn.Meta(metadata, true, false),
		txn.Meta(solana.SystemProgramID, false, false),
		txn.Meta(solana.TokenProgramID, false, false),
		txn.Meta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		txn.Meta(solana.TokenMetadataProgramID, false, false),
	)
}

// NewList builds list_prompt(price).
//
// Accounts: listing (w), asset, mint, seller (w, s), seller token (w),
// escrow token (w), escrow authority, system, token and associated token
// programs.
func NewList(programID, seller, mint solana.PublicKey, price uint64) (txn.Instruction, error) {
	m, err := pda.ForMint(programID, mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	sellerToken, err := pda.TokenAccount(seller, mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	return newInstruction(programID, InstructionList, ListArgs{Price: price},
		txn.Meta(m.Listing, true, false),
		txn.Meta(m.Asset, false, false),
		txn.Meta(mint, false, false),
		txn.Meta(seller, true, true),
		txn.Meta(sellerToken, true, false),
		txn.Meta(m.EscrowToken, true, false),
		txn.Meta(m.EscrowAuthority, false, false),
		txn.Meta(solana.SystemProgramID, false, false),
		txn.Meta(solana.TokenProgramID, false, false),
		txn.Meta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	)
}

// NewDelist builds delist_prompt().
//
// Accounts: listing (w), asset, mint, seller (w, s), seller token (w),
// escrow token (w), escrow authority, system and token programs.
func NewDelist(programID, seller, mint solana.PublicKey) (txn.Instruction, error) {
	m, err := pda.ForMint(programID, mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	sellerToken, err := pda.TokenAccount(seller, mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	return newInstruction(programID, InstructionDelist, nil,
		txn.Meta(m.Listing, true, false),
		txn.Meta(m.Asset, false, false),
		txn.Meta(mint, false, false),
		txn.Meta(seller, true, true),
		txn.Meta(sellerToken, true, false),
		txn.Meta(m.EscrowToken, true, false),
		txn.Meta(m.EscrowAuthority, false, false),
		txn.Meta(solana.SystemProgramID, false, false),
		txn.Meta(solana.TokenProgramID, false, false),
	)
}

// BuyAccounts names the parties of a purchase. Seller, Admin and Creator
// must match the listing, config and asset records.
type BuyAccounts struct {
	Buyer   solana.PublicKey
	Seller  solana.PublicKey
	Admin   solana.PublicKey
	Creator solana.PublicKey
	Mint    solana.PublicKey
}

// NewBuy builds buy_prompt().
//
// Accounts: listing (w), asset, config, mint, buyer (w, s), seller (w),
// admin (w), creator (w), buyer token (w), escrow token (w), escrow
// authority, system, token and associated token programs.
func NewBuy(programID solana.PublicKey, a BuyAccounts) (txn.Instruction, error) {
	m, err := pda.ForMint(programID, a.Mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	config, _, err := pda.Config(programID)
	if err != nil {
		return txn.Instruction{}, err
	}
	buyerToken, err := pda.TokenAccount(a.Buyer, a.Mint)
	if err != nil {
		return txn.Instruction{}, err
	}
	return newInstruction(programID, InstructionBuy, nil,
		txn.Meta(m.Listing, true, false),
		txn.Meta(m.Asset, false, false),
		txn.Meta(config, false, false),
		txn.Meta(a.Mint, false, false),
		txn.Meta(a.Buyer, true, true),
		txn.Meta(a.Seller, true, false),
		txn.Meta(a.Admin, true, false),
		txn.Meta(a.Creator, true, false),
		txn.Meta(buyerToken, true, false),
		txn.Meta(m.EscrowToken, true, false),
		txn.Meta(m.EscrowAuthority, false, false),
		txn.Meta(solana.SystemProgramID, false, false),
		txn.Meta(solana.TokenProgramID, false, false),
		txn.Meta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	)
}
