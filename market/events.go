package market

import (
	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
)

// Event topics.
const (
	TopicAssetCreated  = "market.prompt.created"
	TopicAssetListed   = "market.prompt.listed"
	TopicAssetSold     = "market.prompt.sold"
	TopicAssetDelisted = "market.prompt.delisted"
	TopicConfig        = "market.config"
)

// Event is emitted by a successful operation and published after commit.
type Event interface {
	// EventName is the name hashed into the binary discriminator.
	EventName() string
	Topic() string
}

type AssetCreated struct {
	Mint        solana.PublicKey `json:"mint"`
	Creator     solana.PublicKey `json:"creator"`
	MetadataURI string           `json:"metadata_uri"`
}

type AssetListed struct {
	Mint   solana.PublicKey `json:"mint"`
	Seller solana.PublicKey `json:"seller"`
	Price  uint64           `json:"price"`
}

// AssetSold carries the split alongside the fields of the binary event; the
// split is not part of the binary form.
type AssetSold struct {
	Mint   solana.PublicKey `json:"mint"`
	Buyer  solana.PublicKey `json:"buyer"`
	Seller solana.PublicKey `json:"seller"`
	Price  uint64           `json:"price"`
	Split  Split            `json:"split" bin:"-"`
}

type AssetDelisted struct {
	Mint solana.PublicKey `json:"mint"`
}

// ConfigChanged reports initialize and close_config. It has no binary form
// in the deployed program and is only published on the event bus.
type ConfigChanged struct {
	Admin  solana.PublicKey `json:"admin"`
	FeeBps uint64           `json:"fee_bps"`
	Closed bool             `json:"closed"`
}

func (AssetCreated) EventName() string  { return "PromptCreated" }
func (AssetListed) EventName() string   { return "PromptListed" }
func (AssetSold) EventName() string     { return "PromptSold" }
func (AssetDelisted) EventName() string { return "PromptDelisted" }
func (ConfigChanged) EventName() string { return "ConfigChanged" }

func (AssetCreated) Topic() string  { return TopicAssetCreated }
func (AssetListed) Topic() string   { return TopicAssetListed }
func (AssetSold) Topic() string     { return TopicAssetSold }
func (AssetDelisted) Topic() string { return TopicAssetDelisted }
func (ConfigChanged) Topic() string { return TopicConfig }

// EncodeEvent returns the binary form of e: the event discriminator followed
// by its borsh fields. ConfigChanged has no binary form and encodes to nil.
func EncodeEvent(e Event) ([]byte, error) {
	if _, ok := e.(ConfigChanged); ok {
		return nil, nil
	}
	return codec.EncodeEvent(e.EventName(), e)
}
