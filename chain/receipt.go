package chain

import (
	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
	"promphub.io/market/market"
)

// Receipt describes one executed transaction.
type Receipt struct {
	Signature solana.Signature
	// Slot is the height the transaction will be sealed into.
	Slot   uint64
	Fee    uint64
	Logs   []string
	Events []market.Event `bin:"-"`
}

// Encode is the borsh form carried in consensus results. Events are
// recoverable from the "Program data:" log lines.
func (r *Receipt) Encode() ([]byte, error) {
	return codec.Marshal(*r)
}

func DecodeReceipt(b []byte) (*Receipt, error) {
	var r Receipt
	if err := codec.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
