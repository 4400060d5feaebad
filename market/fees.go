package market

import (
	"errors"

	"promphub.io/market/safemath"
)

// Split is the distribution of one sale price.
//
// PlatformFee and Royalty are floored; SellerAmount takes the remainder, so
// rounding loss always goes to the seller and the three parts sum to Price.
type Split struct {
	Price        uint64 `json:"price"`
	PlatformFee  uint64 `json:"platform_fee"`
	Royalty      uint64 `json:"royalty"`
	SellerAmount uint64 `json:"seller_amount"`
}

// SplitPrice computes the sale distribution for price.
//
// A fee and royalty whose combined basis points exceed MaxBps fail with
// FeeOverflow instead of leaving the seller with a negative share. A product
// that does not fit in 64 bits fails with ArithmeticOverflow.
func SplitPrice(price, feeBps, royaltyBps uint64) (Split, error) {
	if feeBps > MaxBps {
		return Split{}, New(CodeInvalidFee, "fee_bps %d exceeds %d", feeBps, MaxBps)
	}
	if royaltyBps > MaxBps {
		return Split{}, New(CodeInvalidRoyalty, "royalty_bps %d exceeds %d", royaltyBps, MaxBps)
	}
	if feeBps+royaltyBps > MaxBps {
		return Split{}, New(CodeFeeOverflow, "fee_bps %d + royalty_bps %d exceeds %d", feeBps, royaltyBps, MaxBps)
	}

	fee, err := safemath.MulDiv(price, feeBps, MaxBps)
	if err != nil {
		return Split{}, arithmetic(err, "platform fee")
	}
	royalty, err := safemath.MulDiv(price, royaltyBps, MaxBps)
	if err != nil {
		return Split{}, arithmetic(err, "royalty")
	}
	rest, err := safemath.Sub(price, fee)
	if err != nil {
		return Split{}, arithmetic(err, "seller amount")
	}
	seller, err := safemath.Sub(rest, royalty)
	if err != nil {
		return Split{}, New(CodeFeeOverflow, "royalty %d exceeds remaining %d", royalty, rest)
	}
	if total, err := safemath.Sum(fee, royalty, seller); err != nil || total != price {
		return Split{}, New(CodeInternal, "split %d+%d+%d does not conserve price %d", fee, royalty, seller, price)
	}
	return Split{Price: price, PlatformFee: fee, Royalty: royalty, SellerAmount: seller}, nil
}

func arithmetic(err error, what string) error {
	if errors.Is(err, safemath.ErrOverflow) || errors.Is(err, safemath.ErrUnderflow) {
		return Wrap(CodeArithmeticOverflow, err, "%s", what)
	}
	return Wrap(CodeInternal, err, "%s", what)
}
