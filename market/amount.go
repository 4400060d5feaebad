package market

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	LamportsPerSOL = 1_000_000_000
	solDecimals    = 9
)

// FormatSOL renders lamports as a SOL amount without trailing zeros.
func FormatSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals).String()
}

// ParseSOL converts a SOL amount such as "1.25" to lamports.
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse sol amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse sol amount %q: negative", s)
	}
	l := d.Shift(solDecimals)
	if !l.Equal(l.Truncate(0)) {
		return 0, fmt.Errorf("parse sol amount %q: finer than one lamport", s)
	}
	bi := l.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("parse sol amount %q: out of range", s)
	}
	return bi.Uint64(), nil
}

// FormatBps renders basis points as a percentage, 250 -> "2.5".
func FormatBps(bps uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(bps), -2).String()
}
