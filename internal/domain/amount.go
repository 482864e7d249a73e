package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the decimals count of the native asset and WETH.
const NativeDecimals = 18

// ParseUnits converts a human amount such as "1.5" into base units.
// Fractions finer than the token's decimals are rejected.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("domain.ParseUnits: %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("domain.ParseUnits: negative amount %q", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("domain.ParseUnits: %q has more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// MustParseUnits is ParseUnits for constants and tests.
func MustParseUnits(s string, decimals int32) *big.Int {
	v, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// MulBps returns floor(v * bps / 10_000).
func MulBps(v *big.Int, bps uint64) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(10_000))
}

// AddBps returns v increased by bps, rounded up so slippage bounds never
// come out below the quoted amount.
func AddBps(v *big.Int, bps uint64) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	num := new(big.Int).Mul(v, new(big.Int).SetUint64(10_000+bps))
	den := big.NewInt(10_000)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
