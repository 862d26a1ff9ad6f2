// Package chain provides value types and call plumbing shared by the
// contract and provider layers: monetary amounts, rate limiting, and
// bounded retries.
package chain

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Decimals is the number of fractional digits of the ledger's base unit (wei).
const Decimals = 18

// MaxBits is the width of the ledger's unsigned integer type (uint256).
const MaxBits = 256

// amountPattern accepts plain non-negative decimals: "1", "1.", ".5", "0.25".
// Signs, exponents, separators and whitespace are rejected.
var amountPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// Amount is a non-negative monetary value held in base units.
// The zero value is a valid zero amount.
type Amount struct {
	wei *big.Int
}

// ParseAmount converts a user-supplied decimal string into an Amount.
// Inputs with more significant fractional digits than Decimals are rejected
// rather than truncated, so parsing never loses value.
func ParseAmount(s string) (Amount, error) {
	if !amountPattern.MatchString(s) {
		return Amount{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{
			"input": s,
		})
	}

	normalized := s
	if strings.HasPrefix(normalized, ".") {
		normalized = "0" + normalized
	}
	normalized = strings.TrimSuffix(normalized, ".")

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return Amount{}, cadenaerr.WithCause(cadenaerr.ErrInvalidAmount, err)
	}

	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return Amount{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{
			"input":  s,
			"reason": "more than 18 decimal places",
		})
	}

	wei := scaled.BigInt()
	if wei.BitLen() > MaxBits {
		return Amount{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{
			"input":  s,
			"reason": "exceeds uint256",
		})
	}

	return Amount{wei: wei}, nil
}

// MustParseAmount is ParseAmount for constants and tests. It panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBaseUnits wraps a base-unit integer. Negative or nil values
// yield the zero amount.
func AmountFromBaseUnits(v *big.Int) Amount {
	if v == nil || v.Sign() <= 0 {
		return Amount{}
	}
	return Amount{wei: new(big.Int).Set(v)}
}

// BaseUnits returns a copy of the amount in base units.
func (a Amount) BaseUnits() *big.Int {
	if a.wei == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.wei)
}

// InRange reports whether the amount fits the ledger's uint256.
func (a Amount) InRange() bool {
	return a.wei == nil || a.wei.BitLen() <= MaxBits
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.wei == nil || a.wei.Sign() == 0
}

// Equal reports whether two amounts hold the same value.
func (a Amount) Equal(b Amount) bool {
	return a.BaseUnits().Cmp(b.BaseUnits()) == 0
}

// String formats the amount in display units with trailing zeros removed.
// For example, 1500000000000000000 base units formats as "1.5".
func (a Amount) String() string {
	return decimal.NewFromBigInt(a.BaseUnits(), -Decimals).String()
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
