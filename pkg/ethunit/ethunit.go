// Package ethunit converts between wei and decimal ether strings without
// going through floating point.
package ethunit

import (
	"errors"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimal places between wei and ether.
const EtherDecimals = 18

var (
	// ErrInvalidAmount is returned for anything that is not a plain
	// non-negative decimal number with at most 18 fractional digits.
	ErrInvalidAmount = errors.New("invalid ether amount")

	amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// IsAmount reports whether s is a plain non-negative decimal string
func IsAmount(s string) bool {
	return amountPattern.MatchString(s)
}

// ParseEther converts a decimal ether string ("0.5") to wei.
func ParseEther(amount string) (*big.Int, error) {
	if !IsAmount(amount) {
		return nil, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	wei := d.Shift(EtherDecimals)
	if !wei.IsInteger() {
		return nil, ErrInvalidAmount
	}
	return wei.BigInt(), nil
}

// FormatEther renders a wei amount as a decimal ether string. Whole values
// keep one fractional digit ("1.0") so the output always reads as ether.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}
	s := decimal.NewFromBigInt(wei, -EtherDecimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatWeiString is FormatEther for wei already held as a base-10 string.
func FormatWeiString(wei string) (string, error) {
	v, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return "", ErrInvalidAmount
	}
	return FormatEther(v), nil
}
