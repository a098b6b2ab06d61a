// Package money provides a currency-safe monetary value type.
//
// Amounts are stored in minor units (kuruş, cents) to keep arithmetic
// exact; conversion to display units happens at the rendering boundary.
package money

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrNegativeAmount   = errors.New("negative_amount")
	ErrNegativeResult   = errors.New("negative_result")
	ErrInvalidFactor    = errors.New("invalid_factor")
)

// Money is an immutable amount in a single currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New builds a Money value. The currency must be a three-letter
// uppercase ISO 4217 code and the amount must not be negative.
func New(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	if !validCurrency(currency) {
		return Money{}, ErrInvalidCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MustNew is New for statically known values; it panics on invalid input.
func MustNew(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) (Money, error) {
	return New(0, currency)
}

func (m Money) IsZero() bool { return m.Amount == 0 }

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Subtract returns m - other. The result must not go below zero.
func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	if other.Amount > m.Amount {
		return Money{}, ErrNegativeResult
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Multiply scales the amount by a non-negative integer factor.
func (m Money) Multiply(factor int64) (Money, error) {
	if factor < 0 {
		return Money{}, ErrInvalidFactor
	}
	return Money{Amount: m.Amount * factor, Currency: m.Currency}, nil
}

// Percent returns rate% of the amount, rounded half away from zero.
func (m Money) Percent(rate float64) (Money, error) {
	if rate < 0 {
		return Money{}, ErrInvalidFactor
	}
	amount := int64(math.Round(float64(m.Amount) * rate / 100))
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// Min returns the smaller of m and other.
func (m Money) Min(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	if other.Amount < m.Amount {
		return other, nil
	}
	return m, nil
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
