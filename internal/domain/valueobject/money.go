package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code
type Currency string

// DefaultCurrency is used when a rule set does not name one
const DefaultCurrency Currency = "MXN"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

// zero-decimal currencies; everything else uses two minor digits
var currencyExponents = map[Currency]int32{
	"JPY": 0,
	"CLP": 0,
	"KRW": 0,
	"PYG": 0,
}

// ParseCurrency normalizes and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency code: %q", code)
	}
	return c, nil
}

// IsValid reports whether the code has the ISO 4217 shape
func (c Currency) IsValid() bool {
	return currencyPattern.MatchString(string(c))
}

// Exponent returns the number of minor-unit digits for the currency
func (c Currency) Exponent() int32 {
	if exp, ok := currencyExponents[c]; ok {
		return exp
	}
	return 2
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// ErrCurrencyMismatch is returned when combining amounts of different currencies
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is an immutable monetary amount tagged with its currency.
// All operations return new Money values.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates Money with the given amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("invalid currency code: %q", currency)
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustMoney is NewMoney for values known to be valid (rule tables, tests)
func MustMoney(amount string, currency Currency) Money {
	m, err := NewMoneyFromString(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMoneyFromString parses a decimal string such as "800.00"
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// NewMoneyFromMinor creates Money from integer minor units (cents)
func NewMoneyFromMinor(minor int64, currency Currency) (Money, error) {
	return NewMoney(decimal.New(minor, -currency.Exponent()), currency)
}

// Zero returns a zero amount in the given currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative returns true if the amount is below zero
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add returns the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: cannot add %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns m - other
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrCurrencyMismatch, other.currency, m.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Multiply returns m scaled by factor, without rounding
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// RoundToCurrency rounds half-up to the currency's minor unit
func (m Money) RoundToCurrency() Money {
	return Money{amount: m.amount.Round(m.currency.Exponent()), currency: m.currency}
}

// HasCurrencyPrecision reports whether the amount fits the currency's minor unit exactly
func (m Money) HasCurrencyPrecision() bool {
	return m.amount.Equal(m.amount.Round(m.currency.Exponent()))
}

// FitsMinorUnits reports whether MinorUnits can represent the amount exactly
func (m Money) FitsMinorUnits() bool {
	minor := m.amount.Shift(m.currency.Exponent()).Round(0)
	return minor.LessThanOrEqual(maxMinorUnits) && minor.GreaterThanOrEqual(minMinorUnits)
}

// MinorUnits returns the amount in integer minor units, rounding half-up.
// The result wraps when FitsMinorUnits is false.
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(m.currency.Exponent()).Round(0).IntPart()
}

// Equals returns true if amount and currency are equal
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String formats the amount with the currency's minor digits
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.currency.Exponent()), m.currency)
}

// StringFixed returns the amount with the currency's minor digits
func (m Money) StringFixed() string {
	return m.amount.StringFixed(m.currency.Exponent())
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.StringFixed(),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewMoneyFromString(v.Amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Sum adds a list of amounts; an empty list yields zero in the given currency
func Sum(currency Currency, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		total, err = total.Add(a)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
