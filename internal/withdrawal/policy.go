package withdrawal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Policy bounds a single withdrawal request. A zero MaxAmount means no upper
// bound; an empty AllowedDays means every day.
type Policy struct {
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	FixedFee    decimal.Decimal
	FeeRate     decimal.Decimal
	AllowedDays []time.Weekday
}

func DefaultPolicy() Policy {
	return Policy{
		MinAmount: decimal.NewFromInt(1),
		MaxAmount: decimal.NewFromInt(5000),
	}
}

// Fee is FixedFee plus FeeRate of amount, rounded to cents.
func (p Policy) Fee(amount decimal.Decimal) decimal.Decimal {
	return p.FixedFee.Add(amount.Mul(p.FeeRate)).Round(2)
}

func (p Policy) InRange(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinAmount) {
		return false
	}
	return p.MaxAmount.IsZero() || !amount.GreaterThan(p.MaxAmount)
}

func (p Policy) Open(t time.Time) bool {
	if len(p.AllowedDays) == 0 {
		return true
	}
	for _, d := range p.AllowedDays {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

// ParseDays reads a comma-separated list of weekday numbers, 0 = Sunday.
func ParseDays(s string) ([]time.Weekday, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday %q: want 0..6", part)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}
