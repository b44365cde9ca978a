// services/accrual.go
package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AccrualPolicy converts a purchase value into points. Results are whole
// points, rounded down.
type AccrualPolicy interface {
	Name() string
	Points(value decimal.Decimal) int64
}

var (
	ten   = decimal.NewFromInt(10)
	seven = decimal.NewFromInt(7)
)

// FlatPerTen earns one point per 10 currency units.
type FlatPerTen struct{}

func (FlatPerTen) Name() string { return "per_ten" }

func (FlatPerTen) Points(value decimal.Decimal) int64 {
	if !value.IsPositive() {
		return 0
	}
	return value.Div(ten).Floor().IntPart()
}

// TenPerSeven earns ten points for every R$7,00.
type TenPerSeven struct{}

func (TenPerSeven) Name() string { return "ten_per_seven" }

func (TenPerSeven) Points(value decimal.Decimal) int64 {
	if !value.IsPositive() {
		return 0
	}
	// multiply first so 7.00 yields exactly 10
	return value.Mul(ten).Div(seven).Floor().IntPart()
}

// ParseAccrualPolicy maps a POINTS_ACCRUAL_POLICY value to a policy.
func ParseAccrualPolicy(name string) (AccrualPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "per_ten":
		return FlatPerTen{}, nil
	case "ten_per_seven":
		return TenPerSeven{}, nil
	default:
		return nil, fmt.Errorf("unknown points accrual policy %q", name)
	}
}
