package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccrualPolicies(t *testing.T) {
	tests := []struct {
		policy AccrualPolicy
		value  string
		want   int64
	}{
		{FlatPerTen{}, "0", 0},
		{FlatPerTen{}, "9.99", 0},
		{FlatPerTen{}, "10", 1},
		{FlatPerTen{}, "259.90", 25},
		{FlatPerTen{}, "-50", 0},
		{TenPerSeven{}, "6.99", 9},
		{TenPerSeven{}, "0.69", 0},
		{TenPerSeven{}, "7.00", 10},
		{TenPerSeven{}, "13.99", 19},
		{TenPerSeven{}, "14", 20},
		{TenPerSeven{}, "100", 142},
	}
	for _, tt := range tests {
		got := tt.policy.Points(decimal.RequireFromString(tt.value))
		assert.Equal(t, tt.want, got, "%s(%s)", tt.policy.Name(), tt.value)
	}
}

func TestParseAccrualPolicy(t *testing.T) {
	p, err := ParseAccrualPolicy("")
	require.NoError(t, err)
	assert.Equal(t, "per_ten", p.Name())

	p, err = ParseAccrualPolicy(" TEN_PER_SEVEN ")
	require.NoError(t, err)
	assert.Equal(t, "ten_per_seven", p.Name())

	_, err = ParseAccrualPolicy("double")
	assert.Error(t, err)
}
