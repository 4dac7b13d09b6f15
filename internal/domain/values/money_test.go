package values

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1000").Equal(FromMinorUnits(100000)))
	assert.True(t, decimal.RequireFromString("29.30").Equal(FromMinorUnits(2930)))
	assert.True(t, decimal.Zero.Equal(FromMinorUnits(0)))
}

func TestRoundCents(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"29.3", "29.3"},
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"-1.005", "-1.01"},
		{"485.35", "485.35"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundCents(decimal.RequireFromString(tt.in))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(97070), ToMinorUnits(decimal.RequireFromString("970.70")))
	assert.Equal(t, int64(101), ToMinorUnits(decimal.RequireFromString("1.005")))
}

func TestPercent(t *testing.T) {
	assert.True(t, decimal.RequireFromString("0.7").Equal(Percent(decimal.NewFromInt(70))))
	assert.True(t, decimal.RequireFromString("0.125").Equal(Percent(decimal.RequireFromString("12.5"))))
}

func TestEmailsMatch(t *testing.T) {
	assert.True(t, EmailsMatch("Jane@Example.com", "jane@example.com"))
	assert.True(t, EmailsMatch("  jane@example.com ", "JANE@EXAMPLE.COM"))
	assert.False(t, EmailsMatch("", ""))
	assert.False(t, EmailsMatch("jane@example.com", "john@example.com"))
	assert.Equal(t, "jane@example.com", NormalizeEmail(" Jane@Example.COM "))
}
