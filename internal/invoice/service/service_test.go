package service

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/salonkit/salonkit/internal/clock"
	"github.com/salonkit/salonkit/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		total   string
		percent int64
		fee     string
		net     string
	}{
		{"100.00", 5, "5", "95"},
		{"40.00", 5, "2", "38"},
		{"33.33", 5, "1.67", "31.66"},
		{"0.01", 5, "0", "0.01"},
		{"79.99", 5, "4", "75.99"},
	}

	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			fee, net := SplitAmount(total, tt.percent)
			assert.True(t, fee.Equal(decimal.RequireFromString(tt.fee)), "fee %s", fee)
			assert.True(t, net.Equal(decimal.RequireFromString(tt.net)), "net %s", net)
			assert.True(t, fee.Add(net).Equal(total), "fee+net must equal total, got %s", fee.Add(net))
		})
	}
}

func TestNextNumberUnique(t *testing.T) {
	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	svc := &Service{
		cfg:   config.Config{},
		log:   zap.NewNop(),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		number := svc.nextNumber()
		assert.True(t, strings.HasPrefix(number, "INV-"), "number %s", number)
		assert.False(t, seen[number], "duplicate invoice number %s", number)
		seen[number] = true
	}
}
