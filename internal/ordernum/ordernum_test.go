package ordernum

import (
	"testing"
	"time"

	"github.com/soletrade/marketplace/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		side      models.Side
		matchedAt time.Time
		orderID   int
		want      string
	}{
		{
			name:      "BidLeg",
			side:      models.SideBid,
			matchedAt: time.Date(2024, 3, 7, 15, 30, 0, 0, time.UTC),
			orderID:   42,
			want:      "B24030700042",
		},
		{
			name:      "AskLeg",
			side:      models.SideAsk,
			matchedAt: time.Date(2024, 3, 7, 15, 30, 0, 0, time.UTC),
			orderID:   42,
			want:      "A24030700042",
		},
		{
			name:      "SingleDigitDateParts",
			side:      models.SideAsk,
			matchedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			orderID:   7,
			want:      "A25010200007",
		},
		{
			name:      "IdWiderThanPadding",
			side:      models.SideBid,
			matchedAt: time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC),
			orderID:   123456,
			want:      "B241231123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Generate(tt.side, tt.matchedAt, tt.orderID))
		})
	}
}
