package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/chipheocrypto/c124/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func vipRoom() *domain.Room {
	return &domain.Room{ID: "room-vip-1", Name: "VIP 1", HourlyRate: decimal.NewFromInt(150000)}
}

func TestCalculateRoomTimeWithRounding(t *testing.T) {
	b, err := Calculate(Input{
		Room:  vipRoom(),
		Start: t0,
		End:   t0.Add(61 * time.Minute),
		Rules: Rules{TimeRoundingMinutes: 5, VATRate: decimal.Zero},
	})
	require.NoError(t, err)
	require.Equal(t, int64(65), b.BilledMinutes)
	require.True(t, b.RoomCost.Equal(decimal.NewFromInt(162500)), "room cost %s", b.RoomCost)
	require.True(t, b.TotalAmount.Equal(decimal.NewFromInt(162500)))
}

func TestCalculateAddsStaffServiceMinutes(t *testing.T) {
	b, err := Calculate(Input{
		Room:  vipRoom(),
		Start: t0,
		End:   t0.Add(60 * time.Minute),
		Rules: Rules{TimeRoundingMinutes: 1, StaffServiceMinutes: 6},
	})
	require.NoError(t, err)
	require.Equal(t, int64(66), b.BilledMinutes)
	require.True(t, b.RoomCost.Equal(decimal.NewFromInt(165000)))
}

func TestCalculateTimeItemBillsWholeBlock(t *testing.T) {
	sell := decimal.NewFromInt(60000)
	b, err := Calculate(Input{
		Room:  vipRoom(),
		Start: t0,
		End:   t0.Add(30 * time.Minute),
		Items: []domain.OrderItem{{
			ID:        "item-1",
			ProductID: "svc-staff",
			Name:      "Staff service",
			Quantity:  1,
			SellPrice: sell,
			CostPrice: decimal.NewFromInt(30000),
			TimeBased: true,
			StartTime: tp(t0.Add(5 * time.Minute)),
			EndTime:   tp(t0.Add(6 * time.Minute)),
		}},
		Rules: Rules{TimeRoundingMinutes: 1, ServiceBlockMinutes: 10},
	})
	require.NoError(t, err)
	require.Len(t, b.Lines, 1)
	require.Equal(t, int64(10), b.Lines[0].BilledMinutes)
	require.True(t, b.Lines[0].Revenue.Equal(sell.Mul(decimal.NewFromInt(10)).Div(decimal.NewFromInt(60))))
	require.True(t, b.Lines[0].Cost.Equal(decimal.NewFromInt(5000)))
}

func TestCalculateRunningTimeItemUsesEvaluationEnd(t *testing.T) {
	b, err := Calculate(Input{
		Room:  vipRoom(),
		Start: t0,
		End:   t0.Add(45 * time.Minute),
		Items: []domain.OrderItem{{
			ID:        "item-1",
			TimeBased: true,
			SellPrice: decimal.NewFromInt(60000),
			StartTime: tp(t0.Add(10 * time.Minute)),
		}},
		Rules: Rules{ServiceBlockMinutes: 10},
	})
	require.NoError(t, err)
	require.Equal(t, int64(40), b.Lines[0].BilledMinutes)
	require.True(t, b.Lines[0].Revenue.Equal(decimal.NewFromInt(40000)))
}

func TestCalculateQuantityItemsAndProfit(t *testing.T) {
	b, err := Calculate(Input{
		Room:  vipRoom(),
		Start: t0,
		End:   t0.Add(60 * time.Minute),
		Items: []domain.OrderItem{
			{ID: "a", ProductID: "beer", Quantity: 3, SellPrice: decimal.NewFromInt(35000), CostPrice: decimal.NewFromInt(20000)},
			{ID: "b", ProductID: "fruit", Quantity: 1, SellPrice: decimal.NewFromInt(120000), CostPrice: decimal.NewFromInt(50000)},
		},
		Rules: Rules{TimeRoundingMinutes: 1, VATRate: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)

	// room 150000 + beer 105000 + fruit 120000
	require.True(t, b.SubTotal.Equal(decimal.NewFromInt(375000)))
	require.True(t, b.VATAmount.Equal(decimal.NewFromInt(37500)))
	require.True(t, b.TotalAmount.Equal(decimal.NewFromInt(412500)))
	require.True(t, b.TotalCost.Equal(decimal.NewFromInt(110000)))
	require.True(t, b.TotalProfit.Equal(decimal.NewFromInt(265000)))
}

func TestCalculateTotalIsExactlySubtotalPlusVAT(t *testing.T) {
	rates := []decimal.Decimal{decimal.Zero, decimal.NewFromInt(10), decimal.RequireFromString("11"), decimal.RequireFromString("7.5")}
	for _, rate := range rates {
		for minutes := 1; minutes < 200; minutes += 13 {
			b, err := Calculate(Input{
				Room:  &domain.Room{ID: "r", HourlyRate: decimal.NewFromInt(99999)},
				Start: t0,
				End:   t0.Add(time.Duration(minutes) * time.Minute),
				Items: []domain.OrderItem{
					{ID: "svc", TimeBased: true, SellPrice: decimal.NewFromInt(77777), StartTime: tp(t0)},
					{ID: "qty", Quantity: 2, SellPrice: decimal.RequireFromString("12345.67")},
				},
				Rules: Rules{TimeRoundingMinutes: 7, ServiceBlockMinutes: 10, VATRate: rate},
			})
			require.NoError(t, err)
			want := b.SubTotal.Mul(decimal.NewFromInt(1).Add(rate.Div(decimal.NewFromInt(100))))
			require.True(t, b.TotalAmount.Equal(want), "rate %s minutes %d: %s != %s", rate, minutes, b.TotalAmount, want)
		}
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	in := Input{
		Room:  vipRoom(),
		Start: t0,
		End:   t0.Add(97 * time.Minute),
		Items: []domain.OrderItem{{ID: "svc", TimeBased: true, SellPrice: decimal.NewFromInt(50000), StartTime: tp(t0.Add(3 * time.Minute))}},
		Rules: Rules{TimeRoundingMinutes: 5, ServiceBlockMinutes: 15, VATRate: decimal.NewFromInt(10)},
	}
	first, err := Calculate(in)
	require.NoError(t, err)
	second, err := Calculate(in)
	require.NoError(t, err)
	require.Equal(t, first.TotalAmount.String(), second.TotalAmount.String())
	require.Equal(t, first.TotalProfit.String(), second.TotalProfit.String())
}

func TestCalculateMissingRoomFails(t *testing.T) {
	_, err := Calculate(Input{Start: t0, End: t0.Add(time.Hour)})
	if !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestCalculateEndBeforeStartClampsToFloor(t *testing.T) {
	b, err := Calculate(Input{
		Room:  &domain.Room{ID: "r", HourlyRate: decimal.NewFromInt(60000)},
		Start: t0,
		End:   t0.Add(-time.Hour),
		Rules: Rules{TimeRoundingMinutes: 1},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), b.BilledMinutes)
	require.True(t, b.RoomCost.Equal(decimal.NewFromInt(1000)))
	require.False(t, b.TotalAmount.IsNegative())
}
