package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipheocrypto/c124/internal/domain"
)

var sixty = decimal.NewFromInt(60)

type Rules struct {
	TimeRoundingMinutes int
	StaffServiceMinutes int
	ServiceBlockMinutes int
	VATRate             decimal.Decimal
}

// RulesFor builds calculation rules from store settings and the VAT rate the
// order captured when it was opened.
func RulesFor(settings domain.Settings, vatRate decimal.Decimal) Rules {
	return Rules{
		TimeRoundingMinutes: settings.TimeRoundingMinutes,
		StaffServiceMinutes: settings.StaffServiceMinutes,
		ServiceBlockMinutes: settings.ServiceBlockMinutes,
		VATRate:             vatRate,
	}
}

type Input struct {
	Room  *domain.Room
	Start time.Time
	End   time.Time
	Items []domain.OrderItem
	Rules Rules
}

// Calculate prices a session. It is used unchanged for live previews, for
// checkout and for retroactive edits, so the same inputs always produce the
// same breakdown.
func Calculate(in Input) (domain.BillBreakdown, error) {
	if in.Room == nil {
		return domain.BillBreakdown{}, fmt.Errorf("%w: room not found for billing", domain.ErrPreconditionFailed)
	}

	staff := int64(in.Rules.StaffServiceMinutes)
	if staff < 0 {
		staff = 0
	}
	billed := BilledMinutes(in.End.Sub(in.Start), in.Rules.TimeRoundingMinutes) + staff
	roomCost := in.Room.HourlyRate.Mul(decimal.NewFromInt(billed)).Div(sixty)

	out := domain.BillBreakdown{
		BilledMinutes: billed,
		RoomCost:      roomCost,
		Lines:         make([]domain.LineCharge, 0, len(in.Items)),
		VATRate:       in.Rules.VATRate,
		EvaluatedAt:   in.End,
	}

	revenue := decimal.Zero
	cost := decimal.Zero
	for _, item := range in.Items {
		line := priceLine(item, in.End, in.Rules.ServiceBlockMinutes)
		revenue = revenue.Add(line.Revenue)
		cost = cost.Add(line.Cost)
		out.Lines = append(out.Lines, line)
	}

	out.SubTotal = roomCost.Add(revenue)
	out.VATAmount = out.SubTotal.Mul(in.Rules.VATRate).Shift(-2)
	out.TotalAmount = out.SubTotal.Add(out.VATAmount)
	out.TotalCost = cost
	out.TotalProfit = out.SubTotal.Sub(cost)
	return out, nil
}

func priceLine(item domain.OrderItem, evalEnd time.Time, blockMinutes int) domain.LineCharge {
	line := domain.LineCharge{
		ItemID:    item.ID,
		ProductID: item.ProductID,
		Name:      item.Name,
		TimeBased: item.TimeBased,
		Quantity:  item.Quantity,
	}

	if !item.TimeBased {
		qty := decimal.NewFromInt(int64(item.Quantity))
		line.Revenue = item.SellPrice.Mul(qty)
		line.Cost = item.CostPrice.Mul(qty)
		return line
	}

	start := evalEnd
	if item.StartTime != nil {
		start = *item.StartTime
	}
	end := evalEnd
	if item.EndTime != nil {
		end = *item.EndTime
	}
	minutes := BilledMinutes(end.Sub(start), blockMinutes)
	m := decimal.NewFromInt(minutes)
	line.BilledMinutes = minutes
	line.Revenue = item.SellPrice.Mul(m).Div(sixty)
	line.Cost = item.CostPrice.Mul(m).Div(sixty)
	return line
}

// Stamp copies the computed totals onto an order.
func Stamp(order *domain.Order, b domain.BillBreakdown) {
	order.SubTotal = b.SubTotal
	order.VATRate = b.VATRate
	order.VATAmount = b.VATAmount
	order.TotalAmount = b.TotalAmount
	order.TotalCost = b.TotalCost
	order.TotalProfit = b.TotalProfit
}
