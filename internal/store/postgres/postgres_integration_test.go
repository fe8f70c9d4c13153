package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/chipheocrypto/c124/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("C124_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set C124_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestPaidOrderDecrementsStockAndEditCompletesRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("store-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)
	orderID := fmt.Sprintf("order-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_edit_requests WHERE order_id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_stocks WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit, sell_price, cost_price, time_based, active)
		VALUES ($1, 'Beer IT', 'drink', 'bottle', 35000, 20000, false, true)
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_stocks (store_id, product_id, qty, updated_at) VALUES ($1, $2, 10, now())
	`, storeID, productID); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	end := start.Add(61 * time.Minute)
	order := domain.Order{
		ID:      orderID,
		StoreID: storeID,
		RoomID:  "room-it",
		Items: []domain.OrderItem{{
			ID: "item-1", ProductID: productID, Name: "Beer IT", Quantity: 3,
			SellPrice: decimal.NewFromInt(35000), CostPrice: decimal.NewFromInt(20000),
		}},
		StartTime:   start,
		EndTime:     &end,
		Status:      domain.OrderPaid,
		SubTotal:    decimal.NewFromInt(267500),
		VATRate:     decimal.NewFromInt(10),
		VATAmount:   decimal.NewFromInt(26750),
		TotalAmount: decimal.NewFromInt(294250),
		TotalCost:   decimal.NewFromInt(60000),
		TotalProfit: decimal.NewFromInt(207500),
	}

	_, err := s.CreatePaidOrder(ctx, order, []domain.StockAdjustment{{ProductID: productID, Qty: 3}})
	require.NoError(t, err)

	_, err = s.CreatePaidOrder(ctx, order, nil)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)

	stock, err := s.GetStockMap(ctx, storeID)
	require.NoError(t, err)
	require.Equal(t, 7, stock[productID])

	stored, err := s.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.True(t, stored.TotalAmount.Equal(order.TotalAmount))
	require.Len(t, stored.Items, 1)
	require.Equal(t, 3, stored.Items[0].Quantity)

	req, err := s.CreateEditRequest(ctx, domain.BillEditRequest{StoreID: storeID, OrderID: orderID, RequestedBy: "staff", Reason: "wrong qty"})
	require.NoError(t, err)

	_, err = s.CreateEditRequest(ctx, domain.BillEditRequest{StoreID: storeID, OrderID: orderID, RequestedBy: "staff", Reason: "again"})
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected duplicate request error, got %v", err)
	}

	_, err = s.ApplyOrderEdit(ctx, *stored, req.ID, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)

	_, err = s.ResolveEditRequest(ctx, req.ID, domain.EditApproved, "manager", time.Now().UTC())
	require.NoError(t, err)

	stored.Items[0].Quantity = 2
	stored.EditCount++
	edited, err := s.ApplyOrderEdit(ctx, *stored, req.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, edited.EditCount)

	completed, err := s.GetEditRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EditCompleted, completed.Status)

	printed, err := s.IncrementPrintCount(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, 1, printed.PrintCount)
}
