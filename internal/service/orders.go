package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/store"
)

var hundred = decimal.NewFromInt(100)

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("%w: order %s", store.ErrNotFound, orderID)
		}
		return domain.Order{}, err
	}
	return *order, nil
}

// ListOrders returns paid orders whose payment time falls on date (UTC).
func (s *Service) ListOrders(ctx context.Context, storeID string, date string, limit int) (domain.OrderListResponse, error) {
	from, to, err := s.parseDay(date)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	if limit < 1 || limit > 500 {
		limit = 200
	}
	orders, err := s.repo.ListOrders(ctx, s.storeID(storeID), from, to, limit)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	return domain.OrderListResponse{Orders: orders}, nil
}

// RecordPrint counts a receipt print for a paid order.
func (s *Service) RecordPrint(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.IncrementPrintCount(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("%w: order %s", store.ErrNotFound, orderID)
		}
		return domain.Order{}, err
	}
	s.logAudit(ctx, order.StoreID, "bill_print", "order", orderID, fmt.Sprintf("print_count=%d", order.PrintCount))
	return *order, nil
}

// ListEditRequests lists requests, newest first, with the auto-approve hint
// computed against current settings.
func (s *Service) ListEditRequests(ctx context.Context, storeID string, status string, limit int) (domain.EditRequestListResponse, error) {
	storeID = s.storeID(storeID)
	filter := domain.EditRequestStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch filter {
	case "", domain.EditPending, domain.EditApproved, domain.EditRejected, domain.EditCompleted:
	default:
		return domain.EditRequestListResponse{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	requests, err := s.repo.ListEditRequests(ctx, storeID, filter, limit)
	if err != nil {
		return domain.EditRequestListResponse{}, err
	}
	settings, err := s.settings(ctx, storeID)
	if err != nil {
		return domain.EditRequestListResponse{}, err
	}

	for i := range requests {
		if requests[i].Status != domain.EditPending {
			continue
		}
		order, err := s.repo.GetOrder(ctx, requests[i].OrderID)
		if err != nil {
			s.logger.Warn().Err(err).Str("request_id", requests[i].ID).Msg("edit request references a missing order")
			continue
		}
		requests[i].AutoApproveEligible = autoApproveEligible(settings, *order, requests[i])
	}
	return domain.EditRequestListResponse{Requests: requests}, nil
}

func (s *Service) GetSettings(ctx context.Context, storeID string) (domain.Settings, error) {
	return s.settings(ctx, storeID)
}

func (s *Service) UpdateSettings(ctx context.Context, storeID string, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Settings{}, fmt.Errorf("%w: admin role required", domain.ErrPermissionDenied)
	}
	storeID = s.storeID(storeID)

	current, err := s.settings(ctx, storeID)
	if err != nil {
		return domain.Settings{}, err
	}
	next := current
	if req.TimeRoundingMinutes != nil {
		next.TimeRoundingMinutes = *req.TimeRoundingMinutes
	}
	if req.StaffServiceMinutes != nil {
		next.StaffServiceMinutes = *req.StaffServiceMinutes
	}
	if req.ServiceBlockMinutes != nil {
		next.ServiceBlockMinutes = *req.ServiceBlockMinutes
	}
	if req.VATRate != nil {
		if req.VATRate.IsNegative() || req.VATRate.GreaterThan(hundred) {
			return domain.Settings{}, fmt.Errorf("%w: vat_rate must be between 0 and 100", domain.ErrInvalidInput)
		}
		next.VATRate = *req.VATRate
	}
	if req.StaffEditWindowMinutes != nil {
		next.StaffEditWindowMinutes = *req.StaffEditWindowMinutes
	}
	if req.AdminAutoApproveMinutes != nil {
		next.AdminAutoApproveMinutes = *req.AdminAutoApproveMinutes
	}
	if req.ManualBillApproval != nil {
		next.ManualBillApproval = *req.ManualBillApproval
	}
	if req.HardBillLockMinutes != nil {
		next.HardBillLockMinutes = *req.HardBillLockMinutes
	}
	if req.LowStockThreshold != nil {
		next.LowStockThreshold = *req.LowStockThreshold
	}
	if next.TimeRoundingMinutes < 1 || next.ServiceBlockMinutes < 1 || next.StaffServiceMinutes < 0 {
		return domain.Settings{}, fmt.Errorf("%w: rounding and block minutes must be at least 1", domain.ErrInvalidInput)
	}
	next.StoreID = storeID
	next.UpdatedAt = s.clock()

	if err := s.repo.SaveSettings(ctx, next); err != nil {
		return domain.Settings{}, err
	}
	if err := s.settingsCache.Delete(ctx, storeID); err != nil {
		s.logger.Warn().Err(err).Str("store_id", storeID).Msg("settings cache invalidation failed")
	}

	s.logAudit(ctx, storeID, "settings_update", "settings", storeID, fmt.Sprintf(
		"rounding=%d,staff=%d,block=%d,vat=%s,staff_window=%d,auto_approve=%d,manual=%t,hard_lock=%d",
		next.TimeRoundingMinutes, next.StaffServiceMinutes, next.ServiceBlockMinutes, next.VATRate,
		next.StaffEditWindowMinutes, next.AdminAutoApproveMinutes, next.ManualBillApproval, next.HardBillLockMinutes,
	))
	return next, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	from, to, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, s.storeID(storeID), from, to, limit)
}

// StockLevels reports remaining stock for quantity products, flagging those at
// or below the low-stock threshold.
func (s *Service) StockLevels(ctx context.Context, storeID string) (map[string]int, []string, error) {
	storeID = s.storeID(storeID)
	stock, err := s.repo.GetStockMap(ctx, storeID)
	if err != nil {
		return nil, nil, err
	}
	settings, err := s.settings(ctx, storeID)
	if err != nil {
		return nil, nil, err
	}
	low := make([]string, 0)
	for productID, qty := range stock {
		if qty <= settings.LowStockThreshold {
			low = append(low, productID)
		}
	}
	slices.Sort(low)
	return stock, low, nil
}
