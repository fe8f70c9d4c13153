package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chipheocrypto/c124/internal/billing"
	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/session"
	"github.com/chipheocrypto/c124/internal/store"
	"github.com/chipheocrypto/c124/internal/xid"
)

const (
	fallbackStaffWindow = 5 * time.Minute
	fallbackHardLock    = 1440 * time.Minute
)

// editWindows returns the self-service and hard-lock windows. A zero setting
// falls back to the default instead of closing the window.
func editWindows(settings domain.Settings) (staff time.Duration, hard time.Duration) {
	staff = time.Duration(settings.StaffEditWindowMinutes) * time.Minute
	if staff <= 0 {
		staff = fallbackStaffWindow
	}
	hard = time.Duration(settings.HardBillLockMinutes) * time.Minute
	if hard <= 0 {
		hard = fallbackHardLock
	}
	return staff, hard
}

func autoApproveEligible(settings domain.Settings, order domain.Order, req domain.BillEditRequest) bool {
	if settings.ManualBillApproval || settings.AdminAutoApproveMinutes <= 0 || order.EndTime == nil {
		return false
	}
	window := time.Duration(settings.AdminAutoApproveMinutes) * time.Minute
	return req.CreatedAt.Sub(*order.EndTime) <= window
}

// paidOrder loads an order for governance and applies the hard lock, which
// runs before every other check.
func (s *Service) paidOrder(ctx context.Context, orderID string, now time.Time) (domain.Order, domain.Settings, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, domain.Settings{}, fmt.Errorf("%w: order %s", store.ErrNotFound, orderID)
		}
		return domain.Order{}, domain.Settings{}, err
	}
	if order.Status != domain.OrderPaid || order.EndTime == nil {
		return domain.Order{}, domain.Settings{}, fmt.Errorf("%w: order %s is not paid", domain.ErrPreconditionFailed, orderID)
	}
	settings, err := s.settings(ctx, order.StoreID)
	if err != nil {
		return domain.Order{}, domain.Settings{}, err
	}

	_, hard := editWindows(settings)
	if now.Sub(*order.EndTime) > hard {
		return domain.Order{}, domain.Settings{}, fmt.Errorf("%w: order %s is locked after %d minutes", domain.ErrWindowExpired, orderID, int(hard/time.Minute))
	}
	return *order, settings, nil
}

func (s *Service) RequestEdit(ctx context.Context, orderID string, reason string) (domain.BillEditRequest, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.Username) == "" {
		return domain.BillEditRequest{}, fmt.Errorf("%w: an authenticated user is required", domain.ErrPermissionDenied)
	}
	reason = strings.TrimSpace(reason)

	var created *domain.BillEditRequest
	var settings domain.Settings
	var order domain.Order
	err := s.withOrder(ctx, orderID, func(ctx context.Context) error {
		now := s.clock()
		var err error
		order, settings, err = s.paidOrder(ctx, orderID, now)
		if err != nil {
			return err
		}

		staff, _ := editWindows(settings)
		if !actor.Privileged() && now.Sub(*order.EndTime) > staff {
			return fmt.Errorf("%w: staff can only request edits within %d minutes of payment", domain.ErrWindowExpired, int(staff/time.Minute))
		}
		if reason == "" {
			return fmt.Errorf("%w: reason is required", domain.ErrInvalidInput)
		}

		if active, err := s.repo.FindActiveEditRequest(ctx, orderID); err == nil {
			return fmt.Errorf("%w: request %s is still %s", domain.ErrDuplicateRequest, active.ID, active.Status)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		created, err = s.repo.CreateEditRequest(ctx, domain.BillEditRequest{
			ID:          xid.New("req"),
			StoreID:     order.StoreID,
			OrderID:     orderID,
			RequestedBy: actor.Username,
			Reason:      reason,
			Status:      domain.EditPending,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		s.metrics.GovernanceOutcome("request", outcomeOf(err))
		return domain.BillEditRequest{}, err
	}

	created.AutoApproveEligible = autoApproveEligible(settings, order, *created)
	s.metrics.GovernanceOutcome("request", "ok")
	s.logAudit(ctx, order.StoreID, "bill_edit_request", "order", orderID, fmt.Sprintf("request=%s,reason=%s", created.ID, reason))
	return *created, nil
}

func (s *Service) ApproveEditRequest(ctx context.Context, requestID string) (domain.BillEditRequest, error) {
	return s.resolveEditRequest(ctx, requestID, domain.EditApproved)
}

// RejectEditRequest closes a pending request. Rejection does not touch the
// bill, so it is allowed after the hard lock.
func (s *Service) RejectEditRequest(ctx context.Context, requestID string) (domain.BillEditRequest, error) {
	return s.resolveEditRequest(ctx, requestID, domain.EditRejected)
}

func (s *Service) resolveEditRequest(ctx context.Context, requestID string, status domain.EditRequestStatus) (domain.BillEditRequest, error) {
	action := "approve"
	if status == domain.EditRejected {
		action = "reject"
	}

	req, err := s.repo.GetEditRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: edit request %s", store.ErrNotFound, requestID)
		}
		s.metrics.GovernanceOutcome(action, outcomeOf(err))
		return domain.BillEditRequest{}, err
	}

	var resolved *domain.BillEditRequest
	var order domain.Order
	var settings domain.Settings
	err = s.withOrder(ctx, req.OrderID, func(ctx context.Context) error {
		now := s.clock()
		if status == domain.EditApproved {
			var err error
			if order, settings, err = s.paidOrder(ctx, req.OrderID, now); err != nil {
				return err
			}
		}
		actor, err := s.requirePrivileged(ctx, action+" edit request")
		if err != nil {
			return err
		}
		resolved, err = s.repo.ResolveEditRequest(ctx, requestID, status, actor.Username, now)
		return err
	})
	if err != nil {
		s.metrics.GovernanceOutcome(action, outcomeOf(err))
		return domain.BillEditRequest{}, err
	}

	if status == domain.EditApproved {
		resolved.AutoApproveEligible = autoApproveEligible(settings, order, *resolved)
	}
	s.metrics.GovernanceOutcome(action, "ok")
	s.logAudit(ctx, req.StoreID, "bill_edit_"+action, "bill_edit_request", requestID, "order="+req.OrderID)
	return *resolved, nil
}

// AuthorizeDirectEdit checks that the actor may open the direct edit form for
// an order. It has no side effects.
func (s *Service) AuthorizeDirectEdit(ctx context.Context, orderID string, pin string) error {
	order, _, err := s.paidOrder(ctx, orderID, s.clock())
	if err == nil {
		err = s.authorizeSecondary(ctx, pin)
	}
	s.metrics.GovernanceOutcome("direct_authorize", outcomeOf(err))
	if err != nil {
		return err
	}
	s.logAudit(ctx, order.StoreID, "bill_direct_edit_authorize", "order", orderID, "")
	return nil
}

// authorizeSecondary fails closed: no verifier, no configured credential or a
// wrong PIN all deny.
func (s *Service) authorizeSecondary(ctx context.Context, pin string) error {
	actor, err := s.requirePrivileged(ctx, "direct bill edit")
	if err != nil {
		return err
	}
	if s.credentials == nil || !s.credentials.HasSecondaryCredential(ctx, actor.Username) {
		return fmt.Errorf("%w: no secondary credential configured for %s", domain.ErrPermissionDenied, actor.Username)
	}
	if strings.TrimSpace(pin) == "" || !s.credentials.VerifySecondaryCredential(ctx, actor.Username, pin) {
		return fmt.Errorf("%w: secondary credential rejected", domain.ErrPermissionDenied)
	}
	return nil
}

// ApplyEdit rewrites a paid order's lines and times and reprices it with the
// same calculator checkout used. With a request id the request must be
// APPROVED; without one the direct edit path applies.
func (s *Service) ApplyEdit(ctx context.Context, orderID string, edit domain.BillEdit) (domain.Order, error) {
	action := "apply"
	if edit.RequestID == "" {
		action = "direct_edit"
	}

	var updated *domain.Order
	var storeID string
	err := s.withOrder(ctx, orderID, func(ctx context.Context) error {
		now := s.clock()
		order, settings, err := s.paidOrder(ctx, orderID, now)
		if err != nil {
			return err
		}
		storeID = order.StoreID

		if edit.RequestID != "" {
			if err := s.checkApprovedRequest(ctx, orderID, edit.RequestID); err != nil {
				return err
			}
		} else if err := s.authorizeSecondary(ctx, edit.SecondaryPIN); err != nil {
			return err
		}

		start := edit.StartTime.UTC()
		end := edit.EndTime.UTC()
		if !end.After(start) {
			return fmt.Errorf("%w: end must be after start", domain.ErrInvalidTimeRange)
		}
		items, err := s.editedItems(ctx, order, edit.Items, start, end)
		if err != nil {
			return err
		}

		room, err := s.repo.GetRoom(ctx, order.RoomID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		bill, err := billing.Calculate(billing.Input{
			Room:  room,
			Start: start,
			End:   end,
			Items: items,
			Rules: billing.RulesFor(settings, order.VATRate),
		})
		if err != nil {
			return err
		}

		next := order
		next.Items = items
		next.StartTime = start
		next.EndTime = &end
		next.EditCount++
		billing.Stamp(&next, bill)

		updated, err = s.repo.ApplyOrderEdit(ctx, next, edit.RequestID, now)
		return err
	})
	if err != nil {
		s.metrics.GovernanceOutcome(action, outcomeOf(err))
		return domain.Order{}, err
	}

	s.metrics.GovernanceOutcome(action, "ok")
	s.logAudit(ctx, storeID, "bill_edit_"+action, "order", orderID, fmt.Sprintf("request=%s,total=%s,edit_count=%d", edit.RequestID, updated.TotalAmount.StringFixed(2), updated.EditCount))
	return *updated, nil
}

func (s *Service) checkApprovedRequest(ctx context.Context, orderID string, requestID string) error {
	req, err := s.repo.GetEditRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: edit request %s", store.ErrNotFound, requestID)
		}
		return err
	}
	if req.OrderID != orderID {
		return fmt.Errorf("%w: request %s belongs to another order", domain.ErrPreconditionFailed, requestID)
	}
	if req.Status != domain.EditApproved {
		return fmt.Errorf("%w: request %s is %s", domain.ErrPreconditionFailed, requestID, req.Status)
	}
	actor, ok := ActorFromContext(ctx)
	if !ok || (!actor.Privileged() && actor.Username != req.RequestedBy) {
		return fmt.Errorf("%w: only a manager or the requester can apply request %s", domain.ErrPermissionDenied, requestID)
	}
	return nil
}

// editedItems validates replacement lines. Lines that already exist on the
// order keep their captured product and prices; new lines capture current
// catalog prices.
func (s *Service) editedItems(ctx context.Context, order domain.Order, edited []domain.OrderItem, start time.Time, end time.Time) ([]domain.OrderItem, error) {
	existing := make(map[string]domain.OrderItem, len(order.Items))
	for _, item := range order.Items {
		existing[item.ID] = item
	}

	out := make([]domain.OrderItem, 0, len(edited))
	seen := make(map[string]struct{}, len(edited))
	for _, in := range edited {
		item, ok := existing[in.ID]
		if in.ID == "" || !ok {
			product, err := s.repo.GetProduct(ctx, in.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("%w: product %s", domain.ErrInvalidInput, in.ProductID)
				}
				return nil, err
			}
			item = domain.OrderItem{
				ID:        xid.New("item"),
				ProductID: product.ID,
				Name:      product.Name,
				SellPrice: product.SellPrice,
				CostPrice: product.CostPrice,
				TimeBased: product.TimeBased,
			}
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: item %s appears twice", domain.ErrInvalidInput, item.ID)
		}
		seen[item.ID] = struct{}{}

		if !item.TimeBased {
			if in.Quantity < 1 {
				return nil, fmt.Errorf("%w: quantity for %s must be positive", domain.ErrInvalidInput, item.ProductID)
			}
			item.Quantity = in.Quantity
			item.StartTime, item.EndTime = nil, nil
			out = append(out, item)
			continue
		}

		itemStart := start
		if in.StartTime != nil {
			itemStart = in.StartTime.UTC()
		}
		itemEnd := end
		if in.EndTime != nil {
			itemEnd = in.EndTime.UTC()
		}
		if !itemEnd.After(itemStart) {
			return nil, fmt.Errorf("%w: item %s must end after it starts", domain.ErrInvalidTimeRange, item.ID)
		}
		item.Quantity = 1
		item.StartTime = &itemStart
		item.EndTime = &itemEnd
		out = append(out, item)
	}
	return session.CloneItems(out), nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrWindowExpired):
		return "window_expired"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidTimeRange), errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrPreconditionFailed), errors.Is(err, store.ErrNotFound):
		return "precondition"
	default:
		return "error"
	}
}
