package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chipheocrypto/c124/internal/billing"
	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/store"
)

// ListRooms returns the floor board with live statuses.
func (s *Service) ListRooms(ctx context.Context, storeID string) ([]domain.RoomBoardEntry, error) {
	rooms, err := s.repo.ListRooms(ctx, s.storeID(storeID))
	if err != nil {
		return nil, err
	}

	active := s.sessions.Active()
	board := make([]domain.RoomBoardEntry, 0, len(rooms))
	for _, room := range rooms {
		room.Status = s.track(ctx, room)
		entry := domain.RoomBoardEntry{Room: room}
		if order, ok := active[room.ID]; ok {
			entry.OrderID = order.ID
		}
		board = append(board, entry)
	}
	return board, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) OpenSession(ctx context.Context, roomID string) (domain.SessionView, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return domain.SessionView{}, err
	}
	settings, err := s.settings(ctx, room.StoreID)
	if err != nil {
		return domain.SessionView{}, err
	}

	var order domain.Order
	err = s.withRoom(ctx, roomID, func(context.Context) error {
		var err error
		order, err = s.sessions.Open(room, settings.VATRate, s.actor(ctx).Username, s.clock())
		return err
	})
	if err != nil {
		return domain.SessionView{}, err
	}

	s.persistStatus(ctx, roomID, domain.RoomOccupied)
	s.metrics.SessionOpened(room.Type)
	s.logAudit(ctx, room.StoreID, "session_open", "room", roomID, fmt.Sprintf("order=%s,vat=%s", order.ID, order.VATRate))
	return s.view(room, order, settings)
}

// Preview prices the active session at the frozen payment time, or now.
func (s *Service) Preview(ctx context.Context, roomID string) (domain.SessionView, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return domain.SessionView{}, err
	}
	order, ok := s.sessions.Get(roomID)
	if !ok {
		return domain.SessionView{}, fmt.Errorf("%w: room %s has no active session", domain.ErrPreconditionFailed, roomID)
	}
	settings, err := s.settings(ctx, room.StoreID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.view(room, order, settings)
}

func (s *Service) view(room domain.Room, order domain.Order, settings domain.Settings) (domain.SessionView, error) {
	if status, ok := s.sessions.Status(room.ID); ok {
		room.Status = status
	}
	end := s.evaluationEnd(order)
	bill, err := billing.Calculate(billing.Input{
		Room:  &room,
		Start: order.StartTime,
		End:   end,
		Items: order.Items,
		Rules: billing.RulesFor(settings, order.VATRate),
	})
	if err != nil {
		return domain.SessionView{}, err
	}
	billing.Stamp(&order, bill)
	return domain.SessionView{
		Room:   room,
		Order:  order,
		Bill:   bill,
		Frozen: order.PaymentStartedAt != nil,
	}, nil
}

func (s *Service) evaluationEnd(order domain.Order) time.Time {
	if order.PaymentStartedAt != nil {
		return *order.PaymentStartedAt
	}
	return s.clock()
}

func (s *Service) AddItem(ctx context.Context, roomID string, req domain.AddItemRequest) (domain.SessionView, error) {
	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SessionView{}, fmt.Errorf("%w: product %s", store.ErrNotFound, req.ProductID)
		}
		return domain.SessionView{}, err
	}
	if !product.Active {
		return domain.SessionView{}, fmt.Errorf("%w: product %s is inactive", domain.ErrPreconditionFailed, product.ID)
	}
	delta := req.Quantity
	if delta == 0 {
		delta = 1
	}

	return s.mutateSession(ctx, roomID, "item_add", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.AddItem(roomID, *product, delta, at)
		return order, fmt.Sprintf("product=%s,delta=%d", product.ID, delta), err
	})
}

func (s *Service) RemoveItem(ctx context.Context, roomID string, itemID string) (domain.SessionView, error) {
	return s.mutateSession(ctx, roomID, "item_remove", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.RemoveItem(roomID, itemID, at)
		return order, "item=" + itemID, err
	})
}

func (s *Service) StopTimeItem(ctx context.Context, roomID string, itemID string) (domain.SessionView, error) {
	return s.mutateSession(ctx, roomID, "item_stop", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.StopTimeItem(roomID, itemID, at)
		return order, "item=" + itemID, err
	})
}

func (s *Service) ResumeTimeItem(ctx context.Context, roomID string, itemID string) (domain.SessionView, error) {
	return s.mutateSession(ctx, roomID, "item_resume", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.ResumeTimeItem(roomID, itemID, at)
		return order, "item=" + itemID, err
	})
}

func (s *Service) SetItemTimes(ctx context.Context, roomID string, itemID string, req domain.ItemTimesRequest) (domain.SessionView, error) {
	start := req.StartTime.UTC()
	var end *time.Time
	if req.EndTime != nil {
		e := req.EndTime.UTC()
		end = &e
	}
	return s.mutateSession(ctx, roomID, "item_times", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.SetItemTimes(roomID, itemID, start, end, at)
		return order, fmt.Sprintf("item=%s,start=%s", itemID, start.Format(time.RFC3339)), err
	})
}

func (s *Service) AdjustItemStart(ctx context.Context, roomID string, itemID string, minutes int) (domain.SessionView, error) {
	delta := time.Duration(minutes) * time.Minute
	return s.mutateSession(ctx, roomID, "item_start_adjust", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.AdjustItemStart(roomID, itemID, delta, at)
		return order, fmt.Sprintf("item=%s,minutes=%d", itemID, minutes), err
	})
}

func (s *Service) AdjustStartTime(ctx context.Context, roomID string, minutes int) (domain.SessionView, error) {
	delta := time.Duration(minutes) * time.Minute
	return s.mutateSession(ctx, roomID, "session_start_adjust", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.AdjustStartTime(roomID, delta, at)
		return order, fmt.Sprintf("minutes=%d", minutes), err
	})
}

func (s *Service) SetStartTime(ctx context.Context, roomID string, start time.Time) (domain.SessionView, error) {
	start = start.UTC()
	return s.mutateSession(ctx, roomID, "session_start_set", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.SetStartTime(roomID, start, at)
		return order, "start=" + start.Format(time.RFC3339), err
	})
}

func (s *Service) InitiatePayment(ctx context.Context, roomID string) (domain.SessionView, error) {
	view, err := s.mutateSession(ctx, roomID, "payment_initiate", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.InitiatePayment(roomID, at)
		return order, "frozen_at=" + at.Format(time.RFC3339), err
	})
	if err == nil {
		s.persistStatus(ctx, roomID, domain.RoomPayment)
	}
	return view, err
}

func (s *Service) CancelPayment(ctx context.Context, roomID string) (domain.SessionView, error) {
	view, err := s.mutateSession(ctx, roomID, "payment_cancel", func(at time.Time) (domain.Order, string, error) {
		order, err := s.sessions.CancelPayment(roomID, at)
		return order, "", err
	})
	if err == nil {
		s.persistStatus(ctx, roomID, domain.RoomOccupied)
	}
	return view, err
}

// mutateSession runs one session mutation under the room lock and returns the
// repriced view.
func (s *Service) mutateSession(ctx context.Context, roomID string, action string, fn func(at time.Time) (domain.Order, string, error)) (domain.SessionView, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return domain.SessionView{}, err
	}

	var order domain.Order
	var detail string
	err = s.withRoom(ctx, roomID, func(context.Context) error {
		var err error
		order, detail, err = fn(s.clock())
		return err
	})
	if err != nil {
		return domain.SessionView{}, err
	}

	s.logAudit(ctx, room.StoreID, action, "order", order.ID, detail)
	settings, err := s.settings(ctx, room.StoreID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.view(room, order, settings)
}

// MoveSession transfers the active order to another room. Both rooms are
// locked, in key order, for the whole transfer.
func (s *Service) MoveSession(ctx context.Context, fromRoomID string, toRoomID string) (domain.SessionView, error) {
	from, err := s.room(ctx, fromRoomID)
	if err != nil {
		return domain.SessionView{}, err
	}
	to, err := s.room(ctx, toRoomID)
	if err != nil {
		return domain.SessionView{}, err
	}

	var order domain.Order
	err = s.withRooms(ctx, []string{fromRoomID, toRoomID}, func(context.Context) error {
		var err error
		order, err = s.sessions.Move(fromRoomID, toRoomID, s.clock())
		return err
	})
	if err != nil {
		return domain.SessionView{}, err
	}

	s.persistStatus(ctx, fromRoomID, domain.RoomAvailable)
	s.persistStatus(ctx, toRoomID, domain.RoomOccupied)
	s.logAudit(ctx, from.StoreID, "session_move", "order", order.ID, fmt.Sprintf("from=%s,to=%s", fromRoomID, toRoomID))

	settings, err := s.settings(ctx, to.StoreID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.view(to, order, settings)
}

// Checkout prices the session one last time, records it as a paid order and
// hands the room to housekeeping.
func (s *Service) Checkout(ctx context.Context, roomID string) (domain.Order, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return domain.Order{}, err
	}
	settings, err := s.settings(ctx, room.StoreID)
	if err != nil {
		return domain.Order{}, err
	}

	var paid *domain.Order
	err = s.withRoom(ctx, roomID, func(ctx context.Context) error {
		order, ok := s.sessions.Get(roomID)
		if !ok {
			return fmt.Errorf("%w: room %s has no active session", domain.ErrPreconditionFailed, roomID)
		}

		end := s.evaluationEnd(order)
		bill, err := billing.Calculate(billing.Input{
			Room:  &room,
			Start: order.StartTime,
			End:   end,
			Items: order.Items,
			Rules: billing.RulesFor(settings, order.VATRate),
		})
		if err != nil {
			return err
		}

		decrements := make([]domain.StockAdjustment, 0, len(order.Items))
		for i := range order.Items {
			item := &order.Items[i]
			if item.TimeBased {
				if item.EndTime == nil {
					stopped := end
					item.EndTime = &stopped
				}
				continue
			}
			decrements = append(decrements, domain.StockAdjustment{ProductID: item.ProductID, Qty: item.Quantity})
		}

		billing.Stamp(&order, bill)
		order.Status = domain.OrderPaid
		order.EndTime = &end
		order.ClosedBy = s.actor(ctx).Username

		paid, err = s.repo.CreatePaidOrder(ctx, order, decrements)
		if err != nil {
			return err
		}
		if err := s.sessions.Close(roomID, order.ID); err != nil {
			s.logger.Error().Err(err).Str("room_id", roomID).Str("order_id", order.ID).Msg("paid order recorded but session close failed")
			return err
		}
		return nil
	})
	if err != nil {
		s.metrics.CheckoutResult("error", 0)
		return domain.Order{}, err
	}

	s.persistStatus(ctx, roomID, domain.RoomCleaning)
	s.metrics.CheckoutResult("ok", paid.TotalAmount.InexactFloat64())
	s.logAudit(ctx, room.StoreID, "checkout", "order", paid.ID, fmt.Sprintf("room=%s,total=%s,items=%d", roomID, paid.TotalAmount.StringFixed(2), len(paid.Items)))
	return *paid, nil
}

// ForceDiscardSession drops the active order without billing it or touching
// stock. confirm must be true.
func (s *Service) ForceDiscardSession(ctx context.Context, roomID string, target domain.RoomStatus, confirm bool) (domain.Order, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return domain.Order{}, err
	}

	var discarded domain.Order
	err = s.withRoom(ctx, roomID, func(context.Context) error {
		var err error
		discarded, err = s.sessions.ForceDiscard(roomID, target, confirm)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.persistStatus(ctx, roomID, target)
	s.metrics.ForceDiscarded()
	s.logger.Warn().Str("room_id", roomID).Str("order_id", discarded.ID).Str("actor", s.actor(ctx).Username).Msg("active session discarded")
	s.logAudit(ctx, room.StoreID, "session_force_discard", "order", discarded.ID, fmt.Sprintf("room=%s,target=%s,items=%d", roomID, target, len(discarded.Items)))
	return discarded, nil
}

// SetRoomStatus applies a housekeeping transition on a room without a session.
func (s *Service) SetRoomStatus(ctx context.Context, roomID string, to domain.RoomStatus) (domain.Room, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}

	var from domain.RoomStatus
	err = s.withRoom(ctx, roomID, func(context.Context) error {
		var err error
		from, err = s.sessions.SetStatus(roomID, to)
		return err
	})
	if err != nil {
		return domain.Room{}, err
	}

	s.persistStatus(ctx, roomID, to)
	s.logAudit(ctx, room.StoreID, "room_status", "room", roomID, fmt.Sprintf("from=%s,to=%s", from, to))
	room.Status = to
	return room, nil
}
