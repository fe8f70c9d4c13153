package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/xid"
)

// Store holds the live order of every occupied room together with each
// room's status. Both maps change under one mutex so a move never exposes a
// pair of rooms with zero or two sessions.
type Store struct {
	mu     sync.Mutex
	status map[string]domain.RoomStatus
	orders map[string]*domain.Order
}

func NewStore() *Store {
	return &Store{
		status: make(map[string]domain.RoomStatus),
		orders: make(map[string]*domain.Order),
	}
}

// Track registers a room with its persisted status. A room that was holding a
// session when the process stopped comes back as ERROR because its order is
// gone. Track reports whether that downgrade happened. Already tracked rooms
// are left alone.
func (s *Store) Track(roomID string, status domain.RoomStatus) (domain.RoomStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.status[roomID]; ok {
		return current, false
	}
	if !status.Valid() {
		status = domain.RoomError
	}
	downgraded := false
	if status.HoldsSession() {
		status = domain.RoomError
		downgraded = true
	}
	s.status[roomID] = status
	return status, downgraded
}

func (s *Store) Status(roomID string) (domain.RoomStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.status[roomID]
	return status, ok
}

// Get returns a copy of the room's active order.
func (s *Store) Get(roomID string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[roomID]
	if !ok {
		return domain.Order{}, false
	}
	return cloneOrder(*order), true
}

// Active lists the open orders keyed by room id.
func (s *Store) Active() map[string]domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Order, len(s.orders))
	for roomID, order := range s.orders {
		out[roomID] = cloneOrder(*order)
	}
	return out
}

func (s *Store) Open(room domain.Room, vatRate decimal.Decimal, openedBy string, at time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[room.ID]; exists {
		return domain.Order{}, fmt.Errorf("%w: room %s already has an active session", domain.ErrPreconditionFailed, room.ID)
	}
	status, ok := s.status[room.ID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: room %s is not tracked", domain.ErrPreconditionFailed, room.ID)
	}
	if status != domain.RoomAvailable {
		return domain.Order{}, fmt.Errorf("%w: room %s is %s", domain.ErrPreconditionFailed, room.ID, status)
	}

	order := &domain.Order{
		ID:        xid.New("ord"),
		StoreID:   room.StoreID,
		RoomID:    room.ID,
		Items:     []domain.OrderItem{},
		StartTime: at,
		Status:    domain.OrderOpen,
		VATRate:   vatRate,
		OpenedBy:  openedBy,
		UpdatedAt: at,
	}
	s.orders[room.ID] = order
	s.status[room.ID] = domain.RoomOccupied
	return cloneOrder(*order), nil
}

// AddItem applies a quantity delta for a product. Quantity products share one
// line per product and the line disappears once it drops to zero. Every call
// for a time-based product starts a new timed line.
func (s *Store) AddItem(roomID string, product domain.Product, delta int, at time.Time) (domain.Order, error) {
	return s.mutate(roomID, at, func(order *domain.Order) error {
		if product.TimeBased {
			if delta <= 0 {
				return fmt.Errorf("%w: time-based items can only be started", domain.ErrInvalidInput)
			}
			start := at
			order.Items = append(order.Items, domain.OrderItem{
				ID:        xid.New("item"),
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  1,
				SellPrice: product.SellPrice,
				CostPrice: product.CostPrice,
				TimeBased: true,
				StartTime: &start,
			})
			return nil
		}

		if delta == 0 {
			return fmt.Errorf("%w: quantity delta must not be zero", domain.ErrInvalidInput)
		}
		for i := range order.Items {
			line := &order.Items[i]
			if line.TimeBased || line.ProductID != product.ID {
				continue
			}
			line.Quantity += delta
			if line.Quantity <= 0 {
				order.Items = append(order.Items[:i], order.Items[i+1:]...)
			}
			return nil
		}
		if delta < 0 {
			return fmt.Errorf("%w: product %s is not on the order", domain.ErrPreconditionFailed, product.ID)
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:        xid.New("item"),
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  delta,
			SellPrice: product.SellPrice,
			CostPrice: product.CostPrice,
		})
		return nil
	})
}

func (s *Store) RemoveItem(roomID string, itemID string, at time.Time) (domain.Order, error) {
	return s.mutate(roomID, at, func(order *domain.Order) error {
		idx := findItem(order, itemID)
		if idx < 0 {
			return fmt.Errorf("%w: item %s is not on the order", domain.ErrPreconditionFailed, itemID)
		}
		order.Items = append(order.Items[:idx], order.Items[idx+1:]...)
		return nil
	})
}

func (s *Store) StopTimeItem(roomID string, itemID string, at time.Time) (domain.Order, error) {
	return s.mutateTimeItem(roomID, itemID, at, func(item *domain.OrderItem) error {
		if item.EndTime != nil {
			return fmt.Errorf("%w: item %s is already stopped", domain.ErrPreconditionFailed, item.ID)
		}
		if !at.After(*item.StartTime) {
			return fmt.Errorf("%w: stop time must be after the item start", domain.ErrInvalidTimeRange)
		}
		end := at
		item.EndTime = &end
		return nil
	})
}

func (s *Store) ResumeTimeItem(roomID string, itemID string, at time.Time) (domain.Order, error) {
	return s.mutateTimeItem(roomID, itemID, at, func(item *domain.OrderItem) error {
		if item.EndTime == nil {
			return fmt.Errorf("%w: item %s is still running", domain.ErrPreconditionFailed, item.ID)
		}
		item.EndTime = nil
		return nil
	})
}

// SetItemTimes rewrites a time-based line's interval. A nil end leaves the
// line running.
func (s *Store) SetItemTimes(roomID string, itemID string, start time.Time, end *time.Time, at time.Time) (domain.Order, error) {
	return s.mutateTimeItem(roomID, itemID, at, func(item *domain.OrderItem) error {
		if err := checkRange(start, end, at); err != nil {
			return err
		}
		item.StartTime = &start
		if end != nil {
			e := *end
			item.EndTime = &e
		} else {
			item.EndTime = nil
		}
		return nil
	})
}

func (s *Store) AdjustItemStart(roomID string, itemID string, delta time.Duration, at time.Time) (domain.Order, error) {
	return s.mutateTimeItem(roomID, itemID, at, func(item *domain.OrderItem) error {
		start := item.StartTime.Add(delta)
		if err := checkRange(start, item.EndTime, at); err != nil {
			return err
		}
		item.StartTime = &start
		return nil
	})
}

func (s *Store) SetStartTime(roomID string, start time.Time, at time.Time) (domain.Order, error) {
	return s.mutate(roomID, at, func(order *domain.Order) error {
		if err := checkRange(start, order.PaymentStartedAt, at); err != nil {
			return err
		}
		order.StartTime = start
		return nil
	})
}

func (s *Store) AdjustStartTime(roomID string, delta time.Duration, at time.Time) (domain.Order, error) {
	return s.mutate(roomID, at, func(order *domain.Order) error {
		start := order.StartTime.Add(delta)
		if err := checkRange(start, order.PaymentStartedAt, at); err != nil {
			return err
		}
		order.StartTime = start
		return nil
	})
}

// Move re-keys the order of from under to. The order keeps its start time.
func (s *Store) Move(from string, to string, at time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from == to {
		return domain.Order{}, fmt.Errorf("%w: source and target room are the same", domain.ErrPreconditionFailed)
	}
	order, ok := s.orders[from]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: room %s has no active session", domain.ErrPreconditionFailed, from)
	}
	if s.status[from] != domain.RoomOccupied {
		return domain.Order{}, fmt.Errorf("%w: cancel payment on room %s before moving", domain.ErrPreconditionFailed, from)
	}
	target, ok := s.status[to]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: room %s is not tracked", domain.ErrPreconditionFailed, to)
	}
	if target != domain.RoomAvailable {
		return domain.Order{}, fmt.Errorf("%w: target room %s is %s", domain.ErrPreconditionFailed, to, target)
	}
	if _, busy := s.orders[to]; busy {
		return domain.Order{}, fmt.Errorf("%w: target room %s already has an active session", domain.ErrPreconditionFailed, to)
	}

	order.RoomID = to
	order.UpdatedAt = at
	s.orders[to] = order
	delete(s.orders, from)
	s.status[from] = domain.RoomAvailable
	s.status[to] = domain.RoomOccupied
	return cloneOrder(*order), nil
}

// InitiatePayment freezes the evaluation clock at at and moves the room to
// PAYMENT.
func (s *Store) InitiatePayment(roomID string, at time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[roomID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: room %s has no active session", domain.ErrPreconditionFailed, roomID)
	}
	if s.status[roomID] != domain.RoomOccupied {
		return domain.Order{}, fmt.Errorf("%w: room %s is %s", domain.ErrPreconditionFailed, roomID, s.status[roomID])
	}
	frozen := at
	order.PaymentStartedAt = &frozen
	order.UpdatedAt = at
	s.status[roomID] = domain.RoomPayment
	return cloneOrder(*order), nil
}

func (s *Store) CancelPayment(roomID string, at time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[roomID]
	if !ok || s.status[roomID] != domain.RoomPayment {
		return domain.Order{}, fmt.Errorf("%w: room %s is not awaiting payment", domain.ErrPreconditionFailed, roomID)
	}
	order.PaymentStartedAt = nil
	order.UpdatedAt = at
	s.status[roomID] = domain.RoomOccupied
	return cloneOrder(*order), nil
}

// Close removes a finalized order and hands the room to housekeeping.
// orderID guards against closing a session other than the one that was billed.
func (s *Store) Close(roomID string, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[roomID]
	if !ok {
		return fmt.Errorf("%w: room %s has no active session", domain.ErrPreconditionFailed, roomID)
	}
	if order.ID != orderID {
		return fmt.Errorf("%w: room %s session changed during checkout", domain.ErrPreconditionFailed, roomID)
	}
	delete(s.orders, roomID)
	s.status[roomID] = domain.RoomCleaning
	return nil
}

// ForceDiscard drops the active order without billing it. confirm must be
// true.
func (s *Store) ForceDiscard(roomID string, target domain.RoomStatus, confirm bool) (domain.Order, error) {
	if !confirm {
		return domain.Order{}, fmt.Errorf("%w: discarding an active session requires confirmation", domain.ErrPreconditionFailed)
	}
	if !ValidDiscardTarget(target) {
		return domain.Order{}, fmt.Errorf("%w: cannot discard into %s", domain.ErrInvalidInput, target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[roomID]
	if !ok || !s.status[roomID].HoldsSession() {
		return domain.Order{}, fmt.Errorf("%w: room %s has no active session", domain.ErrPreconditionFailed, roomID)
	}
	discarded := cloneOrder(*order)
	discarded.Status = domain.OrderCancelled
	delete(s.orders, roomID)
	s.status[roomID] = target
	return discarded, nil
}

// SetStatus applies a housekeeping transition.
func (s *Store) SetStatus(roomID string, to domain.RoomStatus) (domain.RoomStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.status[roomID]
	if !ok {
		return "", fmt.Errorf("%w: room %s is not tracked", domain.ErrPreconditionFailed, roomID)
	}
	if _, busy := s.orders[roomID]; busy || from.HoldsSession() {
		return from, fmt.Errorf("%w: room %s has an active session", domain.ErrPreconditionFailed, roomID)
	}
	if !CanHousekeep(from, to) {
		return from, fmt.Errorf("%w: cannot change room %s from %s to %s", domain.ErrPreconditionFailed, roomID, from, to)
	}
	s.status[roomID] = to
	return from, nil
}

func (s *Store) mutate(roomID string, at time.Time, fn func(order *domain.Order) error) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[roomID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: room %s has no active session", domain.ErrPreconditionFailed, roomID)
	}
	// work on a copy so a failed mutation leaves the session untouched
	draft := cloneOrder(*current)
	if err := fn(&draft); err != nil {
		return domain.Order{}, err
	}
	draft.UpdatedAt = at
	*current = draft
	return cloneOrder(draft), nil
}

func (s *Store) mutateTimeItem(roomID string, itemID string, at time.Time, fn func(item *domain.OrderItem) error) (domain.Order, error) {
	return s.mutate(roomID, at, func(order *domain.Order) error {
		idx := findItem(order, itemID)
		if idx < 0 {
			return fmt.Errorf("%w: item %s is not on the order", domain.ErrPreconditionFailed, itemID)
		}
		item := &order.Items[idx]
		if !item.TimeBased || item.StartTime == nil {
			return fmt.Errorf("%w: item %s is not time-based", domain.ErrPreconditionFailed, itemID)
		}
		return fn(item)
	})
}

func findItem(order *domain.Order, itemID string) int {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// checkRange rejects intervals that end at or before their start and starts
// that lie in the future.
func checkRange(start time.Time, end *time.Time, now time.Time) error {
	if end != nil && !end.After(start) {
		return fmt.Errorf("%w: end must be after start", domain.ErrInvalidTimeRange)
	}
	if start.After(now) {
		return fmt.Errorf("%w: start is in the future", domain.ErrInvalidTimeRange)
	}
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Items = CloneItems(order.Items)
	out.EndTime = cloneTime(order.EndTime)
	out.PaymentStartedAt = cloneTime(order.PaymentStartedAt)
	return out
}

// CloneItems deep-copies order lines including their time pointers.
func CloneItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	for i, item := range items {
		out[i] = item
		out[i].StartTime = cloneTime(item.StartTime)
		out[i].EndTime = cloneTime(item.EndTime)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
