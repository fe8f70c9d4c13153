package session

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/chipheocrypto/c124/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func newStoreWithRooms(t *testing.T, ids ...string) *Store {
	t.Helper()
	s := NewStore()
	for _, id := range ids {
		s.Track(id, domain.RoomAvailable)
	}
	return s
}

func room(id string) domain.Room {
	return domain.Room{ID: id, StoreID: "main-store", HourlyRate: decimal.NewFromInt(150000), Status: domain.RoomAvailable}
}

var (
	beer   = domain.Product{ID: "beer", Name: "Beer", SellPrice: decimal.NewFromInt(35000), CostPrice: decimal.NewFromInt(20000)}
	staffService = domain.Product{ID: "staff", Name: "Staff service", SellPrice: decimal.NewFromInt(60000), TimeBased: true}
)

func TestOpenTransitionsRoomAndRejectsSecondSession(t *testing.T) {
	s := newStoreWithRooms(t, "r1")

	order, err := s.Open(room("r1"), decimal.NewFromInt(10), "staff", t0)
	require.NoError(t, err)
	require.Equal(t, domain.OrderOpen, order.Status)
	require.Equal(t, t0, order.StartTime)
	require.Empty(t, order.Items)

	status, _ := s.Status("r1")
	require.Equal(t, domain.RoomOccupied, status)

	_, err = s.Open(room("r1"), decimal.NewFromInt(10), "staff", t0)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestOpenRequiresAvailableRoom(t *testing.T) {
	s := NewStore()
	s.Track("r1", domain.RoomCleaning)

	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestTrackDowngradesOrphanedSessionStates(t *testing.T) {
	s := NewStore()
	status, downgraded := s.Track("r1", domain.RoomOccupied)
	require.True(t, downgraded)
	require.Equal(t, domain.RoomError, status)

	status, downgraded = s.Track("r1", domain.RoomAvailable)
	require.False(t, downgraded)
	require.Equal(t, domain.RoomError, status, "tracked rooms keep their in-process status")
}

func TestAddItemMergesQuantityLines(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	_, err = s.AddItem("r1", beer, 2, t0)
	require.NoError(t, err)
	order, err := s.AddItem("r1", beer, 1, t0)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	require.Equal(t, 3, order.Items[0].Quantity)
	require.NotEqual(t, beer.ID, order.Items[0].ID, "line ids are distinct from product ids")

	order, err = s.AddItem("r1", beer, -3, t0)
	require.NoError(t, err)
	require.Empty(t, order.Items)

	_, err = s.AddItem("r1", beer, -1, t0)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestAddItemCapturesPriceAtAddTime(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	_, err = s.AddItem("r1", beer, 1, t0)
	require.NoError(t, err)
	repriced := beer
	repriced.SellPrice = decimal.NewFromInt(99000)
	order, err := s.AddItem("r1", repriced, 1, t0)
	require.NoError(t, err)
	require.True(t, order.Items[0].SellPrice.Equal(beer.SellPrice))
}

func TestAddTimeItemAlwaysAppends(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	_, err = s.AddItem("r1", staffService, 1, t0.Add(time.Minute))
	require.NoError(t, err)
	order, err := s.AddItem("r1", staffService, 1, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	require.NotEqual(t, order.Items[0].ID, order.Items[1].ID)
	require.Equal(t, t0.Add(2*time.Minute), *order.Items[1].StartTime)
	require.Nil(t, order.Items[1].EndTime)
}

func TestStopAndResumeTimeItem(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)
	order, err := s.AddItem("r1", staffService, 1, t0)
	require.NoError(t, err)
	itemID := order.Items[0].ID

	order, err = s.StopTimeItem("r1", itemID, t0.Add(20*time.Minute))
	require.NoError(t, err)
	require.Equal(t, t0.Add(20*time.Minute), *order.Items[0].EndTime)

	_, err = s.StopTimeItem("r1", itemID, t0.Add(25*time.Minute))
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)

	order, err = s.ResumeTimeItem("r1", itemID, t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.Nil(t, order.Items[0].EndTime)
}

func TestStopQuantityItemFails(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)
	order, err := s.AddItem("r1", beer, 1, t0)
	require.NoError(t, err)

	_, err = s.StopTimeItem("r1", order.Items[0].ID, t0.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestRemoveItemDeletesWholeLine(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)
	order, err := s.AddItem("r1", beer, 5, t0)
	require.NoError(t, err)

	order, err = s.RemoveItem("r1", order.Items[0].ID, t0)
	require.NoError(t, err)
	require.Empty(t, order.Items)
}

func TestTimeEditsRejectInvertedRangesWithoutMutation(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)
	order, err := s.AddItem("r1", staffService, 1, t0.Add(10*time.Minute))
	require.NoError(t, err)
	itemID := order.Items[0].ID
	now := t0.Add(time.Hour)

	end := t0.Add(5 * time.Minute)
	_, err = s.SetItemTimes("r1", itemID, t0.Add(10*time.Minute), &end, now)
	require.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	_, err = s.AdjustStartTime("r1", 2*time.Hour, now)
	require.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	current, ok := s.Get("r1")
	require.True(t, ok)
	require.Equal(t, t0, current.StartTime)
	require.Nil(t, current.Items[0].EndTime)

	current, err = s.AdjustStartTime("r1", -15*time.Minute, now)
	require.NoError(t, err)
	require.Equal(t, t0.Add(-15*time.Minute), current.StartTime)

	current, err = s.AdjustItemStart("r1", itemID, -5*time.Minute, now)
	require.NoError(t, err)
	require.Equal(t, t0.Add(5*time.Minute), *current.Items[0].StartTime)
}

func TestMoveKeepsStartTimeAndSwapsStatuses(t *testing.T) {
	s := newStoreWithRooms(t, "r1", "r2")
	opened, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	moved, err := s.Move("r1", "r2", t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, opened.ID, moved.ID)
	require.Equal(t, "r2", moved.RoomID)
	require.Equal(t, t0, moved.StartTime)

	from, _ := s.Status("r1")
	to, _ := s.Status("r2")
	require.Equal(t, domain.RoomAvailable, from)
	require.Equal(t, domain.RoomOccupied, to)

	_, ok := s.Get("r1")
	require.False(t, ok)
	_, ok = s.Get("r2")
	require.True(t, ok)
}

func TestMoveRequiresAvailableTarget(t *testing.T) {
	s := newStoreWithRooms(t, "r1", "r2")
	s.Track("r3", domain.RoomCleaning)
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)
	_, err = s.Open(room("r2"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	_, err = s.Move("r1", "r2", t0)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)
	_, err = s.Move("r1", "r3", t0)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)

	_, ok := s.Get("r1")
	require.True(t, ok, "failed move leaves the source session in place")
}

func TestPaymentFreezesAndCancelUnfreezes(t *testing.T) {
	s := newStoreWithRooms(t, "r1", "r2")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	order, err := s.InitiatePayment("r1", t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Hour), *order.PaymentStartedAt)

	_, err = s.InitiatePayment("r1", t0.Add(2*time.Hour))
	require.ErrorIs(t, err, domain.ErrPreconditionFailed, "the clock is frozen only once")

	_, err = s.Move("r1", "r2", t0.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrPreconditionFailed, "a room under payment cannot move")

	order, err = s.CancelPayment("r1", t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Nil(t, order.PaymentStartedAt)
	status, _ := s.Status("r1")
	require.Equal(t, domain.RoomOccupied, status)
}

func TestCloseClearsSessionAndRequiresMatchingOrder(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	order, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	require.ErrorIs(t, s.Close("r1", "ord-other"), domain.ErrPreconditionFailed)
	require.NoError(t, s.Close("r1", order.ID))

	status, _ := s.Status("r1")
	require.Equal(t, domain.RoomCleaning, status)
	require.ErrorIs(t, s.Close("r1", order.ID), domain.ErrPreconditionFailed)
}

func TestForceDiscardRequiresConfirmation(t *testing.T) {
	s := newStoreWithRooms(t, "r1")
	_, err := s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)

	_, err = s.ForceDiscard("r1", domain.RoomAvailable, false)
	if !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected confirmation to be required, got %v", err)
	}
	_, ok := s.Get("r1")
	require.True(t, ok)

	discarded, err := s.ForceDiscard("r1", domain.RoomError, true)
	require.NoError(t, err)
	require.Equal(t, domain.OrderCancelled, discarded.Status)
	_, ok = s.Get("r1")
	require.False(t, ok)
	status, _ := s.Status("r1")
	require.Equal(t, domain.RoomError, status)
}

func TestHousekeepingTransitions(t *testing.T) {
	s := NewStore()
	s.Track("r1", domain.RoomCleaning)

	_, err := s.SetStatus("r1", domain.RoomOccupied)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)

	_, err = s.SetStatus("r1", domain.RoomAvailable)
	require.NoError(t, err)
	_, err = s.SetStatus("r1", domain.RoomError)
	require.NoError(t, err)
	_, err = s.SetStatus("r1", domain.RoomAvailable)
	require.NoError(t, err)

	_, err = s.Open(room("r1"), decimal.Zero, "staff", t0)
	require.NoError(t, err)
	_, err = s.SetStatus("r1", domain.RoomError)
	require.ErrorIs(t, err, domain.ErrPreconditionFailed, "session rooms need a forced discard")
}
