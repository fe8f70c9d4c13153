package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/store/memory"
)

const (
	vipRoom  = "room-vip-01"
	stdRoom  = "room-std-01"
	stdRoom2 = "room-std-02"
)

var baseTime = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pinVerifier map[string]string

func (p pinVerifier) HasSecondaryCredential(_ context.Context, username string) bool {
	_, ok := p[username]
	return ok
}

func (p pinVerifier) VerifySecondaryCredential(_ context.Context, username string, pin string) bool {
	want, ok := p[username]
	return ok && want == pin
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Store, *testClock) {
	t.Helper()
	repo := memory.NewSeeded()
	clock := &testClock{now: baseTime}
	opts = append([]Option{
		WithClock(clock.Now),
		WithCredentials(pinVerifier{"manager": "482913", "admin": "739164"}),
	}, opts...)
	return New(repo, "main-store", opts...), repo, clock
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manager", Role: domain.RoleManager})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func saveSettings(t *testing.T, repo *memory.Store, mutate func(*domain.Settings)) {
	t.Helper()
	settings := domain.DefaultSettings("main-store")
	mutate(&settings)
	require.NoError(t, repo.SaveSettings(context.Background(), settings))
}

// paidSession opens roomID, runs it for d and checks it out.
func paidSession(t *testing.T, svc *Service, clock *testClock, roomID string, d time.Duration) domain.Order {
	t.Helper()
	ctx := staffCtx()
	_, err := svc.OpenSession(ctx, roomID)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, roomID, domain.AddItemRequest{ProductID: "prd-beer", Quantity: 2})
	require.NoError(t, err)
	clock.Advance(d)
	order, err := svc.Checkout(ctx, roomID)
	require.NoError(t, err)
	return order
}

func boardStatus(t *testing.T, svc *Service, roomID string) (domain.RoomStatus, string) {
	t.Helper()
	board, err := svc.ListRooms(context.Background(), "")
	require.NoError(t, err)
	for _, entry := range board {
		if entry.Room.ID == roomID {
			return entry.Room.Status, entry.OrderID
		}
	}
	t.Fatalf("room %s missing from board", roomID)
	return "", ""
}
