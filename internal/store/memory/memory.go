package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/store"
	"github.com/chipheocrypto/c124/internal/xid"
)

const seedStoreID = "main-store"

type Store struct {
	mu              sync.RWMutex
	rooms           map[string]domain.Room
	products        map[string]domain.Product
	inventory       map[string]map[string]int
	settings        map[string]domain.Settings
	ordersByID      map[string]*domain.Order
	requestsByID    map[string]*domain.BillEditRequest
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_STAFF_PASSWORD, falling back to dev defaults with a warning. The
// postgres repository is used whenever DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	defaults := []struct {
		username string
		env      string
		fallback string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"manager", "SEED_MANAGER_PASSWORD", "manager123", domain.RoleManager},
		{"staff", "SEED_STAFF_PASSWORD", "staff123", domain.RoleStaff},
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	usedFallback := false
	for _, u := range defaults {
		password := os.Getenv(u.env)
		if password == "" {
			password = u.fallback
			usedFallback = true
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("memory-store: failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	if usedFallback {
		log.Warn().Msg("memory-store: using default dev credentials; set SEED_*_PASSWORD to override")
	}
	return users
}

func NewSeeded() *Store {
	rooms := []domain.Room{
		{ID: "room-vip-01", Name: "VIP 01", Type: "VIP", HourlyRate: decimal.NewFromInt(150000)},
		{ID: "room-vip-02", Name: "VIP 02", Type: "VIP", HourlyRate: decimal.NewFromInt(150000)},
		{ID: "room-std-01", Name: "Standard 01", Type: "NORMAL", HourlyRate: decimal.NewFromInt(90000)},
		{ID: "room-std-02", Name: "Standard 02", Type: "NORMAL", HourlyRate: decimal.NewFromInt(90000)},
		{ID: "room-std-03", Name: "Standard 03", Type: "NORMAL", HourlyRate: decimal.NewFromInt(90000)},
		{ID: "room-std-04", Name: "Standard 04", Type: "NORMAL", HourlyRate: decimal.NewFromInt(90000)},
	}
	products := []domain.Product{
		{ID: "prd-beer", Name: "Beer 330ml", Category: "drink", Unit: "can", SellPrice: decimal.NewFromInt(35000), CostPrice: decimal.NewFromInt(20000), Active: true},
		{ID: "prd-soda", Name: "Soft Drink", Category: "drink", Unit: "can", SellPrice: decimal.NewFromInt(15000), CostPrice: decimal.NewFromInt(7000), Active: true},
		{ID: "prd-water", Name: "Mineral Water", Category: "drink", Unit: "bottle", SellPrice: decimal.NewFromInt(10000), CostPrice: decimal.NewFromInt(4000), Active: true},
		{ID: "prd-fruit", Name: "Fruit Platter", Category: "food", Unit: "plate", SellPrice: decimal.NewFromInt(120000), CostPrice: decimal.NewFromInt(50000), Active: true},
		{ID: "prd-peanut", Name: "Roasted Peanuts", Category: "food", Unit: "plate", SellPrice: decimal.NewFromInt(30000), CostPrice: decimal.NewFromInt(9000), Active: true},
		{ID: "svc-staff", Name: "Staff Service", Category: "service", Unit: "hour", SellPrice: decimal.NewFromInt(60000), CostPrice: decimal.NewFromInt(30000), TimeBased: true, Active: true},
	}

	roomMap := make(map[string]domain.Room, len(rooms))
	for _, r := range rooms {
		r.StoreID = seedStoreID
		r.Status = domain.RoomAvailable
		roomMap[r.ID] = r
	}
	productMap := make(map[string]domain.Product, len(products))
	inventory := map[string]map[string]int{seedStoreID: {}}
	for _, p := range products {
		productMap[p.ID] = p
		if !p.TimeBased {
			inventory[seedStoreID][p.ID] = 100
		}
	}

	return &Store{
		rooms:           roomMap,
		products:        productMap,
		inventory:       inventory,
		settings:        map[string]domain.Settings{seedStoreID: domain.DefaultSettings(seedStoreID)},
		ordersByID:      make(map[string]*domain.Order),
		requestsByID:    make(map[string]*domain.BillEditRequest),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListRooms(_ context.Context, storeID string) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if storeID != "" && r.StoreID != storeID {
			continue
		}
		rooms = append(rooms, r)
	}
	slices.SortFunc(rooms, func(a, b domain.Room) int {
		return cmpString(a.Name, b.Name)
	})
	return rooms, nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) UpdateRoomStatus(_ context.Context, roomID string, status domain.RoomStatus) error {
	if !status.Valid() {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	s.rooms[roomID] = r
	return nil
}

// DeleteRoom removes a room from the catalog. Used to simulate a room that
// disappears while it still has a session.
func (s *Store) DeleteRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetStockMap(_ context.Context, storeID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock := make(map[string]int, len(s.inventory[storeID]))
	for productID, qty := range s.inventory[storeID] {
		stock[productID] = qty
	}
	return stock, nil
}

func (s *Store) GetSettings(_ context.Context, storeID string) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	if strings.TrimSpace(settings.StoreID) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	s.settings[settings.StoreID] = settings
	return nil
}

func (s *Store) CreatePaidOrder(_ context.Context, order domain.Order, decrements []domain.StockAdjustment) (*domain.Order, error) {
	if order.ID == "" || order.Status != domain.OrderPaid || order.EndTime == nil {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, fmt.Errorf("%w: order %s already finalized", domain.ErrPreconditionFailed, order.ID)
	}

	// no sufficiency check: stock may go negative
	storeStock, ok := s.inventory[order.StoreID]
	if !ok {
		storeStock = make(map[string]int)
		s.inventory[order.StoreID] = storeStock
	}
	for _, adj := range decrements {
		if adj.ProductID == "" || adj.Qty <= 0 {
			continue
		}
		storeStock[adj.ProductID] -= adj.Qty
	}

	order.UpdatedAt = time.Now().UTC()
	stored := cloneOrder(order)
	s.ordersByID[order.ID] = &stored
	out := cloneOrder(stored)
	return &out, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOrder(*order)
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.ordersByID {
		if storeID != "" && order.StoreID != storeID {
			continue
		}
		if order.EndTime == nil || order.EndTime.Before(from) || !order.EndTime.Before(to) {
			continue
		}
		result = append(result, cloneOrder(*order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.EndTime.Equal(*b.EndTime) {
			return cmpString(b.ID, a.ID)
		}
		if a.EndTime.After(*b.EndTime) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ApplyOrderEdit(_ context.Context, order domain.Order, requestID string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ordersByID[order.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Status != domain.OrderPaid {
		return nil, fmt.Errorf("%w: order %s is not paid", domain.ErrPreconditionFailed, order.ID)
	}

	var req *domain.BillEditRequest
	if requestID != "" {
		req, ok = s.requestsByID[requestID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if req.OrderID != order.ID || req.Status != domain.EditApproved {
			return nil, fmt.Errorf("%w: request %s is not an approved request for order %s", domain.ErrPreconditionFailed, requestID, order.ID)
		}
	}

	order.UpdatedAt = at
	stored := cloneOrder(order)
	s.ordersByID[order.ID] = &stored
	if req != nil {
		completedAt := at
		req.Status = domain.EditCompleted
		req.CompletedAt = &completedAt
	}
	out := cloneOrder(stored)
	return &out, nil
}

func (s *Store) IncrementPrintCount(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.PrintCount++
	out := cloneOrder(*order)
	return &out, nil
}

func (s *Store) CreateEditRequest(_ context.Context, req domain.BillEditRequest) (*domain.BillEditRequest, error) {
	if req.OrderID == "" || strings.TrimSpace(req.RequestedBy) == "" {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ordersByID[req.OrderID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.requestsByID {
		if existing.OrderID == req.OrderID && existing.Status.Active() {
			return nil, fmt.Errorf("%w: request %s is still %s", domain.ErrDuplicateRequest, existing.ID, existing.Status)
		}
	}
	if req.ID == "" {
		req.ID = xid.New("req")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.EditPending
	stored := cloneRequest(req)
	s.requestsByID[req.ID] = &stored
	out := cloneRequest(stored)
	return &out, nil
}

func (s *Store) GetEditRequest(_ context.Context, requestID string) (*domain.BillEditRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requestsByID[requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneRequest(*req)
	return &out, nil
}

func (s *Store) FindActiveEditRequest(_ context.Context, orderID string) (*domain.BillEditRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.requestsByID {
		if req.OrderID == orderID && req.Status.Active() {
			out := cloneRequest(*req)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ResolveEditRequest(_ context.Context, requestID string, status domain.EditRequestStatus, resolvedBy string, at time.Time) (*domain.BillEditRequest, error) {
	if status != domain.EditApproved && status != domain.EditRejected {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requestsByID[requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.EditPending {
		return nil, fmt.Errorf("%w: request %s is %s", domain.ErrPreconditionFailed, requestID, req.Status)
	}
	resolvedAt := at
	req.Status = status
	req.ResolvedBy = resolvedBy
	req.ResolvedAt = &resolvedAt
	out := cloneRequest(*req)
	return &out, nil
}

func (s *Store) ListEditRequests(_ context.Context, storeID string, status domain.EditRequestStatus, limit int) ([]domain.BillEditRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.BillEditRequest, 0, 16)
	for _, req := range s.requestsByID {
		if storeID != "" && req.StoreID != storeID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		result = append(result, cloneRequest(*req))
	}
	slices.SortFunc(result, func(a, b domain.BillEditRequest) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRecord
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	return s.updateUser(username, password, func(user *domain.UserAccount) { user.Password = password })
}

func (s *Store) UpdateSecondaryPIN(_ context.Context, username string, pinHash string) error {
	return s.updateUser(username, pinHash, func(user *domain.UserAccount) { user.SecondaryPIN = pinHash })
}

func (s *Store) updateUser(username string, value string, apply func(user *domain.UserAccount)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(value) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	apply(&user)
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Items = make([]domain.OrderItem, len(src.Items))
	for i, item := range src.Items {
		dup.Items[i] = item
		dup.Items[i].StartTime = cloneTime(item.StartTime)
		dup.Items[i].EndTime = cloneTime(item.EndTime)
	}
	dup.EndTime = cloneTime(src.EndTime)
	dup.PaymentStartedAt = cloneTime(src.PaymentStartedAt)
	return dup
}

func cloneRequest(src domain.BillEditRequest) domain.BillEditRequest {
	dup := src
	dup.ResolvedAt = cloneTime(src.ResolvedAt)
	dup.CompletedAt = cloneTime(src.CompletedAt)
	return dup
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
