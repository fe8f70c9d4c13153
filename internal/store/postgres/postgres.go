package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/store"
	"github.com/chipheocrypto/c124/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListRooms(ctx context.Context, storeID string) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, room_type, hourly_rate, status
		FROM rooms
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]domain.Room, 0, 16)
	for rows.Next() {
		var r domain.Room
		if err := rows.Scan(&r.ID, &r.StoreID, &r.Name, &r.Type, &r.HourlyRate, &r.Status); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var r domain.Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, room_type, hourly_rate, status
		FROM rooms
		WHERE id = $1
	`, roomID).Scan(&r.ID, &r.StoreID, &r.Name, &r.Type, &r.HourlyRate, &r.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	if !status.Valid() {
		return store.ErrInvalidRecord
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET status = $2, updated_at = now() WHERE id = $1
	`, roomID, status)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit, sell_price, cost_price, time_based, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.SellPrice, &p.CostPrice, &p.TimeBased, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit, sell_price, cost_price, time_based, active
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.SellPrice, &p.CostPrice, &p.TimeBased, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetStockMap(ctx context.Context, storeID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty FROM inventory_stocks WHERE store_id = $1
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := make(map[string]int, 64)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		stock[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *Store) GetSettings(ctx context.Context, storeID string) (*domain.Settings, error) {
	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT store_id, time_rounding_minutes, staff_service_minutes, service_block_minutes, vat_rate,
			staff_edit_window_minutes, admin_auto_approve_minutes, manual_bill_approval,
			hard_bill_lock_minutes, low_stock_threshold, updated_at
		FROM store_settings
		WHERE store_id = $1
	`, storeID).Scan(&st.StoreID, &st.TimeRoundingMinutes, &st.StaffServiceMinutes, &st.ServiceBlockMinutes, &st.VATRate,
		&st.StaffEditWindowMinutes, &st.AdminAutoApproveMinutes, &st.ManualBillApproval,
		&st.HardBillLockMinutes, &st.LowStockThreshold, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

func (s *Store) SaveSettings(ctx context.Context, st domain.Settings) error {
	if strings.TrimSpace(st.StoreID) == "" {
		return store.ErrInvalidRecord
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_settings (
			store_id, time_rounding_minutes, staff_service_minutes, service_block_minutes, vat_rate,
			staff_edit_window_minutes, admin_auto_approve_minutes, manual_bill_approval,
			hard_bill_lock_minutes, low_stock_threshold, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (store_id) DO UPDATE SET
			time_rounding_minutes = EXCLUDED.time_rounding_minutes,
			staff_service_minutes = EXCLUDED.staff_service_minutes,
			service_block_minutes = EXCLUDED.service_block_minutes,
			vat_rate = EXCLUDED.vat_rate,
			staff_edit_window_minutes = EXCLUDED.staff_edit_window_minutes,
			admin_auto_approve_minutes = EXCLUDED.admin_auto_approve_minutes,
			manual_bill_approval = EXCLUDED.manual_bill_approval,
			hard_bill_lock_minutes = EXCLUDED.hard_bill_lock_minutes,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			updated_at = EXCLUDED.updated_at
	`, st.StoreID, st.TimeRoundingMinutes, st.StaffServiceMinutes, st.ServiceBlockMinutes, st.VATRate,
		st.StaffEditWindowMinutes, st.AdminAutoApproveMinutes, st.ManualBillApproval,
		st.HardBillLockMinutes, st.LowStockThreshold, st.UpdatedAt)
	return err
}

const orderColumns = `
	id, store_id, room_id, items, start_time, end_time, status, sub_total, vat_rate, vat_amount,
	total_amount, total_cost, total_profit, print_count, edit_count, payment_started_at,
	COALESCE(opened_by,''), COALESCE(closed_by,''), updated_at`

func (s *Store) CreatePaidOrder(ctx context.Context, order domain.Order, decrements []domain.StockAdjustment) (*domain.Order, error) {
	if order.ID == "" || order.Status != domain.OrderPaid || order.EndTime == nil {
		return nil, store.ErrInvalidRecord
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	order.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, store_id, room_id, items, start_time, end_time, status, sub_total, vat_rate, vat_amount,
			total_amount, total_cost, total_profit, print_count, edit_count, payment_started_at,
			opened_by, closed_by, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, order.ID, order.StoreID, order.RoomID, items, order.StartTime, nullTime(order.EndTime), order.Status,
		order.SubTotal, order.VATRate, order.VATAmount, order.TotalAmount, order.TotalCost, order.TotalProfit,
		order.PrintCount, order.EditCount, nullTime(order.PaymentStartedAt),
		nullIfEmpty(order.OpenedBy), nullIfEmpty(order.ClosedBy), order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: order %s already finalized", domain.ErrPreconditionFailed, order.ID)
		}
		return nil, err
	}

	for _, adj := range decrements {
		if adj.ProductID == "" || adj.Qty <= 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_stocks (store_id, product_id, qty, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (store_id, product_id)
			DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty, updated_at = now()
		`, order.StoreID, adj.ProductID, -adj.Qty); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

func (s *Store) ListOrders(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE store_id = $1 AND end_time >= $2 AND end_time < $3
		ORDER BY end_time DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) ApplyOrderEdit(ctx context.Context, order domain.Order, requestID string, at time.Time) (*domain.Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, order.ID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.OrderPaid {
		return nil, fmt.Errorf("%w: order %s is not paid", domain.ErrPreconditionFailed, order.ID)
	}

	if requestID != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE bill_edit_requests
			SET status = $3, completed_at = $4
			WHERE id = $1 AND order_id = $2 AND status = $5
		`, requestID, order.ID, domain.EditCompleted, at, domain.EditApproved)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: request %s is not an approved request for order %s", domain.ErrPreconditionFailed, requestID, order.ID)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET items = $2, start_time = $3, end_time = $4, sub_total = $5, vat_rate = $6, vat_amount = $7,
			total_amount = $8, total_cost = $9, total_profit = $10, edit_count = $11, updated_at = $12
		WHERE id = $1
	`, order.ID, items, order.StartTime, nullTime(order.EndTime), order.SubTotal, order.VATRate, order.VATAmount,
		order.TotalAmount, order.TotalCost, order.TotalProfit, order.EditCount, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.UpdatedAt = at
	return &order, nil
}

func (s *Store) IncrementPrintCount(ctx context.Context, orderID string) (*domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `
		UPDATE orders SET print_count = print_count + 1
		WHERE id = $1
		RETURNING `+orderColumns, orderID))
}

const requestColumns = `
	id, store_id, order_id, requested_by, reason, status, created_at,
	COALESCE(resolved_by,''), resolved_at, completed_at`

func (s *Store) CreateEditRequest(ctx context.Context, req domain.BillEditRequest) (*domain.BillEditRequest, error) {
	if req.OrderID == "" || strings.TrimSpace(req.RequestedBy) == "" {
		return nil, store.ErrInvalidRecord
	}
	if req.ID == "" {
		req.ID = xid.New("req")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.EditPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bill_edit_requests (id, store_id, order_id, requested_by, reason, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, req.ID, req.StoreID, req.OrderID, req.RequestedBy, req.Reason, req.Status, req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: order %s already has an active request", domain.ErrDuplicateRequest, req.OrderID)
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (s *Store) GetEditRequest(ctx context.Context, requestID string) (*domain.BillEditRequest, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM bill_edit_requests WHERE id = $1`, requestID))
}

func (s *Store) FindActiveEditRequest(ctx context.Context, orderID string) (*domain.BillEditRequest, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM bill_edit_requests
		WHERE order_id = $1 AND status IN ('PENDING', 'APPROVED')
	`, orderID))
}

func (s *Store) ResolveEditRequest(ctx context.Context, requestID string, status domain.EditRequestStatus, resolvedBy string, at time.Time) (*domain.BillEditRequest, error) {
	if status != domain.EditApproved && status != domain.EditRejected {
		return nil, store.ErrInvalidRecord
	}
	req, err := scanRequest(s.db.QueryRowContext(ctx, `
		UPDATE bill_edit_requests
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+requestColumns, requestID, status, resolvedBy, at))
	if errors.Is(err, store.ErrNotFound) {
		if _, getErr := s.GetEditRequest(ctx, requestID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: request %s is no longer pending", domain.ErrPreconditionFailed, requestID)
	}
	return req, err
}

func (s *Store) ListEditRequests(ctx context.Context, storeID string, status domain.EditRequestStatus, limit int) ([]domain.BillEditRequest, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM bill_edit_requests
		WHERE store_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, storeID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]domain.BillEditRequest, 0, 16)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, secondary_pin, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.SecondaryPIN), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, COALESCE(secondary_pin,''), active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.SecondaryPIN, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return s.updateUserColumn(ctx, "password", username, password)
}

func (s *Store) UpdateSecondaryPIN(ctx context.Context, username string, pinHash string) error {
	return s.updateUserColumn(ctx, "secondary_pin", username, pinHash)
}

func (s *Store) updateUserColumn(ctx context.Context, column string, username string, value string) error {
	if column != "password" && column != "secondary_pin" {
		return fmt.Errorf("unsupported user column")
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(value) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE app_users
		SET %s = $2, updated_at = now()
		WHERE username = $1
	`, column), username, value)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var items []byte
	var endTime, paymentStartedAt sql.NullTime
	err := row.Scan(&order.ID, &order.StoreID, &order.RoomID, &items, &order.StartTime, &endTime, &order.Status,
		&order.SubTotal, &order.VATRate, &order.VATAmount, &order.TotalAmount, &order.TotalCost, &order.TotalProfit,
		&order.PrintCount, &order.EditCount, &paymentStartedAt, &order.OpenedBy, &order.ClosedBy, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	order.StartTime = order.StartTime.UTC()
	order.EndTime = fromNullTime(endTime)
	order.PaymentStartedAt = fromNullTime(paymentStartedAt)
	order.UpdatedAt = order.UpdatedAt.UTC()
	return &order, nil
}

func scanRequest(row rowScanner) (*domain.BillEditRequest, error) {
	var req domain.BillEditRequest
	var resolvedAt, completedAt sql.NullTime
	err := row.Scan(&req.ID, &req.StoreID, &req.OrderID, &req.RequestedBy, &req.Reason, &req.Status, &req.CreatedAt,
		&req.ResolvedBy, &resolvedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	req.CreatedAt = req.CreatedAt.UTC()
	req.ResolvedAt = fromNullTime(resolvedAt)
	req.CompletedAt = fromNullTime(completedAt)
	return &req, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func fromNullTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
