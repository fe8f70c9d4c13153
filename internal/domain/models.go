package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RoomStatus string

const (
	RoomAvailable RoomStatus = "AVAILABLE"
	RoomOccupied  RoomStatus = "OCCUPIED"
	RoomPayment   RoomStatus = "PAYMENT"
	RoomCleaning  RoomStatus = "CLEANING"
	RoomError     RoomStatus = "ERROR"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomAvailable, RoomOccupied, RoomPayment, RoomCleaning, RoomError:
		return true
	default:
		return false
	}
}

// HoldsSession reports whether a room in this status must have an active order.
func (s RoomStatus) HoldsSession() bool {
	return s == RoomOccupied || s == RoomPayment
}

type Room struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"store_id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Status     RoomStatus      `json:"status"`
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Unit      string          `json:"unit"`
	SellPrice decimal.Decimal `json:"sell_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	TimeBased bool            `json:"time_based"`
	Active    bool            `json:"active"`
}

type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

// OrderItem is either quantity-metered or time-metered; TimeBased never
// changes after the line is created.
type OrderItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	SellPrice decimal.Decimal `json:"sell_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	TimeBased bool            `json:"time_based"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
}

type Order struct {
	ID               string          `json:"id"`
	StoreID          string          `json:"store_id"`
	RoomID           string          `json:"room_id"`
	Items            []OrderItem     `json:"items"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          *time.Time      `json:"end_time,omitempty"`
	Status           OrderStatus     `json:"status"`
	SubTotal         decimal.Decimal `json:"sub_total"`
	VATRate          decimal.Decimal `json:"vat_rate"`
	VATAmount        decimal.Decimal `json:"vat_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	PrintCount       int             `json:"print_count"`
	EditCount        int             `json:"edit_count"`
	PaymentStartedAt *time.Time      `json:"payment_started_at,omitempty"`
	OpenedBy         string          `json:"opened_by,omitempty"`
	ClosedBy         string          `json:"closed_by,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type LineCharge struct {
	ItemID        string          `json:"item_id"`
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	TimeBased     bool            `json:"time_based"`
	Quantity      int             `json:"quantity"`
	BilledMinutes int64           `json:"billed_minutes,omitempty"`
	Revenue       decimal.Decimal `json:"revenue"`
	Cost          decimal.Decimal `json:"cost"`
}

type BillBreakdown struct {
	BilledMinutes int64           `json:"billed_minutes"`
	RoomCost      decimal.Decimal `json:"room_cost"`
	Lines         []LineCharge    `json:"lines"`
	SubTotal      decimal.Decimal `json:"sub_total"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	VATAmount     decimal.Decimal `json:"vat_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	EvaluatedAt   time.Time       `json:"evaluated_at"`
}

type SessionView struct {
	Room   Room          `json:"room"`
	Order  Order         `json:"order"`
	Bill   BillBreakdown `json:"bill"`
	Frozen bool          `json:"frozen"`
}

type RoomBoardEntry struct {
	Room    Room   `json:"room"`
	OrderID string `json:"order_id,omitempty"`
}

type EditRequestStatus string

const (
	EditPending   EditRequestStatus = "PENDING"
	EditApproved  EditRequestStatus = "APPROVED"
	EditRejected  EditRequestStatus = "REJECTED"
	EditCompleted EditRequestStatus = "COMPLETED"
)

// Active reports whether the request still blocks a new request on the same order.
func (s EditRequestStatus) Active() bool {
	return s == EditPending || s == EditApproved
}

type BillEditRequest struct {
	ID                  string            `json:"id"`
	StoreID             string            `json:"store_id"`
	OrderID             string            `json:"order_id"`
	RequestedBy         string            `json:"requested_by"`
	Reason              string            `json:"reason"`
	Status              EditRequestStatus `json:"status"`
	CreatedAt           time.Time         `json:"created_at"`
	ResolvedBy          string            `json:"resolved_by,omitempty"`
	ResolvedAt          *time.Time        `json:"resolved_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	AutoApproveEligible bool              `json:"auto_approve_eligible"`
}

// BillEdit carries the replacement inputs for a paid order.
type BillEdit struct {
	Items        []OrderItem
	StartTime    time.Time
	EndTime      time.Time
	RequestID    string
	SecondaryPIN string
}

type Settings struct {
	StoreID                 string          `json:"store_id"`
	TimeRoundingMinutes     int             `json:"time_rounding_minutes"`
	StaffServiceMinutes     int             `json:"staff_service_minutes"`
	ServiceBlockMinutes     int             `json:"service_block_minutes"`
	VATRate                 decimal.Decimal `json:"vat_rate"`
	StaffEditWindowMinutes  int             `json:"staff_edit_window_minutes"`
	AdminAutoApproveMinutes int             `json:"admin_auto_approve_minutes"`
	ManualBillApproval      bool            `json:"manual_bill_approval"`
	HardBillLockMinutes     int             `json:"hard_bill_lock_minutes"`
	LowStockThreshold       int             `json:"low_stock_threshold"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

func DefaultSettings(storeID string) Settings {
	return Settings{
		StoreID:                 storeID,
		TimeRoundingMinutes:     1,
		StaffServiceMinutes:     0,
		ServiceBlockMinutes:     10,
		VATRate:                 decimal.NewFromInt(10),
		StaffEditWindowMinutes:  5,
		AdminAutoApproveMinutes: 0,
		ManualBillApproval:      false,
		HardBillLockMinutes:     1440,
		LowStockThreshold:       5,
	}
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleManager
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username     string    `json:"username"`
	Password     string    `json:"-"`
	Role         string    `json:"role"`
	SecondaryPIN string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
