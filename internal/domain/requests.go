package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type SecondaryPINRequest struct {
	Password string `json:"password" validate:"required"`
	PIN      string `json:"pin" validate:"required,numeric,min=6,max=12"`
}

type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type AdjustStartRequest struct {
	Minutes int `json:"minutes" validate:"required,min=-1440,max=1440"`
}

type ItemTimesRequest struct {
	StartTime time.Time  `json:"start_time" validate:"required"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

type SessionStartRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
}

type MoveSessionRequest struct {
	TargetRoomID string `json:"target_room_id" validate:"required"`
}

type RoomStatusRequest struct {
	Status RoomStatus `json:"status" validate:"required,oneof=AVAILABLE CLEANING ERROR"`
}

type ForceDiscardRequest struct {
	Target  RoomStatus `json:"target" validate:"required,oneof=AVAILABLE CLEANING ERROR"`
	Confirm bool       `json:"confirm"`
}

type EditRequestCreate struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type ApplyEditRequest struct {
	Items        []OrderItem `json:"items" validate:"dive"`
	StartTime    time.Time   `json:"start_time" validate:"required"`
	EndTime      time.Time   `json:"end_time" validate:"required"`
	RequestID    string      `json:"request_id,omitempty"`
	SecondaryPIN string      `json:"secondary_pin,omitempty"`
}

type DirectEditAuthorizeRequest struct {
	SecondaryPIN string `json:"secondary_pin" validate:"required"`
}

type SettingsUpdateRequest struct {
	TimeRoundingMinutes     *int             `json:"time_rounding_minutes,omitempty" validate:"omitempty,min=1,max=60"`
	StaffServiceMinutes     *int             `json:"staff_service_minutes,omitempty" validate:"omitempty,min=0,max=240"`
	ServiceBlockMinutes     *int             `json:"service_block_minutes,omitempty" validate:"omitempty,min=1,max=240"`
	VATRate                 *decimal.Decimal `json:"vat_rate,omitempty"`
	StaffEditWindowMinutes  *int             `json:"staff_edit_window_minutes,omitempty" validate:"omitempty,min=0,max=1440"`
	AdminAutoApproveMinutes *int             `json:"admin_auto_approve_minutes,omitempty" validate:"omitempty,min=0,max=10080"`
	ManualBillApproval      *bool            `json:"manual_bill_approval,omitempty"`
	HardBillLockMinutes     *int             `json:"hard_bill_lock_minutes,omitempty" validate:"omitempty,min=0,max=525600"`
	LowStockThreshold       *int             `json:"low_stock_threshold,omitempty" validate:"omitempty,min=0"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

type EditRequestListResponse struct {
	Requests []BillEditRequest `json:"requests"`
}
