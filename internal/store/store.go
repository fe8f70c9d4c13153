package store

import (
	"context"
	"errors"
	"time"

	"github.com/chipheocrypto/c124/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

type Repository interface {
	ListRooms(ctx context.Context, storeID string) ([]domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetStockMap(ctx context.Context, storeID string) (map[string]int, error)
	GetSettings(ctx context.Context, storeID string) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error
	// CreatePaidOrder appends a finalized order to history and applies the
	// stock decrements in the same unit of work.
	CreatePaidOrder(ctx context.Context, order domain.Order, decrements []domain.StockAdjustment) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Order, error)
	// ApplyOrderEdit overwrites a paid order and, when requestID is set, moves
	// that request from APPROVED to COMPLETED atomically.
	ApplyOrderEdit(ctx context.Context, order domain.Order, requestID string, at time.Time) (*domain.Order, error)
	IncrementPrintCount(ctx context.Context, orderID string) (*domain.Order, error)
	// CreateEditRequest fails with domain.ErrDuplicateRequest while another
	// PENDING or APPROVED request exists for the order.
	CreateEditRequest(ctx context.Context, req domain.BillEditRequest) (*domain.BillEditRequest, error)
	GetEditRequest(ctx context.Context, requestID string) (*domain.BillEditRequest, error)
	FindActiveEditRequest(ctx context.Context, orderID string) (*domain.BillEditRequest, error)
	// ResolveEditRequest decides a PENDING request.
	ResolveEditRequest(ctx context.Context, requestID string, status domain.EditRequestStatus, resolvedBy string, at time.Time) (*domain.BillEditRequest, error)
	ListEditRequests(ctx context.Context, storeID string, status domain.EditRequestStatus, limit int) ([]domain.BillEditRequest, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	UpdateSecondaryPIN(ctx context.Context, username string, pinHash string) error
}
