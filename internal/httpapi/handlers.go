package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSecondaryPIN(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	if !a.pinLimiter.Allow(pinKey(r, actor)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many pin attempts"))
		return
	}

	var req domain.SecondaryPINRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.auth.SetSecondaryPIN(r.Context(), actor.Username, req.Password, req.PIN); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func pinKey(r *http.Request, actor domain.Actor) string {
	return clientKey(r) + "|" + actor.Username
}

func (a *API) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.service.ListRooms(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	stock, low, err := a.service.StockLevels(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": stock, "low_stock": low})
}

func (a *API) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.OpenSession(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	a.sessionResult(w, r)(a.service.Preview(r.Context(), chi.URLParam(r, "roomID")))
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req domain.AddItemRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.sessionResult(w, r)(a.service.AddItem(r.Context(), chi.URLParam(r, "roomID"), req))
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	a.sessionResult(w, r)(a.service.RemoveItem(r.Context(), chi.URLParam(r, "roomID"), chi.URLParam(r, "itemID")))
}

func (a *API) handleStopItem(w http.ResponseWriter, r *http.Request) {
	a.sessionResult(w, r)(a.service.StopTimeItem(r.Context(), chi.URLParam(r, "roomID"), chi.URLParam(r, "itemID")))
}

func (a *API) handleResumeItem(w http.ResponseWriter, r *http.Request) {
	a.sessionResult(w, r)(a.service.ResumeTimeItem(r.Context(), chi.URLParam(r, "roomID"), chi.URLParam(r, "itemID")))
}

func (a *API) handleItemTimes(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemTimesRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.sessionResult(w, r)(a.service.SetItemTimes(r.Context(), chi.URLParam(r, "roomID"), chi.URLParam(r, "itemID"), req))
}

func (a *API) handleAdjustItemStart(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustStartRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.sessionResult(w, r)(a.service.AdjustItemStart(r.Context(), chi.URLParam(r, "roomID"), chi.URLParam(r, "itemID"), req.Minutes))
}

func (a *API) handleAdjustStart(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustStartRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.sessionResult(w, r)(a.service.AdjustStartTime(r.Context(), chi.URLParam(r, "roomID"), req.Minutes))
}

func (a *API) handleSetStart(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionStartRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.sessionResult(w, r)(a.service.SetStartTime(r.Context(), chi.URLParam(r, "roomID"), req.StartTime))
}

func (a *API) handleMoveSession(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveSessionRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.sessionResult(w, r)(a.service.MoveSession(r.Context(), chi.URLParam(r, "roomID"), req.TargetRoomID))
}

func (a *API) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	a.sessionResult(w, r)(a.service.InitiatePayment(r.Context(), chi.URLParam(r, "roomID")))
}

func (a *API) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	a.sessionResult(w, r)(a.service.CancelPayment(r.Context(), chi.URLParam(r, "roomID")))
}

// sessionResult writes the outcome of a session operation.
func (a *API) sessionResult(w http.ResponseWriter, r *http.Request) func(domain.SessionView, error) {
	return func(view domain.SessionView, err error) {
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.Checkout(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.RoomStatusRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	room, err := a.service.SetRoomStatus(r.Context(), chi.URLParam(r, "roomID"), req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": room})
}

func (a *API) handleForceDiscard(w http.ResponseWriter, r *http.Request) {
	var req domain.ForceDiscardRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.ForceDiscardSession(r.Context(), chi.URLParam(r, "roomID"), req.Target, req.Confirm)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discarded": order})
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListOrders(r.Context(), query.Get("store_id"), query.Get("date"), parsePositiveLimit(query.Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	a.orderResult(w, r)(a.service.GetOrder(r.Context(), chi.URLParam(r, "orderID")))
}

func (a *API) handlePrint(w http.ResponseWriter, r *http.Request) {
	a.orderResult(w, r)(a.service.RecordPrint(r.Context(), chi.URLParam(r, "orderID")))
}

func (a *API) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplyEditRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SecondaryPIN != "" {
		actor, _ := service.ActorFromContext(r.Context())
		if !a.pinLimiter.Allow(pinKey(r, actor)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many pin attempts"))
			return
		}
	}
	a.orderResult(w, r)(a.service.ApplyEdit(r.Context(), chi.URLParam(r, "orderID"), domain.BillEdit{
		Items:        req.Items,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		RequestID:    strings.TrimSpace(req.RequestID),
		SecondaryPIN: req.SecondaryPIN,
	}))
}

func (a *API) orderResult(w http.ResponseWriter, r *http.Request) func(domain.Order, error) {
	return func(order domain.Order, err error) {
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	}
}

func (a *API) handleCreateEditRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.EditRequestCreate
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := a.service.RequestEdit(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": created})
}

func (a *API) handleListEditRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListEditRequests(r.Context(), query.Get("store_id"), query.Get("status"), parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleApproveEditRequest(w http.ResponseWriter, r *http.Request) {
	a.requestResult(w, r)(a.service.ApproveEditRequest(r.Context(), chi.URLParam(r, "requestID")))
}

func (a *API) handleRejectEditRequest(w http.ResponseWriter, r *http.Request) {
	a.requestResult(w, r)(a.service.RejectEditRequest(r.Context(), chi.URLParam(r, "requestID")))
}

func (a *API) requestResult(w http.ResponseWriter, r *http.Request) func(domain.BillEditRequest, error) {
	return func(req domain.BillEditRequest, err error) {
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"request": req})
	}
}

func (a *API) handleAuthorizeDirectEdit(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	if !a.pinLimiter.Allow(pinKey(r, actor)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many pin attempts"))
		return
	}

	var req domain.DirectEditAuthorizeRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	orderID := chi.URLParam(r, "orderID")
	if err := a.service.AuthorizeDirectEdit(r.Context(), orderID, req.SecondaryPIN); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorized": true, "order_id": orderID})
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.GetSettings(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingsUpdateRequest
	if err := a.bind(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settings, err := a.service.UpdateSettings(r.Context(), r.URL.Query().Get("store_id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("store_id"), query.Get("date"), parsePositiveLimit(query.Get("limit"), 100, 1000))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
