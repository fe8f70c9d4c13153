package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	res := call(t, newTestAPI(t).Handler(), http.MethodGet, "/healthz", "", nil)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightAllowsConfiguredOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rooms/room-std-01/payment", nil)
	req.Header.Set("Origin", "http://till.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	res := httptest.NewRecorder()
	newTestAPI(t).Handler().ServeHTTP(res, req)

	require.Less(t, res.Code, http.StatusMultipleChoices)
	require.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.MethodDelete, res.Header().Get("Access-Control-Allow-Methods"))
}

func TestLoginRateLimitReturns429(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for i := 0; i < 6; i++ {
		res := call(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	newTestAPI(t).Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestSecondaryPINRateLimitReturns429(t *testing.T) {
	handler := newTestAPI(t).Handler()
	staff := login(t, handler, "staff", "staff123")
	manager := login(t, handler, "manager", "manager123")
	order := paidOrderViaHTTP(t, handler, staff, "room-std-01")

	for i := 0; i < 9; i++ {
		res := call(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/direct-edit/authorize", manager, domain.DirectEditAuthorizeRequest{SecondaryPIN: "000001"})

		if i < 8 && res.Code != http.StatusForbidden {
			t.Fatalf("attempt %d expected 403 before pin limit, got %d", i+1, res.Code)
		}
		if i == 8 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 9 expected 429, got %d", res.Code)
		}
	}
}

func TestStaffCannotReadAuditLogs(t *testing.T) {
	handler := newTestAPI(t).Handler()
	staff := login(t, handler, "staff", "staff123")

	res := call(t, handler, http.MethodGet, "/api/v1/audit-logs", staff, nil)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: order x", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: wrong", domain.ErrPermissionDenied), http.StatusForbidden},
		{fmt.Errorf("%w: locked", domain.ErrWindowExpired), http.StatusLocked},
		{fmt.Errorf("%w: busy", domain.ErrPreconditionFailed), http.StatusConflict},
		{domain.ErrDuplicateRequest, http.StatusConflict},
		{fmt.Errorf("%w: end", domain.ErrInvalidTimeRange), http.StatusBadRequest},
		{fmt.Errorf("%w: field", domain.ErrInvalidInput), http.StatusBadRequest},
		{errInvalidCredentials, http.StatusUnauthorized},
		{errors.New("pq: connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	res := httptest.NewRecorder()
	writeError(res, http.StatusInternalServerError, errors.New("dial tcp 10.0.0.5:5432: refused"))

	require.Equal(t, http.StatusInternalServerError, res.Code)
	require.NotContains(t, res.Body.String(), "10.0.0.5")
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}
