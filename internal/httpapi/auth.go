package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chipheocrypto/c124/internal/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager issues access tokens and holds the secondary PINs used to
// authorize direct edits of paid bills.
type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	UpdateSecondaryPIN(ctx context.Context, username string, pinHash string) error
}

type credential struct {
	password string
	pin      string
	role     string
	active   bool
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := normalizeUsername(req.Username)
	cred, ok := a.lookup(username)
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "c124",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// SetSecondaryPIN replaces the caller's secondary PIN after re-checking the
// account password. Only privileged roles may hold one.
func (a *AuthManager) SetSecondaryPIN(ctx context.Context, username string, password string, pin string) error {
	username = normalizeUsername(username)
	cred, ok := a.lookup(username)
	if !ok || !verifyPassword(cred.password, password) {
		return errInvalidCredentials
	}
	if !(domain.Actor{Role: cred.role}).Privileged() {
		return fmt.Errorf("%w: secondary pin requires manager or admin role", domain.ErrPermissionDenied)
	}
	pin = strings.TrimSpace(pin)
	if err := validatePINStrength(pin); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if verifyPassword(cred.password, pin) {
		return fmt.Errorf("%w: pin must differ from password", domain.ErrInvalidInput)
	}

	hash, err := hashPassword(pin)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if a.userStore != nil {
		if err := a.userStore.UpdateSecondaryPIN(ctx, username, hash); err != nil {
			return err
		}
	}

	a.mu.Lock()
	cred.pin = hash
	a.users[username] = cred
	a.mu.Unlock()
	return nil
}

func (a *AuthManager) HasSecondaryCredential(_ context.Context, username string) bool {
	cred, ok := a.lookup(normalizeUsername(username))
	return ok && cred.active && isPasswordHash(cred.pin)
}

func (a *AuthManager) VerifySecondaryCredential(_ context.Context, username string, pin string) bool {
	cred, ok := a.lookup(normalizeUsername(username))
	if !ok || !cred.active {
		return false
	}
	return verifyPassword(cred.pin, pin)
}

func (a *AuthManager) lookup(username string) (credential, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cred, ok := a.users[username]
	return cred, ok
}

// bootstrapUsers loads user accounts from the user store into the in-memory
// credential cache. Legacy plain-text passwords and PINs are upgraded to
// bcrypt hashes in the store.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			if hashed, err := hashPassword(password); err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		pin := user.SecondaryPIN
		if pin != "" && !isPasswordHash(pin) {
			if hashed, err := hashPassword(pin); err == nil {
				pin = hashed
				_ = a.userStore.UpdateSecondaryPIN(ctx, username, hashed)
			}
		}
		a.users[username] = credential{
			password: password,
			pin:      pin,
			role:     user.Role,
			active:   user.Active,
		}
	}
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	if len(pin) < 6 {
		return errors.New("pin must be at least 6 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return errors.New("pin must be numeric")
		}
	}
	known := map[string]bool{
		"121212": true, "112233": true, "123123": true, "696969": true,
	}
	if known[pin] {
		return errors.New("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return errors.New("sequential PIN not allowed")
	}
	return nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
