package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chipheocrypto/c124/internal/cache"
	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/lock"
	"github.com/chipheocrypto/c124/internal/obs"
	"github.com/chipheocrypto/c124/internal/session"
	"github.com/chipheocrypto/c124/internal/store"
	"github.com/chipheocrypto/c124/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// CredentialVerifier answers secondary-credential questions for the direct
// edit path. A nil verifier denies every direct edit.
type CredentialVerifier interface {
	HasSecondaryCredential(ctx context.Context, username string) bool
	VerifySecondaryCredential(ctx context.Context, username string, pin string) bool
}

type Service struct {
	repo           store.Repository
	sessions       *session.Store
	locker         lock.Locker
	lockTTL        time.Duration
	settingsCache  cache.SettingsCache
	settingsTTL    time.Duration
	credentials    CredentialVerifier
	metrics        *obs.Metrics
	logger         zerolog.Logger
	now            func() time.Time
	defaultStoreID string
}

type Option func(*Service)

func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithSettingsCache(c cache.SettingsCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.settingsCache = c
		}
		if ttl > 0 {
			s.settingsTTL = ttl
		}
	}
}

func WithCredentials(v CredentialVerifier) Option {
	return func(s *Service) { s.credentials = v }
}

func WithMetrics(m *obs.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces the wall clock. Tests use it to step through edit windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, defaultStoreID string, opts ...Option) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}

	s := &Service{
		repo:           repo,
		sessions:       session.NewStore(),
		locker:         lock.NewLocalLocker(),
		lockTTL:        15 * time.Second,
		settingsCache:  cache.NoopSettingsCache{},
		settingsTTL:    30 * time.Second,
		logger:         zerolog.Nop(),
		now:            time.Now,
		defaultStoreID: defaultStoreID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) actor(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

func (s *Service) requirePrivileged(ctx context.Context, action string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.Privileged() {
		return domain.Actor{}, fmt.Errorf("%w: %s requires a manager or admin", domain.ErrPermissionDenied, action)
	}
	return actor, nil
}

func (s *Service) storeID(storeID string) string {
	if strings.TrimSpace(storeID) == "" {
		return s.defaultStoreID
	}
	return storeID
}

// settings resolves the store settings through the cache. A store without a
// saved row runs on defaults.
func (s *Service) settings(ctx context.Context, storeID string) (domain.Settings, error) {
	storeID = s.storeID(storeID)

	cached, ok, err := s.settingsCache.Get(ctx, storeID)
	if err != nil {
		s.logger.Warn().Err(err).Str("store_id", storeID).Msg("settings cache read failed")
	}
	if ok && cached != nil {
		return *cached, nil
	}

	var settings domain.Settings
	stored, err := s.repo.GetSettings(ctx, storeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		settings = domain.DefaultSettings(storeID)
	case err != nil:
		return domain.Settings{}, err
	default:
		settings = *stored
	}

	if err := s.settingsCache.Set(ctx, &settings, s.settingsTTL); err != nil {
		s.logger.Warn().Err(err).Str("store_id", storeID).Msg("settings cache write failed")
	}
	return settings, nil
}

// room loads a room and registers it with the session store. The returned
// status is the live one.
func (s *Service) room(ctx context.Context, roomID string) (domain.Room, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Room{}, fmt.Errorf("%w: room %s", store.ErrNotFound, roomID)
		}
		return domain.Room{}, err
	}
	room.Status = s.track(ctx, *room)
	return *room, nil
}

func (s *Service) track(ctx context.Context, room domain.Room) domain.RoomStatus {
	status, downgraded := s.sessions.Track(room.ID, room.Status)
	if downgraded {
		s.logger.Warn().
			Str("room_id", room.ID).
			Str("persisted_status", string(room.Status)).
			Msg("room held a session that did not survive restart; marked ERROR")
		s.persistStatus(ctx, room.ID, status)
	}
	if live, ok := s.sessions.Status(room.ID); ok {
		return live
	}
	return status
}

func (s *Service) persistStatus(ctx context.Context, roomID string, status domain.RoomStatus) {
	if err := s.repo.UpdateRoomStatus(ctx, roomID, status); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Str("status", string(status)).Msg("failed to persist room status")
	}
}

func (s *Service) withRoom(ctx context.Context, roomID string, fn func(context.Context) error) error {
	return s.locker.WithLock(ctx, lock.RoomKey(roomID), s.lockTTL, fn)
}

func (s *Service) withRooms(ctx context.Context, roomIDs []string, fn func(context.Context) error) error {
	keys := make([]string, 0, len(roomIDs))
	for _, id := range roomIDs {
		keys = append(keys, lock.RoomKey(id))
	}
	return lock.WithLocks(ctx, s.locker, keys, s.lockTTL, fn)
}

func (s *Service) withOrder(ctx context.Context, orderID string, fn func(context.Context) error) error {
	return s.locker.WithLock(ctx, lock.OrderKey(orderID), s.lockTTL, fn)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor := s.actor(ctx)
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.storeID(storeID),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clock(),
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// parseDay turns a YYYY-MM-DD string into a UTC day range; empty means today.
func (s *Service) parseDay(date string) (time.Time, time.Time, error) {
	var from time.Time
	if strings.TrimSpace(date) == "" {
		now := s.clock()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		from = parsed.UTC()
	}
	return from, from.Add(24 * time.Hour), nil
}
