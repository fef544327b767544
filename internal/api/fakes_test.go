package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"entitlement-service/internal/common/auth"
	"entitlement-service/internal/common/database"
	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/entitlement"
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "api-test-secret"

var testNow = time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

// ==========================
// In-Memory Stores
// ==========================

type fakeStore struct {
	mu           sync.Mutex
	users        map[string]models.User
	ledgers      map[string]*models.UsageLedger
	increments   int
	ledgerErr    error
	incrementErr error
}

func newFakeStore(users ...models.User) *fakeStore {
	s := &fakeStore{
		users:   make(map[string]models.User),
		ledgers: make(map[string]*models.UsageLedger),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, entitlement.ErrUserNotFound
	}
	return &u, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, userID string, status models.SubscriptionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.Subscription.Status = status
	u.UpdatedAt = at
	s.users[userID] = u
	return nil
}

func (s *fakeStore) Find(_ context.Context, userID, month string) (*models.UsageLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[userID+"/"+month]
	if !ok {
		return nil, entitlement.ErrLedgerNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) GetOrCreate(_ context.Context, userID string, plan plans.Plan, now time.Time) (*models.UsageLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledgerErr != nil {
		return nil, s.ledgerErr
	}
	key := userID + "/" + entitlement.MonthKey(now)
	l, ok := s.ledgers[key]
	if !ok {
		l = &models.UsageLedger{
			ID:                key,
			UserID:            userID,
			Month:             entitlement.MonthKey(now),
			Recordings:        models.RecordingUsage{Limit: plan.Limits.Recordings},
			Scripts:           models.CounterUsage{Limit: plan.Limits.Scripts},
			Exports:           models.CounterUsage{Limit: plan.Limits.Exports},
			AIAnalysisMinutes: models.MinutesUsage{Limit: plan.Limits.AIAnalysisMinutes},
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		s.ledgers[key] = l
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) Increment(_ context.Context, ledgerID string, delta entitlement.UsageDelta, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incrementErr != nil {
		return s.incrementErr
	}
	l, ok := s.ledgers[ledgerID]
	if !ok {
		return entitlement.ErrLedgerNotFound
	}
	s.increments++
	switch delta.Resource {
	case models.ResourceRecordings:
		l.Recordings.Count += delta.Amount
		l.Recordings.TotalDuration += delta.DurationSeconds
	case models.ResourceScripts:
		l.Scripts.Count += delta.Amount
	case models.ResourceExports:
		l.Exports.Count += delta.Amount
	case models.ResourceAIAnalysisMinutes:
		l.AIAnalysisMinutes.Used += delta.Amount
	}
	l.Bandwidth.Used += delta.BandwidthMB
	l.UpdatedAt = now
	return nil
}

func (s *fakeStore) ledger(userID string) *models.UsageLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[userID+"/"+entitlement.MonthKey(testNow)]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// ==========================
// Router Helpers
// ==========================

func newTestService(t *testing.T, store *fakeStore) *entitlement.Service {
	return entitlement.NewService(entitlement.ServiceOptions{
		Users:   store,
		Ledgers: store,
		Logger:  logger.NewTestLogger(t),
		Clock:   func() time.Time { return testNow },
	})
}

func createTestRouter(t *testing.T, store *fakeStore) *gin.Engine {
	verifier, err := auth.NewVerifier(testSecret, "", 0)
	require.NoError(t, err)
	return NewRouter(RouterConfig{
		Service:  newTestService(t, store),
		Verifier: verifier,
		Logger:   logger.NewTestLogger(t),
		Readiness: map[string]database.Pinger{
			"postgres": fakePinger{},
			"redis":    fakePinger{},
		},
	})
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func userOnPlan(id, plan string) models.User {
	return models.User{
		ID:           id,
		Email:        id + "@example.com",
		Subscription: models.Subscription{Plan: plan, Status: models.StatusActive},
	}
}

var errStoreDown = errors.New("store unavailable")
