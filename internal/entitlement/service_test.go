package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "entitlement-service/internal/common/errors"
	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Doubles
// ==========================

type memoryUsers struct {
	mu        sync.Mutex
	users     map[string]models.User
	updateErr error
}

func newMemoryUsers(users ...models.User) *memoryUsers {
	m := &memoryUsers{users: make(map[string]models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryUsers) Get(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memoryUsers) UpdateStatus(_ context.Context, userID string, status models.SubscriptionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Subscription.Status = status
	u.UpdatedAt = at
	m.users[userID] = u
	return nil
}

type memoryLedgers struct {
	mu      sync.Mutex
	ledgers map[string]*models.UsageLedger
	creates int
}

func newMemoryLedgers() *memoryLedgers {
	return &memoryLedgers{ledgers: make(map[string]*models.UsageLedger)}
}

func (m *memoryLedgers) Find(_ context.Context, userID, month string) (*models.UsageLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[userID+"/"+month]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memoryLedgers) GetOrCreate(_ context.Context, userID string, plan plans.Plan, now time.Time) (*models.UsageLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + MonthKey(now)
	l, ok := m.ledgers[key]
	if !ok {
		m.creates++
		l = &models.UsageLedger{
			ID:                key,
			UserID:            userID,
			Month:             MonthKey(now),
			Recordings:        models.RecordingUsage{Limit: plan.Limits.Recordings},
			Scripts:           models.CounterUsage{Limit: plan.Limits.Scripts},
			Exports:           models.CounterUsage{Limit: plan.Limits.Exports},
			AIAnalysisMinutes: models.MinutesUsage{Limit: plan.Limits.AIAnalysisMinutes},
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		m.ledgers[key] = l
	}
	cp := *l
	return &cp, nil
}

func (m *memoryLedgers) Increment(_ context.Context, ledgerID string, delta UsageDelta, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[ledgerID]
	if !ok {
		return ErrLedgerNotFound
	}
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

type MockLedgers struct {
	mock.Mock
}

func (m *MockLedgers) Find(ctx context.Context, userID, month string) (*models.UsageLedger, error) {
	args := m.Called(ctx, userID, month)
	l, _ := args.Get(0).(*models.UsageLedger)
	return l, args.Error(1)
}

func (m *MockLedgers) GetOrCreate(ctx context.Context, userID string, plan plans.Plan, now time.Time) (*models.UsageLedger, error) {
	args := m.Called(ctx, userID, plan, now)
	l, _ := args.Get(0).(*models.UsageLedger)
	return l, args.Error(1)
}

func (m *MockLedgers) Increment(ctx context.Context, ledgerID string, delta UsageDelta, now time.Time) error {
	args := m.Called(ctx, ledgerID, delta, now)
	return args.Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func createTestService(t *testing.T, users UserRepository, ledgers LedgerRepository, events EventPublisher) *Service {
	return NewService(ServiceOptions{
		Users:   users,
		Ledgers: ledgers,
		Events:  events,
		Logger:  logger.NewTestLogger(t),
		Timeout: time.Second,
		Clock:   func() time.Time { return testNow },
	})
}

func freeUser(id string) models.User {
	return models.User{ID: id, Subscription: models.Subscription{Plan: plans.Free, Status: models.StatusActive}}
}

// ==========================
// Subscription Tests
// ==========================

func TestService_CheckSubscription_ExpiredTrialPersists(t *testing.T) {
	user := models.User{
		ID: "trial-user",
		Subscription: models.Subscription{
			Plan:        plans.Pro,
			Status:      models.StatusTrialing,
			TrialEndsAt: timePtr(testNow.Add(-time.Hour)),
		},
	}
	users := newMemoryUsers(user)
	events := &recordingPublisher{}
	svc := createTestService(t, users, newMemoryLedgers(), events)
	ctx := context.Background()

	loaded, err := svc.LoadUser(ctx, user.ID)
	require.NoError(t, err)
	err = svc.CheckSubscription(ctx, loaded)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTrialExpired))
	assert.Equal(t, models.StatusExpired, loaded.Subscription.Status)

	// Every later request sees the persisted terminal state.
	again, err := svc.LoadUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, again.Subscription.Status)
	err = svc.CheckSubscription(ctx, again)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSubscriptionExpired))

	assert.Equal(t, []string{EventSubscriptionExpired}, events.types())
}

func TestService_CheckSubscription_PersistFailureStillRejects(t *testing.T) {
	user := models.User{
		ID:           "u1",
		Subscription: models.Subscription{Plan: plans.Pro, Status: models.StatusActive, EndDate: timePtr(testNow.Add(-time.Minute))},
	}
	users := newMemoryUsers(user)
	users.updateErr = errors.New("database unavailable")
	events := &recordingPublisher{}
	svc := createTestService(t, users, newMemoryLedgers(), events)

	err := svc.CheckSubscription(context.Background(), &user)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSubscriptionExpired))
	assert.Empty(t, events.types())
}

func TestService_CheckSubscription_Canceled(t *testing.T) {
	users := newMemoryUsers()
	svc := createTestService(t, users, newMemoryLedgers(), nil)

	grace := &models.User{ID: "c1", Subscription: models.Subscription{
		Plan: plans.Pro, Status: models.StatusCanceled, EndDate: timePtr(testNow.Add(24 * time.Hour)),
	}}
	assert.NoError(t, svc.CheckSubscription(context.Background(), grace))

	ended := &models.User{ID: "c1", Subscription: models.Subscription{
		Plan: plans.Pro, Status: models.StatusCanceled, EndDate: timePtr(testNow.Add(-24 * time.Hour)),
	}}
	err := svc.CheckSubscription(context.Background(), ended)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSubscriptionCanceled))
	assert.Equal(t, models.StatusCanceled, ended.Subscription.Status)
}

func TestService_CheckSubscription_PastDueAllowed(t *testing.T) {
	svc := createTestService(t, newMemoryUsers(), newMemoryLedgers(), nil)
	user := &models.User{ID: "pd", Subscription: models.Subscription{Plan: plans.Pro, Status: models.StatusPastDue}}

	assert.NoError(t, svc.CheckSubscription(context.Background(), user))
}

func TestService_LoadUser_Errors(t *testing.T) {
	svc := createTestService(t, newMemoryUsers(), newMemoryLedgers(), nil)

	_, err := svc.LoadUser(context.Background(), "nobody")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))
}

// ==========================
// Usage Tests
// ==========================

func TestService_FreeUserRecordingScenario(t *testing.T) {
	user := freeUser("new-user")
	ledgers := newMemoryLedgers()
	events := &recordingPublisher{}
	svc := createTestService(t, newMemoryUsers(user), ledgers, events)
	ctx := context.Background()

	ledger, err := svc.CheckUsageLimit(ctx, &user, models.ResourceRecordings, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ledger.Recordings.Limit)
	assert.Equal(t, int64(0), ledger.Recordings.Count)

	require.NoError(t, svc.RecordUsage(ctx, ledger.ID, UsageDelta{Resource: models.ResourceRecordings, Amount: 1, DurationSeconds: 30}))
	current, err := svc.Usage(ctx, user.ID, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Recordings.Count)
	assert.Equal(t, 30.0, current.Recordings.TotalDuration)

	for i := 0; i < 4; i++ {
		l, err := svc.CheckUsageLimit(ctx, &user, models.ResourceRecordings, 1)
		require.NoError(t, err)
		svc.TrackUsage(ctx, user.ID, l.ID, UsageDelta{Resource: models.ResourceRecordings, Amount: 1})
	}

	_, err = svc.CheckUsageLimit(ctx, &user, models.ResourceRecordings, 1)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUsageLimitExceeded, stdErr.Code)
	assert.Equal(t, int64(5), stdErr.Metadata["currentUsage"])
	assert.Equal(t, int64(5), stdErr.Metadata["limit"])

	assert.Equal(t, 1, ledgers.creates)
	assert.Equal(t, []string{EventUsageLimitReached}, events.types())
}

func TestService_LedgerAccessIsIdempotent(t *testing.T) {
	user := freeUser("u1")
	ledgers := newMemoryLedgers()
	svc := createTestService(t, newMemoryUsers(user), ledgers, nil)
	ctx := context.Background()

	first, err := svc.CheckUsageLimit(ctx, &user, models.ResourceScripts, 1)
	require.NoError(t, err)
	svc.TrackUsage(ctx, user.ID, first.ID, UsageDelta{Resource: models.ResourceScripts, Amount: 1})

	second, err := svc.CheckUsageLimit(ctx, &user, models.ResourceScripts, 1)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), second.Scripts.Count)
	assert.Equal(t, 1, ledgers.creates)
}

func TestService_CheckThenActOvershoot(t *testing.T) {
	user := freeUser("racer")
	ledgers := newMemoryLedgers()
	svc := createTestService(t, newMemoryUsers(user), ledgers, nil)
	ctx := context.Background()

	// Four recordings used; two requests both pass the check before either increments.
	l, err := svc.CheckUsageLimit(ctx, &user, models.ResourceRecordings, 1)
	require.NoError(t, err)
	require.NoError(t, svc.RecordUsage(ctx, l.ID, UsageDelta{Resource: models.ResourceRecordings, Amount: 4}))

	a, errA := svc.CheckUsageLimit(ctx, &user, models.ResourceRecordings, 1)
	b, errB := svc.CheckUsageLimit(ctx, &user, models.ResourceRecordings, 1)
	require.NoError(t, errA)
	require.NoError(t, errB)
	svc.TrackUsage(ctx, user.ID, a.ID, UsageDelta{Resource: models.ResourceRecordings, Amount: 1})
	svc.TrackUsage(ctx, user.ID, b.ID, UsageDelta{Resource: models.ResourceRecordings, Amount: 1})

	final, err := svc.Usage(ctx, user.ID, MonthKey(testNow))
	require.NoError(t, err)
	assert.Equal(t, int64(6), final.Recordings.Count)
}

func TestService_CheckUsageLimit_LedgerFailureFailsClosed(t *testing.T) {
	user := freeUser("u1")
	ledgers := new(MockLedgers)
	ledgers.On("GetOrCreate", mock.Anything, "u1", plans.ForUser(plans.Free), testNow).
		Return(nil, ErrLedgerCreateFailed)
	svc := createTestService(t, newMemoryUsers(user), ledgers, nil)

	_, err := svc.CheckUsageLimit(context.Background(), &user, models.ResourceRecordings, 1)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalError))
	ledgers.AssertExpectations(t)
}

func TestService_TrackUsage_FailsOpen(t *testing.T) {
	ledgers := new(MockLedgers)
	delta := UsageDelta{Resource: models.ResourceExports, Amount: 1}
	ledgers.On("Increment", mock.Anything, "ledger-9", delta, testNow).Return(ErrIncrementFailed)
	svc := createTestService(t, newMemoryUsers(), ledgers, nil)

	assert.NotPanics(t, func() {
		svc.TrackUsage(context.Background(), "u1", "ledger-9", delta)
	})
	assert.ErrorIs(t, svc.RecordUsage(context.Background(), "ledger-9", delta), ErrIncrementFailed)
	ledgers.AssertNumberOfCalls(t, "Increment", 2)
}

func TestService_PublishFailureIsIgnored(t *testing.T) {
	user := freeUser("u1")
	ledgers := newMemoryLedgers()
	events := &recordingPublisher{err: errors.New("sns throttled")}
	svc := createTestService(t, newMemoryUsers(user), ledgers, events)
	ctx := context.Background()

	l, err := svc.CheckUsageLimit(ctx, &user, models.ResourceExports, 1)
	require.NoError(t, err)
	require.NoError(t, svc.RecordUsage(ctx, l.ID, UsageDelta{Resource: models.ResourceExports, Amount: 3}))

	_, err = svc.CheckUsageLimit(ctx, &user, models.ResourceExports, 1)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUsageLimitExceeded))
	assert.Len(t, events.types(), 1)
}

// ==========================
// Plan Info Tests
// ==========================

func TestService_PlanInfo(t *testing.T) {
	user := models.User{ID: "p1", Subscription: models.Subscription{Plan: plans.Pro, Status: models.StatusActive}}
	svc := createTestService(t, newMemoryUsers(user), newMemoryLedgers(), nil)

	info, err := svc.PlanInfo(context.Background(), &user)

	require.NoError(t, err)
	assert.Equal(t, plans.Pro, info.Plan)
	assert.Equal(t, int64(50), info.Limits.Recordings)
	assert.True(t, info.Features[plans.FeatureAICoaching])
	assert.False(t, info.Features[plans.FeatureCustomBranding])
	require.NotNil(t, info.Usage)
	assert.Equal(t, "2026-10", info.Usage.Month)
}

func TestService_GateWrappers(t *testing.T) {
	svc := createTestService(t, newMemoryUsers(), newMemoryLedgers(), nil)
	ctx := context.Background()
	free := freeUser("f")

	assert.True(t, apperrors.HasCode(svc.CheckFeature(ctx, &free, plans.FeatureExportOptions), apperrors.ErrCodeFeatureNotAvailable))
	assert.True(t, apperrors.HasCode(svc.CheckFileSize(ctx, &free, 200*bytesPerMB), apperrors.ErrCodeFileSizeExceeded))
	assert.True(t, apperrors.HasCode(svc.CheckQuality(ctx, &free, QualityRequest{Resolution: "4k"}), apperrors.ErrCodeResolutionNotAvailable))
	assert.True(t, apperrors.HasCode(svc.RequirePlan(ctx, &free, plans.Pro), apperrors.ErrCodePlanUpgradeRequired))
}
