package entitlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/models"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUserNotFound     = errors.New("USER_NOT_FOUND")
	ErrUserLookupFailed = errors.New("USER_LOOKUP_FAILED")
	ErrStatusUpdate     = errors.New("SUBSCRIPTION_STATUS_UPDATE_FAILED")
)

const userCachePrefix = "sub:"

// UserCacheKey is the redis key holding a user's cached subscription record.
func UserCacheKey(userID string) string {
	return userCachePrefix + userID
}

// UserStore reads users through a redis cache and writes status transitions
// straight to postgres, evicting the cached copy.
type UserStore struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

// NewUserStore builds the store. A nil redis client disables caching.
func NewUserStore(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *UserStore {
	return &UserStore{
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "user-store"}),
	}
}

const selectUserQuery = `SELECT id, email, plan, subscription_status, trial_ends_at, subscription_end_date, updated_at FROM users WHERE id = $1`

const updateStatusQuery = `UPDATE users SET subscription_status = $2, updated_at = $3 WHERE id = $1`

func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	if user, ok := s.fromCache(ctx, userID); ok {
		return user, nil
	}

	var (
		user        models.User
		status      string
		trialEndsAt sql.NullTime
		endDate     sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, selectUserQuery, userID).Scan(
		&user.ID, &user.Email, &user.Subscription.Plan, &status,
		&trialEndsAt, &endDate, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUserLookupFailed, err)
	}

	user.Subscription.Status = models.SubscriptionStatus(status)
	if trialEndsAt.Valid {
		t := trialEndsAt.Time
		user.Subscription.TrialEndsAt = &t
	}
	if endDate.Valid {
		t := endDate.Time
		user.Subscription.EndDate = &t
	}

	s.toCache(ctx, &user)
	return &user, nil
}

// UpdateStatus persists a subscription status transition.
func (s *UserStore) UpdateStatus(ctx context.Context, userID string, status models.SubscriptionStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx, updateStatusQuery, userID, string(status), at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStatusUpdate, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}

	s.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached record. Failures are logged only.
func (s *UserStore) Invalidate(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, UserCacheKey(userID)).Err(); err != nil {
		s.logger.Warn("failed to evict cached subscription", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	}
}

func (s *UserStore) fromCache(ctx context.Context, userID string) (*models.User, bool) {
	if s.redis == nil {
		return nil, false
	}
	val, err := s.redis.Get(ctx, UserCacheKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("subscription cache read failed, falling back to postgres", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
		return nil, false
	}

	var user models.User
	if err := json.Unmarshal([]byte(val), &user); err != nil {
		s.logger.Debug("discarding undecodable cache entry", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil, false
	}
	return &user, true
}

func (s *UserStore) toCache(ctx context.Context, user *models.User) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, UserCacheKey(user.ID), data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("subscription cache write failed", map[string]interface{}{
			"userId": user.ID,
			"error":  err.Error(),
		})
	}
}
