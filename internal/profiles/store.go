// internal/profiles/store.go
package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sos-workers/internal/common/logger"
	"sos-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrProfileNotFound = errors.New("PROFILE_NOT_FOUND")

const profileQuery = `SELECT id, display_name, contact_info, push_token, push_token_updated_at FROM user_profiles WHERE id = $1`

// Store reads user profiles. Implementations must be safe for concurrent use.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// PostgresStore reads user_profiles with an optional Redis cache in front.
type PostgresStore struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

// NewPostgresStore accepts a nil redis client or a zero cacheTTL to read straight from Postgres.
func NewPostgresStore(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "profile-store"}),
	}
}

func CacheKey(userID string) string {
	return "sos:profile:" + userID
}

func (s *PostgresStore) cacheEnabled() bool {
	return s.redis != nil && s.cacheTTL > 0
}

// GetProfile returns ErrProfileNotFound for unknown ids. Cache errors fall through to Postgres.
// Only profiles with a push endpoint are cached, so a freshly registered token is seen on
// the next read; a rotated token can stay stale for at most cacheTTL.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if s.cacheEnabled() {
		if val, err := s.redis.Get(ctx, CacheKey(userID)).Result(); err == nil {
			var p models.UserProfile
			if err := json.Unmarshal([]byte(val), &p); err == nil && p.HasEndpoint() {
				return &p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Debug("profile cache read failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}

	p, err := s.queryProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled() && p.HasEndpoint() {
		data, _ := json.Marshal(p)
		if err := s.redis.Set(ctx, CacheKey(userID), data, s.cacheTTL).Err(); err != nil {
			s.logger.Debug("profile cache write failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}
	return p, nil
}

func (s *PostgresStore) queryProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var (
		p              models.UserProfile
		displayName    sql.NullString
		contactInfo    sql.NullString
		pushToken      sql.NullString
		tokenUpdatedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, profileQuery, userID).Scan(
		&p.ID, &displayName, &contactInfo, &pushToken, &tokenUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("query profile %s: %w", userID, err)
	}

	p.DisplayName = displayName.String
	p.ContactInfo = contactInfo.String
	p.PushToken = pushToken.String
	if tokenUpdatedAt.Valid {
		t := tokenUpdatedAt.Time.UTC()
		p.PushTokenUpdatedAt = &t
	}
	return &p, nil
}
