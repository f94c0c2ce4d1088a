package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	MaxSessionsPerUser = 5
	SessionTTL         = 7 * 24 * time.Hour // matches refresh token
	LockoutTTL         = 15 * time.Minute
	LockoutThreshold   = 5
)

// Manager tracks login sessions in redis. The acting hospital for a session
// is recorded here at login and refreshed when the user registers a
// hospital, so the UI never has to stash it in ambient client storage.
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// CreateSession registers a session and enforces MaxSessionsPerUser by
// evicting the oldest.
func (m *Manager) CreateSession(ctx context.Context, userID, hospitalID, sessionID string) error {
	userKey := fmt.Sprintf("user_sessions:%s", userID)
	sessionKey := fmt.Sprintf("session:%s", sessionID)

	now := float64(time.Now().Unix())

	pipe := m.client.Pipeline()
	pipe.ZAdd(ctx, userKey, redis.Z{Score: now, Member: sessionID})
	pipe.Expire(ctx, userKey, SessionTTL)
	pipe.HSet(ctx, sessionKey, "user_id", userID, "hospital_id", hospitalID, "created_at", now)
	pipe.Expire(ctx, sessionKey, SessionTTL)
	// Keep only the newest MaxSessionsPerUser entries.
	pipe.ZRemRangeByRank(ctx, userKey, 0, int64(-(MaxSessionsPerUser + 1)))

	_, err := pipe.Exec(ctx)
	return err
}

// SetHospital updates the acting hospital on every live session of the user
// (e.g. right after hospital registration).
func (m *Manager) SetHospital(ctx context.Context, userID, hospitalID string) error {
	userKey := fmt.Sprintf("user_sessions:%s", userID)

	sessionIDs, err := m.client.ZRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		return err
	}

	pipe := m.client.Pipeline()
	for _, sid := range sessionIDs {
		pipe.HSet(ctx, fmt.Sprintf("session:%s", sid), "hospital_id", hospitalID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Hospital returns the acting hospital recorded for a session; empty when
// the session is gone or the user has not registered one.
func (m *Manager) Hospital(ctx context.Context, sessionID string) (string, error) {
	val, err := m.client.HGet(ctx, fmt.Sprintf("session:%s", sessionID), "hospital_id").Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (m *Manager) RevokeSession(ctx context.Context, sessionID string) error {
	sessionKey := fmt.Sprintf("session:%s", sessionID)

	userID, err := m.client.HGet(ctx, sessionKey, "user_id").Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, sessionKey)
	if userID != "" {
		pipe.ZRem(ctx, fmt.Sprintf("user_sessions:%s", userID), sessionID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (m *Manager) RevokeAllUserSessions(ctx context.Context, userID string) error {
	userKey := fmt.Sprintf("user_sessions:%s", userID)

	sessionIDs, err := m.client.ZRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		return err
	}
	if len(sessionIDs) == 0 {
		return nil
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, userKey)
	for _, sid := range sessionIDs {
		pipe.Del(ctx, fmt.Sprintf("session:%s", sid))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// CheckLockout returns true while the account is locked after repeated
// failed logins.
func (m *Manager) CheckLockout(ctx context.Context, email string) (bool, error) {
	val, err := m.client.Get(ctx, fmt.Sprintf("lockout:%s", email)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "locked", nil
}

// RecordFailedAttempt counts a failure and hard-locks at the threshold.
func (m *Manager) RecordFailedAttempt(ctx context.Context, email string) error {
	key := fmt.Sprintf("lockout_count:%s", email)
	count, err := m.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		m.client.Expire(ctx, key, LockoutTTL)
	}
	if count >= LockoutThreshold {
		m.client.Set(ctx, fmt.Sprintf("lockout:%s", email), "locked", LockoutTTL)
		m.client.Del(ctx, key)
	}
	return nil
}

// ClearFailedAttempts resets the counter after a successful login.
func (m *Manager) ClearFailedAttempts(ctx context.Context, email string) {
	m.client.Del(ctx, fmt.Sprintf("lockout_count:%s", email))
}
