package data

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

var ErrTokenNotFound = errors.New("refresh token not found")

type RefreshToken struct {
	ID                string
	UserID            string
	SessionID         string
	TokenHash         string
	ExpiresAt         time.Time
	RevokedAt         sql.NullTime
	ReplacedByTokenID *string
	CreatedAt         time.Time
}

type TokenModel struct {
	DB DBTX
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// New stores the hash of a freshly issued refresh token and returns the row id.
func (m TokenModel) New(ctx context.Context, token, userID, sessionID string, ttl time.Duration) (string, error) {
	var id string
	err := m.DB.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (user_id, session_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		userID, sessionID, hashToken(token), time.Now().Add(ttl),
	).Scan(&id)
	return id, err
}

func (m TokenModel) GetByHash(ctx context.Context, token string) (*RefreshToken, error) {
	var t RefreshToken
	err := m.DB.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, token_hash, expires_at, revoked_at, replaced_by_token_id, created_at
		FROM refresh_tokens WHERE token_hash = $1`,
		hashToken(token),
	).Scan(&t.ID, &t.UserID, &t.SessionID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedByTokenID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Rotate marks the old token as replaced so reuse of it can be detected.
func (m TokenModel) Rotate(ctx context.Context, oldID, newID string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), replaced_by_token_id = $2
		WHERE id = $1`,
		oldID, newID)
	return err
}

func (m TokenModel) Revoke(ctx context.Context, id string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

func (m TokenModel) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return err
}

func (m TokenModel) RevokeBySession(ctx context.Context, sessionID string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW() WHERE session_id = $1 AND revoked_at IS NULL`, sessionID)
	return err
}
