package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

type tokenRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTokenRepo returns the Postgres-backed token store. All invalid-token
// paths collapse to persistence.ErrNotFound; callers present one opaque 404.
func NewTokenRepo(db *sqlx.DB, timeout time.Duration) persistence.TokenRepo {
	return &tokenRepo{db: db, timeout: timeout}
}

func (r *tokenRepo) CreateInvite(ctx context.Context, t *persistence.InviteToken) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO invite_tokens
			(id, trip_id, token, role, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.TripID, t.Token, t.Role, t.CreatedBy, t.ExpiresAt, t.CreatedAt); err != nil {
		return fmt.Errorf("create invite token: %w", err)
	}
	return nil
}

func (r *tokenRepo) CreateShare(ctx context.Context, t *persistence.ShareToken) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO share_tokens (id, trip_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.TripID, t.Token, t.ExpiresAt, t.CreatedAt); err != nil {
		return fmt.Errorf("create share token: %w", err)
	}
	return nil
}

// RedeemInvite burns a live invite in one statement. The UPDATE matches only
// unused, unrevoked, unexpired rows, so every invalid variant falls through
// to the same zero-row result.
func (r *tokenRepo) RedeemInvite(ctx context.Context, token string, now time.Time) (*persistence.InviteToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE invite_tokens
		SET used_at = $2
		WHERE token = $1
		  AND used_at IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > $2
		RETURNING id, trip_id, token, role, created_by, expires_at,
		          used_at, revoked_at, created_at`

	var t persistence.InviteToken
	if err := r.db.GetContext(ctx, &t, query, token, now); err != nil {
		return nil, mapNotFound(err, "redeem invite")
	}
	return &t, nil
}

func (r *tokenRepo) ResolveShare(ctx context.Context, token string, now time.Time) (*persistence.ShareToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT id, trip_id, token, expires_at, revoked_at, created_at
		FROM share_tokens
		WHERE token = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2`

	var t persistence.ShareToken
	if err := r.db.GetContext(ctx, &t, query, token, now); err != nil {
		return nil, mapNotFound(err, "resolve share token")
	}
	return &t, nil
}
