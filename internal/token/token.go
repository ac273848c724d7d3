// Package token issues and redeems invite and shared-trip tokens. Token
// values are opaque 32-byte secrets; every invalid-token path collapses to
// persistence.ErrNotFound so lookups leak nothing.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

// Lifetimes.
const (
	InviteTTL = 7 * 24 * time.Hour
	ShareTTL  = 90 * 24 * time.Hour
)

// tokenBytes of entropy per token; base64url without padding yields 43
// characters.
const tokenBytes = 32

// ErrForbidden marks role failures (non-organizer creating an invite).
var ErrForbidden = errors.New("forbidden")

// New returns a fresh token value: 32 random bytes, base64url, no padding.
func New() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Service owns token lifecycles on top of the repositories.
type Service struct {
	tokens persistence.TokenRepo
	trips  persistence.TripRepo
	now    func() time.Time
}

// NewService wires a token service.
func NewService(tokens persistence.TokenRepo, trips persistence.TripRepo) *Service {
	return &Service{tokens: tokens, trips: trips, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInvite mints a single-use, 7-day invite carrying the member role.
// Only the trip organizer may invite.
func (s *Service) CreateInvite(ctx context.Context, tripID, createdBy string) (*persistence.InviteToken, error) {
	role, err := s.trips.MemberRole(ctx, tripID, createdBy)
	if err != nil {
		return nil, fmt.Errorf("resolve inviter role: %w", err)
	}
	if role != persistence.RoleOrganizer {
		return nil, fmt.Errorf("%w: only the organizer can invite", ErrForbidden)
	}

	value, err := New()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &persistence.InviteToken{
		ID:        uuid.New().String(),
		TripID:    tripID,
		Token:     value,
		Role:      persistence.RoleMember,
		CreatedBy: createdBy,
		ExpiresAt: now.Add(InviteTTL),
		CreatedAt: now,
	}
	if err := s.tokens.CreateInvite(ctx, t); err != nil {
		return nil, fmt.Errorf("store invite: %w", err)
	}
	log.Info().Str("trip_id", tripID).Str("invite_id", t.ID).Msg("invite created")
	return t, nil
}

// RedeemInvite consumes an invite and joins the caller to the trip as a
// member. The invite is burned even if the user was already a member.
func (s *Service) RedeemInvite(ctx context.Context, tokenValue, userID string) (*persistence.TripMember, error) {
	invite, err := s.tokens.RedeemInvite(ctx, tokenValue, s.now().UTC())
	if err != nil {
		return nil, err
	}
	m := &persistence.TripMember{
		TripID:    invite.TripID,
		UserID:    userID,
		Role:      persistence.RoleMember,
		CreatedAt: s.now().UTC(),
	}
	if err := s.trips.AddMember(ctx, m); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	log.Info().Str("trip_id", invite.TripID).Str("invite_id", invite.ID).Msg("invite redeemed")
	return m, nil
}

// CreateShare mints a 90-day read-only share link. Any trip member may
// share.
func (s *Service) CreateShare(ctx context.Context, tripID, createdBy string) (*persistence.ShareToken, error) {
	if _, err := s.trips.MemberRole(ctx, tripID, createdBy); err != nil {
		return nil, fmt.Errorf("resolve sharer role: %w", err)
	}

	value, err := New()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &persistence.ShareToken{
		ID:        uuid.New().String(),
		TripID:    tripID,
		Token:     value,
		ExpiresAt: now.Add(ShareTTL),
		CreatedAt: now,
	}
	if err := s.tokens.CreateShare(ctx, t); err != nil {
		return nil, fmt.Errorf("store share token: %w", err)
	}
	return t, nil
}

// ResolveShare returns the trip a live share token grants read access to.
func (s *Service) ResolveShare(ctx context.Context, tokenValue string) (*persistence.ShareToken, error) {
	return s.tokens.ResolveShare(ctx, tokenValue, s.now().UTC())
}
