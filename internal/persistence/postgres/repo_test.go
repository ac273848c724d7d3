package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestFairnessRepo_Mutate_LocksAndReplaces(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFairnessRepo(db, time.Second)

	stored := []byte(`{"total_votes":1,"members":{}}`)
	next := []byte(`{"total_votes":2,"members":{}}`)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT fairness_state FROM trips WHERE id = \$1 FOR UPDATE`).
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"fairness_state"}).AddRow(stored))
	mock.ExpectExec(`UPDATE trips SET fairness_state = \$2 WHERE id = \$1`).
		WithArgs("trip-1", next).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Mutate(context.Background(), "trip-1", func(raw []byte) ([]byte, error) {
		assert.Equal(t, stored, raw)
		return next, nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFairnessRepo_Mutate_RollsBackOnCallbackError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFairnessRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT fairness_state FROM trips`).
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"fairness_state"}).AddRow([]byte(`{}`)))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.Mutate(context.Background(), "trip-1", func([]byte) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepo_ApplyCascade_CountsSkippedRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSlotRepo(db, time.Second)

	updates := []persistence.SlotUpdate{
		{SlotID: "slot-4", NewStart: time.Now().UTC(), NewEnd: time.Now().UTC()},
		{SlotID: "slot-5", NewStart: time.Now().UTC(), NewEnd: time.Now().UTC()},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE itinerary_slots`).
		WithArgs(updates[0].SlotID, updates[0].NewStart, updates[0].NewEnd).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Second row became locked between evaluation and application.
	mock.ExpectExec(`UPDATE itinerary_slots`).
		WithArgs(updates[1].SlotID, updates[1].NewStart, updates[1].NewEnd).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	outcome, err := repo.ApplyCascade(context.Background(), updates)
	require.NoError(t, err)
	assert.Equal(t, persistence.CascadeOutcome{Applied: 1, Skipped: 1}, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepo_InsertProposed_ShiftsThenInserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSlotRepo(db, time.Second)

	dur := 20
	nodeID := "node-1"
	slot := &persistence.ItinerarySlot{
		ID:              "slot-new",
		TripID:          "trip-1",
		ActivityNodeID:  &nodeID,
		DayNumber:       2,
		SortOrder:       4,
		SlotType:        persistence.SlotTypeFlex,
		Status:          persistence.SlotStatusProposed,
		StartTime:       time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2026, 3, 1, 14, 20, 0, 0, time.UTC),
		DurationMinutes: &dur,
		CreatedAt:       time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE itinerary_slots\s+SET sort_order = sort_order \+ 1`).
		WithArgs("trip-1", 2, 4).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO itinerary_slots`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertProposed(context.Background(), slot))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_RedeemInvite_MissIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db, time.Second)

	now := time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE invite_tokens`).
		WithArgs("expired-or-unknown", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.RedeemInvite(context.Background(), "expired-or-unknown", now)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTripRepo_MemberRole_MissIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTripRepo(db, time.Second)

	mock.ExpectQuery(`SELECT role FROM trip_members`).
		WithArgs("trip-1", "user-9").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	_, err := repo.MemberRole(context.Background(), "trip-1", "user-9")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
