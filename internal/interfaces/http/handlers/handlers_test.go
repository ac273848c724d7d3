package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevindtbd/overplanned-sub003/internal/persistence"
	"github.com/kevindtbd/overplanned-sub003/internal/ranking"
	"github.com/kevindtbd/overplanned-sub003/internal/signal"
	"github.com/kevindtbd/overplanned-sub003/internal/token"
)

type fakeSignalRepo struct {
	inserted []*persistence.BehavioralSignal
	offPlan  map[string]bool
}

func (f *fakeSignalRepo) Insert(_ context.Context, s *persistence.BehavioralSignal) error {
	s.ID = uuid.New().String()
	f.inserted = append(f.inserted, s)
	return nil
}

func (f *fakeSignalRepo) HasOffPlanNode(_ context.Context, userID, tripID, nodeID string) (bool, error) {
	return f.offPlan[userID+"|"+tripID+"|"+nodeID], nil
}

type fakeIntentionRepo struct{ recorded []*persistence.IntentionSignal }

func (f *fakeIntentionRepo) Record(_ context.Context, i *persistence.IntentionSignal) error {
	f.recorded = append(f.recorded, i)
	return nil
}

type fakeIngestionRepo struct{ queued []*persistence.IngestionRequest }

func (f *fakeIngestionRepo) Enqueue(_ context.Context, req *persistence.IngestionRequest) error {
	for _, q := range f.queued {
		if q.UserID == req.UserID && q.TripID == req.TripID && q.PlaceKey == req.PlaceKey {
			return persistence.ErrDuplicate
		}
	}
	f.queued = append(f.queued, req)
	return nil
}

type fakeFairnessRepo struct{ states map[string][]byte }

func (f *fakeFairnessRepo) Mutate(_ context.Context, tripID string, fn func([]byte) ([]byte, error)) error {
	next, err := fn(f.states[tripID])
	if err != nil {
		return err
	}
	f.states[tripID] = next
	return nil
}

func (f *fakeFairnessRepo) Get(_ context.Context, tripID string) ([]byte, error) {
	return f.states[tripID], nil
}

type fakeTripRepo struct {
	trips   map[string]*persistence.Trip
	roles   map[string]string // tripID|userID -> role
	members []*persistence.TripMember
}

func (f *fakeTripRepo) Get(_ context.Context, tripID string) (*persistence.Trip, error) {
	t, ok := f.trips[tripID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return t, nil
}

func (f *fakeTripRepo) MemberRole(_ context.Context, tripID, userID string) (string, error) {
	role, ok := f.roles[tripID+"|"+userID]
	if !ok {
		return "", persistence.ErrNotFound
	}
	return role, nil
}

func (f *fakeTripRepo) AddMember(_ context.Context, m *persistence.TripMember) error {
	f.members = append(f.members, m)
	return nil
}

func (f *fakeTripRepo) CompletedTripCount(context.Context, string) (int, error) { return 0, nil }

type fakeTokenRepo struct {
	invites map[string]*persistence.InviteToken
	shares  map[string]*persistence.ShareToken
}

func (f *fakeTokenRepo) CreateInvite(_ context.Context, t *persistence.InviteToken) error {
	f.invites[t.Token] = t
	return nil
}

func (f *fakeTokenRepo) CreateShare(_ context.Context, t *persistence.ShareToken) error {
	f.shares[t.Token] = t
	return nil
}

func (f *fakeTokenRepo) RedeemInvite(_ context.Context, tok string, now time.Time) (*persistence.InviteToken, error) {
	t, ok := f.invites[tok]
	if !ok || t.UsedAt != nil || t.RevokedAt != nil || !now.Before(t.ExpiresAt) {
		return nil, persistence.ErrNotFound
	}
	used := now
	t.UsedAt = &used
	return t, nil
}

func (f *fakeTokenRepo) ResolveShare(_ context.Context, tok string, now time.Time) (*persistence.ShareToken, error) {
	t, ok := f.shares[tok]
	if !ok || t.RevokedAt != nil || !now.Before(t.ExpiresAt) {
		return nil, persistence.ErrNotFound
	}
	return t, nil
}

type fakePersonaRepo struct{ dims map[string][]persistence.PersonaDimension }

func (f *fakePersonaRepo) Snapshot(_ context.Context, userID string) ([]persistence.PersonaDimension, error) {
	return f.dims[userID], nil
}

type fakeResolver struct{ nodes map[string]string }

func (f *fakeResolver) Resolve(_ context.Context, _ string, placeName string) (string, bool, error) {
	id, ok := f.nodes[placeName]
	return id, ok, nil
}

func newTestHandlers() (*Handlers, *fakeSignalRepo, *fakeTokenRepo, *fakeTripRepo) {
	signals := &fakeSignalRepo{offPlan: map[string]bool{}}
	intentions := &fakeIntentionRepo{}
	ingestion := &fakeIngestionRepo{}
	trips := &fakeTripRepo{trips: map[string]*persistence.Trip{}, roles: map[string]string{}}
	tokens := &fakeTokenRepo{invites: map[string]*persistence.InviteToken{}, shares: map[string]*persistence.ShareToken{}}

	repos := &persistence.Repository{
		Signals:    signals,
		Intentions: intentions,
		Ingestion:  ingestion,
		Fairness:   &fakeFairnessRepo{states: map[string][]byte{}},
		Trips:      trips,
		Tokens:     tokens,
		Personas:   &fakePersonaRepo{dims: map[string][]persistence.PersonaDimension{}},
	}

	h := &Handlers{
		Repos:    repos,
		Pipeline: signal.NewPipeline(signals, intentions, ingestion, nil),
		Tokens:   token.NewService(tokens, trips),
	}
	return h, signals, tokens, trips
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, vars map[string]string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(HeaderUserID, uuid.New().String())
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRecordSignal_NeverLeaksWeight(t *testing.T) {
	h, signals, _, _ := newTestHandlers()

	rec := doJSON(t, h.RecordSignal, "POST", "/signals", nil, signal.RecordInput{
		UserID:      uuid.New().String(),
		SignalType:  signal.TypeSlotConfirmed,
		SignalValue: "slot-1",
		TripPhase:   persistence.PhaseActive,
		RawAction:   "tap_confirm",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, signals.inserted, 1)
	assert.NotContains(t, rec.Body.String(), "signal_weight")
	assert.Contains(t, rec.Body.String(), signals.inserted[0].ID)
}

func TestRecordSignal_ValidationFailure(t *testing.T) {
	h, _, _, _ := newTestHandlers()

	rec := doJSON(t, h.RecordSignal, "POST", "/signals", nil, signal.RecordInput{
		UserID:      "not-a-uuid",
		SignalType:  signal.TypeSlotConfirmed,
		SignalValue: "x",
		TripPhase:   persistence.PhaseActive,
		RawAction:   "tap",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_input")
}

func TestOffPlanAdd_MatchedAndQueued(t *testing.T) {
	h, signals, _, _ := newTestHandlers()
	nodeID := uuid.New().String()
	h.Resolver = &fakeResolver{nodes: map[string]string{"Blue Bottle": nodeID}}

	in := signal.OffPlanInput{UserID: uuid.New().String(), TripID: uuid.New().String(), PlaceName: "Blue Bottle"}
	rec := doJSON(t, h.OffPlanAdd, "POST", "/signals/offplan", nil, in)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"recorded"`)
	require.Len(t, signals.inserted, 1)

	in.PlaceName = "Unknown Izakaya"
	rec = doJSON(t, h.OffPlanAdd, "POST", "/signals/offplan", nil, in)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued"`)
}

func TestApplyVote_AccruesDebtAndDetectsConsensusFailure(t *testing.T) {
	h, _, _, _ := newTestHandlers()
	tripID := uuid.New().String()

	body := map[string]interface{}{
		"slot_id":           "slot-1",
		"group_choice_rank": 1,
		"member_ranks":      map[string]int{"ana": 4, "ben": 5, "cam": 4},
		"total_candidates":  5,
	}
	rec := doJSON(t, h.ApplyVote, "POST", "/trips/"+tripID+"/votes", map[string]string{"tripID": tripID}, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		State struct {
			TotalVotes int `json:"total_votes"`
			Members    map[string]struct {
				CumulativeDebt float64 `json:"cumulative_debt"`
			} `json:"members"`
		} `json:"state"`
		ConflictWeights map[string]float64 `json:"conflict_weights"`
		Abilene         struct {
			IsAbilene bool `json:"is_abilene"`
		} `json:"abilene"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.State.TotalVotes)
	assert.Equal(t, 3.0, resp.State.Members["ana"].CumulativeDebt)
	assert.True(t, resp.Abilene.IsAbilene, "everyone ranked the winner near last")
	sum := 0.0
	for _, w := range resp.ConflictWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTokenMisses_ShareOneOpaqueBody(t *testing.T) {
	h, _, tokens, trips := newTestHandlers()
	tripID := uuid.New().String()
	organizer := uuid.New().String()
	trips.trips[tripID] = &persistence.Trip{ID: tripID}
	trips.roles[tripID+"|"+organizer] = persistence.RoleOrganizer

	// Mint a real invite, then expire it by hand.
	invite, err := h.Tokens.CreateInvite(context.Background(), tripID, organizer)
	require.NoError(t, err)
	tokens.invites[invite.Token].ExpiresAt = time.Now().Add(-time.Hour)

	redeem := func(tok string) *httptest.ResponseRecorder {
		return doJSON(t, h.RedeemInvite, "POST", "/invites/"+tok+"/redeem", map[string]string{"token": tok}, nil)
	}

	expired := redeem(invite.Token)
	unknown := redeem("no-such-token")

	assert.Equal(t, http.StatusNotFound, expired.Code)
	assert.Equal(t, http.StatusNotFound, unknown.Code)

	// Bodies must be indistinguishable apart from the request id.
	var a, b map[string]interface{}
	require.NoError(t, json.Unmarshal(expired.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(unknown.Body.Bytes(), &b))
	for _, k := range []string{"request_id", "timestamp"} {
		delete(a, k)
		delete(b, k)
	}
	assert.Equal(t, a, b)
}

func TestCreateInvite_MemberForbidden(t *testing.T) {
	h, _, _, trips := newTestHandlers()
	tripID := uuid.New().String()
	member := uuid.New().String()
	trips.roles[tripID+"|"+member] = persistence.RoleMember

	var buf bytes.Buffer
	req := httptest.NewRequest("POST", "/trips/"+tripID+"/invites", &buf)
	req.Header.Set(HeaderUserID, member)
	req = mux.SetURLVars(req, map[string]string{"tripID": tripID})
	rec := httptest.NewRecorder()
	h.CreateInvite(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "forbidden")
}

func TestRedeemInvite_JoinsTrip(t *testing.T) {
	h, _, _, trips := newTestHandlers()
	tripID := uuid.New().String()
	organizer := uuid.New().String()
	trips.trips[tripID] = &persistence.Trip{ID: tripID}
	trips.roles[tripID+"|"+organizer] = persistence.RoleOrganizer

	invite, err := h.Tokens.CreateInvite(context.Background(), tripID, organizer)
	require.NoError(t, err)

	rec := doJSON(t, h.RedeemInvite, "POST",
		fmt.Sprintf("/invites/%s/redeem", invite.Token),
		map[string]string{"token": invite.Token}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, trips.members, 1)
	assert.Equal(t, persistence.RoleMember, trips.members[0].Role)

	// The invite is single-use.
	rec = doJSON(t, h.RedeemInvite, "POST",
		fmt.Sprintf("/invites/%s/redeem", invite.Token),
		map[string]string{"token": invite.Token}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRank_AppliesFloorAndOrders(t *testing.T) {
	h, _, _, _ := newTestHandlers()
	h.PostFilter = ranking.PostFilter{}

	body := map[string]interface{}{
		"user_id": uuid.New().String(),
		"candidates": []ranking.Candidate{
			{NodeID: "a", Score: 0.9},
			{NodeID: "b", Score: 0.3, CantMiss: true},
			{NodeID: "c", Score: 0.5},
		},
	}
	rec := doJSON(t, h.Rank, "POST", "/rank", nil, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Candidates []ranking.Candidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Candidates, 3)
	assert.Equal(t, "a", resp.Candidates[0].NodeID)
	assert.Equal(t, "b", resp.Candidates[1].NodeID)
	assert.Equal(t, ranking.CantMissFloor, resp.Candidates[1].Score)
}

func TestWriteJSON_EncodeFailureKeepsStatus(t *testing.T) {
	h := &Handlers{}
	rec := httptest.NewRecorder()

	// Channels are not encodable; the already-flushed status must survive.
	h.writeJSON(rec, http.StatusCreated, map[string]interface{}{"ch": make(chan int)})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Body.String())
}
