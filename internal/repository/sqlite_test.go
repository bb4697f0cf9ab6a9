package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"hearcheck-go/internal/database"
	"hearcheck-go/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func createUser(t *testing.T, repo *SQLiteRepository) *models.User {
	t.Helper()
	u := &models.User{Name: "Ada", Surname: "Lovelace", AgeGroup: "18-30", Gender: "female"}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo)

	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "18-30", got.AgeGroup)
	assert.False(t, got.HasResults())

	_, err = repo.GetUserByID(ctx, u.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveScreeningState_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo)

	_, err := repo.GetScreeningState(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	st := &models.ScreeningState{UserID: u.ID, RunID: "run-1", State: json.RawMessage(`{"a":1}`)}
	require.NoError(t, repo.SaveScreeningState(ctx, st, 0))
	assert.Equal(t, 1, st.Version)

	// A second insert for the same user loses.
	dup := &models.ScreeningState{UserID: u.ID, RunID: "run-2", State: json.RawMessage(`{}`)}
	assert.ErrorIs(t, repo.SaveScreeningState(ctx, dup, 0), ErrVersionConflict)

	st.State = json.RawMessage(`{"a":2}`)
	require.NoError(t, repo.SaveScreeningState(ctx, st, 1))
	assert.Equal(t, 2, st.Version)

	stale := &models.ScreeningState{UserID: u.ID, RunID: "run-1", State: json.RawMessage(`{"a":3}`)}
	assert.ErrorIs(t, repo.SaveScreeningState(ctx, stale, 1), ErrVersionConflict)

	got, err := repo.GetScreeningState(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.JSONEq(t, `{"a":2}`, string(got.State))
	assert.Equal(t, "run-1", got.RunID)
}

func TestListStaleStates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	old := createUser(t, repo)
	fresh := createUser(t, repo)
	done := createUser(t, repo)

	require.NoError(t, repo.SaveScreeningState(ctx, &models.ScreeningState{
		UserID: old.ID, RunID: "a", State: json.RawMessage(`{}`), UpdatedAt: now.Add(-48 * time.Hour),
	}, 0))
	require.NoError(t, repo.SaveScreeningState(ctx, &models.ScreeningState{
		UserID: fresh.ID, RunID: "b", State: json.RawMessage(`{}`), UpdatedAt: now.Add(-time.Hour),
	}, 0))
	require.NoError(t, repo.SaveScreeningState(ctx, &models.ScreeningState{
		UserID: done.ID, RunID: "c", State: json.RawMessage(`{}`), IsComplete: true, UpdatedAt: now.Add(-72 * time.Hour),
	}, 0))

	states, err := repo.ListStaleStates(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, old.ID, states[0].UserID)
	assert.Equal(t, now.Add(-48*time.Hour), states[0].UpdatedAt)
}

func startRun(t *testing.T, repo *SQLiteRepository, userID uint, runID string, expected int) *models.ScreeningState {
	t.Helper()
	st := &models.ScreeningState{UserID: userID, RunID: runID, State: json.RawMessage(`{"step":0}`)}
	require.NoError(t, repo.SaveScreeningState(context.Background(), st, expected))
	return st
}

func finish(st *models.ScreeningState) *models.ScreeningState {
	st.IsComplete = true
	st.State = json.RawMessage(`{"step":"done"}`)
	return st
}

func TestAudiograms(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo)

	_, err := repo.GetLatestAudiogram(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := startRun(t, repo, u.ID, "run-1", 0)
	first := &models.AudiogramResult{
		UserID:           u.ID,
		RunID:            "run-1",
		Frequencies:      pq.Int64Array{1000, 500},
		LeftThresholds:   pq.Float64Array{10, 12.5},
		RightThresholds:  pq.Float64Array{30, -10},
		LeftAvg:          11.25,
		RightAvg:         10,
		Dissimilarity:    1.25,
		MaxDiff:          22.5,
		MaxDiffFrequency: 500,
		CreatedAt:        base,
	}
	require.NoError(t, repo.CompleteScreeningState(ctx, finish(st), st.Version, first))
	assert.Equal(t, 2, st.Version)
	assert.NotZero(t, first.ID)

	st.RunID, st.IsComplete = "run-2", false
	require.NoError(t, repo.SaveScreeningState(ctx, st, st.Version))
	second := &models.AudiogramResult{
		UserID: u.ID, RunID: "run-2", Frequencies: pq.Int64Array{1000}, LeftThresholds: pq.Float64Array{40},
		RightThresholds: pq.Float64Array{40}, LeftAvg: 40, RightAvg: 40, MaxDiffFrequency: 1000,
		Abandoned: true, CreatedAt: base.Add(time.Hour),
	}
	require.NoError(t, repo.CompleteScreeningState(ctx, finish(st), st.Version, second))

	latest, err := repo.GetLatestAudiogram(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	assert.True(t, latest.Abandoned)

	all, err := repo.ListAudiograms(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "run-1", all[0].RunID)
	assert.Equal(t, pq.Int64Array{1000, 500}, all[0].Frequencies)
	assert.Equal(t, pq.Float64Array{10, 12.5}, all[0].LeftThresholds)
	assert.Equal(t, pq.Float64Array{30, -10}, all[0].RightThresholds)

	user, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, user.HasResults())
	assert.Equal(t, 40.0, *user.LeftAvg, "averages follow the most recent run")
}

func TestCompleteScreeningState_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo)
	other := createUser(t, repo)

	// run-1 already has a result, so recording it again fails and the
	// state update must roll back with it.
	prev := startRun(t, repo, other.ID, "run-1", 0)
	require.NoError(t, repo.CompleteScreeningState(ctx, finish(prev), prev.Version, &models.AudiogramResult{
		UserID: other.ID, RunID: "run-1", Frequencies: pq.Int64Array{}, LeftThresholds: pq.Float64Array{}, RightThresholds: pq.Float64Array{},
	}))

	st := startRun(t, repo, u.ID, "run-1", 0)
	err := repo.CompleteScreeningState(ctx, finish(st), st.Version, &models.AudiogramResult{
		UserID: u.ID, RunID: "run-1", Frequencies: pq.Int64Array{}, LeftThresholds: pq.Float64Array{}, RightThresholds: pq.Float64Array{},
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, st.Version, "version is not bumped on failure")

	got, err := repo.GetScreeningState(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.IsComplete)
	assert.JSONEq(t, `{"step":0}`, string(got.State))

	user, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, user.HasResults())

	// A stale version writes neither the state nor the result.
	err = repo.CompleteScreeningState(ctx, finish(st), 5, &models.AudiogramResult{
		UserID: u.ID, RunID: "run-9", Frequencies: pq.Int64Array{}, LeftThresholds: pq.Float64Array{}, RightThresholds: pq.Float64Array{},
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
	_, err = repo.GetLatestAudiogram(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
