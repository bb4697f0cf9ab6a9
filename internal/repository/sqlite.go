package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"hearcheck-go/internal/models"
	"strings"
	"time"
)

// SQLiteRepository stores everything in an embedded SQLite database opened
// with database.OpenSQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open SQLite handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := stamp(user.CreatedAt)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, surname, age_group, gender, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.Name, user.Surname, user.AgeGroup, user.Gender, nanos(now), nanos(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint(id)
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var (
		user                 models.User
		left, right, dissim  sql.NullFloat64
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, surname, age_group, gender, left_avg, right_avg, dissimilarity, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &user.Surname, &user.AgeGroup, &user.Gender, &left, &right, &dissim, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.LeftAvg = nullable(left)
	user.RightAvg = nullable(right)
	user.Dissimilarity = nullable(dissim)
	user.CreatedAt = fromNanos(createdAt)
	user.UpdatedAt = fromNanos(updatedAt)
	return &user, nil
}

func nullable(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

const stateColumns = `id, user_id, run_id, version, is_complete, state, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*models.ScreeningState, error) {
	var (
		st                   models.ScreeningState
		raw                  string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&st.ID, &st.UserID, &st.RunID, &st.Version, &st.IsComplete, &raw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st.State = json.RawMessage(raw)
	st.CreatedAt = fromNanos(createdAt)
	st.UpdatedAt = fromNanos(updatedAt)
	return &st, nil
}

func (r *SQLiteRepository) GetScreeningState(ctx context.Context, userID uint) (*models.ScreeningState, error) {
	st, err := scanState(r.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM screening_states WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveScreeningState has the same compare-and-swap contract as the
// PostgreSQL implementation.
func (r *SQLiteRepository) SaveScreeningState(ctx context.Context, state *models.ScreeningState, expected int) error {
	return r.saveState(ctx, r.db, state, expected)
}

// CompleteScreeningState saves the finished state and records its audiogram
// in one transaction.
func (r *SQLiteRepository) CompleteScreeningState(ctx context.Context, state *models.ScreeningState, expected int, result *models.AudiogramResult) error {
	saved := *state
	err := r.complete(ctx, state, expected, result)
	if err != nil {
		*state = saved
	}
	return err
}

func (r *SQLiteRepository) complete(ctx context.Context, state *models.ScreeningState, expected int, result *models.AudiogramResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.saveState(ctx, tx, state, expected); err != nil {
		return err
	}
	if err := r.insertAudiogram(ctx, tx, result); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) saveState(ctx context.Context, db execer, state *models.ScreeningState, expected int) error {
	state.UpdatedAt = stamp(state.UpdatedAt)

	if expected == 0 {
		res, err := db.ExecContext(ctx,
			`INSERT INTO screening_states (user_id, run_id, version, is_complete, state, created_at, updated_at) VALUES (?, ?, 1, ?, ?, ?, ?)`,
			state.UserID, state.RunID, state.IsComplete, string(state.State), nanos(state.UpdatedAt), nanos(state.UpdatedAt))
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		state.ID = uint(id)
		state.Version = 1
		state.CreatedAt = state.UpdatedAt
		return nil
	}

	res, err := db.ExecContext(ctx,
		`UPDATE screening_states SET run_id = ?, version = ?, is_complete = ?, state = ?, updated_at = ? WHERE user_id = ? AND version = ?`,
		state.RunID, expected+1, state.IsComplete, string(state.State), nanos(state.UpdatedAt), state.UserID, expected)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	state.Version = expected + 1
	return nil
}

func (r *SQLiteRepository) ListStaleStates(ctx context.Context, before time.Time) ([]models.ScreeningState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM screening_states WHERE is_complete = 0 AND updated_at < ? ORDER BY updated_at ASC LIMIT ?`,
		nanos(before), StaleBatchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []models.ScreeningState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	return states, rows.Err()
}

func (r *SQLiteRepository) insertAudiogram(ctx context.Context, tx execer, result *models.AudiogramResult) error {
	result.CreatedAt = stamp(result.CreatedAt)

	// The pq array types render PostgreSQL array literals, which round-trip
	// through TEXT columns unchanged.
	freqs, err := result.Frequencies.Value()
	if err != nil {
		return err
	}
	left, err := result.LeftThresholds.Value()
	if err != nil {
		return err
	}
	right, err := result.RightThresholds.Value()
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO audiogram_results (user_id, run_id, frequencies, left_thresholds, right_thresholds, left_avg, right_avg, dissimilarity, max_diff, max_diff_frequency, abandoned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.UserID, result.RunID, freqs, left, right, result.LeftAvg, result.RightAvg, result.Dissimilarity,
		result.MaxDiff, result.MaxDiffFrequency, result.Abandoned, nanos(result.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET left_avg = ?, right_avg = ?, dissimilarity = ?, updated_at = ? WHERE id = ?`,
		result.LeftAvg, result.RightAvg, result.Dissimilarity, nanos(result.CreatedAt), result.UserID); err != nil {
		return err
	}
	result.ID = uint(id)
	return nil
}

const audiogramColumns = `id, user_id, run_id, frequencies, left_thresholds, right_thresholds, left_avg, right_avg, dissimilarity, max_diff, max_diff_frequency, abandoned, created_at`

func scanAudiogram(row rowScanner) (*models.AudiogramResult, error) {
	var (
		a         models.AudiogramResult
		createdAt int64
	)
	err := row.Scan(&a.ID, &a.UserID, &a.RunID, &a.Frequencies, &a.LeftThresholds, &a.RightThresholds,
		&a.LeftAvg, &a.RightAvg, &a.Dissimilarity, &a.MaxDiff, &a.MaxDiffFrequency, &a.Abandoned, &createdAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = fromNanos(createdAt)
	return &a, nil
}

func (r *SQLiteRepository) GetLatestAudiogram(ctx context.Context, userID uint) (*models.AudiogramResult, error) {
	a, err := scanAudiogram(r.db.QueryRowContext(ctx,
		`SELECT `+audiogramColumns+` FROM audiogram_results WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *SQLiteRepository) ListAudiograms(ctx context.Context, userID uint, limit int) ([]models.AudiogramResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+audiogramColumns+` FROM (
			SELECT * FROM audiogram_results WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.AudiogramResult
	for rows.Next() {
		a, err := scanAudiogram(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *a)
	}
	return results, rows.Err()
}
