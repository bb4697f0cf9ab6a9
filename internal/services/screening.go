package services

import (
	"context"
	"errors"
	"fmt"
	"hearcheck-go/internal/metrics"
	"hearcheck-go/internal/models"
	"hearcheck-go/internal/repository"
	"hearcheck-go/internal/screening"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the screening service needs. Both
// repository.GormRepository and repository.SQLiteRepository satisfy it.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetScreeningState(ctx context.Context, userID uint) (*models.ScreeningState, error)
	SaveScreeningState(ctx context.Context, state *models.ScreeningState, expected int) error
	ListStaleStates(ctx context.Context, before time.Time) ([]models.ScreeningState, error)
	CompleteScreeningState(ctx context.Context, state *models.ScreeningState, expected int, result *models.AudiogramResult) error
	GetLatestAudiogram(ctx context.Context, userID uint) (*models.AudiogramResult, error)
	ListAudiograms(ctx context.Context, userID uint, limit int) ([]models.AudiogramResult, error)
}

// Participant is the registration payload.
type Participant struct {
	Name     string
	Surname  string
	AgeGroup string
	Gender   string
}

// ScreeningService runs screening sessions on top of a Store. Every
// mutation is a load-modify-store guarded by the row version; a lost race
// surfaces as screening.ErrConflict and is not retried.
type ScreeningService struct {
	store    Store
	protocol screening.Protocol
	log      *zap.Logger
	now      func() time.Time
}

func NewScreeningService(store Store, protocol screening.Protocol, log *zap.Logger) *ScreeningService {
	return &ScreeningService{
		store:    store,
		protocol: protocol,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Protocol returns the staircase protocol new sessions start with.
func (s *ScreeningService) Protocol() screening.Protocol {
	return s.protocol
}

func (s *ScreeningService) Register(ctx context.Context, p Participant) (*models.User, error) {
	user := &models.User{
		Name:      p.Name,
		Surname:   p.Surname,
		AgeGroup:  p.AgeGroup,
		Gender:    p.Gender,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, s.storageError("create user", err)
	}
	s.log.Info("Participant registered", zap.Uint("user_id", user.ID))
	return user, nil
}

func (s *ScreeningService) UserInfo(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", screening.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, s.storageError("load user", err)
	}
	return user, nil
}

// Start begins a fresh run for the user, replacing any earlier session.
func (s *ScreeningService) Start(ctx context.Context, userID uint) (*screening.Presentation, error) {
	if _, err := s.UserInfo(ctx, userID); err != nil {
		return nil, err
	}

	expected := 0
	existing, err := s.store.GetScreeningState(ctx, userID)
	switch {
	case err == nil:
		expected = existing.Version
	case !errors.Is(err, repository.ErrNotFound):
		return nil, s.storageError("load state", err)
	}

	sess, err := screening.Start(s.protocol)
	if err != nil {
		return nil, err
	}
	row := &models.ScreeningState{UserID: userID, RunID: uuid.NewString()}
	if err := s.save(ctx, row, sess, expected); err != nil {
		return nil, err
	}

	metrics.TestsStarted.Inc()
	s.log.Info("Screening started", zap.Uint("user_id", userID), zap.String("run_id", row.RunID))
	pres, _ := sess.Peek()
	return pres, nil
}

// Next returns the pending presentation, or the result once the run is
// complete. It never changes the stored session.
func (s *ScreeningService) Next(ctx context.Context, userID uint) (*screening.Presentation, *screening.Result, error) {
	_, sess, err := s.load(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	pres, res := sess.Peek()
	return pres, res, nil
}

// Submit records one response for the active item.
func (s *ScreeningService) Submit(ctx context.Context, userID uint, heard bool) (screening.Ack, error) {
	row, sess, err := s.load(ctx, userID)
	if err != nil {
		return screening.Ack{}, err
	}

	trials := 0
	if sess.Active != nil {
		trials = sess.Active.TrialCount + 1
	}
	ack, err := sess.SubmitResponse(heard)
	if err != nil {
		return screening.Ack{}, err
	}
	if ack.TestCompleted {
		err = s.complete(ctx, row, sess, row.Version, false)
	} else {
		err = s.save(ctx, row, sess, row.Version)
	}
	if err != nil {
		return screening.Ack{}, err
	}

	metrics.Responses.WithLabelValues(strconv.FormatBool(heard)).Inc()
	if ack.ItemCompleted {
		metrics.ItemsCompleted.WithLabelValues(string(ack.Rule)).Inc()
		metrics.ItemTrials.Observe(float64(trials))
		s.log.Debug("Test item completed",
			zap.Uint("user_id", userID),
			zap.Int("frequency", ack.Item.Frequency),
			zap.String("ear", string(ack.Item.Ear)),
			zap.String("rule", string(ack.Rule)),
			zap.Float64("threshold", ack.Threshold),
		)
	}
	if ack.TestCompleted {
		metrics.TestsCompleted.WithLabelValues(metrics.OutcomeCompleted).Inc()
		s.log.Info("Screening completed", zap.Uint("user_id", userID), zap.String("run_id", row.RunID))
	}
	return ack, nil
}

// Summary returns the result of the user's completed run.
func (s *ScreeningService) Summary(ctx context.Context, userID uint) (*screening.Result, error) {
	_, sess, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Result()
}

// Audiogram returns the most recent recorded run of the user.
func (s *ScreeningService) Audiogram(ctx context.Context, userID uint) (*models.AudiogramResult, error) {
	if _, err := s.UserInfo(ctx, userID); err != nil {
		return nil, err
	}
	a, err := s.store.GetLatestAudiogram(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: no completed test", screening.ErrInvalidState)
	}
	if err != nil {
		return nil, s.storageError("load audiogram", err)
	}
	return a, nil
}

// History returns up to limit recorded runs of the user, oldest first.
func (s *ScreeningService) History(ctx context.Context, userID uint, limit int) ([]models.AudiogramResult, error) {
	if _, err := s.UserInfo(ctx, userID); err != nil {
		return nil, err
	}
	results, err := s.store.ListAudiograms(ctx, userID, limit)
	if err != nil {
		return nil, s.storageError("list audiograms", err)
	}
	return results, nil
}

// AbandonStale force-completes sessions idle for longer than olderThan and
// records their backfilled audiograms. It returns how many were closed.
func (s *ScreeningService) AbandonStale(ctx context.Context, olderThan time.Duration) (int, error) {
	states, err := s.store.ListStaleStates(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, s.storageError("list stale states", err)
	}

	closed := 0
	for i := range states {
		row := &states[i]
		log := s.log.With(zap.Uint("user_id", row.UserID), zap.String("run_id", row.RunID))

		sess, err := screening.Decode(row.State)
		if err != nil {
			metrics.StateErrors.WithLabelValues(metrics.KindMalformed).Inc()
			log.Error("Skipping malformed session", zap.Error(err))
			continue
		}
		sess.ForceComplete()
		if err := s.complete(ctx, row, sess, row.Version, true); err != nil {
			if errors.Is(err, screening.ErrConflict) {
				// The participant came back between the scan and the update.
				log.Debug("Session changed during sweep")
				continue
			}
			return closed, err
		}
		metrics.TestsCompleted.WithLabelValues(metrics.OutcomeAbandoned).Inc()
		log.Info("Abandoned screening closed")
		closed++
	}
	return closed, nil
}

// load fetches and decodes the user's session. A user without a session is
// an invalid state, not a missing user.
func (s *ScreeningService) load(ctx context.Context, userID uint) (*models.ScreeningState, *screening.Session, error) {
	row, err := s.store.GetScreeningState(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		if _, err := s.UserInfo(ctx, userID); err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: no test started", screening.ErrInvalidState)
	}
	if err != nil {
		return nil, nil, s.storageError("load state", err)
	}

	sess, err := screening.Decode(row.State)
	if err != nil {
		metrics.StateErrors.WithLabelValues(metrics.KindMalformed).Inc()
		s.log.Error("Stored session is malformed", zap.Uint("user_id", userID), zap.Error(err))
		return nil, nil, err
	}
	return row, sess, nil
}

// save encodes sess into row and writes it if the stored version is still
// expected.
func (s *ScreeningService) save(ctx context.Context, row *models.ScreeningState, sess *screening.Session, expected int) error {
	if err := s.encode(row, sess); err != nil {
		return err
	}
	return s.storeErr("save state", s.store.SaveScreeningState(ctx, row, expected), row.UserID)
}

// complete writes a finished session together with its audiogram. Either
// both are stored or neither is, so a failed write leaves the session in
// progress and the last response can simply be sent again.
func (s *ScreeningService) complete(ctx context.Context, row *models.ScreeningState, sess *screening.Session, expected int, abandoned bool) error {
	res, err := sess.Result()
	if err != nil {
		return err
	}
	if err := s.encode(row, sess); err != nil {
		return err
	}
	a := models.NewAudiogramResult(row.UserID, row.RunID, sess.Protocol.Frequencies, res, abandoned)
	a.CreatedAt = row.UpdatedAt
	return s.storeErr("complete state", s.store.CompleteScreeningState(ctx, row, expected, a), row.UserID)
}

func (s *ScreeningService) encode(row *models.ScreeningState, sess *screening.Session) error {
	data, err := screening.Encode(sess)
	if err != nil {
		metrics.StateErrors.WithLabelValues(metrics.KindMalformed).Inc()
		return err
	}
	row.State = data
	row.IsComplete = sess.Completed()
	row.UpdatedAt = s.now()
	return nil
}

// storeErr maps a failed compare-and-swap to screening.ErrConflict and
// anything else to a StorageError.
func (s *ScreeningService) storeErr(op string, err error, userID uint) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrVersionConflict):
		metrics.StateErrors.WithLabelValues(metrics.KindConflict).Inc()
		return fmt.Errorf("%w: user %d", screening.ErrConflict, userID)
	default:
		return s.storageError(op, err)
	}
}

func (s *ScreeningService) storageError(op string, err error) error {
	metrics.StateErrors.WithLabelValues(metrics.KindStorage).Inc()
	s.log.Error("Storage failure", zap.String("op", op), zap.Error(err))
	return &screening.StorageError{Op: op, Err: err}
}
