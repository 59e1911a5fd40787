package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/metrics"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/repomanager"
)

// SessionService drives the session lifecycle: Active to Finished,
// Cancelled or Expired.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewSessionService(db *sql.DB, repomanager repomanager.RepositoryManager, logger logging.Logger, m *metrics.Metrics) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: repomanager,
		logger:      logger.With("module", "sessions"),
		metrics:     m,
		now:         time.Now,
	}
}

// SessionSnapshot is a session with the drawers still waiting per kind.
type SessionSnapshot struct {
	Session        *models.Session
	PendingDrawers map[models.MovementKind][]int
	Unconfirmed    int
}

func (s *SessionService) Get(ctx context.Context, id int64) (*models.Session, error) {
	return s.repomanager.Sessions(s.db).GetByID(ctx, id)
}

func (s *SessionService) Snapshot(ctx context.Context, id int64) (*SessionSnapshot, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	movRepo := s.repomanager.Movements(s.db)
	snap := &SessionSnapshot{Session: sess, PendingDrawers: make(map[models.MovementKind][]int, 2)}
	for _, kind := range []models.MovementKind{models.Withdrawal, models.Return} {
		drawers, err := movRepo.PendingDrawers(ctx, id, kind)
		if err != nil {
			return nil, err
		}
		snap.PendingDrawers[kind] = drawers
	}
	if snap.Unconfirmed, err = movRepo.CountUnconfirmed(ctx, id); err != nil {
		return nil, err
	}
	return snap, nil
}

// Finalize moves an Active session with no unconfirmed movement to
// Finished.
func (s *SessionService) Finalize(ctx context.Context, id int64) (*models.Session, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sess, err := s.repomanager.Sessions(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := sess.Status.CheckTransition(models.SessionFinished); err != nil {
			return err
		}
		n, err := s.repomanager.Movements(tx).CountUnconfirmed(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("session %d has %d unconfirmed movements: %w", id, n, common.ErrorInvalidSessionState)
		}
		return s.repomanager.Sessions(tx).Transition(ctx, id, models.SessionFinished, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionTransition(string(models.SessionFinished), 1)
	s.logger.Info(ctx, "session finished", "session_id", id)
	return s.Get(ctx, id)
}

// Cancel moves an Active session to Cancelled.
func (s *SessionService) Cancel(ctx context.Context, id int64) (*models.Session, error) {
	repo := s.repomanager.Sessions(s.db)
	if _, err := repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := repo.Transition(ctx, id, models.SessionCancelled, s.now()); err != nil {
		return nil, err
	}
	s.metrics.SessionTransition(string(models.SessionCancelled), 1)
	s.logger.Info(ctx, "session cancelled", "session_id", id)
	return repo.GetByID(ctx, id)
}

// ExpireStale expires Active sessions started more than maxAge ago.
func (s *SessionService) ExpireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := s.now()
	n, err := s.repomanager.Sessions(s.db).ExpireStale(ctx, now.Add(-maxAge), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.SessionTransition(string(models.SessionExpired), n)
		s.logger.Info(ctx, "sessions expired", "count", n, "max_age", maxAge.String())
	}
	return n, nil
}

// RunExpirySweep calls ExpireStale every interval until ctx is done.
func (s *SessionService) RunExpirySweep(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx, maxAge); err != nil {
				s.logger.Error(ctx, "expiry sweep", "error", err)
			}
		}
	}
}
