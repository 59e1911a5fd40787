package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

// PostgresRepository implements session storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectSession = `
	SELECT s.id, s.person_id, p.name, s.card_id, s.status, s.started_at, s.finished_at, s.payload
	FROM sessions s
	JOIN people p ON p.id = s.person_id
`

// Create inserts an Active session and fills ID, Status and StartedAt.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (person_id, card_id, status, payload)
		VALUES ($1, $2, 'A', $3)
		RETURNING id, started_at
	`
	var payload any
	if len(s.Payload) > 0 {
		payload = []byte(s.Payload)
	}
	if err := r.db.QueryRowContext(ctx, query, s.PersonID, s.CardID, payload).Scan(&s.ID, &s.StartedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	s.Status = models.SessionActive
	s.FinishedAt = nil
	return nil
}

// GetByID returns common.ErrorNotFound when no session has the id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, selectSession+` WHERE s.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// LockActive reads the session and locks its row until the surrounding
// transaction ends, so cancel, expiry and finish wait for it. It returns
// common.ErrorNotFound for an unknown id and
// common.ErrorInvalidSessionState when the session is no longer Active.
func (r *PostgresRepository) LockActive(ctx context.Context, id int64) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, selectSession+` WHERE s.id = $1 FOR UPDATE OF s`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !s.Active() {
		return nil, fmt.Errorf("session %d is %s: %w", id, s.Status.Label(), common.ErrorInvalidSessionState)
	}
	return s, nil
}

// LatestActive returns the most recent Active session started at or after
// since, or common.ErrorNotFound.
func (r *PostgresRepository) LatestActive(ctx context.Context, since time.Time) (*models.Session, error) {
	query := selectSession + `
		WHERE s.status = 'A' AND s.started_at >= $1
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT 1
	`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, since))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Transition moves an Active session to a terminal status. The update is
// guarded by status = 'A'; when no row matches the session was already
// terminal (or never existed) and common.ErrorInvalidSessionState is
// returned.
func (r *PostgresRepository) Transition(ctx context.Context, id int64, to models.SessionStatus, at time.Time) error {
	if err := models.SessionActive.CheckTransition(to); err != nil {
		return err
	}
	query := `UPDATE sessions SET status = $2, finished_at = $3 WHERE id = $1 AND status = 'A'`
	res, err := r.db.ExecContext(ctx, query, id, string(to), at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.AffectedOne(res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %d is not active: %w", id, common.ErrorInvalidSessionState)
		}
		return fmt.Errorf("rows affected error: %w", err)
	}
	return nil
}

// ExpireStale moves every Active session started before cutoff to Expired.
func (r *PostgresRepository) ExpireStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	query := `UPDATE sessions SET status = 'E', finished_at = $2 WHERE status = 'A' AND started_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var (
		s        models.Session
		status   string
		cardID   sql.NullInt64
		finished sql.NullTime
		payload  []byte
	)
	if err := row.Scan(&s.ID, &s.PersonID, &s.PersonName, &cardID, &status, &s.StartedAt, &finished, &payload); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	if cardID.Valid {
		s.CardID = &cardID.Int64
	}
	if finished.Valid {
		s.FinishedAt = &finished.Time
	}
	if len(payload) > 0 {
		s.Payload = payload
	}
	return &s, nil
}
