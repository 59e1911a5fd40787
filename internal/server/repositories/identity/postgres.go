package identity

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

// PostgresRepository resolves card reads to people.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ActiveCardByUID returns the active card with uid and its owner, or
// common.ErrorNotFound.
func (r *PostgresRepository) ActiveCardByUID(ctx context.Context, uid string) (*models.Identity, error) {
	query := `
		SELECT c.id, c.uid, c.person_id, c.nickname, c.active, c.last_used_at,
		       p.id, p.name, p.registration, p.email, p.active
		FROM cards c
		JOIN people p ON p.id = c.person_id
		WHERE c.uid = $1 AND c.active
	`
	var (
		id       models.Identity
		lastUsed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, uid).Scan(
		&id.Card.ID, &id.Card.UID, &id.Card.PersonID, &id.Card.Nickname, &id.Card.Active, &lastUsed,
		&id.Person.ID, &id.Person.Name, &id.Person.Registration, &id.Person.Email, &id.Person.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lastUsed.Valid {
		id.Card.LastUsedAt = &lastUsed.Time
	}
	return &id, nil
}

func (r *PostgresRepository) TouchCard(ctx context.Context, cardID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cards SET last_used_at = $2 WHERE id = $1`, cardID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.AffectedOne(res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("rows affected error: %w", err)
	}
	return nil
}
