package movements

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

// PostgresRepository implements movement storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Custody lists every tool with the kind of its most recent confirmed
// movement. With ownerID set only that person's sessions are considered;
// with nil the whole history is.
func (r *PostgresRepository) Custody(ctx context.Context, ownerID *int64) ([]models.ToolCustody, error) {
	query := `
		SELECT t.id, t.name, t.code, t.description, t.drawer_id, d.number, d.name,
		       t.position, t.quantity, t.active,
		       (SELECT m.kind
		          FROM movements m
		          JOIN sessions s ON s.id = m.session_id
		         WHERE m.tool_id = t.id AND m.confirmed
		           AND ($1::bigint IS NULL OR s.person_id = $1)
		         ORDER BY m.created_at DESC, m.id DESC
		         LIMIT 1) AS last_kind
		FROM tools t
		LEFT JOIN drawers d ON d.id = t.drawer_id
		ORDER BY t.id
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ToolCustody
	for rows.Next() {
		var (
			c          models.ToolCustody
			drawerNum  sql.NullInt64
			drawerName sql.NullString
			lastKind   sql.NullString
		)
		if err := rows.Scan(&c.Tool.ID, &c.Tool.Name, &c.Tool.Code, &c.Tool.Description, &c.Tool.DrawerID,
			&drawerNum, &drawerName, &c.Tool.Position, &c.Tool.Quantity, &c.Tool.Active, &lastKind); err != nil {
			return nil, err
		}
		if drawerNum.Valid {
			n := int(drawerNum.Int64)
			c.Tool.DrawerNumber = &n
		}
		c.Tool.DrawerName = drawerName.String
		if lastKind.Valid {
			k := models.MovementKind(lastKind.String)
			c.LastConfirmed = &k
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteUnconfirmed removes the session's unconfirmed movements of kind.
func (r *PostgresRepository) DeleteUnconfirmed(ctx context.Context, sessionID int64, kind models.MovementKind) (int64, error) {
	query := `DELETE FROM movements WHERE session_id = $1 AND kind = $2 AND NOT confirmed`
	res, err := r.db.ExecContext(ctx, query, sessionID, string(kind))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// Create inserts an unconfirmed movement and fills ID and CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, m *models.Movement) error {
	query := `
		INSERT INTO movements (session_id, tool_id, kind, drawer_number, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	if m.Quantity == 0 {
		m.Quantity = 1
	}
	var drawer any
	if m.DrawerNumber != nil {
		drawer = int64(*m.DrawerNumber)
	}
	err := r.db.QueryRowContext(ctx, query, m.SessionID, m.ToolID, string(m.Kind), drawer, int64(m.Quantity)).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	m.Confirmed = false
	m.EvidenceRef = ""
	return nil
}

// Pending returns the unconfirmed movements of kind at drawer, by id.
func (r *PostgresRepository) Pending(ctx context.Context, sessionID int64, kind models.MovementKind, drawer int) ([]models.Movement, error) {
	query := `
		SELECT m.id, m.session_id, m.tool_id, t.name, m.kind, m.drawer_number, m.quantity,
		       m.evidence_ref, m.confirmed, m.created_at
		FROM movements m
		JOIN tools t ON t.id = m.tool_id
		WHERE m.session_id = $1 AND m.kind = $2 AND m.drawer_number = $3 AND NOT m.confirmed
		ORDER BY m.id
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, string(kind), int64(drawer))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Movement
	for rows.Next() {
		var (
			m         models.Movement
			kindCode  string
			drawerNum sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.ToolID, &m.ToolName, &kindCode, &drawerNum, &m.Quantity,
			&m.EvidenceRef, &m.Confirmed, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = models.MovementKind(kindCode)
		if drawerNum.Valid {
			n := int(drawerNum.Int64)
			m.DrawerNumber = &n
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Confirm marks one movement confirmed with its evidence. The update only
// applies to an unconfirmed row; otherwise common.ErrorNoPendingMovements
// is returned.
func (r *PostgresRepository) Confirm(ctx context.Context, id int64, evidenceRef string) error {
	query := `UPDATE movements SET confirmed = TRUE, evidence_ref = $2 WHERE id = $1 AND NOT confirmed`
	res, err := r.db.ExecContext(ctx, query, id, evidenceRef)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.AffectedOne(res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("movement %d already confirmed: %w", id, common.ErrorNoPendingMovements)
		}
		return fmt.Errorf("rows affected error: %w", err)
	}
	return nil
}

// NextDrawer is the smallest drawer still holding unconfirmed movements of
// kind, or nil.
func (r *PostgresRepository) NextDrawer(ctx context.Context, sessionID int64, kind models.MovementKind) (*int, error) {
	query := `
		SELECT MIN(drawer_number)
		FROM movements
		WHERE session_id = $1 AND kind = $2 AND NOT confirmed AND drawer_number IS NOT NULL
	`
	var next sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, sessionID, string(kind)).Scan(&next); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !next.Valid {
		return nil, nil
	}
	n := int(next.Int64)
	return &n, nil
}

// PendingDrawers lists, ascending, the drawers with unconfirmed movements
// of kind.
func (r *PostgresRepository) PendingDrawers(ctx context.Context, sessionID int64, kind models.MovementKind) ([]int, error) {
	query := `
		SELECT DISTINCT drawer_number
		FROM movements
		WHERE session_id = $1 AND kind = $2 AND NOT confirmed AND drawer_number IS NOT NULL
		ORDER BY drawer_number
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountUnconfirmed counts the session's unconfirmed movements of any kind.
func (r *PostgresRepository) CountUnconfirmed(ctx context.Context, sessionID int64) (int, error) {
	query := `SELECT COUNT(*) FROM movements WHERE session_id = $1 AND NOT confirmed`
	var n int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// CountUnconfirmedKind counts the session's unconfirmed movements of kind,
// with or without a drawer.
func (r *PostgresRepository) CountUnconfirmedKind(ctx context.Context, sessionID int64, kind models.MovementKind) (int, error) {
	query := `SELECT COUNT(*) FROM movements WHERE session_id = $1 AND kind = $2 AND NOT confirmed`
	var n int
	if err := r.db.QueryRowContext(ctx, query, sessionID, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
