package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ActiveDrawers returns active drawers by number, each with its active
// tools by position then name. Drawers without tools are included.
func (r *PostgresRepository) ActiveDrawers(ctx context.Context) ([]models.Drawer, error) {
	query := `
		SELECT d.id, d.number, d.name, d.description,
		       t.id, t.name, t.code, t.description, t.position, t.quantity
		FROM drawers d
		LEFT JOIN tools t ON t.drawer_id = d.id AND t.active
		WHERE d.active
		ORDER BY d.number, t.position, t.name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.Drawer{}
	for rows.Next() {
		var (
			d        models.Drawer
			toolID   sql.NullInt64
			toolName sql.NullString
			code     sql.NullString
			desc     sql.NullString
			position sql.NullInt64
			quantity sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.Number, &d.Name, &d.Description,
			&toolID, &toolName, &code, &desc, &position, &quantity); err != nil {
			return nil, err
		}

		if len(result) == 0 || result[len(result)-1].ID != d.ID {
			d.Active = true
			d.Tools = []models.Tool{}
			result = append(result, d)
		}
		if !toolID.Valid {
			continue
		}

		cur := &result[len(result)-1]
		number := cur.Number
		cur.Tools = append(cur.Tools, models.Tool{
			ID:           toolID.Int64,
			Name:         toolName.String,
			Code:         code.String,
			Description:  desc.String,
			DrawerID:     cur.ID,
			DrawerNumber: &number,
			DrawerName:   cur.Name,
			Position:     int(position.Int64),
			Quantity:     int(quantity.Int64),
			Active:       true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
