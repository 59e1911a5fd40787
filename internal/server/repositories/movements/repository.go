package movements

import (
	"context"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

type Repository interface {
	Custody(ctx context.Context, ownerID *int64) ([]models.ToolCustody, error)
	DeleteUnconfirmed(ctx context.Context, sessionID int64, kind models.MovementKind) (int64, error)
	Create(ctx context.Context, m *models.Movement) error
	Pending(ctx context.Context, sessionID int64, kind models.MovementKind, drawer int) ([]models.Movement, error)
	Confirm(ctx context.Context, id int64, evidenceRef string) error
	NextDrawer(ctx context.Context, sessionID int64, kind models.MovementKind) (*int, error)
	PendingDrawers(ctx context.Context, sessionID int64, kind models.MovementKind) ([]int, error)
	CountUnconfirmed(ctx context.Context, sessionID int64) (int, error)
	CountUnconfirmedKind(ctx context.Context, sessionID int64, kind models.MovementKind) (int, error)
}
