package inventory

import (
	"context"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

type Repository interface {
	ActiveDrawers(ctx context.Context) ([]models.Drawer, error)
}
