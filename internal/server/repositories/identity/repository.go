package identity

import (
	"context"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

type Repository interface {
	ActiveCardByUID(ctx context.Context, uid string) (*models.Identity, error)
	TouchCard(ctx context.Context, cardID int64, at time.Time) error
}
