package sessions

import (
	"context"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id int64) (*models.Session, error)
	LockActive(ctx context.Context, id int64) (*models.Session, error)
	LatestActive(ctx context.Context, since time.Time) (*models.Session, error)
	Transition(ctx context.Context, id int64, to models.SessionStatus, at time.Time) error
	ExpireStale(ctx context.Context, cutoff, at time.Time) (int64, error)
}
