package services

import (
	"context"
	"database/sql"
	"sort"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/repomanager"
)

type InventoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewInventoryService(db *sql.DB, repomanager repomanager.RepositoryManager) *InventoryService {
	return &InventoryService{db: db, repomanager: repomanager}
}

// AvailableTools lists active drawers by number, each with its active
// tools by position and name.
func (s *InventoryService) AvailableTools(ctx context.Context) ([]models.Drawer, error) {
	return s.repomanager.Inventory(s.db).ActiveDrawers(ctx)
}

// HeldTools lists the tools the session owner currently holds.
func (s *InventoryService) HeldTools(ctx context.Context, sessionID int64) ([]models.Tool, error) {
	sess, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	custody, err := s.repomanager.Movements(s.db).Custody(ctx, &sess.PersonID)
	if err != nil {
		return nil, err
	}

	var held []models.Tool
	for _, c := range custody {
		if c.EligibleFor(models.Return) {
			held = append(held, c.Tool)
		}
	}
	sort.SliceStable(held, func(i, j int) bool {
		a, b := held[i].DrawerNumber, held[j].DrawerNumber
		switch {
		case a == nil || b == nil:
			return a != nil && b == nil
		case *a != *b:
			return *a < *b
		default:
			return held[i].Position < held[j].Position
		}
	})
	return held, nil
}
