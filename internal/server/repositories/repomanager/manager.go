package repomanager

import (
	"context"
	"database/sql"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/identity"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/inventory"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/movements"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
	Movements(db dbx.DBTX) movements.Repository
	Inventory(db dbx.DBTX) inventory.Repository
	Identity(db dbx.DBTX) identity.Repository
}
