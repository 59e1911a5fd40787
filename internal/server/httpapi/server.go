// Package httpapi exposes the drawer box use cases as a JSON API for the
// kiosk front end, plus evidence downloads, metrics and a liveness probe.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/evidence"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/metrics"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/services"
)

type IdentityService interface {
	ProcessTap(ctx context.Context, read hardware.CardRead) (*services.TapResult, error)
	ActiveSession(ctx context.Context) (*models.Session, error)
}

type SessionService interface {
	Snapshot(ctx context.Context, id int64) (*services.SessionSnapshot, error)
	Finalize(ctx context.Context, id int64) (*models.Session, error)
	Cancel(ctx context.Context, id int64) (*models.Session, error)
}

type InventoryService interface {
	AvailableTools(ctx context.Context) ([]models.Drawer, error)
	HeldTools(ctx context.Context, sessionID int64) ([]models.Tool, error)
}

type Sequencer interface {
	Select(ctx context.Context, sessionID int64, kind models.MovementKind, toolIDs []int64) (*services.SelectResult, error)
	Confirm(ctx context.Context, sessionID int64, kind models.MovementKind, drawer int) (*services.ConfirmResult, error)
}

// Ensure the concrete services satisfy the handler dependencies.
var (
	_ IdentityService  = (*services.IdentityService)(nil)
	_ SessionService   = (*services.SessionService)(nil)
	_ InventoryService = (*services.InventoryService)(nil)
	_ Sequencer        = (*services.Sequencer)(nil)
)

// Deps bundles what the handlers call into.
type Deps struct {
	Identity  IdentityService
	Sessions  SessionService
	Inventory InventoryService
	Sequencer Sequencer
	Evidence  evidence.Store
}

type Server struct {
	address string
	deps    Deps
	logger  logging.Logger
	metrics *metrics.Metrics

	// ShutdownTimeout bounds the graceful stop once ctx is done.
	ShutdownTimeout time.Duration
}

func NewServer(address string, deps Deps, logger logging.Logger, m *metrics.Metrics) *Server {
	return &Server{
		address:         address,
		deps:            deps,
		logger:          logger.With("module", "httpapi"),
		metrics:         m,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Confirmations wait for the camera and the analysis.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
