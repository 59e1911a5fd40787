// Package services holds the drawer box use cases: card taps and sessions,
// tool selection and the per-drawer confirmation sequence.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/capture"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/metrics"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/repomanager"
)

// DefaultReaderID is the controller used when neither the configuration
// nor the session names one.
const DefaultReaderID = "rockpi-01"

// Capturer photographs and analyzes a drawer.
type Capturer interface {
	Capture(ctx context.Context, sessionID int64, drawer int) (*capture.Result, error)
}

// SequencerConfig picks the controller device the drawer commands go to.
type SequencerConfig struct {
	// ReaderID, when set, is the controller for every session.
	ReaderID string
	// DefaultReaderID is used when neither ReaderID nor the session
	// payload names a controller. Empty means DefaultReaderID.
	DefaultReaderID string
}

// Sequencer walks a session's drawers in ascending order: selection opens
// the first drawer, each confirmation closes the current one and opens the
// next, and the last confirmation finishes the session.
type Sequencer struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sender      hardware.Sender
	capturer    Capturer
	cfg         SequencerConfig
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewSequencer(db *sql.DB, repomanager repomanager.RepositoryManager, sender hardware.Sender, capturer Capturer,
	cfg SequencerConfig, logger logging.Logger, m *metrics.Metrics) *Sequencer {
	if cfg.DefaultReaderID == "" {
		cfg.DefaultReaderID = DefaultReaderID
	}
	return &Sequencer{
		db:          db,
		repomanager: repomanager,
		sender:      sender,
		capturer:    capturer,
		cfg:         cfg,
		logger:      logger.With("module", "sequencer"),
		metrics:     m,
		now:         time.Now,
	}
}

// SelectResult describes a selection. FirstDrawer is nil when no selected
// tool has a drawer; Open is then nil too.
type SelectResult struct {
	SessionID   int64
	Kind        models.MovementKind
	Movements   []models.Movement
	Tools       []models.Tool
	Drawers     []int
	FirstDrawer *int
	Open        *hardware.Result
}

// ConfirmResult describes one drawer confirmation.
type ConfirmResult struct {
	SessionID    int64
	Kind         models.MovementKind
	Drawer       int
	ImageRef     string
	VisionOK     bool
	Evidence     capture.Evidence
	Expected     []string
	Detected     []string
	Matches      []bool
	Movements    []models.Movement
	LEDOn        hardware.Result
	LEDOff       hardware.Result
	Close        hardware.Result
	OpenNext     *hardware.Result
	NextDrawer   *int
	SessionEnded bool
}

// ReaderID picks the controller for a session: the configured override,
// then the reader recorded in the session payload, then the default.
func (s *Sequencer) ReaderID(sess *models.Session) string {
	if s.cfg.ReaderID != "" {
		return s.cfg.ReaderID
	}
	if id := sess.ReaderID(); id != "" {
		return id
	}
	return s.cfg.DefaultReaderID
}

func (s *Sequencer) activeSession(ctx context.Context, id int64) (*models.Session, error) {
	sess, err := s.repomanager.Sessions(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return nil, fmt.Errorf("sessão não está em andamento (%s): %w", sess.Status.Label(), common.ErrorInvalidSessionState)
	}
	return sess, nil
}

// Select records one unconfirmed movement per eligible requested tool and
// opens the smallest drawer involved. A fresh withdrawal selection
// replaces the session's unconfirmed withdrawals.
func (s *Sequencer) Select(ctx context.Context, sessionID int64, kind models.MovementKind, toolIDs []int64) (*SelectResult, error) {
	res, err := s.selectTools(ctx, sessionID, kind, toolIDs)
	s.metrics.Selection(string(kind), outcome(err))
	return res, err
}

func (s *Sequencer) selectTools(ctx context.Context, sessionID int64, kind models.MovementKind, toolIDs []int64) (*SelectResult, error) {
	if len(toolIDs) == 0 {
		return nil, fmt.Errorf("a lista de ferramentas deve ter pelo menos 1 id: %w", common.ErrorInvalidInput)
	}
	if _, err := models.ParseMovementKind(string(kind)); err != nil {
		return nil, err
	}
	sess, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	requested := make(map[int64]struct{}, len(toolIDs))
	for _, id := range toolIDs {
		requested[id] = struct{}{}
	}

	// Withdrawals look at everybody's history, returns only at the owner's.
	var owner *int64
	if kind == models.Return {
		owner = &sess.PersonID
	}

	res := &SelectResult{SessionID: sessionID, Kind: kind}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Sessions(tx).LockActive(ctx, sessionID); err != nil {
			return err
		}
		movRepo := s.repomanager.Movements(tx)

		if kind == models.Withdrawal {
			if _, err := movRepo.DeleteUnconfirmed(ctx, sessionID, kind); err != nil {
				return err
			}
		}

		custody, err := movRepo.Custody(ctx, owner)
		if err != nil {
			return err
		}
		for _, c := range custody {
			if _, ok := requested[c.Tool.ID]; ok && c.EligibleFor(kind) {
				res.Tools = append(res.Tools, c.Tool)
			}
		}
		if len(res.Tools) == 0 {
			return fmt.Errorf("nenhuma ferramenta válida encontrada para os ids enviados: %w", common.ErrorNoEligibleTools)
		}

		for _, t := range res.Tools {
			m := models.Movement{
				SessionID:    sessionID,
				ToolID:       t.ID,
				ToolName:     t.Name,
				Kind:         kind,
				DrawerNumber: t.DrawerNumber,
				Quantity:     1,
			}
			if err := movRepo.Create(ctx, &m); err != nil {
				return err
			}
			res.Movements = append(res.Movements, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Drawers = distinctDrawers(res.Movements)
	if len(res.Drawers) > 0 {
		first := res.Drawers[0]
		res.FirstDrawer = &first
		open := s.drawerCommand(ctx, s.ReaderID(sess), hardware.OpenDrawer, first)
		res.Open = &open
	}

	s.logger.Info(ctx, "tools selected", "session_id", sessionID, "kind", string(kind),
		"movements", len(res.Movements), "drawers", res.Drawers)
	return res, nil
}

// Confirm photographs drawer, confirms every pending movement of kind in
// it, closes it and moves on to the next drawer. Once no movement of kind
// is left unconfirmed the session is finished, whatever the other kind
// still holds. Vision results are recorded but never block the
// confirmation.
func (s *Sequencer) Confirm(ctx context.Context, sessionID int64, kind models.MovementKind, drawer int) (*ConfirmResult, error) {
	res, err := s.confirm(ctx, sessionID, kind, drawer)
	s.metrics.Confirmation(string(kind), outcome(err))
	return res, err
}

func (s *Sequencer) confirm(ctx context.Context, sessionID int64, kind models.MovementKind, drawer int) (*ConfirmResult, error) {
	if _, err := models.ParseMovementKind(string(kind)); err != nil {
		return nil, err
	}
	sess, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pending, err := s.repomanager.Movements(s.db).Pending(ctx, sessionID, kind, drawer)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("não há movimentações de %s pendentes para a gaveta %d nesta sessão: %w",
			kind.Label(), drawer, common.ErrorNoPendingMovements)
	}

	device := s.ReaderID(sess)
	res := &ConfirmResult{SessionID: sessionID, Kind: kind, Drawer: drawer}

	// LED off and close still go out when the request is abandoned.
	cleanup := context.WithoutCancel(ctx)

	res.LEDOn = s.led(ctx, device, true)
	shot, err := s.capturer.Capture(ctx, sessionID, drawer)
	res.LEDOff = s.led(cleanup, device, false)
	if err != nil {
		if !errors.Is(err, common.ErrorCaptureFailed) {
			err = fmt.Errorf("%w: %w", common.ErrorCaptureFailed, err)
		}
		return nil, err
	}
	res.Close = s.drawerCommand(cleanup, device, hardware.CloseDrawer, drawer)

	res.ImageRef = shot.ImageRef
	res.Evidence = shot.Evidence
	res.Detected = []string{}
	if shot.Evidence.Report != nil && shot.Evidence.Report.Occupied != nil {
		res.Detected = shot.Evidence.Report.Occupied
	}
	detected := make(map[string]struct{}, len(res.Detected))
	for _, n := range res.Detected {
		detected[n] = struct{}{}
	}
	for _, m := range pending {
		_, ok := detected[m.ToolName]
		res.Expected = append(res.Expected, m.ToolName)
		res.Matches = append(res.Matches, ok)
		res.VisionOK = res.VisionOK || ok
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessRepo := s.repomanager.Sessions(tx)
		if _, err := sessRepo.LockActive(ctx, sessionID); err != nil {
			return err
		}
		movRepo := s.repomanager.Movements(tx)
		for _, m := range pending {
			if err := movRepo.Confirm(ctx, m.ID, shot.ImageRef); err != nil {
				return err
			}
			m.Confirmed = true
			m.EvidenceRef = shot.ImageRef
			res.Movements = append(res.Movements, m)
		}

		next, err := movRepo.NextDrawer(ctx, sessionID, kind)
		if err != nil {
			return err
		}
		res.NextDrawer = next
		if next != nil {
			return nil
		}

		// Movements of kind without a drawer keep the session open.
		remaining, err := movRepo.CountUnconfirmedKind(ctx, sessionID, kind)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if err := sessRepo.Transition(ctx, sessionID, models.SessionFinished, s.now()); err != nil {
			return err
		}
		res.SessionEnded = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.NextDrawer != nil {
		open := s.drawerCommand(ctx, device, hardware.OpenDrawer, *res.NextDrawer)
		res.OpenNext = &open
	}
	if res.SessionEnded {
		s.metrics.SessionTransition(string(models.SessionFinished), 1)
	}

	s.logger.Info(ctx, "drawer confirmed", "session_id", sessionID, "kind", string(kind), "drawer", drawer,
		"vision_ok", res.VisionOK, "next_drawer", res.NextDrawer, "session_ended", res.SessionEnded)
	return res, nil
}

func (s *Sequencer) drawerCommand(ctx context.Context, device string, kind hardware.CommandKind, drawer int) hardware.Result {
	cmd, err := hardware.NewDrawerCommand(kind, drawer)
	if err != nil {
		return hardware.Result{Error: err.Error()}
	}
	return s.send(ctx, device, cmd)
}

func (s *Sequencer) led(ctx context.Context, device string, on bool) hardware.Result {
	return s.send(ctx, device, hardware.NewLEDCommand(on))
}

func (s *Sequencer) send(ctx context.Context, device string, cmd hardware.Command) hardware.Result {
	r := s.sender.Send(ctx, device, cmd)
	s.metrics.Command(cmd.Kind().String(), r.OK)
	if !r.OK {
		s.logger.Warn(ctx, "hardware command failed", "device", device, "alias", cmd.Alias(), "error", r.Error)
	}
	return r
}

func distinctDrawers(ms []models.Movement) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, m := range ms {
		if m.DrawerNumber == nil {
			continue
		}
		if _, ok := seen[*m.DrawerNumber]; ok {
			continue
		}
		seen[*m.DrawerNumber] = struct{}{}
		out = append(out, *m.DrawerNumber)
	}
	sort.Ints(out)
	return out
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, common.ErrorInvalidInput),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrorInvalidSessionState),
		errors.Is(err, common.ErrorNoEligibleTools),
		errors.Is(err, common.ErrorNoPendingMovements):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
