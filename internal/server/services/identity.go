package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/metrics"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/repomanager"
)

// UnauthorizedReason is returned for unknown or inactive cards.
const UnauthorizedReason = "Cartão não autorizado ou não cadastrado."

// TapResult is the outcome of a card tap. When Authorized is false only
// Reason is set.
type TapResult struct {
	Authorized bool
	Reason     string
	Session    *models.Session
	Person     models.Person
	ReaderID   string
}

// IdentityService turns card taps into sessions.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	window      time.Duration
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewIdentityService(db *sql.DB, repomanager repomanager.RepositoryManager, window time.Duration, logger logging.Logger, m *metrics.Metrics) *IdentityService {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &IdentityService{
		db:          db,
		repomanager: repomanager,
		window:      window,
		logger:      logger.With("module", "identity"),
		metrics:     m,
		now:         time.Now,
	}
}

// ProcessTap resolves the card and, if it is active, opens a session
// carrying the tap payload.
func (s *IdentityService) ProcessTap(ctx context.Context, read hardware.CardRead) (*TapResult, error) {
	uid := strings.TrimSpace(read.UID)
	if uid == "" {
		return nil, fmt.Errorf("campo 'uid' é obrigatório: %w", common.ErrorInvalidInput)
	}

	ident, err := s.repomanager.Identity(s.db).ActiveCardByUID(ctx, uid)
	if errors.Is(err, common.ErrorNotFound) {
		s.metrics.Tap(false)
		s.logger.Warn(ctx, "card not authorized", "uid", uid, "reader_id", read.ReaderID)
		return &TapResult{Authorized: false, Reason: UnauthorizedReason}, nil
	}
	if err != nil {
		return nil, err
	}

	payload, err := tapPayload(read)
	if err != nil {
		return nil, err
	}

	sess := &models.Session{
		PersonID:   ident.Person.ID,
		PersonName: ident.Person.Name,
		CardID:     &ident.Card.ID,
		Payload:    payload,
	}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Identity(tx).TouchCard(ctx, ident.Card.ID, s.now()); err != nil {
			return err
		}
		return s.repomanager.Sessions(tx).Create(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Tap(true)
	s.logger.Info(ctx, "session created from card", "session_id", sess.ID, "person", ident.Person.Name, "uid", uid)

	return &TapResult{
		Authorized: true,
		Session:    sess,
		Person:     ident.Person,
		ReaderID:   read.ReaderID,
	}, nil
}

// HandleTap adapts ProcessTap to the RFID bridge.
func (s *IdentityService) HandleTap(ctx context.Context, read hardware.CardRead) error {
	_, err := s.ProcessTap(ctx, read)
	return err
}

// ActiveSession returns the latest Active session started inside the
// window, or common.ErrorNotFound.
func (s *IdentityService) ActiveSession(ctx context.Context) (*models.Session, error) {
	return s.repomanager.Sessions(s.db).LatestActive(ctx, s.now().Add(-s.window))
}

// tapPayload keeps the reader document as the session payload and makes
// sure it carries reader_id when the read has one.
func tapPayload(read hardware.CardRead) (json.RawMessage, error) {
	doc := map[string]any{}
	if len(read.Raw) > 0 {
		if err := json.Unmarshal(read.Raw, &doc); err != nil {
			return nil, fmt.Errorf("tap payload: %w", common.ErrorInvalidInput)
		}
	} else {
		doc["uid"] = read.UID
	}
	if _, ok := doc["reader_id"]; !ok && read.ReaderID != "" {
		doc["reader_id"] = read.ReaderID
	}
	return json.Marshal(doc)
}
