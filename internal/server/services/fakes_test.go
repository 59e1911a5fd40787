package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/dbx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/capture"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/identity"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/inventory"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/movements"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/repomanager"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/repositories/sessions"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/vision"
)

// -------- test fakes --------

type fakeSessionsRepo struct {
	sessions.Repository
	rows    map[int64]*models.Session
	nextID  int64
	expired int64
	err     error

	// beforeLock runs at the start of LockActive.
	beforeLock func()
}

func newFakeSessions() *fakeSessionsRepo {
	return &fakeSessionsRepo{rows: map[int64]*models.Session{}, nextID: 100}
}

func (f *fakeSessionsRepo) add(s models.Session) {
	cp := s
	f.rows[s.ID] = &cp
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.Session) error {
	if f.err != nil {
		return f.err
	}
	f.nextID++
	s.ID = f.nextID
	s.Status = models.SessionActive
	s.StartedAt = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	f.add(*s)
	return nil
}

func (f *fakeSessionsRepo) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, common.ErrorNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionsRepo) LockActive(ctx context.Context, id int64) (*models.Session, error) {
	if f.beforeLock != nil {
		f.beforeLock()
	}
	s, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Active() {
		return nil, fmt.Errorf("session %d is %s: %w", id, s.Status.Label(), common.ErrorInvalidSessionState)
	}
	return s, nil
}

func (f *fakeSessionsRepo) LatestActive(ctx context.Context, since time.Time) (*models.Session, error) {
	var best *models.Session
	for _, s := range f.rows {
		if s.Status != models.SessionActive || s.StartedAt.Before(since) {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeSessionsRepo) Transition(ctx context.Context, id int64, to models.SessionStatus, at time.Time) error {
	s, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("session %d is not active: %w", id, common.ErrorInvalidSessionState)
	}
	if err := s.Status.CheckTransition(to); err != nil {
		return err
	}
	s.Status = to
	s.FinishedAt = &at
	return nil
}

func (f *fakeSessionsRepo) ExpireStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, s := range f.rows {
		if s.Status == models.SessionActive && s.StartedAt.Before(cutoff) {
			s.Status = models.SessionExpired
			s.FinishedAt = &at
			n++
		}
	}
	f.expired += n
	return n, nil
}

// fakeMovementsRepo keeps movements in memory with the same custody and
// ordering rules as the SQL implementation.
type fakeMovementsRepo struct {
	movements.Repository
	tools    []models.Tool
	sessions *fakeSessionsRepo
	rows     []*models.Movement
	nextID   int64

	confirmErr error
}

func (f *fakeMovementsRepo) owner(sessionID int64) int64 {
	if s, ok := f.sessions.rows[sessionID]; ok {
		return s.PersonID
	}
	return 0
}

func (f *fakeMovementsRepo) Custody(ctx context.Context, ownerID *int64) ([]models.ToolCustody, error) {
	var out []models.ToolCustody
	for _, t := range f.tools {
		c := models.ToolCustody{Tool: t}
		for _, m := range f.rows {
			if m.ToolID != t.ID || !m.Confirmed {
				continue
			}
			if ownerID != nil && f.owner(m.SessionID) != *ownerID {
				continue
			}
			k := m.Kind
			c.LastConfirmed = &k
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeMovementsRepo) DeleteUnconfirmed(ctx context.Context, sessionID int64, kind models.MovementKind) (int64, error) {
	var keep []*models.Movement
	var n int64
	for _, m := range f.rows {
		if m.SessionID == sessionID && m.Kind == kind && !m.Confirmed {
			n++
			continue
		}
		keep = append(keep, m)
	}
	f.rows = keep
	return n, nil
}

func (f *fakeMovementsRepo) Create(ctx context.Context, m *models.Movement) error {
	f.nextID++
	m.ID = f.nextID
	if m.Quantity == 0 {
		m.Quantity = 1
	}
	cp := *m
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeMovementsRepo) unconfirmed(sessionID int64, kind models.MovementKind) []*models.Movement {
	var out []*models.Movement
	for _, m := range f.rows {
		if m.SessionID == sessionID && m.Kind == kind && !m.Confirmed {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMovementsRepo) Pending(ctx context.Context, sessionID int64, kind models.MovementKind, drawer int) ([]models.Movement, error) {
	var out []models.Movement
	for _, m := range f.unconfirmed(sessionID, kind) {
		if m.DrawerNumber != nil && *m.DrawerNumber == drawer {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMovementsRepo) Confirm(ctx context.Context, id int64, ref string) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	for _, m := range f.rows {
		if m.ID == id && !m.Confirmed {
			m.Confirmed = true
			m.EvidenceRef = ref
			return nil
		}
	}
	return fmt.Errorf("movement %d already confirmed: %w", id, common.ErrorNoPendingMovements)
}

func (f *fakeMovementsRepo) PendingDrawers(ctx context.Context, sessionID int64, kind models.MovementKind) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, m := range f.unconfirmed(sessionID, kind) {
		if m.DrawerNumber != nil && !seen[*m.DrawerNumber] {
			seen[*m.DrawerNumber] = true
			out = append(out, *m.DrawerNumber)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (f *fakeMovementsRepo) NextDrawer(ctx context.Context, sessionID int64, kind models.MovementKind) (*int, error) {
	drawers, _ := f.PendingDrawers(ctx, sessionID, kind)
	if len(drawers) == 0 {
		return nil, nil
	}
	return &drawers[0], nil
}

func (f *fakeMovementsRepo) CountUnconfirmed(ctx context.Context, sessionID int64) (int, error) {
	n := 0
	for _, m := range f.rows {
		if m.SessionID == sessionID && !m.Confirmed {
			n++
		}
	}
	return n, nil
}

func (f *fakeMovementsRepo) CountUnconfirmedKind(ctx context.Context, sessionID int64, kind models.MovementKind) (int, error) {
	return len(f.unconfirmed(sessionID, kind)), nil
}

func (f *fakeMovementsRepo) forSession(sessionID int64) []models.Movement {
	var out []models.Movement
	for _, m := range f.rows {
		if m.SessionID == sessionID {
			out = append(out, *m)
		}
	}
	return out
}

type fakeIdentityRepo struct {
	identity.Repository
	cards   map[string]*models.Identity
	touched []int64
	err     error
}

func (f *fakeIdentityRepo) ActiveCardByUID(ctx context.Context, uid string) (*models.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.cards[uid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return id, nil
}

func (f *fakeIdentityRepo) TouchCard(ctx context.Context, cardID int64, at time.Time) error {
	f.touched = append(f.touched, cardID)
	return nil
}

type fakeInventoryRepo struct {
	inventory.Repository
	drawers []models.Drawer
	err     error
}

func (f *fakeInventoryRepo) ActiveDrawers(ctx context.Context) ([]models.Drawer, error) {
	return f.drawers, f.err
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	s   *fakeSessionsRepo
	m   *fakeMovementsRepo
	id  *fakeIdentityRepo
	inv *fakeInventoryRepo
}

func (m *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository   { return m.s }
func (m *fakeRepoManager) Movements(dbx.DBTX) movements.Repository { return m.m }
func (m *fakeRepoManager) Identity(dbx.DBTX) identity.Repository   { return m.id }
func (m *fakeRepoManager) Inventory(dbx.DBTX) inventory.Repository { return m.inv }

type fakeSender struct {
	aliases []string
	devices []string
	ctxErrs []error
	fail    map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, device string, cmd hardware.Command) hardware.Result {
	f.aliases = append(f.aliases, cmd.Alias())
	f.devices = append(f.devices, device)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.fail[cmd.Alias()] {
		return hardware.Result{OK: false, Error: "publish timeout"}
	}
	return hardware.Result{OK: true, Topic: "tcc/caixa/" + device + "/run", Payload: &hardware.Envelope{Alias: cmd.Alias()}}
}

type fakeCapturer struct {
	occupied []string
	err      error
	calls    int

	// during runs while the photo is being taken.
	during func()
}

func (f *fakeCapturer) Capture(ctx context.Context, sessionID int64, drawer int) (*capture.Result, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	ref := fmt.Sprintf("sessoes/%d/sessao%d_gaveta%d.jpg", sessionID, sessionID, drawer)
	ev := capture.Evidence{OK: true}
	if f.occupied != nil {
		ev.Report = &vision.Report{Occupied: f.occupied}
	}
	return &capture.Result{ImageRef: ref, OK: true, Evidence: ev}, nil
}

// -------- helpers --------

func intp(v int) *int { return &v }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// expectTx queues n committed transactions.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

// fixture is a box with three drawers: alicate in 2, martelo in 1,
// chave in 3, plus a tool without drawer and an inactive one.
type fixture struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	rm     *fakeRepoManager
	sender *fakeSender
	cam    *fakeCapturer
}

const (
	toolAlicate int64 = iota + 1
	toolMartelo
	toolChave
	toolLoose
	toolRetired
)

const (
	personAna   int64 = 10
	personBruno int64 = 20
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	ss := newFakeSessions()
	ss.add(models.Session{ID: 1, PersonID: personAna, PersonName: "Ana", Status: models.SessionActive,
		Payload: []byte(`{"uid":"AA","reader_id":"rockpi-07"}`)})
	ss.add(models.Session{ID: 2, PersonID: personBruno, PersonName: "Bruno", Status: models.SessionActive})
	ss.add(models.Session{ID: 3, PersonID: personAna, PersonName: "Ana", Status: models.SessionFinished})

	mv := &fakeMovementsRepo{
		sessions: ss,
		tools: []models.Tool{
			{ID: toolAlicate, Name: "alicate", DrawerNumber: intp(2), Active: true, Position: 1},
			{ID: toolMartelo, Name: "martelo", DrawerNumber: intp(1), Active: true, Position: 1},
			{ID: toolChave, Name: "chave", DrawerNumber: intp(3), Active: true, Position: 1},
			{ID: toolLoose, Name: "trena", Active: true},
			{ID: toolRetired, Name: "serrote", DrawerNumber: intp(1), Position: 2},
		},
	}
	return &fixture{
		db:     db,
		mock:   mock,
		rm:     &fakeRepoManager{s: ss, m: mv, id: &fakeIdentityRepo{}, inv: &fakeInventoryRepo{}},
		sender: &fakeSender{},
		cam:    &fakeCapturer{},
	}
}

// confirmed records a confirmed movement of kind for tool in session.
func (f *fixture) confirmed(session, tool int64, kind models.MovementKind) {
	f.rm.m.nextID++
	f.rm.m.rows = append(f.rm.m.rows, &models.Movement{
		ID: f.rm.m.nextID, SessionID: session, ToolID: tool, Kind: kind,
		Quantity: 1, Confirmed: true, EvidenceRef: "old.jpg",
	})
}
