package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/evidence"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/metrics"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/services"
)

// -------- test fakes --------

type fakeIdentity struct {
	IdentityService
	tap     *services.TapResult
	tapErr  error
	lastTap hardware.CardRead

	active    *models.Session
	activeErr error
}

func (f *fakeIdentity) ProcessTap(ctx context.Context, read hardware.CardRead) (*services.TapResult, error) {
	f.lastTap = read
	return f.tap, f.tapErr
}

func (f *fakeIdentity) ActiveSession(ctx context.Context) (*models.Session, error) {
	return f.active, f.activeErr
}

type fakeSessions struct {
	SessionService
	snap   *services.SessionSnapshot
	sess   *models.Session
	err    error
	calls  []string
	lastID int64
}

func (f *fakeSessions) Snapshot(ctx context.Context, id int64) (*services.SessionSnapshot, error) {
	f.calls, f.lastID = append(f.calls, "snapshot"), id
	return f.snap, f.err
}

func (f *fakeSessions) Finalize(ctx context.Context, id int64) (*models.Session, error) {
	f.calls, f.lastID = append(f.calls, "finalize"), id
	return f.sess, f.err
}

func (f *fakeSessions) Cancel(ctx context.Context, id int64) (*models.Session, error) {
	f.calls, f.lastID = append(f.calls, "cancel"), id
	return f.sess, f.err
}

type fakeInventory struct {
	InventoryService
	drawers []models.Drawer
	held    []models.Tool
	err     error
}

func (f *fakeInventory) AvailableTools(ctx context.Context) ([]models.Drawer, error) {
	return f.drawers, f.err
}

func (f *fakeInventory) HeldTools(ctx context.Context, sessionID int64) ([]models.Tool, error) {
	return f.held, f.err
}

type selectCall struct {
	sessionID int64
	kind      models.MovementKind
	toolIDs   []int64
}

type confirmCall struct {
	sessionID int64
	kind      models.MovementKind
	drawer    int
}

type fakeSequencer struct {
	Sequencer
	selectRes  *services.SelectResult
	selectErr  error
	confirmRes *services.ConfirmResult
	confirmErr error

	selects  []selectCall
	confirms []confirmCall
}

func (f *fakeSequencer) Select(ctx context.Context, sessionID int64, kind models.MovementKind, toolIDs []int64) (*services.SelectResult, error) {
	f.selects = append(f.selects, selectCall{sessionID, kind, toolIDs})
	return f.selectRes, f.selectErr
}

func (f *fakeSequencer) Confirm(ctx context.Context, sessionID int64, kind models.MovementKind, drawer int) (*services.ConfirmResult, error) {
	f.confirms = append(f.confirms, confirmCall{sessionID, kind, drawer})
	return f.confirmRes, f.confirmErr
}

// presignStore behaves like the S3 driver without a bucket.
type presignStore struct {
	evidence.Store
}

func (presignStore) Driver() evidence.Driver { return evidence.DriverS3 }

func (presignStore) URL(_ context.Context, key string) (string, error) {
	return "https://bucket.example/" + key + "?X-Amz-Signature=abc", nil
}

func (presignStore) Get(context.Context, string) (io.ReadCloser, string, error) {
	return nil, "", fmt.Errorf("unexpected Get: %w", common.ErrorInternal)
}

// -------- harness --------

type harness struct {
	identity  *fakeIdentity
	sessions  *fakeSessions
	inventory *fakeInventory
	sequencer *fakeSequencer
	store     evidence.Store
	metrics   *metrics.Metrics
	handler   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		identity:  &fakeIdentity{},
		sessions:  &fakeSessions{},
		inventory: &fakeInventory{},
		sequencer: &fakeSequencer{},
		store:     evidence.NewMemoryStore(),
		metrics:   metrics.New(),
	}
	h.rebuild()
	return h
}

func (h *harness) rebuild() {
	srv := NewServer("127.0.0.1:0", Deps{
		Identity:  h.identity,
		Sessions:  h.sessions,
		Inventory: h.inventory,
		Sequencer: h.sequencer,
		Evidence:  h.store,
	}, logging.NewNopLogger(), h.metrics)
	h.handler = srv.Handler()
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func intPtr(v int) *int { return &v }

var started = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func activeSession() *models.Session {
	return &models.Session{
		ID:         7,
		PersonID:   1,
		PersonName: "Ana",
		Status:     models.SessionActive,
		StartedAt:  started,
		Payload:    []byte(`{"uid":"AB12","reader_id":"rockpi-07"}`),
	}
}

func requireDetail(t *testing.T, rec *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.JSONEq(t, fmt.Sprintf(`{"detail":%q}`, detail), rec.Body.String())
}
