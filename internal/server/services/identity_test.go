package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

func (f *fixture) identityService() *IdentityService {
	f.rm.id.cards = map[string]*models.Identity{
		"04A1B2C3": {
			Card:   models.Card{ID: 7, UID: "04A1B2C3", PersonID: personAna, Active: true},
			Person: models.Person{ID: personAna, Name: "Ana", Registration: "M-001"},
		},
	}
	return NewIdentityService(f.db, f.rm, 30*time.Minute, logging.NewNopLogger(), nil)
}

func TestIdentityService_ProcessTap_Authorized(t *testing.T) {
	f := newFixture(t)
	s := f.identityService()
	expectTx(f.mock, 1)

	read, err := hardware.ParseCardRead([]byte(`{"uid":"04A1B2C3","reader_id":"rockpi-03"}`))
	require.NoError(t, err)

	res, err := s.ProcessTap(context.Background(), read)
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.Equal(t, "Ana", res.Person.Name)
	assert.Equal(t, "M-001", res.Person.Registration)
	assert.Equal(t, "rockpi-03", res.ReaderID)
	require.NotNil(t, res.Session)
	assert.Equal(t, models.SessionActive, res.Session.Status)
	assert.Equal(t, "rockpi-03", res.Session.ReaderID())
	assert.Equal(t, []int64{7}, f.rm.id.touched)

	stored, err := f.rm.s.GetByID(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, personAna, stored.PersonID)
	require.NotNil(t, stored.CardID)
	assert.Equal(t, int64(7), *stored.CardID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestIdentityService_ProcessTap_Unauthorized(t *testing.T) {
	f := newFixture(t)
	s := f.identityService()

	res, err := s.ProcessTap(context.Background(), hardware.CardRead{UID: "FFFF"})
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.Equal(t, UnauthorizedReason, res.Reason)
	assert.Nil(t, res.Session)
	assert.Empty(t, f.rm.id.touched)
}

func TestIdentityService_ProcessTap_Errors(t *testing.T) {
	f := newFixture(t)
	s := f.identityService()

	_, err := s.ProcessTap(context.Background(), hardware.CardRead{UID: "  "})
	assert.ErrorIs(t, err, common.ErrorInvalidInput)

	f.rm.id.err = errors.New("db down")
	_, err = s.ProcessTap(context.Background(), hardware.CardRead{UID: "04A1B2C3"})
	assert.EqualError(t, err, "db down")

	assert.Error(t, s.HandleTap(context.Background(), hardware.CardRead{}))
}

func TestTapPayload(t *testing.T) {
	tests := []struct {
		name string
		read hardware.CardRead
		want map[string]any
	}{
		{
			name: "raw kept",
			read: hardware.CardRead{UID: "A", ReaderID: "r1", Raw: json.RawMessage(`{"uid":"A","reader_id":"r1","rssi":-40}`)},
			want: map[string]any{"uid": "A", "reader_id": "r1", "rssi": -40.0},
		},
		{
			name: "reader injected",
			read: hardware.CardRead{UID: "A", ReaderID: "r2", Raw: json.RawMessage(`{"uid":"A"}`)},
			want: map[string]any{"uid": "A", "reader_id": "r2"},
		},
		{
			name: "no raw",
			read: hardware.CardRead{UID: "A"},
			want: map[string]any{"uid": "A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tapPayload(tt.read)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := tapPayload(hardware.CardRead{UID: "A", Raw: json.RawMessage(`[1]`)})
	assert.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestIdentityService_ActiveSession(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	f.rm.s.rows[1].StartedAt = now.Add(-10 * time.Minute)
	f.rm.s.rows[2].StartedAt = now.Add(-40 * time.Minute)

	s := f.identityService()
	s.now = func() time.Time { return now }

	sess, err := s.ActiveSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.ID)

	f.rm.s.rows[1].Status = models.SessionFinished
	_, err = s.ActiveSession(context.Background())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
