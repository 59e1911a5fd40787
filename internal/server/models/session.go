package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
)

// SessionStatus is stored as a single-letter code.
type SessionStatus string

const (
	SessionActive    SessionStatus = "A"
	SessionFinished  SessionStatus = "F"
	SessionCancelled SessionStatus = "C"
	SessionExpired   SessionStatus = "E"
)

// Label returns the human-readable status shown to callers.
func (s SessionStatus) Label() string {
	switch s {
	case SessionActive:
		return "Em andamento"
	case SessionFinished:
		return "Finalizada"
	case SessionCancelled:
		return "Cancelada"
	case SessionExpired:
		return "Expirada / Timeout"
	default:
		return string(s)
	}
}

func (s SessionStatus) Terminal() bool {
	return s == SessionFinished || s == SessionCancelled || s == SessionExpired
}

// CheckTransition allows only Active to a terminal status.
func (s SessionStatus) CheckTransition(to SessionStatus) error {
	if s != SessionActive {
		return fmt.Errorf("session is %q: %w", s.Label(), common.ErrorInvalidSessionState)
	}
	if !to.Terminal() {
		return fmt.Errorf("cannot move session to %q: %w", to, common.ErrorInvalidSessionState)
	}
	return nil
}

// Session is one interaction started by a card tap.
type Session struct {
	ID         int64
	PersonID   int64
	PersonName string
	CardID     *int64
	Status     SessionStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Payload    json.RawMessage
}

func (s *Session) Active() bool {
	return s.Status == SessionActive
}

// ReaderID returns the "reader_id" carried in the initial payload, if any.
func (s *Session) ReaderID() string {
	if len(s.Payload) == 0 {
		return ""
	}
	var p struct {
		ReaderID string `json:"reader_id"`
	}
	if err := json.Unmarshal(s.Payload, &p); err != nil {
		return ""
	}
	return p.ReaderID
}
