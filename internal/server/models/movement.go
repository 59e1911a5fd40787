package models

import (
	"fmt"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
)

// MovementKind is stored as a single-letter code.
type MovementKind string

const (
	Withdrawal MovementKind = "R"
	Return     MovementKind = "D"
)

func ParseMovementKind(s string) (MovementKind, error) {
	switch MovementKind(s) {
	case Withdrawal, Return:
		return MovementKind(s), nil
	}
	return "", fmt.Errorf("movement kind %q: %w", s, common.ErrorInvalidInput)
}

func (k MovementKind) Label() string {
	switch k {
	case Withdrawal:
		return "Retirada"
	case Return:
		return "Devolução"
	default:
		return string(k)
	}
}

// Movement is one tool's pending or confirmed withdrawal or return inside
// a session. DrawerNumber is a snapshot taken at selection time.
type Movement struct {
	ID           int64
	SessionID    int64
	ToolID       int64
	ToolName     string
	Kind         MovementKind
	DrawerNumber *int
	Quantity     int
	EvidenceRef  string
	Confirmed    bool
	CreatedAt    time.Time
}
