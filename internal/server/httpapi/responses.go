package httpapi

import (
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/capture"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

type tapRequest struct {
	UID      string `json:"uid"`
	ReaderID string `json:"reader_id"`
}

type collaboratorJSON struct {
	ID           int64  `json:"id"`
	Name         string `json:"nome"`
	Registration string `json:"matricula"`
}

type tapResponse struct {
	Authorized   bool              `json:"authorized"`
	Reason       string            `json:"reason,omitempty"`
	SessionID    int64             `json:"session_id,omitempty"`
	Collaborator *collaboratorJSON `json:"colaborador,omitempty"`
	ReaderID     string            `json:"reader_id,omitempty"`
	Status       string            `json:"status,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
}

type statusResponse struct {
	OK            bool   `json:"ok"`
	ActiveSession bool   `json:"sessao_ativa"`
	SessionID     int64  `json:"sessao_id,omitempty"`
	Collaborator  string `json:"colaborador,omitempty"`
}

type toolJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"nome"`
	Code        string `json:"codigo"`
	Position    int    `json:"posicao"`
	Quantity    int    `json:"quantidade"`
	Description string `json:"descricao"`
}

type drawerJSON struct {
	ID          int64      `json:"id"`
	Number      int        `json:"numero"`
	Name        string     `json:"nome"`
	Description string     `json:"descricao"`
	Tools       []toolJSON `json:"ferramentas"`
}

type toolsResponse struct {
	Drawers []drawerJSON `json:"gavetas"`
}

func toDrawers(ds []models.Drawer) toolsResponse {
	out := toolsResponse{Drawers: make([]drawerJSON, 0, len(ds))}
	for _, d := range ds {
		dj := drawerJSON{ID: d.ID, Number: d.Number, Name: d.Name, Description: d.Description, Tools: make([]toolJSON, 0, len(d.Tools))}
		for _, t := range d.Tools {
			dj.Tools = append(dj.Tools, toolJSON{
				ID:          t.ID,
				Name:        t.Name,
				Code:        t.Code,
				Position:    t.Position,
				Quantity:    t.Quantity,
				Description: t.Description,
			})
		}
		out.Drawers = append(out.Drawers, dj)
	}
	return out
}

// selectRequest accepts "ferramentas" as an older name of "ferramentas_ids".
type selectRequest struct {
	ToolIDs []int64 `json:"ferramentas_ids"`
	Tools   []int64 `json:"ferramentas"`
}

func (r selectRequest) ids() []int64 {
	if len(r.ToolIDs) > 0 {
		return r.ToolIDs
	}
	return r.Tools
}

type selectedToolJSON struct {
	ID           int64  `json:"id"`
	Name         string `json:"nome"`
	DrawerNumber *int   `json:"gaveta_numero"`
	DrawerName   string `json:"gaveta_nome"`
}

type selectResponse struct {
	OK          bool               `json:"ok"`
	SessionID   int64              `json:"sessao_id"`
	Withdrawals []selectedToolJSON `json:"ferramentas_selecionadas,omitempty"`
	Returns     []selectedToolJSON `json:"ferramentas_devolucao,omitempty"`
	Drawers     []int              `json:"gavetas_envolvidas"`
	FirstDrawer *int               `json:"primeira_gaveta"`
	MQTT        *hardware.Result   `json:"mqtt"`
}

type matchJSON struct {
	Expected []string `json:"esperadas"`
	Detected []string `json:"detectadas"`
}

type movementJSON struct {
	ID              int64  `json:"id"`
	ToolID          int64  `json:"ferramenta_id"`
	ToolName        string `json:"ferramenta_nome"`
	DrawerNumber    *int   `json:"gaveta_numero"`
	Quantity        int    `json:"quantidade"`
	ImagePath       string `json:"imagem_path"`
	VisionConfirmed bool   `json:"confirmado_visao"`
}

type ledJSON struct {
	On  hardware.Result `json:"on"`
	Off hardware.Result `json:"off"`
}

type confirmResponse struct {
	Detail       string           `json:"detail"`
	SessionID    int64            `json:"sessao_id"`
	Drawer       int              `json:"gaveta_numero"`
	Image        string           `json:"imagem"`
	VisionOK     bool             `json:"visao_ok"`
	VisionRaw    capture.Evidence `json:"visao_raw"`
	Match        matchJSON        `json:"match_visao"`
	Movements    []movementJSON   `json:"movimentacoes_atualizadas"`
	LED          ledJSON          `json:"led"`
	Close        hardware.Result  `json:"fechar_gaveta"`
	OpenNext     *hardware.Result `json:"abrir_proxima_gaveta"`
	NextDrawer   *int             `json:"proxima_gaveta"`
	SessionEnded bool             `json:"sessao_encerrada"`
}

func confirmDetail(kind models.MovementKind) string {
	if kind == models.Return {
		return "Devolução confirmada com captura de imagem e visão."
	}
	return "Retirada confirmada com captura de imagem e visão."
}

type sessionJSON struct {
	ID           int64            `json:"id"`
	Collaborator collaboratorJSON `json:"colaborador"`
	Status       string           `json:"status"`
	StatusCode   string           `json:"status_codigo"`
	StartedAt    time.Time        `json:"iniciada_em"`
	FinishedAt   *time.Time       `json:"finalizada_em"`
	ReaderID     string           `json:"reader_id,omitempty"`
}

func toSession(s *models.Session) sessionJSON {
	return sessionJSON{
		ID:           s.ID,
		Collaborator: collaboratorJSON{ID: s.PersonID, Name: s.PersonName},
		Status:       s.Status.Label(),
		StatusCode:   string(s.Status),
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		ReaderID:     s.ReaderID(),
	}
}

type pendingJSON struct {
	Withdrawal []int `json:"retirada"`
	Return     []int `json:"devolucao"`
}

type snapshotResponse struct {
	sessionJSON
	PendingDrawers pendingJSON `json:"gavetas_pendentes"`
	Unconfirmed    int         `json:"movimentacoes_pendentes"`
}

type heldToolJSON struct {
	ID           int64  `json:"id"`
	Name         string `json:"nome"`
	Code         string `json:"codigo"`
	DrawerNumber *int   `json:"gaveta_numero"`
	DrawerName   string `json:"gaveta_nome"`
	Position     int    `json:"posicao"`
}

type heldToolsResponse struct {
	SessionID int64          `json:"sessao_id"`
	Tools     []heldToolJSON `json:"ferramentas"`
}

// nonNil keeps empty lists as [] on the wire.
func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
