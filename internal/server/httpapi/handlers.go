package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/hardware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/services"
)

func (s *Server) nfcTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	raw, err := readJSON(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Identity.ProcessTap(r.Context(), hardware.CardRead{UID: req.UID, ReaderID: req.ReaderID, Raw: raw})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Authorized {
		writeJSON(w, http.StatusForbidden, tapResponse{Authorized: false, Reason: res.Reason})
		return
	}

	started := res.Session.StartedAt
	writeJSON(w, http.StatusCreated, tapResponse{
		Authorized: true,
		SessionID:  res.Session.ID,
		Collaborator: &collaboratorJSON{
			ID:           res.Person.ID,
			Name:         res.Person.Name,
			Registration: res.Person.Registration,
		},
		ReaderID:  res.ReaderID,
		Status:    res.Session.Status.Label(),
		StartedAt: &started,
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Identity.ActiveSession(r.Context())
	if errors.Is(err, common.ErrorNotFound) {
		writeJSON(w, http.StatusOK, statusResponse{OK: true})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		OK:            true,
		ActiveSession: true,
		SessionID:     sess.ID,
		Collaborator:  sess.PersonName,
	})
}

func (s *Server) tools(w http.ResponseWriter, r *http.Request) {
	drawers, err := s.deps.Inventory.AvailableTools(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDrawers(drawers))
}

func (s *Server) selectTools(kind models.MovementKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := intParam(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req selectRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		res, err := s.deps.Sequencer.Select(r.Context(), id, kind, req.ids())
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		tools := make([]selectedToolJSON, 0, len(res.Tools))
		for _, t := range res.Tools {
			tools = append(tools, selectedToolJSON{ID: t.ID, Name: t.Name, DrawerNumber: t.DrawerNumber, DrawerName: t.DrawerName})
		}
		resp := selectResponse{
			OK:          true,
			SessionID:   res.SessionID,
			Drawers:     nonNil(res.Drawers),
			FirstDrawer: res.FirstDrawer,
			MQTT:        res.Open,
		}
		if kind == models.Return {
			resp.Returns = tools
		} else {
			resp.Withdrawals = tools
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *Server) confirm(kind models.MovementKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := intParam(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		drawer, err := strconv.Atoi(chi.URLParam(r, "n"))
		if err != nil {
			s.writeError(w, r, invalidInput("parâmetro 'n' inválido"))
			return
		}

		res, err := s.deps.Sequencer.Confirm(r.Context(), id, kind, drawer)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.confirmResponse(r, res))
	}
}

func (s *Server) confirmResponse(r *http.Request, res *services.ConfirmResult) confirmResponse {
	image := res.ImageRef
	if s.deps.Evidence != nil {
		if u, err := s.deps.Evidence.URL(r.Context(), res.ImageRef); err == nil {
			image = u
		} else {
			s.logger.Warn(r.Context(), "evidence url", "key", res.ImageRef, "error", err)
		}
	}

	movs := make([]movementJSON, 0, len(res.Movements))
	for i, m := range res.Movements {
		movs = append(movs, movementJSON{
			ID:              m.ID,
			ToolID:          m.ToolID,
			ToolName:        m.ToolName,
			DrawerNumber:    m.DrawerNumber,
			Quantity:        m.Quantity,
			ImagePath:       m.EvidenceRef,
			VisionConfirmed: i < len(res.Matches) && res.Matches[i],
		})
	}

	expected := res.Expected
	if expected == nil {
		expected = []string{}
	}
	return confirmResponse{
		Detail:       confirmDetail(res.Kind),
		SessionID:    res.SessionID,
		Drawer:       res.Drawer,
		Image:        image,
		VisionOK:     res.VisionOK,
		VisionRaw:    res.Evidence,
		Match:        matchJSON{Expected: expected, Detected: res.Detected},
		Movements:    movs,
		LED:          ledJSON{On: res.LEDOn, Off: res.LEDOff},
		Close:        res.Close,
		OpenNext:     res.OpenNext,
		NextDrawer:   res.NextDrawer,
		SessionEnded: res.SessionEnded,
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.deps.Sessions.Snapshot(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		sessionJSON: toSession(snap.Session),
		PendingDrawers: pendingJSON{
			Withdrawal: nonNil(snap.PendingDrawers[models.Withdrawal]),
			Return:     nonNil(snap.PendingDrawers[models.Return]),
		},
		Unconfirmed: snap.Unconfirmed,
	})
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.deps.Sessions.Finalize(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(sess))
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.deps.Sessions.Cancel(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(sess))
}

func (s *Server) heldTools(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tools, err := s.deps.Inventory.HeldTools(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := heldToolsResponse{SessionID: id, Tools: make([]heldToolJSON, 0, len(tools))}
	for _, t := range tools {
		out.Tools = append(out.Tools, heldToolJSON{
			ID:           t.ID,
			Name:         t.Name,
			Code:         t.Code,
			DrawerNumber: t.DrawerNumber,
			DrawerName:   t.DrawerName,
			Position:     t.Position,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
