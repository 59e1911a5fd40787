package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/evidence"
)

// media streams a stored capture. S3 objects are not proxied: the client
// is redirected to a presigned URL.
func (s *Server) media(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evidence == nil {
		http.NotFound(w, r)
		return
	}
	key, err := evidence.CleanKey(chi.URLParam(r, "*"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "caminho inválido"})
		return
	}

	if s.deps.Evidence.Driver() == evidence.DriverS3 {
		u, err := s.deps.Evidence.URL(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	body, contentType, err := s.deps.Evidence.Get(r.Context(), key)
	if errors.Is(err, common.ErrorNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "arquivo não encontrado"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn(r.Context(), "media copy", "key", key, "error", err)
	}
}
