package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/evidence"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/models"
)

// Handler builds the router. Routes keep the trailing slash the kiosk
// front end uses.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get(evidence.MediaPrefix+"*", s.media)

	r.Route("/api", func(r chi.Router) {
		r.Post("/nfc-tap/", s.nfcTap)
		r.Get("/status-frontend/", s.status)
		r.Get("/status/", s.status)
		r.Get("/ferramentas/", s.tools)

		r.Route("/sessoes/{id}", func(r chi.Router) {
			r.Get("/", s.session)
			r.Post("/retiradas/", s.selectTools(models.Withdrawal))
			r.Post("/devolucoes/", s.selectTools(models.Return))
			r.Post("/gaveta/{n}/confirmar-retirada/", s.confirm(models.Withdrawal))
			r.Post("/gaveta/{n}/confirmar-devolucao/", s.confirm(models.Return))
			r.Post("/finalizar/", s.finalize)
			r.Post("/cancelar/", s.cancel)
			r.Get("/ferramentas-em-posse/", s.heldTools)
		})
	})
	return r
}

// observe logs each request and records it under its route pattern, so
// /api/sessoes/7/ and /api/sessoes/8/ share one series.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.HTTPRequest(r.Method, route, status, elapsed)
		s.logger.Debug(r.Context(), "http request", "method", r.Method, "route", route,
			"status", status, "duration", elapsed.String(), "request_id", middleware.GetReqID(r.Context()))
	})
}
