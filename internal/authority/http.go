package authority

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/protocol"
)

const maxRequestBytes = 8 << 20

// RouterOptions holds the optional pieces of the HTTP surface.
type RouterOptions struct {
	Limiter  *ratelimit.Limiter
	ClientIP *security.ClientIP
}

// NewRouter exposes svc over HTTP:
//
//	GET  /healthz
//	POST /api/v1/sync   (bearer token required)
func NewRouter(svc *Service, auth *Authenticator, logger *log.Logger, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(trace.Middleware)
	r.Use(log.Middleware(logger, trace.FromRequest))
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	if opts.Limiter != nil {
		key := func(r *http.Request) string { return r.RemoteAddr }
		if opts.ClientIP != nil {
			key = opts.ClientIP.Extract
		}
		r.Use(opts.Limiter.Middleware(key))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(auth.Middleware).Post("/sync", syncHandler(svc))
	})
	return r
}

func syncHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.FromContext(r.Context())

		var req protocol.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		namespace, _ := NamespaceFromContext(r.Context())
		if req.Namespace != namespace {
			logger.WarnContext(r.Context(), "Namespace mismatch",
				log.FieldNamespace, req.Namespace,
				"token_namespace", namespace)
			writeError(w, http.StatusForbidden, "namespace not permitted")
			return
		}

		resp, err := svc.Exchange(r.Context(), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, resp)
		case errors.Is(err, core.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "sync failed")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
