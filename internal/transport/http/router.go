package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quorumgate/internal/platform/middleware"
	dErrors "quorumgate/pkg/domain-errors"
)

// NewRouter wires all endpoints. Every /v1 route requires an authenticated
// owner token; /healthz and /metrics stay open for probes and scrapers.
func NewRouter(h *Handler, validator middleware.TokenValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.handleSubmit)
			r.Get("/count", h.handleTransactionCount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetTransaction)
				r.Post("/confirm", h.handleConfirm)
				r.Post("/confirm/revoke", h.handleRevokeConfirmation)
				r.Post("/cancel", h.handleRequestCancellation)
				r.Post("/cancel/revoke", h.handleRevokeCancellation)
				r.Post("/execute", h.handleExecute)
				r.Get("/votes/{owner}", h.handleGetVotes)
			})
		})

		r.Get("/owners", h.handleListOwners)
		r.Post("/owners", h.handleAddOwner)
		r.Get("/quorum", h.handleGetQuorum)
		r.Post("/quorum", h.handleUpdateQuorum)
	})

	return r
}

// statusByCode maps domain error codes to HTTP statuses. Unknown codes fall
// through to 500.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeNotAnOwner: http.StatusForbidden,
	dErrors.CodeNotSelf:    http.StatusForbidden,

	dErrors.CodeZeroIdentity:     http.StatusUnprocessableEntity,
	dErrors.CodeDuplicateOwner:   http.StatusConflict,
	dErrors.CodeInvalidThreshold: http.StatusUnprocessableEntity,
	dErrors.CodeBadRequest:       http.StatusBadRequest,

	dErrors.CodeTransactionNotFound: http.StatusNotFound,

	dErrors.CodeAlreadyConfirmed:             http.StatusConflict,
	dErrors.CodeAlreadyExecuted:              http.StatusConflict,
	dErrors.CodeAlreadyCancelled:             http.StatusConflict,
	dErrors.CodeConfirmationNotFound:         http.StatusConflict,
	dErrors.CodeCancellationAlreadyRequested: http.StatusConflict,
	dErrors.CodeCancellationNotFound:         http.StatusConflict,
	dErrors.CodeInsufficientConfirmations:    http.StatusConflict,

	dErrors.CodeExecutionFailed: http.StatusBadGateway,

	dErrors.CodeUnauthorized: http.StatusUnauthorized,
	dErrors.CodeTimeout:      http.StatusGatewayTimeout,
}

// writeError centralizes domain error translation to HTTP responses so every
// handler produces the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": string(code)}
	var coded *dErrors.Error
	if ok && errors.As(err, &coded) {
		body["error_description"] = coded.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
