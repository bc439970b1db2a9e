package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"quorumgate/internal/ledger"
	dErrors "quorumgate/pkg/domain-errors"
	"quorumgate/pkg/requestcontext"
)

// EngineService is the engine surface the transport needs. Declared here so
// handlers can be tested against a fake without importing the engine package.
type EngineService interface {
	Submit(ctx context.Context, submitter, target string, value int64, payload json.RawMessage) (int64, error)
	Confirm(ctx context.Context, ownerID string, id int64) error
	RevokeConfirmation(ctx context.Context, ownerID string, id int64) error
	RequestCancellation(ctx context.Context, ownerID string, id int64) error
	RevokeCancellationRequest(ctx context.Context, ownerID string, id int64) error
	Execute(ctx context.Context, ownerID string, id int64) error

	AddNewOwner(ctx context.Context, submitter, newOwner string, newThreshold int) (int64, error)
	UpdateMinConfirmations(ctx context.Context, submitter string, newThreshold int) (int64, error)

	GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error)
	TransactionCount(ctx context.Context) (int64, error)
	HasConfirmed(ctx context.Context, id int64, ownerID string) (bool, error)
	HasRequestedCancellation(ctx context.Context, id int64, ownerID string) (bool, error)
	Owners(ctx context.Context) ([]string, error)
	Threshold(ctx context.Context) (int, error)
}

// Handler is the thin HTTP layer. It delegates to the engine without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	engine EngineService
	logger *slog.Logger
}

func NewHandler(engine EngineService, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.OwnerID(ctx)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	id, err := h.engine.Submit(ctx, ownerID, req.Target, req.Value, req.Payload)
	if err != nil {
		h.logError(ctx, "submit failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: id})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.engine.Confirm)
}

func (h *Handler) handleRevokeConfirmation(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.engine.RevokeConfirmation)
}

func (h *Handler) handleRequestCancellation(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.engine.RequestCancellation)
}

func (h *Handler) handleRevokeCancellation(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.engine.RevokeCancellationRequest)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.engine.Execute)
}

// vote factors the shared shape of the five owner-vote endpoints.
func (h *Handler) vote(w http.ResponseWriter, r *http.Request, op func(context.Context, string, int64) error) {
	ctx := r.Context()
	ownerID := requestcontext.OwnerID(ctx)

	id, err := txID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(ctx, ownerID, id); err != nil {
		h.logError(ctx, "vote operation failed", err)
		writeError(w, err)
		return
	}

	tx, err := h.engine.GetTransaction(ctx, id)
	if err != nil {
		h.logError(ctx, "read-back failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := txID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tx, err := h.engine.GetTransaction(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) handleTransactionCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.TransactionCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *Handler) handleGetVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := txID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ownerID := chi.URLParam(r, "owner")

	confirmed, err := h.engine.HasConfirmed(ctx, id, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	cancelRequested, err := h.engine.HasRequestedCancellation(ctx, id, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, votesResponse{
		Owner:                 ownerID,
		Confirmed:             confirmed,
		CancellationRequested: cancelRequested,
	})
}

func (h *Handler) handleListOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := h.engine.Owners(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ownersResponse{Owners: owners, Count: len(owners)})
}

func (h *Handler) handleGetQuorum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threshold, err := h.engine.Threshold(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	owners, err := h.engine.Owners(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quorumResponse{Threshold: threshold, OwnerCount: len(owners)})
}

func (h *Handler) handleAddOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.OwnerID(ctx)

	var req addOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	id, err := h.engine.AddNewOwner(ctx, ownerID, req.Owner, req.NewThreshold)
	if err != nil {
		h.logError(ctx, "add owner proposal failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: id})
}

func (h *Handler) handleUpdateQuorum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.OwnerID(ctx)

	var req updateQuorumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	id, err := h.engine.UpdateMinConfirmations(ctx, ownerID, req.Threshold)
	if err != nil {
		h.logError(ctx, "threshold proposal failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: id})
}

func txID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid transaction id %q", raw)
	}
	return id, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err.Error(),
		"code", string(dErrors.CodeOf(err)),
		"request_id", requestcontext.RequestID(ctx),
	)
}
