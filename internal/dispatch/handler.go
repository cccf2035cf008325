package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pulseinsights/sentiment-pipeline/internal/sentiment"
	apperrors "github.com/pulseinsights/sentiment-pipeline/pkg/errors"
	"github.com/pulseinsights/sentiment-pipeline/pkg/logger"
	"github.com/pulseinsights/sentiment-pipeline/pkg/tracing"
)

// Fetcher supplies the deduplicated, normalized item sequence for a keyword.
// *ingest.Service satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, keyword string) ([]sentiment.Item, error)
}

// Handler exposes the dispatch trigger over HTTP.
type Handler struct {
	fetcher    Fetcher
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewHandler(fetcher Fetcher, dispatcher *Dispatcher) *Handler {
	return &Handler{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		logger:     slog.Default().With("component", "dispatch-handler"),
	}
}

// Dispatch handles POST /api/v1/dispatch?keyword=... by fetching all items
// for the keyword and fanning them out as batches.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		appErr := apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "keyword query parameter is required")
		h.writeError(w, apperrors.HTTPStatusCode(appErr), appErr.Message)
		return
	}

	ctx, span := tracing.StartSpan(ctx, "dispatch_request", uuid.NewString())
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("keyword", keyword)

	fetchCtx, fetchSpan := tracing.StartChildSpan(ctx, "fetch_items")
	items, err := h.fetcher.FetchAll(fetchCtx, keyword)
	fetchSpan.SetAttr("items", len(items))
	fetchSpan.End()
	if err != nil {
		log.Error("fetching items failed", "keyword", keyword, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "fetching items failed")
		return
	}

	dispatchCtx, dispatchSpan := tracing.StartChildSpan(ctx, "dispatch_batches")
	count, err := h.dispatcher.Dispatch(dispatchCtx, items)
	dispatchSpan.End()
	if err != nil {
		log.Error("dispatch failed", "keyword", keyword, "batches_sent", count, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "dispatch failed")
		return
	}

	log.Info("dispatched", "keyword", keyword, "batches", count, "items", len(items))
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"batches": count,
		"message": fmt.Sprintf("Sent %d batches to queue", count),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
