package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cityrater/internal/catalog"
	"cityrater/internal/ranking/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/httputil"
	"cityrater/pkg/requestcontext"
)

// Service defines the ranking reads the handler serves.
type Service interface {
	Rankings(ctx context.Context, kind catalog.Kind) ([]models.Row, error)
	HiddenJam(ctx context.Context, kind catalog.Kind, minVotes, limit int) ([]models.Row, error)
}

// Handler serves ranking endpoints.
type Handler struct {
	logger         *slog.Logger
	rankings       Service
	hiddenJamLimit int
}

// New creates a ranking Handler. hiddenJamLimit applies when the request has
// no limit parameter; zero means unlimited.
func New(rankings Service, logger *slog.Logger, hiddenJamLimit int) *Handler {
	return &Handler{logger: logger, rankings: rankings, hiddenJamLimit: hiddenJamLimit}
}

// Register registers the ranking routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/rankings", h.handleRankings(catalog.KindCity))
	r.Get("/api/airport-rankings", h.handleRankings(catalog.KindAirport))
	r.Get("/api/hidden-jam-rankings", h.handleHiddenJam(catalog.KindCity))
	r.Get("/api/hidden-jam-ratings", h.handleHiddenJam(catalog.KindCity))
	r.Get("/api/airport-hidden-jam-rankings", h.handleHiddenJam(catalog.KindAirport))
}

func (h *Handler) handleRankings(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rows, err := h.rankings.Rankings(ctx, kind)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to load rankings",
				"request_id", requestcontext.RequestID(ctx),
				"kind", kind,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, nonNil(rows))
	}
}

func (h *Handler) handleHiddenJam(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		minVotes, err := intParam(r, "min_votes", 1)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		limit, err := intParam(r, "limit", h.hiddenJamLimit)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		rows, err := h.rankings.HiddenJam(ctx, kind, minVotes, limit)
		if err != nil {
			if !dErrors.HasCode(err, dErrors.CodeValidation) {
				h.logger.ErrorContext(ctx, "failed to load hidden jam rankings",
					"request_id", requestcontext.RequestID(ctx),
					"kind", kind,
					"error", err,
				)
			}
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, nonNil(rows))
	}
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return n, nil
}

func nonNil(rows []models.Row) []models.Row {
	if rows == nil {
		return []models.Row{}
	}
	return rows
}
