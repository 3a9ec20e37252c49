package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cityrater/internal/catalog"
	"cityrater/internal/vote/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/httputil"
	"cityrater/pkg/requestcontext"
)

// Service defines the vote engine operations the handler exposes.
type Service interface {
	CastVote(ctx context.Context, kind models.EntityKind, rawKey, entityID string, vt models.VoteType) error
	ChangeVote(ctx context.Context, kind models.EntityKind, rawKey, entityID string, vt models.VoteType) (models.Outcome, error)
	BulkChangeVote(ctx context.Context, kind models.EntityKind, rawKey string, vt models.VoteType, entityIDs []string) (int, error)
	ListUserVotes(ctx context.Context, kind models.EntityKind, rawKey string) ([]models.UserVote, error)
	ListUnvoted(ctx context.Context, kind models.EntityKind, rawKey string) (models.Deck, error)
	ListEntities(kind models.EntityKind) []catalog.Entity
	Stats(ctx context.Context) (models.Stats, error)
	Profile(ctx context.Context, rawKey string) (models.Profile, error)
}

// Handler serves the vote, listing and profile endpoints.
type Handler struct {
	logger *slog.Logger
	votes  Service
}

// New creates a vote Handler.
func New(votes Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, votes: votes}
}

// RegisterWrites registers the mutating vote routes.
func (h *Handler) RegisterWrites(r chi.Router) {
	r.Post("/api/vote", h.handleCast(catalog.KindCity))
	r.Post("/api/airport-vote", h.handleCast(catalog.KindAirport))
	r.Post("/api/change-vote", h.handleChange(catalog.KindCity))
	r.Post("/api/change-airport-vote", h.handleChange(catalog.KindAirport))
	r.Post("/api/bulk-change-vote", h.handleBulkChange(catalog.KindCity))
	r.Post("/api/bulk-change-airport-vote", h.handleBulkChange(catalog.KindAirport))
}

// RegisterReads registers the listing routes.
func (h *Handler) RegisterReads(r chi.Router) {
	r.Get("/api/user-votes/{userId}", h.handleUserVotes(catalog.KindCity))
	r.Get("/api/user-airport-votes/{userId}", h.handleUserVotes(catalog.KindAirport))
	r.Get("/api/cities", h.handleDeck(catalog.KindCity))
	r.Get("/api/airports", h.handleDeck(catalog.KindAirport))
	r.Get("/api/all-cities", h.handleAll(catalog.KindCity))
	r.Get("/api/all-airports", h.handleAll(catalog.KindAirport))
	r.Get("/api/profile/{userId}", h.handleProfile)
	r.Get("/api/stats", h.handleStats)
}

// Register registers every vote route.
func (h *Handler) Register(r chi.Router) {
	h.RegisterWrites(r)
	h.RegisterReads(r)
}

func (h *Handler) handleCast(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req models.VoteRequest
		if !h.decode(w, r, &req) {
			return
		}
		req.Normalize()
		if err := req.Validate(kind); err != nil {
			h.writeError(ctx, w, err, "invalid vote request")
			return
		}
		if err := checkCaller(ctx, req.UserID); err != nil {
			h.writeError(ctx, w, err, "vote rejected")
			return
		}

		if err := h.votes.CastVote(ctx, kind, req.UserID, req.EntityID(kind), models.VoteType(req.VoteType)); err != nil {
			h.writeError(ctx, w, err, "failed to cast vote")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, models.VoteResponse{Success: true, Message: "vote recorded"})
	}
}

func (h *Handler) handleChange(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req models.VoteRequest
		if !h.decode(w, r, &req) {
			return
		}
		req.Normalize()
		if err := req.Validate(kind); err != nil {
			h.writeError(ctx, w, err, "invalid change vote request")
			return
		}
		if err := checkCaller(ctx, req.UserID); err != nil {
			h.writeError(ctx, w, err, "change vote rejected")
			return
		}

		outcome, err := h.votes.ChangeVote(ctx, kind, req.UserID, req.EntityID(kind), models.VoteType(req.VoteType))
		if err != nil {
			h.writeError(ctx, w, err, "failed to change vote")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, models.VoteResponse{Success: true, Message: string(outcome)})
	}
}

func (h *Handler) handleBulkChange(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req models.BulkVoteRequest
		if !h.decode(w, r, &req) {
			return
		}
		req.Normalize()
		if err := req.Validate(kind); err != nil {
			h.writeError(ctx, w, err, "invalid bulk change request")
			return
		}
		if err := checkCaller(ctx, req.UserID); err != nil {
			h.writeError(ctx, w, err, "bulk change rejected")
			return
		}

		changed, err := h.votes.BulkChangeVote(ctx, kind, req.UserID, models.VoteType(req.VoteType), req.EntityIDs(kind))
		if err != nil {
			h.writeError(ctx, w, err, "failed to bulk change votes")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, models.BulkVoteResponse{Success: true, Changed: changed})
	}
}

func (h *Handler) handleUserVotes(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userKey := strings.TrimSpace(chi.URLParam(r, "userId"))
		if err := checkCaller(ctx, userKey); err != nil {
			h.writeError(ctx, w, err, "user votes rejected")
			return
		}
		votes, err := h.votes.ListUserVotes(ctx, kind, userKey)
		if err != nil {
			h.writeError(ctx, w, err, "failed to list user votes")
			return
		}
		if votes == nil {
			votes = []models.UserVote{}
		}
		httputil.WriteJSON(w, http.StatusOK, models.UserVotesResponse{UserVotes: votes})
	}
}

func (h *Handler) handleDeck(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userKey := strings.TrimSpace(r.URL.Query().Get("userId"))
		if err := checkCaller(ctx, userKey); err != nil {
			h.writeError(ctx, w, err, "deck rejected")
			return
		}
		deck, err := h.votes.ListUnvoted(ctx, kind, userKey)
		if err != nil {
			h.writeError(ctx, w, err, "failed to list unvoted entities")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, models.NewDeckResponse(kind, deck))
	}
}

func (h *Handler) handleAll(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, models.NewEntitiesResponse(kind, h.votes.ListEntities(kind)))
	}
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userKey := strings.TrimSpace(chi.URLParam(r, "userId"))
	if err := checkCaller(ctx, userKey); err != nil {
		h.writeError(ctx, w, err, "profile rejected")
		return
	}
	p, err := h.votes.Profile(ctx, userKey)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ProfileResponse{
		ProfileCities:   nonNil(p.Cities),
		ProfileAirports: nonNil(p.Airports),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.votes.Stats(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewStatsResponse(st))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httputil.DecodeJSON(w, r, dst); err != nil {
		ctx := r.Context()
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return false
	}
	return true
}

// writeError logs at error level only for failures the client cannot fix.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	code := dErrors.CodeOf(err)
	if dErrors.IsClientVisible(code) {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"code", code,
			"error", err.Error(),
		)
	} else {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

// checkCaller rejects requests whose bearer token names a different user.
// Requests without a token pass; the vote engine authorizes the key itself.
func checkCaller(ctx context.Context, userKey string) error {
	tokenKey := requestcontext.AuthUserKey(ctx)
	if tokenKey == "" || tokenKey == userKey {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "token does not belong to userId")
}

func nonNil(entries []models.ProfileEntry) []models.ProfileEntry {
	if entries == nil {
		return []models.ProfileEntry{}
	}
	return entries
}
