package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cityrater/internal/identity/models"
	"cityrater/internal/identity/telegram"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/httputil"
	"cityrater/pkg/requestcontext"
)

// Service resolves Telegram identities to users.
type Service interface {
	ResolveOrRegister(ctx context.Context, telegramID, candidateKey string) (models.Resolution, error)
	FindByExternalID(ctx context.Context, telegramID string) (models.User, error)
}

// Verifier checks Telegram init data.
type Verifier interface {
	Verify(initData string) (telegram.Identity, error)
}

// TokenIssuer signs bearer tokens for resolved users.
type TokenIssuer interface {
	IssueToken(userKey, telegramID string) (string, error)
}

// Handler serves the Telegram registration endpoints.
type Handler struct {
	logger   *slog.Logger
	svc      Service
	verifier Verifier
	tokens   TokenIssuer
}

func New(svc Service, verifier Verifier, tokens TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, svc: svc, verifier: verifier, tokens: tokens}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/register-telegram", h.handleRegister)
	r.Post("/api/get-user-by-telegram", h.handleLookup)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, identity, ok := h.verify(w, r)
	if !ok {
		return
	}

	res, err := h.svc.ResolveOrRegister(ctx, identity.ExternalID(), req.UserID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to register telegram user")
		return
	}
	token, err := h.tokens.IssueToken(res.User.UserKey, res.User.TelegramID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to issue token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.RegisterResponse{
		Success:        true,
		User:           userResponse(res.User, identity),
		Token:          token,
		IsExistingUser: res.Transition == models.TransitionRestored,
		IsLinked:       res.Transition == models.TransitionLinked,
		IsNewUser:      res.Transition == models.TransitionCreated,
	})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, identity, ok := h.verify(w, r)
	if !ok {
		return
	}

	user, err := h.svc.FindByExternalID(ctx, identity.ExternalID())
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		httputil.WriteJSON(w, http.StatusOK, models.LookupResponse{Success: true, Found: false})
		return
	}
	if err != nil {
		h.writeError(ctx, w, err, "failed to look up telegram user")
		return
	}
	token, err := h.tokens.IssueToken(user.UserKey, user.TelegramID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to issue token")
		return
	}

	resp := userResponse(user, identity)
	httputil.WriteJSON(w, http.StatusOK, models.LookupResponse{
		Success: true,
		Found:   true,
		User:    &resp,
		Token:   token,
	})
}

// verify decodes the request and checks its init data, writing the error
// response itself when either fails.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) (models.TelegramRequest, telegram.Identity, bool) {
	ctx := r.Context()
	var req models.TelegramRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return req, telegram.Identity{}, false
	}
	req.Normalize()

	identity, err := h.verifier.Verify(req.InitData)
	if err != nil {
		h.writeError(ctx, w, err, "telegram init data rejected")
		return req, telegram.Identity{}, false
	}
	return req, identity, true
}

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

func userResponse(u models.User, identity telegram.Identity) models.UserResponse {
	return models.UserResponse{
		UserID:     u.UserKey,
		TelegramID: u.TelegramID,
		Username:   identity.User.UserName,
		FirstName:  identity.User.FirstName,
	}
}
