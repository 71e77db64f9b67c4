package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/fragenkreuzen/backend/internal/database"
	"github.com/fragenkreuzen/backend/internal/httputil"
	"github.com/fragenkreuzen/backend/internal/middleware"
	"github.com/fragenkreuzen/backend/internal/models"
)

const usernameRetries = 5

type userStore interface {
	CreateUser(ctx context.Context, email, name, username, passwordHash string, now time.Time) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type Handler struct {
	store  userStore
	tokens *Tokens
	now    func() time.Time
}

func NewHandler(store userStore, tokens *Tokens) *Handler {
	return &Handler{store: store, tokens: tokens, now: time.Now}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := httputil.DecodeBody(r, &req); err != nil {
		httputil.WriteError(w, r, err, "Invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := httputil.Validate(&req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteError(w, r, err, "Internal server error")
		return
	}

	var user *models.User
	for attempt := 0; attempt < usernameRetries; attempt++ {
		user, err = h.store.CreateUser(r.Context(), req.Email, req.Name, database.GenerateUsername(req.Name), string(hashedPassword), h.now())
		if !errors.Is(err, errDuplicateUsername) {
			break
		}
	}
	if errors.Is(err, errDuplicateEmail) {
		httputil.WriteJSON(w, http.StatusConflict, models.ErrorResponse{Error: "An account with this email already exists"})
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to create account")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to generate token")
		return
	}

	slog.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	httputil.WriteJSON(w, http.StatusCreated, models.AuthResponse{Token: token, User: *user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := httputil.DecodeBody(r, &req); err != nil {
		httputil.WriteError(w, r, err, "Invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)
	if err := httputil.Validate(&req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, models.ErrNotFound) {
		invalidCredentials(w)
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err, "Internal server error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		invalidCredentials(w)
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to generate token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: *user})
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to load user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func invalidCredentials(w http.ResponseWriter) {
	httputil.WriteJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Kind: models.KindUnauthorized})
}
