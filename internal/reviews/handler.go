package reviews

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fragenkreuzen/backend/internal/httputil"
	"github.com/fragenkreuzen/backend/internal/middleware"
	"github.com/fragenkreuzen/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(protected *mux.Router) {
	protected.HandleFunc("/questions/{id}/answer", h.Practice).Methods("POST")

	protected.HandleFunc("/reviews/stats", h.Stats).Methods("GET")
	protected.HandleFunc("/reviews/{questionID}", h.Get).Methods("GET")
	protected.HandleFunc("/reviews/{questionID}/rate", h.Rate).Methods("POST")
	protected.HandleFunc("/reviews/{questionID}/suspend", h.Suspend).Methods("POST")
	protected.HandleFunc("/reviews/{questionID}/suspend", h.Unsuspend).Methods("DELETE")

	protected.HandleFunc("/settings/review", h.GetSettings).Methods("GET")
	protected.HandleFunc("/settings/review", h.UpdateSettings).Methods("PUT")

	protected.HandleFunc("/decks", h.ListDecks).Methods("GET")
	protected.HandleFunc("/decks", h.CreateDeck).Methods("POST")
	protected.HandleFunc("/decks/{id}", h.GetDeck).Methods("GET")
	protected.HandleFunc("/decks/{id}", h.UpdateDeck).Methods("PUT")
	protected.HandleFunc("/decks/{id}/questions", h.AddDeckQuestions).Methods("POST")
	protected.HandleFunc("/decks/{id}/due", h.DueQueue).Methods("GET")
}

// userAndID reads the caller and one positive path id; on failure it has
// already written the response.
func userAndID(w http.ResponseWriter, r *http.Request, key string) (int64, int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return 0, 0, false
	}
	id, err := httputil.PathID(r, key)
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return 0, 0, false
	}
	return userID, id, true
}

// ── Reviews ──────────────────────────────────────────────

func (h *Handler) Practice(w http.ResponseWriter, r *http.Request) {
	userID, questionID, ok := userAndID(w, r, "id")
	if !ok {
		return
	}
	var req models.PracticeAnswerRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	resp, err := h.service.Practice(r.Context(), userID, questionID, req.OptionID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to record answer")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, questionID, ok := userAndID(w, r, "questionID")
	if !ok {
		return
	}
	var req models.RateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	st, err := h.service.Rate(r.Context(), userID, questionID, req.Rating)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to rate question")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ReviewResponse{OK: true, State: *st})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, questionID, ok := userAndID(w, r, "questionID")
	if !ok {
		return
	}

	st, err := h.service.Get(r.Context(), userID, questionID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to get review state")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ReviewResponse{OK: true, State: *st})
}

func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, true)
}

func (h *Handler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, false)
}

func (h *Handler) setSuspended(w http.ResponseWriter, r *http.Request, suspended bool) {
	userID, questionID, ok := userAndID(w, r, "questionID")
	if !ok {
		return
	}

	st, err := h.service.SetSuspended(r.Context(), userID, questionID, suspended)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to update review state")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ReviewResponse{OK: true, State: *st})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}

	st, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to get review stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// ── Settings ─────────────────────────────────────────────

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}

	st, err := h.service.Settings(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to get review settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}
	var req models.ReviewSettings
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	st, err := h.service.UpdateSettings(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to save review settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// ── Decks ────────────────────────────────────────────────

func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}

	decks, err := h.service.ListDecks(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to list decks")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.DeckListResponse{Decks: decks})
}

func (h *Handler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}
	var req models.DeckRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	d, err := h.service.CreateDeck(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to create deck")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) GetDeck(w http.ResponseWriter, r *http.Request) {
	userID, deckID, ok := userAndID(w, r, "id")
	if !ok {
		return
	}

	d, err := h.service.GetDeck(r.Context(), userID, deckID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to get deck")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) UpdateDeck(w http.ResponseWriter, r *http.Request) {
	userID, deckID, ok := userAndID(w, r, "id")
	if !ok {
		return
	}
	var req models.DeckRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	d, err := h.service.UpdateDeck(r.Context(), userID, deckID, req)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to update deck")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) AddDeckQuestions(w http.ResponseWriter, r *http.Request) {
	userID, deckID, ok := userAndID(w, r, "id")
	if !ok {
		return
	}
	var req models.DeckQuestionsRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	d, err := h.service.AddDeckQuestions(r.Context(), userID, deckID, req.QuestionIDs)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to add questions")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) DueQueue(w http.ResponseWriter, r *http.Request) {
	userID, deckID, ok := userAndID(w, r, "id")
	if !ok {
		return
	}

	resp, err := h.service.DueQueue(r.Context(), userID, deckID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to build review queue")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
