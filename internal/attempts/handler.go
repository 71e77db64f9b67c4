package attempts

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
	protected.HandleFunc("/exams/{id}/attempts", h.Start).Methods("POST")
	protected.HandleFunc("/attempts", h.List).Methods("GET")
	protected.HandleFunc("/attempts/{id}", h.Get).Methods("GET")
	protected.HandleFunc("/attempts/{id}/answers/{questionID}", h.Answer).Methods("PUT")
	protected.HandleFunc("/attempts/{id}/heartbeat", h.Heartbeat).Methods("POST")
	protected.HandleFunc("/attempts/{id}/finish", h.Finish).Methods("POST")
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}
	examID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	a, err := h.service.Start(r.Context(), userID, examID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to start attempt")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.AttemptResponse{OK: true, Attempt: *a})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}

	resp, err := h.service.List(r.Context(), userID,
		httputil.IntQueryParam(r.URL.Query(), "page", 1),
		httputil.IntQueryParam(r.URL.Query(), "page_size", 20),
	)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to list attempts")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}
	attemptID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	resp, err := h.service.Get(r.Context(), userID, attemptID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to get attempt")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}
	attemptID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}
	questionID, err := httputil.PathID(r, "questionID")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	var req models.SubmitAnswerRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	rec, err := h.service.Answer(r.Context(), userID, attemptID, questionID, req.OptionID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to save answer")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.AnswerResponse{OK: true, Answer: *rec})
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}
	attemptID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	var req models.HeartbeatRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	a, err := h.service.Heartbeat(r.Context(), userID, attemptID, req.ElapsedSec)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to record heartbeat")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.AttemptResponse{OK: true, Attempt: *a})
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Unauthorized(w)
		return
	}
	attemptID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	// The body is optional.
	var req models.FinishAttemptRequest
	if r.ContentLength != 0 {
		if err := httputil.Decode(r, &req); err != nil {
			httputil.WriteError(w, r, err, "")
			return
		}
	}

	resp, err := h.service.Finish(r.Context(), userID, attemptID, req.ElapsedSec)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to finish attempt")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
