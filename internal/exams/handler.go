package exams

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fragenkreuzen/backend/internal/httputil"
	"github.com/fragenkreuzen/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers catalog endpoints on the protected subrouter and
// the import endpoint on the admin subrouter.
func (h *Handler) RegisterRoutes(protected, admin *mux.Router) {
	protected.HandleFunc("/exams", h.ListExams).Methods("GET")
	protected.HandleFunc("/exams/{id}", h.GetExam).Methods("GET")
	protected.HandleFunc("/questions/{id}", h.GetQuestion).Methods("GET")

	admin.HandleFunc("/exams/import", h.ImportExam).Methods("POST")
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.service.ListExams(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to list exams")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ExamListResponse{Exams: exams})
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	examID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	exam, err := h.service.GetExam(r.Context(), examID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to get exam")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, exam)
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	q, err := h.service.GetQuestion(r.Context(), questionID)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to get question")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) ImportExam(w http.ResponseWriter, r *http.Request) {
	var req models.ImportExamRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, "")
		return
	}

	result, err := h.service.ImportExam(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, "Failed to import exam")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}
