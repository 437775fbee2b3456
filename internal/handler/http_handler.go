package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/logger"
	"github.com/invoq-hq/be-approvals/internal/service"
)

// HTTPHandler exposes the approval engine over HTTP.
type HTTPHandler struct {
	definitions *service.DefinitionService
	submissions *service.SubmissionService
	actions     *service.ActionService
	stats       *service.StatsService
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	definitions *service.DefinitionService,
	submissions *service.SubmissionService,
	actions *service.ActionService,
	stats *service.StatsService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		definitions: definitions,
		submissions: submissions,
		actions:     actions,
		stats:       stats,
		log:         log,
	}
}

// Register wires all routes onto the router.
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/workflows", h.CreateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows", h.ListWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", h.GetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", h.UpdateWorkflow).Methods(http.MethodPut)
	api.HandleFunc("/workflows/{id}/deactivate", h.DeactivateWorkflow).Methods(http.MethodPost)

	api.HandleFunc("/approvals/submit", h.Submit).Methods(http.MethodPost)
	api.HandleFunc("/approvals/act", h.Act).Methods(http.MethodPost)
	api.HandleFunc("/approvals/cancel", h.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/approvals/pending", h.ListPending).Methods(http.MethodGet)
	api.HandleFunc("/approvals/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}", h.GetInstance).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}/history", h.GetHistory).Methods(http.MethodGet)
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Workflow definitions ─────────────────────────────────────────────────────

// CreateWorkflow handles workflow definition creation.
func (h *HTTPHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req service.CreateDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	def, err := h.definitions.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// ListWorkflows returns the active definitions for an entity.
func (h *HTTPHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		h.writeError(w, apperr.InvalidInput("entity_id", "entity id is required"))
		return
	}

	defs, err := h.definitions.ListActive(r.Context(), entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": defs, "total": len(defs)})
}

// GetWorkflow returns one definition by id.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		h.writeError(w, apperr.InvalidInput("entity_id", "entity id is required"))
		return
	}

	def, err := h.definitions.Get(r.Context(), mux.Vars(r)["id"], entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// UpdateWorkflow replaces a definition wholesale.
func (h *HTTPHandler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		h.writeError(w, apperr.InvalidInput("entity_id", "entity id is required"))
		return
	}

	var req service.UpdateDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	def, err := h.definitions.Update(r.Context(), mux.Vars(r)["id"], entityID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// DeactivateWorkflow retires a definition from new submissions.
func (h *HTTPHandler) DeactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		h.writeError(w, apperr.InvalidInput("entity_id", "entity id is required"))
		return
	}

	if err := h.definitions.Deactivate(r.Context(), mux.Vars(r)["id"], entityID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ── Approval instances ───────────────────────────────────────────────────────

// Submit starts an approval run for a document.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	inst, err := h.submissions.Submit(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// Act applies one approve/reject decision.
func (h *HTTPHandler) Act(w http.ResponseWriter, r *http.Request) {
	var req service.ActRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	inst, err := h.actions.Act(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// Cancel withdraws a pending instance.
func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req service.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	inst, err := h.actions.Cancel(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GetInstance returns one instance by id.
func (h *HTTPHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.stats.GetInstance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GetHistory returns the ordered action trail for an instance.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actions, err := h.stats.GetHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "total": len(actions)})
}

// ListPending returns the actor's approval inbox.
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	actorID := r.URL.Query().Get("actor_id")
	if entityID == "" || actorID == "" {
		h.writeError(w, apperr.InvalidInput("query", "entity_id and actor_id are required"))
		return
	}

	instances, err := h.stats.ListPendingFor(r.Context(), entityID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instances": instances, "total": len(instances)})
}

// GetStats returns aggregate counters for an entity and period.
func (h *HTTPHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		h.writeError(w, apperr.InvalidInput("entity_id", "entity id is required"))
		return
	}

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, apperr.InvalidInput("from", "expected RFC3339 timestamp"))
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, apperr.InvalidInput("to", "expected RFC3339 timestamp"))
			return
		}
		to = t
	}

	stats, err := h.stats.GetStats(r.Context(), entityID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ── response helpers ─────────────────────────────────────────────────────────

type errorResponse struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}

	resp := errorResponse{Code: apperr.CodeOf(err), Message: err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		resp.Message = ae.Message
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
