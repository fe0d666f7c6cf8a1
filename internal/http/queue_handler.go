package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/workshop-queue/internal/queue"
)

type queueService interface {
	AddEntry(ctx context.Context, params queue.AddEntryParams) (queue.QueueEntry, error)
	CallNext(ctx context.Context, technicianID string) (queue.QueueEntry, error)
	UpdateStatus(ctx context.Context, params queue.UpdateStatusParams) (queue.QueueEntry, error)
	ClearQueue(ctx context.Context) (int, error)
	GetActiveEntries(ctx context.Context) ([]queue.QueueEntry, error)
	GetStatus(ctx context.Context) (queue.QueueStatus, error)
	GetEntry(ctx context.Context, entryID string) (queue.QueueEntry, error)
	GetEntryByCode(ctx context.Context, code string) (queue.QueueEntry, error)
	IsCodeValid(ctx context.Context, code string) (bool, error)
	SetManualOverride(ctx context.Context, override queue.Override) (queue.QueueStatus, error)
	SetOperatingHours(ctx context.Context, hours queue.WeeklyHours) (queue.QueueStatus, error)
}

type QueueHandler struct {
	service   queueService
	responder responder
	logger    *slog.Logger
}

func NewQueueHandler(service queueService, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{service: service, responder: newResponder(logger), logger: logger}
}

type addEntryRequest struct {
	CustomerID  string `json:"customer_id"`
	ServiceType string `json:"service_type"`
	Notes       string `json:"notes"`
}

type callNextRequest struct {
	TechnicianID string `json:"technician_id"`
}

type updateStatusRequest struct {
	Status      string `json:"status"`
	AssignedTo  string `json:"assigned_to"`
	WorkOrderID string `json:"work_order_id"`
}

type updateQueueStatusRequest struct {
	ManualOverride *string           `json:"manual_override"`
	OperatingHours queue.WeeklyHours `json:"operating_hours"`
}

type entryDTO struct {
	ID                   string `json:"id"`
	CustomerID           string `json:"customer_id"`
	ServiceType          string `json:"service_type"`
	Status               string `json:"status"`
	Position             int    `json:"position"`
	JoinedAt             string `json:"joined_at"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	VerificationCode     string `json:"verification_code"`
	ExpiresAt            string `json:"expires_at"`
	AssignedTo           string `json:"assigned_to,omitempty"`
	WorkOrderID          string `json:"work_order_id,omitempty"`
	Notes                string `json:"notes,omitempty"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
}

type statusDTO struct {
	IsOpen             bool              `json:"is_open"`
	CurrentCount       int               `json:"current_count"`
	AverageWaitMinutes int               `json:"average_wait_minutes"`
	LastPosition       int               `json:"last_position"`
	OperatingHours     queue.WeeklyHours `json:"operating_hours"`
	ManualOverride     string            `json:"manual_override,omitempty"`
	LastUpdated        string            `json:"last_updated"`
}

type clearQueueResponse struct {
	Cleared int `json:"cleared"`
}

type codeValidityResponse struct {
	Valid bool `json:"valid"`
}

// AddEntry handles POST /queue/entries.
func (h *QueueHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req addEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	entry, err := h.service.AddEntry(r.Context(), queue.AddEntryParams{
		CustomerID:  req.CustomerID,
		ServiceType: queue.ServiceType(req.ServiceType),
		Notes:       req.Notes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEntryDTO(entry))
}

// ListActive handles GET /queue/entries.
func (h *QueueHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	entries, err := h.service.GetActiveEntries(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]entryDTO, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, toEntryDTO(entry))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

// GetEntry handles GET /queue/entries/{id}.
func (h *QueueHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	entryID, ok := EntryIDFromContext(r.Context())
	if !ok || strings.TrimSpace(entryID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEntryID)
		return
	}

	entry, err := h.service.GetEntry(r.Context(), entryID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEntryDTO(entry))
}

// UpdateStatus handles PATCH /queue/entries/{id}/status.
func (h *QueueHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	entryID, ok := EntryIDFromContext(r.Context())
	if !ok || strings.TrimSpace(entryID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEntryID)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	entry, err := h.service.UpdateStatus(r.Context(), queue.UpdateStatusParams{
		EntryID:     entryID,
		NewStatus:   queue.Status(req.Status),
		AssignedTo:  req.AssignedTo,
		WorkOrderID: req.WorkOrderID,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEntryDTO(entry))
}

// CallNext handles POST /queue/next.
func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req callNextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	entry, err := h.service.CallNext(r.Context(), req.TechnicianID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEntryDTO(entry))
}

// ClearQueue handles POST /queue/clear.
func (h *QueueHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	cleared, err := h.service.ClearQueue(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "queue", "clear_queue").InfoContext(r.Context(), "queue cleared", "entries", cleared)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, clearQueueResponse{Cleared: cleared})
}

// GetStatus handles GET /queue/status.
func (h *QueueHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	status, err := h.service.GetStatus(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStatusDTO(status))
}

// UpdateQueueStatus handles PUT /queue/status. The manual override and the
// weekly schedule can be replaced independently; omitted fields are left
// untouched.
func (h *QueueHandler) UpdateQueueStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req updateQueueStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	var status queue.QueueStatus
	var err error
	updated := false

	if len(req.OperatingHours) > 0 {
		status, err = h.service.SetOperatingHours(r.Context(), req.OperatingHours)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		updated = true
	}
	if req.ManualOverride != nil {
		status, err = h.service.SetManualOverride(r.Context(), queue.Override(*req.ManualOverride))
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		updated = true
	}

	if !updated {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStatusDTO(status))
}

// GetEntryByCode handles GET /queue/codes/{code}.
func (h *QueueHandler) GetEntryByCode(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	code, ok := CodeFromContext(r.Context())
	if !ok || strings.TrimSpace(code) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCode)
		return
	}

	entry, err := h.service.GetEntryByCode(r.Context(), code)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEntryDTO(entry))
}

// CheckCode handles GET /queue/codes/{code}/valid.
func (h *QueueHandler) CheckCode(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	code, ok := CodeFromContext(r.Context())
	if !ok || strings.TrimSpace(code) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCode)
		return
	}

	valid, err := h.service.IsCodeValid(r.Context(), code)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, codeValidityResponse{Valid: valid})
}

func toEntryDTO(entry queue.QueueEntry) entryDTO {
	return entryDTO{
		ID:                   entry.ID,
		CustomerID:           entry.CustomerID,
		ServiceType:          string(entry.ServiceType),
		Status:               string(entry.Status),
		Position:             entry.Position,
		JoinedAt:             entry.JoinedAt.UTC().Format(time.RFC3339),
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		VerificationCode:     entry.VerificationCode,
		ExpiresAt:            entry.ExpiresAt.UTC().Format(time.RFC3339),
		AssignedTo:           entry.AssignedTo,
		WorkOrderID:          entry.WorkOrderID,
		Notes:                entry.Notes,
		CreatedAt:            entry.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            entry.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toStatusDTO(status queue.QueueStatus) statusDTO {
	return statusDTO{
		IsOpen:             status.IsOpen,
		CurrentCount:       status.CurrentCount,
		AverageWaitMinutes: status.AverageWaitMinutes,
		LastPosition:       status.LastPosition,
		OperatingHours:     status.OperatingHours,
		ManualOverride:     string(status.ManualOverride),
		LastUpdated:        status.LastUpdated.UTC().Format(time.RFC3339),
	}
}
