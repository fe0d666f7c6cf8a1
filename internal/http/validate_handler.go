package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/example/workshop-queue/internal/queue"
)

type qrValidator interface {
	ValidateQR(ctx context.Context, payload []byte) (queue.QRValidation, error)
}

// validationFailureRecorder is an optional hook for counting rejected scans.
type validationFailureRecorder interface {
	RecordValidationFailure(kind string)
}

type ValidateHandler struct {
	validator qrValidator
	failures  validationFailureRecorder
	responder responder
	logger    *slog.Logger
}

func NewValidateHandler(validator qrValidator, failures validationFailureRecorder, logger *slog.Logger) *ValidateHandler {
	return &ValidateHandler{
		validator: validator,
		failures:  failures,
		responder: newResponder(logger),
		logger:    logger,
	}
}

type validateQRResponse struct {
	Entry        entryDTO `json:"entry"`
	TimerStarted bool     `json:"timer_started"`
	TimerHandle  string   `json:"timer_handle,omitempty"`
}

// ValidateQR handles POST /queue/validate. The request body is the raw
// scanned payload; decoding and type checks happen in the validator so a
// malformed scan still yields a typed, renderable rejection.
func (h *ValidateHandler) ValidateQR(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.validator == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4096))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	// Accept either the raw payload or a {"payload": ...} wrapper.
	var wrapper struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(payload, &wrapper); err == nil && len(wrapper.Payload) > 0 {
		payload = wrapper.Payload
	}

	result, err := h.validator.ValidateQR(r.Context(), payload)
	if err != nil {
		if h.failures != nil {
			h.failures.RecordValidationFailure(queue.ErrorKind(err))
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "validate", "validate_qr").InfoContext(r.Context(), "qr validated", "entry_id", result.Entry.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, validateQRResponse{
		Entry:        toEntryDTO(result.Entry),
		TimerStarted: result.TimerStarted,
		TimerHandle:  result.TimerHandle,
	})
}
