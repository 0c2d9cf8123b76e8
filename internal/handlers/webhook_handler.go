package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/services"
	"github.com/leadpulse/backend/libs/handlers"
	"go.uber.org/zap"
)

// EventCollector buffers webhook events until the next flush
type EventCollector interface {
	Add(accountID string, event models.LeadEvent) (models.BufferedEvent, error)
}

// WebhookHandler handles lead-reply deliveries from the campaign platform
type WebhookHandler struct {
	handlers.BaseHandler
	collector EventCollector
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(collector EventCollector, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: handlers.BaseHandler{Logger: logger},
		collector:   collector,
	}
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{accountID}/lead-events", h.ReceiveLeadEvent)
}

// ReceiveLeadEvent handles POST /webhooks/{accountID}/lead-events
// @Summary Receive a lead reply event
// @Description Buffers one lead-reply event for batched ingestion. The response only confirms the event was queued.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param accountID path string true "Upstream account ID"
// @Param event body models.LeadEvent true "Lead event"
// @Success 200 {object} models.WebhookAck
// @Failure 400 {object} map[string]string "Malformed body or missing lead_email"
// @Failure 500 {object} map[string]string "Collector is shutting down"
// @Router /webhooks/{accountID}/lead-events [post]
func (h *WebhookHandler) ReceiveLeadEvent(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
	if accountID == "" {
		h.RespondError(w, http.StatusBadRequest, "account id is required")
		return
	}

	var event models.LeadEvent
	if err := h.DecodeJSON(r, &event); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(event.LeadEmail) == "" {
		h.RespondError(w, http.StatusBadRequest, "lead_email is required")
		return
	}

	entry, err := h.collector.Add(accountID, event)
	if err != nil {
		if errors.Is(err, services.ErrCollectorClosed) {
			h.Logger.Warn("webhook rejected during shutdown", zap.String("account_id", accountID))
		} else {
			h.Logger.Error("failed to buffer webhook event", zap.String("account_id", accountID), zap.Error(err))
		}
		h.RespondError(w, http.StatusInternalServerError, "event could not be queued")
		return
	}

	h.Logger.Debug("webhook event buffered",
		zap.String("account_id", accountID),
		zap.String("entry_id", entry.EntryID),
	)
	h.RespondJSON(w, http.StatusOK, models.WebhookAck{Accepted: true, Queued: true})
}
