package api

import (
	"encoding/base64"
	"log"
	"net/http"

	"github.com/quietwire/mercury/internal/db"
	"github.com/quietwire/mercury/internal/dispatch"
	"github.com/quietwire/mercury/internal/models"
)

// EnvelopeHandler handles envelope ingestion from the delivery service.
type EnvelopeHandler struct {
	store      *db.Store
	dispatcher *dispatch.Dispatcher
	runner     dispatch.Runner
}

// NewEnvelopeHandler creates a new EnvelopeHandler instance.
func NewEnvelopeHandler(store *db.Store, dispatcher *dispatch.Dispatcher, runner dispatch.Runner) *EnvelopeHandler {
	return &EnvelopeHandler{store: store, dispatcher: dispatcher, runner: runner}
}

type envelopeRequest struct {
	Type          int    `json:"type"`
	Source        string `json:"source"`
	SourceDevice  int    `json:"sourceDevice"`
	Timestamp     int64  `json:"timestamp"`
	ContentBase64 string `json:"content"`
	// Push marks envelopes delivered through a push notification relay.
	Push bool `json:"push,omitempty"`
	// PlaceholderID correlates the envelope with a local echo record.
	PlaceholderID int64 `json:"placeholderId,omitempty"`
}

// Ingest accepts one envelope, stores it durably and schedules its
// dispatch. The envelope survives a crash between acceptance and
// processing.
func (h *EnvelopeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req envelopeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		log.Printf("EnvelopeHandler: Invalid content encoding: %v", err)
		http.Error(w, "Invalid content encoding", http.StatusBadRequest)
		return
	}

	envelope := &models.Envelope{
		Type:         models.EnvelopeType(req.Type),
		Source:       req.Source,
		SourceDevice: req.SourceDevice,
		Timestamp:    req.Timestamp,
		Content:      content,
	}

	if req.Push {
		// Push deliveries are handled inline: the relay retries on
		// failure, and inline handling lets decrypt failures be
		// suppressed for this path.
		if err := h.dispatcher.ProcessEnvelope(ctx, envelope, true); err != nil {
			log.Printf("EnvelopeHandler: Failed to process push envelope: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "processed"})
		return
	}

	id, err := h.store.InsertEnvelope(ctx, envelope)
	if err != nil {
		log.Printf("EnvelopeHandler: Failed to store envelope: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.runner.Submit(ctx, dispatch.NewDispatchJob(h.dispatcher, id, req.PlaceholderID)); err != nil {
		log.Printf("EnvelopeHandler: Failed to schedule dispatch for envelope %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "envelopeId": id})
}

// Replay schedules dispatch for every envelope still in the pending
// inbox. Called after key material arrives.
func (h *EnvelopeHandler) Replay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.store.PendingEnvelopeIDs(ctx)
	if err != nil {
		log.Printf("EnvelopeHandler: Failed to list pending envelopes: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	scheduled := 0
	for _, id := range ids {
		if err := h.runner.Submit(ctx, dispatch.NewDispatchJob(h.dispatcher, id, 0)); err != nil {
			log.Printf("EnvelopeHandler: Failed to schedule dispatch for envelope %d: %v", id, err)
			continue
		}
		scheduled++
	}

	WriteJSON(w, http.StatusOK, map[string]any{"scheduled": scheduled})
}
