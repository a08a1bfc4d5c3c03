package api

import (
	"log"
	"net/http"

	"github.com/quietwire/mercury/internal/attachments"
	"github.com/quietwire/mercury/internal/db"
	"github.com/quietwire/mercury/internal/dispatch"
	"github.com/quietwire/mercury/internal/models"
)

// AttachmentsHandler handles attachment-related API requests.
type AttachmentsHandler struct {
	store  *db.Store
	env    *attachments.Env
	runner dispatch.Runner
}

// NewAttachmentsHandler creates a new AttachmentsHandler instance.
func NewAttachmentsHandler(store *db.Store, env *attachments.Env, runner dispatch.Runner) *AttachmentsHandler {
	return &AttachmentsHandler{store: store, env: env, runner: runner}
}

type retryRequest struct {
	MessageID int64 `json:"messageId"`
	RowID     int64 `json:"rowId"`
	UniqueID  int64 `json:"uniqueId"`
}

// Retry schedules a manual download for an attachment. Manual requests
// bypass the auto-download policy and restart failed transfers.
func (h *AttachmentsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req retryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	id := models.AttachmentID{RowID: req.RowID, UniqueID: req.UniqueID}

	attachment, err := h.store.Attachment(ctx, id)
	if err != nil {
		log.Printf("AttachmentsHandler: Failed to load attachment %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if attachment == nil {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}

	if attachment.TransferState == models.TransferStateFailed {
		if err := h.store.SetTransferState(ctx, req.MessageID, id, models.TransferStatePending); err != nil {
			log.Printf("AttachmentsHandler: Failed to reset attachment %s: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	if err := h.runner.Submit(ctx, attachments.NewDownloadJob(h.env, req.MessageID, id, true)); err != nil {
		log.Printf("AttachmentsHandler: Failed to schedule download for %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// Content serves the downloaded bytes of an attachment.
func (h *AttachmentsHandler) Content(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req retryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	id := models.AttachmentID{RowID: req.RowID, UniqueID: req.UniqueID}

	attachment, err := h.store.Attachment(ctx, id)
	if err != nil {
		log.Printf("AttachmentsHandler: Failed to load attachment %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if attachment == nil {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}
	if attachment.TransferState != models.TransferStateDone {
		http.Error(w, "Attachment not downloaded", http.StatusConflict)
		return
	}

	content, err := h.store.AttachmentContent(ctx, id)
	if err != nil {
		log.Printf("AttachmentsHandler: Failed to load content for %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		log.Printf("AttachmentsHandler: Failed to write content for %s: %v", id, err)
	}
}
