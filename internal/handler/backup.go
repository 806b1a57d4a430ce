package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/mealplan/internal/backup"
	"github.com/dukerupert/mealplan/internal/model"
	"github.com/dukerupert/mealplan/internal/websocket"
)

type BackupHandler struct {
	manager *backup.Manager
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewBackupHandler(mgr *backup.Manager, hub *websocket.Hub, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: mgr, hub: hub, logger: logger}
}

type backupRequest struct {
	Passphrase string `json:"passphrase"`
}

type restoreRequest struct {
	Key        string `json:"key" validate:"required"`
	Passphrase string `json:"passphrase"`
}

// Run takes a backup now. An omitted passphrase uses the configured one.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.manager.RunNow(r.Context(), req.Passphrase)
	if err != nil {
		h.writeBackupError(w, "backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": record.S3Key, "backup": record})
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.manager.Restore(r.Context(), req.Key, req.Passphrase)
	if err != nil {
		h.writeBackupError(w, "restore failed", err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(websocket.Message{
			Type:   "meal_reloaded",
			Entity: "meal",
			Action: "reloaded",
			Extra:  map[string]any{"outcome": "restored", "count": n},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": req.Key, "count": n})
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	backups, err := h.manager.List(20)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  h.manager.Status(),
		"backups": backups,
	})
}

func (h *BackupHandler) writeBackupError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, backup.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, backup.ErrNoPassphrase):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backup.ErrInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
