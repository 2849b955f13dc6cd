package handler

import (
	"net/http"

	"go.uber.org/zap"
)

// HandleSync runs one reconciliation pass synchronously and returns its
// summary. This is the external trigger surface; a scheduler (cron, uptime
// monitor) POSTs here on a fixed interval.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Engine.Tick(r.Context())
	if err != nil {
		h.Logger.Error("sync tick failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, sum)
}
