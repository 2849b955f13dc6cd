package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/agentmine-network/agentmine-indexer/internal/calldata"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandleCalldata derives commit or reveal calldata for a wallet.
// Query param: ?round=N to target a specific round instead of auto-selecting.
//
// Pending conditions (question unrevealed, no open window) are 200 responses
// with null calldata and a status message; only rejections and failures get
// error codes.
func (h *Handler) HandleCalldata(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]

	var roundID uint64
	if v := r.URL.Query().Get("round"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			h.writeError(w, http.StatusBadRequest, "round must be a positive integer")
			return
		}
		roundID = n
	}

	res, err := h.Calldata.Derive(r.Context(), wallet, roundID)
	if err != nil {
		switch {
		case errors.Is(err, calldata.ErrBadWallet):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, calldata.ErrInsufficientStake):
			h.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, calldata.ErrRoundNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		default:
			h.Logger.Error("calldata derivation failed",
				zap.Error(err),
				zap.String("wallet", wallet),
				zap.Uint64("round_id", roundID),
			)
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}
