package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/postgres"
	"github.com/agentmine-network/agentmine-indexer/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// roundView is a mirror row plus its wall-clock phase. Phase is derived per
// request, never stored.
type roundView struct {
	models.Round
	Phase             protocol.Phase `json:"phase"`
	CommitSecondsLeft int64          `json:"commit_seconds_left"`
	RevealSecondsLeft int64          `json:"reveal_seconds_left"`
}

func viewOf(r models.Round, now int64) roundView {
	return roundView{
		Round:             r,
		Phase:             protocol.Classify(r.CommitCloseAt, r.RevealCloseAt, r.Settled, r.Expired, now),
		CommitSecondsLeft: protocol.SecondsLeft(r.CommitCloseAt, now),
		RevealSecondsLeft: protocol.SecondsLeft(r.RevealCloseAt, now),
	}
}

// HandleRoundsList returns the most recent rounds, newest first.
// Query param: ?limit=N (default 20, capped at 100)
func (h *Handler) HandleRoundsList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	rounds, err := h.Store.RecentRounds(r.Context(), limit)
	if err != nil {
		h.Logger.Error("failed to list rounds", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now().Unix()
	views := make([]roundView, 0, len(rounds))
	for _, rd := range rounds {
		views = append(views, viewOf(rd, now))
	}
	h.writeJSON(w, http.StatusOK, views)
}

// HandleRoundDetail returns one round with its inscriptions.
func (h *Handler) HandleRoundDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "round id must be a positive integer")
		return
	}

	round, err := h.Store.GetRound(r.Context(), id)
	if err != nil {
		if postgres.IsNoRows(err) {
			h.writeError(w, http.StatusNotFound, "round not found")
			return
		}
		h.Logger.Error("failed to get round", zap.Error(err), zap.Uint64("round_id", id))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	inscriptions, err := h.Store.InscriptionsByRound(r.Context(), id)
	if err != nil {
		h.Logger.Error("failed to list inscriptions", zap.Error(err), zap.Uint64("round_id", id))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if inscriptions == nil {
		inscriptions = make([]models.Inscription, 0)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"round":        viewOf(*round, time.Now().Unix()),
		"inscriptions": inscriptions,
	})
}

// HandleEpochDetail returns an epoch's rounds with the aggregate count of
// correct inscriptions across them.
func (h *Handler) HandleEpochDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "epoch id must be a positive integer")
		return
	}

	rounds, correct, err := h.Store.RoundsByEpoch(r.Context(), id)
	if err != nil {
		h.Logger.Error("failed to list epoch rounds", zap.Error(err), zap.Uint64("epoch_id", id))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rounds) == 0 {
		h.writeError(w, http.StatusNotFound, "epoch not found")
		return
	}

	now := time.Now().Unix()
	views := make([]roundView, 0, len(rounds))
	for _, rd := range rounds {
		views = append(views, viewOf(rd, now))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"epoch_id":      id,
		"rounds":        views,
		"correct_count": correct,
	})
}

// HandleStakeDetail returns the mirrored stake snapshot for a wallet.
func (h *Handler) HandleStakeDetail(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	if !common.IsHexAddress(wallet) {
		h.writeError(w, http.StatusBadRequest, "malformed wallet address")
		return
	}

	stake, err := h.Store.GetStake(r.Context(), strings.ToLower(wallet))
	if err != nil {
		if postgres.IsNoRows(err) {
			h.writeError(w, http.StatusNotFound, "no stake recorded for wallet")
			return
		}
		h.Logger.Error("failed to get stake", zap.Error(err), zap.String("wallet", wallet))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, stake)
}
