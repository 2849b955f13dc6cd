package handler

import (
	"encoding/json"
	"net/http"

	"github.com/agentmine-network/agentmine-indexer/internal/calldata"
	"github.com/agentmine-network/agentmine-indexer/internal/reconciler"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/postgres"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler holds the dependencies for API handlers
type Handler struct {
	Store      *postgres.Store
	Engine     *reconciler.Engine
	Calldata   *calldata.Service
	Logger     *zap.Logger
	SyncSecret string
}

// NewHandler creates a new Handler instance
func NewHandler(store *postgres.Store, engine *reconciler.Engine, svc *calldata.Service, logger *zap.Logger, syncSecret string) *Handler {
	return &Handler{
		Store:      store,
		Engine:     engine,
		Calldata:   svc,
		Logger:     logger,
		SyncSecret: syncSecret,
	}
}

// NewRouter creates and configures the HTTP router with all API routes
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()

	// Public read endpoints
	r.HandleFunc("/api/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/rounds", h.HandleRoundsList).Methods(http.MethodGet)
	r.HandleFunc("/api/rounds/{id}", h.HandleRoundDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/epochs/{id}", h.HandleEpochDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/stakes/{wallet}", h.HandleStakeDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/calldata/{wallet}", h.HandleCalldata).Methods(http.MethodGet)

	// Protected trigger endpoint
	r.HandleFunc("/api/sync", h.RequireAuth(h.HandleSync)).Methods(http.MethodPost)

	return r
}

// RequireAuth is a middleware that validates the bearer token
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		expected := "Bearer " + h.SyncSecret

		if h.SyncSecret == "" || auth != expected {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next(w, r)
	}
}

// HandleHealth returns a simple health check response
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
