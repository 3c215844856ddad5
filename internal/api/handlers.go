package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"finvasia/internal/store"
	"finvasia/pkg/finvasia"
)

const defaultOrderLimit = 100

// SessionInfo is the body of GET /api/v1/session.
type SessionInfo struct {
	State        string    `json:"state"`
	Connected    bool      `json:"connected"`
	LastActivity time.Time `json:"lastActivity,omitzero"`
}

func (s *Server) sessionInfo() SessionInfo {
	if s.opts.Session == nil {
		return SessionInfo{State: finvasia.StateIdle.String()}
	}
	st := s.opts.Session.State()
	return SessionInfo{
		State:        st.String(),
		Connected:    st == finvasia.StateConnected,
		LastActivity: s.opts.Session.LastActivity(),
	}
}

// handleHealth reports 200 while the session is connected and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info := s.sessionInfo()
	if !info.Connected {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(info)
		return
	}
	s.writeJSON(w, info)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.sessionInfo())
}

// handleListOrders serves journaled orders, newest first. Query params:
// status filters by order status, limit caps the count (default 100).
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "order journal not configured")
		return
	}
	limit := defaultOrderLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	orders, err := s.opts.Journal.ListOrders(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		s.logger.Error("listing orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing orders failed")
		return
	}
	if orders == nil {
		orders = []store.OrderRecord{}
	}
	s.writeJSON(w, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "order journal not configured")
		return
	}
	id := mux.Vars(r)["id"]
	order, err := s.opts.Journal.GetOrder(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.logger.Error("reading order", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reading order failed")
		return
	}
	s.writeJSON(w, order)
}

func (s *Server) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "order journal not configured")
		return
	}
	id := mux.Vars(r)["id"]
	updates, err := s.opts.Journal.ListUpdates(r.Context(), id)
	if err != nil {
		s.logger.Error("listing order updates", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing order updates failed")
		return
	}
	if updates == nil {
		updates = []store.OrderUpdateRecord{}
	}
	s.writeJSON(w, updates)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
