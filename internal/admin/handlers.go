package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/MathewBravo/realtime-db/internal/connector"
	"github.com/MathewBravo/realtime-db/pkg/poller"
)

func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, poller.ErrInvalidInterval):
		return http.StatusBadRequest
	case errors.Is(err, poller.ErrNotListening):
		return http.StatusNotFound
	case errors.Is(err, connector.ErrNotRunning), errors.Is(err, poller.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, "ok")
}

func (h *Handlers) handleListTables(w http.ResponseWriter, r *http.Request) {
	type tableView struct {
		Table    string `json:"table"`
		Interval string `json:"interval"`
		Ticks    uint64 `json:"ticks"`
	}
	tables := h.ctl.Tables()
	out := make([]tableView, 0, len(tables))
	for _, t := range tables {
		out = append(out, tableView{Table: t.Table, Interval: t.Interval.String(), Ticks: t.Ticks})
	}
	writeJSONResponse(w, http.StatusOK, out)
}

func (h *Handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	snap, ok := h.ctl.Snapshot(table)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("table %q is not polled", table))
		return
	}
	writeJSONResponse(w, http.StatusOK, snap)
}

// handleListen takes the interval as a Go duration, e.g. ?interval=500ms.
func (h *Handlers) handleListen(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	interval := h.defaultInterval
	if raw := r.URL.Query().Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid interval: "+err.Error())
			return
		}
		interval = d
	}

	if err := h.ctl.Listen(table, interval); err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	log.Info().Str("table", table).Dur("interval", interval).Msg("Listening via admin API")
	writeJSONResponse(w, http.StatusOK, map[string]string{"table": table, "interval": interval.String()})
}

func (h *Handlers) handleUnlisten(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if err := h.ctl.Unlisten(table); err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	log.Info().Str("table", table).Msg("Stopped listening via admin API")
	w.WriteHeader(http.StatusNoContent)
}
