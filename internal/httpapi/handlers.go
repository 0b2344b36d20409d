package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"smart-meter-monitor/internal/render"
	"smart-meter-monitor/internal/version"
)

const streamWriteTimeout = 5 * time.Second

type healthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	WindowLen     int        `json:"window_len"`
	WindowCap     int        `json:"window_cap"`
	StreamClients int        `json:"stream_clients"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   version.String(),
		WindowLen: s.deps.Window.Len(),
		WindowCap: s.deps.Window.Cap(),
	}
	if s.deps.Hub != nil {
		resp.StreamClients = s.deps.Hub.Clients()
	}
	if s.deps.LastSeen != nil {
		if ts := s.deps.LastSeen(); !ts.IsZero() {
			resp.LastSeen = &ts
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSnapshot returns the window oldest first, optionally only the newest
// ?limit=N records.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := s.deps.Window.Snapshot()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(snapshot) {
			snapshot = snapshot[len(snapshot)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	latest, ok := s.deps.Window.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleEnergy(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Energy == nil {
		writeError(w, http.StatusNotFound, "energy metering disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Energy.Totals())
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	panel, err := render.ParsePanel(r.URL.Query().Get("panel"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := render.WritePNG(&buf, s.deps.Window.Snapshot(), panel); err != nil {
		if errors.Is(err, render.ErrTooFewPoints) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.logger.Error().Err(err).Msg("render chart")
		writeError(w, http.StatusInternalServerError, "render chart failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// handleStream upgrades to a websocket, sends the newest record if any, then
// every record the hub broadcasts until either side closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusNotFound, "streaming disabled")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.deps.Hub.subscribe()
	defer s.deps.Hub.unsubscribe(sub)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.deps.Hub.unsubscribe(sub)
				return
			}
		}
	}()

	if latest, ok := s.deps.Window.Latest(); ok {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	for m := range sub.send {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(m); err != nil {
			s.logger.Debug().Err(err).Msg("stream subscriber gone")
			return
		}
	}
}

// writeJSON encodes v before committing the status line, so an unencodable
// value turns into a 500 rather than a truncated 200.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "{\"error\":%q}\n", "encode response: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
