package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the rig snapshot served on /status.
type Status struct {
	SessionID  string `json:"session_id"`
	Mode       string `json:"mode"`
	FrameCount int    `json:"frame_count"`
	ExposureUs int32  `json:"exposure_us"`
	LightOn    bool   `json:"light_on"`
	IdleSlots  int    `json:"idle_slots"`
}

// StatusFunc produces the current rig snapshot.
type StatusFunc func() Status

// Handlers contains the HTTP handlers and their dependencies.
type Handlers struct {
	broadcaster *StatusBroadcaster
	status      StatusFunc
}

// NewHandlers creates the handler set.
func NewHandlers(broadcaster *StatusBroadcaster, status StatusFunc) *Handlers {
	return &Handlers{
		broadcaster: broadcaster,
		status:      status,
	}
}

// ServeIndex serves a minimal status page.
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html>
<title>filmrig</title>
<h1>filmrig</h1>
<p>Endpoints: <a href="/status">/status</a>,
<a href="/status/stream">/status/stream</a> (SSE log),
<a href="/metrics">/metrics</a>.</p>
`)
}

// HandleStatus serves the current rig snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleStatusStream mirrors the rig log over Server-Sent Events.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsub := h.broadcaster.Subscribe()
	defer unsub()

	flusher.Flush()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMetrics serves the Prometheus registry.
func (h *Handlers) HandleMetrics() http.Handler {
	return promhttp.Handler()
}
