package cocoro

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/joshp123/gohome-cocoro/internal/rate"
)

type service struct {
	client  *Client
	monitor *Monitor
}

type statusResponse struct {
	Snapshot  Snapshot  `json:"snapshot"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
	Error     string    `json:"error,omitempty"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type modeResponse struct {
	Mode Mode `json:"mode"`
}

// RegisterHTTPService mounts the plugin's JSON API under /api/cocoro.
func RegisterHTTPService(mux *http.ServeMux, client *Client, monitor *Monitor) {
	s := &service{client: client, monitor: monitor}
	mux.HandleFunc("GET /api/cocoro/status", s.status)
	mux.HandleFunc("GET /api/cocoro/devices", s.devices)
	mux.HandleFunc("GET /api/cocoro/humidity-mode", s.getMode)
	mux.HandleFunc("PUT /api/cocoro/humidity-mode", s.setMode)
}

func (s *service) status(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	var cached cachedSnapshot
	if refresh {
		cached = s.monitor.Refresh(r.Context())
	} else {
		cached = s.monitor.Current(r.Context())
	}

	if !cached.success && cached.snapshot.FetchedAt.IsZero() {
		writeError(w, cached.err)
		return
	}

	resp := statusResponse{Snapshot: cached.snapshot, FetchedAt: cached.fetchedAt, Stale: !cached.success}
	if cached.err != nil {
		resp.Error = cached.err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *service) devices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.client.ListDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *service) getMode(w http.ResponseWriter, r *http.Request) {
	on, err := s.client.HumidityMode(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.monitor.RecordMode(ModeFromBool(on))
	writeJSON(w, http.StatusOK, modeResponse{Mode: ModeFromBool(on)})
}

func (s *service) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.monitor.SetHumidityMode(r.Context(), mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Mode: mode})
}

func httpStatusFor(err error) int {
	var argErr *InvalidArgumentError
	var rateErr rate.RateLimitError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &argErr), errors.Is(err, ErrMissingDeviceID):
		return http.StatusBadRequest
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	default:
		// upstream failure
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	msg := "no data"
	if err != nil {
		msg = err.Error()
	}
	status := httpStatusFor(err)
	if err == nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
