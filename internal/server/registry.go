package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/gohome-cocoro/internal/core"
)

// RegisterRegistryHandlers exposes plugin discovery over HTTP.
func RegisterRegistryHandlers(mux *http.ServeMux, registry *core.Registry) {
	mux.HandleFunc("GET /plugins", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"plugins": registry.ListPlugins()})
	})
	mux.HandleFunc("GET /plugins/{id}", func(w http.ResponseWriter, r *http.Request) {
		desc, ok := registry.DescribePlugin(r.PathValue("id"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, desc)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
