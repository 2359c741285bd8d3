package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves one probe as JSON. Liveness and readiness are binary;
// degraded answers 200.
func (c *Checker) Handler(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Run(r.Context(), kind)

		w.Header().Set("Content-Type", "application/json")
		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// Mount registers /health/live and /health/ready on mux.
func (c *Checker) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/health/live", c.Handler(Liveness))
	mux.HandleFunc("/health/ready", c.Handler(Readiness))
}
