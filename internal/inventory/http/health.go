package http

import (
	"net/http"
	"time"

	"github.com/microstore/microstore/internal/inventory/store"
	"github.com/microstore/microstore/pkg/authsdk"
	"github.com/microstore/microstore/pkg/guard"
	"github.com/microstore/microstore/pkg/httpx"
)

// LivezHandler is the liveness probe. It always returns 200 OK while the
// process is running.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}

// ReadyzHandler is the readiness probe. It checks the database connection
// and that the issuer's signing keys have been fetched.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	g *guard.Guard,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{
			Database: "ok",
			Signer:   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if !g.Ready(r.Context()) {
			checks.Signer = "error: issuer keys not loaded"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
