package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/ironhaven/worldserver/internal/scheduler"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthHandler reports process health. The database is the only hard
// dependency; scheduler counters ride along for operators. With the
// database down the scheduler keeps ticking from memory, so the response
// still carries its stats next to the 503.
func HealthHandler(pool *pgxpool.Pool, tm *scheduler.TimeManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":    "healthy",
			"scheduler": tm.Stats(),
		}

		if err := infra.HealthCheck(r.Context(), pool); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(body)
			return
		}

		json.NewEncoder(w).Encode(body)
	}
}
