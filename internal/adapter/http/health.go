package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/Conductor/internal/port/messagequeue"
)

// Pinger is satisfied by the database store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecks are the dependencies reported by /health. Queue and Breaker
// are optional.
type HealthChecks struct {
	DB      Pinger
	Queue   messagequeue.Queue
	Breaker func() string
}

type healthStatus struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	NATS     string `json:"nats"`
	Reasoner string `json:"reasoner"`
}

// HealthHandler reports dependency status. Only the database is required
// for a 200; messaging is a wakeup optimization.
func HealthHandler(c HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		st := healthStatus{Status: "ok", Postgres: "ok", NATS: "disabled", Reasoner: "unknown"}
		code := http.StatusOK
		if err := c.DB.Ping(ctx); err != nil {
			st.Status, st.Postgres = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
		if c.Queue != nil {
			st.NATS = "connected"
			if !c.Queue.IsConnected() {
				st.NATS = "disconnected"
			}
		}
		if c.Breaker != nil {
			st.Reasoner = c.Breaker()
		}
		writeJSON(w, code, st)
	}
}
