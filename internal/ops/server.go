package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketloop/settlements-backend/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is any dependency the health endpoint should probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerParams configure the ops HTTP surface.
type HandlerParams struct {
	Logger       *logger.Logger
	ServiceKind  string
	Dependencies map[string]Pinger
}

// NewHandler serves /healthz and /metrics for a worker process.
func NewHandler(params HandlerParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(params))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func healthz(params HandlerParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{
			Status:  "ok",
			Service: params.ServiceKind,
			Checks:  make(map[string]string, len(params.Dependencies)),
		}
		code := http.StatusOK
		for name, dep := range params.Dependencies {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				if params.Logger != nil {
					params.Logger.Error(r.Context(), "health check failed: "+name, err)
				}
				continue
			}
			resp.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
