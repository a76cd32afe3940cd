package httpserver

import (
	"context"
	"net/http"

	"github.com/iago/market-analysis-back/internal/http/handlers"
	"github.com/iago/market-analysis-back/internal/http/middleware"
	"github.com/iago/market-analysis-back/internal/logging"
)

type RouterDependencies struct {
	API            *handlers.API
	Stream         http.Handler
	Logger         *logging.ContextLogger
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	// CreateRPS and CreateBurst add a stricter per-client budget on job
	// creation. Zero disables it.
	CreateRPS   float64
	CreateBurst int
}

func NewRouter(ctx context.Context, deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", deps.API.Health)
	create := http.Handler(http.HandlerFunc(deps.API.CreateAnalysis))
	if deps.CreateRPS > 0 {
		create = middleware.RateLimit(ctx, deps.CreateRPS, deps.CreateBurst)(create)
	}
	mux.Handle("POST /v1/analyses", create)
	mux.HandleFunc("GET /v1/jobs", deps.API.ListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", deps.API.JobStatus)
	if deps.Stream != nil {
		mux.Handle("GET /v1/jobs/stream", deps.Stream)
	}

	handler := http.Handler(mux)
	handler = middleware.RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
