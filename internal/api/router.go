package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/pdfchat/internal/api/handlers"
	"github.com/nikhilbhutani/pdfchat/internal/api/middleware"
	"github.com/nikhilbhutani/pdfchat/internal/config"
)

// Service is the application surface the HTTP layer exposes.
type Service interface {
	handlers.ChatService
	handlers.Ingester
}

type Router struct {
	mux     *chi.Mux
	cfg     config.HTTPConfig
	svc     Service
	checks  map[string]handlers.Pinger
	limiter *middleware.RateLimiter
}

func NewRouter(cfg config.HTTPConfig, svc Service, checks map[string]handlers.Pinger) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		cfg:    cfg,
		svc:    svc,
		checks: checks,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.CORSOrigins))

	if rt.cfg.RateLimitRPS > 0 {
		rt.limiter = middleware.NewRateLimiter(rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
		r.Use(rt.limiter.Limit)
	}
	r.Use(middleware.MaxBody(rt.cfg.MaxBodyBytes))

	health := handlers.NewHealthHandler(rt.checks)
	r.Get("/health", health.Health)
	r.Get("/readyz", health.Readyz)

	chatH := handlers.NewChatHandler(rt.svc)
	r.Post("/new-chat", chatH.NewChat)
	r.Post("/history", chatH.History)
	r.Post("/query", chatH.Query)

	docH := handlers.NewDocumentHandler(rt.svc)
	r.Post("/process-pdf", docH.ProcessPDF)

	return r
}

// Close releases background resources held by the middleware.
func (rt *Router) Close() {
	if rt.limiter != nil {
		rt.limiter.Close()
	}
}
