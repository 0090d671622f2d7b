package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"adspack/internal/http/handlers"
	"adspack/internal/middleware"
)

// Options configure the middleware stack.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Recorder       middleware.Recorder
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger, opts.Recorder),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/formats", app.Catalog)

		// provider-backed endpoints share one per-client budget
		r.Group(func(r chi.Router) {
			if opts.RateLimitPerMin > 0 {
				r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			}
			r.Post("/formats", app.GenerateFormats)
			r.Post("/master", app.GenerateMaster)
		})

		r.Post("/palette", app.Palette)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", app.SessionStatus)
			r.Get("/formats/{key}", app.DownloadFormat)
			r.Get("/archive", app.DownloadArchive)
		})

		r.Get("/history", app.ListHistory)
		r.Delete("/history", app.ClearHistory)
	})

	return r
}
