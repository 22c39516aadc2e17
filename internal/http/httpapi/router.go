package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"menu3d/internal/http/handlers"
	"menu3d/internal/infra"
	"menu3d/internal/infra/geoip"
	"menu3d/internal/middleware"
)

type Options struct {
	// FilesPrefix is where stored images and models are mounted, as
	// normalized by infra.LoadConfig.
	FilesPrefix string
	// SubmitLimitPerMin bounds job submissions per client IP. Zero disables it.
	SubmitLimitPerMin int
	// Countries adds the client country to access logs when set.
	Countries geoip.CountryResolver
	Logger    infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.ClientCountry(opts.Countries),
		middleware.Logger(infra.Component(opts.Logger, "access")),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/generation-jobs", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.SubmitLimitPerMin, time.Minute)).Post("/", app.CreateGenerationJob)
		r.Get("/", app.ListGenerationJobs)
		r.Get("/{id}", app.GetGenerationJob)
	})

	r.Get("/dishes/{dishId}/model", app.GetDishModel)
	r.Get("/models", app.ListModels)

	prefix := opts.FilesPrefix
	if prefix == "" {
		prefix = infra.DefaultFilesPrefix
	}
	r.Route(prefix, func(r chi.Router) {
		r.Use(middleware.CORS(middleware.PublicReadPolicy))
		r.Get("/{namespace}/{name}", app.ServeFile)
		r.Head("/{namespace}/{name}", app.ServeFile)
	})

	return r
}
