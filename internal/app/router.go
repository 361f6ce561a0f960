package app

import (
	"net/http"
	"time"

	"gradebook/internal/app/apiresp"
	"gradebook/internal/app/observability"
	"gradebook/internal/cache"
	"gradebook/internal/classes"
	"gradebook/internal/grading"
	"gradebook/internal/report"
	"gradebook/internal/summary"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Services holds what the router serves. NewServices builds it from a Backend.
type Services struct {
	Summary  *summary.Engine
	Grading  *grading.Service
	Report   *report.Service
	Classes  *classes.CachedDirectory
	Limiter  *IPRateLimiter
	Notifier interface{ Wait() }
}

func NewServices(cfg Config, b *Backend) *Services {
	dir := classes.NewCachedDirectory(b.Classes, cache.New[string](), cfg.ClassNameCacheTTL)
	engine := summary.NewEngine(b.Summaries, dir)
	notifier := NewNotifier(cfg, b.Recipients)
	return &Services{
		Summary:  engine,
		Grading:  grading.NewService(b.Submissions, b.Counters, engine, notifier),
		Report:   report.NewService(engine),
		Classes:  dir,
		Limiter:  NewIPRateLimiter(cfg.GradeRateLimitPerMin, time.Minute),
		Notifier: notifier,
	}
}

func NewRouter(cfg Config, b *Backend, svcs *Services) http.Handler {
	obs := observability.NewCollector(b.SQL)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	summaryHandler := summary.NewHandler(svcs.Summary)
	gradingHandler := grading.NewHandler(svcs.Grading)
	reportHandler := report.NewHandler(svcs.Report)
	classHandler := classes.NewHandler(svcs.Classes)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"backend": cfg.StoreBackend})
	})
	r.Method(http.MethodGet, "/metrics", obs.MetricsHandler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RateLimitMiddleware(svcs.Limiter))

		api.Get("/classes/{classID}", classHandler.Get)
		api.Put("/classes/{classID}", classHandler.SetName)
		api.Post("/classes/import", classHandler.ImportExcel)

		api.Get("/classes/{classID}/students/{studentID}/summary", summaryHandler.Get)
		api.Get("/classes/{classID}/students/{studentID}/summary.xlsx", reportHandler.SummaryExcel)
		api.Post("/classes/{classID}/students/{studentID}/grades", summaryHandler.RecordGrade)

		api.Post("/activities/{activityID}/submissions", gradingHandler.Submit)
		api.Get("/activities/{activityID}/submissions/{studentID}", gradingHandler.Get)
		api.Put("/activities/{activityID}/submissions/{studentID}/grade", gradingHandler.Grade)
		api.Get("/activities/{activityID}/counters", gradingHandler.Counters)
	})

	return r
}
