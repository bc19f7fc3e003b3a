package deployapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter assembles the Deployment HTTP surface's chi router: request id,
// real ip, a zap request logger, panic recovery, timeout, CORS for
// browser-based tenant dashboards, and a heartbeat health endpoint.
func NewRouter(h *Handlers, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", h.SubmitJob)
		r.Get("/jobs/{jobID}", h.JobStatus)

		r.Route("/deployments", func(r chi.Router) {
			r.Get("/", h.ListDeployments)
			r.Get("/{customerID}", h.GetDeploymentByCustomer)
			r.Put("/{customerID}", h.UpsertDeployment)
			r.Delete("/{customerID}", h.DeleteDeployment)
			r.Get("/by-image/{imageID}", h.GetDeploymentByImageID)
		})
	})

	return r
}

// requestLogger logs one line per completed request using the ambient zap
// logger, matching the request/method/path/status/bytes/duration shape
// used across every zkgate HTTP surface.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
