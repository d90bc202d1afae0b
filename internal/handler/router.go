package handler

import (
	"net/http"

	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// readiness may be nil, in which case /readyz always reports ready.
func NewRouter(
	chatSvc *service.ChatService,
	verifier *service.IdentityVerifier,
	readiness *service.Readiness,
	metrics *observability.Metrics,
	corsOrigins []string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// Unknown routes and unsupported methods look the same to clients.
	// Set before mounting so sub-routers inherit them.
	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(notFoundHandler)

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler)
	r.Get("/readyz", readyzHandler(readiness))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Get("/metrics/usage", usageHandler(metrics))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(verifier, logger))

			r.Post("/chat", chatTurnHandler(chatSvc, logger))
			r.Get("/chats", listChatsHandler(chatSvc, logger))
			r.Get("/chat/{chatId}", getChatMessagesHandler(chatSvc, logger))
			r.Delete("/chat/{chatId}", deleteChatHandler(chatSvc, logger))
		})
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readyzHandler(readiness *service.Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if readiness == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}

		status := readiness.Check(r.Context())
		if status.Status != "ready" {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}
