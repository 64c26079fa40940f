package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

type Server struct {
	router              *chi.Mux
	commands            ContactCommands
	tenantRegistry      *model.TenantRegistry
	slackWebhookHandler *SlackWebhookHandler
	slackSigningSecret  string
}

type Options func(*Server)

// WithAPI enables the JSON API under /api
func WithAPI(commands ContactCommands, registry *model.TenantRegistry) Options {
	return func(s *Server) {
		s.commands = commands
		s.tenantRegistry = registry
	}
}

func WithSlackWebhook(handler *SlackWebhookHandler, signingSecret string) Options {
	return func(s *Server) {
		s.slackWebhookHandler = handler
		s.slackSigningSecret = signingSecret
	}
}

func New(opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if s.commands != nil && s.tenantRegistry != nil {
		api := &apiHandler{commands: s.commands, registry: s.tenantRegistry}
		r.Route("/api/tenants", func(r chi.Router) {
			r.Get("/", api.listTenants)
			r.Route("/{tenant}", func(r chi.Router) {
				r.Get("/stats", api.getStats)
				r.Post("/export", api.forceExport)
				r.Post("/tag", api.tagRecent)
				r.Get("/contacts", api.listContacts)
				r.Route("/contacts/{counterpart}", func(r chi.Router) {
					r.Get("/", api.getContact)
					r.Patch("/", api.editContact)
					r.Delete("/", api.deleteContact)
					r.Post("/enrich", api.reEnrich)
				})
			})
		})
	}

	// Slack webhook endpoint (if configured) - No auth required, uses signature verification
	if s.slackWebhookHandler != nil {
		r.Route("/hooks/slack", func(r chi.Router) {
			// Apply Slack signature verification middleware to all /hooks/slack/* routes
			r.Use(SlackSignatureMiddleware(s.slackSigningSecret))

			// Event webhook endpoint
			r.Post("/event", s.slackWebhookHandler.ServeHTTP)
		})
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := logging.Default().With("request_id", middleware.GetReqID(r.Context()))
		ctx := logging.With(r.Context(), logger)

		defer func() {
			logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}
