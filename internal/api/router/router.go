package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
	httpmiddleware "github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/internal/inbox"
	"github.com/wolfman30/clinic-concierge/internal/leads"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	InboxHandler     *inbox.Handler
	LeadsHandler     *leads.Handler
	ClinicHandler    *clinic.Handler
	ClinicorpHandler *clinicorp.Handler
	MetricsHandler   http.Handler

	// AdminAuthSecret protects the /tenants routes when set.
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.MessagingHandler == nil {
		panic("router: messaging handler is required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.MessagingHandler.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Route("/webhooks", func(hooks chi.Router) {
			hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst))
			hooks.Post("/whatsapp", cfg.MessagingHandler.UazapiWebhook)
			hooks.Post("/uazapi", cfg.MessagingHandler.UazapiWebhook)
		})
	})

	r.Route("/tenants/{tenantID}", func(tenant chi.Router) {
		if cfg.AdminAuthSecret != "" {
			tenant.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret), httpmiddleware.RequireTenantScope)
		}
		tenant.Use(requireTenant)

		if cfg.InboxHandler != nil {
			tenant.Get("/conversations", cfg.InboxHandler.ListConversations)
			tenant.Get("/conversations/{conversationID}/messages", cfg.InboxHandler.ListMessages)
		}
		if cfg.LeadsHandler != nil {
			tenant.Get("/contacts", cfg.LeadsHandler.ListContacts)
		}
		if cfg.ClinicHandler != nil {
			tenant.Get("/config", cfg.ClinicHandler.GetConfig)
			tenant.Put("/config", cfg.ClinicHandler.UpdateConfig)
		}
		if cfg.ClinicorpHandler != nil {
			tenant.Mount("/clinicorp", cfg.ClinicorpHandler.Routes())
		}
	})

	return r
}
