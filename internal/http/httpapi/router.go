package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"specledger/internal/http/handlers"
	"specledger/internal/metrics"
	"specledger/internal/middleware"
)

// Options configures the router's auth and rate limits.
type Options struct {
	JWTSecret       string
	AdminToken      string
	RateLimitPerMin int
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	// The provider authenticates with the body signature.
	r.Post("/v1/webhooks/payments", app.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Get("/v1/entitlements", app.Entitlements)
		r.Get("/v1/credits/check", app.CreditsCheck)
		r.Post("/v1/credits/consume", app.CreditsConsume)
		r.Post("/v1/credits/refund", app.CreditsRefund)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminToken(opts.AdminToken))
		r.Post("/internal/accounts", app.AccountsCreate)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/credits", app.AdminGrantCredits)
			r.Post("/users/{id}/revoke-pro", app.AdminRevokePro)
			r.Get("/reconciliation", app.AdminReconciliation)
		})
	})

	return r
}
