package router

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/teleconsult/config"
	"github.com/Alijeyrad/teleconsult/internal/api/http/handler"
	"github.com/Alijeyrad/teleconsult/internal/api/http/middleware"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/internal/service/payment"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

// APIPrefix is where every versioned route is mounted.
const APIPrefix = "/api/v1"

// WebhookPath is the gateway callback; it carries no actor header.
const WebhookPath = APIPrefix + "/payments/webhook"

type Params struct {
	fx.In

	Cfg             *config.Config
	DB              *sql.DB       `optional:"true"`
	Redis           *redis.Client `optional:"true"`
	ConsultationSvc consultation.Service
	PaymentSvc      payment.Service
}

type Router struct {
	p Params
}

func NewRouter(p Params) *Router {
	return &Router{p: p}
}

func (r *Router) Register(app *fiber.App) {
	r.registerSystemRoutes(app)

	actorRequired := middleware.RequireActor()

	consultationH := handler.NewConsultationHandler(r.p.ConsultationSvc)
	paymentH := handler.NewPaymentHandler(r.p.PaymentSvc)

	api := app.Group(APIPrefix)

	r.registerPaymentRoutes(api, paymentH, actorRequired)
	r.registerConsultationRoutes(api, consultationH, paymentH, actorRequired)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool { return r.ready(c.Context()) },
	}))
	app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	if r.p.Cfg.Observability.Enabled && r.p.Cfg.Observability.Metrics.Enabled {
		path := r.p.Cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}
}

// ready reports whether the database and Redis answer a ping.
func (r *Router) ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if r.p.DB != nil {
		if err := r.p.DB.PingContext(ctx); err != nil {
			return false
		}
	}
	if r.p.Redis != nil {
		if err := r.p.Redis.Ping(ctx).Err(); err != nil {
			return false
		}
	}
	return true
}
