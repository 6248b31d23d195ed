package app

import (
	"go.uber.org/fx"

	"github.com/Alijeyrad/teleconsult/config"
	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/repo"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/internal/service/payment"
	"github.com/Alijeyrad/teleconsult/pkg/events"
	"github.com/Alijeyrad/teleconsult/pkg/observability"
	"github.com/Alijeyrad/teleconsult/pkg/phonepe"
	redispkg "github.com/Alijeyrad/teleconsult/pkg/redis"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvideConsultationService,
		ProvidePaymentService,
	),
)

func ProvideConsultationService(
	store repo.Store,
	sm *model.StateMachine,
	locker *redispkg.Locker,
	pub events.Publisher,
	metrics *observability.Metrics,
	cfg *config.Config,
) consultation.Service {
	return consultation.New(store, sm, locker, pub, metrics, consultation.Options{
		RequirePaymentBeforeStart: cfg.Scheduling.RequirePaymentBeforeStart,
		DefaultDurationMinutes:    cfg.Scheduling.DefaultDuration(),
	})
}

func ProvidePaymentService(
	store repo.Store,
	consultations consultation.Service,
	gw *phonepe.Client,
	dedupe *redispkg.Deduper,
	pub events.Publisher,
	metrics *observability.Metrics,
	cfg *config.Config,
) payment.Service {
	return payment.New(store, consultations, gw, dedupe, pub, metrics, payment.Options{
		CurrencySymbol: cfg.Receipts.Symbol(),
	})
}
