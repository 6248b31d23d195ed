package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"

	"github.com/Alijeyrad/teleconsult/config"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/pkg/constants"
	"github.com/Alijeyrad/teleconsult/pkg/events"
)

// WorkerModule registers the overdue sweeper and the NATS event workers.
var WorkerModule = fx.Module("workers",
	fx.Invoke(RegisterWorkers),
)

type WorkerParams struct {
	fx.In

	Lc              fx.Lifecycle
	Cfg             *config.Config
	NC              *nats.Conn `optional:"true"`
	ConsultationSvc consultation.Service
}

func RegisterWorkers(p WorkerParams) {
	ctx, cancel := context.WithCancel(context.Background())
	var subs []*nats.Subscription

	p.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go runOverdueSweeper(ctx, p.ConsultationSvc, p.Cfg.Scheduling.SweepInterval())
			if p.NC != nil {
				subs = startEventAuditWorker(p.NC)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			// Drain handled by ProvideNatsClient
			return nil
		},
	})
}

// ---------------------------------------------------------------------------
// overdue_sweeper
// ---------------------------------------------------------------------------

func runOverdueSweeper(ctx context.Context, svc consultation.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	slog.Info("overdue_sweeper: started", "interval", every.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, svc)
		}
	}
}

func sweepOnce(ctx context.Context, svc consultation.Service) int {
	items, err := svc.SweepOverdue(ctx)
	if err != nil {
		slog.WarnContext(ctx, "overdue_sweeper: sweep failed", "err", err)
		return 0
	}
	if len(items) > 0 {
		slog.InfoContext(ctx, "overdue_sweeper: overdue consultations", "count", len(items))
	}
	return len(items)
}

// ---------------------------------------------------------------------------
// event_audit_worker
// ---------------------------------------------------------------------------

// startEventAuditWorker logs every domain event once per deployment through a
// queue group, continuing the publisher's trace.
func startEventAuditWorker(nc *nats.Conn) []*nats.Subscription {
	var subs []*nats.Subscription
	for _, kind := range []string{events.KindConsultation, events.KindPayment, events.KindReceipt} {
		sub, err := nc.QueueSubscribe(events.Wildcard(kind), constants.ServiceName+"-audit", auditEvent)
		if err != nil {
			slog.Error("event_audit_worker: subscribe failed", "kind", kind, "err", err)
			continue
		}
		subs = append(subs, sub)
	}

	slog.Info("event_audit_worker: started")
	return subs
}

func auditEvent(msg *nats.Msg) {
	kind, event, id, ok := events.ParseSubject(msg.Subject)
	if !ok {
		slog.Warn("event_audit_worker: unexpected subject", "subject", msg.Subject)
		return
	}
	ctx := events.ContextFromMsg(context.Background(), msg)
	slog.InfoContext(ctx, "event_audit_worker: event",
		"kind", kind,
		"event", event,
		"id", id,
		"bytes", len(msg.Data),
	)
}
