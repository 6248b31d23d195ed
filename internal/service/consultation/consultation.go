package consultation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/repo"
	"github.com/Alijeyrad/teleconsult/pkg/events"
	"github.com/Alijeyrad/teleconsult/pkg/idgen"
	"github.com/Alijeyrad/teleconsult/pkg/observability"
	redispkg "github.com/Alijeyrad/teleconsult/pkg/redis"
)

var tracer = otel.Tracer("github.com/Alijeyrad/teleconsult/internal/service/consultation")

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type ScheduleRequest struct {
	PatientID            string          `json:"patient_id" validate:"required,max=64"`
	DoctorID             string          `json:"doctor_id" validate:"required,max=64"`
	ClinicID             *string         `json:"clinic_id" validate:"omitempty,max=64"`
	ScheduledDate        string          `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	ScheduledTime        string          `json:"scheduled_time" validate:"required"`
	DurationMinutes      int             `json:"duration_minutes" validate:"omitempty,min=5,max=480"`
	Fee                  decimal.Decimal `json:"consultation_fee"`
	ChiefComplaint       string          `json:"chief_complaint" validate:"max=2000"`
	Symptoms             string          `json:"symptoms" validate:"max=4000"`
	PatientNotes         string          `json:"patient_notes" validate:"max=4000"`
	IsFollowUp           bool            `json:"is_follow_up"`
	ParentConsultationID *string         `json:"parent_consultation_id" validate:"required_if=IsFollowUp true"`
	FollowUpRequired     bool            `json:"follow_up_required"`
	FollowUpDate         *string         `json:"follow_up_date" validate:"omitempty,datetime=2006-01-02"`
}

type RescheduleRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type ApplyRescheduleRequest struct {
	NewDate string `json:"new_date" validate:"required,datetime=2006-01-02"`
	NewTime string `json:"new_time" validate:"required"`
	Reason  string `json:"reason" validate:"max=2000"`
}

// View is a consultation together with its time-derived flags.
type View struct {
	Consultation *model.Consultation `json:"consultation"`
	Timing       model.Timing        `json:"timing"`
}

// OverdueItem is reported by SweepOverdue for every open consultation past
// its slot. The stored status is left alone.
type OverdueItem struct {
	ConsultationID string       `json:"consultation_id"`
	Status         model.Status `json:"status"`
	ScheduledAt    time.Time    `json:"scheduled_datetime"`
	HoursOverdue   float64      `json:"hours_overdue"`
}

// CompleteOverdueRequest selects in-progress consultations left open past
// their slot.
type CompleteOverdueRequest struct {
	// HoursOverdue is how long past the scheduled start a consultation must
	// be before it is completed.
	HoursOverdue float64
	// DryRun reports the candidates without completing them.
	DryRun bool
	Actor  string
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	Schedule(ctx context.Context, req ScheduleRequest) (*model.Consultation, error)
	Get(ctx context.Context, id string) (*View, error)

	CheckIn(ctx context.Context, id, actor string) (*model.Consultation, error)
	MarkReady(ctx context.Context, id, actor string) (*model.Consultation, error)
	Start(ctx context.Context, id, actor string) (*model.Consultation, error)
	Complete(ctx context.Context, id, actor string) (*model.Consultation, error)
	Cancel(ctx context.Context, id, actor, reason string) (*model.Consultation, error)
	MarkNoShow(ctx context.Context, id, actor string) (*model.Consultation, error)

	RequestReschedule(ctx context.Context, id, actor string, req RescheduleRequest) (*model.Consultation, error)
	ApproveReschedule(ctx context.Context, id, actor string) (*model.Consultation, error)
	ApplyReschedule(ctx context.Context, id, actor string, req ApplyRescheduleRequest) (*model.Consultation, *model.RescheduleRecord, error)
	ListReschedules(ctx context.Context, id string) ([]*model.RescheduleRecord, error)

	// ApplyPayment mirrors a gateway payment state onto the consultation
	// under the same lock as lifecycle operations.
	ApplyPayment(ctx context.Context, id string, state model.PaymentState, method string) (*model.Consultation, bool, error)

	// Guard runs fn with the stored consultation while holding its lock, so
	// no lifecycle operation interleaves. Nothing is written back.
	Guard(ctx context.Context, id string, fn func(c *model.Consultation) error) error

	SweepOverdue(ctx context.Context) ([]OverdueItem, error)
	// CompleteOverdue completes in-progress consultations that ran past the
	// threshold and returns the ones it completed, or would complete.
	CompleteOverdue(ctx context.Context, req CompleteOverdueRequest) ([]OverdueItem, error)
}

// Locker serializes mutations of a single consultation.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

type Options struct {
	RequirePaymentBeforeStart bool
	DefaultDurationMinutes    int
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type consultationService struct {
	store    repo.Store
	sm       *model.StateMachine
	locker   Locker
	pub      events.Publisher
	metrics  *observability.Metrics
	validate *validator.Validate
	opts     Options
	log      *slog.Logger
}

func New(
	store repo.Store,
	sm *model.StateMachine,
	locker Locker,
	pub events.Publisher,
	metrics *observability.Metrics,
	opts Options,
) Service {
	if pub == nil {
		pub = events.Noop()
	}
	if opts.DefaultDurationMinutes <= 0 {
		opts.DefaultDurationMinutes = model.DefaultDurationMinutes
	}
	return &consultationService{
		store:    store,
		sm:       sm,
		locker:   locker,
		pub:      pub,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		log:      slog.Default().With("component", "consultation"),
	}
}

func (s *consultationService) Schedule(ctx context.Context, req ScheduleRequest) (*model.Consultation, error) {
	ctx, span := tracer.Start(ctx, "consultation.schedule")
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	if req.Fee.IsNegative() {
		return nil, fmt.Errorf("%w: consultation_fee must not be negative", model.ErrValidation)
	}

	date, err := model.ParseDate(req.ScheduledDate)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduled_date: %v", model.ErrValidation, err)
	}
	at, err := model.ParseTimeOfDay(req.ScheduledTime)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduled_time: %v", model.ErrValidation, err)
	}

	c := model.NewConsultation(req.PatientID, req.DoctorID, date, at, req.Fee)
	c.ClinicID = req.ClinicID
	c.DurationMinutes = s.opts.DefaultDurationMinutes
	if req.DurationMinutes > 0 {
		c.DurationMinutes = req.DurationMinutes
	}
	c.ChiefComplaint = req.ChiefComplaint
	c.Symptoms = req.Symptoms
	c.PatientNotes = req.PatientNotes
	c.IsFollowUp = req.IsFollowUp
	c.ParentConsultationID = req.ParentConsultationID
	c.FollowUpRequired = req.FollowUpRequired
	if req.FollowUpDate != nil {
		d, err := model.ParseDate(*req.FollowUpDate)
		if err != nil {
			return nil, fmt.Errorf("%w: follow_up_date: %v", model.ErrValidation, err)
		}
		c.FollowUpDate = &d
	}

	now := s.sm.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	err = s.store.WithTx(ctx, func(q repo.Queries) error {
		if c.ParentConsultationID != nil {
			ok, err := q.ConsultationExists(ctx, *c.ParentConsultationID)
			if err != nil {
				return fmt.Errorf("check parent consultation: %w", err)
			}
			if !ok {
				return ErrParentNotFound
			}
		}

		id, err := q.NextID(ctx, idgen.Consultation)
		if err != nil {
			return fmt.Errorf("next consultation id: %w", err)
		}
		c.ID = id

		if err := q.CreateConsultation(ctx, c); err != nil {
			return fmt.Errorf("create consultation: %w", err)
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("consultation.id", c.ID))
	s.log.InfoContext(ctx, "consultation scheduled",
		"consultation_id", c.ID,
		"doctor_id", c.DoctorID,
		"scheduled_at", c.ScheduledAt(s.sm.Location()),
	)
	s.metrics.Transition(ctx, "schedule", string(c.Status))
	s.publish(ctx, events.ConsultationSubject(events.ConsultationScheduled, c.ID), c)

	return c, nil
}

func (s *consultationService) Get(ctx context.Context, id string) (*View, error) {
	c, err := s.store.GetConsultation(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &View{Consultation: c, Timing: s.sm.Snapshot(c)}, nil
}

func (s *consultationService) CheckIn(ctx context.Context, id, actor string) (*model.Consultation, error) {
	return s.transition(ctx, id, "check_in", events.ConsultationCheckedIn, func(c *model.Consultation) bool {
		return s.sm.CheckIn(c, actor)
	})
}

func (s *consultationService) MarkReady(ctx context.Context, id, actor string) (*model.Consultation, error) {
	return s.transition(ctx, id, "mark_ready", events.ConsultationReady, func(c *model.Consultation) bool {
		return s.sm.MarkReady(c, actor)
	})
}

func (s *consultationService) Start(ctx context.Context, id, actor string) (*model.Consultation, error) {
	return s.mutate(ctx, id, "start", events.ConsultationStarted, func(_ repo.Queries, c *model.Consultation) error {
		if s.opts.RequirePaymentBeforeStart && !c.IsPaid {
			return ErrPaymentRequired
		}
		if !s.sm.Start(c) {
			return invalidTransition("start", c)
		}
		s.log.DebugContext(ctx, "consultation started", "consultation_id", c.ID, "actor", actor)
		return nil
	})
}

func (s *consultationService) Complete(ctx context.Context, id, actor string) (*model.Consultation, error) {
	c, err := s.transition(ctx, id, "complete", events.ConsultationCompleted, func(c *model.Consultation) bool {
		return s.sm.Complete(c)
	})
	if err == nil {
		if d, ok := c.ActualDuration(); ok {
			s.log.InfoContext(ctx, "consultation completed", "consultation_id", id, "actor", actor, "duration_minutes", d)
		}
	}
	return c, err
}

func (s *consultationService) Cancel(ctx context.Context, id, actor, reason string) (*model.Consultation, error) {
	return s.transition(ctx, id, "cancel", events.ConsultationCancelled, func(c *model.Consultation) bool {
		return s.sm.Cancel(c, actor, strings.TrimSpace(reason))
	})
}

func (s *consultationService) MarkNoShow(ctx context.Context, id, actor string) (*model.Consultation, error) {
	return s.transition(ctx, id, "no_show", events.ConsultationNoShow, func(c *model.Consultation) bool {
		return s.sm.MarkNoShow(c, actor)
	})
}

func (s *consultationService) RequestReschedule(ctx context.Context, id, actor string, req RescheduleRequest) (*model.Consultation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return s.mutate(ctx, id, "request_reschedule", events.ConsultationRescheduleRequested, func(_ repo.Queries, c *model.Consultation) error {
		return s.sm.RequestReschedule(c, actor, strings.TrimSpace(req.Reason))
	})
}

func (s *consultationService) ApproveReschedule(ctx context.Context, id, actor string) (*model.Consultation, error) {
	return s.mutate(ctx, id, "approve_reschedule", events.ConsultationRescheduleApproved, func(_ repo.Queries, c *model.Consultation) error {
		return s.sm.ApproveReschedule(c, actor)
	})
}

func (s *consultationService) ApplyReschedule(ctx context.Context, id, actor string, req ApplyRescheduleRequest) (*model.Consultation, *model.RescheduleRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	newDate, err := model.ParseDate(req.NewDate)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: new_date: %v", model.ErrValidation, err)
	}
	newTime, err := model.ParseTimeOfDay(req.NewTime)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: new_time: %v", model.ErrValidation, err)
	}

	var rec *model.RescheduleRecord
	c, err := s.mutate(ctx, id, "apply_reschedule", events.ConsultationRescheduled, func(q repo.Queries, c *model.Consultation) error {
		r, err := s.sm.ApplyReschedule(c, newDate, newTime, strings.TrimSpace(req.Reason))
		if err != nil {
			return err
		}
		if err := q.AppendReschedule(ctx, r); err != nil {
			return fmt.Errorf("append reschedule history: %w", err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.InfoContext(ctx, "consultation rescheduled",
		"consultation_id", id,
		"actor", actor,
		"from", rec.OldDate.String()+" "+rec.OldTime.String(),
		"to", rec.NewDate.String()+" "+rec.NewTime.String(),
	)
	return c, rec, nil
}

func (s *consultationService) ListReschedules(ctx context.Context, id string) ([]*model.RescheduleRecord, error) {
	ok, err := s.store.ConsultationExists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check consultation: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	recs, err := s.store.ListReschedules(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list reschedules: %w", err)
	}
	return recs, nil
}

func (s *consultationService) ApplyPayment(ctx context.Context, id string, state model.PaymentState, method string) (*model.Consultation, bool, error) {
	changed := false
	c, err := s.mutate(ctx, id, "apply_payment", "", func(_ repo.Queries, c *model.Consultation) error {
		changed = model.ApplyPaymentState(c, state, method)
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return c, changed, nil
}

func (s *consultationService) Guard(ctx context.Context, id string, fn func(c *model.Consultation) error) error {
	release, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WarnContext(ctx, "release consultation lock", "consultation_id", id, "err", err)
		}
	}()

	c, err := s.store.GetConsultation(ctx, id)
	if err != nil {
		return notFound(err)
	}
	return fn(c)
}

func (s *consultationService) SweepOverdue(ctx context.Context) ([]OverdueItem, error) {
	ctx, span := tracer.Start(ctx, "consultation.sweep_overdue")
	defer span.End()

	now := s.sm.Now()
	loc := s.sm.Location()

	open, err := s.store.ListOpenConsultations(ctx, model.DateOf(now.In(loc)))
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("list open consultations: %w", err)
	}

	var items []OverdueItem
	for _, c := range open {
		if !c.IsOverdue(now, loc) {
			continue
		}
		item := OverdueItem{
			ConsultationID: c.ID,
			Status:         c.Status,
			ScheduledAt:    c.ScheduledAt(loc),
			HoursOverdue:   c.HoursOverdue(now, loc),
		}
		items = append(items, item)
		s.publish(ctx, events.ConsultationSubject(events.ConsultationOverdue, c.ID), item)
	}

	span.SetAttributes(attribute.Int("consultation.overdue_count", len(items)))
	s.log.InfoContext(ctx, "overdue sweep finished", "open", len(open), "overdue", len(items))
	return items, nil
}

func (s *consultationService) CompleteOverdue(ctx context.Context, req CompleteOverdueRequest) ([]OverdueItem, error) {
	ctx, span := tracer.Start(ctx, "consultation.complete_overdue", trace.WithAttributes(
		attribute.Float64("consultation.hours_overdue", req.HoursOverdue),
		attribute.Bool("consultation.dry_run", req.DryRun),
	))
	defer span.End()

	if req.HoursOverdue < 0 {
		return nil, fmt.Errorf("%w: hours overdue must not be negative", model.ErrValidation)
	}
	if req.Actor == "" {
		req.Actor = "system"
	}

	now := s.sm.Now()
	loc := s.sm.Location()

	open, err := s.store.ListOpenConsultations(ctx, model.DateOf(now.In(loc)))
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("list open consultations: %w", err)
	}

	var items []OverdueItem
	for _, c := range open {
		if c.Status != model.StatusInProgress {
			continue
		}
		hours := c.HoursOverdue(now, loc)
		if hours <= req.HoursOverdue {
			continue
		}
		item := OverdueItem{
			ConsultationID: c.ID,
			Status:         c.Status,
			ScheduledAt:    c.ScheduledAt(loc),
			HoursOverdue:   hours,
		}
		if req.DryRun {
			items = append(items, item)
			continue
		}

		done, err := s.Complete(ctx, c.ID, req.Actor)
		switch {
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrBusy), errors.Is(err, ErrNotFound):
			s.log.InfoContext(ctx, "skipped overdue consultation", "consultation_id", c.ID, "err", err)
			continue
		case err != nil:
			recordError(span, err)
			return items, fmt.Errorf("complete %s: %w", c.ID, err)
		}
		item.Status = done.Status
		items = append(items, item)
	}

	span.SetAttributes(attribute.Int("consultation.completed_count", len(items)))
	s.log.InfoContext(ctx, "overdue completion finished",
		"open", len(open),
		"matched", len(items),
		"dry_run", req.DryRun,
		"hours_overdue", req.HoursOverdue,
	)
	return items, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// errUnchanged aborts a mutation without writing and without failing it.
var errUnchanged = errors.New("unchanged")

func (s *consultationService) transition(ctx context.Context, id, op, event string, guard func(*model.Consultation) bool) (*model.Consultation, error) {
	return s.mutate(ctx, id, op, event, func(_ repo.Queries, c *model.Consultation) error {
		if !guard(c) {
			return invalidTransition(op, c)
		}
		return nil
	})
}

// mutate runs fn against the stored consultation while holding its lock and
// persists the result in one transaction. An empty event publishes nothing.
func (s *consultationService) mutate(
	ctx context.Context,
	id, op, event string,
	fn func(q repo.Queries, c *model.Consultation) error,
) (*model.Consultation, error) {
	ctx, span := tracer.Start(ctx, "consultation."+op, trace.WithAttributes(
		attribute.String("consultation.id", id),
	))
	defer span.End()

	release, err := s.lock(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WarnContext(ctx, "release consultation lock", "consultation_id", id, "err", err)
		}
	}()

	var out *model.Consultation
	unchanged := false
	err = s.store.WithTx(ctx, func(q repo.Queries) error {
		c, err := q.GetConsultation(ctx, id)
		if err != nil {
			return notFound(err)
		}
		out = c

		if err := fn(q, c); err != nil {
			return err
		}

		c.UpdatedAt = s.sm.Now()
		if err := q.UpdateConsultation(ctx, c); err != nil {
			return fmt.Errorf("update consultation: %w", err)
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		unchanged, err = true, nil
	}
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, ErrPaymentRequired) {
			s.metrics.Rejected(ctx, op)
			s.log.InfoContext(ctx, "consultation operation rejected", "consultation_id", id, "op", op, "err", err)
		}
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("consultation.status", string(out.Status)))
	if unchanged {
		return out, nil
	}

	s.metrics.Transition(ctx, op, string(out.Status))
	if event != "" {
		s.publish(ctx, events.ConsultationSubject(event, out.ID), out)
	}
	return out, nil
}

func (s *consultationService) lock(ctx context.Context, id string) (func(context.Context) error, error) {
	if s.locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		if errors.Is(err, redispkg.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("lock consultation %s: %w", id, err)
	}
	return release, nil
}

func (s *consultationService) publish(ctx context.Context, subject string, payload any) {
	if err := s.pub.Publish(ctx, subject, payload); err != nil {
		s.log.WarnContext(ctx, "publish event failed", "subject", subject, "err", err)
	}
}

func invalidTransition(op string, c *model.Consultation) error {
	return fmt.Errorf("%w: cannot %s a consultation in status %s", ErrInvalidTransition, strings.ReplaceAll(op, "_", " "), c.Status)
}

func notFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("get consultation: %w", err)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
