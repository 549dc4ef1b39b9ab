package reconcile

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
)

const defaultMaxAttempts = 3

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Guard          Guard
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// MaxAttempts bounds compare-and-set retries after a concurrent update.
	MaxAttempts int
}

// Engine applies payment events.
type Engine struct {
	payments    payment.Repository
	orders      OrderRecorder
	guard       Guard
	maxAttempts int

	tracer      trace.Tracer
	transitions metric.Int64Counter

	mu       sync.RWMutex
	adapters map[payment.Channel]Adapter
}

// NewEngine creates an Engine backed by payments that reports outcomes to
// orders.
func NewEngine(payments payment.Repository, orders OrderRecorder, opts Options) (*Engine, error) {
	if opts.Guard == nil {
		opts.Guard = NopGuard{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	const name = "github.com/xenking/storefront/internal/reconcile"
	transitions, err := opts.MeterProvider.Meter(name).Int64Counter("payment.transitions",
		metric.WithDescription("Payment events by channel, source and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create transitions counter")
	}

	return &Engine{
		payments:    payments,
		orders:      orders,
		guard:       opts.Guard,
		maxAttempts: opts.MaxAttempts,
		tracer:      opts.TracerProvider.Tracer(name),
		transitions: transitions,
		adapters:    make(map[payment.Channel]Adapter),
	}, nil
}

// Register makes a channel adapter available for callback and poll
// dispatch.
func (e *Engine) Register(a Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adapters[a.Channel()] = a
}

func (e *Engine) adapter(ch payment.Channel) (Adapter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.adapters[ch]
	if !ok {
		return nil, errors.Errorf("no adapter registered for channel %q", ch)
	}
	return a, nil
}

// Apply moves the record identified by (ev.Channel, ev.ExternalID) to
// ev.Status following payment.Decide, then mirrors the outcome onto the
// linked order. A stale event is not an error; check Result.Transition.
func (e *Engine) Apply(ctx context.Context, ev Event) (_ *Result, rerr error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.Apply", trace.WithAttributes(
		attribute.String("payment.channel", string(ev.Channel)),
		attribute.String("payment.external_id", ev.ExternalID),
		attribute.String("payment.status", string(ev.Status)),
		attribute.String("event.source", ev.Source),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	lg := zctx.From(ctx).With(
		zap.String("channel", string(ev.Channel)),
		zap.String("external_id", ev.ExternalID),
		zap.String("source", ev.Source),
	)

	rec, err := e.payments.GetByExternalID(ctx, ev.Channel, ev.ExternalID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}

	if ev.Key != "" {
		first, err := e.guard.Claim(ctx, ev.Key)
		switch {
		case err != nil:
			lg.Warn("Delivery guard unavailable", zap.Error(err))
		case !first:
			lg.Debug("Duplicate delivery", zap.String("key", ev.Key))
			e.count(ctx, ev, payment.TransitionSame)
			return &Result{Record: rec, Transition: payment.TransitionSame}, nil
		}
	}

	res, err := e.transition(ctx, rec, ev)
	if err != nil {
		if ev.Key != "" {
			if relErr := e.guard.Release(ctx, ev.Key); relErr != nil {
				lg.Warn("Release delivery key", zap.Error(relErr))
			}
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.transition", res.Transition.String()))
	e.count(ctx, ev, res.Transition)

	switch res.Transition {
	case payment.TransitionApply:
		lg.Info("Payment status changed",
			zap.String("status", string(res.Record.Status)),
			zap.String("order_id", res.Record.OrderID),
		)
		e.recordOutcome(ctx, res.Record)
	case payment.TransitionStale:
		lg.Info("Stale payment event ignored",
			zap.String("current", string(res.Record.Status)),
			zap.String("incoming", string(ev.Status)),
		)
	}
	return res, nil
}

func (e *Engine) transition(ctx context.Context, rec *payment.Record, ev Event) (*Result, error) {
	for attempt := 1; ; attempt++ {
		var detail payment.Detail
		if ev.Refresh != nil {
			detail = ev.Refresh(rec.Detail)
		}

		switch payment.Decide(rec.Status, ev.Status) {
		case payment.TransitionStale:
			return &Result{Record: rec, Transition: payment.TransitionStale}, nil
		case payment.TransitionSame:
			if detail == nil {
				return &Result{Record: rec, Transition: payment.TransitionSame}, nil
			}
			updated, err := e.payments.UpdateDetail(ctx, rec.Channel, rec.ExternalID, detail)
			if err != nil {
				return nil, errors.Wrap(err, "update payment detail")
			}
			return &Result{Record: updated, Transition: payment.TransitionSame}, nil
		}

		updated, err := e.payments.CompareAndSetStatus(ctx, rec.Channel, rec.ExternalID, rec.Status, ev.Status, detail)
		if err == nil {
			return &Result{Record: updated, Transition: payment.TransitionApply}, nil
		}
		if !errors.Is(err, payment.ErrStatusChanged) || attempt >= e.maxAttempts {
			return nil, errors.Wrap(err, "update payment status")
		}

		// Lost a race with a concurrent update: reload and decide again.
		rec, err = e.payments.GetByExternalID(ctx, ev.Channel, ev.ExternalID)
		if err != nil {
			return nil, errors.Wrap(err, "reload payment")
		}
	}
}

// RecordCreated mirrors a freshly persisted record onto its linked order,
// so the order carries the payment reference before any callback arrives.
// Failures are logged, not returned: the payment already exists.
func (e *Engine) RecordCreated(ctx context.Context, rec *payment.Record) {
	e.recordOutcome(ctx, rec)
}

func (e *Engine) recordOutcome(ctx context.Context, rec *payment.Record) {
	if rec.OrderID == "" {
		return
	}
	if _, err := e.orders.RecordPaymentOutcome(ctx, rec.OrderID, rec.Status, rec.ExternalID); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return
		}
		zctx.From(ctx).Error("Record payment outcome",
			zap.String("order_id", rec.OrderID),
			zap.String("external_id", rec.ExternalID),
			zap.Error(err),
		)
	}
}

func (e *Engine) count(ctx context.Context, ev Event, t payment.Transition) {
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", string(ev.Channel)),
		attribute.String("source", ev.Source),
		attribute.String("outcome", t.String()),
	))
}

// HandleCallback authenticates and decodes a provider callback, then
// applies it. Callers must pass the body exactly as received.
func (e *Engine) HandleCallback(ctx context.Context, ch payment.Channel, body []byte, signature string) (*Result, error) {
	a, err := e.adapter(ch)
	if err != nil {
		return nil, err
	}
	decoder, ok := a.(CallbackDecoder)
	if !ok {
		return nil, errors.Errorf("channel %q does not accept callbacks", ch)
	}
	verifier, ok := a.(CallbackVerifier)
	if !ok {
		return nil, errors.Errorf("channel %q has no callback verifier", ch)
	}

	if err := verifier.VerifyCallback(body, signature); err != nil {
		return nil, err
	}
	n, err := decoder.DecodeCallback(body)
	if err != nil {
		return nil, err
	}

	return e.Apply(ctx, Event{
		Channel:    ch,
		ExternalID: n.ExternalID,
		Status:     n.Status,
		Refresh:    n.Refresh,
		Key:        DeliveryKey(ch, body),
		Source:     SourceCallback,
	})
}

// Verify asks the channel for the current state of a payment and applies
// it. A completed record is returned as is without contacting the
// provider.
func (e *Engine) Verify(ctx context.Context, ch payment.Channel, externalID string) (*Result, error) {
	rec, err := e.payments.GetByExternalID(ctx, ch, externalID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	if rec.Status == payment.StatusCompleted {
		return &Result{Record: rec, Transition: payment.TransitionSame}, nil
	}

	a, err := e.adapter(ch)
	if err != nil {
		return nil, err
	}
	poller, ok := a.(StatusPoller)
	if !ok {
		return nil, errors.Errorf("channel %q cannot be polled", ch)
	}

	n, err := poller.PollStatus(ctx, rec)
	if err != nil {
		return nil, err
	}
	status := n.Status
	if status == "" {
		status = rec.Status
	}

	return e.Apply(ctx, Event{
		Channel:    ch,
		ExternalID: externalID,
		Status:     status,
		Refresh:    n.Refresh,
		Source:     SourcePoll,
	})
}
