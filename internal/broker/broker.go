package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/callbackd/internal/instrumentation"
	"github.com/teemow/callbackd/internal/logging"
)

// Default lifecycle settings for pending callbacks.
const (
	// DefaultTTL is how long a stored result waits for its consumer
	DefaultTTL = 10 * time.Minute

	// DefaultSweepInterval is how often expired results are swept
	DefaultSweepInterval = 60 * time.Second

	// sweepTimeout bounds one sweep pass against a remote backend
	sweepTimeout = 10 * time.Second
)

// Config configures a Broker.
type Config struct {
	// TTL is the lifetime of a stored result; zero means DefaultTTL
	TTL time.Duration

	// SweepInterval is the period between expiry sweeps; zero means
	// DefaultSweepInterval
	SweepInterval time.Duration

	// Logger receives structured broker logs; nil means slog.Default()
	Logger *slog.Logger

	// Metrics records broker metrics; nil disables recording
	Metrics *instrumentation.Metrics

	// Audit receives callback lifecycle audit events; nil disables auditing
	Audit *instrumentation.AuditLogger
}

// Broker accepts OAuth callback results from the provider redirect and hands
// each one to exactly one consumer poll. Results expire after a TTL; a
// background sweeper drops what no consumer ever collected.
type Broker struct {
	store         Store
	ttl           time.Duration
	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	sweepDone     chan bool
	logger        *slog.Logger
	metrics       *instrumentation.Metrics
	audit         *instrumentation.AuditLogger
}

// New creates a broker on top of the given store and starts its expiry
// sweeper. Call Stop to halt the sweeper; the store's lifecycle stays with
// whoever created it.
func New(store Store, cfg Config) *Broker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		store:         store,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		sweepTicker:   time.NewTicker(sweepInterval),
		sweepDone:     make(chan bool),
		logger:        logging.WithComponent(logger, "broker"),
		metrics:       cfg.Metrics,
		audit:         cfg.Audit,
	}

	// Start sweeper goroutine
	go b.sweepLoop()

	return b
}

// TTL returns the configured result lifetime.
func (b *Broker) TTL() time.Duration {
	return b.ttl
}

// Receive accepts one callback result and stores it for its consumer.
// A repeated redirect for the same state token replaces the pending result
// and restarts its expiry window. Results without a state token or without
// any payload are rejected.
func (b *Broker) Receive(ctx context.Context, res Result) error {
	ctx, span := instrumentation.StartSpan(ctx, "broker.receive")
	defer span.End()

	if err := res.Validate(); err != nil {
		instrumentation.SetSpanError(span, err)
		b.metrics.RecordCallbackReceived(ctx, instrumentation.OutcomeRejected)
		b.audit.LogCallbackEvent(ctx, instrumentation.CallbackEvent{
			Action:    instrumentation.ActionRejected,
			State:     res.State,
			StateHash: logging.AnonymizeState(res.State),
			Error:     err.Error(),
		})
		b.logger.Warn("Rejected callback",
			logging.Operation("broker.receive"),
			logging.StateHash(res.State),
			logging.Err(err),
		)
		return err
	}

	if res.ReceivedAt.IsZero() {
		res.ReceivedAt = time.Now()
	}

	if err := b.store.Put(ctx, res, b.ttl); err != nil {
		instrumentation.SetSpanError(span, err)
		b.logger.Error("Failed to store callback",
			logging.Operation("broker.receive"),
			logging.StateHash(res.State),
			logging.Err(err),
		)
		return err
	}

	outcome := res.Outcome()
	instrumentation.SetSpanSuccess(span)
	b.metrics.RecordCallbackReceivedWithError(ctx, outcome, res.Error)
	b.audit.LogCallbackEvent(ctx, instrumentation.CallbackEvent{
		Action:    instrumentation.ActionReceived,
		State:     res.State,
		StateHash: logging.AnonymizeState(res.State),
		Outcome:   outcome,
	})
	b.logger.Info("Callback received",
		logging.Operation("broker.receive"),
		logging.StateHash(res.State),
		logging.Outcome(outcome),
		slog.String("auth_code", logging.SanitizeToken(res.Code)),
	)

	return nil
}

// Consume atomically retrieves and removes the result for a state token.
// A token that is unknown, expired or already consumed reports found=false;
// callers cannot tell these cases apart, so probing for foreign tokens
// reveals nothing.
func (b *Broker) Consume(ctx context.Context, state string) (Result, bool, error) {
	ctx, span := instrumentation.StartSpan(ctx, "broker.consume")
	defer span.End()

	if state == "" {
		b.metrics.RecordPoll(ctx, instrumentation.PollMiss)
		return Result{}, false, nil
	}

	res, found, err := b.store.Take(ctx, state)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		b.logger.Error("Failed to consume callback",
			logging.Operation("broker.consume"),
			logging.StateHash(state),
			logging.Err(err),
		)
		return Result{}, false, err
	}

	if !found {
		instrumentation.SetSpanSuccess(span)
		b.metrics.RecordPoll(ctx, instrumentation.PollMiss)
		b.logger.Debug("No pending callback",
			logging.Operation("broker.consume"),
			logging.StateHash(state),
		)
		return Result{}, false, nil
	}

	instrumentation.SetSpanSuccess(span)
	b.metrics.RecordPoll(ctx, instrumentation.PollHit)
	b.metrics.RecordCallbackConsumed(ctx, res.Age())
	b.audit.LogCallbackEvent(ctx, instrumentation.CallbackEvent{
		Action:    instrumentation.ActionConsumed,
		State:     state,
		StateHash: logging.AnonymizeState(state),
		Outcome:   res.Outcome(),
	})

	return res, true, nil
}

// ActiveCount returns the number of results currently waiting for a consumer.
func (b *Broker) ActiveCount(ctx context.Context) (int, error) {
	return b.store.Len(ctx)
}

// sweepLoop periodically removes expired results
func (b *Broker) sweepLoop() {
	for {
		select {
		case <-b.sweepTicker.C:
			b.sweep()
		case <-b.sweepDone:
			return
		}
	}
}

// sweep runs one expiry pass and reconciles the active-callbacks gauge
func (b *Broker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	deleted, err := b.store.Prune(ctx)
	if err != nil {
		b.logger.Error("Expiry sweep failed",
			logging.Operation("broker.sweep"),
			logging.Err(err),
		)
		return
	}

	if deleted > 0 {
		b.metrics.RecordCallbacksExpired(ctx, deleted)
		b.audit.LogCallbackEvent(ctx, instrumentation.CallbackEvent{
			Action: instrumentation.ActionExpired,
			Count:  deleted,
		})
		b.logger.Info("Swept expired callbacks",
			logging.Operation("broker.sweep"),
			slog.Int("deleted", deleted),
		)
	}

	if active, err := b.store.Len(ctx); err == nil {
		b.metrics.SetActiveCallbacks(ctx, active)
	}
}

// Stop halts the expiry sweeper. It does not close the underlying store.
func (b *Broker) Stop() {
	if b.sweepTicker != nil {
		b.sweepTicker.Stop()
	}
	if b.sweepDone != nil {
		close(b.sweepDone)
	}
}
