// Package engine implements the lending ledger core: a single-writer state
// machine over the ledger store. All mutating operations are serialized
// through one command loop, follow checks → state-update → external-transfer
// ordering, and either complete fully or abort fully.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LoanLedger/internal/credit"
	"LoanLedger/internal/event"
	"LoanLedger/internal/ledger"
	"LoanLedger/internal/observability"
	"LoanLedger/internal/transfer"
)

// Collateral ratio bounds in basis points.
const (
	MinCollateralRatioBps = 5_000
	MaxCollateralRatioBps = 9_500
)

// Config carries the immutable pool parameters fixed at construction. There
// are no runtime admin mutators; changing a parameter means deploying a new
// pool.
type Config struct {
	// Owner is the privileged identity that constructed the pool.
	Owner uuid.UUID

	// CollateralRatioBps is both the borrow limit and the liquidation
	// threshold, in basis points. Valid range [5000, 9500].
	CollateralRatioBps int64

	// FeeRecipient receives the protocol fee charged on loan closure.
	FeeRecipient uuid.UUID

	// Schedule fixes the quarterly interest and fee rates.
	Schedule credit.Schedule
}

// Validate checks the construction parameters.
func (c Config) Validate() error {
	if c.CollateralRatioBps < MinCollateralRatioBps || c.CollateralRatioBps > MaxCollateralRatioBps {
		return fmt.Errorf("collateral ratio %d bp outside [%d, %d]",
			c.CollateralRatioBps, MinCollateralRatioBps, MaxCollateralRatioBps)
	}
	if c.FeeRecipient == uuid.Nil {
		return fmt.Errorf("fee recipient must be set")
	}
	return nil
}

// Engine is the single-threaded ledger processor. External goroutines submit
// work through the command channel; only the Run loop touches the store.
//
// Applied notifications fan out on two channels: the persist channel uses
// blocking sends (no notification is lost), the publish channel uses
// non-blocking sends with drop (consumers can re-read the audit log).
type Engine struct {
	cfg   Config
	store *ledger.Store

	base       transfer.Mover // lendable asset
	collateral transfer.Mover // collateral asset

	clock    func() time.Time
	sequence int64

	cmdChan     chan request
	persistChan chan<- *event.Notification
	publishChan chan<- *event.Notification

	// opCtx marks transfer invocations so a Mover that calls back into the
	// engine is rejected instead of deadlocking the loop.
	opCtx context.Context

	metrics *observability.Metrics
	log     zerolog.Logger
}

type request struct {
	run   func(opCtx context.Context, now time.Time) (*event.Notification, error)
	reply chan error
}

type engineCtxKey struct{}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock overrides the time source. Time is read once per operation.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func New(
	cfg Config,
	base, collateral transfer.Mover,
	persistChan, publishChan chan<- *event.Notification,
	opts ...Option,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		store:       ledger.NewStore(),
		base:        base,
		collateral:  collateral,
		clock:       time.Now,
		cmdChan:     make(chan request),
		persistChan: persistChan,
		publishChan: publishChan,
		log:         zerolog.Nop(),
	}
	e.opCtx = context.WithValue(context.Background(), engineCtxKey{}, e)

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run processes commands until the context is cancelled. Exactly one Run
// loop may be active per engine.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-e.cmdChan:
			req.reply <- e.handle(req)
		}
	}
}

func (e *Engine) handle(req request) error {
	start := time.Now()
	now := e.clock() // read once; never re-sampled mid-operation

	notif, err := req.run(e.opCtx, now)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OpsRejected.Inc()
		}
		return err
	}
	if notif == nil {
		return nil // read-only command
	}

	e.sequence++
	notif.Sequence = e.sequence
	e.emit(notif)

	if e.metrics != nil {
		op := notif.Op.String()
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.LedgerSequence.Set(float64(e.sequence))
		e.metrics.TotalSupplied.Set(float64(e.store.Pool().TotalSupplied))
		e.metrics.ActiveLoans.Set(float64(e.store.ActiveLoans()))
		e.metrics.InterestCollected.Set(float64(e.store.Pool().InterestCollected))
		e.metrics.FeesPaid.Set(float64(e.store.Pool().FeesPaid))
		if notif.Op == event.OpLiquidate {
			e.metrics.LiquidationsExecuted.Inc()
		}
	}
	return nil
}

func (e *Engine) emit(notif *event.Notification) {
	// Audit log: blocking send. The engine stalls until the persistence
	// worker drains, so no record is ever lost.
	if e.persistChan != nil {
		select {
		case e.persistChan <- notif:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- notif
		}
	}

	// Outbound publishing: non-blocking with drop. Consumers that fall
	// behind can re-read the audit log.
	if e.publishChan != nil {
		select {
		case e.publishChan <- notif:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}

	e.log.Info().
		Int64("sequence", notif.Sequence).
		Str("op", notif.Op.String()).
		Str("account", notif.Account.String()).
		Int64("amount", notif.Amount).
		Msg("ledger operation applied")
}

// do submits a command and waits for the loop to execute it. A Mover that
// calls back into the engine mid-operation carries the engine marker in its
// context and is rejected here; the single-writer loop can never process a
// nested command.
func (e *Engine) do(ctx context.Context, run func(opCtx context.Context, now time.Time) (*event.Notification, error)) error {
	if ctx.Value(engineCtxKey{}) == e {
		return ledger.ErrReentrantCall
	}

	req := request{run: run, reply: make(chan error, 1)}

	select {
	case e.cmdChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// read runs a side-effect-free query on the loop. Results are captured by
// the closure.
func (e *Engine) read(ctx context.Context, run func(now time.Time)) error {
	return e.do(ctx, func(_ context.Context, now time.Time) (*event.Notification, error) {
		run(now)
		return nil, nil
	})
}

// Sequence returns the last assigned notification sequence.
func (e *Engine) Sequence(ctx context.Context) (int64, error) {
	var seq int64
	err := e.read(ctx, func(time.Time) { seq = e.sequence })
	return seq, err
}
