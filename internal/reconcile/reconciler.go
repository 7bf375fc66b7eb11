// Package reconcile drives orders through payment settlement, abandonment and delivery.
//
// A cycle runs three passes in a fixed order. Each pass re-reads a status-filtered batch from
// the order store, so nothing is carried between cycles and the process can restart at any
// point. Per-order failures are logged and counted; the order stays eligible and is retried
// on the next cycle.
package reconcile

import (
	"context"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/mailer"
	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
	"github.com/imrishuroy/orderflow-reconciler/internal/payment"
	"github.com/imrishuroy/orderflow-reconciler/internal/validation"
)

// Gateway reports the settlement state of a transaction.
type Gateway interface {
	CheckTransaction(ctx context.Context, code string) (*payment.Transaction, error)
}

// Mailer manages subscribers and sends transactional email.
type Mailer interface {
	UpsertSubscriber(ctx context.Context, s mailer.Subscriber) (mailer.UpsertResult, error)
	SendTransactional(ctx context.Context, m mailer.TransactionalEmail) error
}

// URLSigner issues time-limited download links.
type URLSigner interface {
	SignedURL(ctx context.Context, objectName string) (string, error)
}

// Deps are the collaborators of a Reconciler. Events and Metrics are optional.
type Deps struct {
	Store   orders.Store
	Gateway Gateway
	Mailer  Mailer
	Signer  URLSigner
	Events  EventSink
	Metrics MetricsSink
}

// Options tune a Reconciler.
type Options struct {
	AbandonAfter       time.Duration // STARTED orders older than this are abandoned
	Workers            int           // per-pass concurrency, 1 means sequential
	ListID             int           // mailing list new subscribers join
	TemplateID         int           // transactional email template
	FailureLogInterval time.Duration // per-order failure log throttle, 0 disables throttling
}

// Reconciler runs reconciliation cycles.
type Reconciler struct {
	store    orders.Store
	gateway  Gateway
	mailer   Mailer
	signer   URLSigner
	events   EventSink
	metrics  MetricsSink
	opts     Options
	log      logrus.FieldLogger
	failures *failureLog
	validate *validatorv10.Validate
	nowFunc  func() time.Time
	newID    func() string
}

// New returns a Reconciler.
func New(deps Deps, opts Options, log logrus.FieldLogger) *Reconciler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.AbandonAfter <= 0 {
		opts.AbandonAfter = 24 * time.Hour
	}
	if deps.Events == nil {
		deps.Events = nopSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopSink{}
	}
	r := &Reconciler{
		store:    deps.Store,
		gateway:  deps.Gateway,
		mailer:   deps.Mailer,
		signer:   deps.Signer,
		events:   deps.Events,
		metrics:  deps.Metrics,
		opts:     opts,
		log:      log,
		validate: validation.New(),
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
	r.failures = newFailureLog(opts.FailureLogInterval, func() time.Time { return r.nowFunc() })
	return r
}

type cycleKey struct{}

// WithCycleID tags ctx so pass logs and events carry the cycle id.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

func cycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// RunCycle runs settlement, expiry and fulfilment in that order. A pass whose listing fails
// does not stop the passes after it.
func (r *Reconciler) RunCycle(ctx context.Context) CycleReport {
	id := r.newID()
	ctx = WithCycleID(ctx, id)
	started := r.nowFunc()
	log := r.log.WithField("cycle_id", id)
	log.Debug("cycle started")

	rep := CycleReport{ID: id, Started: started}
	for _, pass := range []func(context.Context) PassReport{r.Settle, r.Expire, r.Fulfil} {
		rep.Passes = append(rep.Passes, pass(ctx))
	}
	rep.Duration = r.nowFunc().Sub(started)

	if err := r.metrics.Record(ctx, rep); err != nil {
		log.WithError(err).Warn("record cycle metrics")
	}
	r.failures.prune(2 * r.opts.FailureLogInterval)

	log.WithFields(logrus.Fields{
		"duration_ms":  rep.Duration.Milliseconds(),
		"transitioned": rep.Transitioned(),
		"failed":       rep.Failed(),
	}).Info("cycle finished")
	return rep
}

func (r *Reconciler) passLog(ctx context.Context, pass string) logrus.FieldLogger {
	log := r.log.WithField("pass", pass)
	if id := cycleID(ctx); id != "" {
		log = log.WithField("cycle_id", id)
	}
	return log
}

// emit publishes e. Publishing is best effort and never undoes a transition.
func (r *Reconciler) emit(ctx context.Context, log logrus.FieldLogger, e Event) {
	e.CycleID = cycleID(ctx)
	if e.At.IsZero() {
		e.At = r.nowFunc().UTC()
	}
	if err := r.events.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("event", e.Type).Warn("publish order event")
	}
}
