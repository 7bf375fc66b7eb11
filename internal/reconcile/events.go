package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
)

// Event types published after a confirmed transition.
const (
	EventSettled   = "order.settled"
	EventAbandoned = "order.abandoned"
	EventDelivered = "order.delivered"
)

// Event describes one confirmed order transition.
type Event struct {
	Type              string                   `json:"type"`
	CycleID           string                   `json:"cycle_id,omitempty"`
	OrderID           string                   `json:"order_id"`
	OrderCode         string                   `json:"order_code"`
	Status            orders.OrderStatus       `json:"status,omitempty"`
	TransactionStatus orders.TransactionStatus `json:"transaction_status,omitempty"`
	At                time.Time                `json:"at"`
}

// EventSink receives order events.
type EventSink interface {
	Publish(ctx context.Context, e Event) error
}

// MetricsSink receives a report at the end of every cycle.
type MetricsSink interface {
	Record(ctx context.Context, rep CycleReport) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) error { return nil }

func (nopSink) Record(context.Context, CycleReport) error { return nil }

// MessageSender is implemented by the SQS publisher.
type MessageSender interface {
	SendJSON(ctx context.Context, body interface{}, attributes map[string]string) error
}

// QueueSink publishes events as JSON queue messages.
type QueueSink struct {
	Sender MessageSender
}

// Publish sends e with its type and order code as message attributes.
func (q QueueSink) Publish(ctx context.Context, e Event) error {
	return q.Sender.SendJSON(ctx, e, map[string]string{
		"event_type": e.Type,
		"order_code": e.OrderCode,
		"cycle_id":   e.CycleID,
	})
}

// CountPutter is implemented by the CloudWatch metrics writer.
type CountPutter interface {
	PutCounts(ctx context.Context, dims map[string]string, counts map[string]float64) error
}

// MetricsReporter writes per-pass counters, one call per pass with a Pass dimension.
type MetricsReporter struct {
	Putter CountPutter
}

// Record sends the counters of every pass in rep.
func (m MetricsReporter) Record(ctx context.Context, rep CycleReport) error {
	var errs []error
	for _, p := range rep.Passes {
		listFailures := 0.0
		if p.Error != "" {
			listFailures = 1
		}
		err := m.Putter.PutCounts(ctx, map[string]string{"Pass": p.Pass}, map[string]float64{
			"Seen":         float64(p.Seen),
			"Transitioned": float64(p.Transitioned),
			"Unchanged":    float64(p.Unchanged),
			"Failed":       float64(p.Failed),
			"ListFailures": listFailures,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("pass %s: %w", p.Pass, err))
		}
	}
	return errors.Join(errs...)
}
