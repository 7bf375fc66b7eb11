package reconcile

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

// Expire abandons STARTED orders created before now minus the abandonment threshold.
// The gateway is not consulted and transaction_status is left as it is.
func (r *Reconciler) Expire(ctx context.Context) PassReport {
	rep := PassReport{Pass: PassExpiry}
	log := r.passLog(ctx, PassExpiry)

	cutoff := r.nowFunc().UTC().Add(-r.opts.AbandonAfter)
	batch, err := r.store.List(ctx, orders.Filter{
		Status:        orders.StatusPtr(orders.StatusStarted),
		CreatedBefore: &cutoff,
	})
	if err != nil {
		rep.Error = err.Error()
		log.WithFields(logrus.Fields(remote.Fields(err))).Error("list abandoned orders")
		return rep
	}
	if len(batch) == 0 {
		log.WithField("cutoff", cutoff).Info("no abandoned order to monitor")
		return rep
	}

	r.forEach(ctx, batch, &rep, func(ctx context.Context, o orders.Order) outcome {
		return r.expireOrder(ctx, log.WithField("order_code", o.Code), o)
	})
	log.WithFields(rep.fields()).Info("expiry pass finished")
	return rep
}

func (r *Reconciler) expireOrder(ctx context.Context, log logrus.FieldLogger, o orders.Order) outcome {
	key := failureKey(PassExpiry, o.Code, "update_order")
	_, err := r.store.UpdateOrder(ctx, o.ID, orders.Patch{
		Status: orders.StatusPtr(orders.StatusAbandoned),
	})
	if err != nil {
		r.failures.record(log, key, "abandon order", err)
		return outcomeFailed
	}
	r.failures.forget(key)
	log.Info("order abandoned")

	r.emit(ctx, log, Event{
		Type:      EventAbandoned,
		OrderID:   o.ID,
		OrderCode: o.Code,
		Status:    orders.StatusAbandoned,
	})
	return outcomeTransitioned
}
