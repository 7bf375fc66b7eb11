package reconcile

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
	"github.com/imrishuroy/orderflow-reconciler/internal/payment"
	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

type settlement struct {
	status      orders.OrderStatus
	transaction orders.TransactionStatus
}

// settlementTarget maps a settled transaction onto the order state it settles to.
func settlementTarget(tx *payment.Transaction) settlement {
	if tx.Status == payment.StatusAccepted {
		return settlement{orders.StatusCompleted, orders.TransactionAccepted}
	}
	return settlement{orders.StatusFailed, orders.TransactionRefused}
}

// Settle checks every STARTED/PENDING order against the payment gateway and records the
// outcome of those the gateway has settled.
func (r *Reconciler) Settle(ctx context.Context) PassReport {
	rep := PassReport{Pass: PassSettlement}
	log := r.passLog(ctx, PassSettlement)

	batch, err := r.store.List(ctx, orders.Filter{
		Status:            orders.StatusPtr(orders.StatusStarted),
		TransactionStatus: orders.TransactionPtr(orders.TransactionPending),
	})
	if err != nil {
		rep.Error = err.Error()
		log.WithFields(logrus.Fields(remote.Fields(err))).Error("list pending orders")
		return rep
	}
	if len(batch) == 0 {
		log.Info("no transaction to monitor")
		return rep
	}

	r.forEach(ctx, batch, &rep, func(ctx context.Context, o orders.Order) outcome {
		return r.settleOrder(ctx, log.WithField("order_code", o.Code), o)
	})
	log.WithFields(rep.fields()).Info("settlement pass finished")
	return rep
}

func (r *Reconciler) settleOrder(ctx context.Context, log logrus.FieldLogger, o orders.Order) outcome {
	checkKey := failureKey(PassSettlement, o.Code, "check_transaction")
	updateKey := failureKey(PassSettlement, o.Code, "update_order")

	tx, err := r.gateway.CheckTransaction(ctx, o.Code)
	if err != nil {
		r.failures.record(log, checkKey, "check transaction", err)
		return outcomeFailed
	}
	log.WithField("gateway_status", tx.Status).Info("current transaction status")

	if !tx.Settled() {
		r.failures.forget(checkKey)
		return outcomeUnchanged
	}
	target := settlementTarget(tx)

	_, err = r.store.UpdateOrder(ctx, o.ID, orders.Patch{
		Status:            orders.StatusPtr(target.status),
		TransactionStatus: orders.TransactionPtr(target.transaction),
	})
	if err != nil {
		// still PENDING in the store, so the next cycle asks the gateway again
		r.failures.record(log, updateKey, "update settled order", err)
		return outcomeFailed
	}
	r.failures.forget(checkKey, updateKey)
	log.WithFields(logrus.Fields{
		"status":             target.status,
		"transaction_status": target.transaction,
	}).Info("order updated")

	err = r.store.CreateTransactionLog(ctx, orders.TransactionLog{
		OrderID:   o.ID,
		Status:    target.transaction,
		CreatedAt: r.nowFunc().UTC(),
	})
	if err != nil {
		// the order has left PENDING and will not be revisited; this entry is lost
		log.WithFields(logrus.Fields(remote.Fields(err))).Error("create transaction log")
	}

	r.emit(ctx, log, Event{
		Type:              EventSettled,
		OrderID:           o.ID,
		OrderCode:         o.Code,
		Status:            target.status,
		TransactionStatus: target.transaction,
	})
	return outcomeTransitioned
}
