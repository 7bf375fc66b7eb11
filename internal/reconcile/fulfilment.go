package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/mailer"
	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
	"github.com/imrishuroy/orderflow-reconciler/internal/validation"
)

// Fulfilment steps, in pipeline order.
const (
	StepResolveProduct   = "resolve_product"
	StepValidate         = "validate"
	StepUpsertSubscriber = "upsert_subscriber"
	StepSignURL          = "sign_url"
	StepSendEmail        = "send_email"
	StepConfirmDelivery  = "confirm_delivery"
)

var fulfilmentSteps = []string{
	StepResolveProduct, StepValidate, StepUpsertSubscriber,
	StepSignURL, StepSendEmail, StepConfirmDelivery,
}

// StepError is returned by Deliver when a pipeline step fails. Steps after it did not run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Fulfil delivers every ACCEPTED order whose product has not been delivered yet.
func (r *Reconciler) Fulfil(ctx context.Context) PassReport {
	rep := PassReport{Pass: PassFulfilment}
	log := r.passLog(ctx, PassFulfilment)

	batch, err := r.store.List(ctx, orders.Filter{
		TransactionStatus:  orders.TransactionPtr(orders.TransactionAccepted),
		ProductIsDelivered: orders.BoolPtr(false),
		ExpandProduct:      true,
	})
	if err != nil {
		rep.Error = err.Error()
		log.WithFields(logrus.Fields(remote.Fields(err))).Error("list undelivered orders")
		return rep
	}
	if len(batch) == 0 {
		log.Info("no order to deliver")
		return rep
	}

	r.forEach(ctx, batch, &rep, func(ctx context.Context, o orders.Order) outcome {
		olog := log.WithField("order_code", o.Code)
		if _, err := r.Deliver(ctx, olog, o); err != nil {
			step := StepResolveProduct
			var se *StepError
			if errors.As(err, &se) {
				step = se.Step
			}
			r.failures.record(olog.WithField("step", step), failureKey(PassFulfilment, o.Code, step), "deliver order", err)
			return outcomeFailed
		}
		keys := make([]string, 0, len(fulfilmentSteps))
		for _, s := range fulfilmentSteps {
			keys = append(keys, failureKey(PassFulfilment, o.Code, s))
		}
		r.failures.forget(keys...)
		return outcomeTransitioned
	})
	log.WithFields(rep.fields()).Info("fulfilment pass finished")
	return rep
}

// Deliver runs the fulfilment pipeline for one order: resolve the product, register the
// subscriber, sign the download link, send the email and only then mark the order delivered.
// On failure the order is left undelivered and a *StepError names the step.
func (r *Reconciler) Deliver(ctx context.Context, log logrus.FieldLogger, o orders.Order) (*orders.Order, error) {
	product, err := r.store.GetProduct(ctx, o.ProductID)
	if err != nil {
		return nil, &StepError{Step: StepResolveProduct, Err: err}
	}

	d := validation.Delivery{
		OrderCode:   o.Code,
		Email:       o.Email,
		ProductName: product.Name,
		ObjectName:  product.ObjectName,
	}
	if err := r.validate.Struct(d); err != nil {
		return nil, &StepError{Step: StepValidate, Err: remote.DataError("reconcile", "validate_delivery",
			fmt.Sprintf("%v", validation.Fields(err)), err)}
	}

	res, err := r.mailer.UpsertSubscriber(ctx, mailer.Subscriber{
		Email:  o.Email,
		Name:   o.CustomerName(),
		Status: mailer.SubscriberEnabled,
		Lists:  []int{r.opts.ListID},
	})
	if err != nil {
		return nil, &StepError{Step: StepUpsertSubscriber, Err: err}
	}
	log.WithField("subscriber", res.String()).Debug("subscriber ready")

	link, err := r.signer.SignedURL(ctx, product.ObjectName)
	if err != nil {
		return nil, &StepError{Step: StepSignURL, Err: err}
	}

	err = r.mailer.SendTransactional(ctx, mailer.TransactionalEmail{
		SubscriberEmail: o.Email,
		TemplateID:      r.opts.TemplateID,
		Data: map[string]interface{}{
			"order_code":   "#" + o.Code,
			"order_date":   DisplayDate(o.DateCreated),
			"product_name": product.Name,
			"file_link":    link,
		},
		ContentType: "html",
	})
	if err != nil {
		return nil, &StepError{Step: StepSendEmail, Err: err}
	}
	log.Info("delivery email sent")

	delivered, err := r.store.UpdateOrder(ctx, o.ID, orders.Patch{
		ProductIsDelivered: orders.BoolPtr(true),
		DateDelivered:      orders.TimePtr(r.nowFunc().UTC()),
	})
	if err != nil {
		// the email went out; the order stays undelivered and is mailed again next cycle
		return nil, &StepError{Step: StepConfirmDelivery, Err: err}
	}
	log.Info("order delivered")

	r.emit(ctx, log, Event{
		Type:              EventDelivered,
		OrderID:           o.ID,
		OrderCode:         o.Code,
		Status:            delivered.Status,
		TransactionStatus: delivered.TransactionStatus,
	})
	return delivered, nil
}
