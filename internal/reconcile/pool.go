package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
)

// forEach runs fn for every order with at most r.opts.Workers in flight and tallies outcomes
// into rep. Orders are independent: fn never fails the group, so one order cannot cancel
// the rest of the batch.
func (r *Reconciler) forEach(ctx context.Context, batch []orders.Order, rep *PassReport, fn func(context.Context, orders.Order) outcome) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	rep.Seen += len(batch)
	for _, o := range batch {
		g.Go(func() error {
			res := fn(gctx, o)
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case outcomeTransitioned:
				rep.Transitioned++
			case outcomeFailed:
				rep.Failed++
			default:
				rep.Unchanged++
			}
			return nil
		})
	}
	_ = g.Wait()
}
