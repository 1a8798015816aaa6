// Package reconcile runs the periodic job that expires contracts past their end time.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer moves overdue contracts to expired.
type Expirer interface {
	ReconcileExpired(ctx context.Context, now time.Time) (int, error)
}

// Reconciler calls Expirer on a fixed interval.
type Reconciler struct {
	exp      Expirer
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// New constructs a Reconciler. A nil log discards output.
func New(exp Expirer, interval time.Duration, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		exp:      exp,
		interval: interval,
		log:      log.With(zap.String("component", "reconcile")),
		now:      time.Now,
	}
}

// RunOnce performs a single pass.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	n, err := r.exp.ReconcileExpired(ctx, r.now().UTC())
	if err != nil {
		r.log.Warn("reconcile pass failed", zap.Int("expired", n), zap.Error(err))
		return n, err
	}
	if n > 0 {
		r.log.Info("contracts expired", zap.Int("count", n))
	}
	return n, nil
}

// Run performs a pass immediately and then once per interval until ctx is done.
// Pass errors are logged and do not stop the loop.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()

	_, _ = r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}
