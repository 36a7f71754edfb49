package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/suppgw/gateway/internal/escalation"
	"github.com/suppgw/gateway/internal/pkg/logs"
)

// FailedLister is the subset of escalation.Store the retry sweep needs.
type FailedLister interface {
	ListFailedDeliveries(ctx context.Context, maxAttempts int) ([]*escalation.Escalation, error)
}

// RetrySweeper periodically re-attempts delivery for RESPONDED escalations
// whose last attempt failed, up to Service.MaxRetries, with a fixed backoff
// between sweeps (the sweep interval itself is the backoff).
type RetrySweeper struct {
	service *Service
	lister  FailedLister

	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewRetrySweeper(service *Service, lister FailedLister, interval time.Duration) *RetrySweeper {
	return &RetrySweeper{service: service, lister: lister, interval: interval}
}

func (r *RetrySweeper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()
}

func (r *RetrySweeper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *RetrySweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *RetrySweeper) tick(ctx context.Context) {
	failed, err := r.lister.ListFailedDeliveries(ctx, r.service.MaxRetries)
	if err != nil {
		logs.CtxError(ctx, "[delivery] list failed deliveries: %v", err)
		return
	}
	for _, e := range failed {
		if err := r.service.Deliver(ctx, e); err != nil {
			logs.CtxWarn(ctx, "[delivery] retry failed for %s: %v", e.ID, err)
		}
	}
}
