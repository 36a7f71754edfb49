package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/suppgw/gateway/internal/pkg/logs"
	"github.com/suppgw/gateway/internal/pkg/metrics"
)

// Sweeper runs the three background maintenance loops the Escalation Service
// needs: the stale-claim reaper, the auto-closer, and the purger.
type Sweeper struct {
	store *Store

	claimTTL      time.Duration
	autoClose     time.Duration
	retention     time.Duration
	interval      time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(store *Store, claimTTL, autoClose, retention, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		claimTTL:  claimTTL,
		autoClose: autoClose,
		retention: retention,
		interval:  interval,
	}
}

func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		sw.loop(ctx)
	}()
}

func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.wg.Wait()
}

func (sw *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	sw.reapStaleClaims(ctx)
	sw.autoCloseResponded(ctx)
	sw.purgeClosed(ctx)
	sw.reportStatusCounts(ctx)
}

func (sw *Sweeper) reportStatusCounts(ctx context.Context) {
	counts, err := sw.store.CountsByStatus(ctx)
	if err != nil {
		logs.CtxError(ctx, "[escalation] counts by status: %v", err)
		return
	}
	for status, n := range counts {
		metrics.EscalationsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (sw *Sweeper) reapStaleClaims(ctx context.Context) {
	stale, err := sw.store.ListStaleClaims(ctx, time.Now().Add(-sw.claimTTL))
	if err != nil {
		logs.CtxError(ctx, "[escalation] list stale claims: %v", err)
		return
	}
	for _, e := range stale {
		if err := sw.store.ReleaseStaleClaim(ctx, e.ID); err != nil {
			logs.CtxError(ctx, "[escalation] release stale claim %s: %v", e.ID, err)
		}
	}
}

func (sw *Sweeper) autoCloseResponded(ctx context.Context) {
	due, err := sw.store.ListAutoCloseCandidates(ctx, time.Now().Add(-sw.autoClose))
	if err != nil {
		logs.CtxError(ctx, "[escalation] list auto-close candidates: %v", err)
		return
	}
	for _, e := range due {
		if _, err := sw.store.Close_(ctx, e.ID); err != nil {
			logs.CtxError(ctx, "[escalation] auto-close %s: %v", e.ID, err)
		}
	}
}

func (sw *Sweeper) purgeClosed(ctx context.Context) {
	n, err := sw.store.PurgeClosedBefore(ctx, time.Now().Add(-sw.retention))
	if err != nil {
		logs.CtxError(ctx, "[escalation] purge closed: %v", err)
		return
	}
	if n > 0 {
		logs.CtxInfo(ctx, "[escalation] purged %d closed escalations past retention", n)
	}
}
