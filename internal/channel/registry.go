package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gg/gmap"

	"github.com/suppgw/gateway/internal/pkg/logs"
)

var (
	defaultRegistry = NewRegistry()

	Get          = defaultRegistry.Get
	Len          = defaultRegistry.Len
	List         = defaultRegistry.List
	Register     = defaultRegistry.Register
	Unregister   = defaultRegistry.Unregister
	StartAll     = defaultRegistry.StartAll
	StopAll      = defaultRegistry.StopAll
	Restart      = defaultRegistry.Restart
	HealthCheckAll = defaultRegistry.HealthCheckAll
)

// Registry is a thread-safe named lookup of active channel adapters (C3).
type Registry struct {
	chans map[string]Channel

	cnt atomic.Int64
	mu  sync.RWMutex

	runMu   sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{
		chans:   make(map[string]Channel, 8),
		cancels: make(map[string]context.CancelFunc, 8),
	}
}

func (r *Registry) Register(ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chans[ch.ID()]; !exists {
		r.cnt.Add(1)
	}
	r.chans[ch.ID()] = ch
	return nil
}

func (r *Registry) Get(id string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.chans[id]
	if !ok {
		return nil, errors.New("channel not found")
	}
	return ch, nil
}

func (r *Registry) List() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return gmap.ToSlice(
		r.chans,
		func(k string, v Channel) Channel { return v },
	)
}

func (r *Registry) Len() int {
	return int(r.cnt.Load())
}

func (r *Registry) Unregister(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chans[id]; ok {
		delete(r.chans, id)
		r.cnt.Add(-1)
	}
}

// StartAll starts every registered adapter's receive loop in its own
// goroutine. When continueOnError is true a failing adapter's error is
// collected and the remaining cohort is still started; when false the first
// error aborts and already-started adapters are stopped.
func (r *Registry) StartAll(ctx context.Context, continueOnError bool) []error {
	var errs []error
	var started []Channel
	for _, ch := range r.List() {
		if err := r.startOne(ctx, ch); err != nil {
			errs = append(errs, fmt.Errorf("start channel %s: %w", ch.ID(), err))
			if !continueOnError {
				for _, s := range started {
					r.runMu.Lock()
					if cancel, ok := r.cancels[s.ID()]; ok {
						cancel()
						delete(r.cancels, s.ID())
					}
					r.runMu.Unlock()
					_ = s.Stop(ctx)
				}
				break
			}
			continue
		}
		started = append(started, ch)
	}
	return errs
}

func (r *Registry) startOne(ctx context.Context, ch Channel) error {
	runCtx, cancel := context.WithCancel(ctx)

	r.runMu.Lock()
	r.cancels[ch.ID()] = cancel
	r.runMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.Start(runCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			cancel()
			return err
		}
	case <-time.After(200 * time.Millisecond):
		// Start did not return immediately; assume it is blocking on its
		// receive loop as documented and treat it as started.
	}
	return nil
}

func (r *Registry) StopAll(ctx context.Context) []error {
	var errs []error
	for _, ch := range r.List() {
		r.runMu.Lock()
		if cancel, ok := r.cancels[ch.ID()]; ok {
			cancel()
			delete(r.cancels, ch.ID())
		}
		r.runMu.Unlock()

		if err := ch.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop channel %s: %w", ch.ID(), err))
		}
	}
	return errs
}

func (r *Registry) Restart(ctx context.Context, id string) error {
	ch, err := r.Get(id)
	if err != nil {
		return err
	}

	r.runMu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.runMu.Unlock()

	_ = ch.Stop(ctx)
	return r.startOne(ctx, ch)
}

func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	out := make(map[string]HealthStatus, r.Len())
	for _, ch := range r.List() {
		start := time.Now()
		status := ch.HealthCheck(ctx)
		status.Latency = time.Since(start)
		status.LastChecked = time.Now()
		out[ch.ID()] = status
	}
	return out
}

// PollAdapters returns every registered adapter that implements Poller.
func (r *Registry) PollAdapters() []Channel {
	var out []Channel
	for _, ch := range r.List() {
		if ch.Capabilities().Has(CapPollConversations) {
			if _, ok := ch.(Poller); ok {
				out = append(out, ch)
			} else {
				logs.Warn("[channel] %s advertises POLL_CONVERSATIONS but does not implement Poller", ch.ID())
			}
		}
	}
	return out
}
