// Package poller implements the Polling Service (C7): one ticking loop per
// adapter advertising POLL_CONVERSATIONS, feeding every polled message
// through the Inbound Orchestrator.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/pkg/logs"
)

// GenerationEnabled reports whether AI generation is currently enabled for
// a channel; the poller skips a tick entirely when it is not.
type GenerationEnabled func(channel.Type) bool

// Processor is the subset of the Inbound Orchestrator the poller feeds
// polled messages through.
type Processor interface {
	ProcessIncoming(ctx context.Context, msg *channel.IncomingMessage) bool
}

const (
	DefaultInterval = 3 * time.Second
	DefaultBackoff  = 3 * time.Second
)

// Service runs one poll loop per adapter. Loops are never run twice
// concurrently for the same adapter: the tick handler blocks until the
// previous poll_conversations call (and its downstream processing) returns.
type Service struct {
	Processor  Processor
	Generation GenerationEnabled
	Interval   time.Duration
	Backoff    time.Duration

	wg      sync.WaitGroup
	cancels []context.CancelFunc
	mu      sync.Mutex
}

func New(processor Processor, generation GenerationEnabled, interval, backoff time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Service{Processor: processor, Generation: generation, Interval: interval, Backoff: backoff}
}

// StartAll launches one loop per adapter that implements channel.Poller.
func (s *Service) StartAll(ctx context.Context, adapters []channel.Channel) {
	for _, ch := range adapters {
		poller, ok := ch.(channel.Poller)
		if !ok {
			continue
		}
		s.start(ctx, ch, poller)
	}
}

func (s *Service) start(ctx context.Context, ch channel.Channel, poller channel.Poller) {
	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(loopCtx, ch, poller)
	}()
}

// StopAll cancels every running loop and waits for in-flight ticks to
// finish.
func (s *Service) StopAll() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}

func (s *Service) loop(ctx context.Context, ch channel.Channel, poller channel.Poller) {
	interval := s.Interval

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if s.Generation != nil && !s.Generation(ch.Type()) {
			interval = s.Interval
			continue
		}

		if err := s.tick(ctx, ch, poller); err != nil {
			logs.CtxWarn(ctx, "[poller] %s poll failed, backing off: %v", ch.ID(), err)
			interval = s.Backoff
			continue
		}
		interval = s.Interval
	}
}

func (s *Service) tick(ctx context.Context, ch channel.Channel, poller channel.Poller) error {
	messages, err := poller.PollConversations(ctx)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		s.Processor.ProcessIncoming(ctx, msg)
	}
	return nil
}
