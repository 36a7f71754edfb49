// Package runtime wires every gateway component into one running process:
// config, coordination store, the hook pipeline, escalation handling,
// learning, delivery, reaction follow-ups, the inbound orchestrator, the
// channel adapters, and the shared HTTP server they all sit behind.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hzprom "github.com/hertz-contrib/monitor-prometheus"

	"github.com/suppgw/gateway/internal/answer"
	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/channel/federated"
	"github.com/suppgw/gateway/internal/channel/tradingapp"
	"github.com/suppgw/gateway/internal/channel/web"
	"github.com/suppgw/gateway/internal/config"
	"github.com/suppgw/gateway/internal/coordination"
	"github.com/suppgw/gateway/internal/delivery"
	"github.com/suppgw/gateway/internal/dispatcher"
	"github.com/suppgw/gateway/internal/escalation"
	"github.com/suppgw/gateway/internal/gateway"
	"github.com/suppgw/gateway/internal/httpapi"
	"github.com/suppgw/gateway/internal/learning"
	"github.com/suppgw/gateway/internal/orchestrator"
	"github.com/suppgw/gateway/internal/pkg/logs"
	"github.com/suppgw/gateway/internal/policy"
	"github.com/suppgw/gateway/internal/poller"
	"github.com/suppgw/gateway/internal/reaction"
	"github.com/suppgw/gateway/internal/tracker"
)

// Runtime owns every long-lived collaborator and the shared HTTP server they
// are reachable through.
type Runtime struct {
	cfg *config.Config

	httpServer *hzServer.Hertz

	coordStore    coordination.Store
	escalationDB  *escalation.Store
	escalationSvc *escalation.Service
	learner       *learning.Engine
	weights       *learning.SourceWeightManager
	delivery      *delivery.Service
	escSweeper    *escalation.Sweeper
	retrySweeper  *delivery.RetrySweeper

	feedback  *reaction.Store
	followup  *reaction.FollowupCoordinator
	reactions *reaction.Processor

	tracker      *tracker.Tracker
	orchestrator *orchestrator.Orchestrator
	poller       *poller.Service

	runCtx    context.Context
	runCancel context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

// New builds every collaborator but starts nothing: call Start to bring the
// process up.
func New(cfg *config.Config) (*Runtime, error) {
	bind := cfg.Gateway.Bind
	if bind == "" {
		bind = "0.0.0.0:8080"
	}
	timeout := time.Duration(cfg.Gateway.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Request-level Hertz metrics live on their own listener so /metrics
	// scraping never competes with channel traffic on the main bind address.
	const metricsAddr = "0.0.0.0:9091"
	const metricsPath = "/metrics"

	hzSvr := hzServer.Default(
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(timeout),
		hzServer.WithWriteTimeout(timeout),
		hzServer.WithExitWaitTime(5*time.Second),
		hzServer.WithTracer(hzprom.NewServerTracer(metricsAddr, metricsPath)),
	)

	r := &Runtime{cfg: cfg, httpServer: hzSvr}

	coordStore, err := newCoordinationStore(cfg.Coordination)
	if err != nil {
		return nil, fmt.Errorf("init coordination store: %w", err)
	}
	r.coordStore = coordStore

	escDB, err := escalation.NewStore(cfg.Escalation.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init escalation store: %w", err)
	}
	r.escalationDB = escDB

	r.learner = learning.NewEngine(cfg.Learning.ThresholdHigh, cfg.Learning.ThresholdLow, cfg.Learning.MinReviews)
	r.weights = learning.NewSourceWeightManager()
	r.learner.Weights = r.weights

	deliveryLookup := func(id string) (channel.Channel, error) { return channel.Get(id) }
	r.delivery = delivery.New(deliveryLookup, cfg.Escalation.DeliveryMaxRetries, r.escalationDB.RecordDeliveryResult)

	r.escalationSvc = escalation.NewService(r.escalationDB, r.delivery, r.learner)

	r.tracker = tracker.New(time.Duration(cfg.Coordination.DedupTTLSec) * time.Second)
	r.feedback = reaction.NewStore()

	followupLookup := func(id string) (channel.Channel, error) { return channel.Get(id) }
	r.followup = reaction.NewFollowupCoordinator(r.coordStore, followupLookup, r.feedback, time.Duration(cfg.Coordination.FollowupTTLSec)*time.Second)
	r.reactions = reaction.New(r.tracker, r.feedback, r.followup)

	policyLookup := policy.Lookup(configSource{})
	channelLookup := func(id string) (channel.Channel, error) { return channel.Get(id) }

	answerTimeout := time.Duration(cfg.Answer.TimeoutSec) * time.Second
	answers := answer.NewHTTPClient(cfg.Answer.BaseURL, cfg.Answer.APIKey, answerTimeout)

	pipeline := gateway.NewPipeline()
	pipeline.RegisterPre(&gateway.AIGenerationPreHook{Lookup: policyLookup})
	pipeline.RegisterPost(&gateway.LearningRoutingPostHook{Route: r.routeFunc(), Weights: r.weights})
	pipeline.RegisterPost(&gateway.PIIFilterPostHook{})
	pipeline.RegisterPost(&gateway.AutoResponsePostHook{Lookup: policyLookup})
	pipeline.RegisterPost(&gateway.EscalationPostHook{
		Escalations: r.escalationSvc,
		Channels:    channelLookup,
		Lookup:      policyLookup,
	})
	pipeline.RegisterPost(&gateway.MetricsPostHook{Observe: observeRouting})

	gw := gateway.New(pipeline, answers)

	disp := dispatcher.New(channelLookup, r.tracker)
	r.orchestrator = orchestrator.New(r.coordStore, gw, disp, r.followup, orchestrator.Config{
		DedupTTL:       time.Duration(cfg.Coordination.DedupTTLSec) * time.Second,
		ThreadLockTTL:  time.Duration(cfg.Coordination.ThreadLockTTLSec) * time.Second,
		ThreadStateTTL: time.Duration(cfg.Coordination.ThreadStateTTLSec) * time.Second,
	})

	generation := &policy.AIGenerationPolicy{Config: configSource{}}
	r.poller = poller.New(r.orchestrator, generation.IsEnabled, time.Duration(cfg.Polling.IntervalSec)*time.Second, time.Duration(cfg.Polling.BackoffSec)*time.Second)

	r.escSweeper = escalation.NewSweeper(
		r.escalationDB,
		time.Duration(cfg.Escalation.ClaimTTLMinutes)*time.Minute,
		time.Duration(cfg.Escalation.AutoCloseHours)*time.Hour,
		time.Duration(cfg.Escalation.RetentionDays)*24*time.Hour,
		time.Duration(cfg.Escalation.SweepIntervalSec)*time.Second,
	)
	r.retrySweeper = delivery.NewRetrySweeper(r.delivery, r.escalationDB, time.Duration(cfg.Escalation.SweepIntervalSec)*time.Second)

	return r, nil
}

// routeFunc adapts the Learning Engine to gateway.RoutingFunc without the
// gateway package importing learning.
func (r *Runtime) routeFunc() gateway.RoutingFunc {
	return func(confidence float64) (bool, channel.Priority, channel.RoutingAction) {
		d := r.learner.Route(confidence)
		return !d.SendImmediately, d.Priority, d.Action
	}
}

func observeRouting(channelID channel.Type, requiresHuman bool) {
	logs.Info("[runtime] routed channel=%s requires_human=%v", channelID, requiresHuman)
}

// configSource adapts the config package's live singleton to policy.Source,
// so channel policy toggles applied via config.Apply take effect without a
// restart.
type configSource struct{}

func (configSource) Get() (*config.Config, error) { return config.Get() }

func newCoordinationStore(cfg config.CoordinationConfig) (coordination.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return coordination.NewMemoryStore(), nil
	case "sqlite":
		return coordination.NewSQLiteStore(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported coordination backend: %s", cfg.Backend)
	}
}

// Start registers every channel adapter and HTTP route, then spins the
// server and background loops. It does not block.
func (r *Runtime) Start(ctx context.Context) error {
	r.runCtx, r.runCancel = context.WithCancel(ctx)

	r.initHTTPServer()

	if err := r.initChannels(r.runCtx); err != nil {
		return fmt.Errorf("init channels: %w", err)
	}

	httpapi.New(r.escalationSvc, r.reactions).Register(r.httpServer)

	r.escSweeper.Start(r.runCtx)
	r.retrySweeper.Start(r.runCtx)
	r.poller.StartAll(r.runCtx, channel.List())

	go r.httpServer.Spin()

	return nil
}

// Stop tears everything down in reverse dependency order. Safe to call once.
func (r *Runtime) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.poller.StopAll()
		r.retrySweeper.Stop()
		r.escSweeper.Stop()

		if r.runCancel != nil {
			r.runCancel()
		}

		for _, ch := range channel.List() {
			if err := ch.Stop(ctx); err != nil {
				logs.CtxWarn(ctx, "[runtime] stop channel %s error: %v", ch.ID(), err)
			}
		}

		if err := r.httpServer.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[runtime] shutdown http server error: %v", err)
		}

		if err := r.escalationDB.Close(); err != nil {
			logs.CtxWarn(ctx, "[runtime] close escalation store error: %v", err)
		}

		logs.CtxInfo(ctx, "[runtime] all resources stopped")
	})
	return r.stopErr
}

func (r *Runtime) initHTTPServer() {
	r.httpServer.GET("/health", func(_ context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

func (r *Runtime) initChannels(ctx context.Context) error {
	for id, cfg := range r.cfg.Channels {
		cfg.ID = id
		if !cfg.Enabled {
			logs.CtxInfo(ctx, "[runtime] channel #%s is disabled, skipping", id)
			continue
		}

		ch, err := newChannel(id, &cfg)
		if err != nil {
			return fmt.Errorf("create channel %s: %w", id, err)
		}

		if err := ch.RegisterMessageHandler(r.orchestratorHandler); err != nil {
			return fmt.Errorf("register handler for channel %s: %w", id, err)
		}

		if rp, ok := ch.(channel.RouteProvider); ok {
			for _, rt := range rp.Routes() {
				handler, ok := rt.Handler.(app.HandlerFunc)
				if !ok {
					return fmt.Errorf("channel %s: route %s %s has an invalid handler type", id, rt.Method, rt.Path)
				}
				r.httpServer.Handle(rt.Method, rt.Path, handler)
			}
		}

		if err := channel.Register(ch); err != nil {
			return fmt.Errorf("register channel %s: %w", id, err)
		}

		go func(id string, ch channel.Channel) {
			logs.CtxInfo(ctx, "[runtime] starting channel #%s (%s)", id, ch.Type())
			if err := ch.Start(r.runCtx); err != nil {
				logs.CtxError(ctx, "[runtime] channel #%s stopped with error: %v", id, err)
			}
		}(id, ch)
	}
	return nil
}

// orchestratorHandler is the callback every channel adapter invokes for each
// normalized IncomingMessage it produces.
func (r *Runtime) orchestratorHandler(ctx context.Context, msg *channel.IncomingMessage) error {
	r.orchestrator.ProcessIncoming(ctx, msg)
	return nil
}

func newChannel(id string, cfg *config.ChannelConfig) (channel.Channel, error) {
	switch channel.Type(strings.ToLower(strings.TrimSpace(cfg.Type))) {
	case channel.Web:
		return web.NewChannel(id, cfg)
	case channel.Federated:
		return federated.NewChannel(id, cfg)
	case channel.TradingApp:
		return tradingapp.NewChannel(id, cfg)
	default:
		return nil, fmt.Errorf("unsupported channel type: %s", cfg.Type)
	}
}
