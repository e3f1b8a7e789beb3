// Package app wires the daemon together: config, logging, token guard, rate
// limiter, dispatch pool, broadcaster, control plane, HTTP surface, janitor.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"relayd/internal/auth"
	"relayd/internal/config"
	"relayd/internal/control"
	"relayd/internal/dispatch"
	"relayd/internal/provider"
	"relayd/internal/ratelimit"
	"relayd/internal/runtime/supervisor"
	"relayd/internal/server"
	"relayd/internal/stream"
	logx "relayd/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	tokens  auth.Store
	guard   *auth.Guard
	limiter *ratelimit.Limiter
	bc      *stream.Broadcaster
	store   *dispatch.Store
	plane   *control.Plane
	http    *server.Server
	pprof   *server.PprofServer

	shutdownGrace time.Duration

	mu      sync.Mutex
	sup     *supervisor.Supervisor
	janitor *janitor
	started bool
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(buildLogConfig(cfg))
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(_ context.Context, c *config.Config) error {
		// A reload that fails any mapper is rejected wholesale.
		if _, err := buildAuthConfig(c); err != nil {
			return err
		}
		if _, err := buildRateLimitConfig(c); err != nil {
			return err
		}
		if _, err := buildDispatchConfig(c); err != nil {
			return err
		}
		return nil
	})

	authCfg, err := buildAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.Open(authCfg, log)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	guard := auth.NewGuard(tokens, log)

	rlCfg, err := buildRateLimitConfig(cfg)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(rlCfg, log.With(logx.String("comp", "ratelimit")))

	provCfg, err := buildProviderConfig(cfg)
	if err != nil {
		return nil, err
	}
	prov, err := provider.New(provCfg, log)
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}

	bc := stream.New(cfg.Stream.Buffer, log)

	dispCfg, err := buildDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	store := dispatch.New(dispCfg, prov, bc, log)

	grace, err := buildShutdownGrace(cfg)
	if err != nil {
		return nil, err
	}

	plane := control.New(buildControlConfig(cfg), guard, limiter, store, bc, log)

	srvCfg, err := buildServerConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgMgr:        mgr,
		logSvc:        logSvc,
		log:           log,
		tokens:        tokens,
		guard:         guard,
		limiter:       limiter,
		bc:            bc,
		store:         store,
		plane:         plane,
		http:          server.New(srvCfg, plane, log),
		pprof:         server.NewPprofServer(log),
		shutdownGrace: grace,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	cfg := a.cfgMgr.Get()

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	a.store.Start(a.sup.Context())
	if err := a.http.Start(a.sup.Context()); err != nil {
		return err
	}
	a.pprof.Apply(ctx, buildPprofConfig(cfg))

	a.janitor = newJanitor(cfg.Janitor, a.store, a.limiter, a.log)
	a.janitor.Start()

	a.sup.GoRestart("config.watch", a.cfgMgr.Watch)
	a.sup.Go0("config.apply", a.applyLoop)

	a.started = true
	a.log.Info("relayd started")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	return nil
}

// applyLoop picks up validated config reloads and re-applies the
// hot-reloadable subset: log level/sinks, token set, rate limits, pprof.
// Worker-pool and backoff settings stay fixed until restart.
func (a *App) applyLoop(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(buildLogConfig(cfg))

			if authCfg, err := buildAuthConfig(cfg); err == nil {
				if st, ok := a.tokens.(*auth.StaticStore); ok {
					st.Apply(authCfg.Tokens)
				}
			}
			if rlCfg, err := buildRateLimitConfig(cfg); err == nil {
				a.limiter.Apply(rlCfg)
			}
			a.pprof.Apply(ctx, buildPprofConfig(cfg))
			a.log.Info("config applied")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	sup := a.sup
	jan := a.janitor
	a.sup = nil
	a.janitor = nil
	a.mu.Unlock()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("shutting down")

	// Stop intake first so no new work arrives while workers drain.
	a.http.Stop(ctx)
	a.pprof.Stop(ctx)
	if jan != nil {
		jan.Stop()
	}

	graceCtx, cancel := context.WithTimeout(context.Background(), a.shutdownGrace)
	_ = a.store.StopAll(graceCtx)
	cancel()

	if sup != nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = sup.Stop(waitCtx)
		cancel()
	}

	if a.tokens != nil {
		_ = a.tokens.Close()
	}
	a.log.Info("relayd stopped")
	return a.logSvc.Close()
}
