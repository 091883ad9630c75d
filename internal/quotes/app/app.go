package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"goldex.com/internal/quotes/api"
	"goldex.com/internal/quotes/cache"
	"goldex.com/internal/quotes/config"
	"goldex.com/internal/quotes/gateway"
	"goldex.com/internal/quotes/provider"
	"goldex.com/internal/quotes/query"
	"goldex.com/internal/quotes/scheduler"
	"goldex.com/internal/quotes/storage/barstore"
	"goldex.com/internal/quotes/storage/influxsink"
	"goldex.com/internal/quotes/ws"
	pkgconfig "goldex.com/pkg/config"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/metrics"
	"goldex.com/pkg/orm"
	"goldex.com/pkg/ratelimit"
	"goldex.com/pkg/trace"
	"goldex.com/pkg/xredis"
)

type App struct {
	cfg *config.Config
	v   *viper.Viper
	now func() time.Time

	cache   *cache.PriceCache
	chain   *provider.Chain
	query   *query.Service
	hub     *ws.Hub
	sched   *scheduler.Scheduler
	limiter *ratelimit.Store
	gw      *gateway.Gateway

	broker        gateway.Broker
	rdb           *redis.Client
	sqlDB         *sql.DB
	influx        *influxsink.Sink
	traceShutdown func(context.Context) error
}

type Option func(*App)

func WithClock(now func() time.Time) Option { return func(a *App) { a.now = now } }

// New wires every component. Only a bad provider list is fatal; optional
// backends that cannot be reached are logged and left out.
func New(ctx context.Context, cfg *config.Config, v *viper.Viper, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, v: v, now: time.Now}
	for _, o := range opts {
		o(a)
	}

	if cfg.Trace.Endpoint != "" {
		shutdown, err := trace.InitTrace(ctx, cfg.Name, cfg.Version, cfg.Trace.Endpoint, cfg.Trace.Ratio)
		if err != nil {
			logger.Warn(ctx, "tracing disabled", zap.Error(err))
		} else {
			a.traceShutdown = shutdown
		}
	}

	chain, err := BuildChain(cfg, nil, a.now)
	if err != nil {
		return nil, err
	}
	a.chain = chain
	a.cache = cache.New(a.now)

	qopts := []query.Option{query.WithClock(a.now), query.WithMaxDays(cfg.Historical.MaxDays)}
	if store := a.openBarStore(ctx); store != nil {
		qopts = append(qopts, query.WithBarStore(store))
	}
	a.query = query.New(a.cache, a.chain, qopts...)

	a.hub = ws.NewHub(a.query, ws.Options{
		QueueSize:    cfg.WS.QueueSize,
		WriteTimeout: cfg.WS.WriteTimeout,
		Now:          a.now,
	})

	// 顺序即通知顺序: 推送优先, 再落盘
	var listeners []scheduler.UpdateListener
	if b := a.openBroker(ctx); b != nil {
		a.broker = b
		a.gw = gateway.NewGateway(b, a.hub)
		listeners = append(listeners, gateway.NewRelay(b))
	} else {
		listeners = append(listeners, a.hub)
	}
	if m := a.openMirror(ctx); m != nil {
		listeners = append(listeners, m)
	}
	if cfg.Influx.Enabled {
		a.influx = influxsink.New(cfg.Influx.Config)
		logger.Info(ctx, "influx sink enabled", zap.String("cfg", cfg.Influx.Config.String()))
		listeners = append(listeners, a.influx)
	}
	a.sched = scheduler.New(a.chain, a.cache, cfg.Refresh.Symbols, cfg.Refresh.Interval, listeners...)

	a.limiter = ratelimit.NewWindowStore(cfg.RateLimit.Max, cfg.RateLimit.Window)

	logger.Info(ctx, "app wired",
		zap.Strings("providers", a.chain.Names()),
		zap.Strings("symbols", cfg.Refresh.Symbols),
		zap.Bool("nats", a.broker != nil),
		zap.Bool("redis", a.rdb != nil),
		zap.Bool("influx", a.influx != nil),
		zap.Bool("mysql", a.sqlDB != nil),
	)
	return a, nil
}

func (a *App) openBarStore(ctx context.Context) query.BarStore {
	if !a.cfg.MySQL.Enabled {
		return nil
	}
	db, err := orm.NewMySQL(&a.cfg.MySQL.Config)
	if err != nil {
		logger.Warn(ctx, "mysql unavailable, historical bars not persisted", zap.Error(err))
		return nil
	}
	store := barstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		logger.Warn(ctx, "migrate gold_bars failed, historical bars not persisted", zap.Error(err))
		return nil
	}
	if sqlDB, err := db.DB(); err == nil {
		a.sqlDB = sqlDB
	}
	return store
}

func (a *App) openBroker(ctx context.Context) gateway.Broker {
	if !a.cfg.Nats.Enabled {
		return nil
	}
	b, err := gateway.NewNatsBroker(a.cfg.Nats.URL, a.cfg.Name)
	if err != nil {
		logger.Warn(ctx, "nats unavailable, broadcasting locally", zap.String("url", a.cfg.Nats.URL), zap.Error(err))
		return nil
	}
	return b
}

func (a *App) openMirror(ctx context.Context) *cache.Mirror {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	rdb, err := xredis.NewRedis(ctx, &a.cfg.Redis.Config)
	if err != nil {
		logger.Warn(ctx, "redis unavailable, no warm start", zap.String("addr", a.cfg.Redis.Addr), zap.Error(err))
		return nil
	}
	a.rdb = rdb
	m := cache.NewMirror(rdb, a.cfg.Redis.TTL)
	n, err := m.Warm(ctx, a.cache, a.cfg.Refresh.Symbols)
	if err != nil {
		logger.Warn(ctx, "warm from redis failed", zap.Error(err))
	} else {
		logger.Info(ctx, "cache warmed from redis", zap.Int("symbols", n))
	}
	return m
}

func (a *App) Query() *query.Service { return a.query }

func (a *App) Hub() *ws.Hub { return a.hub }

// Handler builds the HTTP API. stream is mounted on /ws when non-nil.
func (a *App) Handler(stream http.HandlerFunc) http.Handler {
	h := api.NewHandler(a.query, api.Info{
		Version:     a.cfg.Version,
		Environment: a.cfg.Env,
	}, a.now)
	return api.NewRouter(h, api.RouterOptions{
		ServiceName: a.cfg.Name,
		Limiter:     a.limiter,
		Stream:      stream,
	})
}

func (a *App) streamServer(ctx context.Context) *ws.Server {
	s := ws.NewServer(ctx, a.hub)
	s.PingPeriod = a.cfg.WS.PingPeriod
	s.PongWait = a.cfg.WS.PongWait
	s.WriteWait = a.cfg.WS.WriteTimeout
	return s
}

// Run serves until ctx is done or a listener fails, then shuts everything
// down in order: listeners, subscribers, scheduler.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	wss := a.streamServer(ctx)
	var servers []*http.Server
	var stream http.HandlerFunc
	if a.cfg.WS.Addr == "" {
		stream = wss.ServeWS
	} else {
		servers = append(servers, &http.Server{
			Addr:              a.cfg.WS.Addr,
			Handler:           wss.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}
	servers = append(servers, api.NewServer(a.cfg.HTTP.Addr, a.Handler(stream), a.cfg.HTTP.ReadTimeout, a.cfg.HTTP.WriteTimeout))
	servers = append(servers, debugServers(a.cfg.Metrics.Addr, a.cfg.Metrics.PprofAddr)...)

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info(ctx, "listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error { return a.sched.Run(ctx) })
	if a.gw != nil {
		g.Go(func() error { return a.gw.Run(ctx) })
	}

	a.limiter.StartJanitor(ctx, time.Minute)
	if a.sqlDB != nil {
		metrics.ObserveDBStats(ctx, a.sqlDB, 10*time.Second)
	}
	if a.rdb != nil {
		metrics.ObserveRedisStats(ctx, a.rdb, 10*time.Second)
	}
	if a.v != nil {
		pkgconfig.Watch(a.v, config.ServiceName, func() interface{} { return &config.Config{} }, func(out interface{}) {
			if c, ok := out.(*config.Config); ok && c.Log.Level != "" {
				logger.SetLevel(c.Log.Level)
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn(sctx, "http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}
		// hijacked ws conns are not covered by Shutdown
		a.hub.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases backends. Call after Run returns.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.influx != nil {
		a.influx.Close()
	}
	if a.broker != nil {
		_ = a.broker.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.traceShutdown != nil {
		_ = a.traceShutdown(ctx)
	}
	logger.Sync()
}
