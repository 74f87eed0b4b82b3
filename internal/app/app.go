package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stock-alerts/internal/alerting"
	"stock-alerts/internal/command"
	"stock-alerts/internal/config"
	"stock-alerts/internal/fetcher"
	"stock-alerts/internal/market"
	"stock-alerts/internal/metrics"
	"stock-alerts/internal/pricecache"
	"stock-alerts/internal/pricing"
	"stock-alerts/internal/registry"
	"stock-alerts/internal/scheduler"
	"stock-alerts/internal/service"
	"stock-alerts/internal/storage"
	"stock-alerts/internal/webhook"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// components is the wired dependency graph shared by the commands.
type components struct {
	store   storage.Repository
	pg      *storage.Store
	source  *pricing.Source
	sender  alerting.Sender
	clock   *market.Clock
	metrics *metrics.Metrics
	closers []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func (a *App) wire(ctx context.Context) (*components, error) {
	c := &components{metrics: metrics.New()}

	store, pg, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	c.store, c.pg = store, pg
	c.closers = append(c.closers, store.Close)

	clock, err := a.newClock()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.clock = clock

	fast := a.newFastCache(ctx, c)
	c.source = pricing.NewSource(fast, store, a.newFetcher(), pricing.Options{DurableTTL: a.Config.Cache.DurableTTL}, c.metrics, a.Logger)

	sender, err := a.newSender()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.sender = sender
	return c, nil
}

// openStore returns the Postgres store when a DSN is configured and an
// in-memory store otherwise. pg is nil in the latter case.
func (a *App) openStore(ctx context.Context) (storage.Repository, *storage.Store, error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store, state is lost on exit")
		return storage.NewMemoryStore(nil), nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewStore(pool)

	if a.Config.Database.AutoMigrate {
		applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		if len(applied) > 0 {
			a.Logger.Info().Strs("versions", applied).Msg("migrations applied")
		}
	}
	return store, store, nil
}

func (a *App) newClock() (*market.Clock, error) {
	loc, err := time.LoadLocation(a.Config.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}
	weekend, err := a.Config.Market.Weekdays()
	if err != nil {
		return nil, err
	}
	session, err := a.Config.Market.Session()
	if err != nil {
		return nil, err
	}
	return market.NewClock(market.Options{
		Location:  loc,
		Weekend:   weekend,
		PreOpen:   session[0],
		Open:      session[1],
		Close:     session[2],
		PostClose: session[3],
	})
}

func (a *App) newFetcher() *fetcher.Yahoo {
	q := a.Config.Quotes
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:         q.BaseURL,
		Timeout:         q.RequestTimeout,
		UserAgent:       q.UserAgent,
		ExchangeSuffix:  q.ExchangeSuffix,
		ExchangeSymbols: q.ExchangeSymbols,
	}, a.Logger)
}

// newFastCache prefers Redis and falls back to the in-process cache when it
// is disabled or unreachable.
func (a *App) newFastCache(ctx context.Context, c *components) pricecache.Cache {
	ttl := a.Config.Cache.FastTTL
	if !a.Config.Redis.Enabled {
		return pricecache.NewLocal(ttl)
	}

	r := a.Config.Redis
	cache := pricecache.NewRedis(pricecache.RedisOptions{Addr: r.Addr, Password: r.Password, DB: r.DB, TTL: ttl})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		a.Logger.Warn().Err(err).Str("addr", r.Addr).Msg("redis unreachable; using in-process fast cache")
		_ = cache.Close()
		return pricecache.NewLocal(ttl)
	}
	c.closers = append(c.closers, func() { _ = cache.Close() })
	return cache
}

func (a *App) newSender() (alerting.Sender, error) {
	n := a.Config.Notify
	timeout := a.Config.Monitor.DeliveryTimeout
	switch strings.ToLower(n.Transport) {
	case "twilio":
		return alerting.NewTwilioSender(n.Twilio.AccountSID, n.Twilio.AuthToken, n.Twilio.APIBase, timeout, a.Logger), nil
	case "telegram":
		return alerting.NewTelegramSender(n.Telegram.BotToken, n.Telegram.APIBase, timeout, a.Logger), nil
	case "log", "":
		return alerting.NewLogSender(a.Logger), nil
	}
	return nil, fmt.Errorf("unsupported notify.transport %q", n.Transport)
}

func (a *App) newGate(c *components) *alerting.Gate {
	return alerting.NewGate(c.sender, alerting.GateOptions{
		Cooldown:        a.Config.Monitor.Cooldown,
		From:            a.Config.Notify.Twilio.FromNumber,
		Currency:        a.Config.Notify.CurrencySymbol,
		DeliveryTimeout: a.Config.Monitor.DeliveryTimeout,
	}, c.metrics, a.Logger)
}

func (a *App) newMonitor(c *components) *service.Monitor {
	m := a.Config.Monitor
	return service.New(c.clock, c.source, c.store, alerting.NewEvaluator(c.store, a.Logger), a.newGate(c), service.Options{
		SnapshotHorizon:  m.SnapshotHorizon,
		GapCheckWindow:   m.GapCheckWindow,
		FetchConcurrency: m.FetchConcurrency,
		AdvisoryLockKey:  m.AdvisoryLockKey,
	}, c.metrics, a.Logger)
}

func (a *App) newCommandHandler(c *components) *command.Handler {
	return command.NewHandler(registry.New(c.store, a.Logger), c.source, command.Options{
		Currency: a.Config.Notify.CurrencySymbol,
		Location: c.clock.Location(),
	}, c.metrics, a.Logger)
}

func (a *App) schedules() service.Schedules {
	m := a.Config.Monitor
	build := func(name string, interval, retryDelay time.Duration) *scheduler.Scheduler {
		return scheduler.New(scheduler.Options{
			Name:         name,
			Interval:     interval,
			AlignToStart: true,
			StartupDelay: m.StartupDelay,
			MaxRetries:   m.MaxRetries,
			RetryDelay:   retryDelay,
		}, a.Logger)
	}
	return service.Schedules{
		Snapshot: build(service.TickSnapshot, m.SnapshotInterval, m.SnapshotRetryDelay),
		Gap:      build(service.TickGap, m.GapInterval, m.GapRetryDelay),
		Window:   build(service.TickWindow, m.WindowInterval, m.WindowRetryDelay),
	}
}

// Run executes the monitor loops and the webhook server until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := a.wire(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	monitor := a.newMonitor(c)
	g, gctx := errgroup.WithContext(ctx)

	a.Logger.Info().Msg("starting monitoring service")
	g.Go(func() error {
		return monitor.Run(gctx, a.schedules())
	})

	if a.Config.Webhook.Enabled {
		srv := webhook.New(webhook.Options{ListenAddr: a.Config.Webhook.ListenAddr},
			a.newCommandHandler(c), c.sender, c.metrics.Handler(), a.Logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting snapshot history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// TickOptions select a one-off tick.
type TickOptions struct {
	Tick  string
	Force bool
}
