// Package app wires configuration into running components. Each CLI
// command calls one method on App.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/alert"
	"bitcurrency-bot/internal/config"
	"bitcurrency-bot/internal/metrics"
	"bitcurrency-bot/internal/notify"
	"bitcurrency-bot/internal/payment"
	"bitcurrency-bot/internal/quota"
	"bitcurrency-bot/internal/rates"
	"bitcurrency-bot/internal/scheduler"
	"bitcurrency-bot/internal/service"
	"bitcurrency-bot/internal/storage"
	"bitcurrency-bot/internal/version"

	historypkg "bitcurrency-bot/internal/history"
	statspkg "bitcurrency-bot/internal/stats"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (storage.KV, func(), error) {
	switch a.Config.Storage.Backend {
	case "postgres":
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		store, err := storage.OpenBunt(a.Config.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}

func (a *App) newProviders() []rates.Provider {
	cfg := a.Config.Rates
	return []rates.Provider{
		rates.NewBinance(rates.BinanceOptions{
			BaseURL:   cfg.BinanceBaseURL,
			Timeout:   cfg.RequestTimeout,
			UserAgent: cfg.UserAgent,
		}, a.Logger),
		rates.NewWhiteBIT(rates.WhiteBITOptions{
			BaseURL:   cfg.WhiteBITBaseURL,
			Timeout:   cfg.RequestTimeout,
			UserAgent: cfg.UserAgent,
		}, a.Logger),
	}
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Telegram.Enabled {
		cfg := a.Config.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return notify.NewLogNotifier(a.Logger)
}

// components holds everything a command may need, built over one store.
type components struct {
	store     storage.KV
	engine    *rates.Engine
	ledger    *quota.Ledger
	history   *historypkg.Log
	alerts    *alert.Store
	counters  *statspkg.Counters
	gateway   *payment.Gateway
	notifier  notify.Notifier
	metrics   *metrics.Set
	registry  *prometheus.Registry
	service   *service.Service
	closeFunc func()
}

func (c *components) close() {
	if c.closeFunc != nil {
		c.closeFunc()
	}
}

func (a *App) build(ctx context.Context) (*components, error) {
	store, closer, err := a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var set *metrics.Set
	var registry *prometheus.Registry
	if a.Config.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		set = metrics.NewSet(registry)
	}

	engine := rates.NewEngine(a.newProviders(), store, rates.Options{
		CacheTTL:    a.Config.Rates.CacheTTL,
		CallTimeout: a.Config.Rates.RequestTimeout,
		Observer:    observerOrNil(set),
	}, a.Logger)

	ledger := quota.NewLedger(store, quota.Options{
		DailyLimit: a.Config.Quota.DailyLimit,
		AdminIDs:   a.Config.Quota.AdminIDs,
		RecordTTL:  48 * time.Hour,
	}, a.Logger)

	hist := historypkg.NewLog(store, historypkg.Options{
		Limit: a.Config.History.Limit,
		TTL:   a.Config.History.TTL,
	}, a.Logger)

	alerts := alert.NewStore(store, alert.Options{TTL: a.Config.Alerts.TTL}, a.Logger)
	counters := statspkg.NewCounters(store, statspkg.Options{}, a.Logger)
	notifier := a.newNotifier()

	var gateway *payment.Gateway
	if a.Config.Payment.Enabled {
		client := payment.NewClient(payment.ClientOptions{
			APIToken: a.Config.Payment.APIToken,
			BaseURL:  a.Config.Payment.BaseURL,
			Timeout:  a.Config.Payment.Timeout,
		}, a.Logger)
		gateway = payment.NewGateway(client, store, ledger, counters, notifier, payment.GatewayOptions{
			Price:        decimal.NewFromFloat(a.Config.Payment.PriceUSDT),
			CheckTimeout: a.Config.Payment.Timeout,
			Observer:     gatewayObserverOrNil(set),
		}, a.Logger)
	}

	svc := service.New(engine, ledger, hist, alerts, counters, gateway, set, a.Logger)

	return &components{
		store:     store,
		engine:    engine,
		ledger:    ledger,
		history:   hist,
		alerts:    alerts,
		counters:  counters,
		gateway:   gateway,
		notifier:  notifier,
		metrics:   set,
		registry:  registry,
		service:   svc,
		closeFunc: closer,
	}, nil
}

// The observer helpers keep a typed-nil *metrics.Set out of the interface
// fields when metrics are disabled.

func observerOrNil(set *metrics.Set) rates.Observer {
	if set == nil {
		return nil
	}
	return set
}

func gatewayObserverOrNil(set *metrics.Set) payment.Observer {
	if set == nil {
		return nil
	}
	return set
}

func alertObserverOrNil(set *metrics.Set) alert.Observer {
	if set == nil {
		return nil
	}
	return set
}

// Run executes the long-running bot core: the alert evaluator, the invoice
// poller when payments are enabled, and the metrics endpoint.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	evaluator := alert.NewEvaluator(comps.alerts, comps.engine, comps.notifier, alert.EvaluatorOptions{
		CheckTimeout: a.Config.Rates.RequestTimeout * 2,
		Observer:     alertObserverOrNil(comps.metrics),
	}, a.Logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched := scheduler.New(scheduler.Options{
			Name:     "alert-sweep",
			Interval: a.Config.Alerts.Interval,
		}, a.Logger)
		if err := sched.Run(ctx, evaluator.Tick); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("alert sweep loop stopped")
		}
	}()

	if comps.gateway != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched := scheduler.New(scheduler.Options{
				Name:     "invoice-poll",
				Interval: a.Config.Payment.PollInterval,
			}, a.Logger)
			if err := sched.Run(ctx, comps.gateway.Tick); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("invoice poll loop stopped")
			}
		}()
	}

	var metricsServer *metrics.Server
	if comps.registry != nil {
		metricsServer = metrics.NewServer(a.Config.Metrics.Addr, comps.registry, a.Logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer.Start()
		}()
	}

	a.Logger.Info().Str("version", version.String()).Msg("bot core started")
	<-ctx.Done()
	a.Logger.Info().Msg("shutting down")

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("metrics shutdown failed")
		}
		shutdownCancel()
	}

	wg.Wait()
	a.Logger.Info().Msg("bot core stopped")
	return nil
}
