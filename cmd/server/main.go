package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/bakery-orders/internal/addresses"
	"github.com/example/bakery-orders/internal/chatorder"
	"github.com/example/bakery-orders/internal/config"
	"github.com/example/bakery-orders/internal/delivery"
	"github.com/example/bakery-orders/internal/eta"
	"github.com/example/bakery-orders/internal/events"
	"github.com/example/bakery-orders/internal/geo"
	httpapi "github.com/example/bakery-orders/internal/http"
	"github.com/example/bakery-orders/internal/kitchen"
	"github.com/example/bakery-orders/internal/logging"
	"github.com/example/bakery-orders/internal/matcher"
	"github.com/example/bakery-orders/internal/menu"
	"github.com/example/bakery-orders/internal/notify"
	"github.com/example/bakery-orders/internal/orders"
	"github.com/example/bakery-orders/internal/payments"
	"github.com/example/bakery-orders/internal/sessions"
	"github.com/example/bakery-orders/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()
	var readiness []func(context.Context) error

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if ps, ok := store.(*storage.PostgresStore); ok {
		closers = append(closers, ps.Close)
		readiness = append(readiness, ps.Ping)
	}

	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		closers = append(closers, rc.Close)
		readiness = append(readiness, func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}

	var driverGeo geo.Geo = geo.NewIndex()
	var chatSessions sessions.Store
	if rc != nil {
		driverGeo = geo.NewRedisGeo(rc, cfg.RedisGeoKey)
		chatSessions = sessions.NewRedisStore(rc, cfg.SessionTTL)
	} else {
		logger.Warn("REDIS_ADDR not set; driver index and chat sessions are kept in process")
		chatSessions = sessions.NewMemoryStore(cfg.SessionTTL, nil)
	}

	hub := kitchen.NewHub(logger, cfg.CORSAllowedOrigins)
	orderEvents := events.FanOut{hub}
	var locations events.LocationPublisher = geo.Sink{Geo: driverGeo}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic, cfg.KafkaLocationTopic)
		closers = append(closers, kp.Close)
		orderEvents = append(orderEvents, kp)
		if rc != nil {
			// the consumer maintains the shared Redis index from the topic
			locations = kp
		} else {
			locations = events.LocationFanOut{kp, geo.Sink{Geo: driverGeo}}
		}
	}

	gateway, err := payments.New(payments.Config{
		Provider:      cfg.PaymentProvider,
		KeyID:         cfg.PaymentKeyID,
		KeySecret:     cfg.PaymentKeySecret,
		WebhookSecret: cfg.PaymentWebhookSecret,
		APIBase:       cfg.PaymentAPIBase,
		Currency:      cfg.PaymentCurrency,
	})
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}
	if gateway == nil {
		logger.Warn("payment gateway not configured; online payments are disabled")
	}

	notifier := notify.NewAsync(buildDispatcher(cfg, logger), cfg.NotifyTimeout, logger)

	estimator := &eta.Estimator{Cache: eta.NewCache(cfg.ETACacheTTL), DefaultSpeedMps: cfg.DefaultSpeedMps}
	if cfg.OSRMEndpoint != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	orderSvc := &orders.Service{
		Store:           store,
		Gateway:         gateway,
		Events:          orderEvents,
		Notifier:        notifier,
		Logger:          logger,
		DeliveryFee:     cfg.DeliveryFee,
		Currency:        cfg.PaymentCurrency,
		SignaturePolicy: orders.SignaturePolicy(cfg.SignatureFailure),
	}
	deliverySvc := &delivery.Service{
		Store:     store,
		Events:    orderEvents,
		Locations: locations,
		Matcher:   &matcher.Service{Geo: driverGeo, ETA: estimator, TopN: cfg.SuggestTopN},
		ETA:       estimator,
		Bakery:    cfg.StoreLocation(),
		Logger:    logger,
	}
	menuSvc := &menu.Service{Store: store, Logger: logger}

	srv := httpapi.NewServer(httpapi.Services{
		Orders:    orderSvc,
		Delivery:  deliverySvc,
		Menu:      menuSvc,
		Addresses: &addresses.Service{Store: store},
		Chat: &chatorder.Service{
			Menu:        menuSvc,
			Store:       store,
			Sessions:    chatSessions,
			Orders:      orderSvc,
			DeliveryFee: cfg.DeliveryFee,
			Logger:      logger,
		},
		Kitchen: hub,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, check := range readiness {
				errs = append(errs, check(ctx))
			}
			return errors.Join(errs...)
		},
	}, logger, cfg.CORSAllowedOrigins)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bakery orders listening", "addr", cfg.HTTPAddr, "payments", gateway != nil, "kafka", len(cfg.KafkaBrokers) > 0, "redis", rc != nil)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	notifier.Wait()
	return nil
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.Store, error) {
	if cfg.PGDSN == "" {
		logger.Warn("PG_DSN not set; using the in-memory store")
		return storage.NewMemoryStore(), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ps, err := storage.NewPostgresStore(connectCtx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		applied, err := ps.Migrate(ctx)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", "files", applied)
	}
	return ps, nil
}

func buildDispatcher(cfg config.ServerConfig, logger *slog.Logger) notify.Dispatcher {
	r := notify.Renderer{Shop: cfg.ShopName, Currency: cfg.PaymentCurrency}
	var m notify.Multi
	if cfg.SMTPAddr != "" && cfg.MailFrom != "" {
		m = append(m, &notify.SMTPMailer{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			AdminTo:  cfg.AdminEmail,
			Renderer: r,
		})
	}
	if cfg.SMSEndpoint != "" {
		m = append(m, notify.NewSMSDispatcher(cfg.SMSEndpoint, cfg.SMSAPIKey, r))
	}
	if len(m) == 0 {
		return notify.LogDispatcher{Logger: logger}
	}
	return m
}
