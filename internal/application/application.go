package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/ticket-queue/internal/config"
	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/handler"
	"github.com/psds-microservice/ticket-queue/internal/kafka"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/metrics"
	"github.com/psds-microservice/ticket-queue/internal/router"
	"github.com/psds-microservice/ticket-queue/internal/service"
	"github.com/psds-microservice/ticket-queue/internal/session"
	"github.com/psds-microservice/ticket-queue/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "ticket-queue"

// OpenStore подключается к хранилищу из конфига.
func OpenStore(ctx context.Context, cfg *config.Config) (*kvstore.RedisStore, error) {
	store, err := kvstore.Open(ctx, kvstore.Options{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return store, nil
}

// NewTicketService собирает сервис очереди, общий для API и CLI.
func NewTicketService(cfg *config.Config, store kvstore.Store, log *zap.Logger) *service.TicketService {
	resolver := daykey.NewResolver(
		daykey.WithPrefix(cfg.Queue.KeyPrefix),
		daykey.WithMinTTL(cfg.Queue.MinTTL),
	)
	return service.NewTicketService(store, resolver, log)
}

// API приложение: HTTP сервер (режим api).
type API struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *kvstore.RedisStore
	producer *kafka.Producer
	httpSrv  *http.Server
	shutdown func(context.Context) error
}

func NewAPI(ctx context.Context, cfg *config.Config, log *zap.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	shutdown := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Endpoint:    cfg.Otel.Endpoint,
		Insecure:    cfg.Otel.Insecure,
	}, log)
	metrics.Register(nil)

	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.TicketTopic, log)
	tracker := session.NewTracker(store, log,
		session.WithTTL(cfg.Session.TTL),
		session.WithActivityScore(cfg.Session.ActivityScore),
	)

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := router.New(router.Deps{
		Tickets:  handler.NewTicketHandler(NewTicketService(cfg, store, log), producer, cfg.Queue.DefaultServiceType, log),
		Sessions: handler.NewSessionHandler(tracker, log),
		Store:    store,
		Log:      log,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           otelhttp.NewHandler(h, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		log:      log,
		store:    store,
		producer: producer,
		httpSrv:  httpSrv,
		shutdown: shutdown,
	}, nil
}

// Run запускает HTTP сервер, блокируется до отмены ctx, затем освобождает ресурсы.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening",
		zap.String("addr", a.httpSrv.Addr),
		zap.String("swagger", base+paths.PathSwagger),
		zap.String("metrics", base+router.PathMetrics),
		zap.String("api", base+"/api/v1/"),
		zap.Bool("kafka_events", a.producer.Enabled()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
		if err := a.shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
