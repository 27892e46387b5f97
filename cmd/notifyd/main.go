// Command notifyd is the composition root: it wires every store, adapter,
// and engine the notification core needs and runs them as cooperating
// goroutines until told to shut down.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notifyengine/internal/admin"
	"notifyengine/internal/audit"
	"notifyengine/internal/config"
	"notifyengine/internal/dedupstore"
	"notifyengine/internal/digestengine"
	"notifyengine/internal/digestqueue"
	"notifyengine/internal/dlqstore"
	"notifyengine/internal/encryption"
	"notifyengine/internal/gateways"
	"notifyengine/internal/history"
	"notifyengine/internal/ingestor"
	"notifyengine/internal/model"
	"notifyengine/internal/preferences"
	"notifyengine/internal/providers"
	"notifyengine/internal/ratebudget"
	"notifyengine/internal/retryengine"
	"notifyengine/internal/router"
	"notifyengine/pkg/circuitbreaker"
	"notifyengine/pkg/db"
	"notifyengine/pkg/logger"
	"notifyengine/pkg/mq"
	"notifyengine/pkg/outbox"
	"notifyengine/pkg/redis"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}

	cfg, err := config.Load(env, configDir)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	dbPool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("connect to postgres", zap.Error(err))
	}
	defer dbPool.Close()

	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	phoneEnc, err := encryption.NewEncryptor([]byte(cfg.Encryption.FieldEncryptionKey), "phone")
	if err != nil {
		log.Fatal("build phone encryptor", zap.Error(err))
	}
	emailEnc, err := encryption.NewEncryptor([]byte(cfg.Encryption.FieldEncryptionKey), "email")
	if err != nil {
		log.Fatal("build email encryptor", zap.Error(err))
	}

	prefStore := preferences.NewStore(dbPool, phoneEnc, emailEnc)
	prefCache := preferences.NewCache(prefStore, cfg.Preferences.CacheTTL())

	historyStore := history.NewStore(dbPool)
	dlqStore := dlqstore.NewStore(dbPool)
	dedupStore := dedupstore.New(rdb, log)
	budgetStore := ratebudget.New(rdb, log)
	digestQueue := digestqueue.New(rdb)

	outboxRepo := outbox.NewRepository(dbPool)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("connect outbox publisher", zap.Error(err))
	}
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithSourceService(cfg.Audit.SourceService).
		WithInterval(cfg.Audit.DispatchInterval()).
		WithBatchSize(cfg.Audit.DispatchBatchSize)
	auditPublisher := audit.NewPublisher(outboxRepo, cfg.Audit.Topic, cfg.Audit.SourceService)

	breakerCfg := circuitbreaker.Config{
		FailureThreshold:    cfg.ProviderCircuit.FailureThreshold,
		SuccessThreshold:    2,
		Timeout:             cfg.ProviderCircuit.OpenTimeout(),
		HalfOpenMaxRequests: 3,
	}

	socketAdapter := providers.WithCircuitBreaker(
		providers.NewSocketAdapter(cfg.SocketGateway.BaseURL, cfg.SocketGateway.APIKey, cfg.SocketGateway.Timeout(), cfg.SocketGateway.BaseURL != "", log),
		breakerCfg, log)

	smsGateway := gateways.NewSMSGateway(cfg.SMSGateway.BaseURL, cfg.SMSGateway.APIKey, time.Duration(cfg.SMSGateway.TimeoutMS)*time.Millisecond, cfg.SMSGateway.QPS, log)
	smsAdapter := providers.WithCircuitBreaker(
		providers.NewSMSAdapter(cfg.SMSGateway.BaseURL != "", log, smsGateway.Send),
		breakerCfg, log)

	emailGateway := gateways.NewEmailGateway(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.UseTLS, log)
	emailAdapter := providers.WithCircuitBreaker(
		providers.NewEmailAdapter(cfg.SMTP.Host != "", true, log, emailGateway.Send),
		breakerCfg, log)

	pushGateway := gateways.NewPushGateway(cfg.PushGateway.BaseURL, cfg.PushGateway.APIKey, time.Duration(cfg.PushGateway.TimeoutMS)*time.Millisecond, cfg.PushGateway.QPS, log)
	pushAdapter := providers.WithCircuitBreaker(
		providers.NewPushAdapter(cfg.PushGateway.BaseURL != "", log, pushGateway.Send),
		breakerCfg, log)

	adapters := map[model.Channel]providers.Adapter{
		model.ChannelSocket: socketAdapter,
		model.ChannelSMS:    smsAdapter,
		model.ChannelEmail:  emailAdapter,
		model.ChannelPush:   pushAdapter,
	}

	rt := router.New(router.Config{
		DB:              dbPool,
		History:         historyStore,
		DLQ:             dlqStore,
		Preferences:     prefCache,
		PreferenceStore: prefStore,
		Dedup:           dedupStore,
		Budget:          budgetStore,
		Digest:          digestQueue,
		Audit:           auditPublisher,
		Adapters:        adapters,
		Logger:          log,
		FanoutPoolSize:  cfg.Ingestor.FanoutPoolSize,
	})

	consumers := map[string]ingestor.BusConsumer{}
	for _, topic := range cfg.Ingestor.Topics {
		consumer, err := mq.NewConsumer(cfg.MQ.URL, "notifyengine."+topic, topic+".*", log)
		if err != nil {
			log.Fatal("create bus consumer", zap.String("topic", topic), zap.Error(err))
		}
		consumers[topic] = consumer
	}
	ing := ingestor.New(consumers, rt, dlqStore, log)

	retry := retryengine.New(retryengine.Config{
		History:      historyStore,
		DLQ:          dlqStore,
		Router:       rt,
		Logger:       log,
		ScanInterval: "@every " + cfg.Retry.ScanInterval().String(),
		BatchSize:    cfg.Retry.ScanBatchSize,
		MaxAttempts:  cfg.Retry.MaxAttempts,
	})

	digest := digestengine.New(digestengine.Config{
		Queue:   digestQueue,
		Prefs:   prefStore,
		History: historyStore,
		Email:   emailAdapter,
		Logger:  log,
	})

	adminAPI := admin.New(retry, digest, budgetStore, outboxRepo)
	_ = adminAPI // exposed to an out-of-scope RPC/HTTP admin surface

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Start(ctx)
	ing.Start(ctx)
	if err := retry.Start(ctx); err != nil {
		log.Fatal("start retry engine", zap.Error(err))
	}
	if err := digest.Start(ctx); err != nil {
		log.Fatal("start digest engine", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("notifyengine started",
		zap.String("env", env),
		zap.Strings("ingestor_topics", cfg.Ingestor.Topics),
		zap.String("metrics_addr", cfg.Metrics.ListenAddr),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down", zap.Duration("grace", cfg.Shutdown.Grace()))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace())
	defer shutdownCancel()

	cancel()
	retry.Stop()
	digest.Stop()
	ing.Close()
	_ = httpServer.Shutdown(shutdownCtx)

	log.Info("shutdown complete")
}
