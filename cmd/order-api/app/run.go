package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/configs"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/cache"
	grpcadapter "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/grpc"
	httpadapter "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/http"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/http/middleware"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/kafka"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/provider"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/queue"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/repo"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/logging"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

type App struct {
	Router *gin.Engine
}

func InitWithConfig(cfg configs.Config) (*App, func(), error) {
	log := logging.Init("order-api", "./logs/app.log", cfg.App.LogLevel)

	// mysql
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MySQL.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	}
	if cfg.MySQL.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	}
	if cfg.MySQL.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("mysql ping: %w", err)
	}

	// redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	// rabbitmq
	conn, err := amqp091.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("rabbit channel: %w", err)
	}
	notifier, err := queue.NewRabbitNotifier(ch)
	if err != nil {
		return nil, nil, err
	}

	// access-control service
	grpcConn, err := grpcadapter.Dial(context.Background(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("access-control dial: %w", err)
	}
	gate := grpcadapter.NewAccessClient(grpcConn, cfg.AccessControl.Timeout, logging.New("access"))

	// repositories
	orderRepo := repo.NewMySQLOrderRepo(db)
	paymentRepo := repo.NewMySQLPaymentRepo(db)
	catalogRepo := repo.NewMySQLCatalogRepo(db)
	tenantCfgRepo := repo.NewMySQLTenantConfigRepo(db)
	auditRepo := repo.NewMySQLWebhookAuditRepo(db)
	uow := repo.NewMySQLUnitOfWork(db)

	// redis-backed stores
	idem := cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL)
	orderCache := cache.NewRedisOrderCache(rdb, cfg.Idempotency.TTL)

	// payment gateways
	providers := provider.NewFactory(
		tenantCfgRepo,
		cfg.Providers.ChargeTimeout,
		cfg.Providers.GerencianetBaseURL,
		cfg.Providers.MercadoPagoBaseURL,
		logging.New("provider"),
	)

	// use cases
	createUC := usecase.NewCreateOrder(
		orderRepo, paymentRepo, catalogRepo, providers, gate, notifier, idem,
		logging.New("create_order"), cfg.Providers.ChargeTimeout,
	)
	lifecycle := usecase.NewLifecycle(
		orderRepo, paymentRepo, providers, gate, notifier, orderCache,
		logging.New("lifecycle"),
	)
	reconciler := usecase.NewReconciler(
		uow, paymentRepo, providers, lifecycle, idem, auditRepo, notifier,
		orderCache, logging.New("reconcile"),
	)

	// inbound kafka status events
	stopKafka, err := startKafkaListener(cfg, lifecycle)
	if err != nil {
		return nil, nil, err
	}

	// http
	h := httpadapter.NewOrderHandler(createUC, lifecycle)
	wh := httpadapter.NewWebhookHandler(reconciler)
	th := httpadapter.NewTokenHandler(cfg)
	authz := middleware.NewAuthz(cfg)
	router := httpadapter.NewRouter(h, wh, th, authz, logging.New("http"))

	log.Info("wired", "tenant_providers", "mysql", "notify", "rabbitmq")

	cleanup := func() {
		stopKafka()
		_ = ch.Close()
		_ = conn.Close()
		_ = grpcConn.Close()
		_ = rdb.Close()
		_ = db.Close()
	}
	return &App{Router: router}, cleanup, nil
}

func startKafkaListener(cfg configs.Config, lifecycle *usecase.Lifecycle) (func(), error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.TopicStatus == "" {
		return func() {}, nil
	}

	grp, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("kafka group: %w", err)
	}

	log := logging.New("kafka")
	h := kafka.NewOrderStatusChangedHandler(lifecycle, log)
	consumer := kafka.NewConsumer(grp, []string{cfg.Kafka.TopicStatus}, h.Handle, log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("kafka consumer stopped", "err", err)
		}
	}()

	return func() {
		cancel()
		_ = grp.Close()
	}, nil
}
