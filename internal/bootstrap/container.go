package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"course-subscription-be/internal/config"
	"course-subscription-be/internal/controller"
	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/internal/pkg/mailer"
	"course-subscription-be/internal/pkg/metrics"
	"course-subscription-be/internal/repository/unitofwork"
	"course-subscription-be/internal/service"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/billing/guard"
	"course-subscription-be/pkg/billing/verification"
	"course-subscription-be/pkg/chain"
	"course-subscription-be/pkg/events"
	"course-subscription-be/pkg/lock"
	"course-subscription-be/pkg/payment/provider/midtrans"
	"course-subscription-be/pkg/referral"

	pktNats "course-subscription-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SubscriptionController controller.ISubscriptionController

	// Domain components (exposed for the CLI and for shutdown)
	Engine      *verification.Engine
	Coordinator *activation.Coordinator
	Guard       *guard.Guard
	Service     service.ISubscriptionService

	Logger   logger.ILogger
	Registry *prometheus.Registry

	db      *gorm.DB
	closers []func() error
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	c := &Container{db: db}

	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	auditLogger := logger.NewIsolatedLogger(cfg.App.AuditLogFilePath)
	c.Logger = sysLogger
	c.closers = append(c.closers, auditLogger.Sync)

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(c.Registry)
	if err != nil {
		return nil, err
	}

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
		cfg.App.OpsAlertEmail,
		sysLogger,
	)

	// 2. Event Bus
	publisher := c.newPublisher(cfg, sysLogger)

	// 3. Infrastructure
	locker := c.newLocker(cfg, sysLogger)

	var reader chain.Reader
	if cfg.Chain.RPCURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Chain.Timeout)
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		cancel()
		if err != nil {
			sysLogger.Warn("BOOT", "Chain RPC unavailable; tx hash verification disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			reader = client
			c.closers = append(c.closers, func() error { client.Close(); return nil })
		}
	}
	inspector := chain.NewInspector(reader, cfg.Chain.StablecoinAddr, cfg.Chain.TreasuryAddr, cfg.Chain.TokenDecimals, cfg.Chain.Timeout)

	paymentProvider := midtrans.New(cfg.Midtrans, cfg.Billing)

	// 4. Domain
	referralHook := referral.NewActivationHook(referral.NewEventProcessor(publisher, sysLogger))
	c.Coordinator = activation.NewCoordinator(uowFactory, sysLogger, recorder, activation.Options{
		Plan:        cfg.Billing.PlanSlug,
		Period:      cfg.Billing.Period,
		HookTimeout: cfg.Verification.HookTimeout,
	}, referralHook)

	c.Guard = guard.New(uowFactory, sysLogger, auditLogger, emailService,
		cfg.Verification.RateLimitWindow, cfg.Verification.RateLimitMax)

	c.Engine = verification.NewEngine(verification.Dependencies{
		UnitOfWork: uowFactory,
		Provider:   paymentProvider,
		Chain:      inspector,
		Activator:  c.Coordinator,
		Auditor:    c.Guard,
		Logger:     sysLogger,
		Metrics:    recorder,
	}, verification.Config{
		Price:            cfg.Billing.PriceUsdc,
		Tolerance:        cfg.Billing.FeeTolerance,
		PublicStrategies: publicStrategies(cfg.Verification.PublicStrategies, sysLogger),
		PendingLookback:  cfg.Verification.PendingLookback,
		TxMatchWindow:    cfg.Verification.TxMatchWindow,
		TimestampWindow:  cfg.Verification.TimestampWindow,
	})

	// 5. Services & Controllers
	c.Service = service.NewSubscriptionService(
		uowFactory,
		c.Engine,
		c.Coordinator,
		c.Guard,
		locker,
		paymentProvider,
		cfg,
		sysLogger,
	)
	c.SubscriptionController = controller.NewSubscriptionController(c.Service)

	return c, nil
}

func (c *Container) newPublisher(cfg *config.Config, sysLogger logger.ILogger) events.Publisher {
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(context.Background(), cfg.App.NatsURL, sysLogger)
		if err == nil {
			c.closers = append(c.closers, func() error { natsPub.Close(); return nil })
			return natsPub
		}
		sysLogger.Warn("BOOT", "Failed to connect to NATS; using in-process bus", map[string]interface{}{
			"error": err.Error(),
		})
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, pubSub.Close)
	return events.NewChannelPublisher(pubSub)
}

func (c *Container) newLocker(cfg *config.Config, sysLogger logger.ILogger) lock.Locker {
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			sysLogger.Warn("BOOT", "Redis unavailable; using in-process lock", map[string]interface{}{
				"error": err.Error(),
			})
			_ = rdb.Close()
			return lock.NewLocalLocker(cfg.Verification.LockTTL)
		}
		c.closers = append(c.closers, rdb.Close)
		return lock.NewRedisLocker(rdb, cfg.Verification.LockTTL)
	}
	return lock.NewLocalLocker(cfg.Verification.LockTTL)
}

func publicStrategies(names []string, sysLogger logger.ILogger) []entity.VerificationMethod {
	var out []entity.VerificationMethod
	for _, name := range names {
		switch m := entity.VerificationMethod(name); m {
		case entity.MethodOrderId, entity.MethodTxHash, entity.MethodTimestamp:
			out = append(out, m)
		default:
			sysLogger.Warn("BOOT", "Ignoring unknown verification strategy", map[string]interface{}{
				"strategy": name,
			})
		}
	}
	return out
}

// Ping reports whether the ledger database is reachable.
func (c *Container) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Shutdown waits for in-flight activation hooks and ops alerts, then closes
// connections in reverse order of creation.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if err := c.Coordinator.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain activation hooks: %w", err))
	}
	if err := c.Guard.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for ops alerts: %w", err))
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = c.Logger.Sync()
	return errors.Join(errs...)
}
