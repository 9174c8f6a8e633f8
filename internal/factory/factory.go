package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketplace-auth/internal/bucketing"
	"marketplace-auth/internal/client"
	"marketplace-auth/internal/config"
	"marketplace-auth/internal/delivery"
	"marketplace-auth/internal/encryption"
	"marketplace-auth/internal/events"
	"marketplace-auth/internal/hashing"
	"marketplace-auth/internal/otp"
	"marketplace-auth/internal/repository/memory"
	mongorepo "marketplace-auth/internal/repository/mongo"
	redisrepo "marketplace-auth/internal/repository/redis"
	"marketplace-auth/internal/repository/scylla"
	"marketplace-auth/internal/service"
	"marketplace-auth/internal/tls"
	"marketplace-auth/internal/token"
	"marketplace-auth/internal/util"
	"marketplace-auth/internal/worker"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	// Clients
	mongoClient      *client.MongoClient
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	tokenIssuer       *token.Issuer

	// Repositories
	users   service.UserStore
	vendors service.VendorStore
	ledger  otp.Ledger

	engine         *otp.Engine
	dispatcher     *delivery.Dispatcher
	publisher      *events.Publisher
	serviceFactory *service.ServiceFactory
	sweeper        *worker.Sweeper

	checks map[string]healthChecker

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and builds every dependency. Optional backends that fail
// to start are fatal in production and logged otherwise.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return New(cfg, logger)
}

// New builds the dependency graph for an already loaded configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	factory := &Factory{
		config: cfg,
		logger: logger,
		checks: make(map[string]healthChecker),
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(cfg, logger)
	}

	if err := factory.initializeClients(); err != nil {
		factory.closeClients()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		factory.closeClients()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	if err := factory.initializeRepositories(); err != nil {
		factory.closeClients()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	factory.initializeEvents()
	factory.initializeDelivery()

	factory.engine = otp.NewEngine(factory.ledger, cfg.OTP, logger, factory.cooldownOption())
	factory.sweeper = worker.NewSweeper(factory.engine, cfg.OTP.SweepInterval, logger)

	logger.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_driver", cfg.Store.Driver),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("delivery_simulated", factory.dispatcher.Simulated()),
		util.Strings("event_sinks", factory.publisher.Sinks()),
	)

	return factory, nil
}

// initializeClients connects every enabled backend and health checks it once.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// MongoDB
	if f.config.Store.Driver == config.StoreMongo {
		c, err := client.NewMongoClient(f.config, f.logger)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		f.mongoClient = c
		f.checks["mongo"] = c
	}

	// Redis
	if f.config.Redis.Enabled {
		if c, err := client.NewRedisClient(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else if err := c.HealthCheck(ctx); err != nil {
			_ = c.Close()
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			f.redisClient = c
			f.checks["redis"] = c
			f.logger.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if f.config.Scylla.Enabled {
		if c, err := scylla.NewScyllaClient(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = c
			f.checks["scylla"] = c
			f.logger.Info("ScyllaDB client initialized")
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, f.logger); err != nil {
			f.logger.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			f.checks["kafka"] = producer
			f.logger.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			f.checks["elasticsearch"] = c
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			f.checks["clickhouse"] = c
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			f.logger.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, bucketing and token issuance
func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)
	f.tokenIssuer = token.NewIssuer(f.config.JWT)

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	em, err := encryption.NewEncryptionManager(f.config, kmsClient, f.logger)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	f.encryptionManager = em
	if em.Ephemeral(f.config) {
		f.logger.Warn("SEAL_LOCAL_KEY not set; pending registrations will not survive a restart")
	}

	f.logger.Info("Managers initialized successfully",
		util.Bool("kms", kmsClient != nil),
		util.Int("event_buckets", f.config.Bucketing.EventBuckets),
	)
	return nil
}

func (f *Factory) initializeRepositories() error {
	if f.mongoClient == nil {
		f.users = memory.NewUserStore()
		f.vendors = memory.NewVendorStore()
		f.ledger = memory.NewOTPLedger()
		f.logger.Warn("Using in-memory stores; data is lost on restart")
		return nil
	}

	mc := f.config.Mongo
	users := f.mongoClient.Collection(mc.UsersCollection)
	otps := f.mongoClient.Collection(mc.OTPCollection)
	vendors := f.mongoClient.Collection(mc.VendorCollection)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mongorepo.EnsureIndexes(ctx, users, otps, vendors, int32(mc.TTLIndexSeconds)); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}

	f.users = mongorepo.NewUserRepository(users, f.logger)
	f.vendors = mongorepo.NewVendorRepository(vendors, f.logger)
	f.ledger = mongorepo.NewOTPRepository(otps, f.logger)
	return nil
}

// initializeEvents registers one sink per enabled backend.
func (f *Factory) initializeEvents() {
	var sinks []events.Sink

	if f.kafkaProducer != nil {
		sinks = append(sinks, events.NewKafkaSink(f.kafkaProducer))
	}
	if f.scyllaClient != nil {
		repo := scylla.NewSecurityEventRepository(f.scyllaClient, f.bucketingManager, f.logger)
		sinks = append(sinks, events.NewScyllaSink(repo))
	}
	if f.esClient != nil {
		sinks = append(sinks, events.NewElasticsearchSink(f.esClient))
	}
	if f.clickhouseClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sink, err := events.NewClickHouseSink(ctx, f.clickhouseClient)
		cancel()
		if err != nil {
			f.logger.Warn("ClickHouse event sink disabled", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	f.publisher = events.NewPublisher(f.config.Events, f.logger, sinks...)
	f.publisher.Start()
}

func (f *Factory) initializeDelivery() {
	email := delivery.NewEmailSender(f.config, f.logger)
	sms := delivery.NewSMSRoute(f.config.SMS, email, f.logger)
	f.dispatcher = delivery.NewDispatcher(f.config.AppName, email, sms, f.config.SMS.CountryCode, f.logger)
}

func (f *Factory) cooldownOption() otp.Option {
	if f.redisClient != nil {
		return otp.WithCooldown(redisrepo.NewCooldownCache(f.redisClient, f.logger))
	}
	return otp.WithCooldown(memory.NewCooldown(time.Now))
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.users,
			f.vendors,
			f.engine,
			f.dispatcher,
			f.tokenIssuer,
			f.hasher,
			f.encryptionManager,
			f.publisher,
			f.config,
			f.logger,
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes every connected backend and the stores. A nil entry means healthy.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error, len(f.checks)+3)

	probe := func(name string, hc healthChecker) {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		results[name] = hc.HealthCheck(ctx)
	}
	for name, hc := range f.checks {
		probe(name, hc)
	}
	for name, store := range map[string]any{"users": f.users, "vendors": f.vendors, "otp_ledger": f.ledger} {
		if hc, ok := store.(healthChecker); ok {
			probe(name, hc)
		}
	}
	return results
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	for name, err := range f.HealthCheck(ctx) {
		if err != nil && name != "kafka" {
			return false
		}
	}
	return true
}

// Close drains the event publisher and then closes every client. Safe to call more than once.
func (f *Factory) Close(ctx context.Context) error {
	var closeErr error
	f.closeOnce.Do(func() {
		close(f.closed)
		f.logger.Info("Shutting down factory...")

		if f.sweeper != nil {
			f.sweeper.Stop()
		}
		if f.publisher != nil {
			if err := f.publisher.Close(ctx); err != nil {
				f.logger.Error("Auth event publisher did not drain", util.ErrorField(err))
				closeErr = err
			}
		}

		f.closeClients()

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		f.logger.Info("Factory shutdown completed")
		util.Sync()
	})
	return closeErr
}

func (f *Factory) closeClients() {
	type closer interface{ Close() error }
	var closers []struct {
		name string
		c    closer
	}
	add := func(name string, c closer) {
		closers = append(closers, struct {
			name string
			c    closer
		}{name, c})
	}
	if f.clickhouseClient != nil {
		add("ClickHouse", f.clickhouseClient)
	}
	if f.esClient != nil {
		add("Elasticsearch", f.esClient)
	}
	if f.kafkaProducer != nil {
		add("Kafka", f.kafkaProducer)
	}
	if f.scyllaClient != nil {
		add("ScyllaDB", f.scyllaClient)
	}
	if f.redisClient != nil {
		add("Redis", f.redisClient)
	}
	if f.mongoClient != nil {
		add("MongoDB", f.mongoClient)
	}

	for _, entry := range closers {
		if err := entry.c.Close(); err != nil {
			f.logger.Error("Failed to close client", util.String("client", entry.name), util.ErrorField(err))
		} else {
			f.logger.Info("Client closed", util.String("client", entry.name))
		}
	}
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Logger() *zap.Logger {
	return f.logger
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Sweeper() *worker.Sweeper {
	return f.sweeper
}

func (f *Factory) Publisher() *events.Publisher {
	return f.publisher
}
