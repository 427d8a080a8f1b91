package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"account-service/internal/audit"
	"account-service/internal/bucketing"
	"account-service/internal/client"
	"account-service/internal/config"
	"account-service/internal/encryption"
	"account-service/internal/events"
	"account-service/internal/hashing"
	redisrepo "account-service/internal/repository/redis"
	"account-service/internal/repository/scylla"
	"account-service/internal/search"
	"account-service/internal/service"
	"account-service/internal/tls"
	"account-service/internal/token"
	"account-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.BucketingManager
	tokenService      *token.Service

	// Stores and side channels
	credentialStore *scylla.CredentialStore
	profileStore    *scylla.ProfileStore
	sessionCache    *redisrepo.SessionCache
	publisher       events.Publisher
	auditor         *audit.Recorder
	profileIndex    *search.ProfileIndex

	// Services
	authService    *service.AuthService
	profileService *service.ProfileService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies. Scylla and
// the token key pair are hard requirements; the side-channel clients degrade
// to no-ops when unavailable outside production.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewManager(&cfg.Server)
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		return nil, err
	}
	f.initializeStores()
	f.initializeServices()

	util.Info("Factory initialized successfully",
		zap.String("environment", cfg.Environment),
		zap.Bool("tls_enabled", cfg.Server.EnableTLS),
		zap.Bool("kms_enabled", cfg.KMS.Enabled),
	)
	return f, nil
}

func (f *Factory) initializeClients() error {
	var initErrors []error

	// ScyllaDB is the store of record; failure here is always fatal.
	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient

	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
	}

	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", zap.Error(err))
	} else {
		f.kafkaProducer = producer
	}

	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
	}

	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", zap.Error(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager()

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	f.encryptionManager = encryption.NewManager(f.config, kmsClient)

	tokenService, err := token.NewService(f.config.Token)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	f.tokenService = tokenService

	return nil
}

func (f *Factory) initializeStores() {
	f.credentialStore = scylla.NewCredentialStore(f.scyllaClient, f.bucketingManager)
	f.profileStore = scylla.NewProfileStore(f.scyllaClient, f.bucketingManager)

	sessionTTL := time.Duration(f.config.Token.AccessTokenValidityDays) * 24 * time.Hour
	f.sessionCache = redisrepo.NewSessionCache(f.redisClient, sessionTTL)

	if f.kafkaProducer != nil {
		f.publisher = events.NewKafkaPublisher(f.kafkaProducer)
	} else {
		f.publisher = events.NopPublisher{}
	}
	f.auditor = audit.NewRecorder(f.clickhouseClient)
	if f.esClient != nil {
		f.profileIndex = search.NewProfileIndex(f.esClient, f.config.Elasticsearch.ProfileIndex)
	}
}

func (f *Factory) initializeServices() {
	f.authService = service.NewAuthService(service.AuthServiceDeps{
		Config:      f.config,
		Credentials: f.credentialStore,
		Profiles:    f.profileStore,
		Hasher:      f.hasher,
		Tokens:      f.tokenService,
		Sessions:    f.sessionCache,
		Publisher:   f.publisher,
		Auditor:     f.auditor,
		Index:       f.profileIndex,
		Cipher:      f.encryptionManager,
	})
	f.profileService = service.NewProfileService(f.profileStore, f.profileIndex, f.sessionCache, f.encryptionManager)
}

func (f *Factory) Config() *config.Config          { return f.config }
func (f *Factory) TLSManager() *tls.Manager        { return f.tlsManager }
func (f *Factory) TokenService() *token.Service    { return f.tokenService }
func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}
func (f *Factory) ProfileService() *service.ProfileService {
	return f.profileService
}

// HealthCheck probes every initialized dependency concurrently and returns
// the failures by name.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		healthErrors[name] = err
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			record("scylla", err)
		}
		return nil
	})
	if f.redisClient != nil {
		g.Go(func() error {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				record("redis", err)
			}
			return nil
		})
	}
	if f.esClient != nil {
		g.Go(func() error {
			if err := f.esClient.HealthCheck(); err != nil {
				record("elasticsearch", err)
			}
			return nil
		})
	}
	if f.clickhouseClient != nil {
		g.Go(func() error {
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				record("clickhouse", err)
			}
			return nil
		})
	}
	if f.kafkaProducer != nil {
		g.Go(func() error {
			if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
				record("kafka", err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return healthErrors
}

// IsHealthy reports whether every hard dependency passes its health check;
// Kafka is advisory.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.auditor != nil {
			f.auditor.Close()
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", zap.Error(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", zap.Error(err))
			}
		}
		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", zap.Error(err))
			}
		}

		util.Info("Factory shutdown complete")
		util.Sync()
	})
	return nil
}
