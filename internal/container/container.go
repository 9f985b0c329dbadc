// Package container builds the shared components once at startup so the
// router and the commands can pick what they need.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/config"
	"github.com/iYoNuttxD/user-service-microservice/internal/application"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/repository"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/service"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/crypto"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/memory"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/messaging"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/metrics"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/opa"
	pginfra "github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/postgres"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/search"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/token"
	"github.com/iYoNuttxD/user-service-microservice/pkg/helpers"
)

type Container struct {
	Config  *config.Config
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	PGPool      *pgxpool.Pool // nil with the memory driver
	Repo        repository.UserRepository
	Credentials *service.CredentialService
	Issuer      *token.Issuer
	Verifier    *token.Verifier
	KeySet      *token.RemoteKeySet // nil when verifying with the shared secret
	Policy      *opa.Client
	Redis       *redis.Client // nil disables rate limiting
	Index       *search.UserIndex
	Users       *application.UserService

	closers []func()
}

// Build wires every component from cfg. Mandatory pieces (storage, tokens)
// fail the build; optional ones (events, search, redis) are skipped with a
// warning when unreachable.
func Build(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: metrics.New()}

	if err := c.buildStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.buildAuth(); err != nil {
		c.Close()
		return nil, err
	}
	c.Policy = opa.NewClient(opa.Config{
		URL:        cfg.OPAURL,
		PolicyPath: cfg.OPAPolicyPath,
		Timeout:    cfg.OPATimeout,
		FailOpen:   cfg.OPAFailOpen,
	}, logger, opa.WithObserver(c.Metrics))

	if cfg.RedisAddr != "" {
		c.Redis = helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		c.closers = append(c.closers, func() { _ = c.Redis.Close() })
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.Redis.Ping(pctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, rate limiter will fail open")
		}
		cancel()
	}

	deps := application.Deps{
		Repo:        c.Repo,
		Credentials: c.Credentials,
		Tokens:      c.Issuer,
		Metrics:     c.Metrics,
		Logger:      logger,
	}
	if cfg.EventsEnabled {
		pub, err := messaging.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unavailable, user events disabled")
		} else {
			c.closers = append(c.closers, pub.Close)
			deps.Events = pub
		}
	}
	if cfg.SearchEnabled {
		es, err := search.NewClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.WithError(err).Warn("elasticsearch client init failed, search disabled")
		} else {
			c.Index = search.NewUserIndex(es, cfg.ESUsersIndex)
			deps.Index = c.Index
		}
	}
	c.Users = application.NewUserService(deps)
	return c, nil
}

func (c *Container) buildStorage(ctx context.Context) error {
	cfg := c.Config
	if cfg.StorageDriver == config.StorageMemory {
		c.Logger.Warn("using in-memory user storage, data is lost on restart")
		c.Repo = memory.NewUserRepository()
		return nil
	}
	dsn := cfg.PostgresDSN()
	if err := pginfra.Migrate(dsn, cfg.MigrationsDir, c.Logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{
		DSN:         dsn,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		MaxConnLife: cfg.DBMaxConnLife,
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	c.closers = append(c.closers, pool.Close)
	c.PGPool = pool
	c.Repo = pginfra.NewUserRepository(pool)
	return nil
}

func (c *Container) buildAuth() error {
	cfg := c.Config
	hasher, err := crypto.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	c.Credentials = service.NewCredentialService(hasher)

	c.Issuer, err = token.NewIssuer(token.IssuerConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ExpiresIn: cfg.JWTExpiresIn,
	})
	if err != nil {
		return err
	}

	vc := token.VerifierConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience}
	if cfg.JWKSURI != "" {
		c.KeySet = token.NewRemoteKeySet(cfg.JWKSURI,
			token.WithKeySetLogger(c.Logger),
			token.WithRefreshHook(c.Metrics.JWKSRefresh),
		)
		c.KeySet.Start(cfg.JWKSRefreshInterval)
		c.closers = append(c.closers, c.KeySet.Close)
		vc.KeySet = c.KeySet
	}
	c.Verifier, err = token.NewVerifier(vc)
	if err != nil {
		return err
	}
	c.Logger.WithField("jwks", c.Verifier.UsesKeySet()).Info("token verifier configured")
	return nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
