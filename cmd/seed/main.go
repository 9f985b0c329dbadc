package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/config"
	"github.com/iYoNuttxD/user-service-microservice/internal/container"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/service"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/valueobject"
	"github.com/iYoNuttxD/user-service-microservice/pkg/helpers"
)

// seed creates the first administrator so the admin routes are reachable.
// Re-running it is a no-op once the account exists.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)

	if cfg.SeedAdminPassword == "" {
		logger.Fatal("SEED_ADMIN_PASSWORD is required")
	}
	if cfg.StorageDriver != config.StoragePostgres {
		logger.Fatalf("seeding needs STORAGE_DRIVER=%s", config.StoragePostgres)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := container.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}
	defer c.Close()

	exists, err := c.Repo.ExistsByEmail(ctx, cfg.SeedAdminEmail)
	if err != nil {
		logger.WithError(err).Fatal("lookup failed")
	}
	if exists {
		logger.WithField("email", cfg.SeedAdminEmail).Info("admin already present, nothing to do")
		return
	}

	u, err := c.Credentials.CreateUser(ctx, service.NewUserInput{
		Email:     cfg.SeedAdminEmail,
		Password:  cfg.SeedAdminPassword,
		FirstName: cfg.SeedAdminFirstName,
		LastName:  cfg.SeedAdminLastName,
		Roles:     []string{valueobject.RoleNameUser, valueobject.RoleNameAdmin},
	})
	if err != nil {
		logger.WithError(err).Fatal("invalid admin account")
	}
	if err := c.Repo.Save(ctx, u); err != nil {
		logger.WithError(err).Fatal("failed to save admin")
	}
	logger.WithFields(logrus.Fields{"user_id": u.ID(), "email": u.Email().Value()}).Info("seeded admin")
}
