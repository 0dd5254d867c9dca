package repository_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/Tomlord1122/todo-files-backend/internal/config"
	"github.com/Tomlord1122/todo-files-backend/internal/database"
	"github.com/Tomlord1122/todo-files-backend/internal/repository"
)

type PostgresTodoRepositorySuite struct {
	todoRepositorySuite
	container *tcpostgres.PostgresContainer
	svc       database.Service
}

func (s *PostgresTodoRepositorySuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("todos"),
		tcpostgres.WithUsername("todo"),
		tcpostgres.WithPassword("todo"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabaseURL = dsn

	svc, err := database.New(cfg, zap.NewNop())
	s.Require().NoError(err)

	s.svc = svc
	s.DB = svc.GetDB()
	s.Repo = repository.NewGormTodoRepository(s.DB)
	s.Require().NoError(s.Repo.Initialize(ctx))
}

func (s *PostgresTodoRepositorySuite) SetupTest() {
	s.Require().NoError(s.DB.Exec("TRUNCATE TABLE todos").Error)
}

func (s *PostgresTodoRepositorySuite) TearDownSuite() {
	if s.svc != nil {
		_ = s.svc.Close()
	}
	if s.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.container.Terminate(ctx)
	}
}

func TestPostgresTodoRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	RegisterTestingT(t)
	suite.Run(t, new(PostgresTodoRepositorySuite))
}
