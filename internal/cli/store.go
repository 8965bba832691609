package cli

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Chainflow/internal/mq"
	"github.com/shaiso/Chainflow/internal/repo"
	"github.com/shaiso/Chainflow/internal/telemetry"
)

// Store — доступ CLI к персистентности. API-сервера в системе нет,
// поэтому утилита читает Postgres напрямую через те же репозитории,
// что и воркеры.
type Store struct {
	pool *pgxpool.Pool

	Workflows     *repo.WorkflowRepo
	Steps         *repo.StepRepo
	CronProcesses *repo.CronProcessRepo
}

// NewStore подключается к БД (DB_URL) и собирает репозитории.
func NewStore(ctx context.Context) (*Store, error) {
	pool, err := repo.NewPool(ctx)
	if err != nil {
		return nil, err
	}
	return &Store{
		pool:          pool,
		Workflows:     repo.NewWorkflowRepo(pool),
		Steps:         repo.NewStepRepo(pool),
		CronProcesses: repo.NewCronProcessRepo(pool),
	}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() {
	s.pool.Close()
}

// NewBroker подключается к RabbitMQ (RABBITMQ_URL).
func NewBroker() (*mq.Connection, error) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = mq.DefaultURL()
	}
	return mq.NewConnection(url, telemetry.SetupLogger())
}
