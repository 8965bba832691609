package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Chainflow/internal/domain"
)

// CronProcessRepo — репозиторий для работы с cron_processes.
type CronProcessRepo struct {
	pool *pgxpool.Pool
}

// NewCronProcessRepo создаёт новый CronProcessRepo.
func NewCronProcessRepo(pool *pgxpool.Pool) *CronProcessRepo {
	return &CronProcessRepo{pool: pool}
}

// Register заводит или активирует учётную запись процесса (kind, chain_id).
//
// Если записи нет — создаёт её в статусе running. Если запись есть и
// процесс уже числится живым, возвращает ErrAlreadyExists: второй
// consumer на ту же пару запускать нельзя. Остановленную или неактивную
// запись переводит обратно в running.
func (r *CronProcessRepo) Register(ctx context.Context, proc *domain.CronProcess) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID int64
	var existingStatus domain.CronProcessStatus
	err = tx.QueryRow(ctx, `
		SELECT id, status FROM cron_processes
		WHERE kind = $1 AND chain_id = $2
		FOR UPDATE
	`, proc.Kind, proc.ChainID).Scan(&existingID, &existingStatus)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO cron_processes (kind, chain_id, ip, status, last_started_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id
		`, proc.Kind, proc.ChainID, proc.IP, domain.CronProcessRunning).Scan(&proc.ID)
		if err != nil {
			return fmt.Errorf("insert cron process: %w", err)
		}

	case err != nil:
		return fmt.Errorf("select cron process: %w", err)

	case existingStatus == domain.CronProcessRunning:
		return fmt.Errorf("cron process %s for chain %d: %w", proc.Kind, proc.ChainID, ErrAlreadyExists)

	default:
		_, err = tx.Exec(ctx, `
			UPDATE cron_processes
			SET ip = $2, status = $3, last_started_at = NOW(), last_ended_at = NULL
			WHERE id = $1
		`, existingID, proc.IP, domain.CronProcessRunning)
		if err != nil {
			return fmt.Errorf("reactivate cron process: %w", err)
		}
		proc.ID = existingID
	}

	proc.Status = domain.CronProcessRunning
	return tx.Commit(ctx)
}

// StopProcess переводит процесс в stopped и фиксирует время остановки.
// Вызывается контроллером жизненного цикла после полного drain'а.
func (r *CronProcessRepo) StopProcess(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE cron_processes
		SET status = $2, last_ended_at = NOW()
		WHERE id = $1
	`, id, domain.CronProcessStopped)
	if err != nil {
		return fmt.Errorf("stop cron process: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает запись процесса по ID.
func (r *CronProcessRepo) GetByID(ctx context.Context, id int64) (*domain.CronProcess, error) {
	query := `
		SELECT id, kind, chain_id, ip, status, last_started_at, last_ended_at
		FROM cron_processes
		WHERE id = $1
	`
	return r.scanProcess(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все учётные записи процессов.
func (r *CronProcessRepo) List(ctx context.Context) ([]domain.CronProcess, error) {
	query := `
		SELECT id, kind, chain_id, ip, status, last_started_at, last_ended_at
		FROM cron_processes
		ORDER BY kind, chain_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cron processes: %w", err)
	}
	defer rows.Close()

	var procs []domain.CronProcess
	for rows.Next() {
		proc, err := r.scanProcess(rows)
		if err != nil {
			return nil, err
		}
		procs = append(procs, *proc)
	}
	return procs, rows.Err()
}

// --- Helpers ---

func (r *CronProcessRepo) scanProcess(row pgx.Row) (*domain.CronProcess, error) {
	var proc domain.CronProcess

	err := row.Scan(
		&proc.ID,
		&proc.Kind,
		&proc.ChainID,
		&proc.IP,
		&proc.Status,
		&proc.LastStartedAt,
		&proc.LastEndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cron process: %w", err)
	}

	return &proc, nil
}
