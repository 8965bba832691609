package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Chainflow/internal/domain"
)

// StepRepo — репозиторий для работы с workflow_steps.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

// TryAcquire пытается захватить шаг под выполнение.
//
// Optimistic insert под UNIQUE-колонкой unique_token: ON CONFLICT DO
// NOTHING превращает вставку в compare-and-set lock. Возвращает true,
// если строка создана этим вызовом (шаг наш), и false, если токен уже
// занят (дубликат доставки или конкурирующий процесс).
func (r *StepRepo) TryAcquire(ctx context.Context, step *domain.WorkflowStep) (bool, error) {
	paramsJSON, err := json.Marshal(step.RequestParams)
	if err != nil {
		return false, fmt.Errorf("marshal request_params: %w", err)
	}

	query := `
		INSERT INTO workflow_steps (workflow_id, kind, status, unique_token, request_params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (unique_token) DO NOTHING
		RETURNING id
	`
	err = r.pool.QueryRow(ctx, query,
		step.WorkflowID,
		step.Kind,
		step.Status,
		step.UniqueToken,
		paramsJSON,
		step.CreatedAt,
		step.UpdatedAt,
	).Scan(&step.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Конфликт по unique_token: шаг уже захвачен.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert workflow step: %w", err)
	}
	return true, nil
}

// Complete фиксирует итог выполнения шага.
func (r *StepRepo) Complete(ctx context.Context, step *domain.WorkflowStep) error {
	responseJSON, err := json.Marshal(step.ResponseData)
	if err != nil {
		return fmt.Errorf("marshal response_data: %w", err)
	}

	query := `
		UPDATE workflow_steps
		SET status = $2, response_data = $3, error = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		step.ID,
		step.Status,
		responseJSON,
		nullString(step.Error),
	)
	if err != nil {
		return fmt.Errorf("update workflow step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch обновляет updated_at у шага в processing.
//
// Вызывается перед переигровкой pending-шага, чтобы sweeper не принял
// живое ожидание за упавший процесс.
func (r *StepRepo) Touch(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `UPDATE workflow_steps SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch workflow step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FetchStatus возвращает статус шага по (workflow_id, kind).
// ErrNotFound — шаг ещё не запускался.
func (r *StepRepo) FetchStatus(ctx context.Context, workflowID int64, kind domain.StepKind) (domain.StepStatus, error) {
	var status domain.StepStatus
	err := r.pool.QueryRow(ctx, `
		SELECT status FROM workflow_steps WHERE workflow_id = $1 AND kind = $2
	`, workflowID, kind).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch step status: %w", err)
	}
	return status, nil
}

// FetchResponseData возвращает response_data шага по (workflow_id, kind).
func (r *StepRepo) FetchResponseData(ctx context.Context, workflowID int64, kind domain.StepKind) (map[string]any, error) {
	var responseJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT response_data FROM workflow_steps WHERE workflow_id = $1 AND kind = $2
	`, workflowID, kind).Scan(&responseJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch step response_data: %w", err)
	}

	if responseJSON == nil {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(responseJSON, &data); err != nil {
		return nil, fmt.Errorf("unmarshal response_data: %w", err)
	}
	return data, nil
}

// GetByWorkflowAndKind возвращает шаг по (workflow_id, kind).
func (r *StepRepo) GetByWorkflowAndKind(ctx context.Context, workflowID int64, kind domain.StepKind) (*domain.WorkflowStep, error) {
	query := `
		SELECT id, workflow_id, kind, status, unique_token, request_params, response_data, error, created_at, updated_at
		FROM workflow_steps
		WHERE workflow_id = $1 AND kind = $2
	`
	return r.scanStep(r.pool.QueryRow(ctx, query, workflowID, kind))
}

// ListByWorkflow возвращает все шаги workflow в порядке создания.
func (r *StepRepo) ListByWorkflow(ctx context.Context, workflowID int64) ([]domain.WorkflowStep, error) {
	query := `
		SELECT id, workflow_id, kind, status, unique_token, request_params, response_data, error, created_at, updated_at
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list steps by workflow: %w", err)
	}
	defer rows.Close()

	var steps []domain.WorkflowStep
	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// ListStale возвращает шаги, висящие в processing дольше threshold.
// Такие шаги — след упавшего процесса; sweeper переигрывает их.
func (r *StepRepo) ListStale(ctx context.Context, threshold time.Duration, limit int) ([]domain.WorkflowStep, error) {
	query := `
		SELECT id, workflow_id, kind, status, unique_token, request_params, response_data, error, created_at, updated_at
		FROM workflow_steps
		WHERE status = $1 AND updated_at < NOW() - $2::interval
		ORDER BY updated_at ASC
		LIMIT $3
	`
	interval := fmt.Sprintf("%d seconds", int64(threshold.Seconds()))
	rows, err := r.pool.Query(ctx, query, domain.StepStatusProcessing, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.WorkflowStep
	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// CountByWorkflowAndStatus возвращает количество шагов workflow в статусе.
func (r *StepRepo) CountByWorkflowAndStatus(ctx context.Context, workflowID int64, status domain.StepStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM workflow_steps WHERE workflow_id = $1 AND status = $2
	`, workflowID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count steps: %w", err)
	}
	return count, nil
}

// --- Helpers ---

func (r *StepRepo) scanStep(row pgx.Row) (*domain.WorkflowStep, error) {
	var step domain.WorkflowStep
	var paramsJSON, responseJSON []byte
	var stepError *string

	err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.Kind,
		&step.Status,
		&step.UniqueToken,
		&paramsJSON,
		&responseJSON,
		&stepError,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow step: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &step.RequestParams); err != nil {
			return nil, fmt.Errorf("unmarshal request_params: %w", err)
		}
	}
	if responseJSON != nil {
		if err := json.Unmarshal(responseJSON, &step.ResponseData); err != nil {
			return nil, fmt.Errorf("unmarshal response_data: %w", err)
		}
	}
	if stepError != nil {
		step.Error = *stepError
	}

	return &step, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
