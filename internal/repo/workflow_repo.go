package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Chainflow/internal/domain"
)

// WorkflowRepo — репозиторий для работы с workflows.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create создаёт новый workflow и заполняет wf.ID.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	paramsJSON, err := json.Marshal(wf.RequestParams)
	if err != nil {
		return fmt.Errorf("marshal request_params: %w", err)
	}

	query := `
		INSERT INTO workflows (kind, status, client_id, request_params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = r.pool.QueryRow(ctx, query,
		wf.Kind,
		wf.Status,
		wf.ClientID,
		paramsJSON,
		wf.CreatedAt,
		wf.UpdatedAt,
	).Scan(&wf.ID)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	query := `
		SELECT id, kind, status, client_id, request_params, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// SetStatus переводит workflow в новый статус.
//
// Терминальные статусы не перезаписываются: повторный markSuccess или
// markFailure после redelivery не должен менять уже зафиксированный итог.
func (r *WorkflowRepo) SetStatus(ctx context.Context, id int64, status domain.WorkflowStatus) error {
	query := `
		UPDATE workflows
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query, id, status, domain.WorkflowStatusInProgress)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Либо нет такой строки, либо статус уже терминальный.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workflows WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check workflow exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidState
	}
	return nil
}

// ListByStatus возвращает workflows в заданном статусе, новые первыми.
func (r *WorkflowRepo) ListByStatus(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	query := `
		SELECT id, kind, status, client_id, request_params, created_at, updated_at
		FROM workflows
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows by status: %w", err)
	}
	defer rows.Close()

	return r.collectWorkflows(rows)
}

// ListByClient возвращает workflows клиента, новые первыми.
func (r *WorkflowRepo) ListByClient(ctx context.Context, clientID int64, limit int) ([]domain.Workflow, error) {
	query := `
		SELECT id, kind, status, client_id, request_params, created_at, updated_at
		FROM workflows
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows by client: %w", err)
	}
	defer rows.Close()

	return r.collectWorkflows(rows)
}

// List возвращает последние workflows без фильтра.
func (r *WorkflowRepo) List(ctx context.Context, limit int) ([]domain.Workflow, error) {
	query := `
		SELECT id, kind, status, client_id, request_params, created_at, updated_at
		FROM workflows
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	return r.collectWorkflows(rows)
}

// --- Helpers ---

func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var paramsJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.Kind,
		&wf.Status,
		&wf.ClientID,
		&paramsJSON,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &wf.RequestParams); err != nil {
			return nil, fmt.Errorf("unmarshal request_params: %w", err)
		}
	}

	return &wf, nil
}

func (r *WorkflowRepo) collectWorkflows(rows pgx.Rows) ([]domain.Workflow, error) {
	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}
