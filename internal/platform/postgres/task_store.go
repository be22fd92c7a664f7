package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/platform/logger"
	"github.com/reelsong/reelsong-api/internal/store"
	"github.com/reelsong/reelsong-api/internal/task"
)

// PostgreSQL error code for unique constraint violations.
const uniqueViolationCode = "23505"

// taskColumns is the column list shared by identification_tasks queries.
const taskColumns = `id, status, source_url, ig_media_id, song_search_id,
	error_code, error_message, attempts, created_at, updated_at`

// PostgresTaskStore implements the task.TaskStore interface using a
// PostgreSQL database as the storage backend. Terminal statuses are
// write-once: finalizing updates carry a status guard, and an update that
// matches no rows is a successful no-op.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements task.TaskStore interface
var _ task.TaskStore = (*PostgresTaskStore)(nil)

// CreateTask implements task.TaskStore.CreateTask.
func (s *PostgresTaskStore) CreateTask(ctx context.Context, rec *task.TaskRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO identification_tasks
			(id, status, source_url, ig_media_id, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.Status,
		rec.SourceURL,
		rec.MediaID,
		rec.Attempts,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: task with ID %s", store.ErrDuplicate, rec.ID)
		}
		log.Error("failed to create task record",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.ID.String()))
		return fmt.Errorf("failed to create task record: %w", err)
	}

	log.Debug("task record created",
		slog.String("task_id", rec.ID.String()),
		slog.String("media_id", rec.MediaID))
	return nil
}

// GetTask implements task.TaskStore.GetTask.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*task.TaskRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM identification_tasks WHERE id = $1`, taskColumns)

	rec, err := scanTaskRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task record: %w", err)
	}
	return rec, nil
}

// GetPendingTasks implements task.TaskStore.GetPendingTasks.
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]*task.TaskRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM identification_tasks
		WHERE status = $1
		ORDER BY created_at`, taskColumns)

	return s.queryRecords(ctx, "query pending tasks", query, task.TaskStatusPending)
}

// GetProcessingTasks implements task.TaskStore.GetProcessingTasks.
func (s *PostgresTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*task.TaskRecord, error) {
	if olderThan <= 0 {
		query := fmt.Sprintf(`
			SELECT %s FROM identification_tasks
			WHERE status = $1
			ORDER BY updated_at`, taskColumns)
		return s.queryRecords(ctx, "query processing tasks", query, task.TaskStatusProcessing)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM identification_tasks
		WHERE status = $1 AND updated_at < NOW() - ($2 * INTERVAL '1 second')
		ORDER BY updated_at`, taskColumns)

	return s.queryRecords(ctx, "query stuck tasks", query,
		task.TaskStatusProcessing, olderThan.Seconds())
}

// ResetToPending implements task.TaskStore.ResetToPending. Only a processing
// record moves back; pending and terminal records are left untouched.
func (s *PostgresTaskStore) ResetToPending(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE identification_tasks
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	return s.execTransition(ctx, "reset to pending", query,
		id, task.TaskStatusPending, task.TaskStatusProcessing)
}

// MarkProcessing implements task.TaskStore.MarkProcessing. A record that has
// already reached a terminal status is left untouched.
func (s *PostgresTaskStore) MarkProcessing(ctx context.Context, id uuid.UUID, attempt int) error {
	query := `
		UPDATE identification_tasks
		SET status = $2, attempts = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)`

	return s.execTransition(ctx, "mark processing", query,
		id, task.TaskStatusProcessing, attempt,
		task.TaskStatusCompleted, task.TaskStatusFailed)
}

// CompleteWithSong implements task.TaskStore.CompleteWithSong.
func (s *PostgresTaskStore) CompleteWithSong(ctx context.Context, id uuid.UUID, songID uuid.UUID) error {
	query := `
		UPDATE identification_tasks
		SET status = $2, song_search_id = $3, error_code = '', error_message = '',
			updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)`

	return s.execTransition(ctx, "complete with song", query,
		id, task.TaskStatusCompleted, songID,
		task.TaskStatusCompleted, task.TaskStatusFailed)
}

// CompleteNoMatch implements task.TaskStore.CompleteNoMatch.
func (s *PostgresTaskStore) CompleteNoMatch(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE identification_tasks
		SET status = $2, error_code = $3, error_message = $4, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)`

	return s.execTransition(ctx, "complete no match", query,
		id, task.TaskStatusCompleted, domain.ErrorKindNoSongFound, message,
		task.TaskStatusCompleted, task.TaskStatusFailed)
}

// Fail implements task.TaskStore.Fail.
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error {
	query := `
		UPDATE identification_tasks
		SET status = $2, error_code = $3, error_message = $4, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)`

	return s.execTransition(ctx, "fail", query,
		id, task.TaskStatusFailed, kind, message,
		task.TaskStatusCompleted, task.TaskStatusFailed)
}

// queryRecords runs a multi-row task query and scans the results.
func (s *PostgresTaskStore) queryRecords(ctx context.Context, op, query string, args ...any) ([]*task.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("task query failed",
			slog.String("op", op),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*task.TaskRecord
	for rows.Next() {
		rec, err := scanTaskRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to %s: %w", op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	return records, nil
}

// scanTaskRecord maps one identification_tasks row onto a task record.
func scanTaskRecord(row rowScanner) (*task.TaskRecord, error) {
	var (
		rec    task.TaskRecord
		songID uuid.NullUUID
	)
	err := row.Scan(
		&rec.ID,
		&rec.Status,
		&rec.SourceURL,
		&rec.MediaID,
		&songID,
		&rec.ErrorCode,
		&rec.ErrorMessage,
		&rec.Attempts,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if songID.Valid {
		rec.SongSearchID = &songID.UUID
	}
	return &rec, nil
}

// execTransition runs a guarded status update. Zero rows affected means the
// record is gone or already terminal; both are treated as success.
func (s *PostgresTaskStore) execTransition(ctx context.Context, op, query string, id uuid.UUID, args ...any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		log.Error("task status transition failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return fmt.Errorf("failed to %s task: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s task: %w", op, err)
	}
	if rows == 0 {
		log.Debug("task status transition skipped, record missing or terminal",
			slog.String("op", op),
			slog.String("task_id", id.String()))
	}
	return nil
}
