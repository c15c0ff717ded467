package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"task-manager/backend/internal/models"
)

// TaskRepository はタスクと共有設定の永続化を扱います。
type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	FindByID(ctx context.Context, id int) (*models.Task, error)
	// ListVisible はuserIDが所有または共有されているタスクを新しい順に返します。
	ListVisible(ctx context.Context, userID int, filter models.TaskFilter) ([]*models.Task, error)
	// Update は行をロックした状態でfnを呼び、fnがエラーを返さなければ変更を保存します。
	Update(ctx context.Context, id int, fn func(t *models.Task) error) (*models.Task, error)
	Delete(ctx context.Context, id int) error
}

// MySQLTaskRepo はTaskRepositoryのMySQL実装です。
type MySQLTaskRepo struct {
	DB *sql.DB
}

// NewMySQLTaskRepo は新しいMySQLTaskRepoインスタンスを作成します。
func NewMySQLTaskRepo(db *sql.DB) *MySQLTaskRepo {
	return &MySQLTaskRepo{DB: db}
}

const selectTask = `SELECT t.id, t.user_id, u.username, t.category_id, t.title, t.description,
		t.is_completed, t.created_at, t.completed_at
	FROM tasks t JOIN users u ON u.id = t.user_id`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var (
		t           models.Task
		categoryID  sql.NullInt64
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.OwnerUsername, &categoryID, &t.Title, &t.Description,
		&t.IsCompleted, &t.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		id := int(categoryID.Int64)
		t.CategoryID = &id
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	t.SharedWith = []int{}
	return &t, nil
}

func nullableID(id *int) any {
	if id == nil {
		return nil
	}
	return *id
}

// Create は新しいタスクと共有設定を1つのトランザクションで挿入します。
func (r *MySQLTaskRepo) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer rollback(tx)

	query := `INSERT INTO tasks (user_id, category_id, title, description, is_completed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query, t.OwnerID, nullableID(t.CategoryID), t.Title, t.Description,
		t.IsCompleted, t.CompletedAt)
	if err != nil {
		if isMySQLError(err, mysqlErrNoReferencedRow) {
			return nil, ErrInvalidReference
		}
		log.Printf("Failed to insert task: %v", err)
		return nil, fmt.Errorf("could not insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("could not get last insert ID: %w", err)
	}
	if err := replaceShares(ctx, tx, int(id), t.SharedWith); err != nil {
		return nil, err
	}

	created, err := findTask(ctx, tx, selectTask+" WHERE t.id = ?", int(id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit task: %w", err)
	}
	return created, nil
}

// FindByID は指定されたIDのタスクを共有設定つきで取得します。
func (r *MySQLTaskRepo) FindByID(ctx context.Context, id int) (*models.Task, error) {
	return findTask(ctx, r.DB, selectTask+" WHERE t.id = ?", id)
}

func findTask(ctx context.Context, q queryer, query string, id int) (*models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		log.Printf("Failed to query task by ID: %v", err)
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	if err := loadShares(ctx, q, []*models.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *MySQLTaskRepo) ListVisible(ctx context.Context, userID int, filter models.TaskFilter) ([]*models.Task, error) {
	var sb strings.Builder
	sb.WriteString(selectTask)
	sb.WriteString(` WHERE (t.user_id = ? OR EXISTS (
		SELECT 1 FROM task_shares s WHERE s.task_id = t.id AND s.user_id = ?))`)
	args := []any{userID, userID}
	if filter.IsCompleted != nil {
		sb.WriteString(" AND t.is_completed = ?")
		args = append(args, *filter.IsCompleted)
	}
	if filter.CategoryID != nil {
		sb.WriteString(" AND t.category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	sb.WriteString(" ORDER BY t.created_at DESC, t.id DESC")

	rows, err := r.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		log.Printf("Failed to query tasks: %v", err)
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			log.Printf("Failed to scan task: %v", err)
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	if err := loadShares(ctx, r.DB, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update はSELECT ... FOR UPDATEで行をロックし、同じタスクへの同時更新を直列化します。
func (r *MySQLTaskRepo) Update(ctx context.Context, id int, fn func(t *models.Task) error) (*models.Task, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer rollback(tx)

	t, err := findTask(ctx, tx, selectTask+" WHERE t.id = ? FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}

	query := `UPDATE tasks SET title = ?, description = ?, is_completed = ?, completed_at = ?, category_id = ?
		WHERE id = ?`
	_, err = tx.ExecContext(ctx, query, t.Title, t.Description, t.IsCompleted, t.CompletedAt,
		nullableID(t.CategoryID), id)
	if err != nil {
		if isMySQLError(err, mysqlErrNoReferencedRow) {
			return nil, ErrInvalidReference
		}
		log.Printf("Failed to update task: %v", err)
		return nil, fmt.Errorf("could not update task: %w", err)
	}
	if err := replaceShares(ctx, tx, id, t.SharedWith); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit task update: %w", err)
	}
	return t, nil
}

// Delete は指定されたIDのタスクを削除します。共有設定はON DELETE CASCADEで消えます。
func (r *MySQLTaskRepo) Delete(ctx context.Context, id int) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		log.Printf("Failed to delete task: %v", err)
		return fmt.Errorf("could not delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// loadShares はtasksのSharedWithを1回のクエリで埋めます。
func loadShares(ctx context.Context, q queryer, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[int]*models.Task, len(tasks))
	args := make([]any, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		args = append(args, t.ID)
	}

	query := "SELECT task_id, user_id FROM task_shares WHERE task_id IN (" + placeholders(len(args)) + ") ORDER BY task_id, user_id"
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("could not query task shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, userID int
		if err := rows.Scan(&taskID, &userID); err != nil {
			return fmt.Errorf("could not scan task share: %w", err)
		}
		if t, ok := byID[taskID]; ok {
			t.SharedWith = append(t.SharedWith, userID)
		}
	}
	return rows.Err()
}

func replaceShares(ctx context.Context, tx *sql.Tx, taskID int, userIDs []int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM task_shares WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("could not clear task shares: %w", err)
	}
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO task_shares (task_id, user_id) VALUES (?, ?)", taskID, userID); err != nil {
			if isMySQLError(err, mysqlErrNoReferencedRow) {
				return ErrInvalidReference
			}
			return fmt.Errorf("could not insert task share: %w", err)
		}
	}
	return nil
}
