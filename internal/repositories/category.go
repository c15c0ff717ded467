package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"task-manager/backend/internal/models"
)

// CategoryRepository はカテゴリーの永続化を扱います。
type CategoryRepository interface {
	Create(ctx context.Context, c *models.Category) (*models.Category, error)
	FindByID(ctx context.Context, id int) (*models.Category, error)
	ListByOwner(ctx context.Context, ownerID int) ([]*models.Category, error)
	// Update は行をロックした状態でfnを呼び、fnがエラーを返さなければ変更を保存します。
	Update(ctx context.Context, id int, fn func(c *models.Category) error) (*models.Category, error)
	// Delete はカテゴリーを削除します。このカテゴリーのタスクはカテゴリーなしになります。
	Delete(ctx context.Context, id int) error
}

// MySQLCategoryRepo はCategoryRepositoryのMySQL実装です。
type MySQLCategoryRepo struct {
	DB *sql.DB
}

func NewMySQLCategoryRepo(db *sql.DB) *MySQLCategoryRepo {
	return &MySQLCategoryRepo{DB: db}
}

const selectCategory = "SELECT id, user_id, name, created_at FROM categories"

func scanCategory(row interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MySQLCategoryRepo) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	result, err := r.DB.ExecContext(ctx, "INSERT INTO categories (user_id, name) VALUES (?, ?)", c.OwnerID, c.Name)
	if err != nil {
		if isMySQLError(err, mysqlErrDuplicateEntry) {
			return nil, ErrDuplicateCategory
		}
		if isMySQLError(err, mysqlErrNoReferencedRow) {
			return nil, ErrInvalidReference
		}
		log.Printf("Failed to insert category: %v", err)
		return nil, fmt.Errorf("could not insert category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("could not get last insert ID: %w", err)
	}
	return r.FindByID(ctx, int(id))
}

func (r *MySQLCategoryRepo) FindByID(ctx context.Context, id int) (*models.Category, error) {
	return findCategory(ctx, r.DB, selectCategory+" WHERE id = ?", id)
}

func findCategory(ctx context.Context, q queryer, query string, id int) (*models.Category, error) {
	c, err := scanCategory(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		log.Printf("Failed to query category by ID: %v", err)
		return nil, fmt.Errorf("could not query category: %w", err)
	}
	return c, nil
}

func (r *MySQLCategoryRepo) ListByOwner(ctx context.Context, ownerID int) ([]*models.Category, error) {
	rows, err := r.DB.QueryContext(ctx, selectCategory+" WHERE user_id = ? ORDER BY name", ownerID)
	if err != nil {
		log.Printf("Failed to query categories: %v", err)
		return nil, fmt.Errorf("could not query categories: %w", err)
	}
	defer rows.Close()

	categories := []*models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

func (r *MySQLCategoryRepo) Update(ctx context.Context, id int, fn func(c *models.Category) error) (*models.Category, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer rollback(tx)

	c, err := findCategory(ctx, tx, selectCategory+" WHERE id = ? FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE categories SET name = ? WHERE id = ?", c.Name, id); err != nil {
		if isMySQLError(err, mysqlErrDuplicateEntry) {
			return nil, ErrDuplicateCategory
		}
		log.Printf("Failed to update category: %v", err)
		return nil, fmt.Errorf("could not update category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit category update: %w", err)
	}
	return c, nil
}

func (r *MySQLCategoryRepo) Delete(ctx context.Context, id int) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		log.Printf("Failed to delete category: %v", err)
		return fmt.Errorf("could not delete category: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCategoryNotFound
	}
	return nil
}
