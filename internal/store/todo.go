package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/taskdeck/apiserver/types"
)

// TodoRepository handles persistence for to-do items. Every lookup and
// mutation that targets a single item filters by both id and owner, so a
// request can never touch another user's item.
type TodoRepository struct {
	db *sql.DB
}

func NewTodoRepository(db *sql.DB) *TodoRepository {
	return &TodoRepository{db: db}
}

func (r *TodoRepository) Create(ctx context.Context, todo types.Todo) (types.Todo, error) {
	now := time.Now()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	if todo.Tags == nil {
		todo.Tags = []string{}
	}

	tagsJSON, err := json.Marshal(todo.Tags)
	if err != nil {
		return types.Todo{}, err
	}

	const query = `
		INSERT INTO todos (user_id, title, description, deadline, completed_at, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		todo.UserID,
		todo.Title,
		todo.Description,
		todo.Deadline,
		todo.CompletedAt,
		tagsJSON,
		todo.CreatedAt,
		todo.UpdatedAt,
	).Scan(&todo.ID); err != nil {
		return types.Todo{}, err
	}
	return todo, nil
}

func (r *TodoRepository) ListByOwner(ctx context.Context, userID int) ([]types.Todo, error) {
	const query = `
		SELECT id, user_id, title, description, deadline, completed_at, tags, created_at, updated_at
		FROM todos
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := make([]types.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return todos, nil
}

func (r *TodoRepository) GetByIDAndOwner(ctx context.Context, id, userID int) (types.Todo, error) {
	const query = `
		SELECT id, user_id, title, description, deadline, completed_at, tags, created_at, updated_at
		FROM todos
		WHERE id = $1 AND user_id = $2`
	todo, err := scanTodo(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Todo{}, ErrNotFound
		}
		return types.Todo{}, err
	}
	return todo, nil
}

// Update rewrites the mutable fields of an item. The owner column is part of
// the WHERE clause, never of the SET list, and completed_at is deliberately
// absent from the SET list: the completion timestamp only ever changes
// through Complete, so a stale read can never write it back.
func (r *TodoRepository) Update(ctx context.Context, todo types.Todo) (types.Todo, error) {
	todo.UpdatedAt = time.Now()
	if todo.Tags == nil {
		todo.Tags = []string{}
	}

	tagsJSON, err := json.Marshal(todo.Tags)
	if err != nil {
		return types.Todo{}, err
	}

	const query = `
		UPDATE todos
		SET title = $1,
			description = $2,
			deadline = $3,
			tags = $4,
			updated_at = $5
		WHERE id = $6 AND user_id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		todo.Title,
		todo.Description,
		todo.Deadline,
		tagsJSON,
		todo.UpdatedAt,
		todo.ID,
		todo.UserID,
	)
	if err != nil {
		return types.Todo{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Todo{}, err
	}
	if affected == 0 {
		return types.Todo{}, ErrNotFound
	}
	return todo, nil
}

// Complete stamps the completion timestamp in a single statement. The
// completed_at IS NULL predicate makes the transition atomic: only one of
// any number of concurrent calls can flip the row, and the timestamp can
// never be rewritten once set.
func (r *TodoRepository) Complete(ctx context.Context, id, userID int) (types.Todo, error) {
	const query = `
		UPDATE todos
		SET completed_at = now(),
			updated_at = now()
		WHERE id = $1 AND user_id = $2 AND completed_at IS NULL
		RETURNING id, user_id, title, description, deadline, completed_at, tags, created_at, updated_at`
	todo, err := scanTodo(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No row flipped: either the item is already completed or it
			// does not belong to this owner. An owner-scoped read tells
			// the two apart.
			if _, getErr := r.GetByIDAndOwner(ctx, id, userID); getErr == nil {
				return types.Todo{}, ErrAlreadyCompleted
			} else if !errors.Is(getErr, ErrNotFound) {
				return types.Todo{}, getErr
			}
			return types.Todo{}, ErrNotFound
		}
		return types.Todo{}, err
	}
	return todo, nil
}

func (r *TodoRepository) DeleteByIDAndOwner(ctx context.Context, id, userID int) error {
	const query = `DELETE FROM todos WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (types.Todo, error) {
	var todo types.Todo
	var completedAt sql.NullTime
	var tagsJSON []byte
	if err := row.Scan(
		&todo.ID,
		&todo.UserID,
		&todo.Title,
		&todo.Description,
		&todo.Deadline,
		&completedAt,
		&tagsJSON,
		&todo.CreatedAt,
		&todo.UpdatedAt,
	); err != nil {
		return types.Todo{}, err
	}
	if completedAt.Valid {
		todo.CompletedAt = &completedAt.Time
	}
	todo.Tags = []string{}
	_ = json.Unmarshal(tagsJSON, &todo.Tags)
	return todo, nil
}
