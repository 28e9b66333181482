package services

import (
	"context"

	"github.com/taskdeck/apiserver/types"
)

// TodoRepository defines persistence operations for to-do items.
// Single-item lookups and mutations are scoped by owner as well as id.
// Complete is the only operation that touches the completion timestamp,
// and it must apply the absent-to-present transition atomically.
type TodoRepository interface {
	Create(ctx context.Context, todo types.Todo) (types.Todo, error)
	ListByOwner(ctx context.Context, userID int) ([]types.Todo, error)
	GetByIDAndOwner(ctx context.Context, id, userID int) (types.Todo, error)
	Update(ctx context.Context, todo types.Todo) (types.Todo, error)
	Complete(ctx context.Context, id, userID int) (types.Todo, error)
	DeleteByIDAndOwner(ctx context.Context, id, userID int) error
}

// TodoService encapsulates to-do use-cases.
type TodoService struct {
	repo TodoRepository
}

func NewTodoService(repo TodoRepository) *TodoService {
	return &TodoService{repo: repo}
}

func (s *TodoService) Create(ctx context.Context, todo types.Todo) (types.Todo, error) {
	return s.repo.Create(ctx, todo)
}

func (s *TodoService) ListByOwner(ctx context.Context, userID int) ([]types.Todo, error) {
	return s.repo.ListByOwner(ctx, userID)
}

func (s *TodoService) GetByIDAndOwner(ctx context.Context, id, userID int) (types.Todo, error) {
	return s.repo.GetByIDAndOwner(ctx, id, userID)
}

func (s *TodoService) Update(ctx context.Context, todo types.Todo) (types.Todo, error) {
	return s.repo.Update(ctx, todo)
}

// Complete stamps the item's completion time. The transition happens at most
// once; a second call fails with store.ErrAlreadyCompleted and leaves the
// stored timestamp untouched.
func (s *TodoService) Complete(ctx context.Context, id, userID int) (types.Todo, error) {
	return s.repo.Complete(ctx, id, userID)
}

func (s *TodoService) DeleteByIDAndOwner(ctx context.Context, id, userID int) error {
	return s.repo.DeleteByIDAndOwner(ctx, id, userID)
}
