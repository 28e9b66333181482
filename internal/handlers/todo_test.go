package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

type fakeTodoRepo struct {
	mu     sync.Mutex
	nextID int
	clock  time.Time
	todos  map[int]types.Todo

	// afterGet, when set, runs after a lookup has returned. Tests use it to
	// interleave a competing request between a handler's read and its write.
	afterGet func()
}

func newFakeTodoRepo() *fakeTodoRepo {
	return &fakeTodoRepo{
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		todos: make(map[int]types.Todo),
	}
}

func (r *fakeTodoRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeTodoRepo) Create(_ context.Context, todo types.Todo) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	todo.ID = r.nextID
	now := r.tick()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	if todo.Tags == nil {
		todo.Tags = []string{}
	}
	r.todos[todo.ID] = todo
	return todo, nil
}

func (r *fakeTodoRepo) ListByOwner(_ context.Context, userID int) ([]types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todos := make([]types.Todo, 0)
	for _, todo := range r.todos {
		if todo.UserID == userID {
			todos = append(todos, todo)
		}
	}
	sort.Slice(todos, func(i, j int) bool {
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
	return todos, nil
}

func (r *fakeTodoRepo) GetByIDAndOwner(_ context.Context, id, userID int) (types.Todo, error) {
	r.mu.Lock()
	todo, ok := r.todos[id]
	r.mu.Unlock()
	if hook := r.afterGet; hook != nil {
		hook()
	}
	if !ok || todo.UserID != userID {
		return types.Todo{}, store.ErrNotFound
	}
	return todo, nil
}

func (r *fakeTodoRepo) Update(_ context.Context, todo types.Todo) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.todos[todo.ID]
	if !ok || existing.UserID != todo.UserID {
		return types.Todo{}, store.ErrNotFound
	}
	// The completion timestamp is outside Update's reach, mirroring the SQL
	// statement's SET list.
	todo.CompletedAt = existing.CompletedAt
	todo.UpdatedAt = r.tick()
	r.todos[todo.ID] = todo
	return todo, nil
}

func (r *fakeTodoRepo) Complete(_ context.Context, id, userID int) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[id]
	if !ok || todo.UserID != userID {
		return types.Todo{}, store.ErrNotFound
	}
	if todo.Completed() {
		return types.Todo{}, store.ErrAlreadyCompleted
	}
	now := r.tick()
	todo.CompletedAt = &now
	todo.UpdatedAt = now
	r.todos[id] = todo
	return todo, nil
}

func (r *fakeTodoRepo) DeleteByIDAndOwner(_ context.Context, id, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[id]
	if !ok || todo.UserID != userID {
		return store.ErrNotFound
	}
	delete(r.todos, id)
	return nil
}

// newTodoTestRouter mounts the todo routes behind a stub auth middleware
// that trusts the user id from the X-Test-User header.
func newTodoTestRouter(repo *fakeTodoRepo) http.Handler {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID int
			fmt.Sscanf(r.Header.Get("X-Test-User"), "%d", &userID)
			ctx := context.WithValue(r.Context(), contextSubjectKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	TodoRouter(router, services.NewTodoService(repo), nil)
	return router
}

func doTodoRequest(t *testing.T, router http.Handler, userID int, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Test-User", fmt.Sprint(userID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAddAndGetTodo_RoundTrip(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	rec := doTodoRequest(t, router, 1, http.MethodPost, "/", TodoUpsertRequest{
		Title:       "Buy milk",
		Description: "2%",
		Deadline:    "2025-01-01",
		Tags:        []string{"errand", "groceries"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created TodoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Nil(t, created.Todo.CompletedAt)
	require.NotZero(t, created.Todo.ID)

	rec = doTodoRequest(t, router, 1, http.MethodGet, fmt.Sprintf("/%d", created.Todo.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched types.Todo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fetched))
	require.Equal(t, "Buy milk", fetched.Title)
	require.Equal(t, "2%", fetched.Description)
	require.Equal(t, []string{"errand", "groceries"}, fetched.Tags)
	require.True(t, fetched.Deadline.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAddTodo_MissingFields(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	for _, req := range []TodoUpsertRequest{
		{Description: "d", Deadline: "2025-01-01"},
		{Title: "t", Deadline: "2025-01-01"},
		{Title: "t", Description: "d"},
	} {
		rec := doTodoRequest(t, router, 1, http.MethodPost, "/", req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	require.Empty(t, repo.todos)
}

func TestListTodos_NewestFirst(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	for _, title := range []string{"first", "second", "third"} {
		rec := doTodoRequest(t, router, 1, http.MethodPost, "/", TodoUpsertRequest{
			Title: title, Description: "d", Deadline: "2025-06-01",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	// Another user's items never show up in the listing.
	rec := doTodoRequest(t, router, 2, http.MethodPost, "/", TodoUpsertRequest{
		Title: "other", Description: "d", Deadline: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doTodoRequest(t, router, 1, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var todos []types.Todo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&todos))
	require.Len(t, todos, 3)
	require.Equal(t, "third", todos[0].Title)
	require.Equal(t, "second", todos[1].Title)
	require.Equal(t, "first", todos[2].Title)
}

func TestTodo_OwnerIsolation(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	rec := doTodoRequest(t, router, 1, http.MethodPost, "/", TodoUpsertRequest{
		Title: "mine", Description: "d", Deadline: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created TodoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	path := fmt.Sprintf("/%d", created.Todo.ID)

	// Every operation from user 2 reads as "not found", never "forbidden".
	title := "stolen"
	for name, attempt := range map[string]func() *httptest.ResponseRecorder{
		"get":      func() *httptest.ResponseRecorder { return doTodoRequest(t, router, 2, http.MethodGet, path, nil) },
		"update":   func() *httptest.ResponseRecorder { return doTodoRequest(t, router, 2, http.MethodPatch, path, TodoPatchRequest{Title: &title}) },
		"complete": func() *httptest.ResponseRecorder { return doTodoRequest(t, router, 2, http.MethodPatch, path+"/complete", nil) },
		"delete":   func() *httptest.ResponseRecorder { return doTodoRequest(t, router, 2, http.MethodDelete, path, nil) },
	} {
		rec := attempt()
		require.Equal(t, http.StatusNotFound, rec.Code, name)
	}

	// And the item is unchanged.
	stored := repo.todos[created.Todo.ID]
	require.Equal(t, "mine", stored.Title)
	require.Nil(t, stored.CompletedAt)
	require.Equal(t, 1, stored.UserID)
}

func TestMarkCompleted_OnlyOnce(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	rec := doTodoRequest(t, router, 1, http.MethodPost, "/", TodoUpsertRequest{
		Title: "Buy milk", Description: "2%", Deadline: "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created TodoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	path := fmt.Sprintf("/%d/complete", created.Todo.ID)

	rec = doTodoRequest(t, router, 1, http.MethodPatch, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var completed TodoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&completed))
	require.NotNil(t, completed.Todo.CompletedAt)
	firstCompletedAt := *repo.todos[created.Todo.ID].CompletedAt

	rec = doTodoRequest(t, router, 1, http.MethodPatch, path, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "already marked as completed")

	// The original completion timestamp survives the rejected retry.
	require.Equal(t, firstCompletedAt, *repo.todos[created.Todo.ID].CompletedAt)
}

func TestUpdateTodo_CompletionSurvivesInterleavedUpdate(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	rec := doTodoRequest(t, router, 1, http.MethodPost, "/", TodoUpsertRequest{
		Title: "Buy milk", Description: "2%", Deadline: "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created TodoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	path := fmt.Sprintf("/%d", created.Todo.ID)

	// A completion lands between the plain update's read and its write. The
	// update saw completed_at as nil, but its write must not carry that
	// stale value back.
	repo.afterGet = func() {
		repo.afterGet = nil
		rec := doTodoRequest(t, router, 1, http.MethodPatch, path+"/complete", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	description := "oat"
	rec = doTodoRequest(t, router, 1, http.MethodPatch, path, TodoPatchRequest{Description: &description})
	require.Equal(t, http.StatusOK, rec.Code)

	stored := repo.todos[created.Todo.ID]
	require.Equal(t, "oat", stored.Description)
	require.NotNil(t, stored.CompletedAt)
}

func TestUpdateTodo_PartialFields(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	rec := doTodoRequest(t, router, 1, http.MethodPost, "/", TodoUpsertRequest{
		Title: "original", Description: "keep me", Deadline: "2025-01-01", Tags: []string{"a"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created TodoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	title := "renamed"
	tags := []string{"b", "c"}
	rec = doTodoRequest(t, router, 1, http.MethodPatch, fmt.Sprintf("/%d", created.Todo.ID), TodoPatchRequest{
		Title: &title,
		Tags:  &tags,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored := repo.todos[created.Todo.ID]
	require.Equal(t, "renamed", stored.Title)
	require.Equal(t, "keep me", stored.Description)
	require.Equal(t, []string{"b", "c"}, stored.Tags)
}

func TestDeleteTodo(t *testing.T) {
	repo := newFakeTodoRepo()
	router := newTodoTestRouter(repo)

	rec := doTodoRequest(t, router, 1, http.MethodPost, "/", TodoUpsertRequest{
		Title: "t", Description: "d", Deadline: "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created TodoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	path := fmt.Sprintf("/%d", created.Todo.ID)

	rec = doTodoRequest(t, router, 1, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doTodoRequest(t, router, 1, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
