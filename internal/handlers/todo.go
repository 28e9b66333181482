package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/events"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// TodoHandler provides HTTP handlers for to-do items. Every handler resolves
// the owner from the request context and queries by (id, owner), so one
// user's requests can never observe or change another user's items.
type TodoHandler struct {
	todoService *services.TodoService
	bus         *events.Bus
}

// NewTodoHandler constructs a handler with the provided service.
func NewTodoHandler(todoService *services.TodoService, bus *events.Bus) *TodoHandler {
	return &TodoHandler{
		todoService: todoService,
		bus:         bus,
	}
}

// TodoRouter registers to-do routes on the given router. The caller is
// expected to mount it behind the auth middleware.
func TodoRouter(r chi.Router, todoService *services.TodoService, bus *events.Bus) {
	handler := NewTodoHandler(todoService, bus)

	r.Post("/", handler.AddTodo)
	r.Get("/", handler.ListTodos)
	r.Route("/{todoID}", func(r chi.Router) {
		r.Get("/", handler.GetTodo)
		r.Patch("/", handler.UpdateTodo)
		r.Patch("/complete", handler.MarkCompleted)
		r.Delete("/", handler.DeleteTodo)
	})
}

func (h *TodoHandler) AddTodo(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TodoUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || req.Description == "" || req.Deadline == "" {
		writeError(w, http.StatusBadRequest, "All fields required")
		return
	}

	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deadline")
		return
	}

	todo, err := h.todoService.Create(r.Context(), types.Todo{
		UserID:      userID,
		Title:       title,
		Description: req.Description,
		Deadline:    deadline,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add todo")
		return
	}

	writeJSON(w, http.StatusCreated, TodoResponse{Message: "Todo added successfully", Todo: todo})
}

func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	todos, err := h.todoService.ListByOwner(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch todos")
		return
	}

	writeJSON(w, http.StatusOK, todos)
}

func (h *TodoHandler) GetTodo(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTodoID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	todo, err := h.todoService.GetByIDAndOwner(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Todo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get todo")
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// UpdateTodo applies a partial update. Absent fields keep their stored
// values; the completion timestamp is not touchable from here.
func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTodoID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	var req TodoPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	todo, err := h.todoService.GetByIDAndOwner(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Todo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update todo")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "title must not be empty")
			return
		}
		todo.Title = title
	}
	if req.Description != nil {
		todo.Description = *req.Description
	}
	if req.Deadline != nil {
		deadline, err := parseDeadline(*req.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deadline")
			return
		}
		todo.Deadline = deadline
	}
	if req.Tags != nil {
		todo.Tags = *req.Tags
	}

	updated, err := h.todoService.Update(r.Context(), todo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Todo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update todo")
		return
	}

	writeJSON(w, http.StatusOK, TodoResponse{Message: "Todo updated successfully", Todo: updated})
}

func (h *TodoHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTodoID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	todo, err := h.todoService.Complete(r.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Todo not found")
		case errors.Is(err, store.ErrAlreadyCompleted):
			writeError(w, http.StatusBadRequest, "Todo already marked as completed")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to mark todo as completed")
		}
		return
	}

	if err := h.bus.Publish(r.Context(), events.ChannelTodoCompleted, todo); err != nil {
		log.Printf("events: publish %s: %v", events.ChannelTodoCompleted, err)
	}

	writeJSON(w, http.StatusOK, TodoResponse{Message: "Todo marked as completed", Todo: todo})
}

func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTodoID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	if err := h.todoService.DeleteByIDAndOwner(r.Context(), id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Todo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete todo")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Todo deleted successfully"})
}

// TodoUpsertRequest is the payload for creating an item.
type TodoUpsertRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Deadline    string   `json:"deadline"`
	Tags        []string `json:"tags"`
}

// TodoPatchRequest is the payload for a partial update. Pointer fields
// distinguish "absent" from "set to zero value".
type TodoPatchRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Deadline    *string   `json:"deadline"`
	Tags        *[]string `json:"tags"`
}

// TodoResponse pairs a human-readable message with the affected item.
type TodoResponse struct {
	Message string     `json:"message"`
	Todo    types.Todo `json:"todo"`
}

func parseTodoID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "todoID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid todo id")
	}
	return id, nil
}

func parseDeadline(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
