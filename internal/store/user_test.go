package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/taskdeck/apiserver/types"
)

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewUserRepository(db), mock, db
}

func TestUserCreate_Success(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT INTO users \(name, email, password_hash, image_url, created_at, updated_at\)`

	rows := sqlmock.NewRows([]string{"id"}).AddRow(42)
	mock.ExpectQuery(q).
		WithArgs("alice", "alice@x.com", "hash", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.Create(context.Background(), types.User{Name: "alice", Email: "alice@x.com", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 42 || got.Email != "alice@x.com" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), types.User{Name: "alice", Email: "alice@x.com", PasswordHash: "hash"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUserGetByEmail_Found(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "image_url", "created_at", "updated_at"}).
		AddRow(7, "alice", "alice@x.com", "hash", "", now, now)
	mock.ExpectQuery(`(?s)^\s*SELECT id, name, email, password_hash, image_url, created_at, updated_at\s+FROM users\s+WHERE email = \$1`).
		WithArgs("alice@x.com").
		WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), "alice@x.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.ID != 7 || got.Name != "alice" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestUserGetByEmail_NotFound(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT id, name, email, password_hash, image_url, created_at, updated_at\s+FROM users\s+WHERE email = \$1`).
		WithArgs("ghost@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@x.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserUpdate_NotFound(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), types.User{ID: 99, Name: "n", PasswordHash: "h"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
