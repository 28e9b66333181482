package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskdeck/apiserver/config"
	"github.com/taskdeck/apiserver/internal/db"
	"github.com/taskdeck/apiserver/internal/events"
	"github.com/taskdeck/apiserver/internal/handlers"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/storage"
	"github.com/taskdeck/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *events.Bus
}

// New constructs a Server with basic middleware and defaults.
// It refuses to start without a JWT secret: a server that signed tokens
// with a guessable default would be worse than one that stays down.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if st != nil {
		if err := st.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, err
		}
	}

	bus, err := events.NewFromConfig(ctx, cfg.Broker)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	todoRepo := store.NewTodoRepository(dbConn)

	userService := services.NewUserService(userRepo)
	todoService := services.NewTodoService(todoRepo)

	authHandler := handlers.NewAuthHandler(userService, bus, jwtSecret)
	var uploadHandler *handlers.UploadHandler
	if st != nil {
		uploadHandler = handlers.NewUploadHandler(userService, st)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, uploadHandler)
	})
	router.Route("/todos", func(r chi.Router) {
		r.Use(authHandler.RequireAuth)
		handlers.TodoRouter(r, todoService, bus)
	})
	if uploadHandler != nil {
		router.Get("/uploads/{key}", uploadHandler.ServeUpload)
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		bus:        bus,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	_ = s.bus.Close()
	return s.httpServer.Close()
}
