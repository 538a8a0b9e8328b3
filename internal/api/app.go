package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/majlis-chat/majlis/internal/config"
	"github.com/majlis-chat/majlis/internal/database"
	"github.com/majlis-chat/majlis/internal/hub"
	"github.com/teris-io/shortid"
)

type App struct {
	log            *log.Logger
	db             database.Repository
	srv            *http.Server
	hub            *hub.Hub
	signingKey     []byte
	allowedOrigins []string
	sid            *shortid.Shortid
}

func NewApp(mux *http.ServeMux, logger *log.Logger, h *hub.Hub, db database.Repository, cfg *config.Config) (*App, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	s := &App{
		log:            logger,
		db:             db,
		hub:            h,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		sid:            sid,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.Handle("GET /api/subscriptions", s.authMiddleware(s.getUsersSubscriptions))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/users/online", s.authMiddleware(s.getOnlineUsers))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	handler := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	handler = s.errorHandler(handler)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: handler,
	}

	return s, nil
}

func (s *App) generateShortId() (string, error) {
	return s.sid.Generate()
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
