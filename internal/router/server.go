package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/go-chi/chi/v5/middleware"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/auth"
	"github.com/wellywell/orderdesk/internal/compress"
	"github.com/wellywell/orderdesk/internal/config"
	"github.com/wellywell/orderdesk/internal/handlers"
)

const (
	compressLevel   = 5
	maxBodyBytes    = 1 << 20
	readTimeout     = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

type Middleware interface {
	Handle(h http.Handler) http.Handler
}

type Router struct {
	server *http.Server
	router *chi.Mux
}

func NewRouter(conf *config.ServerConfig, h *handlers.HandlerSet, middlewares ...Middleware) (*Router, error) {

	passwordHash, err := auth.HashPassword(conf.AdminPass)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(AccessLog{}.Handle)
	r.Use(middleware.Recoverer)
	r.Use(CORS{}.Handle)
	r.Use(middleware.RequestSize(maxBodyBytes))
	r.Use(compress.RequestUngzipper{Limit: maxBodyBytes}.Handle)
	for _, m := range middlewares {
		r.Use(m.Handle)
	}
	r.Use(middleware.Compress(compressLevel))

	r.Get("/", h.HandleRoot)
	r.Get("/healthz", h.HandleHealthz)
	r.Post("/submit", h.HandleSubmit)
	r.Get("/check", h.HandleCheck)

	authMiddleware := &auth.AuthenticateMiddleware{
		Secret:       conf.Secret,
		User:         conf.AdminUser,
		PasswordHash: passwordHash,
		TTL:          conf.SessionTTL,
	}

	r.Group(func(r chi.Router) {

		r.Use(authMiddleware.Handle)
		r.Get("/admin", h.HandleAdminList)
		r.Get("/admin/orders", h.HandleAdminOrders)
		r.With(auth.RejectCrossSite).Get("/admin/action", h.HandleAdminAction)
	})

	return &Router{
		router: r,
		server: &http.Server{
			Addr:              conf.RunAddress,
			Handler:           r,
			ReadHeaderTimeout: readTimeout,
		},
	}, nil
}

func (r *Router) Handler() http.Handler {
	return r.router
}

// ListenAndServe blocks until the server fails or Shutdown is called; the
// latter is not an error.
func (r *Router) ListenAndServe() error {
	logger.Infof("Listening on %s", r.server.Addr)
	err := r.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (r *Router) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return r.server.Shutdown(ctx)
}
