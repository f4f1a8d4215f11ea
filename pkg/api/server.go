package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterOption func(chi.Router)

func RouterOptions(options ...RouterOption) RouterOption {
	return func(r chi.Router) {
		for _, option := range options {
			option(r)
		}
	}
}

func DefaultTechOptions() RouterOption {
	return RouterOptions(
		WithRecover(),
		WithRequestID(),
	)
}

func WithRecover() RouterOption {
	return func(r chi.Router) {
		r.Use(middleware.Recoverer)
	}
}

func WithRequestID() RouterOption {
	return func(r chi.Router) {
		r.Use(middleware.RequestID)
	}
}

func WithDebugHandler() RouterOption {
	return func(r chi.Router) {
		r.Mount("/debug", middleware.Profiler())
	}
}

// WithLogger logs one line per request.
func WithLogger(logger *zap.SugaredLogger) RouterOption {
	return func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
				start := time.Now()
				next.ServeHTTP(ww, req)
				logger.Infow("HTTP request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(req.Context()),
				)
			})
		})
	}
}

// NewHandler builds a router mounted at prefix with the given options
// applied in order. Middleware options must come before route options.
func NewHandler(prefix string, options ...RouterOption) http.Handler {
	r := chi.NewRouter()
	r.Route(prefix, func(r chi.Router) {
		RouterOptions(options...)(r)
	})
	return r
}

// RunServer serves handler on addr until ctx is done, then shuts down
// gracefully.
func RunServer(ctx context.Context, addr string, logger *zap.SugaredLogger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Infow("HTTP server shutting down")
	return srv.Shutdown(shutdownCtx)
}
