package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/MathewBravo/realtime-db/internal/connector"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

// Controller is the part of the connector the admin API drives.
type Controller interface {
	Listen(table string, interval time.Duration) error
	Unlisten(table string) error
	Tables() []connector.TableStatus
	Snapshot(table string) (rowset.Snapshot, bool)
}

type Handlers struct {
	ctl             Controller
	defaultInterval time.Duration
	metrics         http.Handler
}

func NewHandlers(ctl Controller, defaultInterval time.Duration, metrics http.Handler) *Handlers {
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Handlers{ctl: ctl, defaultInterval: defaultInterval, metrics: metrics}
}

// Router builds the admin routes.
func Router(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", h.metrics)

	r.Route("/tables", func(r chi.Router) {
		r.Get("/", h.handleListTables)
		r.Get("/{table}/snapshot", h.handleSnapshot)
		r.Post("/{table}/listen", h.handleListen)
		r.Delete("/{table}/listen", h.handleUnlisten)
	})
	return r
}

// Server runs the admin API until Shutdown.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, h *Handlers) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           Router(h),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Admin endpoints enabled")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
