// Package server orchestrates all components: NATS client, metadata source, transport, dispatcher, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-invoker/internal/config"
	"github.com/morezero/action-invoker/pkg/commsutil"
	"github.com/morezero/action-invoker/pkg/db"
	"github.com/morezero/action-invoker/pkg/dialog"
	"github.com/morezero/action-invoker/pkg/dispatcher"
	"github.com/morezero/action-invoker/pkg/events"
	"github.com/morezero/action-invoker/pkg/invoke"
	"github.com/morezero/action-invoker/pkg/metadata"
	"github.com/morezero/action-invoker/pkg/transport"
)

const logPrefix = "server:server"

// Server is the action-invoker orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	tr         *transport.NATSTransport
	disp       *dispatcher.Dispatcher
	httpServer *http.Server
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})))

	slog.Info(fmt.Sprintf("%s - Starting action-invoker", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s := &Server{cfg: cfg, nc: nc}
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 2: Metadata source (Postgres catalog or JSON file)
	provider, err := s.openMetadata(ctx)
	if err != nil {
		nc.Close()
		return err
	}

	// Step 3: Backend transport and refresh publisher
	s.tr = transport.NewNATSTransport(nc, transport.NATSTransportOpts{
		Subject:         cfg.BackendSubject,
		RequestTimeout:  cfg.BackendRequestTimeout,
		AutoSubmitDelay: cfg.AutoSubmitDelay,
	})
	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{BaseSubject: cfg.RefreshEventSubject})

	// Step 4: Dispatcher and subscription
	s.disp = dispatcher.NewDispatcher(invoke.Config{
		Provider:  provider,
		Transport: s.tr,
		Presenter: &dialog.Headless{AutoConfirm: cfg.AutoConfirm},
		Publisher: publisher,
	}, s.healthChecks())

	invokerSubject := cfg.InvokerSubject
	if invokerSubject == "" {
		invokerSubject = commsutil.SubjectInvoker
	}
	sub, err := nc.Subscribe(invokerSubject, s.handleMessage(ctx))
	if err != nil {
		s.close()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, invokerSubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, invokerSubject))

	// Step 5: Start HTTP health server
	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Action-invoker is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	sub.Unsubscribe()
	s.httpServer.Shutdown(ctx)
	s.close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// openMetadata returns the database-backed provider when DATABASE_URL is
// set, the JSON catalog otherwise.
func (s *Server) openMetadata(ctx context.Context) (metadata.Provider, error) {
	if !s.cfg.UsesDatabase() {
		catalog, err := metadata.LoadCatalog(s.cfg.MetadataFile)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to load metadata catalog: %w", logPrefix, err)
		}
		return catalog, nil
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	s.pool = pool
	slog.Info(fmt.Sprintf("%s - Reading operation metadata from database", logPrefix))
	return metadata.NewDBProvider(db.NewRepository(pool)), nil
}

func (s *Server) healthChecks() map[string]dispatcher.HealthCheck {
	checks := map[string]dispatcher.HealthCheck{
		"comms": func(context.Context) error {
			if s.nc == nil || !s.nc.IsConnected() {
				return fmt.Errorf("%s - not connected to NATS", logPrefix)
			}
			return nil
		},
	}
	if s.pool != nil {
		checks["database"] = func(ctx context.Context) error {
			return s.pool.Ping(ctx)
		}
	}
	return checks
}

// handleMessage serves one invoker request. Requests are dispatched on their
// own goroutine since an invocation waits on the backend.
func (s *Server) handleMessage(ctx context.Context) comms.MsgHandler {
	return func(msg *comms.Msg) {
		var req dispatcher.InvokerRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			resp := &dispatcher.InvokerResponse{
				Ok: false,
				Error: &dispatcher.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			}
			if err := commsutil.RespondJSON(msg, resp); err != nil {
				slog.Error(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
			}
			return
		}

		go func() {
			reqCtx, cancel := requestContext(ctx, req.Ctx, s.cfg.RequestTimeout)
			defer cancel()

			resp := s.disp.Dispatch(reqCtx, &req)
			if err := commsutil.RespondJSON(msg, resp); err != nil {
				slog.Error(fmt.Sprintf("%s - failed to respond to %s: %v", logPrefix, req.ID, err))
			}
		}()
	}
}

// requestContext bounds a request by the server timeout, or by the client's
// deadline when that is shorter.
func requestContext(ctx context.Context, invCtx *dispatcher.InvocationContext, timeout time.Duration) (context.Context, context.CancelFunc) {
	if invCtx != nil {
		ms := invCtx.DeadlineMs
		if ms <= 0 {
			ms = invCtx.TimeoutMs
		}
		if ms > 0 && time.Duration(ms)*time.Millisecond < timeout {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.disp.Health(healthCtx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	return mux
}

func (s *Server) close() {
	if s.tr != nil {
		s.tr.Close()
	}
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
