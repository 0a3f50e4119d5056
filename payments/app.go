package payments

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alovak/fakepay/checkout"
	"github.com/alovak/fakepay/internal/expiry"
	"github.com/alovak/fakepay/internal/metrics"
	"github.com/alovak/fakepay/internal/middleware"
	"github.com/alovak/fakepay/internal/tracing"
	payments8583 "github.com/alovak/fakepay/payments/iso8583"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

// App is the main application, it contains the payment service, its
// transports and the checkout orchestrator, and is responsible for
// starting and stopping them.
type App struct {
	srv               *http.Server
	wg                *sync.WaitGroup
	Addr              string
	ISO8583ServerAddr string
	logger            *slog.Logger
	iso8583Server     io.Closer
	config            *Config
	stopSweeper       context.CancelFunc
	checkoutClient    io.Closer
	ledgerCloser      io.Closer
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "fakepay"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() (err error) {
	a.logger.Info("starting app...")

	defer func() {
		if err != nil {
			a.closeTransports()
			a.closeLedger()
		}
	}()

	if tz := a.config.ExpiryTZ; tz != "" {
		loc, locErr := time.LoadLocation(tz)
		if locErr != nil {
			a.logger.Info("unknown expiry location, keeping UTC", slog.String("tz", tz), "err", locErr)
		} else {
			expiry.SetDefaultLocation(loc)
		}
	}

	ledger, err := a.openLedger()
	if err != nil {
		return err
	}

	service := NewService(ledger, a.config, a.logger)

	iso8583Server := payments8583.NewServer(a.logger, a.config.ISO8583Addr, service)
	if err := iso8583Server.Start(); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	a.ISO8583ServerAddr = iso8583Server.Addr
	a.iso8583Server = iso8583Server

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}
	a.Addr = l.Addr().String()

	binding, err := a.checkoutBinding(service)
	if err != nil {
		l.Close()
		return err
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(metrics.Middleware)
	router.Use(tracing.Middleware)

	NewAPI(service).AppendRoutes(router)
	checkout.NewAPI(checkout.New(binding, a.config.CheckoutFixedAmount, a.logger)).AppendRoutes(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := service.Ping(ctx); err != nil {
			http.Error(w, "ledger not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	a.startSweeper(service)

	return nil
}

func (a *App) openLedger() (Ledger, error) {
	switch a.config.Backend {
	case "", "mem":
		return NewRepository(), nil
	case "pg":
		if a.config.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", a.config.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repository := NewPGRepository(db)
		if err := repository.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.ledgerCloser = db
		return repository, nil
	case "redis":
		if a.config.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for redis backend")
		}
		client := redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.ledgerCloser = client
		return NewRedisRepository(client), nil
	default:
		return nil, fmt.Errorf("unsupported REPO_BACKEND=%s", a.config.Backend)
	}
}

// checkoutBinding returns how the orchestrator reaches the payment service.
// Remote bindings default to this app's own listeners.
func (a *App) checkoutBinding(service *Service) (checkout.Payments, error) {
	switch a.config.CheckoutBinding {
	case "", BindingInProcess:
		return service, nil
	case BindingHTTP:
		base := a.config.PaymentsURL
		if base == "" {
			base = "http://" + a.Addr
		}
		return NewClient(base, nil), nil
	case BindingISO8583:
		addr := a.config.PaymentsISO8583Addr
		if addr == "" {
			addr = a.ISO8583ServerAddr
		}
		client, err := payments8583.NewClient(addr)
		if err != nil {
			return nil, err
		}
		if err := client.Connect(); err != nil {
			return nil, err
		}
		a.checkoutClient = client
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported CHECKOUT_PAYMENTS=%s", a.config.CheckoutBinding)
	}
}

func (a *App) startSweeper(service *Service) {
	if a.config.SweepInterval <= 0 || a.config.AuthorizationTTL <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(a.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := service.ExpirePending(ctx); err != nil && ctx.Err() == nil {
					a.logger.Error("sweeping authorizations", "err", err)
				}
			}
		}
	}()
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.srv != nil {
		a.srv.Shutdown(context.Background())
	}

	if a.stopSweeper != nil {
		a.stopSweeper()
	}

	a.closeTransports()
	a.wg.Wait()
	a.closeLedger()

	a.logger.Info("app stopped")
}

func (a *App) closeTransports() {
	if a.checkoutClient != nil {
		if err := a.checkoutClient.Close(); err != nil {
			a.logger.Error("closing checkout client", "err", err)
		}
		a.checkoutClient = nil
	}

	if a.iso8583Server != nil {
		if err := a.iso8583Server.Close(); err != nil {
			a.logger.Error("closing iso8583 server", "err", err)
		}
		a.iso8583Server = nil
	}
}

func (a *App) closeLedger() {
	if a.ledgerCloser != nil {
		if err := a.ledgerCloser.Close(); err != nil {
			a.logger.Error("closing ledger", "err", err)
		}
		a.ledgerCloser = nil
	}
}
