package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log" // Logging library
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // request logging and panic recovery
	"golang.org/x/sync/errgroup"                    // runs the long-lived components together

	"github.com/iliyamo/court-booking/internal/booking"
	"github.com/iliyamo/court-booking/internal/cache"
	"github.com/iliyamo/court-booking/internal/clock"
	"github.com/iliyamo/court-booking/internal/config" // Internal config loader
	"github.com/iliyamo/court-booking/internal/database"
	"github.com/iliyamo/court-booking/internal/handler"
	"github.com/iliyamo/court-booking/internal/jobs"
	"github.com/iliyamo/court-booking/internal/middleware"
	"github.com/iliyamo/court-booking/internal/queue"
	"github.com/iliyamo/court-booking/internal/repository"
	"github.com/iliyamo/court-booking/internal/router" // Internal router setup
	"github.com/iliyamo/court-booking/internal/telemetry"
	"github.com/iliyamo/court-booking/internal/wire"
)

func main() {
	cfg := config.Load() // Load environment config; exits on invalid values
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	loc, _ := cfg.Location() // validated by Load

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, "court-booking", cfg.Env)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}()

	db, dialect, err := openStore(cfg.DB)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			log.Fatalf("database: migrate: %v", err)
		}
	}

	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		log.Printf("redis: %s unreachable; rate limiting and caching disabled", redisCfg.Addr)
	} else {
		defer rdb.Close()
	}

	var events *queue.Publisher
	if cfg.Events.Enabled {
		events = queue.NewPublisher(cfg.Events.URL, cfg.Events.Exchange)
		defer events.Close()
	}

	views := repository.NewProjectionRepo(db)
	slots := cache.NewAvailability(cacheCfg, rdb, views.AvailableSlots)
	clk := clock.Real{Location: loc}
	svc := booking.NewService(booking.Deps{
		Tx:               database.NewTxRunner(db, cfg.DB.TxTimeout, cfg.DB.TxRetries),
		Clock:            clk,
		Policy:           booking.PolicyFromConfig(cfg.Policy),
		Events:           events,
		Cache:            slots,
		BcryptCost:       cfg.Auth.BcryptCost,
		ReconcileTimeout: cfg.Reconcile.Timeout,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Printf("http: %s %s %d %s", v.Method, v.URI, v.Status, v.Latency.Round(time.Microsecond))
			return nil
		},
	}))
	e.Use(middleware.NewRateLimiter(rlCfg, rdb))
	router.Register(e, router.Handlers{
		Health:       handler.Health(db),
		Auth:         handler.NewAuthHandler(cfg.Auth, svc),
		Public:       handler.NewPublicHandler(repository.NewVenueRepo(db), slots),
		Reservations: handler.NewReservationHandler(svc, views),
		Schedules:    handler.NewScheduleHandler(svc, views),
		Admin:        handler.NewAdminHandler(svc, views),
	}, router.Options{
		JWTSecret:   cfg.Auth.JWTSecret,
		BrowseCache: middleware.ResponseCache(cacheCfg, rdb, 5*time.Minute),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s, store=%s)", addr, cfg.Env, dialect)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if cfg.Wire.Enabled {
		ln, err := net.Listen("tcp", cfg.Wire.Addr)
		if err != nil {
			log.Fatalf("wire: listen %s: %v", cfg.Wire.Addr, err)
		}
		ws := &wire.Server{
			Service:     svc,
			Views:       views,
			Slots:       slots,
			MaxConns:    cfg.Wire.MaxConns,
			IdleTimeout: cfg.Wire.IdleTimeout,
		}
		g.Go(func() error { return ws.Serve(gctx, ln) })
	}

	if cfg.Reconcile.Enabled {
		hour, minute, _ := cfg.Reconcile.Clock()
		job := &jobs.DailyReconciliation{
			Service: svc,
			Clock:   clk,
			Hour:    hour,
			Minute:  minute,
			Timeout: cfg.Reconcile.Timeout,
		}
		g.Go(func() error {
			job.Run(gctx)
			return nil
		})
	}

	if cfg.Events.Enabled {
		consumer := &queue.AuditConsumer{
			URL:      cfg.Events.URL,
			Exchange: cfg.Events.Exchange,
			Queue:    cfg.Events.AuditQueue,
			LogPath:  cfg.Events.AuditLog,
		}
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("server stopped: %v", err)
		return
	}
	log.Printf("server stopped")
}

// openStore opens the configured database and reports its dialect.
func openStore(c config.DBConfig) (*sql.DB, database.Dialect, error) {
	if strings.EqualFold(c.Driver, string(database.SQLite)) {
		db, err := database.OpenSQLite(c.Path)
		return db, database.SQLite, err
	}
	db, err := database.Open(c.User, c.Pass, c.Host, c.Port, c.Name)
	return db, database.MySQL, err
}
