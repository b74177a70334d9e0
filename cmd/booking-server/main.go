package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nickenf/afayaconekt-sub000/internal/config"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/rating"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/scheduling"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/stay"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/auth"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/cache"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/db"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/middleware"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/telemetry"
	"github.com/nickenf/afayaconekt-sub000/internal/seed"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "booking-server",
		Short: "Facility booking and stay API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(facilityCmd())
	rootCmd.AddCommand(providerCmd())
	rootCmd.AddCommand(optionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config, schema string) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolOptions{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   schema,
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")
			target, _ := cmd.Flags().GetInt("to")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir, schema)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.UpTo(ctx, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir, schema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				fmt.Println(formatStatus(s))
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func formatStatus(s db.MigrationStatus) string {
	status := "pending"
	appliedAt := ""
	if s.Applied {
		status = "applied"
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
	}
	return fmt.Sprintf("%-10d %-40s %-10s %s", s.Version, s.Name, status, appliedAt)
}

// services bundles the domain services over one storage backend.
type services struct {
	scheduling *scheduling.Service
	ratings    *rating.Service
	stays      *stay.Service
	pool       *pgxpool.Pool
	redis      *redis.Client
}

func (s *services) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// ratingLookup checks rated entities against the scheduling catalogue. The
// postgres repository enforces this in SQL; the memory repository needs it.
func ratingLookup(sched *scheduling.Service) rating.EntityLookup {
	return func(ctx context.Context, kind rating.Kind, id uuid.UUID) error {
		var err error
		switch kind {
		case rating.KindFacility:
			_, err = sched.GetFacility(ctx, id)
		case rating.KindProvider:
			_, err = sched.GetProvider(ctx, id)
		default:
			err = apperr.Validation("unknown rating kind %q", kind)
		}
		return err
	}
}

func facilityLookup(sched *scheduling.Service) stay.FacilityLookup {
	return func(ctx context.Context, id uuid.UUID) error {
		_, err := sched.GetFacility(ctx, id)
		return err
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*services, error) {
	svcs := &services{}
	ratingOpts := []rating.Option{
		rating.WithBounds(rating.Bounds{Min: cfg.RatingMin, Max: cfg.RatingMax}),
		rating.WithLogger(logger),
	}
	schedOpts := []scheduling.Option{scheduling.WithLogger(logger)}

	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		svcs.redis = client
		store := cache.NewStore(client, "booking", cfg.AvailabilityCacheTTL)
		schedOpts = append(schedOpts, scheduling.WithCache(scheduling.NewRedisOccupancy(store)))
		logger.Info().Dur("ttl", cfg.AvailabilityCacheTTL).Msg("availability cache enabled")
	}

	if cfg.UsePostgres() {
		pool, err := openPool(ctx, cfg, cfg.DBSchema)
		if err != nil {
			svcs.Close()
			return nil, err
		}
		svcs.pool = pool
		svcs.scheduling = scheduling.NewService(
			scheduling.NewFacilityRepoPG(pool),
			scheduling.NewProviderRepoPG(pool),
			scheduling.NewBookingRepoPG(pool),
			schedOpts...,
		)
		svcs.ratings = rating.NewService(rating.NewRepoPG(pool), ratingOpts...)
		svcs.stays = stay.NewService(stay.NewOptionRepoPG(pool), stay.NewStayRepoPG(pool))
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
		return svcs, nil
	}

	sched := scheduling.NewMemoryStore()
	svcs.scheduling = scheduling.NewService(sched.Facilities(), sched.Providers(), sched.Bookings(), schedOpts...)
	svcs.ratings = rating.NewService(rating.NewMemoryRepo(ratingLookup(svcs.scheduling)), ratingOpts...)
	stays := stay.NewMemoryStore()
	svcs.stays = stay.NewService(stays.Options(), stays.Stays(), stay.WithFacilityLookup(facilityLookup(svcs.scheduling)))
	logger.Warn().Msg("using in-memory storage; data is lost on restart")
	return svcs, nil
}

func newServer(cfg *config.Config, svcs *services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", scheduling.IdempotencyKeyHeader},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if svcs.pool != nil {
		e.GET("/health/db", db.HealthHandler(svcs.pool))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RateLimitRPS),
			Burst:     cfg.RateLimitBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	}))
	if cfg.AuthSigningKey != "" || cfg.AuthJWKSURL != "" {
		apiV1.Use(auth.Authenticate(auth.Config{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			JWKSURL:    cfg.AuthJWKSURL,
		}))
	} else {
		logger.Warn().Msg("no token verifier configured; every request is anonymous")
	}

	scheduling.NewHandler(svcs.scheduling, cfg.AllowAnonymousBookings).RegisterRoutes(apiV1)
	rating.NewHandler(svcs.ratings).RegisterRoutes(apiV1)
	stay.NewHandler(svcs.stays).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialise storage: %w", err)
	}
	defer svcs.Close()

	if cfg.SeedFile != "" {
		fx, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
		sum, err := fx.Apply(ctx, svcs.scheduling, svcs.stays)
		if err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
		logger.Info().
			Int("facilities", sum.Facilities).
			Int("providers", sum.Providers).
			Int("options", sum.Options).
			Msg("seed data applied")
	}

	e := newServer(cfg, svcs, logger)

	// Graceful shutdown
	serveErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// withPostgres runs fn against postgres-backed services. Catalogue commands
// are meaningless against the memory driver.
func withPostgres(fn func(ctx context.Context, svcs *services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.UsePostgres() {
		return fmt.Errorf("this command requires STORAGE_DRIVER=%s", config.StoragePostgres)
	}
	cfg.RedisURL = ""

	ctx := context.Background()
	svcs, err := buildServices(ctx, cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer svcs.Close()
	return fn(ctx, svcs)
}

func facilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facility",
		Short: "Manage facilities",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a facility",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			return withPostgres(func(ctx context.Context, svcs *services) error {
				f := &scheduling.Facility{Name: name, Active: true}
				if err := svcs.scheduling.CreateFacility(ctx, f); err != nil {
					return err
				}
				fmt.Printf("Created facility %s (%s)\n", f.Name, f.ID)
				return nil
			})
		},
	}
	addCmd.Flags().String("name", "", "Facility name")

	cmd.AddCommand(addCmd)
	return cmd
}

func providerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage providers",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a provider at a facility",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawFacility, _ := cmd.Flags().GetString("facility")
			name, _ := cmd.Flags().GetString("name")
			fee, _ := cmd.Flags().GetInt64("fee")
			start, _ := cmd.Flags().GetInt("start-hour")
			end, _ := cmd.Flags().GetInt("end-hour")
			granularity, _ := cmd.Flags().GetInt("granularity")

			facilityID, err := uuid.Parse(rawFacility)
			if err != nil {
				return fmt.Errorf("--facility must be a UUID: %w", err)
			}
			return withPostgres(func(ctx context.Context, svcs *services) error {
				p := &scheduling.Provider{
					FacilityID:         facilityID,
					Name:               name,
					Fee:                money.Money(fee),
					Window:             calendar.Window{StartHour: start, EndHour: end},
					GranularityMinutes: granularity,
					Active:             true,
				}
				if err := svcs.scheduling.CreateProvider(ctx, p); err != nil {
					return err
				}
				fmt.Printf("Created provider %s (%s)\n", p.Name, p.ID)
				return nil
			})
		},
	}
	addCmd.Flags().String("facility", "", "Facility ID")
	addCmd.Flags().String("name", "", "Provider name")
	addCmd.Flags().Int64("fee", 0, "Consultation fee in minor currency units")
	addCmd.Flags().Int("start-hour", 9, "First bookable hour")
	addCmd.Flags().Int("end-hour", 17, "Hour at which bookings must have ended")
	addCmd.Flags().Int("granularity", 30, "Slot granularity in minutes")

	cmd.AddCommand(addCmd)
	return cmd
}

func optionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "option",
		Short: "Manage facility stay options",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a stay option at a facility",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawFacility, _ := cmd.Flags().GetString("facility")
			name, _ := cmd.Flags().GetString("name")
			nightly, _ := cmd.Flags().GetInt64("nightly-rate")
			maxGuests, _ := cmd.Flags().GetInt("max-guests")

			facilityID, err := uuid.Parse(rawFacility)
			if err != nil {
				return fmt.Errorf("--facility must be a UUID: %w", err)
			}
			return withPostgres(func(ctx context.Context, svcs *services) error {
				o := &stay.FacilityOption{
					FacilityID:  facilityID,
					Name:        name,
					NightlyRate: money.Money(nightly),
					MaxGuests:   maxGuests,
					Active:      true,
				}
				if err := svcs.stays.CreateOption(ctx, o); err != nil {
					return err
				}
				fmt.Printf("Created option %s (%s)\n", o.Name, o.ID)
				return nil
			})
		},
	}
	addCmd.Flags().String("facility", "", "Facility ID")
	addCmd.Flags().String("name", "", "Option name")
	addCmd.Flags().Int64("nightly-rate", 0, "Nightly rate in minor currency units")
	addCmd.Flags().Int("max-guests", 1, "Maximum guests")

	cmd.AddCommand(addCmd)
	return cmd
}
