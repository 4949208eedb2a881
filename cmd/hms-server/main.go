package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Het-thummar/hospital-management/internal/config"
	"github.com/Het-thummar/hospital-management/internal/domain/access"
	"github.com/Het-thummar/hospital-management/internal/domain/appointment"
	"github.com/Het-thummar/hospital-management/internal/domain/approval"
	"github.com/Het-thummar/hospital-management/internal/domain/dashboard"
	"github.com/Het-thummar/hospital-management/internal/domain/discharge"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/internal/domain/site"
	"github.com/Het-thummar/hospital-management/internal/platform/auth"
	"github.com/Het-thummar/hospital-management/internal/platform/blobstore"
	"github.com/Het-thummar/hospital-management/internal/platform/db"
	"github.com/Het-thummar/hospital-management/internal/platform/middleware"
	"github.com/Het-thummar/hospital-management/internal/platform/notification"
	"github.com/Het-thummar/hospital-management/internal/platform/reporting"
	"github.com/Het-thummar/hospital-management/internal/platform/telemetry"
	"github.com/Het-thummar/hospital-management/internal/platform/websocket"
	"github.com/Het-thummar/hospital-management/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital management server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createSuperuserCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// migrationSource reads from dir when set and from the embedded files otherwise.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		dir, _ := cmd.Flags().GetString("dir")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if dir == "" {
			dir = cfg.MigrationsDir
		}

		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		return fn(ctx, db.NewMigrator(pool, migrationSource(dir)))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded migrations)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func createSuperuserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a superuser account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			firstName, _ := cmd.Flags().GetString("first-name")
			if password == "" {
				password = os.Getenv("SUPERUSER_PASSWORD")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(identity.NewPGRepos(pool), db.NewTransactor(pool), nil, logger)
			a, err := svc.CreateSuperuser(ctx, identity.AccountInput{
				FirstName:       firstName,
				Username:        username,
				Password:        password,
				ConfirmPassword: password,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Superuser %s created (%s).\n", a.Username, a.ID)
			return nil
		},
	}
	cmd.Flags().String("username", "admin", "Login name")
	cmd.Flags().String("password", "", "Password (or SUPERUSER_PASSWORD)")
	cmd.Flags().String("first-name", "Admin", "First name")
	return cmd
}

// deps are the stores and senders the HTTP server is built from. runServer
// fills them with PostgreSQL, Redis and real senders; tests use the in-memory
// versions.
type deps struct {
	repos        *identity.Repos
	appointments appointment.Repository
	discharges   discharge.Repository
	tx           db.Transactor
	blobs        blobstore.BlobStore
	email        notification.EmailSender
	sms          notification.SMSSender
	revoker      auth.Revoker
	pinger       db.Pinger
	// reports is nil without a database; the report routes are then absent.
	reports reporting.Querier
}

func runServer(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if migrate {
		n, err := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	d := &deps{
		repos:        identity.NewPGRepos(pool),
		appointments: appointment.NewRepo(pool),
		discharges:   discharge.NewRepo(pool),
		tx:           db.NewTransactor(pool),
		pinger:       pool,
		reports:      pool,
	}

	if cfg.RedisURL != "" {
		client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		d.revoker = auth.NewRedisRevocationStore(client)
		logger.Info().Msg("session revocation backed by redis")
	} else {
		mem := auth.NewMemoryRevocationStore(time.Minute)
		defer mem.Close()
		d.revoker = mem
	}

	if d.blobs, err = blobstore.NewDiskBlobStore(cfg.MediaDir); err != nil {
		logger.Fatal().Err(err).Msg("failed to open media directory")
	}

	logSender := notification.NewLogSender(logger)
	d.email, d.sms = logSender, logSender
	if cfg.SMTPEnabled() {
		d.email = notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.ContactEmail)
	}
	if cfg.TwilioEnabled() {
		d.sms = notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	}

	e, err := newServer(cfg, logger, d)
	if err != nil {
		return err
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires middleware, services and routes.
func newServer(cfg *config.Config, logger zerolog.Logger, d *deps) (*echo.Echo, error) {
	metrics := telemetry.New()
	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, d.revoker, cfg.IsProduction())
	notifier := notification.NewNotifier(d.email, d.sms, nil)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware(auth.OpsSkipper))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID, middleware.CSRFHeader},
		ExposeHeaders:    []string{middleware.CSRFHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit("64K", "6M"))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	if cfg.CSRFKey != "" {
		e.Use(middleware.CSRF([]byte(cfg.CSRFKey), cfg.IsProduction(), csrfSkipper))
	} else {
		logger.Warn().Msg("CSRF_KEY is not set; CSRF protection is disabled")
	}

	identitySvc := identity.NewService(d.repos, d.tx, metrics, logger)
	e.Use(auth.SessionMiddleware(sessions))
	e.Use(identity.ActorMiddleware(identitySvc))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(d.pinger))
	e.GET("/metrics", metrics.Handler())

	siteHandler, err := site.NewHandler(notifier, cfg.ContactEmail, logger)
	if err != nil {
		return nil, fmt.Errorf("build site pages: %w", err)
	}
	siteHandler.RegisterRoutes(e)

	identity.NewHandler(identitySvc, sessions, d.blobs).RegisterRoutes(e)
	blobstore.NewBlobHandler(d.blobs).RegisterRoutes(e)

	hub := websocket.NewHub(logger)
	e.GET("/ws", websocket.NewHandler(hub, cfg.CORSOrigins, liveTopics).Connect, identity.RequireActor("/"))

	appointmentSvc := appointment.NewService(d.appointments, d.repos.Doctors, d.repos.Patients, metrics, logger)
	appointmentSvc.SetPublisher(hub)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(e)

	approvalSvc := approval.NewService(d.repos, d.appointments, d.tx, d.blobs, notifier, metrics, logger)
	approvalSvc.SetPublisher(hub)
	approval.NewHandler(approvalSvc).RegisterRoutes(e)

	dischargeSvc := discharge.NewService(d.discharges, d.repos.Patients, d.repos.Doctors, metrics, logger)
	discharge.NewHandler(dischargeSvc).RegisterRoutes(e)

	dashboard.NewHandler(dashboard.NewService(d.repos, d.appointments, d.discharges)).RegisterRoutes(e)

	if d.reports != nil {
		reporting.NewHandler(d.reports).RegisterRoutes(e, access.Guard(access.CapAdmin)...)
	}

	return e, nil
}

// liveTopics subscribes a connection to its own account and, for admins, to
// the admin feed.
func liveTopics(c echo.Context) ([]string, error) {
	actor := identity.ActorFromContext(c.Request().Context())
	if actor == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized)
	}
	topics := []string{websocket.AccountTopic(actor.ID())}
	if _, err := access.Require(actor, access.CapAdmin); err == nil {
		topics = append(topics, websocket.AdminsTopic)
	}
	return topics, nil
}

// csrfSkipper exempts infrastructure endpoints and bearer-token API clients,
// which cannot be driven by a cross-site form.
func csrfSkipper(c echo.Context) bool {
	if auth.OpsSkipper(c) {
		return true
	}
	scheme, _, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
	return ok && strings.EqualFold(scheme, "bearer")
}
