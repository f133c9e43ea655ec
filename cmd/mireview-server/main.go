package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cnics/mireview/internal/config"
	"github.com/cnics/mireview/internal/domain/event"
	"github.com/cnics/mireview/internal/domain/patient"
	"github.com/cnics/mireview/internal/domain/user"
	"github.com/cnics/mireview/internal/platform/auth"
	"github.com/cnics/mireview/internal/platform/blobstore"
	"github.com/cnics/mireview/internal/platform/db"
	"github.com/cnics/mireview/internal/platform/middleware"
	"github.com/cnics/mireview/internal/platform/notify"
	"github.com/cnics/mireview/internal/platform/validate"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mireview-server",
		Short: "MI event review API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// openPool loads config and connects with search_path set to schema, or to
// the configured schema when schema is empty.
func openPool(ctx context.Context, schema string) (string, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", nil, err
	}
	if schema == "" {
		schema = cfg.DBSchema
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return "", nil, err
	}
	return schema, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			schema, pool, err := openPool(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			schema, pool, err := openPool(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			printMigrationStatus(os.Stdout, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// userCmd bootstraps accounts from the shell. The API never creates users
// implicitly, so the first admin has to come from here.
func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := userRequestFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			_, pool, err := openPool(ctx, "")
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(os.Getenv("ENV"))
			svc := user.NewService(user.NewUserRepoPG(pool), logger)
			u, err := svc.Create(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("Created user %d (%s) at site %s with roles %v\n", u.ID, u.Login, u.Site, u.Capabilities())
			return nil
		},
	}
	createCmd.Flags().String("login", "", "Login asserted by the identity provider")
	createCmd.Flags().String("username", "", "Display username")
	createCmd.Flags().String("first-name", "", "First name")
	createCmd.Flags().String("last-name", "", "Last name")
	createCmd.Flags().String("site", "", "Site code")
	createCmd.Flags().Bool("admin", false, "Grant admin")
	createCmd.Flags().Bool("uploader", false, "Grant uploader")
	createCmd.Flags().Bool("reviewer", true, "Grant reviewer")
	createCmd.Flags().Bool("third-reviewer", false, "Grant third reviewer")

	cmd.AddCommand(createCmd)
	return cmd
}

func userRequestFromFlags(cmd *cobra.Command) (*user.CreateRequest, error) {
	f := cmd.Flags()
	req := &user.CreateRequest{}
	req.Login, _ = f.GetString("login")
	req.Username, _ = f.GetString("username")
	req.FirstName, _ = f.GetString("first-name")
	req.LastName, _ = f.GetString("last-name")
	req.Site, _ = f.GetString("site")
	req.Admin, _ = f.GetBool("admin")
	req.Uploader, _ = f.GetBool("uploader")
	req.ThirdReviewer, _ = f.GetBool("third-reviewer")
	reviewer, _ := f.GetBool("reviewer")
	req.Reviewer = &reviewer

	if req.Login == "" {
		return nil, fmt.Errorf("--login is required")
	}
	if req.Site == "" {
		return nil, fmt.Errorf("--site is required")
	}
	if req.Username == "" {
		req.Username = req.Login
	}
	return req, nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return jc
}

func identifyConfig(cfg *config.Config) auth.IdentifyConfig {
	ic := auth.IdentifyConfig{
		Header:         cfg.AuthHeader,
		AllowAnonymous: cfg.AllowAnonymous,
	}
	if cfg.BearerEnabled() {
		ic.Verifier = auth.NewJWTVerifier(jwtConfig(cfg))
	}
	return ic
}

func newPacketStore(ctx context.Context, cfg *config.Config, fsys afero.Fs) (blobstore.Store, error) {
	switch cfg.PacketBackend {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return blobstore.NewS3Store(blobstore.NewS3Client(awsCfg), cfg.PacketS3Bucket, cfg.PacketS3Prefix), nil
	default:
		store, err := blobstore.NewDirStore(fsys, cfg.PacketDir)
		if err != nil {
			return nil, err
		}
		if err := store.CheckWritable(); err != nil {
			return nil, err
		}
		return store, nil
	}
}

func newPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notify.Publisher, error) {
	switch cfg.NotifyBackend {
	case "kafka":
		return notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)), nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return notify.NewSQSPublisher(notify.NewSQSClient(awsCfg), cfg.SQSQueueURL), nil
	default:
		return notify.NewLogPublisher(logger), nil
	}
}

// untimedRoutes stream packets or whole tables and run without a deadline.
var untimedRoutes = []string{
	"/api/events/:id/upload",
	"/api/events/:id/scrub",
	"/api/events/import",
	"/api/events/export.csv",
	"/files/*",
}

// auditedPrefixes cover every route that reads or changes event data or
// serves a file.
var auditedPrefixes = []string{"/api/events", "/files/"}

// bodyLimit leaves a megabyte of headroom over the largest packet for
// multipart framing.
func bodyLimit() string {
	return fmt.Sprintf("%dM", blobstore.MaxFileSize>>20+1)
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.AllowAnonymous {
		logger.Warn().Msg("ALLOW_ANONYMOUS is enabled: requests without credentials bypass every capability check")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders("/files/"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", cfg.AuthHeader},
	}))
	e.Use(echomw.BodyLimit(bodyLimit()))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, untimedRoutes...))
	e.Use(middleware.Audit(logger, auditedPrefixes...))

	// Metrics
	var eventMetrics *event.Metrics
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(db.NewPoolCollector(pool))
		e.Use(middleware.NewMetrics(reg).Middleware())
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
		eventMetrics = event.NewMetrics(reg)
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, logger))

	// Static documents
	files, err := blobstore.NewDirStore(afero.NewOsFs(), cfg.FilesDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open files directory")
	}
	blobstore.NewFileHandler(files).RegisterRoutes(e)

	// Users and identity
	userSvc := user.NewService(user.NewUserRepoPG(pool), logger)
	api := e.Group("/api", db.SessionMiddleware(pool), auth.Identify(identifyConfig(cfg), userSvc, logger))
	user.NewHandler(userSvc).RegisterRoutes(api)

	// Patients
	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), logger)
	patientSvc.SetWritable(cfg.PatientStoreWritable)
	if cfg.PatientRegistryDSN != "" {
		registry, err := patient.OpenRegistry(ctx, cfg.PatientRegistryDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to patient registry")
		}
		defer registry.Close()
		patientSvc.SetRegistry(patient.NewRegistryStore(registry))
		logger.Info().Bool("writable", cfg.PatientStoreWritable).Msg("using external patient registry")
	}

	// Events
	packets, err := newPacketStore(ctx, cfg, afero.NewOsFs())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open packet store")
	}
	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create notification publisher")
	}
	defer publisher.Close()

	eventSvc := event.NewService(event.NewEventRepoPG(pool), db.NewTransactor(pool), patientSvc, userSvc, packets, logger)
	eventSvc.SetPublisher(publisher)
	eventSvc.SetMetrics(eventMetrics)
	event.NewHandler(eventSvc).RegisterRoutes(api)

	logger.Info().
		Str("packets", cfg.PacketBackend).
		Str("notify", cfg.NotifyBackend).
		Bool("bearer", cfg.BearerEnabled()).
		Msg("services wired")

	// Graceful shutdown
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
