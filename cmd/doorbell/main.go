package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/core-coin/doorbell/internal/config"
	"github.com/core-coin/doorbell/internal/doorbell"
	"github.com/core-coin/doorbell/internal/http_api"
	"github.com/core-coin/doorbell/internal/metrics"
	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/internal/notificator"
	"github.com/core-coin/doorbell/internal/ratelimit"
	"github.com/core-coin/doorbell/internal/repository"
	"github.com/core-coin/doorbell/internal/subscription"
	"github.com/core-coin/doorbell/internal/visit"
	"github.com/core-coin/doorbell/pkg/logger"
)

// storageFlags returns fresh flag instances for each command.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "storage-driver", Usage: "Storage driver (postgres or memory)"},
		&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
		&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
		&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
		&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
		&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
		&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
	}
}

func serveFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.IntFlag{Name: "port", Usage: "HTTP API port"},
		&cli.StringFlag{Name: "redis-url", Usage: "Redis URL for the shared ring cooldown"},
		&cli.DurationFlag{Name: "ring-cooldown", Usage: "Minimum interval between rings of one visit"},
		&cli.IntFlag{Name: "max-ring-distance", Usage: "Proximity gate in meters"},
	}, storageFlags()...)
}

func main() {
	app := &cli.App{
		Name:  "doorbell",
		Usage: "Doorbell turns a QR code scan into a push notification on the resident's devices",
		Flags: serveFlags(),
		Action: func(c *cli.Context) error {
			return run(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and background jobs (default)",
				Flags:  serveFlags(),
				Action: run,
			},
			{
				Name:   "vapid-keys",
				Usage:  "Generate a VAPID key pair for VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY",
				Action: vapidKeys,
			},
			{
				Name:  "add-address",
				Usage: "Register an address and print the UUID to encode in its QR code",
				Flags: append([]cli.Flag{
					&cli.Float64Flag{Name: "lat", Usage: "Latitude of the address"},
					&cli.Float64Flag{Name: "lon", Usage: "Longitude of the address"},
				}, storageFlags()...),
				Action: addAddress,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("storage-driver") {
		cfg.StorageDriver = c.String("storage-driver")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	if c.IsSet("redis-url") {
		cfg.RedisURL = c.String("redis-url")
	}
	if c.IsSet("ring-cooldown") {
		cfg.RingCooldown = c.Duration("ring-cooldown")
	}
	if c.IsSet("max-ring-distance") {
		cfg.MaxRingDistanceMeters = c.Int("max-ring-distance")
	}
	return cfg, nil
}

func openRepository(cfg *config.Config, log *logger.Logger) (models.Repository, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn("Using in-memory storage, data is lost on restart")
		return repository.NewInMemory(), nil
	}
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	repo, err := openRepository(cfg, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Ring cooldown
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %v", err)
		}
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client)
		log.Info("Ring cooldown shared through redis")
	}

	// Domain components
	visits := visit.NewManager(repo, cfg.VisitTTL, log.Named("visit"))
	registry := subscription.NewRegistry(repo, cfg.SubscriptionCap, log.Named("subscription"), subscription.WithMetrics(m))
	transport := notificator.NewWebPushTransport(log.Named("webpush"), notificator.WebPushConfig{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
		TTL:             cfg.PushTTLSeconds,
		Timeout:         cfg.PushTimeout,
	})
	notif := notificator.NewNotificator(log.Named("notificator"), registry, transport, m, notificator.Config{
		Concurrency:    cfg.PushConcurrency,
		SendTimeout:    cfg.PushTimeout,
		DeactivateGone: cfg.PushDeactivateGone,
	})

	opts := []doorbell.Option{doorbell.WithMetrics(m)}
	if cfg.TelegramEnabled() {
		alerter, err := notificator.NewTelegramAlerter(log.Named("telegram"), cfg.TelegramBotToken, cfg.TelegramAlertChatID)
		if err != nil {
			return err
		}
		go alerter.Start(ctx)
		opts = append(opts, doorbell.WithAlerter(alerter))
	}

	doorbellApp := doorbell.NewDoorbell(repo, visits, registry, notif, limiter, log.Named("doorbell"), cfg, opts...)

	// Initialize API server
	apiServer := http_api.NewHTTPServer(doorbellApp, http_api.NewTokenVerifier(cfg.JWTSecret), reg, cfg.APIPort, log.Named("http"))

	go apiServer.Start()
	// Start the application
	doorbellApp.Start()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}
	doorbellApp.Stop()
	return nil
}

func vapidKeys(c *cli.Context) error {
	privateKey, publicKey, err := notificator.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("failed to generate VAPID keys: %v", err)
	}
	fmt.Fprintf(c.App.Writer, "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
	return nil
}

func addAddress(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.StorageDriver != config.StorageDriverPostgres {
		return fmt.Errorf("add-address needs the postgres storage driver")
	}
	if c.IsSet("lat") != c.IsSet("lon") {
		return fmt.Errorf("--lat and --lon must be given together")
	}

	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	repo, err := openRepository(cfg, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	address := &models.Address{}
	if c.IsSet("lat") {
		lat, lon := c.Float64("lat"), c.Float64("lon")
		address.Latitude, address.Longitude = &lat, &lon
		if _, ok := address.Coordinates(); !ok {
			return fmt.Errorf("coordinates (%v, %v) are out of range", lat, lon)
		}
	}
	if err := repo.CreateAddress(c.Context, address); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, address.UUID)
	return nil
}
