package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wishliste/donum/internal/broker"
	"github.com/wishliste/donum/internal/config"
	"github.com/wishliste/donum/internal/coordinator"
	"github.com/wishliste/donum/internal/donum"
	"github.com/wishliste/donum/internal/guest"
	"github.com/wishliste/donum/internal/http_api"
	"github.com/wishliste/donum/internal/identity"
	"github.com/wishliste/donum/internal/metrics"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/internal/notificator"
	"github.com/wishliste/donum/internal/repository"
	"github.com/wishliste/donum/pkg/logger"
	"github.com/wishliste/donum/pkg/watcher"
)

func main() {
	app := &cli.App{
		Name:  "donum",
		Usage: "Donum is the reservation and contribution service for shared wish lists",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-driver", Usage: "Database driver (postgres or sqlite)"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the guest session janitor",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create or update the database schema",
				Action: migrate,
			},
			{
				Name:  "token",
				Usage: "Sign an access token for a registered user (development only)",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user", Required: true, Usage: "User id"},
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour, Usage: "Token lifetime"},
				},
				Action: token,
			},
			{
				Name:  "watch",
				Usage: "Follow a list's channel and print its funding on every change",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Value: "http://localhost:6532", Usage: "API base URL"},
					&cli.StringFlag{Name: "list", Required: true, Usage: "List id or share token"},
				},
				Action: watch,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the environment, then lets flags override it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	if c.IsSet("db-driver") {
		cfg.DBDriver = c.String("db-driver")
	}
	if c.IsSet("postgres-user") {
		cfg.Postgres.User = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.Postgres.Password = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.Postgres.Host = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.Postgres.Port = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.Postgres.DB = c.String("postgres-db")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}
	return cfg, nil
}

func openDB(cfg *config.Config, log *logger.Logger) (*repository.DB, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return repository.NewSQLiteDB(cfg.SQLitePath, log)
	default:
		return repository.NewPostgresDB(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DB, cfg.Postgres.Host, cfg.Postgres.Port, log)
	}
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	// Initialize database
	db, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}

	m := metrics.New()
	hub := broker.NewHub(db, cfg.SubscriberBuffer, log, m)
	notifier := notificator.NewNotificator(log, hub)
	coord := coordinator.New(db, notifier, log, coordinator.WithMetrics(m))
	issuer := guest.NewIssuer(db, log, guest.WithTTL(cfg.GuestTTL), guest.WithMetrics(m))
	verifier := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	donumApp := donum.NewDonum(db, coord, issuer, verifier, hub, log, cfg)
	apiServer := http_api.NewHTTPServer(donumApp, cfg, m, log)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error {
		return donumApp.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return apiServer.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Error("Donum stopped with an error", "error", err)
		return err
	}
	log.Info("Donum stopped")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	db, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}
	log.Info("Database schema is up to date", "driver", cfg.DBDriver)
	return nil
}

func token(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if !cfg.Development && !c.Bool("development") {
		return fmt.Errorf("token signing is only available in development mode")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	signed, err := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).Sign(c.Int64("user"), c.String("name"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, signed)
	return nil
}

func watch(c *cli.Context) error {
	log, err := logger.NewLogger(c.Bool("development"))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	base := strings.TrimRight(c.String("url"), "/")
	key := c.String("list")
	client := &http.Client{Timeout: 10 * time.Second}

	refetch := watcher.RefetchFunc(func(ctx context.Context, ev *watcher.Event) error {
		if ev != nil {
			log.Info("Channel event", "type", ev.Type, "item_id", ev.ItemID)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/lists/"+key+"/funding", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("funding request returned %s", resp.Status)
		}

		var body struct {
			Items []*models.FundingSnapshot `json:"items"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}
		for _, item := range body.Items {
			fmt.Fprintf(c.App.Writer, "%d\t%-12s\t%s/%s\t%s\n",
				item.ItemID, item.State, item.CollectedAmount.StringFixed(2), priceString(item.Price), item.Title)
		}
		return nil
	})

	w, err := watcher.New(base, key, refetch, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func priceString(p decimal.NullDecimal) string {
	if !p.Valid {
		return "-"
	}
	return p.Decimal.StringFixed(2)
}
