// Package db is the SurrealDB storage backend. Client manages an
// auto-reconnecting connection; Store implements store.Store on top of it.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/wspiernik/internal/config"
)

func init() {
	// WebSocket upgrades need HTTP/1.1; keep ALPN from picking h2 on wss.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Auth levels.
const (
	AuthRoot     = "root"
	AuthDatabase = "database"
)

// tables lists every table the backend writes, children first.
var tables = []string{"message", "support_log", "fact", "conversation"}

// Config holds SurrealDB connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // AuthRoot or AuthDatabase

	// Reconnect tuning; zero values select the defaults.
	RequestTimeout time.Duration
	MaxRetries     int
}

// ConfigFrom maps application settings onto a connection config.
// Credentials are always root-level.
func ConfigFrom(c config.SurrealDBConfig) Config {
	return Config{
		URL:       c.URL,
		Namespace: c.Namespace,
		Database:  c.Database,
		Username:  c.User,
		Password:  c.Pass,
		AuthLevel: AuthRoot,
	}
}

// baseURL strips the /rpc suffix; gorillaws appends it itself.
func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSuffix(c.URL, "/"), "/rpc")
}

func (c Config) auth() surrealdb.Auth {
	if c.AuthLevel == AuthDatabase {
		return surrealdb.Auth{
			Namespace: c.Namespace,
			Database:  c.Database,
			Username:  c.Username,
			Password:  c.Password,
		}
	}
	return surrealdb.Auth{Username: c.Username, Password: c.Password}
}

func (c Config) withDefaults() Config {
	if c.AuthLevel == "" {
		c.AuthLevel = AuthRoot
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	return c
}

// Client owns one SurrealDB connection that redials with exponential backoff.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger logger.Logger
}

// NewClient connects, signs in and selects the namespace and database.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())

	conn := newConnection(cfg, sdkLogger)
	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	c := &Client{conn: conn, cfg: cfg, logger: sdkLogger}
	if err := c.open(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	sdkLogger.Info("SurrealDB connection established", "namespace", cfg.Namespace, "database", cfg.Database)
	return c, nil
}

func newConnection(cfg Config, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
	codec := surrealcbor.New()
	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     cfg.baseURL(),
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		cfg.RequestTimeout,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = cfg.MaxRetries
	conn.Retryer = retryer
	return conn
}

func (c *Client) open(ctx context.Context) error {
	db, err := surrealdb.FromConnection(ctx, c.conn)
	if err != nil {
		return fmt.Errorf("from connection: %w", err)
	}
	if _, err := db.SignIn(ctx, c.cfg.auth()); err != nil {
		return fmt.Errorf("signin as %s (%s): %w", c.cfg.Username, c.cfg.AuthLevel, err)
	}
	if err := db.Use(ctx, c.cfg.Namespace, c.cfg.Database); err != nil {
		return fmt.Errorf("use %s/%s: %w", c.cfg.Namespace, c.cfg.Database, err)
	}
	c.db = db
	return nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// InitSchema applies SchemaSQL. It is safe to run on every start.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.logger.Info("schema ready")
	return nil
}

// WipeData deletes all records and keeps the schema.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all data from database")
	for _, table := range tables {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
