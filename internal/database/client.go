// Package database runs SQL for database steps over database/sql. SQLite
// (modernc.org/sqlite) and PostgreSQL (lib/pq) drivers are registered.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chriserin/gherkit/internal/config"
	"github.com/chriserin/gherkit/internal/logging"
)

// Conn is what a scenario needs from a database connection.
type Conn interface {
	// Query runs a statement that returns rows. Column names are lower-cased.
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	// Execute runs a statement without rows and returns the affected count.
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	Close() error
}

type Client struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func NewClient(db *sql.DB, driver string, logger *zap.Logger) *Client {
	return &Client{
		db:     db,
		driver: driver,
		logger: logging.Component(logger, "DBClient"),
	}
}

// Open connects using cfg and pings the server.
func Open(ctx context.Context, cfg config.Database, logger *zap.Logger) (*Client, error) {
	driver, err := config.NormalizeDriver(cfg.Type)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, DSN(driver, cfg))
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// An in-memory database lives only as long as its connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}
	return NewClient(db, driver, logger), nil
}

// DSN builds a driver connection string from cfg unless cfg.DSN is set.
func DSN(driver string, cfg config.Database) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	switch driver {
	case "postgres":
		u := url.URL{Scheme: "postgres", Host: cfg.Host, Path: "/" + cfg.Name}
		if u.Host == "" {
			u.Host = "localhost"
		}
		if cfg.Port != 0 {
			u.Host += ":" + strconv.Itoa(cfg.Port)
		}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
			if cfg.Password == "" {
				u.User = url.User(cfg.User)
			}
		}
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		u.RawQuery = url.Values{"sslmode": {sslmode}}.Encode()
		return u.String()
	default:
		if cfg.Name == "" {
			return ":memory:"
		}
		return cfg.Name
	}
}

func (c *Client) Driver() string { return c.driver }

func (c *Client) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	c.logger.Debug("Executing query", zap.String("sql", query), zap.Int("args", len(args)))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			c.logger.Error("Error closing rows", zap.Error(closeErr))
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		row := make([]any, len(columns))
		rowPointers := make([]any, len(columns))
		for i := range row {
			rowPointers[i] = &row[i]
		}

		if err := rows.Scan(rowPointers...); err != nil {
			return nil, err
		}

		result := make(map[string]any, len(columns))
		for i, col := range columns {
			result[strings.ToLower(col)] = normalize(row[i])
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	c.logger.Debug("Executing statement", zap.String("sql", query), zap.Int("args", len(args)))

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *Client) Close() error {
	return c.db.Close()
}

// normalize turns driver byte slices into text so values compare and
// interpolate as strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// SplitParams splits a comma separated parameter list as written in a
// step. "none" and the empty string mean no parameters.
func SplitParams(params string) []any {
	trimmed := strings.TrimSpace(params)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
