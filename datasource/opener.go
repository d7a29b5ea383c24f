package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	go_ora "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"github.com/gaborage/go-sqlmapper/config"
)

// Opener builds a connection pool for url. Non-empty credentials override
// those embedded in the URL.
type Opener func(url, username, password string) (*sql.DB, error)

// DefaultOpeners returns the built-in openers keyed by driver name.
func DefaultOpeners() map[string]Opener {
	return map[string]Opener{
		"mysql":      OpenMySQL,
		"pgx":        OpenPostgreSQL,
		"postgresql": OpenPostgreSQL,
		"oracle":     OpenOracle,
		"sqlite":     OpenSQLite,
	}
}

// OpenMySQL opens a pool with go-sql-driver/mysql. url is a driver DSN
// such as user:pass@tcp(host:3306)/db.
func OpenMySQL(dsn, username, password string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	if username != "" {
		cfg.User = username
		cfg.Passwd = password
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// OpenPostgreSQL opens a pool with the pgx stdlib adapter. url is a
// postgres:// URL or a libpq keyword/value string.
func OpenPostgreSQL(dsn, username, password string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}
	if username != "" {
		cfg.User = username
		cfg.Password = password
	}
	return stdlib.OpenDB(*cfg), nil
}

// OpenOracle opens a pool with go-ora. url is either a full oracle:// URL
// or host:port/service.
func OpenOracle(dsn, username, password string) (*sql.DB, error) {
	oracleURL, err := oracleDSN(dsn, username, password)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("oracle", oracleURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open Oracle connection: %w", err)
	}
	return db, nil
}

func oracleDSN(dsn, username, password string) (string, error) {
	if strings.HasPrefix(strings.ToLower(dsn), "oracle://") {
		if username == "" {
			return dsn, nil
		}
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("failed to parse Oracle URL: %w", err)
		}
		u.User = url.UserPassword(username, password)
		return u.String(), nil
	}

	hostPort, service, _ := strings.Cut(dsn, "/")
	host, portText, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", fmt.Errorf("invalid Oracle address %q: %w", hostPort, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", fmt.Errorf("invalid Oracle port %q: %w", portText, err)
	}
	return go_ora.BuildUrl(host, port, service, username, password, nil), nil
}

// OpenSQLite opens a pool with modernc.org/sqlite. url is a file name or a
// file: URI; credentials are ignored.
func OpenSQLite(dsn, _, _ string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return db, nil
}

func configurePool(db *sql.DB, cfg config.PoolConfig) {
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
}

func pingPool(ctx context.Context, db *sql.DB, cfg config.PoolConfig) error {
	if cfg.PingTimeout <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
