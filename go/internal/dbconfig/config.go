// Package dbconfig resolves where the local tier lives: a sqlite file under
// the user's data directory, or a Postgres database described by DB_*
// environment variables.
package dbconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

var ErrUnknownDriver = errors.New("unknown local driver")

// Postgres describes a server database holding the local tier.
type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PostgresFromEnv reads the DB_* variables. Unset variables fall back to a
// database on localhost; a port that is not a number is an error.
func PostgresFromEnv() (Postgres, error) {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return Postgres{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	return Postgres{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "splitkeeper"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}, nil
}

// DSN returns the connection URL, understood by both lib/pq and pgx.
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": []string{p.SSLMode}}.Encode(),
	}
	return u.String()
}

// DataDir is where splitkeeper keeps its sqlite database and the legacy
// key/value file.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "splitkeeper")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "splitkeeper")
	}
	return "splitkeeper"
}

// Resolve returns the DSN to open with driver. A non-empty dsn is returned
// as is.
func Resolve(driver, dsn string) (string, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = filepath.Join(DataDir(), "splitkeeper.db")
		}
		return dsn, nil
	case DriverPostgres, DriverPgx:
		if dsn != "" {
			return dsn, nil
		}
		pg, err := PostgresFromEnv()
		if err != nil {
			return "", err
		}
		return pg.DSN(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
