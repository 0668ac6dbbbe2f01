package pg

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

// Config describes a PostgreSQL connection pool.
type Config struct {
	User               string        `mapstructure:"user"`
	Host               string        `mapstructure:"host"`
	Password           string        `mapstructure:"password"`
	Port               int           `mapstructure:"port"`
	DbName             string        `mapstructure:"db_name"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	MaxOpenConnections int           `mapstructure:"max_open_connections"`
	MaxIdleConnections int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the connection URL for the config.
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DbName, sslMode,
	)
}

// Open returns a connection pool using the New Relic instrumented pgx driver.
func Open(c *Config) (*sql.DB, error) {
	db, err := sql.Open("nrpgx", c.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open connection pool")
	}

	if c.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(c.MaxOpenConnections)
	}
	if c.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(c.MaxIdleConnections)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return db, nil
}
