package database

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Alijeyrad/teleconsult/config"
)

// Config holds database connection and pool settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int

	AutoMigrate bool
}

// DSN returns a PostgreSQL connection URL. Credentials are escaped.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c Config) ConnMaxLifetime() time.Duration {
	if c.ConnMaxLifetimeMin <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ConnMaxLifetimeMin) * time.Minute
}

func DefaultConfig() Config {
	return Config{
		Host:               "localhost",
		Port:               5432,
		SSLMode:            "disable",
		MaxOpenConns:       25,
		MaxIdleConns:       5,
		ConnMaxLifetimeMin: 5,
	}
}

// FromCentralConfig converts config.DatabaseConfig, keeping defaults for
// anything left unset.
func FromCentralConfig(c config.DatabaseConfig) Config {
	out := DefaultConfig()
	out.User = c.User
	out.Password = c.Password
	out.DBName = c.DBName
	out.AutoMigrate = c.Migrations.AutoMigrate
	if c.Host != "" {
		out.Host = c.Host
	}
	if c.Port > 0 {
		out.Port = c.Port
	}
	if c.SSLMode != "" {
		out.SSLMode = c.SSLMode
	}
	if c.Pool.MaxOpenConns > 0 {
		out.MaxOpenConns = c.Pool.MaxOpenConns
	}
	if c.Pool.MaxIdleConns > 0 {
		out.MaxIdleConns = c.Pool.MaxIdleConns
	}
	if c.Pool.ConnMaxLifetimeMin > 0 {
		out.ConnMaxLifetimeMin = c.Pool.ConnMaxLifetimeMin
	}
	return out
}

func NewDSN(c config.DatabaseConfig) string {
	return FromCentralConfig(c).DSN()
}
