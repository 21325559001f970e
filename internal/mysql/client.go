package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sqldriver "github.com/go-sql-driver/mysql"
)

// ErrNotConfigured is returned by FromEnv when no MySQL settings are present.
var ErrNotConfigured = errors.New("mysql not configured")

// Config maps connection settings for the MySQL instance.
type Config struct {
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	Params          string
	TLSCAPath       string
	TLSConfigName   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// FromEnv constructs Config from environment variables. It returns
// ErrNotConfigured when neither MYSQL_DSN nor MYSQL_HOST is set, and a
// descriptive error when the settings are incomplete.
func FromEnv() (Config, error) {
	cfg := Config{
		DSN:             strings.TrimSpace(os.Getenv("MYSQL_DSN")),
		Host:            os.Getenv("MYSQL_HOST"),
		Port:            defaultString(os.Getenv("MYSQL_PORT"), "3306"),
		User:            os.Getenv("MYSQL_USER"),
		Password:        os.Getenv("MYSQL_PASSWORD"),
		Database:        os.Getenv("MYSQL_DATABASE"),
		Params:          os.Getenv("MYSQL_PARAMS"),
		TLSCAPath:       os.Getenv("MYSQL_TLS_CA"),
		TLSConfigName:   defaultString(os.Getenv("MYSQL_TLS_CONFIG"), "sinusoid"),
		MaxOpenConns:    parseInt(os.Getenv("MYSQL_MAX_OPEN_CONNS"), 10),
		MaxIdleConns:    parseInt(os.Getenv("MYSQL_MAX_IDLE_CONNS"), 5),
		ConnMaxLifetime: parseDuration(os.Getenv("MYSQL_CONN_MAX_LIFETIME"), 30*time.Minute),
		PingTimeout:     parseDuration(os.Getenv("MYSQL_PING_TIMEOUT"), 5*time.Second),
	}

	if cfg.DSN == "" && cfg.Host == "" {
		return Config{}, ErrNotConfigured
	}

	if strings.HasPrefix(strings.ToLower(cfg.DSN), "mysql://") {
		if err := cfg.applyURLDSN(cfg.DSN); err != nil {
			return Config{}, fmt.Errorf("parse MYSQL_DSN: %w", err)
		}
		cfg.DSN = ""
	}

	if cfg.DSN == "" {
		if cfg.Host == "" || cfg.User == "" || cfg.Database == "" {
			return Config{}, errors.New("incomplete MySQL configuration: provide MYSQL_DSN or MYSQL_HOST, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE")
		}
	}

	return cfg, nil
}

// New opens a pooled MySQL connection and validates connectivity.
func New(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.TLSCAPath != "" {
		if err := registerTLSConfig(cfg.TLSConfigName, cfg.TLSCAPath); err != nil {
			return nil, fmt.Errorf("register TLS config: %w", err)
		}
	}

	dsn, err := cfg.effectiveDSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}

// effectiveDSN returns the driver DSN. An explicit DSN keeps its own
// settings; parseTime and loc default to true and UTC when it omits them,
// and the TLS profile is applied when a CA is configured.
func (cfg Config) effectiveDSN() (string, error) {
	if cfg.DSN != "" {
		dc, err := sqldriver.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("parse MYSQL_DSN: %w", err)
		}
		set := dsnParams(cfg.DSN)
		if !set.Has("parseTime") {
			dc.ParseTime = true
		}
		if !set.Has("loc") {
			dc.Loc = time.UTC
		}
		if cfg.TLSCAPath != "" && dc.TLSConfig == "" {
			dc.TLSConfig = cfg.TLSConfigName
		}
		return dc.FormatDSN(), nil
	}

	dc := sqldriver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Loc = time.UTC

	params, err := url.ParseQuery(strings.TrimPrefix(cfg.Params, "?"))
	if err != nil {
		return "", fmt.Errorf("parse MYSQL_PARAMS: %w", err)
	}
	for key := range params {
		value := params.Get(key)
		switch key {
		case "parseTime":
			dc.ParseTime = value == "true"
		case "loc":
			loc, err := time.LoadLocation(value)
			if err != nil {
				return "", fmt.Errorf("parse MYSQL_PARAMS loc: %w", err)
			}
			dc.Loc = loc
		case "tls":
			dc.TLSConfig = value
		default:
			if dc.Params == nil {
				dc.Params = make(map[string]string)
			}
			dc.Params[key] = value
		}
	}
	if cfg.TLSCAPath != "" && dc.TLSConfig == "" {
		dc.TLSConfig = cfg.TLSConfigName
	}

	return dc.FormatDSN(), nil
}

// dsnParams returns the query parameters written in a driver DSN.
func dsnParams(dsn string) url.Values {
	i := strings.LastIndex(dsn, "?")
	if i < 0 {
		return url.Values{}
	}
	values, err := url.ParseQuery(dsn[i+1:])
	if err != nil {
		return url.Values{}
	}
	return values
}

func registerTLSConfig(name, caPath string) error {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(pem); !ok {
		return errors.New("failed to append CA certificate")
	}
	return sqldriver.RegisterTLSConfig(name, &tls.Config{RootCAs: pool})
}

func (cfg *Config) applyURLDSN(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.User != nil {
		cfg.User = parsed.User.Username()
		if password, ok := parsed.User.Password(); ok {
			cfg.Password = password
		}
	}
	if host := parsed.Hostname(); host != "" {
		cfg.Host = host
	}
	if port := parsed.Port(); port != "" {
		cfg.Port = port
	}
	if db := strings.TrimPrefix(parsed.Path, "/"); db != "" {
		cfg.Database = db
	}

	query := parsed.Query()
	query.Del("ssl-mode")
	urlParams := query.Encode()

	existing := strings.TrimPrefix(cfg.Params, "?")
	switch {
	case existing != "" && urlParams != "":
		cfg.Params = existing + "&" + urlParams
	case urlParams != "":
		cfg.Params = urlParams
	default:
		cfg.Params = existing
	}

	return nil
}

func defaultString(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid int value, using default", "value", raw, "error", err, "default", fallback)
		return fallback
	}
	return v
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration value, using default", "value", raw, "error", err, "default", fallback)
		return fallback
	}
	return dur
}
