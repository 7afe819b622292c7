package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr      string `validate:"required"`
		WriteRate time.Duration
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	DB struct {
		Driver          string `validate:"required,oneof=sqlite postgres"`
		Path            string `validate:"required_if=Driver sqlite"`
		Host            string `validate:"required_if=Driver postgres"`
		Port            int    `validate:"min=1,max=65535"`
		User            string
		Password        string
		Name            string `validate:"required_if=Driver postgres"`
		SSLMode         string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
		MaxConns        int    `validate:"min=1,max=1000"`
		ConnectAttempts int    `validate:"min=1,max=20"`
		AutoSchema      bool
	}
	Stats struct {
		Schedule string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		c    Config
		errs []error
	)
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":9000")
	c.HTTP.WriteRate = getDuration("HTTP_WRITE_RATE", 0, &errs)
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/myblog.log")

	c.DB.Driver = strings.ToLower(getenv("DB_DRIVER", DriverSQLite))
	c.DB.Path = getenv("DB_PATH", "data/myblog.sqlite")
	c.DB.Host = getenv("DB_HOST", "127.0.0.1")
	c.DB.Port = getInt("DB_PORT", 5432, &errs)
	c.DB.User = getenv("DB_USER", "root")
	c.DB.Password = getenv("DB_PASSWORD", "123456")
	c.DB.Name = getenv("DB_NAME", "myblog")
	c.DB.SSLMode = getenv("DB_SSLMODE", "disable")
	c.DB.MaxConns = getInt("DB_MAX_CONNS", 16, &errs)
	c.DB.ConnectAttempts = getInt("DB_CONNECT_ATTEMPTS", 3, &errs)
	c.DB.AutoSchema = getBool("DB_AUTO_SCHEMA", true, &errs)
	c.Stats.Schedule = os.Getenv("STATS_SCHEDULE")

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
	}
	return n
}

func getBool(k string, def bool, errs *[]error) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
	}
	return b
}

func getDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
	}
	return d
}
