package sql

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver   string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	UseSSL   bool
	PoolSize int
}

// Open connects to the storage using the driver from the config: mysql, postgres or sqlite.
// For the sqlite the database is the path to the file (or ":memory:")
func Open(config Config) (*Store, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case "mysql":
		dialector = mysql.Open(mysqlDsn(config))
	case "postgres":
		dialector = postgres.Open(postgresDsn(config))
	case "sqlite":
		dialector = sqlite.Open(config.Database)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(
			slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, err
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, err
	}

	if config.Driver == "sqlite" {
		// The embedded database allows a single writer only
		pool.SetMaxOpenConns(1)
	} else if config.PoolSize > 0 {
		pool.SetMaxOpenConns(config.PoolSize)
	}

	return New(conn), nil
}

func mysqlDsn(config Config) string {
	tls := "false"
	if config.UseSSL {
		tls = "true"
	}

	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&tls=%s",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
		tls,
	)
}

func postgresDsn(config Config) string {
	sslMode := "disable"
	if config.UseSSL {
		sslMode = "require"
	}

	dsn := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:     config.Database,
		RawQuery: "sslmode=" + sslMode,
	}

	return dsn.String()
}
