package repository

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

type DB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL")
	return &DB{Conn: db, logger: logger}, nil
}

// NewSQLiteDB opens a SQLite database at path. SQLite allows one writer, so
// the pool is limited to a single connection.
func NewSQLiteDB(path string, logger *logger.Logger) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), gormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	logger.Info("Opened SQLite database", "path", path)
	return &DB{Conn: db, logger: logger}, nil
}

func gormConfig(l *logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: gormLogger.New(
			zap.NewStdLog(l.Desugar().Named("gorm")),
			gormLogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
	}
}

// Migrate creates or updates the schema.
func (db *DB) Migrate() error {
	if err := db.Conn.AutoMigrate(&models.Wishlist{}, &models.Item{}, &models.Contribution{}, &models.GuestSession{}); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}
