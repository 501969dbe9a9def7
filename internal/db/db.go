package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/models"
)

var log = logging.Logger("barter-db")

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// DB оборачивает пул соединений и знает свой диалект
type DB struct {
	*sqlx.DB
}

// InitDB инициализирует соединение с базой данных
func InitDB(cfg *config.Config) (*DB, error) {
	switch cfg.DatabaseConfig.Driver {
	case DriverSQLite:
		return OpenSQLite(cfg.DatabaseConfig.SQLitePath)
	default:
		return OpenPostgres(cfg.DatabaseConfig.URL)
	}
}

// OpenPostgres подключается к PostgreSQL через pgx
func OpenPostgres(url string) (*DB, error) {
	log.Infof("Подключение к базе данных PostgreSQL")

	// Создаем контекст с таймаутом для подключения
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := sqlx.ConnectContext(ctx, DriverPostgres, url)
	if err != nil {
		return nil, fmt.Errorf("ошибка при подключении к базе данных: %w", err)
	}

	// Дополнительная настройка пула соединений
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	log.Infof("✅ Успешное подключение к базе данных")
	return &DB{DB: conn}, nil
}

// OpenSQLite открывает (или создает) файл SQLite.
// SQLite допускает одного писателя, поэтому пул ограничен одним соединением.
func OpenSQLite(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	return &DB{DB: conn}, nil
}

// IsPostgres сообщает, работает ли хранилище на PostgreSQL
func (d *DB) IsPostgres() bool { return d.DriverName() == DriverPostgres }

// CloseDB закрывает соединение с базой данных
func (d *DB) CloseDB() {
	if d != nil && d.DB != nil {
		if err := d.Close(); err != nil {
			log.Warnf("Ошибка закрытия базы данных: %v", err)
		}
	}
}

// WithTx выполняет fn в транзакции. Транзакция откатывается, если fn вернула ошибку.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// GetContext возвращает контекст с таймаутом для запросов к базе данных
func GetContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func isPostgres(q sqlx.ExtContext) bool { return q.DriverName() == DriverPostgres }

// get выполняет запрос одной строки, подставляя плейсхолдеры диалекта
func get(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func selectAll(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func exec(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execCAS выполняет условное обновление; ноль затронутых строк означает,
// что запись изменилась с момента чтения
func execCAS(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) error {
	n, err := exec(ctx, q, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrConcurrentUpdate
	}
	return nil
}
