package watermark

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	watermark_domain "github.com/huavcjj/mailbridge/internal/domain/watermark"
	_ "modernc.org/sqlite"
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS history_cursor (
		id INTEGER PRIMARY KEY,
		history_id INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	sqliteUpsert = `INSERT INTO history_cursor (id, history_id, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			history_id = MAX(history_cursor.history_id, excluded.history_id),
			updated_at = excluded.updated_at`

	mysqlSchema = `CREATE TABLE IF NOT EXISTS history_cursor (
		id TINYINT UNSIGNED NOT NULL PRIMARY KEY,
		history_id BIGINT UNSIGNED NOT NULL,
		updated_at BIGINT NOT NULL
	)`
	mysqlUpsert = `INSERT INTO history_cursor (id, history_id, updated_at)
		VALUES (1, ?, ?)
		ON DUPLICATE KEY UPDATE
			history_id = GREATEST(history_id, VALUES(history_id)),
			updated_at = VALUES(updated_at)`

	selectCursor = `SELECT history_id FROM history_cursor WHERE id = 1`
)

// sqlRepo stores the cursor in a single-row table. The upsert never lowers
// a stored value.
type sqlRepo struct {
	db     *sql.DB
	upsert string
}

var _ watermark_domain.WatermarkRepo = (*sqlRepo)(nil)

func NewSQLiteRepo(ctx context.Context, path string) (watermark_domain.WatermarkRepo, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return newSQLRepo(ctx, db, sqliteSchema, sqliteUpsert)
}

type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func NewMySQLRepo(ctx context.Context, cfg MySQLConfig) (watermark_domain.WatermarkRepo, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLRepo(ctx, db, mysqlSchema, mysqlUpsert)
}

func newSQLRepo(ctx context.Context, db *sql.DB, schema, upsert string) (*sqlRepo, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &sqlRepo{db: db, upsert: upsert}, nil
}

func (r *sqlRepo) Load(ctx context.Context) (watermark_domain.Cursor, bool, error) {
	var historyID uint64
	err := r.db.QueryRowContext(ctx, selectCursor).Scan(&historyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to load history cursor: %w", err)
	}
	return watermark_domain.Cursor(historyID), historyID != 0, nil
}

func (r *sqlRepo) Save(ctx context.Context, cursor watermark_domain.Cursor) error {
	_, err := r.db.ExecContext(ctx, r.upsert, uint64(cursor), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save history cursor: %w", err)
	}
	return nil
}

func (r *sqlRepo) Close() error {
	return r.db.Close()
}
