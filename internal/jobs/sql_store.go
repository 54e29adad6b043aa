package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id        TEXT PRIMARY KEY,
	file_location TEXT NOT NULL,
	job_status    TEXT NOT NULL,
	total_value   TEXT NOT NULL DEFAULT 'null',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
)`

// SQLStore はジョブ状態を SQL データベースの jobs テーブルに保存します。
type SQLStore struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	driver string
	now    func() time.Time
}

// OpenSQLStore はデータベースに接続し、jobs テーブルを用意します。
// driver は "sqlite"（dsn はファイルパス）または "postgres"（dsn は接続URL）です。
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("dsn is required")
	}

	s := &SQLStore{driver: driver, now: time.Now}
	switch driver {
	case DriverSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// SQLite は書き込みを直列化する
		db.SetMaxOpenConns(1)
		s.db = db
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s.pool = pool
		s.db = stdlib.OpenDBFromPool(pool)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createJobsTable); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close はデータベース接続を閉じます。
func (s *SQLStore) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Create はジョブ情報を保存します。
func (s *SQLStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO jobs (job_id, file_location, job_status, total_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO NOTHING`),
		record.JobID,
		record.FileLocation,
		string(record.Status),
		encodeTotal(record.TotalValue),
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobExists, record.JobID)
	}
	return nil
}

// Get はジョブ情報を取得します。
func (s *SQLStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	var (
		record             Record
		status, total      string
		createdAt, updated string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT job_id, file_location, job_status, total_value, created_at, updated_at
		FROM jobs WHERE job_id = ?`), jobID).
		Scan(&record.JobID, &record.FileLocation, &status, &total, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	record.Status = Status(status)
	if !record.Status.Valid() {
		return nil, fmt.Errorf("invalid job_status %q", status)
	}
	if record.TotalValue, err = decodeTotal(total); err != nil {
		return nil, fmt.Errorf("invalid total_value %q: %w", total, err)
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updated, err)
	}
	return &record, nil
}

// Update は状態と総額を1つの UPDATE 文で更新します。
func (s *SQLStore) Update(ctx context.Context, jobID string, status Status, value *float64) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE jobs SET job_status = ?, total_value = ?, updated_at = ?
		WHERE job_id = ?`),
		string(status),
		encodeTotal(value),
		s.now().UTC().Format(time.RFC3339Nano),
		jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// rebind は ? プレースホルダを Postgres の $n 形式に置き換えます。
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
