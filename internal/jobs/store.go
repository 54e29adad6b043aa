package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"

	fieldJobID        = "job_id"
	fieldFileLocation = "file_location"
	fieldStatus       = "job_status"
	fieldTotalValue   = "total_value"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"

	maxTxRetries = 16
)

// Store はジョブ状態の永続化先です。
type Store interface {
	// Create は新しいジョブを保存します。同じIDが存在する場合は ErrJobExists を返します。
	Create(ctx context.Context, record *Record) error
	// Get はジョブを取得します。存在しない場合は nil, nil を返します。
	Get(ctx context.Context, jobID string) (*Record, error)
	// Update は状態と総額を同時に書き込みます。存在しない場合は ErrJobNotFound を返します。
	Update(ctx context.Context, jobID string, status Status, value *float64) error
}

// RedisStore はジョブ状態を Redis のハッシュに保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。ttl が 0 以下の場合、ジョブは期限切れになりません。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// Get はジョブ情報を取得します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	fields, err := s.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRecord(fields)
}

// Create はジョブ情報を保存します。
func (s *RedisStore) Create(ctx context.Context, record *Record) error {
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

	key := jobKey(record.JobID)
	return s.transact(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrJobExists, record.JobID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeRecord(record))
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		return err
	})
}

// Update は状態と総額を1回の書き込みで更新します。
func (s *RedisStore) Update(ctx context.Context, jobID string, status Status, value *float64) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	key := jobKey(jobID)
	return s.transact(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldStatus, string(status),
				fieldTotalValue, encodeTotal(value),
				fieldUpdatedAt, s.now().UTC().Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	})
}

// transact は WATCH 中のキーが他者に変更された場合にやり直します。
func (s *RedisStore) transact(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %s kept conflicting", key)
}

func encodeRecord(record *Record) map[string]any {
	return map[string]any{
		fieldJobID:        record.JobID,
		fieldFileLocation: record.FileLocation,
		fieldStatus:       string(record.Status),
		fieldTotalValue:   encodeTotal(record.TotalValue),
		fieldCreatedAt:    record.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:    record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeRecord(fields map[string]string) (*Record, error) {
	total, err := decodeTotal(fields[fieldTotalValue])
	if err != nil {
		return nil, fmt.Errorf("invalid total_value %q: %w", fields[fieldTotalValue], err)
	}
	record := &Record{
		JobID:        fields[fieldJobID],
		FileLocation: fields[fieldFileLocation],
		Status:       Status(fields[fieldStatus]),
		TotalValue:   total,
	}
	if !record.Status.Valid() {
		return nil, fmt.Errorf("invalid job_status %q", fields[fieldStatus])
	}
	if v := fields[fieldCreatedAt]; v != "" {
		if record.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", v, err)
		}
	}
	if v := fields[fieldUpdatedAt]; v != "" {
		if record.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("invalid updated_at %q: %w", v, err)
		}
	}
	return record, nil
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
