// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DispatchAsynq = "asynq"
	DispatchLocal = "local"

	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config はアプリケーションの設定を保持する構造体です。
// YAML ファイル（CONFIG_FILE）の値を土台にし、環境変数があればそちらを優先します。
type Config struct {
	// サーバー設定
	Port    string `yaml:"port"`     // APIサーバーのポート番号
	GinMode string `yaml:"gin_mode"` // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"` // CORS許可オリジン（カンマ区切り）

	// ジョブ/キュー設定
	QueueRedisURL     string `yaml:"queue_redis_url"`    // Asynq とジョブストア用 Redis 接続URL
	DispatchMode      string `yaml:"dispatch_mode"`      // 計算タスクの引き渡し方法 (asynq, local)
	WorkerConcurrency int    `yaml:"worker_concurrency"` // 同時に計算するジョブ数
	RunWorkers        bool   `yaml:"run_workers"`        // APIサーバーのプロセス内でワーカーを動かすか
	TaskMaxRetry      int    `yaml:"task_max_retry"`     // 計算タスクの最大再試行回数
	TaskTimeout       int    `yaml:"task_timeout_seconds"`

	// ジョブストア設定
	JobStoreDriver   string `yaml:"job_store_driver"`   // redis, sqlite, postgres
	JobStoreDSN      string `yaml:"job_store_dsn"`      // sqlite のファイルパスまたは postgres の接続URL
	JobExpireMinutes int    `yaml:"job_expire_minutes"` // Redis 上のジョブの有効期限（分）。0 は無期限

	// 在庫ファイル設定
	StorageDir    string `yaml:"storage_dir"`    // 在庫ファイルの保存先ディレクトリ
	StorageBucket string `yaml:"storage_bucket"` // 保存先バケット名
	FetchTimeout  int    `yaml:"fetch_timeout_seconds"`
	MaxFileSize   int64  `yaml:"max_file_size"` // 取得する在庫ファイルの最大サイズ（バイト）

	// ログ設定
	LogLevel string `yaml:"log_level"`
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Port:               "8080",
		GinMode:            "debug",
		CORSAllowedOrigins: "http://localhost:5173",

		QueueRedisURL:     "redis://127.0.0.1:6379/0",
		DispatchMode:      DispatchAsynq,
		WorkerConcurrency: 4,
		RunWorkers:        true,
		TaskMaxRetry:      3,
		TaskTimeout:       600,

		JobStoreDriver:   StoreRedis,
		JobExpireMinutes: 0,

		StorageDir:    "./data",
		StorageBucket: "inventory-sources",
		FetchTimeout:  30,
		MaxFileSize:   104857600, // 100MB

		LogLevel: "info",
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// サーバー設定
	c.Port = getEnv("PORT", c.Port)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)

	// CORS設定
	c.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)

	// ジョブ/キュー設定
	c.QueueRedisURL = getEnv("QUEUE_REDIS_URL", c.QueueRedisURL)
	c.DispatchMode = getEnv("DISPATCH_MODE", c.DispatchMode)
	c.WorkerConcurrency = getEnvAsInt("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.RunWorkers = getEnvAsBool("RUN_WORKERS", c.RunWorkers)
	c.TaskMaxRetry = getEnvAsInt("TASK_MAX_RETRY", c.TaskMaxRetry)
	c.TaskTimeout = getEnvAsInt("TASK_TIMEOUT_SECONDS", c.TaskTimeout)

	// ジョブストア設定
	c.JobStoreDriver = getEnv("JOB_STORE_DRIVER", c.JobStoreDriver)
	c.JobStoreDSN = getEnv("JOB_STORE_DSN", c.JobStoreDSN)
	c.JobExpireMinutes = getEnvAsInt("JOB_EXPIRE_MINUTES", c.JobExpireMinutes)

	// 在庫ファイル設定
	c.StorageDir = getEnv("STORAGE_DIR", c.StorageDir)
	c.StorageBucket = getEnv("STORAGE_BUCKET", c.StorageBucket)
	c.FetchTimeout = getEnvAsInt("FETCH_TIMEOUT_SECONDS", c.FetchTimeout)
	c.MaxFileSize = getEnvAsInt64("MAX_FILE_SIZE", c.MaxFileSize)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DispatchMode {
	case DispatchAsynq, DispatchLocal:
	default:
		return fmt.Errorf("DISPATCH_MODE must be %q or %q, got %q", DispatchAsynq, DispatchLocal, c.DispatchMode)
	}

	// local では計算を受け取るのは同じプロセスのワーカーだけ
	if c.DispatchMode == DispatchLocal && !c.RunWorkers {
		return fmt.Errorf("RUN_WORKERS must be true when DISPATCH_MODE is %q", DispatchLocal)
	}

	switch c.JobStoreDriver {
	case StoreRedis:
	case StoreSQLite, StorePostgres:
		if c.JobStoreDSN == "" {
			return fmt.Errorf("JOB_STORE_DSN is required for %s job store", c.JobStoreDriver)
		}
	default:
		return fmt.Errorf("unsupported JOB_STORE_DRIVER: %q", c.JobStoreDriver)
	}

	if (c.DispatchMode == DispatchAsynq || c.JobStoreDriver == StoreRedis) && c.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}
	if c.StorageBucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}

	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" && c.JobStoreDriver == StoreRedis && c.JobExpireMinutes > 0 {
		return fmt.Errorf("JOB_EXPIRE_MINUTES must be 0 in release mode: jobs are never deleted")
	}

	return nil
}

// JobTTL は Redis 上のジョブの有効期限を返します。0 は無期限です。
func (c *Config) JobTTL() time.Duration {
	if c.JobExpireMinutes <= 0 {
		return 0
	}
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// FetchTimeoutDuration は在庫ファイル取得のタイムアウトを返します。
func (c *Config) FetchTimeoutDuration() time.Duration {
	if c.FetchTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.FetchTimeout) * time.Second
}

// TaskTimeoutDuration は1件の計算タスクのタイムアウトを返します。
func (c *Config) TaskTimeoutDuration() time.Duration {
	if c.TaskTimeout <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.TaskTimeout) * time.Second
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
