// Package app は設定に従ってジョブストア・在庫ファイル保存先・計算タスクの引き渡し先を組み立てます。
// API サーバーと CLI の両方から使います。
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/inventory-calculator/internal/config"
	"github.com/yourusername/inventory-calculator/internal/inventory"
	"github.com/yourusername/inventory-calculator/internal/jobs"
	"github.com/yourusername/inventory-calculator/internal/storage"
)

// App は組み立て済みの Service と、その後始末に必要なリソースを保持します。
type App struct {
	Service *jobs.Service

	manager *jobs.Manager
	queue   *jobs.LocalQueue
	closers []func() error
	logger  *zap.Logger
}

// New は cfg に従って App を組み立てます。失敗した場合は途中まで確保したリソースを解放します。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.closeResources()
		}
	}()

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.NewLocal(cfg.StorageDir, cfg.StorageBucket)
	if err != nil {
		return nil, err
	}
	sources, err := storage.NewSources(storage.NewFetcher(cfg.FetchTimeoutDuration(), cfg.MaxFileSize), objects)
	if err != nil {
		return nil, err
	}

	var dispatcher jobs.Dispatcher
	switch cfg.DispatchMode {
	case config.DispatchLocal:
		a.queue = jobs.NewLocalQueue(logger.Named("queue"),
			jobs.WithWorkers(cfg.WorkerConcurrency),
			jobs.WithTaskTimeout(cfg.TaskTimeoutDuration()),
		)
		dispatcher = a.queue
	default:
		a.manager, err = jobs.NewManager(cfg.QueueRedisURL, jobs.ManagerOptions{
			Concurrency: cfg.WorkerConcurrency,
			MaxRetry:    cfg.TaskMaxRetry,
			Timeout:     cfg.TaskTimeoutDuration(),
		}, logger.Named("asynq"))
		if err != nil {
			return nil, err
		}
		dispatcher = a.manager
	}

	a.Service, err = jobs.NewService(store, sources, inventory.NewCalculator(), dispatcher, logger.Named("jobs"))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (jobs.Store, error) {
	switch cfg.JobStoreDriver {
	case config.StoreSQLite, config.StorePostgres:
		store, err := jobs.OpenSQLStore(ctx, cfg.JobStoreDriver, cfg.JobStoreDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		opt, err := redis.ParseURL(cfg.QueueRedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect job store: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		return jobs.NewRedisStore(rdb, cfg.JobTTL()), nil
	}
}

// StartWorkers はこのプロセス内で計算ワーカーを起動し、すぐに戻ります。
func (a *App) StartWorkers() error {
	if a.queue != nil {
		a.queue.Start(a.Service.Compute)
		return nil
	}
	return a.manager.StartWorkers(a.Service)
}

// RunWorkers は計算ワーカーを起動し、終了シグナルを受け取るまでブロックします。
// ワーカー専用プロセスは Asynq でのみ意味を持ちます。
func (a *App) RunWorkers() error {
	if a.manager == nil {
		return errors.New("dedicated workers require DISPATCH_MODE=asynq")
	}
	return a.manager.RunWorkers(a.Service)
}

// Close はワーカーを停止し、積まれた計算を処理し終えてからリソースを解放します。
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Shutdown(ctx)
	}
	return a.closeResources()
}

func (a *App) closeResources() error {
	var errs []error
	if a.manager != nil {
		if err := a.manager.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		a.manager = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
