package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/inventory-calculator/internal/apperror"
	"github.com/yourusername/inventory-calculator/internal/event"
)

const (
	taskTypeCompute = "inventory:compute"
	queueName       = "inventory"
)

// TaskRunner はワーカーが呼び出すジョブ処理です。*Service が実装します。
type TaskRunner interface {
	Compute(ctx context.Context, jobID string) error
	CheckStatus(ctx context.Context, jobID string) (*StatusResult, error)
}

// ManagerOptions は Asynq のクライアント/サーバー設定です。
type ManagerOptions struct {
	Concurrency int
	MaxRetry    int
	Timeout     time.Duration
}

// Manager は Asynq を使って計算タスクの投入とワーカー実行を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	opts   ManagerOptions
	logger *zap.Logger

	register sync.Once
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, opts ManagerOptions, logger *zap.Logger) (*Manager, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	return &Manager{
		client: client,
		server: server,
		mux:    asynq.NewServeMux(),
		opts:   opts,
		logger: logger,
	}, nil
}

// Dispatch は計算タスクをキューに投入します。タスクIDにジョブIDを使うため、同じジョブは一度しか投入されません。
func (m *Manager) Dispatch(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	payload, err := event.EncodeJob(jobID)
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskTypeCompute, payload, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.MaxRetry(m.opts.MaxRetry),
		asynq.Timeout(m.opts.Timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("compute for job %s is already dispatched: %w", jobID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue compute task: %w", err)
	}
	m.logger.Info("compute dispatched",
		zap.String("job_id", jobID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue))
	return nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers(runner TaskRunner) error {
	m.handle(runner)
	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// RunWorkers は Asynq サーバーを起動し、終了シグナルを受け取るまでブロックします。
func (m *Manager) RunWorkers(runner TaskRunner) error {
	m.handle(runner)
	if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return fmt.Errorf("asynq server stopped with error: %w", err)
	}
	return nil
}

// handle は計算タスクのハンドラーを登録します。ServeMux は同じパターンの再登録で panic するため一度だけ行います。
func (m *Manager) handle(runner TaskRunner) {
	m.register.Do(func() {
		m.mux.HandleFunc(taskTypeCompute, computeTaskHandler(runner, m.logger))
	})
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	m.server.Shutdown()
	return m.client.Close()
}

// Close はクライアントだけを閉じます。ワーカーを起動していないプロセス向けです。
func (m *Manager) Close() error {
	return m.client.Close()
}

func computeTaskHandler(runner TaskRunner, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		ev, err := event.DecodeJob(task.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		err = runner.Compute(ctx, ev.JobID)
		if err == nil {
			return nil
		}
		if apperror.IsClient(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		// 結果を保存できずに RUNNING のまま残ったジョブだけ再試行する
		st, statusErr := runner.CheckStatus(context.WithoutCancel(ctx), ev.JobID)
		if statusErr != nil || st.JobStatus == StatusRunning {
			logger.Warn("compute failed before the job was finished, will retry", zap.String("job_id", ev.JobID), zap.Error(err))
			return err
		}
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}
