package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed は停止中のキューへの投入を表します。
var ErrQueueClosed = errors.New("queue is shutting down")

// ComputeFunc はキューのワーカーが呼び出す計算処理です。
type ComputeFunc func(ctx context.Context, jobID string) error

// LocalQueue はプロセス内のワーカーで計算を実行する Dispatcher です。
type LocalQueue struct {
	logger  *zap.Logger
	workers int
	timeout time.Duration

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

// QueueOption は LocalQueue の設定を変更します。
type QueueOption func(*LocalQueue)

func WithWorkers(n int) QueueOption {
	return func(q *LocalQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *LocalQueue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

func WithTaskTimeout(d time.Duration) QueueOption {
	return func(q *LocalQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewLocalQueue は LocalQueue を作成します。ワーカーは Start で起動します。
func NewLocalQueue(logger *zap.Logger, opts ...QueueOption) *LocalQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &LocalQueue{
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan string, 256),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Start はワーカーを起動します。2回目以降の呼び出しは無視されます。
func (q *LocalQueue) Start(compute ComputeFunc) {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				for jobID := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := compute(ctx, jobID)
					cancel()

					if err != nil {
						q.logger.Error("compute failed", zap.Int("worker_id", workerID), zap.String("job_id", jobID), zap.Error(err))
					} else {
						q.logger.Info("compute finished", zap.Int("worker_id", workerID), zap.String("job_id", jobID))
					}
				}
			}(i + 1)
		}
	})
}

// Dispatch はジョブIDをキューに積みます。キューが満杯の場合は空くか ctx が終了するまで待ちます。
func (q *LocalQueue) Dispatch(ctx context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- jobID:
		q.logger.Info("compute queued", zap.String("job_id", jobID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown は新規投入を止め、積まれたジョブを処理し終えるまで待ちます。
func (q *LocalQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
