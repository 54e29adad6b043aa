package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/inventory-calculator/internal/apperror"
	"github.com/yourusername/inventory-calculator/internal/event"
)

type stubRunner struct {
	computeErr error
	status     *StatusResult
	statusErr  error
	computed   []string
}

func (r *stubRunner) Compute(ctx context.Context, jobID string) error {
	r.computed = append(r.computed, jobID)
	return r.computeErr
}

func (r *stubRunner) CheckStatus(ctx context.Context, jobID string) (*StatusResult, error) {
	return r.status, r.statusErr
}

func newComputeTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	payload, err := event.EncodeJob(jobID)
	if err != nil {
		t.Fatalf("EncodeJob returned error: %v", err)
	}
	return asynq.NewTask(taskTypeCompute, payload)
}

func TestComputeTaskHandlerSuccess(t *testing.T) {
	runner := &stubRunner{}
	handler := computeTaskHandler(runner, zap.NewNop())

	if err := handler(context.Background(), newComputeTask(t, "job-1")); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(runner.computed) != 1 || runner.computed[0] != "job-1" {
		t.Fatalf("unexpected compute calls: %v", runner.computed)
	}
}

func TestComputeTaskHandlerInvalidPayload(t *testing.T) {
	runner := &stubRunner{}
	handler := computeTaskHandler(runner, zap.NewNop())

	err := handler(context.Background(), asynq.NewTask(taskTypeCompute, []byte(`{}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(runner.computed) != 0 {
		t.Fatalf("compute must not run for invalid payload: %v", runner.computed)
	}
}

func TestComputeTaskHandlerRetryPolicy(t *testing.T) {
	cases := []struct {
		name      string
		runner    *stubRunner
		skipRetry bool
	}{
		{
			name:      "client error",
			runner:    &stubRunner{computeErr: apperror.Client("Wrong input - Job with given `job_id` does not exists.", nil)},
			skipRetry: true,
		},
		{
			name: "job already failed",
			runner: &stubRunner{
				computeErr: apperror.Service("Exception on inventory calculations with status FAILED: EOF", nil),
				status:     &StatusResult{JobStatus: StatusFailed},
			},
			skipRetry: true,
		},
		{
			name: "job still running",
			runner: &stubRunner{
				computeErr: apperror.Service("Unable to save job", nil),
				status:     &StatusResult{JobStatus: StatusRunning},
			},
			skipRetry: false,
		},
		{
			name: "status unavailable",
			runner: &stubRunner{
				computeErr: apperror.Service("Unable to save job", nil),
				statusErr:  errors.New("redis down"),
			},
			skipRetry: false,
		},
	}

	for _, tc := range cases {
		handler := computeTaskHandler(tc.runner, zap.NewNop())
		err := handler(context.Background(), newComputeTask(t, "job-1"))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if got := errors.Is(err, asynq.SkipRetry); got != tc.skipRetry {
			t.Fatalf("%s: SkipRetry = %v, want %v (err=%v)", tc.name, got, tc.skipRetry, err)
		}
	}
}

func TestNewManagerInvalidURL(t *testing.T) {
	if _, err := NewManager("not-a-redis-url", ManagerOptions{}, nil); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestManagerRegistersHandlerOnce(t *testing.T) {
	m, err := NewManager("redis://127.0.0.1:6379/0", ManagerOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	defer m.Close()

	first := &stubRunner{}
	m.handle(first)
	m.handle(&stubRunner{})

	handler, pattern := m.mux.Handler(newComputeTask(t, "job-1"))
	if pattern != taskTypeCompute {
		t.Fatalf("unexpected pattern: %q", pattern)
	}
	if err := handler.ProcessTask(context.Background(), newComputeTask(t, "job-1")); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(first.computed) != 1 {
		t.Fatalf("expected the first runner to stay registered, got %v", first.computed)
	}
}
