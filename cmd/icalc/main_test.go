package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yourusername/inventory-calculator/internal/api"
	"github.com/yourusername/inventory-calculator/internal/apperror"
	"github.com/yourusername/inventory-calculator/internal/jobs"
)

type stubService struct {
	submitted []string
	computed  []string
	status    *jobs.StatusResult
	err       error
}

func (s *stubService) Submit(ctx context.Context, fileURL string) (*jobs.SubmitResult, error) {
	s.submitted = append(s.submitted, fileURL)
	if s.err != nil {
		return nil, s.err
	}
	return &jobs.SubmitResult{JobStatus: jobs.StatusRunning, Message: jobs.SubmitMessage, JobID: "job-1"}, nil
}

func (s *stubService) Compute(ctx context.Context, jobID string) error {
	s.computed = append(s.computed, jobID)
	return s.err
}

func (s *stubService) CheckStatus(ctx context.Context, jobID string) (*jobs.StatusResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.status, nil
}

func execute(t *testing.T, svc *stubService, args ...string) (string, bool, error) {
	t.Helper()
	closed := false
	open := func(ctx context.Context) (api.JobService, func(context.Context) error, error) {
		return svc, func(context.Context) error { closed = true; return nil }, nil
	}
	cmd := newRootCmd(open, func(ctx context.Context) error { return errors.New("no workers in tests") })

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), closed, err
}

func TestSubmitCommand(t *testing.T) {
	svc := &stubService{}
	out, closed, err := execute(t, svc, "submit", "https://example.com/inventory.txt")
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	if !closed {
		t.Fatal("expected resources to be released")
	}
	var result jobs.SubmitResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to decode output %q: %v", out, err)
	}
	if result.JobID != "job-1" || svc.submitted[0] != "https://example.com/inventory.txt" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestComputeCommandPrintsStatus(t *testing.T) {
	total := 12.0
	svc := &stubService{status: &jobs.StatusResult{JobStatus: jobs.StatusSucceeded, TotalValue: &total}}
	out, _, err := execute(t, svc, "compute", "job-1")
	if err != nil {
		t.Fatalf("compute returned error: %v", err)
	}
	if len(svc.computed) != 1 || svc.computed[0] != "job-1" {
		t.Fatalf("unexpected compute calls: %v", svc.computed)
	}
	if !strings.Contains(out, `"total_value": 12`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestInvokeCommand(t *testing.T) {
	svc := &stubService{status: &jobs.StatusResult{JobStatus: jobs.StatusRunning}}

	if _, _, err := execute(t, svc, "invoke", "submit", `{"file_url":"https://example.com/a.txt"}`); err != nil {
		t.Fatalf("invoke submit returned error: %v", err)
	}
	if _, _, err := execute(t, svc, "invoke", "compute", `{"job_id":"job-1"}`); err != nil {
		t.Fatalf("invoke compute returned error: %v", err)
	}
	out, _, err := execute(t, svc, "invoke", "check-status", `{"job_id":"job-1"}`)
	if err != nil {
		t.Fatalf("invoke check-status returned error: %v", err)
	}
	if !strings.Contains(out, `"total_value": null`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestInvokeRejectsBadEvents(t *testing.T) {
	svc := &stubService{}
	_, _, err := execute(t, svc, "invoke", "compute", `{}`)
	if !apperror.IsClient(err) {
		t.Fatalf("expected client error, got %v", err)
	}
	if len(svc.computed) != 0 {
		t.Fatalf("compute must not run: %v", svc.computed)
	}

	if _, _, err := execute(t, svc, "invoke", "delete", `{}`); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestServiceErrorsAreReturned(t *testing.T) {
	svc := &stubService{err: apperror.Service("Unable to get job details : redis down", nil)}
	_, closed, err := execute(t, svc, "status", "job-1")
	if !apperror.IsService(err) {
		t.Fatalf("expected service error, got %v", err)
	}
	if !closed {
		t.Fatal("expected resources to be released on error")
	}
}
