package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/inventory-calculator/internal/config"
	"github.com/yourusername/inventory-calculator/internal/jobs"
)

const inventoryTSV = "Id\tCost\tQuantity\n1\t2\t3\n2\t1.5\t4\n"

func newLocalConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DispatchMode:      config.DispatchLocal,
		WorkerConcurrency: 1,
		RunWorkers:        true,
		JobStoreDriver:    config.StoreSQLite,
		JobStoreDSN:       filepath.Join(dir, "jobs.db"),
		StorageDir:        filepath.Join(dir, "data"),
		StorageBucket:     "inventory-sources",
		FetchTimeout:      5,
		MaxFileSize:       1 << 20,
		TaskTimeout:       30,
	}
}

func TestLocalAppEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(inventoryTSV))
	}))
	defer srv.Close()

	ctx := context.Background()
	a, err := New(ctx, newLocalConfig(t), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close(ctx)
	if err := a.StartWorkers(); err != nil {
		t.Fatalf("StartWorkers returned error: %v", err)
	}

	submitted, err := a.Service.Submit(ctx, srv.URL+"/inventory.tsv")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if submitted.JobStatus != jobs.StatusRunning {
		t.Fatalf("unexpected submit status: %s", submitted.JobStatus)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := a.Service.CheckStatus(ctx, submitted.JobID)
		if err != nil {
			t.Fatalf("CheckStatus returned error: %v", err)
		}
		if status.JobStatus.Terminal() {
			if status.JobStatus != jobs.StatusSucceeded || status.TotalValue == nil || *status.TotalValue != 12 {
				t.Fatalf("unexpected final status: %+v", status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not finish in time", submitted.JobID)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunWorkersRequiresAsynq(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, newLocalConfig(t), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close(ctx)

	if err := a.RunWorkers(); err == nil {
		t.Fatal("expected error for local dispatch mode")
	}
}

func TestNewRejectsBrokenStore(t *testing.T) {
	cfg := newLocalConfig(t)
	cfg.JobStoreDSN = filepath.Join(t.TempDir(), "missing", "dir", "jobs.db")
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unreachable sqlite path")
	}
}

func TestNewReturnsErrorForUnreachableRedis(t *testing.T) {
	cfg := newLocalConfig(t)
	cfg.JobStoreDriver = config.StoreRedis
	cfg.QueueRedisURL = "redis://127.0.0.1:1/0"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := New(ctx, cfg, nil); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestNewReleasesStoreWhenStorageFails(t *testing.T) {
	cfg := newLocalConfig(t)
	cfg.StorageBucket = "../outside"

	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for invalid bucket")
	}
	// 先に開いた SQLite が解放されていれば同じファイルをもう一度開ける
	cfg.StorageBucket = "inventory-sources"
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
