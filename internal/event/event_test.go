package event

import (
	"testing"

	"github.com/yourusername/inventory-calculator/internal/apperror"
)

func TestDecodeSubmit(t *testing.T) {
	ev, err := DecodeSubmit([]byte(`{"file_url": "https://example.com/inventory.txt", "extra": 1}`))
	if err != nil {
		t.Fatalf("DecodeSubmit returned error: %v", err)
	}
	if ev.FileURL != "https://example.com/inventory.txt" {
		t.Fatalf("unexpected file_url: %s", ev.FileURL)
	}

	// 空文字はスキーマ上は許可し、Submit 側で拒否する
	ev, err = DecodeSubmit([]byte(`{"file_url": ""}`))
	if err != nil {
		t.Fatalf("DecodeSubmit returned error: %v", err)
	}
	if ev.FileURL != "" {
		t.Fatalf("unexpected file_url: %s", ev.FileURL)
	}
}

func TestDecodeSubmitInvalid(t *testing.T) {
	for _, payload := range []string{
		`{}`,
		`{"file_url": 42}`,
		`[]`,
		`not json`,
	} {
		_, err := DecodeSubmit([]byte(payload))
		if !apperror.IsClient(err) {
			t.Fatalf("%s: expected client error, got %v", payload, err)
		}
	}
}

func TestDecodeJobRoundTrip(t *testing.T) {
	data, err := EncodeJob("job-123")
	if err != nil {
		t.Fatalf("EncodeJob returned error: %v", err)
	}
	ev, err := DecodeJob(data)
	if err != nil {
		t.Fatalf("DecodeJob returned error: %v", err)
	}
	if ev.JobID != "job-123" {
		t.Fatalf("unexpected job_id: %s", ev.JobID)
	}

	if _, err := DecodeJob([]byte(`{"file_url": "x"}`)); !apperror.IsClient(err) {
		t.Fatalf("expected client error, got %v", err)
	}
}
