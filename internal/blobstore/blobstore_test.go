package blobstore

import (
	"net/http"
	"testing"
	"time"
)

func TestRetryDelayCapped(t *testing.T) {
	d := retryDelay(10)
	if d > maxRetryDelay+maxRetryDelay/4 {
		t.Errorf("retryDelay(10) = %v, expected capped near %v", d, maxRetryDelay)
	}
}

func TestRetryDelayGrows(t *testing.T) {
	if retryDelay(3) < retryDelay(1) {
		t.Errorf("expected retry delay to grow with attempt count")
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout}
	for _, s := range retryable {
		if !isRetryableStatus(s) {
			t.Errorf("expected status %d to be retryable", s)
		}
	}
	if isRetryableStatus(http.StatusBadRequest) {
		t.Errorf("400 should not be retryable")
	}
	if isRetryableStatus(http.StatusNotFound) {
		t.Errorf("404 should not be retryable")
	}
}

func TestIsRetryableError(t *testing.T) {
	if isRetryableError(nil) {
		t.Errorf("nil error should not be retryable")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate should not alter short strings, got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello..." {
		t.Errorf("truncate(11,5) = %q, want %q", got, "hello...")
	}
}

func TestObjectURL(t *testing.T) {
	s := New("https://example.com", "key", "bucket", "", "")
	got := s.objectURL("jobs/123/state.json")
	want := "https://example.com/storage/v1/object/bucket/jobs/123/state.json"
	if got != want {
		t.Errorf("objectURL = %q, want %q", got, want)
	}
}

func TestNewWithoutImpersonationConfig(t *testing.T) {
	// Exercises the code path selection only — network calls in Sign()
	// require a live endpoint, so this just checks construction doesn't
	// panic with an empty impersonation config.
	s := New("https://example.com", "key", "bucket", "", "")
	if s.impersonateIdentity != "" {
		t.Errorf("expected empty impersonate identity")
	}
	_ = time.Second
}
