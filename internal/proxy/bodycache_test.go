package proxy

import (
	"bytes"
	"os"
	"testing"
)

func TestBodyCacheHasDataIdempotence(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewBodyCache(dir)
	if err != nil {
		t.Fatalf("NewBodyCache: %v", err)
	}
	defer cache.Close()

	if cache.HasRequestData() || cache.HasResponseData() {
		t.Fatal("expected no data before any append")
	}

	if err := cache.AppendRequestBody([]byte("hello")); err != nil {
		t.Fatalf("AppendRequestBody: %v", err)
	}
	if !cache.HasRequestData() {
		t.Error("expected HasRequestData true after nonempty append")
	}
	if cache.HasResponseData() {
		t.Error("expected HasResponseData to remain false")
	}

	// A second append, including an empty one, does not change the verdict.
	if err := cache.AppendRequestBody(nil); err != nil {
		t.Fatalf("AppendRequestBody(nil): %v", err)
	}
	if !cache.HasRequestData() {
		t.Error("expected HasRequestData to remain true")
	}
}

func TestBodyCacheReplayRequestBody(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewBodyCache(dir)
	if err != nil {
		t.Fatalf("NewBodyCache: %v", err)
	}
	defer cache.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cache.AppendRequestBody([]byte("hel"))
		_ = cache.AppendRequestBody([]byte("lo"))
		_ = cache.CloseRequestBody()
	}()

	var buf bytes.Buffer
	if err := cache.ReplayRequestBody(&buf); err != nil {
		t.Fatalf("ReplayRequestBody: %v", err)
	}
	<-done

	if buf.String() != "hello" {
		t.Fatalf("replay mismatch: got %q, want %q", buf.String(), "hello")
	}
}

func TestBodyCacheFilesExistOnDisk(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewBodyCache(dir)
	if err != nil {
		t.Fatalf("NewBodyCache: %v", err)
	}

	if err := cache.AppendResponseBody([]byte("world")); err != nil {
		t.Fatalf("AppendResponseBody: %v", err)
	}
	cache.Close()

	if _, err := os.Stat(cache.ResponseBodyURL()); err != nil {
		t.Errorf("expected response body file to exist: %v", err)
	}
	if _, err := os.Stat(cache.RequestBodyURL()); err != nil {
		t.Errorf("expected request body file to exist even with no writes: %v", err)
	}
}

func TestNewBodyCacheFailsOnUnwritableDir(t *testing.T) {
	if _, err := NewBodyCache("/nonexistent-dir-for-test/child"); err == nil {
		t.Fatal("expected NewBodyCache to fail when the directory cannot be created into")
	}
}
