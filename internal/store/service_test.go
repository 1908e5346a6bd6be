package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/resinat/forwardproxy/internal/proxy"
)

func TestServiceIndexesPublishedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.db")
	repo, err := NewRepo(path)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	defer repo.Close()

	emitter := proxy.NewEmitter()
	clock := int64(42)
	svc := NewService(emitter, repo, 4, func() int64 { return clock })
	svc.Start()

	emitter.Publish(proxy.ExchangeRecord{
		Request:  proxy.RequestRecord{Method: "GET", URL: "http://example.test/"},
		Response: proxy.ResponseRecord{StatusCode: 200},
	})

	deadline := time.Now().Add(2 * time.Second)
	var rows []ExchangeSummary
	for time.Now().Before(deadline) {
		rows, err = repo.List(ListFilter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(rows) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	svc.Stop()

	if len(rows) != 1 {
		t.Fatalf("expected exactly one indexed record, got %d", len(rows))
	}
	if rows[0].RecordedAtNs != 42 {
		t.Fatalf("RecordedAtNs = %d, want 42", rows[0].RecordedAtNs)
	}
}

func TestServiceStopDrainsQueueBeforeReturning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.db")
	repo, err := NewRepo(path)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	defer repo.Close()

	emitter := proxy.NewEmitter()
	svc := NewService(emitter, repo, 16, func() int64 { return 1 })
	svc.Start()

	for i := 0; i < 10; i++ {
		emitter.Publish(proxy.ExchangeRecord{Request: proxy.RequestRecord{Method: "GET", URL: "http://example.test/"}})
	}
	svc.Stop()

	rows, err := repo.List(ListFilter{Limit: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected Stop to drain all queued records, got %d", len(rows))
	}
}
