package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJanitorSweepRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "req-stale")
	fresh := filepath.Join(dir, "resp-fresh")
	other := filepath.Join(dir, "not-a-cache-file.txt")

	for _, p := range []string{stale, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	j, err := NewJanitor(dir, 24*time.Hour, "0 3 * * *", t.Logf)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	j.sweep()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expected stale cache file to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("expected fresh cache file to survive, stat err = %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("expected non-cache file to survive untouched, stat err = %v", err)
	}
}

func TestNewJanitorRejectsBadSchedule(t *testing.T) {
	if _, err := NewJanitor(t.TempDir(), time.Hour, "not a cron schedule", t.Logf); err == nil {
		t.Fatal("expected NewJanitor to reject an invalid cron schedule")
	}
}
