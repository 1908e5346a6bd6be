package proxy

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically deletes BodyCache files older than MaxAge. BodyCache
// itself never deletes its own files — their lifetime is the consumer's
// responsibility; Janitor is this codebase's opt-in answer to who owns that
// cleanup (see DESIGN.md).
type Janitor struct {
	dir    string
	maxAge time.Duration
	logf   func(string, ...any)

	cron *cron.Cron
}

// NewJanitor builds a Janitor that sweeps dir on the given standard cron
// schedule (e.g. "0 3 * * *" for daily at 03:00), removing req-*/resp-*
// files whose modification time is older than maxAge.
func NewJanitor(dir string, maxAge time.Duration, schedule string, logf func(string, ...any)) (*Janitor, error) {
	if logf == nil {
		logf = log.Printf
	}
	j := &Janitor{dir: dir, maxAge: maxAge, logf: logf, cron: cron.New()}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the cron schedule.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the cron schedule and waits for any in-flight sweep to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }

func (j *Janitor) sweep() {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		j.logf("janitor: read %s failed: %v", j.dir, err)
		return
	}
	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "req-") && !strings.HasPrefix(name, "resp-") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, name)
		if err := os.Remove(path); err != nil {
			j.logf("janitor: remove %s failed: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logf("janitor: removed %d stale body cache files from %s", removed, j.dir)
	}
}
