package store

import (
	"log"
	"sync"
	"time"

	"github.com/resinat/forwardproxy/internal/proxy"
)

// Service subscribes to a proxy.Emitter and asynchronously indexes every
// record it publishes into a Repo, mirroring the teacher's requestlog
// Service: a bounded queue plus a single background writer, so a slow disk
// never stalls the connection worker that published the record.
type Service struct {
	repo  *Repo
	queue <-chan proxy.ExchangeRecord
	unsub func()
	now   func() int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService subscribes to emitter with the given queue size and returns a
// Service ready to Start. now supplies the recorded-at timestamp for each
// row; nil uses the wall clock (time.Now().UnixNano() at each insert).
func NewService(emitter proxy.Emitter, repo *Repo, queueSize int, now func() int64) *Service {
	ch, unsub := emitter.Subscribe(queueSize)
	if now == nil {
		now = func() int64 { return time.Now().UnixNano() }
	}
	return &Service{
		repo:   repo,
		queue:  ch,
		unsub:  unsub,
		now:    now,
		stopCh: make(chan struct{}),
	}
}

// Start launches the background indexing goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop unsubscribes from the emitter and waits for the indexing goroutine
// to drain whatever was already queued.
func (s *Service) Stop() {
	s.unsub()
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()
	if s.queue == nil {
		return
	}
	for rec := range s.queue {
		if _, err := s.repo.Insert(s.now(), rec); err != nil {
			log.Printf("store: index exchange record failed: %v", err)
		}
	}
}
