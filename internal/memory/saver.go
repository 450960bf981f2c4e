package memory

import (
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/groupchatlabs/jeffbot/internal/storage"
)

// Saver flushes dirty memory state to durable storage on a fixed
// interval, independently of message processing. It never blocks the
// ingestion path; a failed sweep leaves the dirty flag set so the
// next interval retries.
type Saver struct {
	store    *Store
	blobs    storage.BlobStore
	interval time.Duration

	mu      sync.Mutex
	cron    *rcron.Cron
	started bool
}

func NewSaver(store *Store, blobs storage.BlobStore, interval time.Duration) *Saver {
	if interval <= 0 {
		interval = 180 * time.Second
	}
	return &Saver{store: store, blobs: blobs, interval: interval}
}

// Start schedules the flush sweep. Calling it again while running is
// a no-op.
func (s *Saver) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	c := rcron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.Flush); err != nil {
		return fmt.Errorf("schedule flush: %w", err)
	}
	c.Start()

	s.cron = c
	s.started = true
	log.Printf("[saver] flushing every %s", s.interval)
	return nil
}

// Stop halts the schedule, waits briefly for an in-flight sweep, and
// runs one final best-effort flush.
func (s *Saver) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.started = false
	s.mu.Unlock()

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[saver] stop timeout waiting for running flush")
		}
	}

	s.Flush()
}

// Flush runs one sweep now if there is anything unsaved.
func (s *Saver) Flush() {
	if !s.store.Dirty() {
		return
	}
	if err := s.store.FlushAll(s.blobs); err != nil {
		log.Printf("[saver] flush warning: %v", err)
		return
	}
	log.Printf("[saver] flushed %d user memories", s.store.UserCount())
}
