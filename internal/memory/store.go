package memory

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/groupchatlabs/jeffbot/internal/storage"
)

const (
	insightsKey   = "general_insights"
	userKeyPrefix = "user_"
)

// Store owns every UserMemory plus the shared insights blob. All
// mutation goes through ApplyAnalysis so the trim invariants hold
// after every update. A single dirty flag tells the saver whether a
// flush sweep is worth running.
type Store struct {
	mu       sync.Mutex
	users    map[string]*UserMemory
	insights Insights
	limits   Limits
	dirty    bool
	gen      uint64
	now      func() time.Time
}

func NewStore(limits Limits) *Store {
	if limits.Topics <= 0 {
		limits = DefaultLimits()
	}
	return &Store{
		users:  make(map[string]*UserMemory),
		limits: limits,
		now:    time.Now,
	}
}

// ApplyAnalysis folds one extraction result into the user's profile,
// creating it lazily on first sight. The whole update is atomic.
func (s *Store) ApplyAnalysis(userID, displayName, messageText string, a Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(userID, displayName)
	now := s.now()

	m.DisplayName = displayName
	m.LastInteraction = now
	m.InteractionCount++

	for _, topic := range a.Topics {
		if topic != "" {
			m.TopicsDiscussed = appendDedup(m.TopicsDiscussed, topic)
		}
	}
	m.TopicsDiscussed = trimOldest(m.TopicsDiscussed, s.limits.Topics)

	for _, insight := range a.UserInsights {
		if insight != "" {
			m.PersonalityNotes = appendDedup(m.PersonalityNotes, insight)
		}
	}
	m.PersonalityNotes = trimOldest(m.PersonalityNotes, s.limits.Notes)

	sentiment := a.Sentiment
	if sentiment == "" {
		sentiment = "neutral"
	}
	m.SentimentHistory = append(m.SentimentHistory, SentimentEntry{Timestamp: now, Sentiment: sentiment})
	m.SentimentHistory = trimOldest(m.SentimentHistory, s.limits.Sentiment)

	if a.IsNotable {
		reason := a.NotableReason
		if reason == "" {
			reason = "flagged as notable"
		}
		m.Notable = append(m.Notable, NotableInteraction{
			Timestamp: now,
			Content:   excerpt(messageText, s.limits.ExcerptLen),
			Reason:    reason,
			Sentiment: sentiment,
			Topics:    a.Topics,
		})
		m.Notable = trimOldest(m.Notable, s.limits.Notable)
	}

	s.insights.TotalConversations++
	s.insights.LastUpdated = now
	s.markDirtyLocked()
}

func (s *Store) getOrCreateLocked(userID, displayName string) *UserMemory {
	if m, ok := s.users[userID]; ok {
		return m
	}
	m := &UserMemory{
		UserID:      userID,
		DisplayName: displayName,
		FirstSeen:   s.now(),
	}
	s.users[userID] = m
	return m
}

// Get returns a copy of the profile, so callers can read it without
// holding the store lock.
func (s *Store) Get(userID string) (UserMemory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.users[userID]
	if !ok {
		return UserMemory{}, false
	}
	return copyMemory(m), true
}

// RelevanceInputs returns the note and topic lists the relevance
// selector works from, plus the interaction count for the persona
// context. Unknown users get empty inputs.
func (s *Store) RelevanceInputs(userID string) (notes, topics []string, interactions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.users[userID]
	if !ok {
		return nil, nil, 0
	}
	notes = append([]string(nil), m.PersonalityNotes...)
	topics = append([]string(nil), m.TopicsDiscussed...)
	return notes, topics, m.InteractionCount
}

// Erase removes a profile entirely. This is the only deletion path;
// it is always user-initiated.
func (s *Store) Erase(userID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.users[userID]
	if !ok {
		return 0, false
	}
	count := m.InteractionCount
	delete(s.users, userID)
	s.markDirtyLocked()
	return count, true
}

// RecordResponse bumps the shared responses-sent counter.
func (s *Store) RecordResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights.ResponsesSent++
	s.insights.LastUpdated = s.now()
	s.markDirtyLocked()
}

func (s *Store) Insights() Insights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insights
}

func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Store) markDirtyLocked() {
	s.dirty = true
	s.gen++
}

// LoadAll populates the store from the blob store at startup. Corrupt
// or invalid records are skipped and logged; they are never fatal.
func (s *Store) LoadAll(blobs storage.BlobStore) error {
	if data, err := blobs.Read(insightsKey); err != nil {
		if err != storage.ErrNotFound {
			log.Printf("[memory] load insights warning: %v", err)
		}
	} else {
		var insights Insights
		if err := json.Unmarshal(data, &insights); err != nil {
			log.Printf("[memory] corrupt insights blob skipped: %v", err)
		} else {
			s.mu.Lock()
			s.insights = insights
			s.mu.Unlock()
		}
	}

	keys, err := blobs.ListKeys(userKeyPrefix)
	if err != nil {
		return fmt.Errorf("list user memories: %w", err)
	}

	loaded := 0
	for _, key := range keys {
		userID := strings.TrimPrefix(key, userKeyPrefix)
		data, err := blobs.Read(key)
		if err != nil {
			log.Printf("[memory] read %s warning: %v", key, err)
			continue
		}
		var m UserMemory
		if err := json.Unmarshal(data, &m); err != nil {
			log.Printf("[memory] corrupt record %s skipped: %v", key, err)
			continue
		}
		if err := validateRecord(userID, &m); err != nil {
			log.Printf("[memory] invalid record %s discarded: %v", key, err)
			continue
		}
		s.mu.Lock()
		s.users[userID] = &m
		s.mu.Unlock()
		loaded++
	}

	log.Printf("[memory] loaded %d user memories", loaded)
	return nil
}

func validateRecord(userID string, m *UserMemory) error {
	if userID == "" {
		return fmt.Errorf("empty user id")
	}
	if m.UserID == "" {
		m.UserID = userID
	}
	if m.UserID != userID {
		return fmt.Errorf("key/record user id mismatch: %q vs %q", userID, m.UserID)
	}
	if m.InteractionCount < 0 {
		return fmt.Errorf("negative interaction count")
	}
	return nil
}

// FlushAll writes the insights blob and then every profile
// sequentially. A failed write is logged and does not abort the
// sweep; the returned error reports whether anything failed so the
// dirty flag survives for a retry on the next interval.
func (s *Store) FlushAll(blobs storage.BlobStore) error {
	s.mu.Lock()
	gen := s.gen
	insights := s.insights
	snapshot := make(map[string]UserMemory, len(s.users))
	for id, m := range s.users {
		snapshot[id] = copyMemory(m)
	}
	s.mu.Unlock()

	var failed int

	if data, err := json.Marshal(insights); err != nil {
		log.Printf("[memory] marshal insights warning: %v", err)
		failed++
	} else if err := blobs.Write(insightsKey, data); err != nil {
		log.Printf("[memory] flush insights warning: %v", err)
		failed++
	}

	for id, m := range snapshot {
		if err := flushUser(blobs, id, m); err != nil {
			log.Printf("[memory] flush %s%s warning: %v", userKeyPrefix, id, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("flush: %d write(s) failed", failed)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.dirty = false
	}
	s.mu.Unlock()
	return nil
}

func flushUser(blobs storage.BlobStore, userID string, m UserMemory) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return blobs.Write(userKeyPrefix+userID, data)
}

// DeleteBlob removes a user's persisted record after Erase.
func DeleteBlob(blobs storage.BlobStore, userID string) error {
	return blobs.Delete(userKeyPrefix + userID)
}

func copyMemory(m *UserMemory) UserMemory {
	out := *m
	out.TopicsDiscussed = append([]string(nil), m.TopicsDiscussed...)
	out.PersonalityNotes = append([]string(nil), m.PersonalityNotes...)
	out.SentimentHistory = append([]SentimentEntry(nil), m.SentimentHistory...)
	out.Notable = append([]NotableInteraction(nil), m.Notable...)
	return out
}

func appendDedup(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func trimOldest[T any](list []T, max int) []T {
	if max <= 0 || len(list) <= max {
		return list
	}
	return list[len(list)-max:]
}

func excerpt(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	// Never cut mid-rune: a split UTF-8 sequence would not survive the
	// JSON round trip intact.
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
