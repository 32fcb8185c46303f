package categorize

import (
	"strings"
	"sync"
	"time"
)

// LearningStore accumulates vendor→category observations per user. Entries
// start at 0.9 confidence, are reinforced by repeat observations up to 1.0,
// and are replaced when a conflicting category is observed. Shards are
// per-user so concurrent pipelines for different users never contend.
type LearningStore struct {
	mu     sync.RWMutex
	shards map[string]*learningShard
}

type learningShard struct {
	mu      sync.Mutex
	vendors map[string]learnedVendor
}

type learnedVendor struct {
	lastUsed        time.Time
	category        string
	confidence      float64
	correctionCount int
}

const (
	initialLearnedConfidence = 0.9
	learnedReinforcement     = 0.1
)

// NewLearningStore creates an empty learning store.
func NewLearningStore() *LearningStore {
	return &LearningStore{shards: make(map[string]*learningShard)}
}

func (s *LearningStore) shard(userID string) *learningShard {
	s.mu.RLock()
	shard, ok := s.shards[userID]
	s.mu.RUnlock()
	if ok {
		return shard
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if shard, ok = s.shards[userID]; ok {
		return shard
	}
	shard = &learningShard{vendors: make(map[string]learnedVendor)}
	s.shards[userID] = shard
	return shard
}

// Observe records a vendor→category assignment. Agreement reinforces the
// entry; disagreement replaces it at initial confidence.
func (s *LearningStore) Observe(userID, vendor, category string) {
	key := vendorKey(vendor)
	if key == "" || category == "" {
		return
	}

	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	existing, ok := shard.vendors[key]
	if ok && existing.category == category {
		existing.confidence += learnedReinforcement
		if existing.confidence > 1.0 {
			existing.confidence = 1.0
		}
		existing.lastUsed = time.Now()
		shard.vendors[key] = existing
		return
	}
	shard.vendors[key] = learnedVendor{
		category:   category,
		confidence: initialLearnedConfidence,
		lastUsed:   time.Now(),
	}
}

// ObserveCorrection records an explicit human correction. Corrections follow
// the same confidence ramp as observations but additionally count how many
// times the user confirmed the vendor.
func (s *LearningStore) ObserveCorrection(userID, vendor, category string) {
	key := vendorKey(vendor)
	if key == "" || category == "" {
		return
	}

	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	existing, ok := shard.vendors[key]
	if ok && existing.category == category {
		existing.confidence += learnedReinforcement
		if existing.confidence > 1.0 {
			existing.confidence = 1.0
		}
		existing.correctionCount++
		existing.lastUsed = time.Now()
		shard.vendors[key] = existing
		return
	}
	shard.vendors[key] = learnedVendor{
		category:        category,
		confidence:      initialLearnedConfidence,
		correctionCount: 1,
		lastUsed:        time.Now(),
	}
}

// Lookup returns the learned category and confidence for a vendor.
func (s *LearningStore) Lookup(userID, vendor string) (string, float64, bool) {
	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	key := vendorKey(vendor)
	entry, ok := shard.vendors[key]
	if !ok {
		return "", 0, false
	}
	entry.lastUsed = time.Now()
	shard.vendors[key] = entry
	return entry.category, entry.confidence, true
}

func vendorKey(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
