package gateway

import "sync"

// Stats tracks the forwarder's routing counters.
type Stats struct {
	mu          sync.Mutex
	total       int64
	routed      int64
	unmatched   int64
	serviceHits map[string]int64
}

// StatsSnapshot is a point-in-time copy of the counters, safe to hand to
// callers and to marshal.
type StatsSnapshot struct {
	TotalRequests     int64            `json:"total_requests"`
	RoutedRequests    int64            `json:"routed_requests"`
	UnmatchedRequests int64            `json:"unmatched_requests"`
	ServiceHits       map[string]int64 `json:"service_hits"`
}

func NewStats() *Stats {
	return &Stats{serviceHits: make(map[string]int64)}
}

// RecordRouted counts a successfully routed request against its target.
func (s *Stats) RecordRouted(targetService string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.routed++
	s.serviceHits[targetService]++
}

// RecordUnmatched counts a request no rule matched (or whose target was
// not configured).
func (s *Stats) RecordUnmatched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.unmatched++
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := make(map[string]int64, len(s.serviceHits))
	for service, count := range s.serviceHits {
		hits[service] = count
	}

	return StatsSnapshot{
		TotalRequests:     s.total,
		RoutedRequests:    s.routed,
		UnmatchedRequests: s.unmatched,
		ServiceHits:       hits,
	}
}
