package webhooks

import (
	"sort"
	"sync"
	"time"
)

// DeliveryStatus starts pending and ends success or failed; retrying marks
// a delivery waiting for its next attempt
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// DeliveryLog tracks the delivery of one event to one endpoint
type DeliveryLog struct {
	ID           string         `json:"id"`
	EndpointID   string         `json:"endpoint_id"`
	EventID      string         `json:"event_id"`
	EventType    EventType      `json:"event_type"`
	URL          string         `json:"url"`
	Status       DeliveryStatus `json:"status"`
	StatusCode   int            `json:"status_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attempts     int            `json:"attempts"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Duration     time.Duration  `json:"duration,omitempty"`

	// Payload is the signed body, resent unchanged on retry
	Payload []byte `json:"-"`
}

const defaultMaxLogs = 1000

// DeliveryLogStore is a bounded in-memory history of deliveries. Logs go in
// and come out by value, so callers never share one with a running delivery.
type DeliveryLogStore struct {
	mu      sync.RWMutex
	logs    map[string]DeliveryLog
	maxLogs int
}

func NewDeliveryLogStore(maxLogs int) *DeliveryLogStore {
	if maxLogs <= 0 {
		maxLogs = defaultMaxLogs
	}
	return &DeliveryLogStore{logs: make(map[string]DeliveryLog), maxLogs: maxLogs}
}

// Add records a new delivery, first evicting the oldest tenth when full
func (s *DeliveryLogStore) Add(log DeliveryLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) >= s.maxLogs {
		s.evictOldest()
	}
	s.logs[log.ID] = log
}

func (s *DeliveryLogStore) Get(id string) (DeliveryLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[id]
	return log, ok
}

// Update stores the new state of a known log. A log evicted while its
// delivery was in flight is not brought back.
func (s *DeliveryLogStore) Update(log DeliveryLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[log.ID]; ok {
		s.logs[log.ID] = log
	}
}

// GetByEndpoint returns an endpoint's logs, newest first
func (s *DeliveryLogStore) GetByEndpoint(endpointID string, limit int) []DeliveryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []DeliveryLog
	for _, log := range s.logs {
		if log.EndpointID == endpointID {
			result = append(result, log)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// GetPendingRetries returns logs whose next retry is due at now
func (s *DeliveryLogStore) GetPendingRetries(now time.Time) []DeliveryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []DeliveryLog
	for _, log := range s.logs {
		if log.Status == DeliveryStatusRetrying && log.NextRetryAt != nil && !log.NextRetryAt.After(now) {
			result = append(result, log)
		}
	}
	return result
}

func (s *DeliveryLogStore) evictOldest() {
	byAge := make([]DeliveryLog, 0, len(s.logs))
	for _, log := range s.logs {
		byAge = append(byAge, log)
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].CreatedAt.Before(byAge[j].CreatedAt) })

	for _, log := range byAge[:max(len(byAge)/10, 1)] {
		delete(s.logs, log.ID)
	}
}

// GetStats summarises an endpoint's retained logs; durations count
// successful deliveries only
func (s *DeliveryLogStore) GetStats(endpointID string) DeliveryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := DeliveryStats{EndpointID: endpointID}
	for _, log := range s.logs {
		if log.EndpointID != endpointID {
			continue
		}

		stats.Total++
		switch log.Status {
		case DeliveryStatusSuccess:
			stats.Successful++
			stats.TotalDuration += log.Duration
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusRetrying:
			stats.Retrying++
		}
	}

	if stats.Successful > 0 {
		stats.AverageDuration = stats.TotalDuration / time.Duration(stats.Successful)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats
}

// DeliveryStats is the per-endpoint summary returned by Dispatcher.Stats
type DeliveryStats struct {
	EndpointID      string        `json:"endpoint_id"`
	Total           int           `json:"total"`
	Successful      int           `json:"successful"`
	Failed          int           `json:"failed"`
	Retrying        int           `json:"retrying"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalDuration   time.Duration `json:"total_duration"`
}
