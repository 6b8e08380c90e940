package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// MemorySessionLog keeps assistant session records in memory
type MemorySessionLog struct {
	mu       sync.RWMutex
	sessions map[string]entities.Session
}

var _ repositories.SessionLogRepository = (*MemorySessionLog)(nil)

// NewMemorySessionLog creates an empty session log
func NewMemorySessionLog() *MemorySessionLog {
	return &MemorySessionLog{
		sessions: make(map[string]entities.Session),
	}
}

// Save implements SessionLogRepository. Saving an existing ID replaces it.
func (m *MemorySessionLog) Save(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = *session
	return nil
}

// ListRecent implements SessionLogRepository, newest first
func (m *MemorySessionLog) ListRecent(ctx context.Context, limit int) ([]*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entities.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteEndedBefore implements SessionLogRepository
func (m *MemorySessionLog) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, s := range m.sessions {
		if s.EndedAt != nil && s.EndedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}
