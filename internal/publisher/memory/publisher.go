// Package memory contains an in-memory publisher for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Publisher stores published notices for inspection.
type Publisher struct {
	mu      sync.RWMutex
	notices []news.Notice
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notice and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, notice news.Notice) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, notice)
	return fmt.Sprintf("memory-%d", len(p.notices)), nil
}

// Notices returns the recorded notices.
func (p *Publisher) Notices() []news.Notice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]news.Notice, len(p.notices))
	copy(out, p.notices)
	return out
}
