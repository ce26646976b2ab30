package pipeline

import (
	"sync"

	"carerelay/internal/domain"
)

// InsightInbox is a single-slot mailbox holding the most recent insight
// report. Each new report overwrites the previous one; there is no history.
type InsightInbox struct {
	mu     sync.RWMutex
	latest *domain.InsightReport
}

// Set replaces the slot with the given report.
func (i *InsightInbox) Set(report domain.InsightReport) {
	i.mu.Lock()
	i.latest = &report
	i.mu.Unlock()
}

// Latest returns the current report, if any has arrived.
func (i *InsightInbox) Latest() (domain.InsightReport, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.latest == nil {
		return domain.InsightReport{}, false
	}
	return *i.latest, true
}
