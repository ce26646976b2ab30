package pipeline

import (
	"sort"
	"sync"

	"carerelay/internal/domain"
)

// mergedView is the patient context's local picture of the conversation:
// the shared log plus inbox-delivered doctor messages not (yet) present in
// it. The two channels can deliver overlapping information in any order;
// the view guarantees a message appears at most once no matter which side
// arrives first, and never writes back to the shared store.
type mergedView struct {
	mu        sync.Mutex
	shared    []domain.ConversationEntry
	delivered []domain.ConversationEntry
}

func (v *mergedView) setShared(entries []domain.ConversationEntry) {
	v.mu.Lock()
	v.shared = entries
	v.mu.Unlock()
}

// addDelivered records an inbox-delivered entry unless a message with the
// same sender and content identity is already known. Delivered entries are
// timestamped locally, so dedupe ignores the timestamp here.
func (v *mergedView) addDelivered(entry domain.ConversationEntry) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if containsIdentity(v.shared, entry) || containsIdentity(v.delivered, entry) {
		return false
	}
	v.delivered = append(v.delivered, entry)
	return true
}

// Entries returns the merged, timestamp-ordered view.
func (v *mergedView) Entries() []domain.ConversationEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]domain.ConversationEntry, 0, len(v.shared)+len(v.delivered))
	out = append(out, v.shared...)
	for _, e := range v.delivered {
		if !containsIdentity(v.shared, e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

func containsIdentity(entries []domain.ConversationEntry, entry domain.ConversationEntry) bool {
	for _, e := range entries {
		if e.Sender == entry.Sender && e.Content.Identity() == entry.Content.Identity() {
			return true
		}
	}
	return false
}
