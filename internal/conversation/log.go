// Package conversation maintains the ordered, append-only log of messages
// exchanged between the doctor and the patient, persisted under the
// "conversation" channel.
package conversation

import (
	"encoding/json"
	"log/slog"
	"time"

	"carerelay/internal/domain"
	"carerelay/internal/metrics"
	"carerelay/internal/waveform"

	"github.com/google/uuid"
)

// Log is a thin, typed layer over the conversation channel. Append performs
// a read-modify-publish of the whole sequence; a remote context publishing a
// fresher sequence replaces the local copy wholesale (last publisher wins).
// Two contexts appending within the same notification window can therefore
// lose one append; in normal operation each context appends only its own
// role's entries, so the window is narrow. See the log tests for the
// demonstrated anomaly.
type Log struct {
	ch     domain.Channel
	logger *slog.Logger
}

func NewLog(ch domain.Channel, logger *slog.Logger) *Log {
	return &Log{ch: ch, logger: logger}
}

// NewEntry builds a conversation entry for the given sender, deriving the
// waveform from the content's identifying string.
func NewEntry(sender domain.Role, content domain.Content, ts time.Time) domain.ConversationEntry {
	return domain.ConversationEntry{
		ID:        string(sender) + "-" + uuid.New().String(),
		Sender:    sender,
		Content:   content,
		Waveform:  waveform.Generate(content.Identity(), waveform.DefaultLength),
		Timestamp: ts.UnixMilli(),
	}
}

// Append inserts entry at the position consistent with timestamp order and
// publishes the new full sequence. Appending an entry already present is a
// no-op.
func (l *Log) Append(entry domain.ConversationEntry) error {
	entries, err := l.Snapshot()
	if err != nil {
		return err
	}
	for _, existing := range entries {
		if existing.Matches(entry) {
			l.logger.Warn("duplicate entry ignored", "id", entry.ID, "sender", entry.Sender)
			return nil
		}
	}
	entries = insertOrdered(entries, entry)
	if err := l.ch.Publish(domain.KeyConversation, entries); err != nil {
		return err
	}
	metrics.Collector.Counter("carerelay_entries_appended_total", "Conversation entries appended", `sender="`+string(entry.Sender)+`"`).Inc()
	return nil
}

// Restore republishes a previously observed sequence, discarding whatever
// was appended after it was taken. The pipelines use it to undo an append
// when the paired inbox publish fails, keeping the send all-or-nothing.
func (l *Log) Restore(entries []domain.ConversationEntry) error {
	if entries == nil {
		entries = []domain.ConversationEntry{}
	}
	return l.ch.Publish(domain.KeyConversation, entries)
}

// Snapshot returns the current sequence; an unwritten channel yields an
// empty log.
func (l *Log) Snapshot() ([]domain.ConversationEntry, error) {
	var entries []domain.ConversationEntry
	if _, err := l.ch.Read(domain.KeyConversation, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Subscribe invokes handler with the full fresh sequence on every publish.
// Payloads that fail to decode are logged and dropped; a foreign write must
// not crash the subscriber.
func (l *Log) Subscribe(handler func([]domain.ConversationEntry)) (cancel func()) {
	return l.ch.Subscribe(domain.KeyConversation, func(raw []byte) {
		var entries []domain.ConversationEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			metrics.Collector.Counter("carerelay_dropped_payloads_total", "Malformed inbound payloads dropped", `key="conversation"`).Inc()
			l.logger.Warn("malformed conversation payload dropped", "err", err)
			return
		}
		handler(entries)
	})
}

// insertOrdered keeps the sequence sorted by timestamp, inserting after any
// entries with an equal timestamp so ties preserve insertion order. In the
// common case (timestamps non-decreasing by construction) this is a plain
// tail append.
func insertOrdered(entries []domain.ConversationEntry, entry domain.ConversationEntry) []domain.ConversationEntry {
	i := len(entries)
	for i > 0 && entries[i-1].Timestamp > entry.Timestamp {
		i--
	}
	entries = append(entries, domain.ConversationEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = entry
	return entries
}
