// Package relay implements the cross-context channel: publish/subscribe
// layered on a shared key-value store. Each execution context (the doctor's
// process, the patient's process) attaches a Context to a Broker; a publish
// from any context reaches every live subscriber in every attached context
// exactly once, in publish order per key. Remote processes attach over a
// WebSocket bridge.
package relay

import (
	"log/slog"
	"sync"

	"carerelay/internal/domain"
	"carerelay/internal/metrics"
)

// Broker owns the shared store and the set of attached contexts. All state
// flows through the store; contexts never share memory.
type Broker struct {
	store  domain.StateStore
	logger *slog.Logger

	mu       sync.RWMutex
	contexts []*Context

	// pubMu serializes store writes so every context observes a single
	// per-key publish order. Notifications are queued under it but fanned
	// out with it released, so a handler may itself publish.
	pubMu      sync.Mutex
	pending    []notification
	fanningOut bool
}

type notification struct {
	key  string
	data []byte
}

func NewBroker(store domain.StateStore, logger *slog.Logger) *Broker {
	return &Broker{store: store, logger: logger}
}

// Attach creates a new execution context bound to this broker. The name is
// used for logging only.
func (b *Broker) Attach(name string) *Context {
	c := &Context{
		name:   name,
		broker: b,
		logger: b.logger,
		subs:   make(map[string][]subscription),
	}
	b.mu.Lock()
	b.contexts = append(b.contexts, c)
	b.mu.Unlock()
	return c
}

func (b *Broker) detach(c *Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.contexts {
		if other == c {
			b.contexts = append(b.contexts[:i], b.contexts[i+1:]...)
			return
		}
	}
}

// publish writes the serialized value and fans it out to every attached
// context, the publishing one included. The notification is queued under
// pubMu and drained with it released: a publish made from inside a handler
// lands on the queue and goes out, in order, once the current delivery
// finishes.
func (b *Broker) publish(key string, data []byte) error {
	b.pubMu.Lock()
	if err := b.store.Put(key, data); err != nil {
		b.pubMu.Unlock()
		return err
	}
	metrics.Collector.Counter("carerelay_publishes_total", "Channel publishes", `key="`+key+`"`).Inc()

	b.pending = append(b.pending, notification{key: key, data: data})
	if b.fanningOut {
		// A fanout on this broker is already draining the queue.
		b.pubMu.Unlock()
		return nil
	}

	b.fanningOut = true
	for len(b.pending) > 0 {
		n := b.pending[0]
		b.pending = b.pending[1:]
		b.pubMu.Unlock()

		b.mu.RLock()
		contexts := make([]*Context, len(b.contexts))
		copy(contexts, b.contexts)
		b.mu.RUnlock()

		for _, c := range contexts {
			c.deliver(n.key, n.data)
		}
		b.pubMu.Lock()
	}
	b.fanningOut = false
	b.pubMu.Unlock()
	return nil
}

func (b *Broker) read(key string) ([]byte, bool, error) {
	return b.store.Get(key)
}
