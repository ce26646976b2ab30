package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"carerelay/internal/domain"
	"carerelay/internal/metrics"
)

// Context is one execution context's view of the relay. It implements
// domain.Channel. Handlers registered here fire for publishes made in this
// context (same-context path) and in any other attached context
// (cross-context path), exactly once each.
type Context struct {
	name   string
	broker *Broker
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string][]subscription
	taps   []allSubscription
	nextID int
	closed bool
}

type subscription struct {
	id      int
	handler func(raw []byte)
}

type allSubscription struct {
	id      int
	handler func(key string, raw []byte)
}

func (c *Context) Publish(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &domain.SerializationError{Key: key, Err: err}
	}
	return c.publishRaw(key, data)
}

func (c *Context) publishRaw(key string, data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		c.logger.Warn("publish on closed context", "context", c.name, "key", key)
		return nil
	}
	return c.broker.publish(key, data)
}

func (c *Context) Subscribe(key string, handler func(raw []byte)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[key] = append(c.subs[key], subscription{id: id, handler: handler})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[key]
		for i, s := range subs {
			if s.id == id {
				c.subs[key] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler for every key; the bridge uses it to
// forward notifications to remote contexts.
func (c *Context) SubscribeAll(handler func(key string, raw []byte)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.taps = append(c.taps, allSubscription{id: id, handler: handler})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, t := range c.taps {
			if t.id == id {
				c.taps = append(c.taps[:i], c.taps[i+1:]...)
				return
			}
		}
	}
}

func (c *Context) Read(key string, into any) (bool, error) {
	data, ok, err := c.broker.read(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, &domain.SerializationError{Key: key, Err: err}
	}
	return true, nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[string][]subscription)
	c.taps = nil
	c.mu.Unlock()
	c.broker.detach(c)
	return nil
}

// deliver invokes every handler registered for key. A panicking handler is
// logged and must not prevent delivery to the others.
func (c *Context) deliver(key string, data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	subs := make([]subscription, len(c.subs[key]))
	copy(subs, c.subs[key])
	taps := make([]allSubscription, len(c.taps))
	copy(taps, c.taps)
	c.mu.RUnlock()

	for _, s := range subs {
		c.invoke(key, func() { s.handler(data) })
	}
	for _, t := range taps {
		c.invoke(key, func() { t.handler(key, data) })
	}
}

func (c *Context) invoke(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Collector.Counter("carerelay_handler_panics_total", "Recovered subscriber panics", "").Inc()
			c.logger.Error("subscriber panic", "context", c.name, "key", key, "panic", r)
		}
	}()
	fn()
}
