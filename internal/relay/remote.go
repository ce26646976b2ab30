package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"carerelay/internal/domain"

	"github.com/gorilla/websocket"
)

// Remote is a domain.Channel whose broker lives in another process, reached
// through a BridgeServer. Publishes are forwarded over the socket and
// delivered locally only when the broker's notification comes back, so
// per-key ordering matches what every other context observes.
type Remote struct {
	base   string // http(s) base URL of the bridge
	conn   *websocket.Conn
	client *http.Client
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int
	closed bool
}

// Dial attaches this process to a bridge at rawURL (e.g.
// "http://127.0.0.1:8790") and starts the notification read loop.
func Dial(ctx context.Context, rawURL string, logger *slog.Logger) (*Remote, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse bridge url: %w", err)
	}

	wsURL := *u
	switch u.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
	wsURL.Path = strings.TrimSuffix(wsURL.Path, "/") + "/ws"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", wsURL.String(), err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	r := &Remote{
		base:   strings.TrimSuffix(rawURL, "/"),
		conn:   conn,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		subs:   make(map[string][]subscription),
	}
	go r.readLoop()
	return r, nil
}

func (r *Remote) Publish(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &domain.SerializationError{Key: key, Err: err}
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.WriteJSON(frame{Op: "publish", Key: key, Data: data}); err != nil {
		return fmt.Errorf("publish %q over bridge: %w", key, err)
	}
	return nil
}

func (r *Remote) Subscribe(key string, handler func(raw []byte)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[key] = append(r.subs[key], subscription{id: id, handler: handler})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subs[key]
		for i, s := range subs {
			if s.id == id {
				r.subs[key] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (r *Remote) Read(key string, into any) (bool, error) {
	resp, err := r.client.Get(r.base + "/state?key=" + url.QueryEscape(key))
	if err != nil {
		return false, fmt.Errorf("read %q over bridge: %w", key, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("read %q over bridge: %w", key, err)
		}
		if err := json.Unmarshal(data, into); err != nil {
			return false, &domain.SerializationError{Key: key, Err: err}
		}
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("read %q over bridge: status %d: %s", key, resp.StatusCode, body)
	}
}

func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.subs = make(map[string][]subscription)
	r.mu.Unlock()

	r.writeMu.Lock()
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	r.writeMu.Unlock()
	return r.conn.Close()
}

func (r *Remote) readLoop() {
	for {
		var f frame
		if err := r.conn.ReadJSON(&f); err != nil {
			r.mu.RLock()
			closed := r.closed
			r.mu.RUnlock()
			if !closed {
				r.logger.Warn("bridge connection lost", "err", err)
			}
			return
		}
		if f.Op != "notify" || f.Key == "" {
			r.logger.Warn("malformed bridge frame dropped", "op", f.Op)
			continue
		}
		r.deliver(f.Key, f.Data)
	}
}

func (r *Remote) deliver(key string, data []byte) {
	r.mu.RLock()
	subs := make([]subscription, len(r.subs[key]))
	copy(subs, r.subs[key])
	r.mu.RUnlock()

	for _, s := range subs {
		func(sub subscription) {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("subscriber panic", "key", key, "panic", p)
				}
			}()
			sub.handler(data)
		}(s)
	}
}
