package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"carerelay/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// frame is the wire protocol between the bridge and remote contexts.
type frame struct {
	Op   string          `json:"op"` // "publish" | "notify"
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // contexts connect from the local machine
	},
}

// BridgeConfig configures the WebSocket bridge server.
type BridgeConfig struct {
	Host   string
	Port   int
	Logger *slog.Logger
}

// BridgeServer hosts a Broker and lets contexts in other processes attach
// over a WebSocket. Each connection becomes one attached context: its
// publishes enter the broker, and every broker notification is forwarded
// back on the socket. Current state is served over plain HTTP at /state.
type BridgeServer struct {
	broker *Broker
	host   string
	port   int
	logger *slog.Logger
	server *http.Server

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewBridgeServer creates a bridge around the given broker.
func NewBridgeServer(broker *Broker, cfg BridgeConfig) *BridgeServer {
	if cfg.Port == 0 {
		cfg.Port = 8790
	}
	return &BridgeServer{
		broker: broker,
		host:   cfg.Host,
		port:   cfg.Port,
		logger: cfg.Logger,
		conns:  make(map[string]*websocket.Conn),
	}
}

// Handler returns the HTTP handler serving /ws, /state and /metrics.
func (s *BridgeServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/metrics", metrics.Collector.Handler())
	return mux
}

// Start runs the bridge until ctx is cancelled.
func (s *BridgeServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("bridge starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *BridgeServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
	metrics.Collector.Gauge("carerelay_bridge_contexts", "Remote contexts attached", "").Inc()

	relayCtx := s.broker.Attach("bridge-" + id)
	var writeMu sync.Mutex
	cancel := relayCtx.SubscribeAll(func(key string, raw []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame{Op: "notify", Key: key, Data: raw}); err != nil {
			s.logger.Warn("bridge write failed", "context", id, "err", err)
		}
	})

	defer func() {
		cancel()
		relayCtx.Close()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		metrics.Collector.Gauge("carerelay_bridge_contexts", "Remote contexts attached", "").Dec()
	}()

	s.logger.Info("remote context attached", "context", id)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("remote context closed unexpectedly", "context", id, "err", err)
			}
			return
		}
		if f.Op != "publish" || f.Key == "" {
			s.logger.Warn("malformed bridge frame dropped", "context", id, "op", f.Op)
			continue
		}
		if !json.Valid(f.Data) {
			s.logger.Warn("invalid payload dropped", "context", id, "key", f.Key)
			continue
		}
		if err := relayCtx.publishRaw(f.Key, f.Data); err != nil {
			s.logger.Error("bridge publish failed", "context", id, "key", f.Key, "err", err)
		}
	}
}

func (s *BridgeServer) handleState(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	data, ok, err := s.broker.read(key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *BridgeServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(s.conns, id)
	}
}
