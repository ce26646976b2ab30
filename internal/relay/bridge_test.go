package relay

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"carerelay/internal/store"
)

func newTestBridge(t *testing.T) (*Broker, *httptest.Server) {
	t.Helper()
	broker := NewBroker(store.NewMemory(), testLogger())
	srv := httptest.NewServer(NewBridgeServer(broker, BridgeConfig{Logger: testLogger()}).Handler())
	t.Cleanup(srv.Close)
	return broker, srv
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBridge_RemotePublishReachesLocal(t *testing.T) {
	broker, srv := newTestBridge(t)

	local := broker.Attach("doctor")
	var got atomic.Value
	local.Subscribe("patient-inbox", func(raw []byte) { got.Store(string(raw)) })

	remote, err := Dial(context.Background(), srv.URL, testLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer remote.Close()

	if err := remote.Publish("patient-inbox", "audio-ref"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return got.Load() != nil }, "local subscriber never notified")
	if got.Load().(string) != `"audio-ref"` {
		t.Fatalf("unexpected payload: %s", got.Load())
	}
}

func TestBridge_LocalPublishReachesRemote(t *testing.T) {
	broker, srv := newTestBridge(t)

	remote, err := Dial(context.Background(), srv.URL, testLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer remote.Close()

	var got atomic.Value
	remote.Subscribe("doctor-inbox", func(raw []byte) { got.Store(string(raw)) })

	local := broker.Attach("patient")
	if err := local.Publish("doctor-inbox", map[string]string{"insights": "calm"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return got.Load() != nil }, "remote subscriber never notified")
	if got.Load().(string) != `{"insights":"calm"}` {
		t.Fatalf("unexpected payload: %s", got.Load())
	}
}

func TestBridge_RemoteSeesOwnPublishOnce(t *testing.T) {
	_, srv := newTestBridge(t)

	remote, err := Dial(context.Background(), srv.URL, testLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer remote.Close()

	var fired atomic.Int32
	remote.Subscribe("conversation", func(raw []byte) { fired.Add(1) })

	if err := remote.Publish("conversation", "x"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return fired.Load() >= 1 }, "remote never saw its own publish")
	time.Sleep(50 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("remote subscriber fired %d times, want exactly 1", n)
	}
}

func TestBridge_RemoteRead(t *testing.T) {
	broker, srv := newTestBridge(t)

	local := broker.Attach("doctor")
	if err := local.Publish("preferred-language", "es"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	remote, err := Dial(context.Background(), srv.URL, testLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer remote.Close()

	var lang string
	ok, err := remote.Read("preferred-language", &lang)
	if err != nil || !ok || lang != "es" {
		t.Fatalf("remote read: ok=%v lang=%q err=%v", ok, lang, err)
	}

	var absent string
	ok, err = remote.Read("never-written", &absent)
	if err != nil || ok {
		t.Fatalf("remote read of absent key: ok=%v err=%v", ok, err)
	}
}
